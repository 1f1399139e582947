package domain

import (
	"fmt"
	"strings"
)

type Code string

const (
	CodeTypeMismatch         Code = "TYPE_MISMATCH"
	CodeOutOfRange           Code = "OUT_OF_RANGE"
	CodeInvalidEnum          Code = "INVALID_ENUM"
	CodeInvalidDate          Code = "INVALID_DATE"
	CodeMutuallyExclusive    Code = "MUTUALLY_EXCLUSIVE"
	CodeMissingRequiredGroup Code = "MISSING_REQUIRED_GROUP"
	CodeEmptySentinel        Code = "EMPTY_SENTINEL"
)

// CrossField is the Field value of violations that span several fields.
const CrossField = "_"

// Violation is one field-level or structural problem with caller input.
type Violation struct {
	Field   string `json:"field"`
	Code    Code   `json:"code"`
	Message string `json:"message"`
}

func (v Violation) String() string {
	return fmt.Sprintf("%s [%s]: %s", v.Field, v.Code, v.Message)
}

// ErrValidation is returned when caller input fails normalization. It always
// carries every violation found, never only the first.
type ErrValidation struct {
	Operation  string
	Violations []Violation
}

func (e *ErrValidation) Error() string {
	if len(e.Violations) == 0 {
		return "validation failed"
	}
	noun := "errors"
	if len(e.Violations) == 1 {
		noun = "error"
	}
	return fmt.Sprintf("%d validation %s: %s", len(e.Violations), noun, e.Violations[0].Message)
}

// Has reports whether any violation on field carries code.
func (e *ErrValidation) Has(field string, code Code) bool {
	for _, v := range e.Violations {
		if v.Field == field && v.Code == code {
			return true
		}
	}
	return false
}

// Detail joins every violation on its own line.
func (e *ErrValidation) Detail() string {
	lines := make([]string, 0, len(e.Violations))
	for _, v := range e.Violations {
		lines = append(lines, v.String())
	}
	return strings.Join(lines, "\n")
}
