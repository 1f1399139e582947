package domain

import (
	"fmt"
	"strings"
)

type TargetType string

const (
	TypeInteger    TargetType = "integer"
	TypeBinaryFlag TargetType = "binaryFlag"
	TypeString     TargetType = "string"
	TypeFloat      TargetType = "float"
	TypeDate       TargetType = "date"
)

func (t TargetType) Valid() bool {
	switch t {
	case TypeInteger, TypeBinaryFlag, TypeString, TypeFloat, TypeDate:
		return true
	}
	return false
}

func (t TargetType) Numeric() bool {
	return t == TypeInteger || t == TypeFloat
}

// DateFormat restricts which ISO-8601 shapes a date field accepts.
type DateFormat string

const (
	DateAny      DateFormat = "any"
	DateOnly     DateFormat = "date"
	DateTimeUTC  DateFormat = "datetime"
	dateFmtUnset DateFormat = ""
)

func (f DateFormat) Valid() bool {
	switch f {
	case dateFmtUnset, DateAny, DateOnly, DateTimeUTC:
		return true
	}
	return false
}

// Location is where a field travels in the outbound request.
type Location string

const (
	InDefault Location = ""
	InQuery   Location = "query"
	InBody    Location = "body"
	InPath    Location = "path"
)

// FieldSpec declares one caller-facing parameter.
type FieldSpec struct {
	Name           string     `yaml:"name" json:"name"`
	Param          string     `yaml:"param,omitempty" json:"param,omitempty"`
	Type           TargetType `yaml:"type" json:"type"`
	Required       bool       `yaml:"required,omitempty" json:"required,omitempty"`
	Min            *float64   `yaml:"min,omitempty" json:"min,omitempty"`
	Max            *float64   `yaml:"max,omitempty" json:"max,omitempty"`
	Enum           []string   `yaml:"enum,omitempty" json:"enum,omitempty"`
	EnumFold       bool       `yaml:"enumFold,omitempty" json:"enumFold,omitempty"`
	DateFormat     DateFormat `yaml:"dateFormat,omitempty" json:"dateFormat,omitempty"`
	AllowStringify bool       `yaml:"allowStringify,omitempty" json:"allowStringify,omitempty"`
	MaxLength      int        `yaml:"maxLength,omitempty" json:"maxLength,omitempty"`
	In             Location   `yaml:"in,omitempty" json:"in,omitempty"`
	Description    string     `yaml:"description,omitempty" json:"description,omitempty"`
}

// UpstreamName is the key the upstream API expects for this field.
func (f FieldSpec) UpstreamName() string {
	if f.Param != "" {
		return f.Param
	}
	return f.Name
}

func (f FieldSpec) validate() error {
	if strings.TrimSpace(f.Name) == "" {
		return fmt.Errorf("%w: field without name", ErrInvalidOperation)
	}
	if !f.Type.Valid() {
		return fmt.Errorf("%w: field %s: unknown type %q", ErrInvalidOperation, f.Name, f.Type)
	}
	if (f.Min != nil || f.Max != nil) && !f.Type.Numeric() {
		return fmt.Errorf("%w: field %s: min/max on non-numeric type %s", ErrInvalidOperation, f.Name, f.Type)
	}
	if f.Min != nil && f.Max != nil && *f.Min > *f.Max {
		return fmt.Errorf("%w: field %s: min %v greater than max %v", ErrInvalidOperation, f.Name, *f.Min, *f.Max)
	}
	if !f.DateFormat.Valid() {
		return fmt.Errorf("%w: field %s: unknown date format %q", ErrInvalidOperation, f.Name, f.DateFormat)
	}
	if f.DateFormat != dateFmtUnset && f.Type != TypeDate {
		return fmt.Errorf("%w: field %s: dateFormat on %s field", ErrInvalidOperation, f.Name, f.Type)
	}
	if f.MaxLength < 0 || (f.MaxLength > 0 && f.Type != TypeString) {
		return fmt.Errorf("%w: field %s: maxLength only applies to string fields", ErrInvalidOperation, f.Name)
	}
	switch f.In {
	case InDefault, InQuery, InBody, InPath:
	default:
		return fmt.Errorf("%w: field %s: unknown location %q", ErrInvalidOperation, f.Name, f.In)
	}
	if f.In == InPath && !f.Required {
		return fmt.Errorf("%w: field %s: path fields must be required", ErrInvalidOperation, f.Name)
	}
	return nil
}
