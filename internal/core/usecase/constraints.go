package usecase

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/atvirokodosprendimai/pmsbridge/internal/core/domain"
)

var (
	dateOnlyPattern = regexp.MustCompile(`^\d{4}-\d{2}-\d{2}$`)
	dateTimePattern = regexp.MustCompile(`^\d{4}-\d{2}-\d{2}T\d{2}:\d{2}:\d{2}Z$`)
)

// IsSentinel reports whether raw is a string placeholder for "no value": empty,
// whitespace only, or null/none in any case.
func IsSentinel(raw any) bool {
	s, ok := raw.(string)
	if !ok {
		return false
	}
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "null", "none":
		return true
	}
	return false
}

func sentinelViolation(f domain.FieldSpec, raw any) domain.Violation {
	return domain.Violation{
		Field:   f.Name,
		Code:    domain.CodeEmptySentinel,
		Message: fmt.Sprintf("%s was given the placeholder %q; omit the field instead of sending an empty value", f.Name, raw),
	}
}

func requiredViolation(f domain.FieldSpec) domain.Violation {
	return domain.Violation{
		Field:   f.Name,
		Code:    domain.CodeMissingRequiredGroup,
		Message: fmt.Sprintf("%s is required", f.Name),
	}
}

// CheckConstraints validates a coerced, present value against f. It returns
// the value in canonical form (case-folded enums take the declared spelling)
// and every violation found.
func CheckConstraints(f domain.FieldSpec, v domain.Value) (domain.Value, []domain.Violation) {
	if !v.Present() {
		return v, nil
	}

	var out []domain.Violation
	switch f.Type {
	case domain.TypeInteger, domain.TypeFloat:
		if viol := checkRange(f, v); viol != nil {
			out = append(out, *viol)
		}
	case domain.TypeString:
		if f.MaxLength > 0 && len([]rune(v.Str)) > f.MaxLength {
			out = append(out, domain.Violation{
				Field:   f.Name,
				Code:    domain.CodeOutOfRange,
				Message: fmt.Sprintf("%s must be at most %d characters", f.Name, f.MaxLength),
			})
		}
	case domain.TypeDate:
		if _, err := ParseDate(v.Str, f.DateFormat); err != nil {
			out = append(out, domain.Violation{
				Field:   f.Name,
				Code:    domain.CodeInvalidDate,
				Message: fmt.Sprintf("%s: %v", f.Name, err),
			})
		}
	}

	if len(f.Enum) > 0 {
		canonical, ok := matchEnum(f, v.String())
		if !ok {
			out = append(out, domain.Violation{
				Field:   f.Name,
				Code:    domain.CodeInvalidEnum,
				Message: fmt.Sprintf("%s must be one of %s, got %q", f.Name, strings.Join(f.Enum, ", "), v.String()),
			})
		} else if v.Type == domain.TypeString || v.Type == domain.TypeDate {
			v.Str = canonical
		}
	}
	return v, out
}

func checkRange(f domain.FieldSpec, v domain.Value) *domain.Violation {
	n := v.Float
	if v.Type == domain.TypeInteger {
		n = float64(v.Int)
	}
	below := f.Min != nil && n < *f.Min
	above := f.Max != nil && n > *f.Max
	if !below && !above {
		return nil
	}

	var bound string
	switch {
	case f.Min != nil && f.Max != nil:
		bound = fmt.Sprintf("between %s and %s", formatBound(*f.Min), formatBound(*f.Max))
	case f.Min != nil:
		bound = "at least " + formatBound(*f.Min)
	default:
		bound = "at most " + formatBound(*f.Max)
	}
	return &domain.Violation{
		Field:   f.Name,
		Code:    domain.CodeOutOfRange,
		Message: fmt.Sprintf("%s must be %s, got %s", f.Name, bound, v.String()),
	}
}

func formatBound(b float64) string {
	return strconv.FormatFloat(b, 'f', -1, 64)
}

func matchEnum(f domain.FieldSpec, value string) (string, bool) {
	for _, allowed := range f.Enum {
		if allowed == value {
			return allowed, true
		}
	}
	if f.EnumFold {
		for _, allowed := range f.Enum {
			if strings.EqualFold(allowed, value) {
				return allowed, true
			}
		}
	}
	return "", false
}

// ParseDate checks s against the ISO-8601 shapes allowed by format and
// confirms it is a real calendar date.
func ParseDate(s string, format domain.DateFormat) (time.Time, error) {
	dateOK := format != domain.DateTimeUTC && dateOnlyPattern.MatchString(s)
	timeOK := format != domain.DateOnly && dateTimePattern.MatchString(s)

	switch {
	case dateOK:
		t, err := time.Parse(time.DateOnly, s)
		if err != nil {
			return time.Time{}, fmt.Errorf("%q is not a valid calendar date", s)
		}
		return t, nil
	case timeOK:
		t, err := time.Parse(time.RFC3339, s)
		if err != nil {
			return time.Time{}, fmt.Errorf("%q is not a valid calendar date and time", s)
		}
		return t, nil
	}

	switch format {
	case domain.DateOnly:
		return time.Time{}, fmt.Errorf("%q must have the form YYYY-MM-DD", s)
	case domain.DateTimeUTC:
		return time.Time{}, fmt.Errorf("%q must have the form YYYY-MM-DDTHH:MM:SSZ", s)
	}
	return time.Time{}, fmt.Errorf("%q must have the form YYYY-MM-DD or YYYY-MM-DDTHH:MM:SSZ", s)
}

// CheckRanges enforces start <= end for each declared date range whose two
// endpoints are present and individually valid.
func CheckRanges(op domain.Operation, values map[string]domain.Value) []domain.Violation {
	var out []domain.Violation
	for _, r := range op.Ranges {
		start, end := values[r.Start], values[r.End]
		if !start.Present() || !end.Present() {
			continue
		}
		startSpec, _ := op.Field(r.Start)
		endSpec, _ := op.Field(r.End)
		from, err := ParseDate(start.Str, startSpec.DateFormat)
		if err != nil {
			continue
		}
		to, err := ParseDate(end.Str, endSpec.DateFormat)
		if err != nil {
			continue
		}
		if from.After(to) {
			out = append(out, domain.Violation{
				Field:   r.Name,
				Code:    domain.CodeInvalidDate,
				Message: fmt.Sprintf("%s: %s (%s) is after %s (%s)", r.Name, r.Start, start.Str, r.End, end.Str),
			})
		}
	}
	return out
}
