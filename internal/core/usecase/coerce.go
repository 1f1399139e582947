package usecase

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/atvirokodosprendimai/pmsbridge/internal/core/domain"
)

// Coerce converts a raw caller value to the field's target type. A nil raw
// value is absence and yields an absent Value without a violation.
func Coerce(raw any, f domain.FieldSpec) (domain.Value, *domain.Violation) {
	if raw == nil {
		return domain.Absent(), nil
	}

	switch f.Type {
	case domain.TypeInteger:
		return coerceInteger(raw, f)
	case domain.TypeFloat:
		return coerceFloat(raw, f)
	case domain.TypeBinaryFlag:
		return coerceFlag(raw, f)
	case domain.TypeString:
		return coerceString(raw, f)
	case domain.TypeDate:
		s, ok := raw.(string)
		if !ok {
			return domain.Absent(), mismatch(f, "a date string", raw)
		}
		return domain.StringValue(domain.TypeDate, s), nil
	}
	return domain.Absent(), mismatch(f, string(f.Type), raw)
}

func coerceInteger(raw any, f domain.FieldSpec) (domain.Value, *domain.Violation) {
	if s, ok := raw.(string); ok {
		n, err := strconv.ParseInt(strings.TrimSpace(s), 10, 64)
		if err != nil {
			return domain.Absent(), mismatch(f, "an integer", raw)
		}
		return domain.IntValue(domain.TypeInteger, n), nil
	}
	n, ok := integerLiteral(raw)
	if !ok {
		return domain.Absent(), mismatch(f, "an integer", raw)
	}
	return domain.IntValue(domain.TypeInteger, n), nil
}

func coerceFloat(raw any, f domain.FieldSpec) (domain.Value, *domain.Violation) {
	if s, ok := raw.(string); ok {
		n, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
		if err != nil || math.IsNaN(n) || math.IsInf(n, 0) {
			return domain.Absent(), mismatch(f, "a number", raw)
		}
		return domain.FloatValue(n), nil
	}
	n, ok := floatLiteral(raw)
	if !ok {
		return domain.Absent(), mismatch(f, "a number", raw)
	}
	return domain.FloatValue(n), nil
}

func coerceFlag(raw any, f domain.FieldSpec) (domain.Value, *domain.Violation) {
	switch v := raw.(type) {
	case bool:
		if v {
			return domain.IntValue(domain.TypeBinaryFlag, 1), nil
		}
		return domain.IntValue(domain.TypeBinaryFlag, 0), nil
	case string:
		switch strings.ToLower(strings.TrimSpace(v)) {
		case "1", "true", "yes", "on":
			return domain.IntValue(domain.TypeBinaryFlag, 1), nil
		case "0", "false", "no", "off":
			return domain.IntValue(domain.TypeBinaryFlag, 0), nil
		}
		return domain.Absent(), mismatch(f, "0 or 1", raw)
	}
	n, ok := integerLiteral(raw)
	if !ok || (n != 0 && n != 1) {
		return domain.Absent(), mismatch(f, "0 or 1", raw)
	}
	return domain.IntValue(domain.TypeBinaryFlag, n), nil
}

func coerceString(raw any, f domain.FieldSpec) (domain.Value, *domain.Violation) {
	if s, ok := raw.(string); ok {
		return domain.StringValue(domain.TypeString, s), nil
	}
	if !f.AllowStringify {
		return domain.Absent(), mismatch(f, "a string", raw)
	}
	switch v := raw.(type) {
	case bool:
		return domain.StringValue(domain.TypeString, strconv.FormatBool(v)), nil
	case json.Number:
		return domain.StringValue(domain.TypeString, v.String()), nil
	}
	if n, ok := integerLiteral(raw); ok {
		return domain.StringValue(domain.TypeString, strconv.FormatInt(n, 10)), nil
	}
	if n, ok := floatLiteral(raw); ok {
		return domain.StringValue(domain.TypeString, strconv.FormatFloat(n, 'f', -1, 64)), nil
	}
	return domain.Absent(), mismatch(f, "a string", raw)
}

// integerLiteral accepts Go and JSON numeric literals with an integral value.
// Strings are never accepted here.
func integerLiteral(raw any) (int64, bool) {
	switch v := raw.(type) {
	case int:
		return int64(v), true
	case int8:
		return int64(v), true
	case int16:
		return int64(v), true
	case int32:
		return int64(v), true
	case int64:
		return v, true
	case uint:
		return uintToInt(uint64(v))
	case uint8:
		return int64(v), true
	case uint16:
		return int64(v), true
	case uint32:
		return int64(v), true
	case uint64:
		return uintToInt(v)
	case json.Number:
		if n, err := v.Int64(); err == nil {
			return n, true
		}
		f, err := v.Float64()
		if err != nil {
			return 0, false
		}
		return integralFloat(f)
	case float32:
		return integralFloat(float64(v))
	case float64:
		return integralFloat(v)
	}
	return 0, false
}

func floatLiteral(raw any) (float64, bool) {
	switch v := raw.(type) {
	case float64:
		return v, !math.IsNaN(v) && !math.IsInf(v, 0)
	case float32:
		f := float64(v)
		return f, !math.IsNaN(f) && !math.IsInf(f, 0)
	case json.Number:
		f, err := v.Float64()
		return f, err == nil
	}
	if n, ok := integerLiteral(raw); ok {
		return float64(n), true
	}
	return 0, false
}

func integralFloat(f float64) (int64, bool) {
	if math.IsNaN(f) || math.IsInf(f, 0) || f != math.Trunc(f) {
		return 0, false
	}
	if f < math.MinInt64 || f >= math.MaxInt64 {
		return 0, false
	}
	return int64(f), true
}

func uintToInt(v uint64) (int64, bool) {
	if v > math.MaxInt64 {
		return 0, false
	}
	return int64(v), true
}

func mismatch(f domain.FieldSpec, want string, raw any) *domain.Violation {
	return &domain.Violation{
		Field:   f.Name,
		Code:    domain.CodeTypeMismatch,
		Message: fmt.Sprintf("%s must be %s, got %s", f.Name, want, describe(raw)),
	}
}

func describe(raw any) string {
	switch v := raw.(type) {
	case string:
		return strconv.Quote(v)
	case bool:
		return "boolean " + strconv.FormatBool(v)
	case json.Number:
		return "number " + v.String()
	case map[string]any:
		return "an object"
	case []any:
		return "an array"
	}
	if n, ok := integerLiteral(raw); ok {
		return "number " + strconv.FormatInt(n, 10)
	}
	if n, ok := floatLiteral(raw); ok {
		return "number " + strconv.FormatFloat(n, 'g', -1, 64)
	}
	return fmt.Sprintf("%T", raw)
}
