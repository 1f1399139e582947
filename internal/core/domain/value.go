package domain

import "strconv"

// Value is a normalized field value. The zero Value is absent.
type Value struct {
	Type    TargetType
	Int     int64
	Float   float64
	Str     string
	present bool
}

func Absent() Value { return Value{} }

func IntValue(t TargetType, v int64) Value {
	return Value{Type: t, Int: v, present: true}
}

func FloatValue(v float64) Value {
	return Value{Type: TypeFloat, Float: v, present: true}
}

func StringValue(t TargetType, v string) Value {
	return Value{Type: t, Str: v, present: true}
}

func (v Value) Present() bool { return v.present }

// Interface returns the primitive sent upstream: int64 for integers and
// binary flags, float64 for floats, string for strings and dates.
func (v Value) Interface() any {
	if !v.present {
		return nil
	}
	switch v.Type {
	case TypeInteger, TypeBinaryFlag:
		return v.Int
	case TypeFloat:
		return v.Float
	default:
		return v.Str
	}
}

// String renders the canonical form used for enum comparison and path
// substitution.
func (v Value) String() string {
	switch v.Type {
	case TypeInteger, TypeBinaryFlag:
		return strconv.FormatInt(v.Int, 10)
	case TypeFloat:
		return strconv.FormatFloat(v.Float, 'f', -1, 64)
	default:
		return v.Str
	}
}
