package model

import "encoding/json"

// ValueKind tags a Value's runtime type. Cell values flow through coercion
// and validators without Go ever needing to know their static type.
type ValueKind string

const (
	KindNull   ValueKind = "null"
	KindString ValueKind = "string"
	KindInt    ValueKind = "int"
	KindFloat  ValueKind = "float"
	KindBool   ValueKind = "bool"
	KindJSON   ValueKind = "json"
)

// Value is the small tagged union threaded through coercion and
// validator dispatch. Only the field matching Kind is meaningful.
type Value struct {
	Kind ValueKind
	Str  string
	Int  int64
	Flt  float64
	Bool bool
	Raw  json.RawMessage // KindJSON
}

// Null is the canonical null value.
var Null = Value{Kind: KindNull}

func StringValue(s string) Value { return Value{Kind: KindString, Str: s} }
func IntValue(i int64) Value     { return Value{Kind: KindInt, Int: i} }
func FloatValue(f float64) Value { return Value{Kind: KindFloat, Flt: f} }
func BoolValue(b bool) Value     { return Value{Kind: KindBool, Bool: b} }
func JSONValue(raw json.RawMessage) Value {
	return Value{Kind: KindJSON, Raw: raw}
}

// IsNull reports whether v represents the null value.
func (v Value) IsNull() bool { return v.Kind == KindNull }

// AsString renders v the way it would be written into an output cell.
func (v Value) AsString() string {
	switch v.Kind {
	case KindNull:
		return ""
	case KindString:
		return v.Str
	case KindBool:
		if v.Bool {
			return "true"
		}
		return "false"
	case KindJSON:
		return string(v.Raw)
	default:
		return v.Str
	}
}

// Numeric reports whether v carries a comparable numeric value and returns
// it as float64. Only int and float kinds qualify; a string value reports
// false and is not re-parsed.
func (v Value) Numeric() (float64, bool) {
	switch v.Kind {
	case KindInt:
		return float64(v.Int), true
	case KindFloat:
		return v.Flt, true
	default:
		return 0, false
	}
}

// MarshalJSON renders the value as a plain JSON scalar (not the tagged
// struct), matching how it is embedded in output artifacts.
func (v Value) MarshalJSON() ([]byte, error) {
	switch v.Kind {
	case KindNull:
		return []byte("null"), nil
	case KindString:
		return json.Marshal(v.Str)
	case KindInt:
		return json.Marshal(v.Int)
	case KindFloat:
		return json.Marshal(v.Flt)
	case KindBool:
		return json.Marshal(v.Bool)
	case KindJSON:
		if len(v.Raw) == 0 {
			return []byte("null"), nil
		}
		return v.Raw, nil
	default:
		return []byte("null"), nil
	}
}
