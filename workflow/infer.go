package workflow

import (
	"encoding/json"
	"math"
)

// Type is the primitive type inferred for a tool parameter.
type Type string

// Parameter types. Inference is best-effort: the authored default on the
// bound field is the only type signal a schema-less template carries.
const (
	TypeInt    Type = "int"
	TypeFloat  Type = "float"
	TypeBool   Type = "bool"
	TypeString Type = "string"
)

// JSONType returns the JSON Schema type name for the parameter type, for
// use in compiled tool input schemas.
func (t Type) JSONType() string {
	switch t {
	case TypeInt:
		return "integer"
	case TypeFloat:
		return "number"
	case TypeBool:
		return "boolean"
	default:
		return "string"
	}
}

// InferType classifies a field's default value into a parameter type.
// Integral numerics infer int, other numerics float, booleans bool, and
// everything else (including nil) string. Inference runs once at compile
// time and is never repeated at call time.
func InferType(value any) Type {
	switch v := value.(type) {
	case bool:
		return TypeBool
	case int, int32, int64:
		return TypeInt
	case float32:
		return inferFromFloat(float64(v))
	case float64:
		return inferFromFloat(v)
	case json.Number:
		if _, err := v.Int64(); err == nil {
			return TypeInt
		}
		if _, err := v.Float64(); err == nil {
			return TypeFloat
		}
		return TypeString
	default:
		return TypeString
	}
}

func inferFromFloat(f float64) Type {
	if f == math.Trunc(f) && !math.IsInf(f, 0) {
		return TypeInt
	}
	return TypeFloat
}
