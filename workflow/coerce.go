package workflow

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
)

var errCoerce = errors.New("coercion failed")

// Coerce converts a call-time value to the target parameter type. String
// inputs follow the type's natural parsing rules ("12" coerces to int 12);
// numeric inputs to string are formatted. Inference is best-effort, so
// coercion is where type mismatches finally surface.
func Coerce(value any, target Type) (any, error) {
	switch target {
	case TypeInt:
		return coerceInt(value)
	case TypeFloat:
		return coerceFloat(value)
	case TypeBool:
		return coerceBool(value)
	default:
		return coerceString(value)
	}
}

func coerceInt(value any) (any, error) {
	switch v := value.(type) {
	case int:
		return int64(v), nil
	case int32:
		return int64(v), nil
	case int64:
		return v, nil
	case float64:
		if v != math.Trunc(v) {
			return nil, errCoerce
		}
		return int64(v), nil
	case float32:
		return coerceInt(float64(v))
	case json.Number:
		return v.Int64()
	case string:
		n, err := strconv.ParseInt(strings.TrimSpace(v), 10, 64)
		if err != nil {
			return nil, errCoerce
		}
		return n, nil
	default:
		return nil, errCoerce
	}
}

func coerceFloat(value any) (any, error) {
	switch v := value.(type) {
	case float64:
		return v, nil
	case float32:
		return float64(v), nil
	case int:
		return float64(v), nil
	case int64:
		return float64(v), nil
	case json.Number:
		return v.Float64()
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
		if err != nil {
			return nil, errCoerce
		}
		return f, nil
	default:
		return nil, errCoerce
	}
}

func coerceBool(value any) (any, error) {
	switch v := value.(type) {
	case bool:
		return v, nil
	case string:
		b, err := strconv.ParseBool(strings.TrimSpace(v))
		if err != nil {
			return nil, errCoerce
		}
		return b, nil
	default:
		return nil, errCoerce
	}
}

func coerceString(value any) (any, error) {
	switch v := value.(type) {
	case string:
		return v, nil
	case bool, int, int32, int64, float32, float64, json.Number:
		return fmt.Sprint(v), nil
	case nil:
		return nil, errCoerce
	default:
		return nil, errCoerce
	}
}
