package value

import (
	"fmt"
	"math"
	"slices"
)

// Value is a sealed interface representing storable values.
// Only Null, String, Int, Float, Bool, Array and Object implement it.
type Value interface {
	value() // Sealed - only these types implement it
}

// Null represents an explicit null.
// A nil Value and Null are both treated as "absent" by the codec.
type Null struct{}

func (Null) value() {}

// String represents a string value.
type String string

func (String) value() {}

// Int represents an integer value.
type Int int64

func (Int) value() {}

// Float represents a finite floating point value.
// NaN and infinities cannot be encoded and are rejected by FromAny and Marshal.
type Float float64

func (Float) value() {}

// Bool represents a boolean value.
type Bool bool

func (Bool) value() {}

// Array represents an ordered sequence of values.
type Array []Value

func (Array) value() {}

// Object represents a mapping of string keys to values.
// Use SortedKeys() for deterministic iteration.
type Object map[string]Value

func (Object) value() {}

// IsAbsent reports whether v carries no payload (nil or Null).
func IsAbsent(v Value) bool {
	if v == nil {
		return true
	}
	_, ok := v.(Null)
	return ok
}

// IsStructured reports whether v is an Array or an Object.
func IsStructured(v Value) bool {
	switch v.(type) {
	case Array, Object:
		return true
	default:
		return false
	}
}

// SortedKeys returns keys ordered by UTF-16 code units.
func (obj Object) SortedKeys() []string {
	keys := make([]string, 0, len(obj))
	for k := range obj {
		keys = append(keys, k)
	}
	slices.SortFunc(keys, compareUTF16)
	return keys
}

// FromAny converts a plain Go value into a Value.
// It accepts the shapes produced by encoding/json and yaml.v3 decoding:
// nil, bool, string, signed/unsigned integers, floats, []any,
// map[string]any and map[any]any with string keys.
func FromAny(v any) (Value, error) {
	switch val := v.(type) {
	case nil:
		return Null{}, nil
	case Value:
		return Clone(val), nil
	case bool:
		return Bool(val), nil
	case string:
		return String(val), nil
	case int:
		return Int(val), nil
	case int8:
		return Int(val), nil
	case int16:
		return Int(val), nil
	case int32:
		return Int(val), nil
	case int64:
		return Int(val), nil
	case uint:
		if uint64(val) > math.MaxInt64 {
			return nil, fmt.Errorf("integer out of int64 range: %d", val)
		}
		return Int(val), nil
	case uint8:
		return Int(val), nil
	case uint16:
		return Int(val), nil
	case uint32:
		return Int(val), nil
	case uint64:
		if val > math.MaxInt64 {
			return nil, fmt.Errorf("integer out of int64 range: %d", val)
		}
		return Int(val), nil
	case float32:
		return floatValue(float64(val))
	case float64:
		return floatValue(val)
	case []any:
		arr := make(Array, len(val))
		for i, elem := range val {
			conv, err := FromAny(elem)
			if err != nil {
				return nil, fmt.Errorf("array[%d]: %w", i, err)
			}
			arr[i] = conv
		}
		return arr, nil
	case map[string]any:
		obj := make(Object, len(val))
		for k, elem := range val {
			conv, err := FromAny(elem)
			if err != nil {
				return nil, fmt.Errorf("object[%q]: %w", k, err)
			}
			obj[k] = conv
		}
		return obj, nil
	case map[any]any:
		obj := make(Object, len(val))
		for k, elem := range val {
			ks, ok := k.(string)
			if !ok {
				return nil, fmt.Errorf("object key %v: must be a string, got %T", k, k)
			}
			conv, err := FromAny(elem)
			if err != nil {
				return nil, fmt.Errorf("object[%q]: %w", ks, err)
			}
			obj[ks] = conv
		}
		return obj, nil
	default:
		return nil, fmt.Errorf("unsupported type: %T", v)
	}
}

func floatValue(f float64) (Value, error) {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return nil, fmt.Errorf("non-finite float: %v", f)
	}
	return Float(f), nil
}

// ToAny converts v into plain Go values (nil, bool, string, int64, float64,
// []any, map[string]any). The result shares no memory with v.
func ToAny(v Value) any {
	switch val := v.(type) {
	case nil, Null:
		return nil
	case String:
		return string(val)
	case Int:
		return int64(val)
	case Float:
		return float64(val)
	case Bool:
		return bool(val)
	case Array:
		out := make([]any, len(val))
		for i, elem := range val {
			out[i] = ToAny(elem)
		}
		return out
	case Object:
		out := make(map[string]any, len(val))
		for k, elem := range val {
			out[k] = ToAny(elem)
		}
		return out
	default:
		return nil
	}
}
