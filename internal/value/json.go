package value

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
)

// Marshal produces deterministic JSON for v:
//   - object keys sorted by UTF-16 code units
//   - no HTML escaping
//   - floats always carry a fraction or exponent so they decode back as Float
//   - nil encodes as null
//
// Two deep-equal values always marshal to identical bytes.
func Marshal(v Value) ([]byte, error) {
	var buf bytes.Buffer
	if err := marshalInto(&buf, v); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func marshalInto(buf *bytes.Buffer, v Value) error {
	switch val := v.(type) {
	case nil, Null:
		buf.WriteString("null")
	case String:
		return marshalString(buf, string(val))
	case Int:
		buf.WriteString(strconv.FormatInt(int64(val), 10))
	case Float:
		f := float64(val)
		if math.IsNaN(f) || math.IsInf(f, 0) {
			return fmt.Errorf("non-finite float: %v", f)
		}
		s := strconv.FormatFloat(f, 'g', -1, 64)
		if !strings.ContainsAny(s, ".eE") {
			s += ".0"
		}
		buf.WriteString(s)
	case Bool:
		if val {
			buf.WriteString("true")
		} else {
			buf.WriteString("false")
		}
	case Array:
		buf.WriteByte('[')
		for i, elem := range val {
			if i > 0 {
				buf.WriteByte(',')
			}
			if err := marshalInto(buf, elem); err != nil {
				return fmt.Errorf("array[%d]: %w", i, err)
			}
		}
		buf.WriteByte(']')
	case Object:
		buf.WriteByte('{')
		for i, k := range val.SortedKeys() {
			if i > 0 {
				buf.WriteByte(',')
			}
			if err := marshalString(buf, k); err != nil {
				return fmt.Errorf("key %q: %w", k, err)
			}
			buf.WriteByte(':')
			if err := marshalInto(buf, val[k]); err != nil {
				return fmt.Errorf("value for key %q: %w", k, err)
			}
		}
		buf.WriteByte('}')
	default:
		return fmt.Errorf("unknown Value type: %T", v)
	}
	return nil
}

// marshalString writes s as a JSON string without HTML escaping.
func marshalString(buf *bytes.Buffer, s string) error {
	var tmp bytes.Buffer
	enc := json.NewEncoder(&tmp)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(s); err != nil {
		return err
	}
	// json.Encoder adds a trailing newline
	buf.Write(bytes.TrimSuffix(tmp.Bytes(), []byte{'\n'}))
	return nil
}

// Unmarshal decodes JSON into a Value. Numbers without a fraction or exponent
// become Int; all others become Float. JSON null becomes Null.
func Unmarshal(data []byte) (Value, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()

	var raw any
	if err := dec.Decode(&raw); err != nil {
		return nil, err
	}
	if dec.More() {
		return nil, fmt.Errorf("unexpected data after JSON value")
	}
	return fromDecoded(raw)
}

// fromDecoded converts the output of a UseNumber decoder into a Value.
func fromDecoded(v any) (Value, error) {
	switch val := v.(type) {
	case json.Number:
		s := string(val)
		if !strings.ContainsAny(s, ".eE") {
			if n, err := val.Int64(); err == nil {
				return Int(n), nil
			}
		}
		f, err := val.Float64()
		if err != nil {
			return nil, fmt.Errorf("invalid number %s: %w", s, err)
		}
		return Float(f), nil
	case []any:
		arr := make(Array, len(val))
		for i, elem := range val {
			conv, err := fromDecoded(elem)
			if err != nil {
				return nil, fmt.Errorf("array[%d]: %w", i, err)
			}
			arr[i] = conv
		}
		return arr, nil
	case map[string]any:
		obj := make(Object, len(val))
		for k, elem := range val {
			conv, err := fromDecoded(elem)
			if err != nil {
				return nil, fmt.Errorf("object[%q]: %w", k, err)
			}
			obj[k] = conv
		}
		return obj, nil
	default:
		return FromAny(val)
	}
}

// MarshalJSON implements json.Marshaler for Null.
func (Null) MarshalJSON() ([]byte, error) {
	return []byte("null"), nil
}

// MarshalJSON implements json.Marshaler for Float.
func (f Float) MarshalJSON() ([]byte, error) {
	return Marshal(f)
}

// MarshalJSON implements json.Marshaler for Array with deterministic output.
func (arr Array) MarshalJSON() ([]byte, error) {
	return Marshal(arr)
}

// MarshalJSON implements json.Marshaler for Object with sorted keys.
func (obj Object) MarshalJSON() ([]byte, error) {
	return Marshal(obj)
}

// UnmarshalJSON implements json.Unmarshaler for Object.
func (obj *Object) UnmarshalJSON(data []byte) error {
	v, err := Unmarshal(data)
	if err != nil {
		return err
	}
	o, ok := v.(Object)
	if !ok {
		return fmt.Errorf("expected JSON object, got %T", v)
	}
	*obj = o
	return nil
}

// UnmarshalJSON implements json.Unmarshaler for Array.
func (arr *Array) UnmarshalJSON(data []byte) error {
	v, err := Unmarshal(data)
	if err != nil {
		return err
	}
	a, ok := v.(Array)
	if !ok {
		return fmt.Errorf("expected JSON array, got %T", v)
	}
	*arr = a
	return nil
}
