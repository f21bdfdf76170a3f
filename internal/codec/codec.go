// Package codec normalizes caller values into stored records and back.
//
// Records use an explicit tag instead of shape detection: a caller's object
// that happens to carry both "id" and "value" fields is stored as a raw
// payload and returned untouched.
package codec

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/roach88/tablestore/internal/value"
)

// Kind discriminates how a Record holds its payload.
type Kind string

const (
	// KindWrapped holds a primitive payload as {id, value}.
	KindWrapped Kind = "wrapped"
	// KindRaw holds a structured payload (object or array) as its own copy.
	KindRaw Kind = "raw"
)

// ErrInvalidRecord is returned by Decode for malformed stored records.
var ErrInvalidRecord = errors.New("invalid record")

// Record is the canonical stored shape.
// ID always equals the key the record is stored under.
type Record struct {
	ID    value.Key
	Kind  Kind
	Value value.Value
}

// Wrap normalizes v into a Record. It returns false when v is absent (nil or
// Null); the caller treats that as a no-op store.
//
// Structured values are deep-copied so later mutation by the caller cannot
// reach the record. Primitives are wrapped as {id: v, value: v}; ID is left
// nil when v cannot serve as a key (e.g. a Bool) and is set by the caller.
func Wrap(v value.Value) (Record, bool) {
	if value.IsAbsent(v) {
		return Record{}, false
	}
	if value.IsStructured(v) {
		return Record{Kind: KindRaw, Value: value.Clone(v)}, true
	}
	id, _ := value.AsKey(v)
	return Record{ID: id, Kind: KindWrapped, Value: v}, true
}

// Unwrap returns the caller-facing value of r. Structured payloads are copied
// so the caller never holds the record's object graph.
func Unwrap(r Record) value.Value {
	if r.Kind == KindWrapped {
		return r.Value
	}
	return value.Clone(r.Value)
}

// storedRecord is the JSON envelope written to the Engine.
type storedRecord struct {
	ID    json.RawMessage `json:"id"`
	Kind  Kind            `json:"kind"`
	Value json.RawMessage `json:"value"`
}

// Encode serializes r as deterministic JSON:
//
//	{"id":<key>,"kind":"raw"|"wrapped","value":<payload>}
func Encode(r Record) ([]byte, error) {
	if r.ID == nil {
		return nil, fmt.Errorf("encode record: %w: missing id", ErrInvalidRecord)
	}
	if r.Kind != KindRaw && r.Kind != KindWrapped {
		return nil, fmt.Errorf("encode record: %w: unknown kind %q", ErrInvalidRecord, r.Kind)
	}

	idJSON, err := value.Marshal(r.ID)
	if err != nil {
		return nil, fmt.Errorf("encode record id: %w", err)
	}
	valJSON, err := value.Marshal(r.Value)
	if err != nil {
		return nil, fmt.Errorf("encode record value: %w", err)
	}

	// Field order is fixed (id, kind, value) so output is byte-stable.
	var buf bytes.Buffer
	buf.WriteString(`{"id":`)
	buf.Write(idJSON)
	buf.WriteString(`,"kind":"`)
	buf.WriteString(string(r.Kind))
	buf.WriteString(`","value":`)
	buf.Write(valJSON)
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// Decode parses bytes produced by Encode.
func Decode(data []byte) (Record, error) {
	var sr storedRecord
	if err := json.Unmarshal(data, &sr); err != nil {
		return Record{}, fmt.Errorf("decode record: %w: %v", ErrInvalidRecord, err)
	}
	if sr.Kind != KindRaw && sr.Kind != KindWrapped {
		return Record{}, fmt.Errorf("decode record: %w: unknown kind %q", ErrInvalidRecord, sr.Kind)
	}
	if len(sr.ID) == 0 {
		return Record{}, fmt.Errorf("decode record: %w: missing id", ErrInvalidRecord)
	}

	idVal, err := value.Unmarshal(sr.ID)
	if err != nil {
		return Record{}, fmt.Errorf("decode record id: %w", err)
	}
	id, ok := value.AsKey(idVal)
	if !ok {
		return Record{}, fmt.Errorf("decode record: %w: id of type %T is not a key", ErrInvalidRecord, idVal)
	}

	var payload value.Value = value.Null{}
	if len(sr.Value) > 0 {
		payload, err = value.Unmarshal(sr.Value)
		if err != nil {
			return Record{}, fmt.Errorf("decode record value: %w", err)
		}
	}
	if sr.Kind == KindRaw && !value.IsStructured(payload) {
		return Record{}, fmt.Errorf("decode record: %w: raw payload of type %T", ErrInvalidRecord, payload)
	}

	return Record{ID: id, Kind: sr.Kind, Value: payload}, nil
}
