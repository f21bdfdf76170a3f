package bolt

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"math"
	"unicode/utf8"

	"github.com/roach88/tablestore/internal/value"
)

// Key encoding tags. Numbers sort before strings.
const (
	tagNumber byte = 0x10
	tagString byte = 0x20

	intKeyLen   = 17
	floatKeyLen = 18
)

var floatSuffix = []byte{0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff}

// encodeKey produces an order-preserving byte key.
//
// Numbers: tag + 8 bytes of sign-adjusted float64 bits. Int keys append the
// 8-byte sign-flipped big-endian int64, so integers that share a float64
// value still order correctly. Integral floats in int64 range are stored as
// Int so Float(2) and Int(2) name the same entry. Other floats append
// floatSuffix: the only Ints sharing a float's prefix are those rounding up
// to 2^63, and the all-0xFF tail keeps each of them first.
//
// Strings: tag + UTF-8 bytes.
func encodeKey(k value.Key) ([]byte, error) {
	switch kv := k.(type) {
	case value.Int:
		return encodeInt(int64(kv)), nil
	case value.Float:
		f := float64(kv)
		if math.IsNaN(f) || math.IsInf(f, 0) {
			return nil, fmt.Errorf("non-finite float key: %v", f)
		}
		if f == math.Trunc(f) && f >= math.MinInt64 && f < math.MaxInt64 {
			return encodeInt(int64(f)), nil
		}
		buf := make([]byte, floatKeyLen)
		buf[0] = tagNumber
		binary.BigEndian.PutUint64(buf[1:9], orderedFloat(f))
		copy(buf[9:], floatSuffix)
		return buf, nil
	case value.String:
		buf := make([]byte, 1+len(kv))
		buf[0] = tagString
		copy(buf[1:], kv)
		return buf, nil
	default:
		return nil, fmt.Errorf("unsupported key type %T", k)
	}
}

func encodeInt(n int64) []byte {
	buf := make([]byte, intKeyLen)
	buf[0] = tagNumber
	binary.BigEndian.PutUint64(buf[1:9], orderedFloat(float64(n)))
	binary.BigEndian.PutUint64(buf[9:], uint64(n)^(1<<63))
	return buf
}

// orderedFloat maps float64 bits so unsigned comparison matches numeric order.
func orderedFloat(f float64) uint64 {
	if f == 0 {
		f = 0 // fold -0 into +0
	}
	bits := math.Float64bits(f)
	if bits>>63 == 1 {
		return ^bits
	}
	return bits | 1<<63
}

func decodeKey(b []byte) (value.Key, error) {
	if len(b) == 0 {
		return nil, fmt.Errorf("empty key")
	}
	switch b[0] {
	case tagNumber:
		switch len(b) {
		case intKeyLen:
			return value.Int(int64(binary.BigEndian.Uint64(b[9:]) ^ (1 << 63))), nil
		case floatKeyLen:
			if !bytes.Equal(b[9:], floatSuffix) {
				return nil, fmt.Errorf("bad float key suffix")
			}
			bits := binary.BigEndian.Uint64(b[1:9])
			if bits>>63 == 1 {
				bits &^= 1 << 63
			} else {
				bits = ^bits
			}
			return value.Float(math.Float64frombits(bits)), nil
		default:
			return nil, fmt.Errorf("bad number key length %d", len(b))
		}
	case tagString:
		if !utf8.Valid(b[1:]) {
			return nil, fmt.Errorf("string key is not valid UTF-8")
		}
		return value.String(string(b[1:])), nil
	default:
		return nil, fmt.Errorf("unknown key tag 0x%02x", b[0])
	}
}
