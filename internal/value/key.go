package value

import (
	"cmp"
	"fmt"
	"math"
	"strconv"
	"unicode/utf16"
)

// Key is the subset of Value usable as a primary key.
// Only String, Int and Float implement it.
type Key interface {
	Value
	key()
}

func (String) key() {}
func (Int) key()    {}
func (Float) key()  {}

// AsKey returns v as a Key when its kind can be used as one.
func AsKey(v Value) (Key, bool) {
	k, ok := v.(Key)
	return k, ok
}

// ParseKey interprets a command-line style key: integer literals become Int,
// anything else becomes String.
func ParseKey(s string) Key {
	if n, err := strconv.ParseInt(s, 10, 64); err == nil {
		return Int(n)
	}
	return String(s)
}

// FormatKey renders a key for logs and text output.
func FormatKey(k Key) string {
	switch kv := k.(type) {
	case String:
		return string(kv)
	case Int:
		return strconv.FormatInt(int64(kv), 10)
	case Float:
		return strconv.FormatFloat(float64(kv), 'g', -1, 64)
	default:
		return fmt.Sprintf("%v", k)
	}
}

// CompareKeys orders keys: every number sorts before every string, numbers
// compare numerically (Int and Float are comparable), strings compare by
// UTF-16 code units.
func CompareKeys(a, b Key) int {
	an, aNum := numeric(a)
	bn, bNum := numeric(b)

	switch {
	case aNum && bNum:
		ai, aInt := a.(Int)
		bi, bInt := b.(Int)
		switch {
		case aInt && bInt:
			return cmp.Compare(ai, bi)
		case aInt:
			return compareIntFloat(int64(ai), bn)
		case bInt:
			return -compareIntFloat(int64(bi), an)
		}
		return cmp.Compare(an, bn)
	case aNum:
		return -1
	case bNum:
		return 1
	}

	return compareUTF16(string(a.(String)), string(b.(String)))
}

func numeric(k Key) (float64, bool) {
	switch kv := k.(type) {
	case Int:
		return float64(kv), true
	case Float:
		return float64(kv), true
	default:
		return 0, false
	}
}

// compareIntFloat compares exactly; converting i to float64 would round
// integers near 2^63 up to 2^63.
func compareIntFloat(i int64, f float64) int {
	switch {
	case f >= 1<<63:
		return -1
	case f < -(1 << 63):
		return 1
	}
	fl := math.Floor(f)
	if c := cmp.Compare(i, int64(fl)); c != 0 {
		return c
	}
	if f > fl {
		return -1
	}
	return 0
}

// compareUTF16 compares strings using UTF-16 code unit ordering.
// Go's default string comparison uses UTF-8 bytes, which orders characters
// above U+FFFF differently from the U+E000-U+FFFF range.
func compareUTF16(a, b string) int {
	a16 := utf16.Encode([]rune(a))
	b16 := utf16.Encode([]rune(b))

	n := min(len(a16), len(b16))
	for i := 0; i < n; i++ {
		if a16[i] != b16[i] {
			return cmp.Compare(a16[i], b16[i])
		}
	}
	return cmp.Compare(len(a16), len(b16))
}
