package bolt

import (
	"bytes"
	"math"
	"slices"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/tablestore/internal/value"
)

func TestKeyRoundTrip(t *testing.T) {
	keys := []value.Key{
		value.Int(0), value.Int(-1), value.Int(math.MaxInt64), value.Int(math.MinInt64),
		value.Float(2.5), value.Float(-0.125), value.Float(1e300), value.Float(1 << 63),
		value.String(""), value.String("users"), value.String("é"),
	}
	for _, k := range keys {
		enc, err := encodeKey(k)
		require.NoError(t, err)
		back, err := decodeKey(enc)
		require.NoError(t, err)
		assert.Equal(t, k, back)
	}
}

func TestKeyIntegralFloatFoldsToInt(t *testing.T) {
	a, err := encodeKey(value.Float(2))
	require.NoError(t, err)
	b, err := encodeKey(value.Int(2))
	require.NoError(t, err)
	assert.Equal(t, a, b)

	back, err := decodeKey(a)
	require.NoError(t, err)
	assert.Equal(t, value.Int(2), back)
}

func TestKeyEncodingPreservesOrder(t *testing.T) {
	keys := []value.Key{
		value.String("b"), value.Int(3), value.String("a"), value.Float(-1.5),
		value.Int(1<<53 + 2), value.Int(1<<53 + 1), value.Int(-7), value.Float(2.5),
		value.String(""), value.Int(0), value.Float(1 << 63), value.Int(math.MaxInt64),
		value.Int(math.MinInt64), value.Float(-1e19),
	}

	expected := slices.Clone(keys)
	slices.SortFunc(expected, value.CompareKeys)

	byBytes := slices.Clone(keys)
	slices.SortFunc(byBytes, func(a, b value.Key) int {
		ea, _ := encodeKey(a)
		eb, _ := encodeKey(b)
		return bytes.Compare(ea, eb)
	})

	assert.Equal(t, expected, byBytes)
}

func TestKeyFloatAboveInt64SortsAfterInts(t *testing.T) {
	big, err := encodeKey(value.Float(1 << 63))
	require.NoError(t, err)

	for _, n := range []int64{math.MaxInt64, math.MaxInt64 - 100, 1<<62 + 1} {
		enc, err := encodeKey(value.Int(n))
		require.NoError(t, err)
		assert.Equal(t, -1, bytes.Compare(enc, big), "Int(%d)", n)
		assert.Equal(t, -1, value.CompareKeys(value.Int(n), value.Float(1<<63)), "Int(%d)", n)
	}

	huge, err := encodeKey(value.Float(1e19))
	require.NoError(t, err)
	assert.Equal(t, -1, bytes.Compare(big, huge))

	negative, err := encodeKey(value.Float(-1e19))
	require.NoError(t, err)
	minInt, err := encodeKey(value.Int(math.MinInt64))
	require.NoError(t, err)
	assert.Equal(t, -1, bytes.Compare(negative, minInt))
}

func TestDecodeKey_Errors(t *testing.T) {
	_, err := decodeKey(nil)
	assert.Error(t, err)
	_, err = decodeKey([]byte{0x99})
	assert.Error(t, err)
	_, err = decodeKey([]byte{tagNumber, 1, 2})
	assert.Error(t, err)
	bad := make([]byte, floatKeyLen)
	bad[0] = tagNumber
	_, err = decodeKey(bad)
	assert.Error(t, err)
	_, err = decodeKey([]byte{tagString, 0xff})
	assert.Error(t, err)
}

func TestEncodeKey_RejectsNonFinite(t *testing.T) {
	_, err := encodeKey(value.Float(math.Inf(1)))
	assert.Error(t, err)
}
