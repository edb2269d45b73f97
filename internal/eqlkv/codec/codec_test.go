package codec_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kvquery/eql/internal/eqlkv/codec"
	"github.com/kvquery/eql/internal/value"
)

func TestRoundTrip(t *testing.T) {
	cases := []value.Value{
		nil,
		true,
		false,
		float64(0),
		float64(-1),
		float64(43),
		-3.5,
		"",
		"hello",
		"with\x00null",
		value.Array{float64(1), "two", nil},
		value.Object{"name": "John", "age": float64(43)},
	}
	for _, v := range cases {
		enc := codec.Encode(v)
		got, err := codec.Decode(enc)
		require.NoError(t, err)
		assert.True(t, value.Equal(v, got), "round trip mismatch for %#v: got %#v", v, got)
	}
}

func TestEqualValuesByteEqual(t *testing.T) {
	a := value.Object{"x": float64(1), "y": "z"}
	b := value.Object{"y": "z", "x": float64(1)}
	assert.Equal(t, codec.Encode(a), codec.Encode(b))
}

func TestNumberOrderPreserving(t *testing.T) {
	nums := []float64{-100, -1.5, -1, 0, 1, 1.5, 100, 1e10}
	for i := 0; i < len(nums)-1; i++ {
		lo, hi := codec.Encode(nums[i]), codec.Encode(nums[i+1])
		assert.Negative(t, compareBytesHelper(lo, hi), "expected %v < %v", nums[i], nums[i+1])
	}
}

func TestStringOrderPreserving(t *testing.T) {
	strs := []string{"", "\x00", "\x00a", "a", "aa", "ab", "b"}
	for i := 0; i < len(strs)-1; i++ {
		lo, hi := codec.Encode(strs[i]), codec.Encode(strs[i+1])
		assert.Negative(t, compareBytesHelper(lo, hi), "expected %q < %q", strs[i], strs[i+1])
	}
}

func compareBytesHelper(a, b []byte) int {
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	for i := 0; i < n; i++ {
		if a[i] != b[i] {
			if a[i] < b[i] {
				return -1
			}
			return 1
		}
	}
	switch {
	case len(a) < len(b):
		return -1
	case len(a) > len(b):
		return 1
	default:
		return 0
	}
}

func TestCompare(t *testing.T) {
	assert.Negative(t, codec.Compare(float64(1), float64(2)))
	assert.Equal(t, 0, codec.Compare("same", "same"))
	assert.Positive(t, codec.Compare("b", "a"))
}
