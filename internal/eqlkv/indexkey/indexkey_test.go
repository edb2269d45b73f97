package indexkey_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kvquery/eql/internal/eqlkv/codec"
	"github.com/kvquery/eql/internal/eqlkv/indexkey"
	"github.com/kvquery/eql/internal/value"
)

func TestBuildSplitRoundTrip(t *testing.T) {
	c1 := codec.Encode("John Doe")
	c2 := codec.Encode(float64(43))
	rk := codec.Encode("key1")

	key := indexkey.Build([][]byte{c1, c2}, rk)
	comps, recKey, err := indexkey.Split(key, 2)
	require.NoError(t, err)
	require.Len(t, comps, 2)

	v1, err := codec.Decode(comps[0])
	require.NoError(t, err)
	assert.Equal(t, "John Doe", v1)

	v2, err := codec.Decode(comps[1])
	require.NoError(t, err)
	assert.Equal(t, float64(43), v2)

	rkv, err := codec.Decode(recKey)
	require.NoError(t, err)
	assert.Equal(t, "key1", rkv)
}

func TestPrefixBounds(t *testing.T) {
	c1 := codec.Encode("John Doe")
	lo, hi := indexkey.Prefix([][]byte{c1})
	require.NotNil(t, hi)
	assert.True(t, hi[len(hi)-1] == 0x01)
	assert.Equal(t, lo[:len(lo)-1], hi[:len(hi)-1])

	loEmpty, hiEmpty := indexkey.Prefix(nil)
	assert.Empty(t, loEmpty)
	assert.Nil(t, hiEmpty)
}

func TestNullComponentIsWildcardSpelling(t *testing.T) {
	// A null component value is how "unconstrained at this level" is
	// spelled (spec.md §4.2); it still encodes deterministically.
	c := codec.Encode(nil)
	key := indexkey.Build([][]byte{c}, codec.Encode("k"))
	comps, rk, err := indexkey.Split(key, 1)
	require.NoError(t, err)
	v, err := codec.Decode(comps[0])
	require.NoError(t, err)
	assert.Nil(t, v)
	rkv, err := codec.Decode(rk)
	require.NoError(t, err)
	assert.Equal(t, "k", rkv)
	_ = value.Value(nil)
}

func TestComponentContainingRawZeroBytesDoesNotConfuseSeparator(t *testing.T) {
	// float64(0)'s order-preserving encoding is 0x04 0x80 0x00 0x00 0x00
	// 0x00 0x00 0x00 0x00 -- full of raw zero bytes that must not be
	// mistaken for index-key separators.
	c1 := codec.Encode(float64(0))
	c2 := codec.Encode(float64(1))
	rk := codec.Encode("zero-key")
	key := indexkey.Build([][]byte{c1, c2}, rk)
	comps, recKey, err := indexkey.Split(key, 2)
	require.NoError(t, err)
	v1, err := codec.Decode(comps[0])
	require.NoError(t, err)
	assert.Equal(t, float64(0), v1)
	v2, err := codec.Decode(comps[1])
	require.NoError(t, err)
	assert.Equal(t, float64(1), v2)
	rkv, err := codec.Decode(recKey)
	require.NoError(t, err)
	assert.Equal(t, "zero-key", rkv)
}
