package rrrarray

import (
	"testing"

	"github.com/rrrd/rrr/internal/rrrtype"
	"github.com/stretchr/testify/require"
)

func TestParseDefinition(t *testing.T) {
	defs, err := ParseDefinition("be2#a,le2#b,blob#c")
	require.NoError(t, err)
	require.Equal(t, []Definition{
		{Kind: rrrtype.KindBE, Width: 2, Tag: "a"},
		{Kind: rrrtype.KindLE, Width: 2, Tag: "b"},
		{Kind: rrrtype.KindBlob, Tag: "c"},
	}, defs)
}

func TestParseDefinition_UnknownKind(t *testing.T) {
	_, err := ParseDefinition("wat4#a")
	require.Error(t, err)
}

// Typed round-trip.
func TestArrayDecode_S1(t *testing.T) {
	a := NewArray()
	a.Append(rrrtype.NewIntegerValue(rrrtype.KindBE, 2, "", 33))
	a.Append(rrrtype.NewIntegerValue(rrrtype.KindLE, 2, "", 33))
	a.Append(rrrtype.NewBlobValue("", []byte("abcdefg")))
	a.Append(rrrtype.NewBlobValue("", []byte("gfedcba")))

	wire := Encode(nil, a)
	defs := []Definition{
		{Kind: rrrtype.KindBE, Width: 2},
		{Kind: rrrtype.KindLE, Width: 2},
		{Kind: rrrtype.KindBlob},
		{Kind: rrrtype.KindBlob},
	}
	decoded, n, err := Decode(wire, defs, rrrtype.DecodeOptions{})
	require.NoError(t, err)
	require.Equal(t, len(wire), n)

	require.Equal(t, uint64(33), decoded.Value(0).Uint64At(0))
	require.Equal(t, uint64(33), decoded.Value(1).Uint64At(0))
	require.Equal(t, "abcdefg", string(decoded.Value(2).Data))
	require.Equal(t, "gfedcba", string(decoded.Value(3).Data))
}

func TestArrayEqual(t *testing.T) {
	a := NewArray()
	a.Append(rrrtype.NewBlobValue("x", []byte("one")))
	b := NewArray()
	b.Append(rrrtype.NewBlobValue("x", []byte("one")))
	require.True(t, a.Equal(b))

	b.Append(rrrtype.NewBlobValue("y", []byte("two")))
	require.False(t, a.Equal(b))
}
