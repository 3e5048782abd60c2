package rowcodec

import (
	"sort"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestStringCodecValueRoundTrip(t *testing.T) {
	tc := NewTypeCode(PlainUTF8, true, false, false, false)
	c, err := NewStringCodec(tc, false)
	require.NoError(t, err)

	for _, v := range []interface{}{"hello", "", "unicode: 日本語", nil} {
		buf := encodeOne(t, c, v)
		off := 0
		got, err := c.Decode(buf, &off, len(buf), true)
		require.NoError(t, err)
		require.Equal(t, off, len(buf))
		require.Equal(t, v, got)
	}
}

func TestStringCodecLexRoundTrip(t *testing.T) {
	tc := NewTypeCode(PlainUTF8, true, false, false, false)
	c, err := NewStringCodec(tc, true)
	require.NoError(t, err)

	for _, v := range []interface{}{"a", "ab", "abc", "", "hello world this is longer", nil} {
		buf := encodeOne(t, c, v)
		off := 0
		got, err := c.Decode(buf, &off, len(buf), true)
		require.NoError(t, err)
		require.Equal(t, len(buf), off)
		require.Equal(t, v, got)
	}
}

func TestStringCodecLexOrdering(t *testing.T) {
	tc := NewTypeCode(PlainUTF8, false, false, false, false)
	c, err := NewStringCodec(tc, true)
	require.NoError(t, err)

	words := []string{"", "a", "aa", "ab", "b", "ba", "z", "zz"}
	shuffled := append([]string(nil), words...)
	sort.Sort(sort.Reverse(sort.StringSlice(shuffled)))

	encoded := make([][]byte, len(shuffled))
	for i, w := range shuffled {
		encoded[i] = encodeOne(t, c, w)
	}
	sort.Slice(encoded, func(i, j int) bool {
		return CompareBytes(encoded[i], encoded[j]) < 0
	})
	for i, w := range words {
		off := 0
		got, err := c.Decode(encoded[i], &off, len(encoded[i]), true)
		require.NoError(t, err)
		require.Equal(t, w, got)
	}
}

func TestBase32768RoundTrip(t *testing.T) {
	inputs := [][]byte{
		{},
		{0x41},
		{0x41, 0x42},
		{0x00, 0xFF, 0x10, 0x20, 0x30},
		[]byte("the quick brown fox"),
	}
	for _, in := range inputs {
		dst := make([]byte, base32768Size(in))
		n := encodeBase32768(in, dst)
		require.Equal(t, len(dst), n)
		out, err := decodeBase32768(dst)
		require.NoError(t, err)
		require.Equal(t, in, out)
	}
}
