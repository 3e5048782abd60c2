package rowcodec

import (
	"math/big"
	"sort"
	"testing"

	"github.com/cockroachdb/apd/v3"
	"github.com/stretchr/testify/require"
)

func TestBigIntegerCodecLexOrdering(t *testing.T) {
	tc := NewTypeCode(PlainBigInteger, false, false, false, false)
	c, err := NewBigIntegerCodec(tc, true)
	require.NoError(t, err)

	values := []*big.Int{
		big.NewInt(-1000000),
		big.NewInt(-5),
		big.NewInt(0),
		big.NewInt(5),
		big.NewInt(1000000),
	}
	var encoded [][]byte
	for _, v := range values {
		encoded = append(encoded, encodeOne(t, c, v))
	}
	sorted := append([][]byte(nil), encoded...)
	sort.Slice(sorted, func(i, j int) bool { return CompareBytes(sorted[i], sorted[j]) < 0 })
	for i := range sorted {
		require.Equal(t, encoded[i], sorted[i])
	}
}

func TestBigIntegerCodecRoundTrip(t *testing.T) {
	tc := NewTypeCode(PlainBigInteger, true, false, false, false)
	c, err := NewBigIntegerCodec(tc, true)
	require.NoError(t, err)
	for _, v := range []interface{}{big.NewInt(0), big.NewInt(42), big.NewInt(-42), nil} {
		buf := encodeOne(t, c, v)
		off := 0
		got, err := c.Decode(buf, &off, len(buf), true)
		require.NoError(t, err)
		if v == nil {
			require.Nil(t, got)
			continue
		}
		require.Equal(t, 0, v.(*big.Int).Cmp(got.(*big.Int)))
	}
}

func TestBigDecimalCodecRoundTrip(t *testing.T) {
	tc := NewTypeCode(PlainBigDecimal, false, false, false, false)
	c, err := NewBigDecimalCodec(tc, true)
	require.NoError(t, err)
	for _, s := range []string{"0", "1.5", "-1.5", "1000", "0.0001", "-0.0001"} {
		d, _, err := apd.NewFromString(s)
		require.NoError(t, err)
		buf := encodeOne(t, c, d)
		off := 0
		got, err := c.Decode(buf, &off, len(buf), true)
		require.NoError(t, err)
		gd := got.(*apd.Decimal)
		wantF, err := d.Float64()
		require.NoError(t, err)
		gotF, err := gd.Float64()
		require.NoError(t, err)
		require.InDelta(t, wantF, gotF, 1e-12, "round trip %s got %s", s, gd.String())
	}
}

func TestBigDecimalCodecLexOrdering(t *testing.T) {
	tc := NewTypeCode(PlainBigDecimal, false, false, false, false)
	c, err := NewBigDecimalCodec(tc, true)
	require.NoError(t, err)

	inputs := []string{"-100", "-1.5", "-0.0001", "0", "0.0001", "1.5", "100"}
	var encoded [][]byte
	for _, s := range inputs {
		d, _, err := apd.NewFromString(s)
		require.NoError(t, err)
		encoded = append(encoded, encodeOne(t, c, d))
	}
	for i := 0; i < len(encoded)-1; i++ {
		require.Negative(t, CompareBytes(encoded[i], encoded[i+1]), "expected %s < %s", inputs[i], inputs[i+1])
	}
}
