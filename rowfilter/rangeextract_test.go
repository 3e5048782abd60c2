// Copyright 2018 The Solid Core Data Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package rowfilter

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"
)

func TestMultiRangeExtractSingleColumnInequality(t *testing.T) {
	f := mustParse(t, "k >= ?0 && k <= ?1")
	ranges := MultiRangeExtract([]string{"k"}, Reduce(f))
	require.Len(t, ranges, 1)
	r := ranges[0]
	require.True(t, r.HasLow)
	require.Equal(t, OpGE, r.LowOp)
	require.Equal(t, 0, r.LowArg)
	require.True(t, r.HasHigh)
	require.Equal(t, OpLE, r.HighOp)
	require.Equal(t, 1, r.HighArg)
	require.Equal(t, "true", r.Remainder.String())
}

func TestMultiRangeExtractDisjointEquality(t *testing.T) {
	f := mustParse(t, "k == ?0")
	ranges := MultiRangeExtract([]string{"k"}, Reduce(f))
	require.Len(t, ranges, 1)
	require.True(t, ranges[0].IsExactMatch([]string{"k"}))
	require.False(t, ranges[0].HasLow)
	require.False(t, ranges[0].HasHigh)
}

func TestMultiRangeExtractOrProducesMultipleRanges(t *testing.T) {
	f := mustParse(t, "k == ?0 || k == ?1")
	dnf, err := Dnf(Reduce(f))
	require.NoError(t, err)
	ranges := MultiRangeExtract([]string{"k"}, dnf)
	require.Len(t, ranges, 2)
	for _, r := range ranges {
		require.True(t, r.IsExactMatch([]string{"k"}))
	}
}

func TestMultiRangeExtractPrefixThenTerminator(t *testing.T) {
	f := mustParse(t, "a == ?0 && b > ?1 && c == ?2")
	ranges := MultiRangeExtract([]string{"a", "b", "c"}, Reduce(f))
	require.Len(t, ranges, 1)
	r := ranges[0]
	require.Len(t, r.KeyPrefix, 1)
	require.Equal(t, "a", r.KeyPrefix[0].Column)
	require.True(t, r.HasLow)
	require.Equal(t, OpGT, r.LowOp)
	require.Equal(t, 1, r.LowArg)
	// c == ?2 cannot extend the prefix past the open inequality on b, so it
	// is left in the remainder for per-row evaluation.
	require.Equal(t, "c == ?2", r.Remainder.String())
}

func TestMultiRangeExtractTwoColumnPrefixMatchesStructurally(t *testing.T) {
	f := mustParse(t, "a == ?0 && b == ?1")
	ranges := MultiRangeExtract([]string{"a", "b"}, Reduce(f))
	require.Len(t, ranges, 1)

	want := []ColumnToArg{
		{Column: "a", Op: OpEQ, ArgNum: 0},
		{Column: "b", Op: OpEQ, ArgNum: 1},
	}
	if diff := cmp.Diff(want, ranges[0].KeyPrefix); diff != "" {
		t.Fatalf("KeyPrefix mismatch (-want +got):\n%s", diff)
	}
}

func TestMultiRangeExtractUnconstrainedLeavesWideOpenRange(t *testing.T) {
	f := mustParse(t, "v == ?0")
	ranges := MultiRangeExtract([]string{"k"}, Reduce(f))
	require.Len(t, ranges, 1)
	r := ranges[0]
	require.Empty(t, r.KeyPrefix)
	require.False(t, r.HasLow)
	require.False(t, r.HasHigh)
	require.Equal(t, "v == ?0", r.Remainder.String())
}
