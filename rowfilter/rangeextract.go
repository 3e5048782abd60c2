// Copyright 2018 The Solid Core Data Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package rowfilter

// Range is one triple produced by MultiRangeExtract, per spec.md §4.2:
// "(remainder, low, high) where low and high are conjunctions over
// key-column prefix equalities and a single terminating inequality, and
// remainder is the rest of the conjunct that must be evaluated per row."
//
// KeyPrefix holds the leading key columns pinned to an exact argument by
// equality, in key-column order. HasLow/HasHigh and the matching Op/ArgNum
// describe the inequality that terminates the prefix on each side; if
// neither is set the range is an exact match on KeyPrefix alone (spec.md
// §8's "Disjoint equality" property: low and high both equal encode(?0)
// with inclusive=true).
type Range struct {
	Remainder Filter
	KeyPrefix []ColumnToArg

	HasLow  bool
	LowOp   Op // OpGE or OpGT
	LowArg  int

	HasHigh bool
	HighOp  Op // OpLE or OpLT
	HighArg int
}

// LowInclusive reports whether the low bound, if any, includes its boundary
// key.
func (r Range) LowInclusive() bool { return !r.HasLow || r.LowOp == OpGE }

// HighInclusive reports whether the high bound, if any, includes its
// boundary key.
func (r Range) HighInclusive() bool { return !r.HasHigh || r.HighOp == OpLE }

// IsExactMatch reports whether the range pins every key column to an
// equality argument with no open inequality on either side.
func (r Range) IsExactMatch(keyColumns []string) bool {
	return !r.HasLow && !r.HasHigh && len(r.KeyPrefix) == len(keyColumns)
}

// MultiRangeExtract walks f — which must already be in DNF (Or of
// And-of-leaves, a bare And, or a single leaf) — and produces one Range per
// DNF term, per spec.md §4.2. Tie-break rule: an equality binding on a
// shorter prefix always wins over an inequality on the same column (i.e.
// equality always continues the prefix; only the first non-equality
// constraint on the next unconstrained key column becomes the terminator).
func MultiRangeExtract(keyColumns []string, f Filter) []Range {
	terms := dnfConjunctions(f)
	ranges := make([]Range, 0, len(terms))
	for _, leaves := range terms {
		ranges = append(ranges, extractOne(keyColumns, leaves))
	}
	return ranges
}

// dnfConjunctions flattens f (assumed already Reduce'd/Dnf'd) into its
// top-level list of conjunctions, each itself a flat list of leaves.
func dnfConjunctions(f Filter) [][]Filter {
	switch v := f.(type) {
	case Or:
		out := make([][]Filter, 0, len(v.Children))
		for _, c := range v.Children {
			out = append(out, conjunctionLeaves(c))
		}
		return out
	default:
		return [][]Filter{conjunctionLeaves(f)}
	}
}

func conjunctionLeaves(f Filter) []Filter {
	switch v := f.(type) {
	case And:
		return v.Children
	case True:
		return nil
	default:
		return []Filter{f}
	}
}

func extractOne(keyColumns []string, leaves []Filter) Range {
	used := make([]bool, len(leaves))
	var r Range

	for _, keyCol := range keyColumns {
		eqIdx := -1
		for i, l := range leaves {
			if used[i] {
				continue
			}
			c, ok := l.(ColumnToArg)
			if ok && c.Column == keyCol && c.Op == OpEQ {
				eqIdx = i
				break
			}
		}
		if eqIdx == -1 {
			break // prefix stops at the first key column without a pinned equality
		}
		used[eqIdx] = true
		r.KeyPrefix = append(r.KeyPrefix, leaves[eqIdx].(ColumnToArg))
	}

	// The column immediately after the pinned prefix may carry a
	// terminating inequality on each side.
	if len(r.KeyPrefix) < len(keyColumns) {
		nextCol := keyColumns[len(r.KeyPrefix)]
		for i, l := range leaves {
			if used[i] {
				continue
			}
			c, ok := l.(ColumnToArg)
			if !ok || c.Column != nextCol {
				continue
			}
			switch c.Op {
			case OpGE, OpGT:
				if !r.HasLow {
					r.HasLow, r.LowOp, r.LowArg = true, c.Op, c.ArgNum
					used[i] = true
				}
			case OpLE, OpLT:
				if !r.HasHigh {
					r.HasHigh, r.HighOp, r.HighArg = true, c.Op, c.ArgNum
					used[i] = true
				}
			}
		}
	}

	var remainder []Filter
	for i, l := range leaves {
		if !used[i] {
			remainder = append(remainder, l)
		}
	}
	switch len(remainder) {
	case 0:
		r.Remainder = True{}
	case 1:
		r.Remainder = remainder[0]
	default:
		r.Remainder = And{Children: remainder}
	}
	return r
}
