// Copyright 2018 The Solid Core Data Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package rowfilter

// Split partitions f into a predicate that can be pushed to a derived
// table's source (the first return value) and one that must be evaluated
// post-materialization (the second), per spec.md §4.2 "Source/target split
// for derived tables": `split(sourceColumns, &out)` where `out[0]` is the
// pushed subset and `out[1]` the remainder.
//
// A leaf pushes only when every column it references is in sourceColumns.
// An And splits leaf-by-leaf. An Or (or any other node) pushes only as a
// whole — splitting a disjunction across the source/target boundary would
// change which rows it accepts, so a partially-source Or is kept entirely
// in the remainder.
func Split(sourceColumns []string, f Filter) (pushed, remainder Filter) {
	set := make(map[string]bool, len(sourceColumns))
	for _, c := range sourceColumns {
		set[c] = true
	}
	return split(set, f)
}

func split(source map[string]bool, f Filter) (pushed, remainder Filter) {
	switch v := f.(type) {
	case And:
		var pushedChildren, remainderChildren []Filter
		for _, c := range v.Children {
			p, r := split(source, c)
			if _, isTrue := p.(True); !isTrue {
				pushedChildren = append(pushedChildren, p)
			}
			if _, isTrue := r.(True); !isTrue {
				remainderChildren = append(remainderChildren, r)
			}
		}
		return combineAnd(pushedChildren), combineAnd(remainderChildren)
	default:
		if allColumnsIn(f, source) {
			return f, True{}
		}
		return True{}, f
	}
}

func allColumnsIn(f Filter, source map[string]bool) bool {
	cols := map[string]bool{}
	f.columns(cols)
	for c := range cols {
		if !source[c] {
			return false
		}
	}
	return true
}

func combineAnd(children []Filter) Filter {
	switch len(children) {
	case 0:
		return True{}
	case 1:
		return children[0]
	default:
		return And{Children: children}
	}
}
