// Copyright 2018 The Solid Core Data Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package rowschema

import (
	"github.com/cockroachdb/errors"

	"github.com/solidcoredata/rowengine/rowinfo"
)

// ColumnChange describes one column's disposition between two schema
// versions.
type ColumnChange struct {
	Name      string
	Added     bool
	Removed   bool
	TypeDiffers bool
}

// Diff is the result of Evolve: what changed between two RowInfo versions
// of the same row type.
type Diff struct {
	Changes []ColumnChange
}

// Evolve validates that next is a legal successor schema to prev and
// reports what changed, per SPEC_FULL.md's supplemented schema-evolution
// feature: key columns must be unchanged (spec.md §3's "key columns... is
// an invariant of the row shape" — a table's physical key encoding can
// never change once rows exist under it), while value columns may be
// added, removed, or retyped.
func Evolve(prev, next *rowinfo.RowInfo) (Diff, error) {
	if len(prev.KeyColumns) != len(next.KeyColumns) {
		return Diff{}, errors.Newf("rowschema: %s: key column count changed from %d to %d", next.Name, len(prev.KeyColumns), len(next.KeyColumns))
	}
	for i := range prev.KeyColumns {
		p, n := prev.KeyColumns[i], next.KeyColumns[i]
		if p.Name != n.Name {
			return Diff{}, errors.Newf("rowschema: %s: key column %d renamed from %q to %q", next.Name, i, p.Name, n.Name)
		}
		if p.TypeCode != n.TypeCode {
			return Diff{}, errors.Newf("rowschema: %s: key column %q changed type code from %v to %v", next.Name, p.Name, p.TypeCode, n.TypeCode)
		}
	}

	prevVal := make(map[string]rowinfo.ColumnInfo, len(prev.ValueColumns))
	for _, c := range prev.ValueColumns {
		prevVal[c.Name] = c
	}
	nextVal := make(map[string]rowinfo.ColumnInfo, len(next.ValueColumns))
	for _, c := range next.ValueColumns {
		nextVal[c.Name] = c
	}

	var diff Diff
	for name, nc := range nextVal {
		pc, ok := prevVal[name]
		if !ok {
			diff.Changes = append(diff.Changes, ColumnChange{Name: name, Added: true})
			continue
		}
		if pc.TypeCode != nc.TypeCode {
			diff.Changes = append(diff.Changes, ColumnChange{Name: name, TypeDiffers: true})
		}
	}
	for name := range prevVal {
		if _, ok := nextVal[name]; !ok {
			diff.Changes = append(diff.Changes, ColumnChange{Name: name, Removed: true})
		}
	}
	return diff, nil
}
