// Copyright 2018 The Solid Core Data Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package rowinfo implements the row-shape side of spec.md §3: ColumnInfo,
// RowInfo and the open Row record with its packed 2-bit column state.
package rowinfo

import (
	"github.com/cockroachdb/errors"

	"github.com/solidcoredata/rowengine/rowcodec"
)

// ColumnInfo describes one column of a RowInfo: its name, type code, the
// value codec and (lazily, only when the column ever appears in a key or a
// secondary index) the lex codec, plus the two §3 flags that do not affect
// encoding: Hidden (not returned by SELECT *-equivalents) and AutoRange (the
// column is a generated identity/sequence column and is skipped on insert
// when unset).
type ColumnInfo struct {
	Name       string
	TypeCode   rowcodec.TypeCode
	ValueCodec rowcodec.Codec
	LexCodec   rowcodec.Codec
	Hidden     bool
	AutoRange  bool

	// number is this column's stable position, assigned by RowInfo: key
	// columns first in key order, then value columns in encode order.
	number int
}

// Number returns the column's stable position within its RowInfo, used to
// index the packed state words of a Row and the column-offset cache of a
// RowPredicate.
func (c ColumnInfo) Number() int { return c.number }

// RowInfo is the immutable shape of one table's rows: its key columns (an
// ordered prefix of the lexicographic sort order), its value columns, and
// the union of both, keyed by name and by stable column number.
type RowInfo struct {
	Name         string
	KeyColumns   []ColumnInfo
	ValueColumns []ColumnInfo

	byName   map[string]int // name -> index into allColumns
	allCols  []ColumnInfo   // keyColumns..., then valueColumns..., numbered in this order
}

// NewRowInfo validates and assembles a RowInfo from its key and value
// columns, per spec.md §3: key and value column names must be disjoint, and
// column numbers are assigned stably (keys first, then values in encode
// order).
func NewRowInfo(name string, keyColumns, valueColumns []ColumnInfo) (*RowInfo, error) {
	if len(keyColumns) == 0 {
		return nil, errors.Newf("rowinfo: %s: a RowInfo requires at least one key column", name)
	}
	ri := &RowInfo{
		Name:         name,
		KeyColumns:   append([]ColumnInfo(nil), keyColumns...),
		ValueColumns: append([]ColumnInfo(nil), valueColumns...),
	}
	ri.byName = make(map[string]int, len(ri.KeyColumns)+len(ri.ValueColumns))
	ri.allCols = make([]ColumnInfo, 0, len(ri.KeyColumns)+len(ri.ValueColumns))

	n := 0
	for i := range ri.KeyColumns {
		c := &ri.KeyColumns[i]
		if err := c.TypeCode.Validate(); err != nil {
			return nil, errors.Wrapf(err, "rowinfo: %s: key column %q", name, c.Name)
		}
		if _, dup := ri.byName[c.Name]; dup {
			return nil, errors.Newf("rowinfo: %s: duplicate column name %q", name, c.Name)
		}
		c.number = n
		n++
		ri.byName[c.Name] = len(ri.allCols)
		ri.allCols = append(ri.allCols, *c)
	}
	for i := range ri.ValueColumns {
		c := &ri.ValueColumns[i]
		if err := c.TypeCode.Validate(); err != nil {
			return nil, errors.Wrapf(err, "rowinfo: %s: value column %q", name, c.Name)
		}
		if _, dup := ri.byName[c.Name]; dup {
			return nil, errors.Newf("rowinfo: %s: column %q declared as both key and value, or twice", name, c.Name)
		}
		c.number = n
		n++
		ri.byName[c.Name] = len(ri.allCols)
		ri.allCols = append(ri.allCols, *c)
	}
	return ri, nil
}

// Column looks up a column by name, returning ok=false if the row shape has
// no such column. Dotted join paths are resolved one segment at a time by
// rowfilter; RowInfo itself only ever holds flat names.
func (ri *RowInfo) Column(name string) (ColumnInfo, bool) {
	idx, ok := ri.byName[name]
	if !ok {
		return ColumnInfo{}, false
	}
	return ri.allCols[idx], true
}

// ColumnByNumber returns the column assigned the given stable number.
func (ri *RowInfo) ColumnByNumber(n int) (ColumnInfo, bool) {
	if n < 0 || n >= len(ri.allCols) {
		return ColumnInfo{}, false
	}
	return ri.allCols[n], true
}

// All returns every column (key columns first, then value columns) in
// column-number order.
func (ri *RowInfo) All() []ColumnInfo { return ri.allCols }

// NumColumns returns the total column count, key plus value.
func (ri *RowInfo) NumColumns() int { return len(ri.allCols) }

// stateWords returns how many 32-bit words are needed to pack a 2-bit state
// per column, 16 columns per word, per spec.md §3.
func (ri *RowInfo) stateWords() int {
	n := len(ri.allCols)
	return (n + 15) / 16
}
