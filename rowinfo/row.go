// Copyright 2018 The Solid Core Data Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package rowinfo

import (
	"github.com/cockroachdb/errors"
)

// ColumnState is the 2-bit per-column state packed into a Row's state words,
// per spec.md §3.
type ColumnState uint8

const (
	StateUnset ColumnState = 0x0 // 00: no value; reading is an error.
	StateClean ColumnState = 0x1 // 01: a decode path filled the column.
	StateDirty ColumnState = 0x3 // 11: a mutator set the column since the last decode.
)

const (
	bitsPerColumn   = 2
	columnsPerWord  = 32 / bitsPerColumn
	columnStateMask = uint32(0x3)
)

// Row is an open record matching a RowInfo: one value slot per column plus a
// packed 2-bit state per column (16 columns per 32-bit word), so that a
// partially-decoded or partially-mutated row can always answer "is this
// column safe to read".
type Row struct {
	Info   *RowInfo
	values []interface{}
	state  []uint32
}

// NewRow allocates an empty row shaped by info; every column starts unset.
func NewRow(info *RowInfo) *Row {
	return &Row{
		Info:   info,
		values: make([]interface{}, info.NumColumns()),
		state:  make([]uint32, info.stateWords()),
	}
}

func (r *Row) stateOf(n int) ColumnState {
	word := r.state[n/columnsPerWord]
	shift := uint(n%columnsPerWord) * bitsPerColumn
	return ColumnState((word >> shift) & columnStateMask)
}

func (r *Row) setStateOf(n int, s ColumnState) {
	wordIdx := n / columnsPerWord
	shift := uint(n%columnsPerWord) * bitsPerColumn
	r.state[wordIdx] &^= columnStateMask << shift
	r.state[wordIdx] |= uint32(s) << shift
}

// State reports the state of a column by name.
func (r *Row) State(name string) (ColumnState, error) {
	c, ok := r.Info.Column(name)
	if !ok {
		return StateUnset, errors.Newf("rowinfo: %s: no such column %q", r.Info.Name, name)
	}
	return r.stateOf(c.Number()), nil
}

// Get returns the current value of a column. It fails if the column has
// never been decoded or set (spec.md §3: "an unset required column causes a
// failure when used").
func (r *Row) Get(name string) (interface{}, error) {
	c, ok := r.Info.Column(name)
	if !ok {
		return nil, errors.Newf("rowinfo: %s: no such column %q", r.Info.Name, name)
	}
	if r.stateOf(c.Number()) == StateUnset {
		return nil, errors.WithDetailf(
			errors.Newf("rowinfo: %s: column %q is unset", r.Info.Name, name),
			"row type: %s", r.Info.Name)
	}
	return r.values[c.Number()], nil
}

// GetByNumber is the column-number equivalent of Get, used by rowschema's
// EncodeValue/EncodeKey, which address columns by stable number rather than
// name.
func (r *Row) GetByNumber(n int) (interface{}, error) {
	if r.stateOf(n) == StateUnset {
		c, _ := r.Info.ColumnByNumber(n)
		return nil, errors.Newf("rowinfo: %s: column %q is unset", r.Info.Name, c.Name)
	}
	return r.values[n], nil
}

// Set installs a new value for a column and marks it dirty: a mutator always
// sets dirty, per spec.md §3, regardless of the column's previous state.
func (r *Row) Set(name string, v interface{}) error {
	c, ok := r.Info.Column(name)
	if !ok {
		return errors.Newf("rowinfo: %s: no such column %q", r.Info.Name, name)
	}
	r.values[c.Number()] = v
	r.setStateOf(c.Number(), StateDirty)
	return nil
}

// SetDecoded installs a value produced by a decode path and marks the column
// clean, per spec.md §3: "decode paths set clean on every decoded column".
func (r *Row) SetDecoded(n int, v interface{}) {
	r.values[n] = v
	r.setStateOf(n, StateClean)
}

// Reset clears every column back to unset, for reuse across scan iterations.
func (r *Row) Reset() {
	for i := range r.values {
		r.values[i] = nil
	}
	for i := range r.state {
		r.state[i] = 0
	}
}

// IsDirty reports whether any column has been mutated since the row was last
// fully clean.
func (r *Row) IsDirty() bool {
	for n := 0; n < r.Info.NumColumns(); n++ {
		if r.stateOf(n) == StateDirty {
			return true
		}
	}
	return false
}
