// Copyright 2018 The Solid Core Data Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package rowscan

import (
	"github.com/cockroachdb/errors"

	"github.com/solidcoredata/rowengine/rowfilter"
	"github.com/solidcoredata/rowengine/rowinfo"
)

// encodeBounds renders one rowfilter.Range against info and the caller's
// runtime argument list into the key-byte bounds a cursor is seeded with,
// per spec.md §4.2's range triples feeding §4.4's "cursor restricted to
// [low, high]".
func encodeBounds(info *rowinfo.RowInfo, r rowfilter.Range, args []interface{}) (Bounds, error) {
	var prefix []byte
	for _, eq := range r.KeyPrefix {
		col, ok := info.Column(eq.Column)
		if !ok {
			return Bounds{}, errors.Newf("rowscan: %s: range references unknown key column %q", info.Name, eq.Column)
		}
		b, err := encodeLexArg(col, eq.ArgNum, args)
		if err != nil {
			return Bounds{}, err
		}
		prefix = append(prefix, b...)
	}

	bounds := Bounds{LowInclusive: true, HighInclusive: true}
	if len(prefix) > 0 {
		bounds.Low = append([]byte(nil), prefix...)
		bounds.High = append([]byte(nil), prefix...)
	}

	nextCol := len(r.KeyPrefix)
	if r.HasLow {
		col, ok := info.ColumnByNumber(nextCol)
		if !ok {
			return Bounds{}, errors.Newf("rowscan: %s: low bound references out-of-range key column %d", info.Name, nextCol)
		}
		b, err := encodeLexArg(col, r.LowArg, args)
		if err != nil {
			return Bounds{}, err
		}
		bounds.Low = append(append([]byte(nil), prefix...), b...)
		bounds.LowInclusive = r.LowOp == rowfilter.OpGE
	} else if len(prefix) == 0 {
		bounds.Low = nil
	}

	if r.HasHigh {
		col, ok := info.ColumnByNumber(nextCol)
		if !ok {
			return Bounds{}, errors.Newf("rowscan: %s: high bound references out-of-range key column %d", info.Name, nextCol)
		}
		b, err := encodeLexArg(col, r.HighArg, args)
		if err != nil {
			return Bounds{}, err
		}
		bounds.High = append(append([]byte(nil), prefix...), b...)
		bounds.HighInclusive = r.HighOp == rowfilter.OpLE
	} else if len(prefix) == 0 {
		bounds.High = nil
	}

	return bounds, nil
}

func encodeLexArg(col rowinfo.ColumnInfo, argNum int, args []interface{}) ([]byte, error) {
	if argNum < 0 || argNum >= len(args) {
		return nil, errors.Newf("rowscan: range references missing argument ?%d", argNum)
	}
	if col.LexCodec == nil {
		return nil, errors.Newf("rowscan: key column %q has no lex codec", col.Name)
	}
	extra, err := col.LexCodec.EncodeSize(args[argNum])
	if err != nil {
		return nil, errors.Wrapf(err, "rowscan: sizing bound argument for column %q", col.Name)
	}
	buf := make([]byte, col.LexCodec.MinSize()+extra)
	off := 0
	if err := col.LexCodec.Encode(args[argNum], buf, &off, false); err != nil {
		return nil, errors.Wrapf(err, "rowscan: encoding bound argument for column %q", col.Name)
	}
	return buf[:off], nil
}
