// Copyright 2018 The Solid Core Data Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package rowschema

import (
	"github.com/cockroachdb/errors"

	"github.com/solidcoredata/rowengine/rowinfo"
)

// NewDecodeFunc compiles a DecodeFunc for info: it walks info.ValueColumns
// in declared order, decoding each with its value-regime codec (the last
// column in the group decoded with isLast=true, per spec.md §4.1's "the
// last column in a group omits length"), and marks each column clean on
// dst via rowinfo.Row.SetDecoded (spec.md §3: "decode paths set clean on
// every decoded column").
func NewDecodeFunc(info *rowinfo.RowInfo) DecodeFunc {
	cols := info.ValueColumns
	return func(value []byte, dst *rowinfo.Row) error {
		off := 0
		for i, col := range cols {
			isLast := i == len(cols)-1
			v, err := col.ValueCodec.Decode(value, &off, len(value), isLast)
			if err != nil {
				return errors.Wrapf(err, "rowschema: %s: decoding column %q", info.Name, col.Name)
			}
			dst.SetDecoded(col.Number(), v)
		}
		return nil
	}
}

// EncodeValue encodes row's value columns (spec.md §6 "Primary value:
// [varlen schemaVersion][value-column bytes per codecs in
// rowInfo(version)]"), prefixed with schemaVersion's PF framing.
func EncodeValue(info *rowinfo.RowInfo, row *rowinfo.Row, schemaVersion uint64) ([]byte, error) {
	cols := info.ValueColumns
	sizes := make([]int, len(cols))
	total := 0
	values := make([]interface{}, len(cols))
	for i, col := range cols {
		v, err := row.GetByNumber(col.Number())
		if err != nil {
			return nil, errors.Wrapf(err, "rowschema: %s: encoding column %q", info.Name, col.Name)
		}
		values[i] = v
		extra, err := col.ValueCodec.EncodeSize(v)
		if err != nil {
			return nil, errors.Wrapf(err, "rowschema: %s: sizing column %q", info.Name, col.Name)
		}
		sizes[i] = col.ValueCodec.MinSize() + extra
		total += sizes[i]
	}

	body := make([]byte, total)
	off := 0
	for i, col := range cols {
		isLast := i == len(cols)-1
		if err := col.ValueCodec.Encode(values[i], body, &off, isLast); err != nil {
			return nil, errors.Wrapf(err, "rowschema: %s: encoding column %q", info.Name, col.Name)
		}
	}
	return EncodeSchemaVersion(schemaVersion, body[:off]), nil
}

// EncodeKey encodes row's key columns as the lexicographic, order
// preserving primary key bytes (spec.md §6 "Primary key: concatenated
// lexicographic codecs of key columns in declared order").
func EncodeKey(info *rowinfo.RowInfo, row *rowinfo.Row) ([]byte, error) {
	cols := info.KeyColumns
	sizes := make([]int, len(cols))
	total := 0
	values := make([]interface{}, len(cols))
	for i, col := range cols {
		if col.LexCodec == nil {
			return nil, errors.Newf("rowschema: %s: key column %q has no lex codec", info.Name, col.Name)
		}
		v, err := row.GetByNumber(col.Number())
		if err != nil {
			return nil, errors.Wrapf(err, "rowschema: %s: encoding key column %q", info.Name, col.Name)
		}
		values[i] = v
		extra, err := col.LexCodec.EncodeSize(v)
		if err != nil {
			return nil, errors.Wrapf(err, "rowschema: %s: sizing key column %q", info.Name, col.Name)
		}
		sizes[i] = col.LexCodec.MinSize() + extra
		total += sizes[i]
	}
	key := make([]byte, total)
	off := 0
	for i, col := range cols {
		if err := col.LexCodec.Encode(values[i], key, &off, false); err != nil {
			return nil, errors.Wrapf(err, "rowschema: %s: encoding key column %q", info.Name, col.Name)
		}
	}
	return key[:off], nil
}

// DecodeKey decodes keyBytes (as produced by EncodeKey) into dst's key
// columns.
func DecodeKey(info *rowinfo.RowInfo, keyBytes []byte, dst *rowinfo.Row) error {
	off := 0
	for _, col := range info.KeyColumns {
		if col.LexCodec == nil {
			return errors.Newf("rowschema: %s: key column %q has no lex codec", info.Name, col.Name)
		}
		v, err := col.LexCodec.Decode(keyBytes, &off, len(keyBytes), false)
		if err != nil {
			return errors.Wrapf(err, "rowschema: %s: decoding key column %q", info.Name, col.Name)
		}
		dst.SetDecoded(col.Number(), v)
	}
	return nil
}
