// Copyright 2018 The Solid Core Data Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package rowschema

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/solidcoredata/rowengine/rowcodec"
	"github.com/solidcoredata/rowengine/rowinfo"
)

func buildRowInfo(t *testing.T, valueCols ...rowinfo.ColumnInfo) *rowinfo.RowInfo {
	t.Helper()
	tc := rowcodec.NewTypeCode(rowcodec.PlainInt64, false, false, false, false)
	codec, err := rowcodec.NewPrimitiveCodec(tc, false)
	require.NoError(t, err)
	ri, err := rowinfo.NewRowInfo("widget",
		[]rowinfo.ColumnInfo{{Name: "id", TypeCode: tc, ValueCodec: codec}}, valueCols)
	require.NoError(t, err)
	return ri
}

func valCol(t *testing.T, name string, plain rowcodec.PlainType) rowinfo.ColumnInfo {
	t.Helper()
	tc := rowcodec.NewTypeCode(plain, true, false, false, false)
	codec, err := rowcodec.NewPrimitiveCodec(tc, false)
	require.NoError(t, err)
	return rowinfo.ColumnInfo{Name: name, TypeCode: tc, ValueCodec: codec}
}

func TestEvolveDetectsAddedColumn(t *testing.T) {
	prev := buildRowInfo(t, valCol(t, "a", rowcodec.PlainInt64))
	next := buildRowInfo(t, valCol(t, "a", rowcodec.PlainInt64), valCol(t, "b", rowcodec.PlainInt64))

	diff, err := Evolve(prev, next)
	require.NoError(t, err)
	require.Len(t, diff.Changes, 1)
	require.Equal(t, "b", diff.Changes[0].Name)
	require.True(t, diff.Changes[0].Added)
}

func TestEvolveDetectsRemovedColumn(t *testing.T) {
	prev := buildRowInfo(t, valCol(t, "a", rowcodec.PlainInt64), valCol(t, "b", rowcodec.PlainInt64))
	next := buildRowInfo(t, valCol(t, "a", rowcodec.PlainInt64))

	diff, err := Evolve(prev, next)
	require.NoError(t, err)
	require.Len(t, diff.Changes, 1)
	require.True(t, diff.Changes[0].Removed)
}

func TestEvolveRejectsKeyColumnTypeChange(t *testing.T) {
	tc1 := rowcodec.NewTypeCode(rowcodec.PlainInt64, false, false, false, false)
	tc2 := rowcodec.NewTypeCode(rowcodec.PlainInt32, false, false, false, false)
	codec1, err := rowcodec.NewPrimitiveCodec(tc1, false)
	require.NoError(t, err)
	codec2, err := rowcodec.NewPrimitiveCodec(tc2, false)
	require.NoError(t, err)

	prev, err := rowinfo.NewRowInfo("widget", []rowinfo.ColumnInfo{{Name: "id", TypeCode: tc1, ValueCodec: codec1}}, nil)
	require.NoError(t, err)
	next, err := rowinfo.NewRowInfo("widget", []rowinfo.ColumnInfo{{Name: "id", TypeCode: tc2, ValueCodec: codec2}}, nil)
	require.NoError(t, err)

	_, err = Evolve(prev, next)
	require.Error(t, err)
}
