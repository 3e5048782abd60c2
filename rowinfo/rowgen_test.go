// Copyright 2018 The Solid Core Data Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package rowinfo

import (
	"reflect"
	"testing"

	"github.com/stretchr/testify/require"
)

type widgetRow struct {
	ID     int64  `row:"id,key"`
	Name   string `row:"name"`
	Hidden bool   `row:"internal_flag,hidden"`
	Skipped string `row:"-"`
}

func TestReflectBuildsRowInfo(t *testing.T) {
	ri, err := Reflect("widget", reflect.TypeOf(widgetRow{}))
	require.NoError(t, err)

	idCol, ok := ri.Column("id")
	require.True(t, ok)
	require.Equal(t, 0, idCol.Number())
	require.NotNil(t, idCol.LexCodec)

	nameCol, ok := ri.Column("name")
	require.True(t, ok)
	require.True(t, nameCol.TypeCode.Nullable() == false)

	_, ok = ri.Column("skipped")
	require.False(t, ok)

	flagCol, ok := ri.Column("internal_flag")
	require.True(t, ok)
	require.True(t, flagCol.Hidden)
}

type bigRow struct {
	ID     int64  `row:"id,key"`
	Amount []byte `row:"amount" rowtype:"bigdec"`
}

func TestReflectExplicitRowType(t *testing.T) {
	ri, err := Reflect("bigrow", reflect.TypeOf(bigRow{}))
	require.NoError(t, err)
	col, ok := ri.Column("amount")
	require.True(t, ok)
	require.Equal(t, uint8(0)+18, uint8(col.TypeCode.Plain()))
}
