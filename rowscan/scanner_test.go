// Copyright 2018 The Solid Core Data Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package rowscan

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/solidcoredata/rowengine/rowcodec"
	"github.com/solidcoredata/rowengine/rowfilter"
	"github.com/solidcoredata/rowengine/rowinfo"
	"github.com/solidcoredata/rowengine/rowschema"
	"github.com/solidcoredata/rowengine/rowstore"
)

func widgetInfo(t *testing.T) *rowinfo.RowInfo {
	t.Helper()
	idTC := rowcodec.NewTypeCode(rowcodec.PlainInt64, false, false, false, false)
	idVal, err := rowcodec.NewPrimitiveCodec(idTC, false)
	require.NoError(t, err)
	idLex, err := rowcodec.NewPrimitiveCodec(idTC, true)
	require.NoError(t, err)

	nameTC := rowcodec.NewTypeCode(rowcodec.PlainUTF8, false, false, false, false)
	nameVal, err := rowcodec.NewStringCodec(nameTC, false)
	require.NoError(t, err)

	info, err := rowinfo.NewRowInfo("widget",
		[]rowinfo.ColumnInfo{{Name: "id", TypeCode: idTC, ValueCodec: idVal, LexCodec: idLex}},
		[]rowinfo.ColumnInfo{{Name: "name", TypeCode: nameTC, ValueCodec: nameVal}},
	)
	require.NoError(t, err)
	return info
}

func widgetRowValue(t *testing.T, info *rowinfo.RowInfo, id int64, name string) []byte {
	t.Helper()
	row := rowinfo.NewRow(info)
	require.NoError(t, row.Set("id", id))
	require.NoError(t, row.Set("name", name))
	value, err := rowschema.EncodeValue(info, row, 0)
	require.NoError(t, err)
	return value
}

func widgetKey(t *testing.T, info *rowinfo.RowInfo, id int64) []byte {
	t.Helper()
	row := rowinfo.NewRow(info)
	require.NoError(t, row.Set("id", id))
	key, err := rowschema.EncodeKey(info, row)
	require.NoError(t, err)
	return key
}

func widgetFixture(t *testing.T, ids ...int64) (*rowinfo.RowInfo, *fakeIndex, *rowschema.Registry) {
	t.Helper()
	info := widgetInfo(t)
	pairs := make(map[string][]byte, len(ids))
	for _, id := range ids {
		key := widgetKey(t, info, id)
		value := widgetRowValue(t, info, id, "widget")
		pairs[string(key)] = value
	}
	idx := newFakeIndex(pairs)
	reg := rowschema.NewRegistry()
	reg.Register("widget", rowschema.PrimaryIndexID, 0, info, rowschema.NewDecodeFunc(info))
	return info, idx, reg
}

func scanAll(t *testing.T, s *Scanner) []int64 {
	t.Helper()
	var got []int64
	ctx := context.Background()
	require.NoError(t, s.Init(ctx))
	for s.State() == Positioned {
		row, ok := s.Current()
		require.True(t, ok)
		v, err := row.Get("id")
		require.NoError(t, err)
		got = append(got, v.(int64))
		require.NoError(t, s.Step(ctx))
	}
	require.Equal(t, Finished, s.State())
	return got
}

func buildRanges(t *testing.T, keyCols []string, filterStr string) []rowfilter.Range {
	t.Helper()
	f, err := rowfilter.Parse(filterStr)
	require.NoError(t, err)
	f = rowfilter.Reduce(f)
	dnf, err := rowfilter.Dnf(f)
	require.NoError(t, err)
	return rowfilter.MultiRangeExtract(keyCols, dnf)
}

func TestScannerRangeBetween(t *testing.T) {
	info, idx, reg := widgetFixture(t, 1, 2, 3, 4, 5)
	ranges := buildRanges(t, []string{"id"}, "id >= ?0 && id <= ?1")
	factory := NewScanControllerFactory(info, reg, "widget", rowschema.PrimaryIndexID, false)
	ctrl, err := factory.Build([]string{"id"}, ranges, []interface{}{int64(2), int64(4)})
	require.NoError(t, err)

	s := NewScanner(ctrl, idx, nil)
	got := scanAll(t, s)
	require.Equal(t, []int64{2, 3, 4}, got)
}

func TestScannerDisjointEqualityOrder(t *testing.T) {
	info, idx, reg := widgetFixture(t, 1, 2, 3, 4, 5)
	ranges := buildRanges(t, []string{"id"}, "id == ?0 || id == ?1")
	factory := NewScanControllerFactory(info, reg, "widget", rowschema.PrimaryIndexID, false)
	ctrl, err := factory.Build([]string{"id"}, ranges, []interface{}{int64(4), int64(1)})
	require.NoError(t, err)

	s := NewScanner(ctrl, idx, nil)
	got := scanAll(t, s)
	// Controller order matches DNF term order (arg ?0 = 4 first, ?1 = 1 second),
	// not ascending key order across ranges.
	require.Equal(t, []int64{4, 1}, got)
}

func TestScannerRemainderFilterRejectsAndContinues(t *testing.T) {
	info, idx, reg := widgetFixture(t, 1, 2, 3, 4, 5)
	ranges := buildRanges(t, []string{"id"}, "id >= ?0 && name != ?1")
	factory := NewScanControllerFactory(info, reg, "widget", rowschema.PrimaryIndexID, false)
	ctrl, err := factory.Build([]string{"id"}, ranges, []interface{}{int64(3), "widget"})
	require.NoError(t, err)

	s := NewScanner(ctrl, idx, nil)
	got := scanAll(t, s)
	require.Empty(t, got) // every row is named "widget", so the remainder rejects all of them
}

func TestScannerEmptyRangeSetFinishesImmediately(t *testing.T) {
	info, idx, reg := widgetFixture(t, 1, 2, 3)
	factory := NewScanControllerFactory(info, reg, "widget", rowschema.PrimaryIndexID, false)
	ctrl, err := factory.Build([]string{"id"}, nil, nil)
	require.NoError(t, err)

	s := NewScanner(ctrl, idx, nil)
	require.NoError(t, s.Init(context.Background()))
	require.Equal(t, Finished, s.State())
}

func TestScannerReleasesLockOnRejectedRow(t *testing.T) {
	info, idx, reg := widgetFixture(t, 1, 2, 3)
	ranges := buildRanges(t, []string{"id"}, "id != ?0")
	factory := NewScanControllerFactory(info, reg, "widget", rowschema.PrimaryIndexID, false)
	ctrl, err := factory.Build([]string{"id"}, ranges, []interface{}{int64(2)})
	require.NoError(t, err)

	txn := &fakeTxn{mode: rowstore.LockReadCommitted}
	s := NewScanner(ctrl, idx, txn)
	got := scanAll(t, s)
	require.Equal(t, []int64{1, 3}, got)
	require.Len(t, txn.unlocked, 1)
	require.Equal(t, widgetKey(t, info, 2), txn.unlocked[0])
}

func TestRowUpdaterBasicPersistsMutation(t *testing.T) {
	info, idx, reg := widgetFixture(t, 1, 2)
	ranges := buildRanges(t, []string{"id"}, "id == ?0")
	factory := NewScanControllerFactory(info, reg, "widget", rowschema.PrimaryIndexID, false)
	ctrl, err := factory.Build([]string{"id"}, ranges, []interface{}{int64(1)})
	require.NoError(t, err)

	txn := &fakeTxn{mode: rowstore.LockSerializable}
	s := NewScanner(ctrl, idx, txn)
	require.NoError(t, s.Init(context.Background()))
	require.Equal(t, Positioned, s.State())

	updater := NewRowUpdater(s, idx, 0)
	require.Equal(t, Basic, StrategyForLockMode(txn))
	require.NoError(t, updater.Update(context.Background(), func(row *rowinfo.Row) error {
		return row.Set("name", "renamed")
	}))

	key := widgetKey(t, info, 1)
	raw, ok := idx.rows[string(key)]
	require.True(t, ok)
	_, rest, err := rowschema.DecodeSchemaVersion(raw)
	require.NoError(t, err)
	decoded := rowinfo.NewRow(info)
	require.NoError(t, rowschema.NewDecodeFunc(info)(rest, decoded))
	name, err := decoded.Get("name")
	require.NoError(t, err)
	require.Equal(t, "renamed", name)
}

func TestRowUpdaterAutoCommitOpensItsOwnTransaction(t *testing.T) {
	info, idx, reg := widgetFixture(t, 1)
	ranges := buildRanges(t, []string{"id"}, "id == ?0")
	factory := NewScanControllerFactory(info, reg, "widget", rowschema.PrimaryIndexID, false)
	ctrl, err := factory.Build([]string{"id"}, ranges, []interface{}{int64(1)})
	require.NoError(t, err)

	s := NewScanner(ctrl, idx, nil)
	require.NoError(t, s.Init(context.Background()))

	updater := NewRowUpdater(s, idx, 0)
	require.Equal(t, AutoCommit, StrategyForLockMode(nil))
	require.NoError(t, updater.Update(context.Background(), func(row *rowinfo.Row) error {
		return row.Set("name", "autocommit")
	}))
}

func TestRowUpdaterNonRepeatableEntersNestedScope(t *testing.T) {
	info, idx, reg := widgetFixture(t, 1)
	ranges := buildRanges(t, []string{"id"}, "id == ?0")
	factory := NewScanControllerFactory(info, reg, "widget", rowschema.PrimaryIndexID, false)
	ctrl, err := factory.Build([]string{"id"}, ranges, []interface{}{int64(1)})
	require.NoError(t, err)

	txn := &fakeTxn{mode: rowstore.LockReadCommitted}
	s := NewScanner(ctrl, idx, txn)
	require.NoError(t, s.Init(context.Background()))

	updater := NewRowUpdater(s, idx, 0)
	require.Equal(t, NonRepeatable, StrategyForLockMode(txn))
	require.NoError(t, updater.Update(context.Background(), func(row *rowinfo.Row) error {
		return row.Set("name", "nested")
	}))

	key := widgetKey(t, info, 1)
	raw := idx.rows[string(key)]
	_, rest, err := rowschema.DecodeSchemaVersion(raw)
	require.NoError(t, err)
	decoded := rowinfo.NewRow(info)
	require.NoError(t, rowschema.NewDecodeFunc(info)(rest, decoded))
	name, err := decoded.Get("name")
	require.NoError(t, err)
	require.Equal(t, "nested", name)
}
