// Copyright 2018 The Solid Core Data Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package rowtrigger

import (
	"context"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/solidcoredata/rowengine/rowcodec"
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
	nameLex, err := rowcodec.NewStringCodec(nameTC, true)
	require.NoError(t, err)

	info, err := rowinfo.NewRowInfo("widget",
		[]rowinfo.ColumnInfo{{Name: "id", TypeCode: idTC, ValueCodec: idVal, LexCodec: idLex}},
		[]rowinfo.ColumnInfo{{Name: "name", TypeCode: nameTC, ValueCodec: nameVal, LexCodec: nameLex}},
	)
	require.NoError(t, err)
	return info
}

func widgetValue(t *testing.T, info *rowinfo.RowInfo, id int64, name string) []byte {
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

// byNameTransform projects a widget row onto a "by name" secondary: the
// name column's lex bytes followed by the primary key, for uniqueness.
func byNameTransform(t *testing.T, info *rowinfo.RowInfo) Transform {
	t.Helper()
	nameCol, ok := info.Column("name")
	require.True(t, ok)
	return func(row *rowinfo.Row) ([]byte, []byte, error) {
		name, err := row.Get("name")
		if err != nil {
			return nil, nil, err
		}
		extra, err := nameCol.LexCodec.EncodeSize(name)
		if err != nil {
			return nil, nil, err
		}
		buf := make([]byte, nameCol.LexCodec.MinSize()+extra)
		off := 0
		if err := nameCol.LexCodec.Encode(name, buf, &off, false); err != nil {
			return nil, nil, err
		}
		nameBytes := buf[:off]

		primaryKey, err := rowschema.EncodeKey(info, row)
		if err != nil {
			return nil, nil, err
		}
		return append(nameBytes, primaryKey...), nil, nil
	}
}

func TestIndexBackfillBuildsSecondaryFromExistingRows(t *testing.T) {
	info := widgetInfo(t)
	primary := newFakeIndex("widget.primary")
	for _, w := range []struct {
		id   int64
		name string
	}{{1, "alpha"}, {2, "beta"}, {3, "gamma"}} {
		primary.rows[string(widgetKey(t, info, w.id))] = widgetValue(t, info, w.id, w.name)
	}
	secondary := newFakeIndex("widget.by_name")
	db := newFakeDatabase()
	registry := rowschema.NewRegistry()
	registry.Register("widget", rowschema.PrimaryIndexID, 0, info, rowschema.NewDecodeFunc(info))
	slot := NewTriggerSlot(NopTrigger{})

	bf := NewIndexBackfill(IndexBackfillConfig{
		Name:      "widget.by_name",
		RowType:   "widget",
		Info:      info,
		Primary:   primary,
		Secondary: secondary,
		DB:        db,
		Registry:  registry,
		Slot:      slot,
		Transform: byNameTransform(t, info),
		BatchSize: 2,
	})

	require.NoError(t, bf.Run(context.Background()))
	require.Len(t, secondary.rows, 3)

	for _, w := range []struct {
		id   int64
		name string
	}{{1, "alpha"}, {2, "beta"}, {3, "gamma"}} {
		secKey, _, err := byNameTransform(t, info)(rowRow(t, info, w.id, w.name))
		require.NoError(t, err)
		_, ok := secondary.rows[string(secKey)]
		require.True(t, ok, "missing secondary entry for %q", w.name)
	}

	require.IsType(t, &liveSecondaryTrigger{}, slot.Current())
	require.Contains(t, db.deleted, "widget.by_name.deleted")
}

func rowRow(t *testing.T, info *rowinfo.RowInfo, id int64, name string) *rowinfo.Row {
	t.Helper()
	row := rowinfo.NewRow(info)
	require.NoError(t, row.Set("id", id))
	require.NoError(t, row.Set("name", name))
	return row
}

func TestIndexBackfillCancelledScanStopsAndTearsDown(t *testing.T) {
	info := widgetInfo(t)
	primary := newFakeIndex("widget.primary")
	for _, w := range []struct {
		id   int64
		name string
	}{{1, "alpha"}, {2, "beta"}, {3, "gamma"}} {
		primary.rows[string(widgetKey(t, info, w.id))] = widgetValue(t, info, w.id, w.name)
	}
	secondary := newFakeIndex("widget.by_name")
	db := newFakeDatabase()
	registry := rowschema.NewRegistry()
	registry.Register("widget", rowschema.PrimaryIndexID, 0, info, rowschema.NewDecodeFunc(info))
	slot := NewTriggerSlot(NopTrigger{})

	bf := NewIndexBackfill(IndexBackfillConfig{
		Name:      "widget.by_name",
		RowType:   "widget",
		Info:      info,
		Primary:   primary,
		Secondary: secondary,
		DB:        db,
		Registry:  registry,
		Slot:      slot,
		Transform: byNameTransform(t, info),
	})
	bf.Close()

	err := bf.Run(context.Background())
	require.ErrorIs(t, err, errBackfillCancelled)
	require.Contains(t, db.listener.events, "backfill_failed")
	require.Contains(t, db.deleted, "widget.by_name.deleted")
}

func TestBackfillTriggerTracksDeleteAheadOfProgress(t *testing.T) {
	info := widgetInfo(t)
	secondary := newFakeIndex("widget.by_name")
	tracker := newFakeIndex("widget.by_name.deleted")
	registry := rowschema.NewRegistry()
	registry.Register("widget", rowschema.PrimaryIndexID, 0, info, rowschema.NewDecodeFunc(info))

	var progressPtr atomic.Pointer[[]byte]
	trig := &backfillTrigger{
		secondaryProjector: secondaryProjector{registry: registry, rowType: "widget", transform: byNameTransform(t, info)},
		secondary:          secondary,
		tracker:            tracker,
		progress:           &progressPtr,
	}

	key := widgetKey(t, info, 1)
	value := widgetValue(t, info, 1, "alpha")
	txn := &fakeTxn{mode: rowstore.LockReadCommitted}

	// progress is nil (scan has not started the merge yet): the delete must
	// land in the tracker, not the live secondary.
	require.NoError(t, trig.OnDelete(context.Background(), txn, key, value))
	require.Len(t, tracker.rows, 1)
	require.Empty(t, secondary.rows)
}

func TestBackfillTriggerDeletesLiveSecondaryPastProgress(t *testing.T) {
	info := widgetInfo(t)
	secondary := newFakeIndex("widget.by_name")
	tracker := newFakeIndex("widget.by_name.deleted")
	registry := rowschema.NewRegistry()
	registry.Register("widget", rowschema.PrimaryIndexID, 0, info, rowschema.NewDecodeFunc(info))
	transform := byNameTransform(t, info)

	key := widgetKey(t, info, 1)
	value := widgetValue(t, info, 1, "alpha")
	secKey, _, err := transform(rowRow(t, info, 1, "alpha"))
	require.NoError(t, err)
	secondary.rows[string(secKey)] = nil

	// progress already lexicographically past this row's secondary key:
	// merge already visited (or inserted) it, so the live delete suffices.
	progress := append([]byte(nil), secKey...)
	progress = append(progress, 0xFF)

	var progressPtr atomic.Pointer[[]byte]
	progressPtr.Store(&progress)
	trig := &backfillTrigger{
		secondaryProjector: secondaryProjector{registry: registry, rowType: "widget", transform: transform},
		secondary:          secondary,
		tracker:            tracker,
		progress:           &progressPtr,
	}

	txn := &fakeTxn{mode: rowstore.LockReadCommitted}
	require.NoError(t, trig.OnDelete(context.Background(), txn, key, value))
	require.Empty(t, secondary.rows)
	require.Empty(t, tracker.rows)
}
