// Copyright 2018 The Solid Core Data Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package table is rowengine's public surface: one Table ties a row shape
// (rowinfo), a schema registry (rowschema), a filter compiler (rowfilter), a
// range scanner (rowscan), and the trigger lifecycle that keeps secondary
// indexes in sync (rowtrigger) to a caller-supplied primary index (rowstore).
package table

import (
	"context"

	"github.com/cockroachdb/errors"

	"github.com/solidcoredata/rowengine/internal/rowlog"
	"github.com/solidcoredata/rowengine/rowfilter"
	"github.com/solidcoredata/rowengine/rowinfo"
	"github.com/solidcoredata/rowengine/rowscan"
	"github.com/solidcoredata/rowengine/rowschema"
	"github.com/solidcoredata/rowengine/rowstore"
	"github.com/solidcoredata/rowengine/rowtrigger"
)

// ErrNotFound is returned by Delete when the key does not exist in the
// primary index.
var ErrNotFound = errors.New("table: key not found")

// Config describes one table's fixed shape: its row type, current primary
// RowInfo/schema version, registry, and the primary index it is bound to.
// PredicateLocking enables spec.md §4.4's exposed remainder predicate so a
// caller can acquire a predicate lock over the scanned range. Log is
// optional; when set, it receives the filter compiler's normal-form
// fallback diagnostic (spec.md §4.2).
type Config struct {
	RowType          string
	Info             *rowinfo.RowInfo
	SchemaVersion    uint64
	Registry         *rowschema.Registry
	Primary          rowstore.Index
	PredicateLocking bool
	Log              *rowlog.Logger
}

// Table is the public row/table engine surface described by spec.md's
// component design: it compiles filter strings once per canonical string
// (rowfilter.FactoryCache), extracts key ranges from the compiled DNF
// (rowfilter.MultiRangeExtract), drives range scans and in-place updates
// (rowscan), and keeps exactly one secondary-index-maintenance Trigger
// installed at a time (rowtrigger.TriggerSlot).
type Table struct {
	cfg        Config
	keyColumns []string

	cache    *rowfilter.FactoryCache
	factory  *rowscan.ScanControllerFactory
	triggers *rowtrigger.TriggerSlot
}

// New registers cfg.Info/cfg.SchemaVersion with cfg.Registry's primary-index
// slot and returns a Table ready to scan and write, with no secondary index
// maintenance until AddSecondary installs one.
func New(cfg Config) (*Table, error) {
	if cfg.Info == nil {
		return nil, errors.Newf("table: %s: Config.Info is required", cfg.RowType)
	}
	if cfg.Registry == nil {
		return nil, errors.Newf("table: %s: Config.Registry is required", cfg.RowType)
	}
	if cfg.Primary == nil {
		return nil, errors.Newf("table: %s: Config.Primary is required", cfg.RowType)
	}
	cfg.Registry.Register(cfg.RowType, rowschema.PrimaryIndexID, cfg.SchemaVersion, cfg.Info, rowschema.NewDecodeFunc(cfg.Info))

	keyColumns := make([]string, len(cfg.Info.KeyColumns))
	for i, c := range cfg.Info.KeyColumns {
		keyColumns[i] = c.Name
	}

	cache := rowfilter.NewFactoryCache()
	if cfg.Log != nil {
		cache.OnFallback(cfg.Log.FilterFallback)
	}

	return &Table{
		cfg:        cfg,
		keyColumns: keyColumns,
		cache:      cache,
		factory: rowscan.NewScanControllerFactory(
			cfg.Info, cfg.Registry, cfg.RowType, rowschema.PrimaryIndexID, cfg.PredicateLocking,
		),
		triggers: rowtrigger.NewTriggerSlot(rowtrigger.NopTrigger{}),
	}, nil
}

// Triggers exposes the table's trigger slot, so a caller can swap in a
// freshly-built secondary-index trigger (directly, or by driving an
// rowtrigger.IndexBackfill configured with it — see NewBackfill).
func (t *Table) Triggers() *rowtrigger.TriggerSlot { return t.triggers }

// NewBackfill returns an IndexBackfill wired to this table's primary index,
// registry, row type and trigger slot; cfg only needs to supply Name,
// Secondary, DB and Transform. Run publishes a tracking trigger into this
// table's slot for the duration of the build and swaps in the live trigger
// on success, per spec.md §4.6.
func (t *Table) NewBackfill(cfg rowtrigger.IndexBackfillConfig) *rowtrigger.IndexBackfill {
	cfg.RowType = t.cfg.RowType
	cfg.Info = t.cfg.Info
	cfg.Primary = t.cfg.Primary
	cfg.Registry = t.cfg.Registry
	cfg.Slot = t.triggers
	return rowtrigger.NewIndexBackfill(cfg)
}

// Scan compiles filterString (cached per canonical string), extracts its key
// ranges, and returns a Scanner already positioned at the first matching row
// within txn (nil for a lock-less read). Per spec.md §4.4, ranges are
// delivered in DNF term order, rows within a range in ascending key order.
func (t *Table) Scan(ctx context.Context, txn rowstore.Transaction, filterString string, args []interface{}) (*rowscan.Scanner, error) {
	compiled, err := t.cache.Compile(filterString)
	if err != nil {
		return nil, errors.Wrapf(err, "table: %s: compiling filter %q", t.cfg.RowType, filterString)
	}
	ranges := rowfilter.MultiRangeExtract(t.keyColumns, compiled.Dnf)
	ctrl, err := t.factory.Build(t.keyColumns, ranges, args)
	if err != nil {
		return nil, errors.Wrapf(err, "table: %s: building scan controller for %q", t.cfg.RowType, filterString)
	}
	scanner := rowscan.NewScanner(ctrl, t.cfg.Primary, txn)
	if err := scanner.Init(ctx); err != nil {
		return nil, err
	}
	return scanner, nil
}

// Updater returns a RowUpdater over scanner's current row, wired so that a
// successful persist also runs the table's current trigger within the same
// write transaction (spec.md §4.6: "operations atomically load+acquire the
// current trigger once per write, then proceed").
func (t *Table) Updater(scanner *rowscan.Scanner) *rowscan.RowUpdater {
	return rowscan.NewRowUpdater(scanner, t.cfg.Primary, t.cfg.SchemaVersion).OnWrite(t.onWrite)
}

// Insert encodes row's key and value columns, stores them in the primary
// index, and runs the current trigger against the same transaction, all as
// one commit.
func (t *Table) Insert(ctx context.Context, row *rowinfo.Row) error {
	key, err := rowschema.EncodeKey(t.cfg.Info, row)
	if err != nil {
		return err
	}
	value, err := rowschema.EncodeValue(t.cfg.Info, row, t.cfg.SchemaVersion)
	if err != nil {
		return err
	}

	txn, err := t.cfg.Primary.NewTransaction(ctx, rowstore.LockReadCommitted)
	if err != nil {
		return err
	}
	if err := t.cfg.Primary.Store(txn, key, value); err != nil {
		_ = txn.Rollback()
		return err
	}
	if err := t.onWrite(ctx, txn, key, value); err != nil {
		_ = txn.Rollback()
		return err
	}
	return txn.Commit()
}

// Delete removes the row at key from the primary index and runs the current
// trigger's OnDelete with the row's last-known encoded value, all as one
// commit. Returns ErrNotFound if key does not exist.
func (t *Table) Delete(ctx context.Context, key []byte) error {
	txn, err := t.cfg.Primary.NewTransaction(ctx, rowstore.LockRepeatableRead)
	if err != nil {
		return err
	}
	cur, err := t.cfg.Primary.NewCursor(txn)
	if err != nil {
		_ = txn.Rollback()
		return err
	}
	ok, err := cur.Find(ctx, key)
	if err != nil {
		_ = cur.Reset()
		_ = txn.Rollback()
		return err
	}
	if !ok {
		_ = cur.Reset()
		_ = txn.Rollback()
		return errors.Wrapf(ErrNotFound, "table: %s", t.cfg.RowType)
	}
	value := append([]byte(nil), cur.Value()...)
	if err := cur.Delete(); err != nil {
		_ = txn.Rollback()
		return err
	}
	if err := cur.Reset(); err != nil {
		_ = txn.Rollback()
		return err
	}

	trig, release, err := t.triggers.Acquire()
	if err != nil {
		_ = txn.Rollback()
		return err
	}
	defer release()
	if err := trig.OnDelete(ctx, txn, key, value); err != nil {
		_ = txn.Rollback()
		return err
	}
	return txn.Commit()
}

// onWrite acquires the current trigger for exactly one write and runs its
// OnWrite hook, per spec.md §4.6's load-acquire-once-per-write rule.
func (t *Table) onWrite(ctx context.Context, txn rowstore.Transaction, key, value []byte) error {
	trig, release, err := t.triggers.Acquire()
	if err != nil {
		return err
	}
	defer release()
	return trig.OnWrite(ctx, txn, key, value)
}
