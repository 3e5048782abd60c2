// Copyright 2018 The Solid Core Data Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package rowtrigger

import (
	"bytes"
	"context"
	"sync"
	"sync/atomic"

	"github.com/cockroachdb/errors"
	"golang.org/x/sync/errgroup"

	"github.com/solidcoredata/rowengine/rowfilter"
	"github.com/solidcoredata/rowengine/rowinfo"
	"github.com/solidcoredata/rowengine/rowscan"
	"github.com/solidcoredata/rowengine/rowschema"
	"github.com/solidcoredata/rowengine/rowstore"
)

// errBackfillCancelled is returned by Run when Close was called mid-scan or
// mid-merge; it is not wrapped further since it is never user-facing on its
// own (Run's caller already knows it asked for cancellation).
var errBackfillCancelled = errors.New("rowtrigger: backfill cancelled")

// Transform computes a secondary (key, value) pair from one decoded primary
// row, per spec.md §6's secondary index key/value layout.
type Transform func(row *rowinfo.Row) (key, value []byte, err error)

// secondaryProjector decodes a primary (key, value) pair back into a Row and
// runs it through Transform; it is shared by the backfill and live triggers
// and by IndexBackfill's own scan, so all three derive secondary entries the
// same way.
type secondaryProjector struct {
	registry  *rowschema.Registry
	rowType   string
	transform Transform
}

func (p secondaryProjector) decode(key, value []byte) (*rowinfo.Row, error) {
	version, rest, err := rowschema.DecodeSchemaVersion(value)
	if err != nil {
		return nil, errors.Wrapf(err, "rowtrigger: %s: decoding schema version", p.rowType)
	}
	info, decodeValue, err := p.registry.Lookup(p.rowType, rowschema.PrimaryIndexID, version)
	if err != nil {
		return nil, err
	}
	row := rowinfo.NewRow(info)
	if err := rowschema.DecodeKey(info, key, row); err != nil {
		return nil, err
	}
	if err := decodeValue(rest, row); err != nil {
		return nil, err
	}
	return row, nil
}

func (p secondaryProjector) project(key, value []byte) (secKey, secValue []byte, err error) {
	row, err := p.decode(key, value)
	if err != nil {
		return nil, nil, err
	}
	return p.transform(row)
}

// backfillTrigger is installed for the duration of an IndexBackfill (spec.md
// §4.6 step 1): inserts go straight to the live secondary; deletes consult
// progress to decide whether the deleted-tracker needs to remember the key
// for the merge phase still to come, per the "Concurrent modification
// rules".
type backfillTrigger struct {
	secondaryProjector
	secondary rowstore.Index
	tracker   rowstore.Index
	progress  *atomic.Pointer[[]byte]
}

func (t *backfillTrigger) OnWrite(ctx context.Context, txn rowstore.Transaction, key, value []byte) error {
	secKey, secValue, err := t.project(key, value)
	if err != nil {
		return err
	}
	return t.secondary.Store(txn, secKey, secValue)
}

func (t *backfillTrigger) OnDelete(ctx context.Context, txn rowstore.Transaction, key, value []byte) error {
	secKey, _, err := t.project(key, value)
	if err != nil {
		return err
	}
	progress := t.progress.Load()
	if progress == nil || bytes.Compare(secKey, *progress) > 0 {
		// Merge has not reached this key yet: remember the delete so the
		// merge phase skips (or never inserts) it.
		return t.tracker.Store(txn, secKey, nil)
	}
	// Already visited by merge; the live delete is sufficient on its own.
	return t.secondary.Delete(txn, secKey)
}

// liveSecondaryTrigger is installed once a backfill completes: it maintains
// the secondary directly, with no tracker and no progress bookkeeping.
type liveSecondaryTrigger struct {
	secondaryProjector
	secondary rowstore.Index
}

func (t *liveSecondaryTrigger) OnWrite(ctx context.Context, txn rowstore.Transaction, key, value []byte) error {
	secKey, secValue, err := t.project(key, value)
	if err != nil {
		return err
	}
	return t.secondary.Store(txn, secKey, secValue)
}

func (t *liveSecondaryTrigger) OnDelete(ctx context.Context, txn rowstore.Transaction, key, value []byte) error {
	secKey, _, err := t.project(key, value)
	if err != nil {
		return err
	}
	return t.secondary.Delete(txn, secKey)
}

// IndexBackfillConfig configures one online secondary-index build.
type IndexBackfillConfig struct {
	Name      string // symbolic name used in diagnostic events
	RowType   string
	Info      *rowinfo.RowInfo // any version's RowInfo; key columns are immutable across versions
	Primary   rowstore.Index
	Secondary rowstore.Index
	DB        rowstore.Database
	Registry  *rowschema.Registry
	Slot      *TriggerSlot
	Transform Transform
	BatchSize int // defaults to 1000 if <= 0
}

// IndexBackfill runs spec.md §4.6's backfill algorithm: publish a tracking
// trigger, scan the primary index into an external sorter, merge the sorted
// secondary entries in, then activate the fully-live trigger.
type IndexBackfill struct {
	cfg IndexBackfillConfig

	mu      sync.Mutex
	sorter  rowstore.Sorter
	tracker rowstore.Index

	progress  atomic.Pointer[[]byte]
	cancelled atomic.Bool
}

// NewIndexBackfill returns a backfill ready to Run.
func NewIndexBackfill(cfg IndexBackfillConfig) *IndexBackfill {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 1000
	}
	return &IndexBackfill{cfg: cfg}
}

// Close requests cancellation: in-flight batches observe it at their next
// boundary, reset the sorter, and drop the temporary tracker index, per
// spec.md §4.6's "Cancellation". Safe to call from any goroutine, at any
// point before or during Run.
func (b *IndexBackfill) Close() {
	b.cancelled.Store(true)
}

// Run drives the backfill to completion (or cancellation/failure). It
// blocks until the secondary is fully live or the attempt is abandoned.
func (b *IndexBackfill) Run(ctx context.Context) error {
	sorter, err := b.cfg.DB.NewSorter(ctx)
	if err != nil {
		return errors.Wrapf(err, "rowtrigger: %s: opening backfill sorter", b.cfg.Name)
	}
	tracker, err := b.cfg.DB.NewTemporaryIndex(ctx, b.cfg.Name+".deleted")
	if err != nil {
		return errors.Wrapf(err, "rowtrigger: %s: opening deleted-tracker index", b.cfg.Name)
	}

	b.mu.Lock()
	b.sorter, b.tracker = sorter, tracker
	b.mu.Unlock()

	proj := secondaryProjector{registry: b.cfg.Registry, rowType: b.cfg.RowType, transform: b.cfg.Transform}
	b.cfg.Slot.Set(&backfillTrigger{
		secondaryProjector: proj,
		secondary:          b.cfg.Secondary,
		tracker:            tracker,
		progress:           &b.progress,
	})

	group, gctx := errgroup.WithContext(ctx)
	group.Go(func() error { return b.scanPrimary(gctx, proj, sorter) })
	if err := group.Wait(); err != nil {
		b.teardown(ctx, err)
		return err
	}

	if err := b.mergeSorted(ctx, sorter, tracker); err != nil {
		b.teardown(ctx, err)
		return err
	}

	b.cfg.Slot.Set(&liveSecondaryTrigger{secondaryProjector: proj, secondary: b.cfg.Secondary})
	return b.cfg.DB.DeleteIndex(ctx, tracker)
}

// scanPrimary walks the primary index in key order under read-committed
// locking, batching each row's projected secondary entry into sorter, per
// spec.md §4.6 step 2. It reuses rowscan's own Scanner/ScanController over a
// single unbounded, unfiltered range rather than hand-rolling a cursor walk.
func (b *IndexBackfill) scanPrimary(ctx context.Context, proj secondaryProjector, sorter rowstore.Sorter) error {
	keyColumns := make([]string, len(b.cfg.Info.KeyColumns))
	for i, c := range b.cfg.Info.KeyColumns {
		keyColumns[i] = c.Name
	}
	factory := rowscan.NewScanControllerFactory(b.cfg.Info, b.cfg.Registry, b.cfg.RowType, rowschema.PrimaryIndexID, false)
	ctrl, err := factory.Build(keyColumns, []rowfilter.Range{{Remainder: rowfilter.True{}}}, nil)
	if err != nil {
		return err
	}

	txn, err := b.cfg.Primary.NewTransaction(ctx, rowstore.LockReadCommitted)
	if err != nil {
		return err
	}
	defer txn.Rollback()

	scanner := rowscan.NewScanner(ctrl, b.cfg.Primary, txn)
	if err := scanner.Init(ctx); err != nil {
		return err
	}

	batch := make([]rowstore.SorterPair, 0, b.cfg.BatchSize)
	flush := func() error {
		if len(batch) == 0 {
			return nil
		}
		if err := sorter.AddBatch(ctx, batch); err != nil {
			return err
		}
		batch = batch[:0]
		return nil
	}

	for scanner.State() == rowscan.Positioned {
		if b.cancelled.Load() {
			return errBackfillCancelled
		}
		row, _ := scanner.Current()
		secKey, secValue, err := proj.transform(row)
		if err != nil {
			return err
		}
		batch = append(batch, rowstore.SorterPair{Key: secKey, Value: secValue})
		if len(batch) >= b.cfg.BatchSize {
			if err := flush(); err != nil {
				return err
			}
		}
		if err := scanner.Step(ctx); err != nil {
			return err
		}
	}
	return flush()
}

// mergeSorted replays the sorter's sorted stream, inserting each entry not
// already present in the live secondary or the deleted-tracker, per spec.md
// §4.6 step 3.
func (b *IndexBackfill) mergeSorted(ctx context.Context, sorter rowstore.Sorter, tracker rowstore.Index) error {
	stream, err := sorter.FinishScan(ctx)
	if err != nil {
		return err
	}
	defer stream.Close()

	for {
		if b.cancelled.Load() {
			return errBackfillCancelled
		}
		pair, ok, err := stream.Next(ctx)
		if err != nil {
			return err
		}
		if !ok {
			return nil
		}
		if err := b.mergeOne(ctx, pair, tracker); err != nil {
			return err
		}
	}
}

func (b *IndexBackfill) mergeOne(ctx context.Context, pair rowstore.SorterPair, tracker rowstore.Index) error {
	txn, err := b.cfg.Secondary.NewTransaction(ctx, rowstore.LockRepeatableRead)
	if err != nil {
		return err
	}
	exists, err := b.cfg.Secondary.Exists(txn, pair.Key)
	if err != nil {
		_ = txn.Rollback()
		return err
	}
	if !exists {
		tracked, err := tracker.Exists(txn, pair.Key)
		if err != nil {
			_ = txn.Rollback()
			return err
		}
		if !tracked {
			if err := b.cfg.Secondary.Store(txn, pair.Key, pair.Value); err != nil {
				_ = txn.Rollback()
				return err
			}
		}
	}
	if err := txn.Commit(); err != nil {
		return err
	}

	progress := append([]byte(nil), pair.Key...)
	b.progress.Store(&progress)

	trackTxn, err := tracker.NewTransaction(ctx, rowstore.LockReadCommitted)
	if err != nil {
		return err
	}
	if err := tracker.Delete(trackTxn, pair.Key); err != nil {
		_ = trackTxn.Rollback()
		return err
	}
	return trackTxn.Commit()
}

// teardown resets the sorter, deletes the temporary tracker index, and
// emits a diagnostic event, per spec.md §4.6's "on failure the secondary is
// left in a quiescent state and a diagnostic event is emitted" and §7's
// "Backfill errors" propagation policy. It deliberately leaves whichever
// trigger is currently installed in place: the backfillTrigger keeps
// tracking further writes against the (incomplete) secondary so a retried
// backfill does not need to replay history it already observed.
func (b *IndexBackfill) teardown(ctx context.Context, cause error) {
	b.mu.Lock()
	sorter, tracker := b.sorter, b.tracker
	b.mu.Unlock()

	if sorter != nil {
		_ = sorter.Reset()
	}
	if tracker != nil {
		_ = b.cfg.DB.DeleteIndex(ctx, tracker)
	}
	if listener := b.cfg.DB.EventListener(); listener != nil {
		listener.OnEvent("backfill_failed", map[string]interface{}{
			"secondary": b.cfg.Name,
			"rowType":   b.cfg.RowType,
			"error":     cause.Error(),
		})
	}
}
