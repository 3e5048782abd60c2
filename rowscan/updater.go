// Copyright 2018 The Solid Core Data Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package rowscan

import (
	"context"

	"github.com/cockroachdb/errors"

	"github.com/solidcoredata/rowengine/rowinfo"
	"github.com/solidcoredata/rowengine/rowschema"
	"github.com/solidcoredata/rowengine/rowstore"
)

// UpdateStrategy selects one of the four RowUpdater variants of spec.md
// §4.4, chosen from the scanning transaction's lock mode.
type UpdateStrategy int

const (
	// AutoCommit: no transaction was supplied; each update opens its own
	// single-statement transaction.
	AutoCommit UpdateStrategy = iota
	// Basic: the strongest lock modes (serializable) rely entirely on the
	// caller-supplied transaction.
	Basic
	// Upgradable (repeatable-read): acquires upgradable locks as rows are
	// visited.
	Upgradable
	// NonRepeatable (read-committed/read-uncommitted): enters a nested
	// transaction scope with upgradable-read for safety before mutating.
	NonRepeatable
)

// StrategyForLockMode picks the RowUpdater variant spec.md §4.4 assigns to
// a transaction's lock mode.
func StrategyForLockMode(txn rowstore.Transaction) UpdateStrategy {
	if txn == nil {
		return AutoCommit
	}
	switch txn.LockMode() {
	case rowstore.LockSerializable:
		return Basic
	case rowstore.LockRepeatableRead:
		return Upgradable
	default:
		return NonRepeatable
	}
}

// RowUpdater wraps a Scanner and mutates its current row, persisting the
// result back to index via the strategy appropriate to the scanning
// transaction's lock mode.
type RowUpdater struct {
	scanner       *Scanner
	index         rowstore.Index
	schemaVersion uint64

	strategy UpdateStrategy
	onWrite  func(ctx context.Context, txn rowstore.Transaction, key, value []byte) error
}

// OnWrite installs a hook invoked with the same transaction used to persist
// the updated row, immediately after Store and before that transaction
// commits — the table layer uses this to run its trigger (rowtrigger) within
// the write's own transaction rather than as an after-the-fact side effect.
func (u *RowUpdater) OnWrite(fn func(ctx context.Context, txn rowstore.Transaction, key, value []byte) error) *RowUpdater {
	u.onWrite = fn
	return u
}

// NewRowUpdater returns an updater over scanner's current row, writing
// through index, using the strategy implied by scanner's transaction.
// schemaVersion is the version a write is stamped with: the version
// current for rowType at the time the table was opened (schema evolution
// registers a new version and reopens tables rather than mutating this
// value in place).
func NewRowUpdater(scanner *Scanner, index rowstore.Index, schemaVersion uint64) *RowUpdater {
	return &RowUpdater{
		scanner:       scanner,
		index:         index,
		schemaVersion: schemaVersion,
		strategy:      StrategyForLockMode(scanner.txn),
	}
}

// Update applies mutate to the scanner's current row and persists it,
// following this updater's strategy.
func (u *RowUpdater) Update(ctx context.Context, mutate func(row *rowinfo.Row) error) error {
	row, ok := u.scanner.Current()
	if !ok {
		return errors.Newf("rowscan: Update called with no current row (scanner state %d)", u.scanner.State())
	}

	switch u.strategy {
	case AutoCommit:
		return u.updateAutoCommit(ctx, row, mutate)
	case Basic:
		return u.updateBasic(ctx, row, mutate)
	case Upgradable:
		return u.updateUpgradable(ctx, row, mutate)
	case NonRepeatable:
		return u.updateNonRepeatable(ctx, row, mutate)
	default:
		return errors.Newf("rowscan: unknown update strategy %d", u.strategy)
	}
}

func (u *RowUpdater) updateAutoCommit(ctx context.Context, row *rowinfo.Row, mutate func(*rowinfo.Row) error) error {
	txn, err := u.index.NewTransaction(ctx, rowstore.LockReadCommitted)
	if err != nil {
		return err
	}
	if err := mutate(row); err != nil {
		_ = txn.Rollback()
		return err
	}
	if err := u.persist(ctx, txn, row); err != nil {
		_ = txn.Rollback()
		return err
	}
	return txn.Commit()
}

func (u *RowUpdater) updateBasic(ctx context.Context, row *rowinfo.Row, mutate func(*rowinfo.Row) error) error {
	if err := mutate(row); err != nil {
		return err
	}
	return u.persist(ctx, u.scanner.txn, row)
}

func (u *RowUpdater) updateUpgradable(ctx context.Context, row *rowinfo.Row, mutate func(*rowinfo.Row) error) error {
	// Repeatable-read scans already hold an upgradable lock on every row
	// visited (acquired by the scanning cursor itself); mutating in place
	// is therefore safe without a nested scope.
	if err := mutate(row); err != nil {
		return err
	}
	return u.persist(ctx, u.scanner.txn, row)
}

func (u *RowUpdater) updateNonRepeatable(ctx context.Context, row *rowinfo.Row, mutate func(*rowinfo.Row) error) error {
	nested, err := u.scanner.txn.Enter(ctx, rowstore.LockRepeatableRead)
	if err != nil {
		return err
	}
	if err := mutate(row); err != nil {
		_ = nested.Exit()
		return err
	}
	if err := u.persist(ctx, nested, row); err != nil {
		_ = nested.Exit()
		return err
	}
	return nested.Exit()
}

// persist encodes row's current value columns and primary key, stamped
// with u.schemaVersion, writes them through txn, and — if an onWrite hook is
// installed — runs it against the same txn before returning, so the table
// layer's trigger observes the write inside its own transaction.
func (u *RowUpdater) persist(ctx context.Context, txn rowstore.Transaction, row *rowinfo.Row) error {
	info := row.Info
	key, err := rowschema.EncodeKey(info, row)
	if err != nil {
		return err
	}
	value, err := rowschema.EncodeValue(info, row, u.schemaVersion)
	if err != nil {
		return err
	}
	if err := u.index.Store(txn, key, value); err != nil {
		return err
	}
	if u.onWrite != nil {
		return u.onWrite(ctx, txn, key, value)
	}
	return nil
}
