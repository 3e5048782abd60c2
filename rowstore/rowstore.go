// Copyright 2018 The Solid Core Data Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package rowstore declares the external key/value store contract that
// rowengine is built on top of (spec.md §6 "Underlying key/value store
// contract"). Nothing in this package is implemented here: these are the
// interfaces rowscan, rowtrigger and table consume, analogous to how the
// teacher's ts package consumes an io.Writer rather than owning file I/O.
package rowstore

import "context"

// LockMode mirrors a transaction's isolation/locking strategy, referenced by
// spec.md §4.4's four RowUpdater variants and §5's lock-discipline rules.
type LockMode int

const (
	// LockBogus denotes a lock-less cursor: reads take no row locks.
	LockBogus LockMode = iota
	LockReadCommitted
	LockReadUncommitted
	LockRepeatableRead
	LockSerializable
)

// DurabilityMode controls how aggressively a transaction's commit is synced.
type DurabilityMode int

const (
	DurabilityDefault DurabilityMode = iota
	DurabilityRelaxed
	DurabilitySync
)

// Cursor is a single-transaction, single-goroutine iterator over an Index's
// key space, per spec.md §6. Implementations are not required to be safe for
// concurrent use from more than one goroutine at a time.
type Cursor interface {
	First(ctx context.Context) (bool, error)
	Last(ctx context.Context) (bool, error)
	Next(ctx context.Context) (bool, error)
	Previous(ctx context.Context) (bool, error)

	// Find positions the cursor at key exactly, reporting whether it exists.
	Find(ctx context.Context, key []byte) (bool, error)

	// FindNearby positions the cursor at the first key >= key (ascending
	// scans use this to seed a range at its low bound).
	FindNearby(ctx context.Context, key []byte) (bool, error)

	Key() []byte
	Value() []byte

	// Autoload controls whether Value() eagerly decodes the current row; set
	// false to support the quick-filter path of spec.md §4.1, which compares
	// against the still-encoded span before paying for a full decode.
	Autoload(on bool)

	// Link attaches the cursor to txn so subsequent operations observe the
	// transaction's writes and locking.
	Link(txn Transaction) error

	Commit(value []byte) error
	Delete() error

	// Reset releases any lock held by the cursor's current position without
	// closing it; paired per spec.md §5's "every cursor is paired with
	// reset()" scoped-acquisition rule.
	Reset() error
}

// Transaction is the external store's unit of work, per spec.md §6.
type Transaction interface {
	Enter(ctx context.Context, mode LockMode) (Transaction, error)
	Exit() error
	Commit() error
	Rollback() error

	LockMode() LockMode
	LockTimeout() (enabled bool, timeout int64)
	DurabilityMode() DurabilityMode

	// Unlock releases a single previously-acquired lock identified by key,
	// used by the scanner to drop a row lock on a filtered-out row (spec.md
	// §4.4 "the scanner releases the lock to avoid retaining unneeded
	// conflict state").
	Unlock(key []byte) error
}

// Index is one physical ordered key space: the primary index of a table, a
// secondary index, or a temporary index created for backfill tracking.
type Index interface {
	NewCursor(txn Transaction) (Cursor, error)
	Store(txn Transaction, key, value []byte) error
	Delete(txn Transaction, key []byte) error
	Exists(txn Transaction, key []byte) (bool, error)
	NewTransaction(ctx context.Context, mode LockMode) (Transaction, error)

	ID() int64
	Name() string
	Close() error
	IsClosed() bool
}

// SorterPair is one (key, value) pair fed to a Sorter during backfill, per
// spec.md §4.6 step 2.
type SorterPair struct {
	Key   []byte
	Value []byte
}

// Sorter accumulates (key, value) pairs out of key order and replays them
// sorted, per spec.md §6.
type Sorter interface {
	AddBatch(ctx context.Context, pairs []SorterPair) error
	FinishScan(ctx context.Context) (SortedStream, error)
	Reset() error
}

// SortedStream is the sorted replay produced by Sorter.FinishScan.
type SortedStream interface {
	Next(ctx context.Context) (SorterPair, bool, error)
	Close() error
}

// EventListener receives diagnostic events the store-facing layers cannot
// otherwise surface synchronously (spec.md §7's backfill/concurrency error
// kinds); internal/rowlog adapts this onto a structured logger.
type EventListener interface {
	OnEvent(name string, detail map[string]interface{})
}

// Database is the root handle for creating sorters and temporary indexes
// used by IndexBackfill, per spec.md §6.
type Database interface {
	NewSorter(ctx context.Context) (Sorter, error)
	NewTemporaryIndex(ctx context.Context, name string) (Index, error)
	DeleteIndex(ctx context.Context, idx Index) error
	EventListener() EventListener
	IsClosed() bool
}
