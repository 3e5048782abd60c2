// Copyright 2018 The Solid Core Data Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package memstore is a small in-memory implementation of spec.md §6's
// rowstore contract (Cursor/Transaction/Index/Sorter/Database): a mutex-
// guarded sorted map standing in for the external key/value store a real
// deployment would plug in. It backs cmd/rowenginectl's demo backfill run
// and is not meant as a production store — no durability, no real locking,
// a transaction's LockMode is recorded but never enforced.
package memstore

import (
	"bytes"
	"context"
	"sort"
	"sync"
	"sync/atomic"

	"github.com/solidcoredata/rowengine/rowstore"
)

// Index is a sorted, in-memory rowstore.Index.
type Index struct {
	name string
	id   int64

	mu     sync.Mutex
	rows   map[string][]byte
	closed bool
}

// NewIndex returns an empty index named name.
func NewIndex(name string, id int64) *Index {
	return &Index{name: name, id: id, rows: make(map[string][]byte)}
}

func (idx *Index) sortedKeys() []string {
	keys := make([]string, 0, len(idx.rows))
	for k := range idx.rows {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func (idx *Index) NewCursor(txn rowstore.Transaction) (rowstore.Cursor, error) {
	return &cursor{index: idx}, nil
}

func (idx *Index) Store(txn rowstore.Transaction, key, value []byte) error {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	idx.rows[string(key)] = append([]byte(nil), value...)
	return nil
}

func (idx *Index) Delete(txn rowstore.Transaction, key []byte) error {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	delete(idx.rows, string(key))
	return nil
}

func (idx *Index) Exists(txn rowstore.Transaction, key []byte) (bool, error) {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	_, ok := idx.rows[string(key)]
	return ok, nil
}

func (idx *Index) NewTransaction(ctx context.Context, mode rowstore.LockMode) (rowstore.Transaction, error) {
	return &transaction{mode: mode}, nil
}

func (idx *Index) ID() int64    { return idx.id }
func (idx *Index) Name() string { return idx.name }
func (idx *Index) Close() error {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	idx.closed = true
	return nil
}
func (idx *Index) IsClosed() bool {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	return idx.closed
}

// cursor walks one Index's key space. Per rowstore.Cursor's contract it is
// not safe for concurrent use, so it copies the key list on each
// positioning call rather than holding the index's lock across Next/Previous.
type cursor struct {
	index *Index
	keys  []string
	pos   int
}

func (c *cursor) First(ctx context.Context) (bool, error) {
	c.index.mu.Lock()
	c.keys = c.index.sortedKeys()
	c.index.mu.Unlock()
	c.pos = 0
	return len(c.keys) > 0, nil
}

func (c *cursor) Last(ctx context.Context) (bool, error) {
	c.index.mu.Lock()
	c.keys = c.index.sortedKeys()
	c.index.mu.Unlock()
	c.pos = len(c.keys) - 1
	return c.pos >= 0, nil
}

func (c *cursor) Next(ctx context.Context) (bool, error) {
	c.pos++
	return c.pos < len(c.keys), nil
}

func (c *cursor) Previous(ctx context.Context) (bool, error) {
	c.pos--
	return c.pos >= 0, nil
}

func (c *cursor) Find(ctx context.Context, key []byte) (bool, error) {
	c.index.mu.Lock()
	c.keys = c.index.sortedKeys()
	c.index.mu.Unlock()
	for i, k := range c.keys {
		if k == string(key) {
			c.pos = i
			return true, nil
		}
	}
	c.pos = len(c.keys)
	return false, nil
}

func (c *cursor) FindNearby(ctx context.Context, key []byte) (bool, error) {
	c.index.mu.Lock()
	c.keys = c.index.sortedKeys()
	c.index.mu.Unlock()
	idx := sort.SearchStrings(c.keys, string(key))
	c.pos = idx
	return idx < len(c.keys), nil
}

func (c *cursor) Key() []byte {
	if c.pos < 0 || c.pos >= len(c.keys) {
		return nil
	}
	return []byte(c.keys[c.pos])
}

func (c *cursor) Value() []byte {
	if c.pos < 0 || c.pos >= len(c.keys) {
		return nil
	}
	c.index.mu.Lock()
	defer c.index.mu.Unlock()
	return c.index.rows[c.keys[c.pos]]
}

// Autoload is a no-op: this store always materializes Value() from its map
// directly, there is nothing lazy to defer.
func (c *cursor) Autoload(on bool) {}

func (c *cursor) Link(txn rowstore.Transaction) error { return nil }

func (c *cursor) Commit(value []byte) error {
	c.index.mu.Lock()
	defer c.index.mu.Unlock()
	c.index.rows[c.keys[c.pos]] = append([]byte(nil), value...)
	return nil
}

func (c *cursor) Delete() error {
	c.index.mu.Lock()
	defer c.index.mu.Unlock()
	delete(c.index.rows, c.keys[c.pos])
	return nil
}

func (c *cursor) Reset() error { return nil }

// transaction is a no-op unit of work: memstore has no real isolation, so
// every mode behaves like read-committed with immediate visibility.
type transaction struct {
	mode rowstore.LockMode
}

func (t *transaction) Enter(ctx context.Context, mode rowstore.LockMode) (rowstore.Transaction, error) {
	return &transaction{mode: mode}, nil
}
func (t *transaction) Exit() error     { return nil }
func (t *transaction) Commit() error   { return nil }
func (t *transaction) Rollback() error { return nil }
func (t *transaction) LockMode() rowstore.LockMode { return t.mode }
func (t *transaction) LockTimeout() (bool, int64)  { return false, 0 }
func (t *transaction) DurabilityMode() rowstore.DurabilityMode {
	return rowstore.DurabilityDefault
}
func (t *transaction) Unlock(key []byte) error { return nil }

// sorter accumulates pairs and sorts them by key on FinishScan, standing in
// for an external merge sort (spec.md §6).
type sorter struct {
	mu    sync.Mutex
	pairs []rowstore.SorterPair
}

func (s *sorter) AddBatch(ctx context.Context, pairs []rowstore.SorterPair) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, p := range pairs {
		s.pairs = append(s.pairs, rowstore.SorterPair{
			Key:   append([]byte(nil), p.Key...),
			Value: append([]byte(nil), p.Value...),
		})
	}
	return nil
}

func (s *sorter) FinishScan(ctx context.Context) (rowstore.SortedStream, error) {
	s.mu.Lock()
	sorted := append([]rowstore.SorterPair(nil), s.pairs...)
	s.mu.Unlock()
	sort.Slice(sorted, func(i, j int) bool { return bytes.Compare(sorted[i].Key, sorted[j].Key) < 0 })
	return &sortedStream{pairs: sorted}, nil
}

func (s *sorter) Reset() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pairs = nil
	return nil
}

type sortedStream struct {
	pairs []rowstore.SorterPair
	pos   int
}

func (s *sortedStream) Next(ctx context.Context) (rowstore.SorterPair, bool, error) {
	if s.pos >= len(s.pairs) {
		return rowstore.SorterPair{}, false, nil
	}
	p := s.pairs[s.pos]
	s.pos++
	return p, true, nil
}

func (s *sortedStream) Close() error { return nil }

// eventListener forwards every event it receives to fn, so a caller can
// wire it onto a real logger (internal/rowlog.Logger.EventListener) without
// memstore needing to know about logging.
type eventListener struct {
	fn func(name string, detail map[string]interface{})
}

func (l eventListener) OnEvent(name string, detail map[string]interface{}) {
	if l.fn != nil {
		l.fn(name, detail)
	}
}

// Database is the in-memory rowstore.Database backing temporary indexes and
// sorters for a backfill run.
type Database struct {
	listener eventListener

	mu      sync.Mutex
	nextID  int64
	indexes map[string]*Index
	closed  atomic.Bool
}

// NewDatabase returns a Database whose EventListener forwards every event to
// onEvent (nil is fine: events are simply dropped).
func NewDatabase(onEvent func(name string, detail map[string]interface{})) *Database {
	return &Database{listener: eventListener{fn: onEvent}, indexes: make(map[string]*Index)}
}

func (db *Database) NewSorter(ctx context.Context) (rowstore.Sorter, error) {
	return &sorter{}, nil
}

func (db *Database) NewTemporaryIndex(ctx context.Context, name string) (rowstore.Index, error) {
	db.mu.Lock()
	defer db.mu.Unlock()
	db.nextID++
	idx := NewIndex(name, db.nextID)
	db.indexes[name] = idx
	return idx, nil
}

func (db *Database) DeleteIndex(ctx context.Context, idx rowstore.Index) error {
	db.mu.Lock()
	defer db.mu.Unlock()
	delete(db.indexes, idx.Name())
	return idx.Close()
}

func (db *Database) EventListener() rowstore.EventListener { return db.listener }
func (db *Database) IsClosed() bool                        { return db.closed.Load() }

// Close marks the database closed; temporary indexes it created are left as
// they are (DeleteIndex is the only teardown path IndexBackfill uses).
func (db *Database) Close() error {
	db.closed.Store(true)
	return nil
}
