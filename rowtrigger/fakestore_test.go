// Copyright 2018 The Solid Core Data Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package rowtrigger

import (
	"bytes"
	"context"
	"sort"

	"github.com/solidcoredata/rowengine/rowstore"
)

// fakeIndex is a minimal in-memory, sorted rowstore.Index, duplicated from
// rowscan's test double of the same shape (unexported there, so each
// package that needs one builds its own small copy rather than exporting a
// test-only type across package boundaries).
type fakeIndex struct {
	name string
	rows map[string][]byte
}

func newFakeIndex(name string) *fakeIndex {
	return &fakeIndex{name: name, rows: make(map[string][]byte)}
}

func (fi *fakeIndex) sortedKeys() []string {
	keys := make([]string, 0, len(fi.rows))
	for k := range fi.rows {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func (fi *fakeIndex) NewCursor(txn rowstore.Transaction) (rowstore.Cursor, error) {
	return &fakeCursor{index: fi}, nil
}
func (fi *fakeIndex) Store(txn rowstore.Transaction, key, value []byte) error {
	fi.rows[string(key)] = append([]byte(nil), value...)
	return nil
}
func (fi *fakeIndex) Delete(txn rowstore.Transaction, key []byte) error {
	delete(fi.rows, string(key))
	return nil
}
func (fi *fakeIndex) Exists(txn rowstore.Transaction, key []byte) (bool, error) {
	_, ok := fi.rows[string(key)]
	return ok, nil
}
func (fi *fakeIndex) NewTransaction(ctx context.Context, mode rowstore.LockMode) (rowstore.Transaction, error) {
	return &fakeTxn{mode: mode}, nil
}
func (fi *fakeIndex) ID() int64      { return 0 }
func (fi *fakeIndex) Name() string   { return fi.name }
func (fi *fakeIndex) Close() error   { return nil }
func (fi *fakeIndex) IsClosed() bool { return false }

type fakeCursor struct {
	index *fakeIndex
	keys  []string
	pos   int
}

func (c *fakeCursor) First(ctx context.Context) (bool, error) {
	c.keys = c.index.sortedKeys()
	c.pos = 0
	return len(c.keys) > 0, nil
}
func (c *fakeCursor) Last(ctx context.Context) (bool, error) {
	c.keys = c.index.sortedKeys()
	c.pos = len(c.keys) - 1
	return c.pos >= 0, nil
}
func (c *fakeCursor) Next(ctx context.Context) (bool, error) {
	c.pos++
	return c.pos < len(c.keys), nil
}
func (c *fakeCursor) Previous(ctx context.Context) (bool, error) {
	c.pos--
	return c.pos >= 0, nil
}
func (c *fakeCursor) Find(ctx context.Context, key []byte) (bool, error) {
	c.keys = c.index.sortedKeys()
	for i, k := range c.keys {
		if k == string(key) {
			c.pos = i
			return true, nil
		}
	}
	c.pos = len(c.keys)
	return false, nil
}
func (c *fakeCursor) FindNearby(ctx context.Context, key []byte) (bool, error) {
	c.keys = c.index.sortedKeys()
	idx := sort.SearchStrings(c.keys, string(key))
	c.pos = idx
	return idx < len(c.keys), nil
}
func (c *fakeCursor) Key() []byte {
	if c.pos < 0 || c.pos >= len(c.keys) {
		return nil
	}
	return []byte(c.keys[c.pos])
}
func (c *fakeCursor) Value() []byte {
	if c.pos < 0 || c.pos >= len(c.keys) {
		return nil
	}
	return c.index.rows[c.keys[c.pos]]
}
func (c *fakeCursor) Autoload(on bool)                     {}
func (c *fakeCursor) Link(txn rowstore.Transaction) error { return nil }
func (c *fakeCursor) Commit(value []byte) error {
	c.index.rows[c.keys[c.pos]] = append([]byte(nil), value...)
	return nil
}
func (c *fakeCursor) Delete() error {
	delete(c.index.rows, c.keys[c.pos])
	return nil
}
func (c *fakeCursor) Reset() error { return nil }

type fakeTxn struct {
	mode rowstore.LockMode
}

func (t *fakeTxn) Enter(ctx context.Context, mode rowstore.LockMode) (rowstore.Transaction, error) {
	return &fakeTxn{mode: mode}, nil
}
func (t *fakeTxn) Exit() error     { return nil }
func (t *fakeTxn) Commit() error   { return nil }
func (t *fakeTxn) Rollback() error { return nil }
func (t *fakeTxn) LockMode() rowstore.LockMode { return t.mode }
func (t *fakeTxn) LockTimeout() (bool, int64)  { return false, 0 }
func (t *fakeTxn) DurabilityMode() rowstore.DurabilityMode {
	return rowstore.DurabilityDefault
}
func (t *fakeTxn) Unlock(key []byte) error { return nil }

// fakeSorter accumulates pairs out of order and replays them sorted by key,
// a minimal stand-in for spec.md §6's Sorter/SortedStream contract.
type fakeSorter struct {
	pairs []rowstore.SorterPair
}

func (s *fakeSorter) AddBatch(ctx context.Context, pairs []rowstore.SorterPair) error {
	for _, p := range pairs {
		s.pairs = append(s.pairs, rowstore.SorterPair{
			Key:   append([]byte(nil), p.Key...),
			Value: append([]byte(nil), p.Value...),
		})
	}
	return nil
}

func (s *fakeSorter) FinishScan(ctx context.Context) (rowstore.SortedStream, error) {
	sorted := append([]rowstore.SorterPair(nil), s.pairs...)
	sort.Slice(sorted, func(i, j int) bool { return bytes.Compare(sorted[i].Key, sorted[j].Key) < 0 })
	return &fakeSortedStream{pairs: sorted}, nil
}

func (s *fakeSorter) Reset() error {
	s.pairs = nil
	return nil
}

type fakeSortedStream struct {
	pairs []rowstore.SorterPair
	pos   int
}

func (s *fakeSortedStream) Next(ctx context.Context) (rowstore.SorterPair, bool, error) {
	if s.pos >= len(s.pairs) {
		return rowstore.SorterPair{}, false, nil
	}
	p := s.pairs[s.pos]
	s.pos++
	return p, true, nil
}

func (s *fakeSortedStream) Close() error { return nil }

// fakeEventListener records every OnEvent call for test assertions.
type fakeEventListener struct {
	events []string
}

func (l *fakeEventListener) OnEvent(name string, detail map[string]interface{}) {
	l.events = append(l.events, name)
}

// fakeDatabase is the minimal rowstore.Database backing IndexBackfill tests.
type fakeDatabase struct {
	listener *fakeEventListener
	deleted  []string
}

func newFakeDatabase() *fakeDatabase {
	return &fakeDatabase{listener: &fakeEventListener{}}
}

func (db *fakeDatabase) NewSorter(ctx context.Context) (rowstore.Sorter, error) {
	return &fakeSorter{}, nil
}
func (db *fakeDatabase) NewTemporaryIndex(ctx context.Context, name string) (rowstore.Index, error) {
	return newFakeIndex(name), nil
}
func (db *fakeDatabase) DeleteIndex(ctx context.Context, idx rowstore.Index) error {
	db.deleted = append(db.deleted, idx.Name())
	return nil
}
func (db *fakeDatabase) EventListener() rowstore.EventListener { return db.listener }
func (db *fakeDatabase) IsClosed() bool                        { return false }
