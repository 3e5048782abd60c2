// Copyright 2018 The Solid Core Data Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package rowscan

import (
	"context"
	"sort"

	"github.com/solidcoredata/rowengine/rowstore"
)

// fakeIndex is a minimal in-memory, sorted rowstore.Index used to exercise
// ScanController/Scanner/RowUpdater without a real storage engine.
type fakeIndex struct {
	rows map[string][]byte
}

func newFakeIndex(pairs map[string][]byte) *fakeIndex {
	fi := &fakeIndex{rows: make(map[string][]byte, len(pairs))}
	for k, v := range pairs {
		fi.rows[k] = v
	}
	return fi
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
func (fi *fakeIndex) Name() string   { return "fake" }
func (fi *fakeIndex) Close() error   { return nil }
func (fi *fakeIndex) IsClosed() bool { return false }

type fakeCursor struct {
	index *fakeIndex
	keys  []string
	pos   int
}

func (c *fakeCursor) ensureKeys() {
	if c.keys == nil {
		c.keys = c.index.sortedKeys()
		c.pos = -1
	}
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
	c.ensureKeys()
	c.pos++
	return c.pos < len(c.keys), nil
}
func (c *fakeCursor) Previous(ctx context.Context) (bool, error) {
	c.ensureKeys()
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
func (c *fakeCursor) Autoload(on bool) {}
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
	mode     rowstore.LockMode
	unlocked [][]byte
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
func (t *fakeTxn) Unlock(key []byte) error {
	t.unlocked = append(t.unlocked, append([]byte(nil), key...))
	return nil
}
