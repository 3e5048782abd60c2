// Copyright 2018 The Solid Core Data Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package rowtrigger implements spec.md §4.6: the per-table Trigger
// lifecycle (a ref-counted, drain-on-disable volatile reference) and
// IndexBackfill, the online secondary-index build that rides on it.
package rowtrigger

import (
	"context"
	"sync/atomic"

	"github.com/cockroachdb/errors"

	"github.com/solidcoredata/rowengine/rowstore"
)

// ErrTriggerChurn is returned by TriggerSlot.Acquire when the slot is
// disabled twice in a row while a caller is trying to acquire it — the
// rare race spec.md §7 calls out explicitly: "a caller may retry once."
var ErrTriggerChurn = errors.New("rowtrigger: trigger slot churned through two disables while acquiring; retry the write")

// Trigger is the hook a table invokes on every write, responsible for
// secondary-index maintenance (GLOSSARY). value on OnDelete is the row's
// last-known (pre-delete) encoded value: a secondary key is frequently
// derived from value columns, not just the primary key, so a delete must
// carry enough of the deleted row to recompute it.
type Trigger interface {
	OnWrite(ctx context.Context, txn rowstore.Transaction, key, value []byte) error
	OnDelete(ctx context.Context, txn rowstore.Transaction, key, value []byte) error
}

// NopTrigger does nothing; it is the trigger a table holds before any
// secondary index exists for it.
type NopTrigger struct{}

func (NopTrigger) OnWrite(ctx context.Context, txn rowstore.Transaction, key, value []byte) error {
	return nil
}

func (NopTrigger) OnDelete(ctx context.Context, txn rowstore.Transaction, key, value []byte) error {
	return nil
}

// triggerHandle pairs one Trigger with the ref-count spec.md §4.6 describes:
// "setting a new trigger returns only after every operation observing the
// old trigger completes; this is implemented as a ref-count that the new
// trigger exposes, plus a disable() barrier that waits for the count to
// drain." A plain sync.WaitGroup cannot serve here: Add must never race a
// concurrent Wait, but TriggerSlot.Set can start draining a handle while a
// late operation is still trying to acquire it. refs/closing are therefore
// driven by hand with sync/atomic, and drained is closed exactly once by
// whichever of disable() or the last release() observes refs reach zero
// after closing is set.
type triggerHandle struct {
	trigger Trigger
	refs    int64
	closing int32
	drained chan struct{}
	closed  int32
}

func newTriggerHandle(t Trigger) *triggerHandle {
	return &triggerHandle{trigger: t, drained: make(chan struct{})}
}

// tryAcquire increments the handle's ref-count and reports whether the
// handle is still open. A false result means disable() has already started
// draining it; the caller must not use h.trigger and must retry against a
// freshly loaded handle.
func (h *triggerHandle) tryAcquire() bool {
	atomic.AddInt64(&h.refs, 1)
	if atomic.LoadInt32(&h.closing) == 0 {
		return true
	}
	h.release()
	return false
}

func (h *triggerHandle) release() {
	if atomic.AddInt64(&h.refs, -1) == 0 && atomic.LoadInt32(&h.closing) != 0 {
		h.closeDrained()
	}
}

func (h *triggerHandle) closeDrained() {
	if atomic.CompareAndSwapInt32(&h.closed, 0, 1) {
		close(h.drained)
	}
}

// disable marks the handle closing and blocks until every in-flight
// acquirer has released it.
func (h *triggerHandle) disable() {
	atomic.StoreInt32(&h.closing, 1)
	if atomic.LoadInt64(&h.refs) == 0 {
		h.closeDrained()
	}
	<-h.drained
}

// TriggerSlot is a table's volatile reference to its current Trigger,
// per spec.md §5's "Trigger field: atomic pointer with get-acquire/
// set-release semantics; old trigger drained via its own ref-count."
type TriggerSlot struct {
	current atomic.Pointer[triggerHandle]
}

// NewTriggerSlot returns a slot initialized to initial (NopTrigger{} if the
// table has no secondary indexes yet).
func NewTriggerSlot(initial Trigger) *TriggerSlot {
	s := &TriggerSlot{}
	s.current.Store(newTriggerHandle(initial))
	return s
}

// Acquire loads the current trigger and marks it in use; the caller must
// invoke the returned release func exactly once, regardless of outcome.
// Per spec.md §4.6, "operations atomically load+acquire the current trigger
// once per write, then proceed — so both old and new triggers may run
// concurrently during the transition window, which is accepted as long as
// both are correct." If the loaded handle is found draining (the rare
// transition window of spec.md §7), Acquire reloads and retries once before
// surfacing an error.
func (s *TriggerSlot) Acquire() (Trigger, func(), error) {
	for attempt := 0; attempt < 2; attempt++ {
		h := s.current.Load()
		if h.tryAcquire() {
			return h.trigger, h.release, nil
		}
	}
	return nil, nil, ErrTriggerChurn
}

// Current returns the slot's trigger without acquiring it, for read-only
// inspection (e.g. logging); callers that will invoke the trigger must use
// Acquire instead.
func (s *TriggerSlot) Current() Trigger {
	return s.current.Load().trigger
}

// Set installs next as the slot's current trigger and blocks until every
// operation that had acquired the previous trigger has released it.
func (s *TriggerSlot) Set(next Trigger) {
	h := newTriggerHandle(next)
	old := s.current.Swap(h)
	old.disable()
}
