// Copyright 2018 The Solid Core Data Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package rowscan

import (
	"context"

	"github.com/cockroachdb/errors"

	"github.com/solidcoredata/rowengine/rowinfo"
	"github.com/solidcoredata/rowengine/rowstore"
)

// State is one of the Scanner's four states, per spec.md §4.4.
type State int

const (
	InitPending State = iota
	Positioned
	Finished
	Closed
)

// Scanner drives a ScanController over a source index within one
// transaction, decoding and filtering rows range by range.
type Scanner struct {
	controller ScanController
	source     rowstore.Index
	txn        rowstore.Transaction

	state      State
	cursor     rowstore.Cursor
	current    *rowinfo.Row
	currentKey []byte
}

// NewScanner returns a scanner in state InitPending; call Init before
// Current/Step.
func NewScanner(controller ScanController, source rowstore.Index, txn rowstore.Transaction) *Scanner {
	return &Scanner{controller: controller, source: source, txn: txn, state: InitPending}
}

// State returns the scanner's current state.
func (s *Scanner) State() State { return s.state }

// Current returns the currently positioned row, if any.
func (s *Scanner) Current() (*rowinfo.Row, bool) {
	if s.state != Positioned {
		return nil, false
	}
	return s.current, true
}

// Init positions the scanner at its first matching row, per spec.md §4.4:
// "for each range, position the cursor at first in-bound row; decode and
// filter; if accepted, publish as current; if cursor empty, advance to
// next range; if all empty, transition to Finished."
func (s *Scanner) Init(ctx context.Context) error {
	if s.state != InitPending {
		return errors.Newf("rowscan: Init called in state %d, want InitPending", s.state)
	}
	if err := s.openCursorForCurrentRange(ctx); err != nil {
		if errors.Is(err, errNoCurrentRange) {
			// The controller was built from zero ranges: there is
			// nothing to scan.
			s.state = Finished
			return nil
		}
		return err
	}
	return s.advanceUntilMatchOrDone(ctx, true)
}

// Step advances past the current row and positions at the next matching
// row, per spec.md §4.4's "advance cursor; loop as above. Receiving the
// stop sentinel collapses the current range without error."
func (s *Scanner) Step(ctx context.Context) error {
	if s.state != Positioned {
		return errors.Newf("rowscan: Step called in state %d, want Positioned", s.state)
	}
	return s.advanceUntilMatchOrDone(ctx, false)
}

// Close resets the cursor and transitions to Closed. Idempotent.
func (s *Scanner) Close() error {
	if s.state == Closed {
		return nil
	}
	var err error
	if s.cursor != nil {
		err = s.cursor.Reset()
		s.cursor = nil
	}
	s.state = Closed
	return err
}

// openCursorForCurrentRange opens (or reopens, for a later range) the
// cursor over the controller's current range.
func (s *Scanner) openCursorForCurrentRange(ctx context.Context) error {
	if s.cursor != nil {
		if err := s.cursor.Reset(); err != nil {
			return err
		}
	}
	cur, err := s.controller.NewCursor(ctx, s.source, s.txn)
	if err != nil {
		return err
	}
	s.cursor = cur
	return nil
}

// advanceUntilMatchOrDone walks forward (advancing the cursor first unless
// first is true, meaning the cursor is already positioned by Init) until a
// row passes its range's evaluator, a range is exhausted (advance to the
// next controller range), or every range is exhausted (Finished).
func (s *Scanner) advanceUntilMatchOrDone(ctx context.Context, first bool) error {
	for {
		ok, err := s.positionWithinRange(ctx, first)
		first = false
		if err != nil {
			return err
		}
		if !ok {
			if !s.controller.Next() {
				s.current = nil
				s.currentKey = nil
				s.state = Finished
				return nil
			}
			if err := s.openCursorForCurrentRange(ctx); err != nil {
				return err
			}
			first = true
			continue
		}

		key := append([]byte(nil), s.cursor.Key()...)
		value := s.cursor.Value()
		row, result, err := s.controller.Evaluator().Evaluate(key, value)
		if err != nil {
			return err
		}
		if result == EvalReject {
			// Drop any read lock the cursor acquired positioning here: the
			// row is not part of the result set, per spec.md §4.4's
			// "the scanner releases the lock to avoid retaining unneeded
			// conflict state".
			if s.txn != nil {
				if uerr := s.txn.Unlock(key); uerr != nil {
					return uerr
				}
			}
			continue
		}

		s.current = row
		s.currentKey = key
		s.state = Positioned
		return nil
	}
}

// positionWithinRange advances the cursor (unless first), steps past any
// keys an exclusive low bound excludes, and reports whether the resulting
// position is still within the current range's bounds.
func (s *Scanner) positionWithinRange(ctx context.Context, first bool) (bool, error) {
	if first {
		// openCursorForCurrentRange already positioned the cursor via
		// FindNearby/First; an empty Key means the index (or the bound)
		// had nothing to find.
		if len(s.cursor.Key()) == 0 {
			return false, nil
		}
	} else if ok, err := s.cursor.Next(ctx); err != nil || !ok {
		return false, err
	}
	for s.controller.Bounds().belowLow(s.cursor.Key()) {
		if ok, err := s.cursor.Next(ctx); err != nil || !ok {
			return false, err
		}
	}
	return s.checkBounds(), nil
}

func (s *Scanner) checkBounds() bool {
	b := s.controller.Bounds()
	key := s.cursor.Key()
	if b.belowLow(key) {
		return false
	}
	return !b.exceedsHigh(key)
}
