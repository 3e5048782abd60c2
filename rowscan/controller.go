// Copyright 2018 The Solid Core Data Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package rowscan implements spec.md §4.4: the scan controller, the
// MultiScanController that concatenates per-range controllers, the
// Scanner state machine, and the four RowUpdater lock-mode variants.
package rowscan

import (
	"bytes"
	"context"

	"github.com/cockroachdb/errors"

	"github.com/solidcoredata/rowengine/rowfilter"
	"github.com/solidcoredata/rowengine/rowinfo"
	"github.com/solidcoredata/rowengine/rowschema"
	"github.com/solidcoredata/rowengine/rowstore"
)

// Bounds is the encoded [low, high] key span one range of a
// ScanController covers, per spec.md §4.4's "opens a cursor over the
// underlying index restricted to [low, high] with the indicated
// inclusiveness". A nil Low means "from the start of the index"; a nil
// High means "to the end of the index".
type Bounds struct {
	Low          []byte
	LowInclusive bool

	High          []byte
	HighInclusive bool
}

// exceedsHigh reports whether key is past this range's high bound (so the
// scanner should move on to the next range rather than evaluate key). An
// inclusive High also covers every longer key that starts with it, so a
// High built from a prefix of the key columns keeps the keys under that
// prefix in range.
func (b Bounds) exceedsHigh(key []byte) bool {
	if b.High == nil {
		return false
	}
	cmp := compareKeys(key, b.High)
	if b.HighInclusive {
		return cmp > 0 && !bytes.HasPrefix(key, b.High)
	}
	return cmp >= 0
}

// belowLow reports whether an exclusive low bound excludes key: key equals
// Low or starts with it. FindNearby positions at the first key >= Low, so
// such keys are the first ones a range visits; the scanner steps past them.
func (b Bounds) belowLow(key []byte) bool {
	if b.Low == nil || b.LowInclusive {
		return false
	}
	return bytes.HasPrefix(key, b.Low)
}

func compareKeys(a, b []byte) int {
	switch {
	case len(a) < len(b):
		for i := range a {
			if a[i] != b[i] {
				return int(a[i]) - int(b[i])
			}
		}
		return -1
	case len(a) > len(b):
		for i := range b {
			if a[i] != b[i] {
				return int(a[i]) - int(b[i])
			}
		}
		return 1
	default:
		for i := range a {
			if a[i] != b[i] {
				return int(a[i]) - int(b[i])
			}
		}
		return 0
	}
}

// ScanController is spec.md §4.4's controller contract.
type ScanController interface {
	// NewCursor opens a cursor over source positioned at the current
	// range's low bound (or First, if unbounded below).
	NewCursor(ctx context.Context, source rowstore.Index, txn rowstore.Transaction) (rowstore.Cursor, error)

	// Evaluator returns the per-row decode/filter routine for the current
	// range.
	Evaluator() *RowEvaluator

	// Bounds returns the current range's key span, used by the Scanner to
	// detect when the cursor has walked past the range (the "stop
	// sentinel" of spec.md §4.4).
	Bounds() Bounds

	// Predicate returns the shared predicate object for predicate locking
	// (non-nil only when predicate locking is enabled), per spec.md §4.4.
	Predicate() *rowfilter.RowPredicate

	// Next advances to the next range, returning false when all ranges are
	// exhausted.
	Next() bool
}

// EvalResult is what RowEvaluator.Evaluate decided about one (key, value)
// pair.
type EvalResult int

const (
	EvalMatch EvalResult = iota
	EvalReject
)

// RowEvaluator is the per-row decode/filter routine of spec.md §4.4: decode
// the schema-versioned value via the registry, then test the range's
// remainder predicate against the decoded row.
type RowEvaluator struct {
	RowType   string
	IndexID   int64
	Registry  *rowschema.Registry
	Predicate *rowfilter.RowPredicate // the range's remainder predicate; nil means "always match"
}

// Evaluate decodes key and schema-dispatches value, then tests the range's
// remainder predicate against it using spec.md §4.3's test(key,value) quick
// path (rowfilter.RowPredicate.TestEncoded): columns the predicate does not
// reference are skipped rather than decoded, so a rejected row never pays
// for materializing columns the filter never looks at. Only a row that
// matches (or a row evaluated with no predicate at all) pays for a full
// decode.
func (e *RowEvaluator) Evaluate(key, value []byte) (*rowinfo.Row, EvalResult, error) {
	version, rest, err := rowschema.DecodeSchemaVersion(value)
	if err != nil {
		return nil, EvalReject, errors.Wrapf(err, "rowscan: %s: decoding schema version", e.RowType)
	}
	info, decode, err := e.Registry.Lookup(e.RowType, e.IndexID, version)
	if err != nil {
		return nil, EvalReject, err
	}

	if e.Predicate != nil {
		keyRow := rowinfo.NewRow(info)
		if err := rowschema.DecodeKey(info, key, keyRow); err != nil {
			return nil, EvalReject, err
		}
		ok, err := e.Predicate.TestEncoded(func(_ *rowfilter.EvalContext, column string) (interface{}, error) {
			return keyRow.Get(column)
		}, rest, info)
		if err != nil {
			return keyRow, EvalReject, err
		}
		if !ok {
			return keyRow, EvalReject, nil
		}
	}

	row := rowinfo.NewRow(info)
	if err := rowschema.DecodeKey(info, key, row); err != nil {
		return nil, EvalReject, err
	}
	if err := decode(rest, row); err != nil {
		return nil, EvalReject, err
	}
	return row, EvalMatch, nil
}
