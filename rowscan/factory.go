// Copyright 2018 The Solid Core Data Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package rowscan

import (
	"context"

	"github.com/cockroachdb/errors"

	"github.com/solidcoredata/rowengine/rowfilter"
	"github.com/solidcoredata/rowengine/rowinfo"
	"github.com/solidcoredata/rowengine/rowschema"
	"github.com/solidcoredata/rowengine/rowstore"
)

var errNoCurrentRange = errors.New("rowscan: no current range; MultiScanController is exhausted")

// singleRangeController is a ScanController positioned on exactly one
// rowfilter.Range.
type singleRangeController struct {
	bounds    Bounds
	evaluator *RowEvaluator
	predicate *rowfilter.RowPredicate
}

func (c *singleRangeController) NewCursor(ctx context.Context, source rowstore.Index, txn rowstore.Transaction) (rowstore.Cursor, error) {
	cur, err := source.NewCursor(txn)
	if err != nil {
		return nil, err
	}
	if c.bounds.Low == nil {
		if _, err := cur.First(ctx); err != nil {
			return nil, err
		}
		return cur, nil
	}
	if _, err := cur.FindNearby(ctx, c.bounds.Low); err != nil {
		return nil, err
	}
	return cur, nil
}

func (c *singleRangeController) Evaluator() *RowEvaluator           { return c.evaluator }
func (c *singleRangeController) Bounds() Bounds                     { return c.bounds }
func (c *singleRangeController) Predicate() *rowfilter.RowPredicate { return c.predicate }
func (c *singleRangeController) Next() bool                         { return false }

// MultiScanController concatenates per-range controllers in order, per
// spec.md §4.4: "rows within a range are delivered in ascending key order;
// between ranges, rows are delivered in controller order (which matches
// DNF term order)".
type MultiScanController struct {
	controllers []*singleRangeController
	idx         int
}

// ScanControllerFactory builds scan controllers for one table: it combines a compiled filter's DNF ranges (rowfilter.MultiRangeExtract)
// with the table's schema registry to produce, per call to Build, a
// MultiScanController seeded with one call's runtime arguments.
type ScanControllerFactory struct {
	info             *rowinfo.RowInfo
	registry         *rowschema.Registry
	rowType          string
	indexID          int64
	predicateLocking bool
}

// NewScanControllerFactory returns a factory for rowType's indexID, using
// registry to resolve schema-versioned decoders. When predicateLocking is
// true, each range's ScanController.Predicate returns its remainder
// predicate (non-nil) so callers can acquire predicate locks per spec.md
// §4.4's "non-None only if predicate locking is enabled"; otherwise
// Predicate always returns nil even though the evaluator still applies the
// remainder filter.
func NewScanControllerFactory(info *rowinfo.RowInfo, registry *rowschema.Registry, rowType string, indexID int64, predicateLocking bool) *ScanControllerFactory {
	return &ScanControllerFactory{info: info, registry: registry, rowType: rowType, indexID: indexID, predicateLocking: predicateLocking}
}

// Build compiles ranges (already DNF'd, from rowfilter.MultiRangeExtract)
// against args into a MultiScanController ready for scanning.
func (f *ScanControllerFactory) Build(keyColumns []string, ranges []rowfilter.Range, args []interface{}) (*MultiScanController, error) {
	controllers := make([]*singleRangeController, 0, len(ranges))
	for _, r := range ranges {
		bounds, err := encodeBounds(f.info, r, args)
		if err != nil {
			return nil, err
		}
		pred, err := rowfilter.NewRowPredicate(f.info, r.Remainder, args)
		if err != nil {
			return nil, err
		}
		var exposedPred *rowfilter.RowPredicate
		if f.predicateLocking {
			exposedPred = pred
		}
		controllers = append(controllers, &singleRangeController{
			bounds: bounds,
			evaluator: &RowEvaluator{
				RowType:   f.rowType,
				IndexID:   f.indexID,
				Registry:  f.registry,
				Predicate: pred,
			},
			predicate: exposedPred,
		})
	}
	if len(controllers) == 0 {
		// No ranges at all (an empty ranges list; a False filter still
		// arrives as one range whose remainder rejects every row): an empty
		// controller list still satisfies the ScanController contract, just
		// with zero ranges to iterate.
		return &MultiScanController{}, nil
	}
	return &MultiScanController{controllers: controllers}, nil
}

func (m *MultiScanController) current() *singleRangeController {
	if m.idx >= len(m.controllers) {
		return nil
	}
	return m.controllers[m.idx]
}

func (m *MultiScanController) NewCursor(ctx context.Context, source rowstore.Index, txn rowstore.Transaction) (rowstore.Cursor, error) {
	c := m.current()
	if c == nil {
		return nil, errNoCurrentRange
	}
	return c.NewCursor(ctx, source, txn)
}

func (m *MultiScanController) Evaluator() *RowEvaluator {
	c := m.current()
	if c == nil {
		return nil
	}
	return c.Evaluator()
}

func (m *MultiScanController) Bounds() Bounds {
	c := m.current()
	if c == nil {
		return Bounds{}
	}
	return c.Bounds()
}

func (m *MultiScanController) Predicate() *rowfilter.RowPredicate {
	c := m.current()
	if c == nil {
		return nil
	}
	return c.Predicate()
}

// Next advances to the next range, returning false once every range has
// been visited.
func (m *MultiScanController) Next() bool {
	if m.idx+1 >= len(m.controllers) {
		m.idx = len(m.controllers)
		return false
	}
	m.idx++
	return true
}

var (
	_ ScanController = (*singleRangeController)(nil)
	_ ScanController = (*MultiScanController)(nil)
)
