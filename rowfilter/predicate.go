// Copyright 2018 The Solid Core Data Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package rowfilter

import (
	"github.com/cockroachdb/errors"
	"github.com/kelindar/bitmap"

	"github.com/solidcoredata/rowengine/rowcodec"
	"github.com/solidcoredata/rowengine/rowinfo"
)

// Getter fetches a column's decoded value on behalf of a RowPredicate
// evaluation. ctx.Located tracks which column numbers have already been
// positioned along the current left-most evaluation path (spec.md §4.3
// "track which encoded column offsets are already located along the
// current left-most path so that re-used columns don't re-parse their
// prefixes"); a Getter backed by an on-demand byte decoder (rowscan) can
// consult it to skip re-scanning a variable-width prefix it has already
// walked past for an earlier leaf on the same path.
type Getter func(ctx *EvalContext, column string) (interface{}, error)

// EvalContext carries the left-most-path column-location bitmap through one
// RowPredicate evaluation.
type EvalContext struct {
	Located bitmap.Bitmap
}

func newEvalContext() *EvalContext { return &EvalContext{} }

// resetForBranch returns the context to use for a non-left-most child: per
// spec.md §4.3, tracking resets because a non-left branch may not have
// executed, so any columns "located" while evaluating the left sibling are
// not necessarily located on this path.
func (c *EvalContext) resetForBranch() *EvalContext { return newEvalContext() }

// RowPredicate is the reusable evaluator for one filter against one
// RowInfo, built with a concrete set of runtime arguments (spec.md §4.3's
// constructor entry point). Per spec.md §9's design note replacing bespoke
// runtime bytecode with an interpreter, no program is compiled: the three
// exported Test* methods walk the filter AST itself, dispatching on each
// node's type (evalStrict, evalTri).
type RowPredicate struct {
	info   *rowinfo.RowInfo
	filter Filter
	args   []interface{} // converted, typed arguments indexed by placeholder number
	// spans holds a pre-encoded byte form of each argument compared by
	// EQ/NE against a span-producing quick-filter column (strings; the
	// array and big-number codecs answer CanFilterQuick false), used by
	// quick-filter comparisons; nil entries mean "no such column uses this
	// arg".
	spans [][]byte
}

// NewRowPredicate compiles filter against info with the given raw arguments
// (already Go-typed, not yet column-converted). Each ColumnToArg's argument
// is converted to the referenced column's logical type via convertArg,
// spec.md §9's "small converter trait selected by (fromKind, toKind)".
func NewRowPredicate(info *rowinfo.RowInfo, filter Filter, rawArgs []interface{}) (*RowPredicate, error) {
	p := &RowPredicate{info: info, filter: filter}
	if len(rawArgs) > 0 {
		p.args = make([]interface{}, len(rawArgs))
		p.spans = make([][]byte, len(rawArgs))
		copy(p.args, rawArgs)
	}
	if err := p.convertArgs(filter); err != nil {
		return nil, err
	}
	return p, nil
}

func (p *RowPredicate) convertArgs(f Filter) error {
	switch v := f.(type) {
	case And:
		for _, c := range v.Children {
			if err := p.convertArgs(c); err != nil {
				return err
			}
		}
	case Or:
		for _, c := range v.Children {
			if err := p.convertArgs(c); err != nil {
				return err
			}
		}
	case ColumnToArg:
		if v.ArgNum < 0 || v.ArgNum >= len(p.args) {
			return errors.Newf("rowfilter: filter %q references missing argument ?%d", p.filter.String(), v.ArgNum)
		}
		col, ok := p.info.Column(v.Column)
		if !ok {
			return errors.Newf("rowfilter: %s: filter %q references unknown column %q", p.info.Name, p.filter.String(), v.Column)
		}
		if v.Op == OpIN || v.Op == OpNotIN {
			// The argument is a set/array of the column's type, not a
			// single scalar (spec.md §9): membership() walks it and
			// compareValues converts each element, so it is left as-is.
			return nil
		}
		converted, err := convertArg(col, p.args[v.ArgNum])
		if err != nil {
			return errors.Wrapf(err, "rowfilter: %s: converting argument ?%d for column %q", p.info.Name, v.ArgNum, v.Column)
		}
		p.args[v.ArgNum] = converted

		// Non-primitive value columns whose codec answers CanFilterQuick
		// (strings) support the quick-filter path of spec.md §4.1: pre-encode the
		// argument once, in the same framing test(key,value) will locate at
		// scan time, so TestEncoded can memcmp spans instead of decoding.
		// Restricted to EQ/NE per spec.md §4.1's "for the value regime only
		// EQ/NE... is sound". Primitive columns need no span: their
		// FilterQuickDecode already returns a boxed, directly comparable
		// scalar.
		if (v.Op == OpEQ || v.Op == OpNE) && col.Number() >= len(p.info.KeyColumns) {
			if qc, ok := col.ValueCodec.(rowcodec.QuickCodec); ok && qc.CanFilterQuick(col.TypeCode) {
				if _, isPrimitive := col.ValueCodec.(*rowcodec.PrimitiveCodec); !isPrimitive {
					if span, err := encodeQuickSpan(qc, converted, isLastValueColumn(p.info, v.Column)); err == nil {
						p.spans[v.ArgNum] = span
					}
				}
			}
		}
	}
	return nil
}

// isLastValueColumn reports whether name is the last column in info's
// value-encode order, the framing flag spec.md's codec contract threads
// through Encode/Decode ("the last column in a group omits length").
func isLastValueColumn(info *rowinfo.RowInfo, name string) bool {
	cols := info.ValueColumns
	return len(cols) > 0 && cols[len(cols)-1].Name == name
}

// encodeQuickSpan encodes v with qc the same way it would appear inside an
// encoded row's value blob, for later memcmp against a FilterQuickDecode
// span.
func encodeQuickSpan(qc rowcodec.QuickCodec, v interface{}, isLast bool) ([]byte, error) {
	extra, err := qc.EncodeSize(v)
	if err != nil {
		return nil, err
	}
	buf := make([]byte, qc.MinSize()+extra)
	off := 0
	if err := qc.Encode(v, buf, &off, isLast); err != nil {
		return nil, err
	}
	return buf[:off], nil
}

// Test evaluates the predicate against a fully available getter (spec.md
// §4.3 entry point 1: test(row), against an already-decoded row).
func (p *RowPredicate) Test(get Getter) (bool, error) {
	ctx := newEvalContext()
	return p.evalStrict(p.filter, ctx, get)
}

// TestEncoded is spec.md §4.3 entry point 2, test(key, value): it decodes
// value on demand rather than up front. info.ValueColumns is walked in
// encode order; columns the filter never references are advanced past with
// DecodeSkip instead of materialized, columns it does reference are
// quick-decoded via rowcodec.QuickCodec when the column's codec supports it
// (a boxed scalar for primitive columns, a located byte span for
// byte-oriented ones — spec.md §4.1's "Quick filter decode"), and every
// other referenced column falls back to a full Decode. keyGet supplies any
// key-column values the filter also references (key columns are not present
// in value, so they're never part of this walk).
func (p *RowPredicate) TestEncoded(keyGet Getter, value []byte, info *rowinfo.RowInfo) (bool, error) {
	referenced := Columns(p.filter)
	want := make(map[string]bool, len(referenced))
	for _, c := range referenced {
		want[c] = true
	}

	decoded := make(map[string]interface{}, len(want))
	off := 0
	cols := info.ValueColumns
	for i, col := range cols {
		isLast := i == len(cols)-1
		if !want[col.Name] {
			if err := col.ValueCodec.DecodeSkip(value, &off, len(value), isLast); err != nil {
				return false, errors.Wrapf(err, "rowfilter: %s: skipping column %q", info.Name, col.Name)
			}
			continue
		}
		if qc, ok := col.ValueCodec.(rowcodec.QuickCodec); ok && qc.CanFilterQuick(col.TypeCode) {
			qv, err := qc.FilterQuickDecode(value, &off, len(value), isLast)
			if err != nil {
				return false, errors.Wrapf(err, "rowfilter: %s: quick-decoding column %q", info.Name, col.Name)
			}
			switch {
			case qv.IsNull:
				decoded[col.Name] = nil
			case qv.Span != nil:
				decoded[col.Name] = qv.Span
			default:
				decoded[col.Name] = qv.Scalar
			}
			continue
		}
		v, err := col.ValueCodec.Decode(value, &off, len(value), isLast)
		if err != nil {
			return false, errors.Wrapf(err, "rowfilter: %s: decoding column %q", info.Name, col.Name)
		}
		decoded[col.Name] = v
	}

	get := func(ctx *EvalContext, column string) (interface{}, error) {
		if v, ok := decoded[column]; ok {
			return v, nil
		}
		return keyGet(ctx, column)
	}
	return p.Test(get)
}

func (p *RowPredicate) evalStrict(f Filter, ctx *EvalContext, get Getter) (bool, error) {
	switch v := f.(type) {
	case True:
		return true, nil
	case False:
		return false, nil
	case ColumnToArg:
		val, err := get(ctx, v.Column)
		if err != nil {
			return false, err
		}
		if col, ok := p.info.Column(v.Column); ok {
			ctx.Located.Set(uint32(col.Number()))
		}
		return p.evalColumnToArg(v, val)
	case ColumnToColumn:
		a, err := get(ctx, v.Column)
		if err != nil {
			return false, err
		}
		b, err := get(ctx, v.Column2)
		if err != nil {
			return false, err
		}
		cmp, err := compareValues(a, b)
		if err != nil {
			return false, err
		}
		return evalOpGeneric(v.Op, cmp), nil
	case And:
		for i, c := range v.Children {
			childCtx := ctx
			if i > 0 {
				childCtx = ctx.resetForBranch()
			}
			ok, err := p.evalStrict(c, childCtx, get)
			if err != nil {
				return false, err
			}
			if !ok {
				return false, nil
			}
		}
		return true, nil
	case Or:
		for i, c := range v.Children {
			childCtx := ctx
			if i > 0 {
				childCtx = ctx.resetForBranch()
			}
			ok, err := p.evalStrict(c, childCtx, get)
			if err != nil {
				return false, err
			}
			if ok {
				return true, nil
			}
		}
		return false, nil
	default:
		return false, errors.Newf("rowfilter: unsupported filter node %T", f)
	}
}

func (p *RowPredicate) evalColumnToArg(c ColumnToArg, val interface{}) (bool, error) {
	arg := p.args[c.ArgNum]
	if c.Op == OpIN || c.Op == OpNotIN {
		in, err := membership(val, arg)
		if err != nil {
			return false, err
		}
		if c.Op == OpNotIN {
			return !in, nil
		}
		return in, nil
	}
	// A quick-decoded byte-oriented column (rowcodec.QuickValue.Span,
	// surfaced by TestEncoded) compares against the pre-encoded span
	// prepared for this arg at predicate-construction time, not the
	// converted Go-typed arg — the span carries codec-specific framing a
	// plain compareValues([]byte) against the typed arg would not match.
	if span, ok := val.([]byte); ok {
		if argSpan := p.spans[c.ArgNum]; argSpan != nil {
			return evalOpGeneric(c.Op, rowcodec.CompareBytes(span, argSpan)), nil
		}
	}
	cmp, err := compareValues(val, arg)
	if err != nil {
		return false, err
	}
	return evalOpGeneric(c.Op, cmp), nil
}

// TestKeyOnly evaluates the predicate conservatively using only the columns
// isKeyColumn reports true for, per spec.md §4.3 entry point 3: "returns
// true when the filter leaves key-only columns indeterminate (i.e.
// conservative; used to apply range locks)". A leaf over a non-key column
// is treated as Unknown rather than causing an error.
func (p *RowPredicate) TestKeyOnly(isKeyColumn func(column string) bool, get Getter) (bool, error) {
	ctx := newEvalContext()
	tri, err := p.evalTri(p.filter, ctx, isKeyColumn, get)
	if err != nil {
		return false, err
	}
	return tri != triFalse, nil
}

type tri int

const (
	triFalse tri = iota
	triTrue
	triUnknown
)

func (p *RowPredicate) evalTri(f Filter, ctx *EvalContext, isKeyColumn func(string) bool, get Getter) (tri, error) {
	switch v := f.(type) {
	case True:
		return triTrue, nil
	case False:
		return triFalse, nil
	case ColumnToArg:
		if !isKeyColumn(v.Column) {
			return triUnknown, nil
		}
		ok, err := p.evalStrict(v, ctx, get)
		if err != nil {
			return triFalse, err
		}
		return boolToTri(ok), nil
	case ColumnToColumn:
		if !isKeyColumn(v.Column) || !isKeyColumn(v.Column2) {
			return triUnknown, nil
		}
		ok, err := p.evalStrict(v, ctx, get)
		if err != nil {
			return triFalse, err
		}
		return boolToTri(ok), nil
	case And:
		result := triTrue
		for i, c := range v.Children {
			childCtx := ctx
			if i > 0 {
				childCtx = ctx.resetForBranch()
			}
			t, err := p.evalTri(c, childCtx, isKeyColumn, get)
			if err != nil {
				return triFalse, err
			}
			if t == triFalse {
				return triFalse, nil
			}
			if t == triUnknown {
				result = triUnknown
			}
		}
		return result, nil
	case Or:
		result := triFalse
		for i, c := range v.Children {
			childCtx := ctx
			if i > 0 {
				childCtx = ctx.resetForBranch()
			}
			t, err := p.evalTri(c, childCtx, isKeyColumn, get)
			if err != nil {
				return triFalse, err
			}
			if t == triTrue {
				return triTrue, nil
			}
			if t == triUnknown {
				result = triUnknown
			}
		}
		return result, nil
	default:
		return triFalse, errors.Newf("rowfilter: unsupported filter node %T", f)
	}
}

func boolToTri(b bool) tri {
	if b {
		return triTrue
	}
	return triFalse
}
