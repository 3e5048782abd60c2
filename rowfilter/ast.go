// Copyright 2018 The Solid Core Data Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package rowfilter implements spec.md §4.2-4.3: the filter grammar, its AST
// and canonicalizing normalizer, key-range extraction, source/target
// splitting for derived tables, and RowPredicate evaluation.
//
// Per spec.md §9's design note on "runtime code generation", RowPredicate
// does not emit bytecode per filter the way the original engine did; it
// interprets the filter AST directly (predicate.go). The factory cache
// (cache.go) keeps the parsed, reduced and DNF'd filter per canonical
// string; a RowPredicate is built from it for each set of runtime arguments.
package rowfilter

import (
	"fmt"
	"strings"

	"golang.org/x/exp/slices"

	"github.com/solidcoredata/rowengine/rowcodec"
)

// Op aliases rowcodec.Op so filter code does not need to import rowcodec
// just to spell the comparison operators.
type Op = rowcodec.Op

const (
	OpEQ    = rowcodec.OpEQ
	OpNE    = rowcodec.OpNE
	OpLT    = rowcodec.OpLT
	OpLE    = rowcodec.OpLE
	OpGT    = rowcodec.OpGT
	OpGE    = rowcodec.OpGE
	OpIN    = rowcodec.OpIN
	OpNotIN = rowcodec.OpNotIN
)

func opString(op Op) string {
	switch op {
	case OpEQ:
		return "=="
	case OpNE:
		return "!="
	case OpLT:
		return "<"
	case OpLE:
		return "<="
	case OpGT:
		return ">"
	case OpGE:
		return ">="
	case OpIN:
		return "in"
	case OpNotIN:
		return "!in"
	default:
		return "?"
	}
}

func negateOp(op Op) (Op, bool) {
	switch op {
	case OpEQ:
		return OpNE, true
	case OpNE:
		return OpEQ, true
	case OpLT:
		return OpGE, true
	case OpLE:
		return OpGT, true
	case OpGT:
		return OpLE, true
	case OpGE:
		return OpLT, true
	case OpIN:
		return OpNotIN, true
	case OpNotIN:
		return OpIN, true
	default:
		return op, false
	}
}

// Filter is the row-filter AST described in spec.md §3 "RowFilter AST".
// Concrete variants are True, False, ColumnToArg, ColumnToColumn, And and Or.
// String returns the filter's canonical textual form, which is also the
// factory cache key (spec.md §4.2 "Factory cache").
type Filter interface {
	String() string
	// columns reports every flat column name (dotted join paths included)
	// referenced by this filter, used by range extraction and splitting.
	columns(out map[string]bool)
	isFilter()
}

type True struct{}

func (True) String() string     { return "true" }
func (True) columns(map[string]bool) {}
func (True) isFilter()          {}

type False struct{}

func (False) String() string     { return "false" }
func (False) columns(map[string]bool) {}
func (False) isFilter()          {}

// ColumnToArg compares a column against a placeholder argument: `col op ?N`.
type ColumnToArg struct {
	Column string
	Op     Op
	ArgNum int
}

func (c ColumnToArg) String() string {
	return fmt.Sprintf("%s %s ?%d", c.Column, opString(c.Op), c.ArgNum)
}
func (c ColumnToArg) columns(out map[string]bool) { out[c.Column] = true }
func (ColumnToArg) isFilter()                      {}

// ColumnToColumn compares two columns: `col op col2`.
type ColumnToColumn struct {
	Column  string
	Op      Op
	Column2 string
}

func (c ColumnToColumn) String() string {
	return fmt.Sprintf("%s %s %s", c.Column, opString(c.Op), c.Column2)
}
func (c ColumnToColumn) columns(out map[string]bool) {
	out[c.Column] = true
	out[c.Column2] = true
}
func (ColumnToColumn) isFilter() {}

// And is a conjunction of two or more children. A canonical And has its
// children sorted by String() and never directly nests another And.
type And struct{ Children []Filter }

func (a And) String() string { return joinChildren(a.Children, "&&") }
func (a And) columns(out map[string]bool) {
	for _, c := range a.Children {
		c.columns(out)
	}
}
func (And) isFilter() {}

// Or is a disjunction of two or more children, canonicalized the same way
// as And.
type Or struct{ Children []Filter }

func (o Or) String() string { return joinChildren(o.Children, "||") }
func (o Or) columns(out map[string]bool) {
	for _, c := range o.Children {
		c.columns(out)
	}
}
func (Or) isFilter() {}

func joinChildren(children []Filter, op string) string {
	parts := make([]string, len(children))
	for i, c := range children {
		s := c.String()
		if needsParens(c) {
			s = "(" + s + ")"
		}
		parts[i] = s
	}
	return strings.Join(parts, " "+op+" ")
}

func needsParens(f Filter) bool {
	switch f.(type) {
	case And, Or:
		return true
	default:
		return false
	}
}

// Columns returns the sorted, de-duplicated set of column names (including
// dotted join paths) that f references.
func Columns(f Filter) []string {
	set := map[string]bool{}
	f.columns(set)
	out := make([]string, 0, len(set))
	for c := range set {
		out = append(out, c)
	}
	slices.Sort(out)
	return out
}
