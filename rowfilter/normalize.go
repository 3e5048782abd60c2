// Copyright 2018 The Solid Core Data Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package rowfilter

import (
	"sort"

	"github.com/cockroachdb/errors"
)

// ComplexFilter is raised by Dnf/Cnf when the distributive expansion would
// exceed MaxNormalFormTerms, per spec.md §4.2: "both may raise ComplexFilter
// if the blow-up exceeds a bound. On such failure the engine falls back to
// the un-normalized reduced form and logs a diagnostic."
type ComplexFilter struct {
	Filter string
	Terms  int
}

func (e *ComplexFilter) Error() string {
	return errors.Newf("rowfilter: filter %q would expand to %d terms, exceeding the normal-form bound", e.Filter, e.Terms).Error()
}

// MaxNormalFormTerms bounds Dnf/Cnf expansion.
const MaxNormalFormTerms = 256

// Negate returns the De Morgan negation of f, pushing negation to the
// leaves by flipping comparison operators (the AST has no explicit Not
// node, per spec.md §3: negation is always represented this way).
func Negate(f Filter) Filter {
	switch v := f.(type) {
	case True:
		return False{}
	case False:
		return True{}
	case ColumnToArg:
		if op, ok := negateOp(v.Op); ok {
			v.Op = op
			return v
		}
		return v
	case ColumnToColumn:
		if op, ok := negateOp(v.Op); ok {
			v.Op = op
			return v
		}
		return v
	case And:
		children := make([]Filter, len(v.Children))
		for i, c := range v.Children {
			children[i] = Negate(c)
		}
		return Or{Children: children}
	case Or:
		children := make([]Filter, len(v.Children))
		for i, c := range v.Children {
			children[i] = Negate(c)
		}
		return And{Children: children}
	default:
		return f
	}
}

// Reduce canonicalizes f: flattens nested And/Or of the same kind,
// constant-folds True/False, removes duplicate children (idempotence), and
// applies a bounded absorption rule (`X && (X || Y) = X`, `X || (X && Y) =
// X`). The result's String() is stable and is used as the filter factory
// cache key (spec.md §4.2 "Factory cache").
func Reduce(f Filter) Filter {
	switch v := f.(type) {
	case And:
		return reduceJunction(v.Children, true)
	case Or:
		return reduceJunction(v.Children, false)
	default:
		return f
	}
}

func reduceJunction(rawChildren []Filter, isAnd bool) Filter {
	// Recursively reduce children first, then flatten same-kind junctions.
	var flat []Filter
	for _, c := range rawChildren {
		rc := Reduce(c)
		if sameKind(rc, isAnd) {
			flat = append(flat, junctionChildren(rc)...)
		} else {
			flat = append(flat, rc)
		}
	}

	// Constant folding.
	var kept []Filter
	for _, c := range flat {
		switch c.(type) {
		case True:
			if isAnd {
				continue // true is the And identity; drop it
			}
			return True{} // true absorbs Or
		case False:
			if isAnd {
				return False{} // false absorbs And
			}
			continue // false is the Or identity; drop it
		}
		kept = append(kept, c)
	}

	// Idempotence: de-duplicate by canonical string.
	kept = dedupeByString(kept)

	// Bounded absorption: X (op) (Y (other-op) ...) where X already appears
	// verbatim as a child of the nested opposite junction collapses the
	// whole expression to X.
	kept = absorb(kept, isAnd)

	sort.Slice(kept, func(i, j int) bool { return kept[i].String() < kept[j].String() })

	switch len(kept) {
	case 0:
		if isAnd {
			return True{}
		}
		return False{}
	case 1:
		return kept[0]
	default:
		if isAnd {
			return And{Children: kept}
		}
		return Or{Children: kept}
	}
}

func sameKind(f Filter, isAnd bool) bool {
	if isAnd {
		_, ok := f.(And)
		return ok
	}
	_, ok := f.(Or)
	return ok
}

func junctionChildren(f Filter) []Filter {
	switch v := f.(type) {
	case And:
		return v.Children
	case Or:
		return v.Children
	default:
		return nil
	}
}

func dedupeByString(fs []Filter) []Filter {
	seen := make(map[string]bool, len(fs))
	out := make([]Filter, 0, len(fs))
	for _, f := range fs {
		s := f.String()
		if seen[s] {
			continue
		}
		seen[s] = true
		out = append(out, f)
	}
	return out
}

// absorb drops any child that is itself the opposite junction containing
// another sibling verbatim: `X && (X || Y)` reduces to `X` because the
// inner Or is true whenever X is true, making it redundant in the And.
func absorb(children []Filter, isAnd bool) []Filter {
	siblingStrings := make(map[string]bool, len(children))
	for _, c := range children {
		siblingStrings[c.String()] = true
	}
	out := make([]Filter, 0, len(children))
	for _, c := range children {
		if opposite := junctionChildren(c); opposite != nil && sameKind(c, !isAnd) {
			redundant := false
			for _, oc := range opposite {
				if siblingStrings[oc.String()] {
					redundant = true
					break
				}
			}
			if redundant {
				continue
			}
		}
		out = append(out, c)
	}
	if len(out) == 0 {
		return children
	}
	return out
}

// Dnf converts f (already Reduce'd) to disjunctive normal form: an Or of
// Ands of leaves. Returns ComplexFilter if the distributive expansion would
// exceed MaxNormalFormTerms.
func Dnf(f Filter) (Filter, error) {
	terms, err := toTerms(f, false)
	if err != nil {
		return nil, err
	}
	children := make([]Filter, len(terms))
	for i, t := range terms {
		children[i] = conjunctionOf(t)
	}
	return Reduce(Or{Children: children}), nil
}

// Cnf converts f to conjunctive normal form: an And of Ors of leaves.
func Cnf(f Filter) (Filter, error) {
	terms, err := toTerms(f, true)
	if err != nil {
		return nil, err
	}
	children := make([]Filter, len(terms))
	for i, t := range terms {
		children[i] = disjunctionOf(t)
	}
	return Reduce(And{Children: children}), nil
}

func conjunctionOf(leaves []Filter) Filter {
	if len(leaves) == 1 {
		return leaves[0]
	}
	return And{Children: leaves}
}

func disjunctionOf(leaves []Filter) Filter {
	if len(leaves) == 1 {
		return leaves[0]
	}
	return Or{Children: leaves}
}

// toTerms expands f into a list of leaf-conjunctions (forCnf=false, i.e.
// DNF terms) or leaf-disjunctions (forCnf=true, i.e. CNF clauses) via
// repeated distribution, bailing out with ComplexFilter once the term count
// exceeds MaxNormalFormTerms.
func toTerms(f Filter, forCnf bool) ([][]Filter, error) {
	switch v := f.(type) {
	case True:
		if forCnf {
			return nil, nil // an empty And of clauses is vacuously true
		}
		return [][]Filter{{True{}}}, nil
	case False:
		if forCnf {
			return [][]Filter{{False{}}}, nil
		}
		return nil, nil // an empty Or of terms is vacuously false
	case ColumnToArg, ColumnToColumn:
		return [][]Filter{{v}}, nil
	case And:
		if forCnf {
			return unionTerms(v.Children, forCnf)
		}
		return crossTerms(v.Children, forCnf)
	case Or:
		if forCnf {
			return crossTerms(v.Children, forCnf)
		}
		return unionTerms(v.Children, forCnf)
	default:
		return nil, errors.Newf("rowfilter: unsupported filter node %T", f)
	}
}

// unionTerms handles the "distributes trivially" case: Or-of-terms in DNF,
// And-of-clauses in CNF. Each child's own term list is simply concatenated.
func unionTerms(children []Filter, forCnf bool) ([][]Filter, error) {
	var out [][]Filter
	for _, c := range children {
		t, err := toTerms(c, forCnf)
		if err != nil {
			return nil, err
		}
		out = append(out, t...)
		if len(out) > MaxNormalFormTerms {
			return nil, &ComplexFilter{Filter: And{Children: children}.String(), Terms: len(out)}
		}
	}
	return out, nil
}

// crossTerms handles the distributive case: And-of-terms in DNF (each
// child's terms cross-multiply), Or-of-clauses in CNF.
func crossTerms(children []Filter, forCnf bool) ([][]Filter, error) {
	acc := [][]Filter{{}}
	for _, c := range children {
		t, err := toTerms(c, forCnf)
		if err != nil {
			return nil, err
		}
		if len(t) == 0 {
			continue
		}
		var next [][]Filter
		for _, a := range acc {
			for _, b := range t {
				merged := make([]Filter, 0, len(a)+len(b))
				merged = append(merged, a...)
				merged = append(merged, b...)
				next = append(next, merged)
			}
			if len(next) > MaxNormalFormTerms {
				return nil, &ComplexFilter{Filter: Or{Children: children}.String(), Terms: len(next)}
			}
		}
		acc = next
	}
	return acc, nil
}
