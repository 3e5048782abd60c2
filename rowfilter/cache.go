// Copyright 2018 The Solid Core Data Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package rowfilter

import (
	"sync"

	"golang.org/x/sync/singleflight"
)

// Compiled is the parsed-and-normalized result cached per canonical filter
// string: the reduced AST plus its DNF form (or, if DNF blew up past
// MaxNormalFormTerms, the reduced form again with Complex set, per spec.md
// §4.2's fallback policy).
type Compiled struct {
	Raw       Filter // parsed, Reduce'd
	Canonical string // Raw.String(); the cache key
	Dnf       Filter // Raw in DNF, or Raw itself if Complex
	Complex   bool
}

// FactoryCache is the per-table filter-string cache described in spec.md
// §4.2 "Factory cache": a two-level lookup — an in-memory map keyed by
// canonical filter string, and a singleflight latch so that only one
// goroutine compiles a given string even under concurrent first-use.
//
// The teacher has no analogous cache; this is grounded on the general
// compile-once-cache-by-key pattern used throughout the retrieved corpus
// for regexp/template/query compilation, realized with
// golang.org/x/sync/singleflight (already a teacher dependency via
// golang.org/x/sync/errgroup) standing in for spec.md's "computation latch
// keyed by canonical string to guarantee at-most-one concurrent
// compilation" — a weak-cache-free, explicit-map design per spec.md §9's
// "weak caches with identity keys" redesign note.
type FactoryCache struct {
	group singleflight.Group

	mu    sync.RWMutex
	cache map[string]*Compiled

	// onFallback, if set, is called with the canonical filter string and the
	// term count Dnf reported in its ComplexFilter error every time Compile
	// falls back to the un-normalized reduced form, per spec.md §4.2: "the
	// engine falls back to the un-normalized reduced form and logs a
	// diagnostic."
	onFallback func(canonical string, termCount int)
}

// NewFactoryCache returns an empty cache, owned by one table (per spec.md
// §9: drained, i.e. simply dropped, when the owning table is dropped).
func NewFactoryCache() *FactoryCache {
	return &FactoryCache{cache: make(map[string]*Compiled)}
}

// OnFallback installs fn to be called whenever Compile has to fall back to
// the un-normalized reduced form because Dnf raised ComplexFilter. Returns
// fc so it can be chained onto NewFactoryCache.
func (fc *FactoryCache) OnFallback(fn func(canonical string, termCount int)) *FactoryCache {
	fc.onFallback = fn
	return fc
}

// Compile parses raw if not already cached (first canonicalizing on the raw
// parse, then trying Dnf), publishing the result under the canonical string
// so that a syntactically different but semantically identical filter
// (e.g. differing only in && operand order) reuses the same entry.
func (fc *FactoryCache) Compile(raw string) (*Compiled, error) {
	parsed, err := Parse(raw)
	if err != nil {
		return nil, err
	}
	reduced := Reduce(parsed)
	key := reduced.String()

	fc.mu.RLock()
	if c, ok := fc.cache[key]; ok {
		fc.mu.RUnlock()
		return c, nil
	}
	fc.mu.RUnlock()

	v, err, _ := fc.group.Do(key, func() (interface{}, error) {
		fc.mu.RLock()
		if c, ok := fc.cache[key]; ok {
			fc.mu.RUnlock()
			return c, nil
		}
		fc.mu.RUnlock()

		c := &Compiled{Raw: reduced, Canonical: key}
		dnf, dnfErr := Dnf(reduced)
		if dnfErr != nil {
			c.Dnf = reduced
			c.Complex = true
			if fc.onFallback != nil {
				terms := 0
				if cf, ok := dnfErr.(*ComplexFilter); ok {
					terms = cf.Terms
				}
				fc.onFallback(key, terms)
			}
		} else {
			c.Dnf = dnf
		}

		fc.mu.Lock()
		fc.cache[key] = c
		fc.mu.Unlock()
		return c, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*Compiled), nil
}
