// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package generator

import (
	"iter"
	"sync"
)

// Iterator walks the run indices of a RangeGenerator.
type Iterator interface {
	// Current returns the run index the iterator points at.
	Current() int

	// Advance moves to the next run index.
	Advance()

	// Clone returns an independent iterator at the same position.
	Clone() Iterator

	// Equal reports whether other belongs to the same generator and points
	// at the same run index.
	Equal(other Iterator) bool

	// Generator returns the owning generator.
	Generator() *RangeGenerator
}

// RangeGenerator exposes the run indices [0, N) of one test.
//
// Description:
//
//	N is FullCount or AlignedMax depending on the counted mode. The record
//	is obtained lazily on first use and at most once; every later call
//	reuses it. When preparation fails the range is empty and Err reports
//	why, so an empty enumeration is never silent.
//
//	N is fixed when the generator is first used. A later ConflictOverwrite
//	mode change in the registry does not resize the range; Engine.BeginRun
//	skips indices the new mode does not produce, and Engine.DeclareMode
//	warns about combinations the fixed range cannot reach.
//
// Thread Safety: Safe for concurrent use.
type RangeGenerator struct {
	id      Identity
	prepare func() (*EnumerationRecord, error)

	once sync.Once
	rec  *EnumerationRecord
	err  error
}

// NewRangeGenerator creates a generator for id. prepare is called at most
// once, on first access.
func NewRangeGenerator(id Identity, prepare func() (*EnumerationRecord, error)) *RangeGenerator {
	return &RangeGenerator{id: id, prepare: prepare}
}

// Identity returns the test the generator enumerates.
func (g *RangeGenerator) Identity() Identity { return g.id }

func (g *RangeGenerator) load() {
	g.once.Do(func() {
		g.rec, g.err = g.prepare()
		if g.err == nil && g.rec == nil {
			g.err = ErrNilRecord
		}
	})
}

// Record returns the counted record.
func (g *RangeGenerator) Record() (*EnumerationRecord, error) {
	g.load()
	if g.err != nil {
		return nil, g.err
	}
	return g.rec.Clone(), nil
}

// Err returns the preparation error, if any.
func (g *RangeGenerator) Err() error {
	g.load()
	return g.err
}

// Len returns the number of run indices, 0 when preparation failed. It
// does not change after the first call.
func (g *RangeGenerator) Len() int {
	g.load()
	if g.err != nil {
		return 0
	}
	return g.rec.RunCount()
}

// Begin returns an iterator at run index 0.
func (g *RangeGenerator) Begin() Iterator {
	g.load()
	return &rangeIterator{gen: g, cur: 0}
}

// End returns the past-the-end iterator.
func (g *RangeGenerator) End() Iterator {
	return &rangeIterator{gen: g, cur: g.Len()}
}

// All yields every run index in order.
func (g *RangeGenerator) All() iter.Seq[int] {
	return func(yield func(int) bool) {
		end := g.End()
		for it := g.Begin(); !it.Equal(end); it.Advance() {
			if !yield(it.Current()) {
				return
			}
		}
	}
}

type rangeIterator struct {
	gen *RangeGenerator
	cur int
}

func (it *rangeIterator) Current() int { return it.cur }

func (it *rangeIterator) Advance() { it.cur++ }

func (it *rangeIterator) Clone() Iterator {
	cp := *it
	return &cp
}

func (it *rangeIterator) Equal(other Iterator) bool {
	if other == nil {
		return false
	}
	return it.gen == other.Generator() && it.cur == other.Current()
}

func (it *rangeIterator) Generator() *RangeGenerator { return it.gen }
