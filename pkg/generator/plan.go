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
	"fmt"
	"iter"
	"math"
)

// Plan is the index arithmetic of one enumeration, computed from column
// sizes declared upfront.
//
// Description:
//
//	In ModeFull a run index is a mixed-radix number over the column sizes
//	in declaration order. The place value of a column is the product of
//	the sizes of every later column, so the last column varies fastest.
//	In ModeAligned column c at run r takes value r mod size(c).
//
// Thread Safety: Immutable after construction; safe for concurrent use.
type Plan struct {
	mode       Mode
	sizes      []int
	places     []int
	fullCount  int
	alignedMax int
}

// NewPlan builds a Plan for the given mode and column sizes.
//
// Inputs:
//   - mode: ModeFull or ModeAligned.
//   - sizes: Column sizes in declaration order. Each must be >= 1.
//
// Outputs:
//   - *Plan: The plan. Never nil on success.
//   - error: ErrInvalidMode, ErrEmptyColumn, or ErrTooManyCombinations
//     when the product overflows int.
//
// Example:
//
//	p, _ := generator.NewPlan(generator.ModeFull, 2, 2)
//	p.RunCount() // 4
//	p.Tuple(1)   // [0 1]
func NewPlan(mode Mode, sizes ...int) (*Plan, error) {
	if !mode.Valid() {
		return nil, fmt.Errorf("%w: %v", ErrInvalidMode, mode)
	}
	for i, s := range sizes {
		if s < 1 {
			return nil, fmt.Errorf("%w: column %d has size %d", ErrEmptyColumn, i, s)
		}
	}

	full, err := product(sizes)
	if err != nil {
		return nil, err
	}

	places := make([]int, len(sizes))
	place := 1
	for i := len(sizes) - 1; i >= 0; i-- {
		places[i] = place
		place *= sizes[i]
	}

	cp := make([]int, len(sizes))
	copy(cp, sizes)

	return &Plan{
		mode:       mode,
		sizes:      cp,
		places:     places,
		fullCount:  full,
		alignedMax: maxOf(sizes),
	}, nil
}

// Mode returns the plan's enumeration mode.
func (p *Plan) Mode() Mode { return p.mode }

// Columns returns the number of columns.
func (p *Plan) Columns() int { return len(p.sizes) }

// Sizes returns a copy of the column sizes.
func (p *Plan) Sizes() []int {
	cp := make([]int, len(p.sizes))
	copy(cp, p.sizes)
	return cp
}

// FullCount returns the product of the column sizes (1 with no columns).
func (p *Plan) FullCount() int { return p.fullCount }

// AlignedMax returns the largest column size (0 with no columns).
func (p *Plan) AlignedMax() int { return p.alignedMax }

// RunCount returns the number of runs the plan's mode produces.
func (p *Plan) RunCount() int {
	if p.mode == ModeAligned {
		return p.alignedMax
	}
	return p.fullCount
}

// PlaceValue returns the product of the sizes of all columns after col.
// Columns beyond the plan have place value 1.
func (p *Plan) PlaceValue(col int) int {
	if col < 0 || col >= len(p.places) {
		return 1
	}
	return p.places[col]
}

// IndexOf returns the value index column col takes on run.
//
// Outputs:
//   - int: Index into the column's values, always within [0, size).
//   - error: ErrRunIndexOutOfRange for negative or too-large FULL indices,
//     ErrSkipRun for ALIGNED indices >= AlignedMax, ErrStructureMismatch
//     for columns the plan does not have.
func (p *Plan) IndexOf(col, run int) (int, error) {
	if col < 0 || col >= len(p.sizes) {
		return 0, fmt.Errorf("%w: column %d of %d", ErrStructureMismatch, col, len(p.sizes))
	}
	if err := p.checkRun(run); err != nil {
		return 0, err
	}
	if p.mode == ModeAligned {
		return run % p.sizes[col], nil
	}
	return (run / p.places[col]) % p.sizes[col], nil
}

// Tuple returns the value index of every column for run.
func (p *Plan) Tuple(run int) ([]int, error) {
	if err := p.checkRun(run); err != nil {
		return nil, err
	}
	out := make([]int, len(p.sizes))
	for col := range p.sizes {
		idx, err := p.IndexOf(col, run)
		if err != nil {
			return nil, err
		}
		out[col] = idx
	}
	return out, nil
}

// Tuples yields every run index with its value indices, in run order.
func (p *Plan) Tuples() iter.Seq2[int, []int] {
	return func(yield func(int, []int) bool) {
		for run := 0; run < p.RunCount(); run++ {
			tuple, err := p.Tuple(run)
			if err != nil {
				return
			}
			if !yield(run, tuple) {
				return
			}
		}
	}
}

func (p *Plan) checkRun(run int) error {
	if run < 0 {
		return fmt.Errorf("%w: %d", ErrRunIndexOutOfRange, run)
	}
	if p.mode == ModeAligned {
		if run >= p.alignedMax {
			return fmt.Errorf("%w: run %d >= %d", ErrSkipRun, run, p.alignedMax)
		}
		return nil
	}
	if run >= p.fullCount {
		return fmt.Errorf("%w: run %d >= %d", ErrRunIndexOutOfRange, run, p.fullCount)
	}
	return nil
}

// product multiplies sizes, reporting ErrTooManyCombinations on overflow.
func product(sizes []int) (int, error) {
	total := 1
	for _, s := range sizes {
		if s > 0 && total > math.MaxInt/s {
			return 0, fmt.Errorf("%w: product of %v overflows", ErrTooManyCombinations, sizes)
		}
		total *= s
	}
	return total, nil
}

func maxOf(sizes []int) int {
	m := 0
	for _, s := range sizes {
		if s > m {
			m = s
		}
	}
	return m
}
