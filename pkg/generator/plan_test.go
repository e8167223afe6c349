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
	"errors"
	"fmt"
	"math"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

func collectTuples(t *testing.T, p *Plan) [][]int {
	t.Helper()
	var out [][]int
	for _, tuple := range p.Tuples() {
		out = append(out, tuple)
	}
	return out
}

// -----------------------------------------------------------------------------
// Construction
// -----------------------------------------------------------------------------

func TestNewPlan_Validation(t *testing.T) {
	tests := []struct {
		name    string
		mode    Mode
		sizes   []int
		wantErr error
	}{
		{"no columns full", ModeFull, nil, nil},
		{"no columns aligned", ModeAligned, nil, nil},
		{"zero size", ModeFull, []int{2, 0}, ErrEmptyColumn},
		{"negative size", ModeAligned, []int{-1}, ErrEmptyColumn},
		{"bad mode", Mode(7), []int{1}, ErrInvalidMode},
		{"overflow", ModeFull, []int{math.MaxInt / 2, 3}, ErrTooManyCombinations},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewPlan(tt.mode, tt.sizes...)
			if tt.wantErr == nil {
				assert.NoError(t, err)
				return
			}
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}
}

func TestNewPlan_CopiesSizes(t *testing.T) {
	sizes := []int{2, 3}
	p, err := NewPlan(ModeFull, sizes...)
	require.NoError(t, err)

	sizes[0] = 9
	assert.Equal(t, []int{2, 3}, p.Sizes())

	got := p.Sizes()
	got[1] = 9
	assert.Equal(t, []int{2, 3}, p.Sizes())
}

func TestPlan_Counts(t *testing.T) {
	p, err := NewPlan(ModeFull, 3, 2, 2)
	require.NoError(t, err)
	assert.Equal(t, 12, p.FullCount())
	assert.Equal(t, 3, p.AlignedMax())
	assert.Equal(t, 12, p.RunCount())
	assert.Equal(t, 3, p.Columns())
	assert.Equal(t, 4, p.PlaceValue(0))
	assert.Equal(t, 2, p.PlaceValue(1))
	assert.Equal(t, 1, p.PlaceValue(2))
	assert.Equal(t, 1, p.PlaceValue(3))

	empty, err := NewPlan(ModeAligned)
	require.NoError(t, err)
	assert.Equal(t, 1, empty.FullCount())
	assert.Equal(t, 0, empty.AlignedMax())
	assert.Equal(t, 0, empty.RunCount())
}

// -----------------------------------------------------------------------------
// Concrete Scenarios
// -----------------------------------------------------------------------------

func TestPlan_Scenarios(t *testing.T) {
	tests := []struct {
		name  string
		mode  Mode
		sizes []int
		want  [][]int
	}{
		{
			name:  "full two by two",
			mode:  ModeFull,
			sizes: []int{2, 2},
			want:  [][]int{{0, 0}, {0, 1}, {1, 0}, {1, 1}},
		},
		{
			name:  "aligned three two two",
			mode:  ModeAligned,
			sizes: []int{3, 2, 2},
			want:  [][]int{{0, 0, 0}, {1, 1, 1}, {2, 0, 0}},
		},
		{
			name:  "full singleton with three",
			mode:  ModeFull,
			sizes: []int{1, 3},
			want:  [][]int{{0, 0}, {0, 1}, {0, 2}},
		},
		{
			name:  "aligned single column of four",
			mode:  ModeAligned,
			sizes: []int{4},
			want:  [][]int{{0}, {1}, {2}, {3}},
		},
		{
			name:  "full no columns runs once",
			mode:  ModeFull,
			sizes: nil,
			want:  [][]int{{}},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, err := NewPlan(tt.mode, tt.sizes...)
			require.NoError(t, err)
			if diff := cmp.Diff(tt.want, collectTuples(t, p)); diff != "" {
				t.Errorf("tuples mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestPlan_IndexOf_Errors(t *testing.T) {
	full, _ := NewPlan(ModeFull, 2, 3)
	aligned, _ := NewPlan(ModeAligned, 2, 3)

	_, err := full.IndexOf(2, 0)
	assert.ErrorIs(t, err, ErrStructureMismatch)

	_, err = full.IndexOf(0, 6)
	assert.ErrorIs(t, err, ErrRunIndexOutOfRange)

	_, err = full.IndexOf(0, -1)
	assert.ErrorIs(t, err, ErrRunIndexOutOfRange)

	_, err = aligned.IndexOf(0, 3)
	assert.ErrorIs(t, err, ErrSkipRun)
	assert.False(t, errors.Is(err, ErrRunIndexOutOfRange))

	_, err = aligned.Tuple(5)
	assert.ErrorIs(t, err, ErrSkipRun)
}

func TestPlan_Tuples_StopsEarly(t *testing.T) {
	p, _ := NewPlan(ModeFull, 3, 3)
	seen := 0
	for run := range p.Tuples() {
		seen++
		if run == 2 {
			break
		}
	}
	assert.Equal(t, 3, seen)
}

// -----------------------------------------------------------------------------
// Properties
// -----------------------------------------------------------------------------

func drawSizes(t *rapid.T) []int {
	return rapid.SliceOfN(rapid.IntRange(1, 5), 0, 4).Draw(t, "sizes")
}

func TestPlan_FullIsCartesianProduct(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		sizes := drawSizes(t)
		p, err := NewPlan(ModeFull, sizes...)
		if err != nil {
			t.Fatalf("NewPlan(%v): %v", sizes, err)
		}

		want := 1
		for _, s := range sizes {
			want *= s
		}
		if p.RunCount() != want {
			t.Fatalf("RunCount() = %d, want %d", p.RunCount(), want)
		}

		seen := make(map[string]bool, want)
		for run := 0; run < p.RunCount(); run++ {
			tuple, err := p.Tuple(run)
			if err != nil {
				t.Fatalf("Tuple(%d): %v", run, err)
			}
			for col, idx := range tuple {
				if idx < 0 || idx >= sizes[col] {
					t.Fatalf("run %d column %d index %d out of [0,%d)", run, col, idx, sizes[col])
				}
			}
			key := fmt.Sprint(tuple)
			if seen[key] {
				t.Fatalf("tuple %v produced twice", tuple)
			}
			seen[key] = true
		}
		if len(seen) != want {
			t.Fatalf("distinct tuples = %d, want %d", len(seen), want)
		}
	})
}

func TestPlan_AlignedCyclesEachColumn(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		sizes := drawSizes(t)
		p, err := NewPlan(ModeAligned, sizes...)
		if err != nil {
			t.Fatalf("NewPlan(%v): %v", sizes, err)
		}

		if p.RunCount() != maxOf(sizes) {
			t.Fatalf("RunCount() = %d, want %d", p.RunCount(), maxOf(sizes))
		}
		for run := 0; run < p.RunCount(); run++ {
			for col, size := range sizes {
				idx, err := p.IndexOf(col, run)
				if err != nil {
					t.Fatalf("IndexOf(%d, %d): %v", col, run, err)
				}
				if idx != run%size {
					t.Fatalf("IndexOf(%d, %d) = %d, want %d", col, run, idx, run%size)
				}
			}
		}

		extra := rapid.IntRange(p.RunCount(), p.RunCount()+10).Draw(t, "extra")
		if _, err := p.Tuple(extra); !errors.Is(err, ErrSkipRun) {
			t.Fatalf("Tuple(%d) error = %v, want ErrSkipRun", extra, err)
		}
	})
}
