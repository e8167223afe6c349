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
	"time"
)

// EnumerationRecord is what counting learned about one test.
//
// Description:
//
//	A record is created once per identity by the CombinationCounter and read
//	by every later run. The only field that may change after creation is
//	Mode, and only once, under ConflictOverwrite.
//
// Thread Safety: Records handed out by ModeRegistry are copies; callers may
// read them freely.
type EnumerationRecord struct {
	// Identity is the test this record describes.
	Identity Identity

	// FullCount is the product of ColumnSizes. Always >= 1.
	FullCount int

	// AlignedMax is the largest column size seen during the ALIGNED
	// counting replay. 0 when the body declares no columns.
	AlignedMax int

	// ColumnSizes holds one entry per generator call in declaration order.
	ColumnSizes []int

	// Mode is the enumeration mode declared by the test body.
	Mode Mode

	// ModeOverridden is set once a running body replaced Mode.
	ModeOverridden bool

	// SessionID correlates the counting replays in logs and traces.
	SessionID string

	// CountedAt is when counting completed.
	CountedAt time.Time

	// CountDuration is how long both counting replays took.
	CountDuration time.Duration
}

// NewEnumerationRecord builds a record from column sizes, deriving
// FullCount and AlignedMax.
//
// Outputs:
//   - *EnumerationRecord: The record. Never nil on success.
//   - error: ErrInvalidMode, ErrEmptyColumn or ErrTooManyCombinations.
func NewEnumerationRecord(id Identity, mode Mode, sizes ...int) (*EnumerationRecord, error) {
	plan, err := NewPlan(mode, sizes...)
	if err != nil {
		return nil, err
	}
	return &EnumerationRecord{
		Identity:    id,
		FullCount:   plan.FullCount(),
		AlignedMax:  plan.AlignedMax(),
		ColumnSizes: plan.Sizes(),
		Mode:        mode,
	}, nil
}

// RunCount returns how many run indices the record's mode produces.
func (r *EnumerationRecord) RunCount() int {
	if r.Mode == ModeAligned {
		return r.AlignedMax
	}
	return r.FullCount
}

// Columns returns the number of counted generator calls.
func (r *EnumerationRecord) Columns() int {
	return len(r.ColumnSizes)
}

// Plan returns the index arithmetic for the record's columns and mode.
func (r *EnumerationRecord) Plan() (*Plan, error) {
	return NewPlan(r.Mode, r.ColumnSizes...)
}

// Validate checks the record's internal invariants.
//
// Outputs:
//   - error: Non-nil if FullCount is not the product of ColumnSizes, any
//     size is < 1, AlignedMax is negative or the mode is unknown.
func (r *EnumerationRecord) Validate() error {
	if r == nil {
		return ErrNilRecord
	}
	if !r.Mode.Valid() {
		return fmt.Errorf("%w: %v", ErrInvalidMode, r.Mode)
	}
	for i, s := range r.ColumnSizes {
		if s < 1 {
			return fmt.Errorf("%w: column %d has size %d", ErrEmptyColumn, i, s)
		}
	}
	full, err := product(r.ColumnSizes)
	if err != nil {
		return err
	}
	if r.FullCount != full {
		return fmt.Errorf("full count %d does not match product %d of %v", r.FullCount, full, r.ColumnSizes)
	}
	if r.AlignedMax < 0 {
		return fmt.Errorf("aligned max %d is negative", r.AlignedMax)
	}
	return nil
}

// Clone returns a deep copy.
func (r *EnumerationRecord) Clone() *EnumerationRecord {
	if r == nil {
		return nil
	}
	cp := *r
	cp.ColumnSizes = make([]int, len(r.ColumnSizes))
	copy(cp.ColumnSizes, r.ColumnSizes)
	return &cp
}

// placeValue returns the product of the sizes of all columns after col.
func (r *EnumerationRecord) placeValue(col int) int {
	place := 1
	for i := col + 1; i < len(r.ColumnSizes); i++ {
		place *= r.ColumnSizes[i]
	}
	return place
}
