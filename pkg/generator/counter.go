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

	"github.com/google/uuid"
)

// Replay executes a test body once against s. The counter calls it twice,
// once per mode, with s in PhaseCounting.
type Replay func(s *RunState) error

// stopCounting is the panic value used to leave a counting replay as soon
// as the body has declared its mode.
type stopCounting struct{}

// countingAbort carries an error out of a counting replay.
type countingAbort struct {
	err error
}

// StopCounting ends the current counting replay. It must only be called
// from inside a Replay; the counter recovers it.
func StopCounting() {
	panic(stopCounting{})
}

// AbortCounting ends the current counting replay with err. It must only be
// called from inside a Replay.
func AbortCounting(err error) {
	panic(countingAbort{err: err})
}

// CombinationCounter discovers the enumeration of a test by replaying its
// body.
//
// Description:
//
//	Count replays the body twice. The FULL replay hands out the first value
//	of every column and yields the column sizes, their product and the
//	mode the body declares. The ALIGNED replay hands out the second value
//	where one exists, so bodies that branch on a generated value take a
//	different path and conditional columns surface as a difference in the
//	logged sizes. AlignedMax is the largest size seen by the ALIGNED replay.
//
//	In strict mode any difference between the two replays is a
//	StructureError. In lenient mode the FULL replay wins.
//
// Thread Safety: Safe for concurrent use. Each Count call uses its own
// RunState.
type CombinationCounter struct {
	strict          bool
	maxCombinations int
	now             func() time.Time
}

// NewCombinationCounter creates a counter.
//
// Inputs:
//   - strict: Reject bodies whose replays disagree.
//   - maxCombinations: Upper bound on the run count. 0 disables the cap.
func NewCombinationCounter(strict bool, maxCombinations int) *CombinationCounter {
	return &CombinationCounter{
		strict:          strict,
		maxCombinations: maxCombinations,
		now:             time.Now,
	}
}

// Count replays the body and returns its enumeration record.
//
// Inputs:
//   - id: The test identity. Must not be zero.
//   - replay: The test body. Must not be nil.
//
// Outputs:
//   - *EnumerationRecord: The record, ready for ModeRegistry.Record.
//   - error: ErrInvalidIdentity, ErrCountingPanicked, ErrModeNotDeclared,
//     ErrNoRuns, ErrTooManyCombinations, ErrModeConflict, a
//     *StructureError, or any error the body returned or aborted with.
//
// Example:
//
//	rec, err := counter.Count(id, func(s *generator.RunState) error {
//	    body(s)
//	    return nil
//	})
func (c *CombinationCounter) Count(id Identity, replay Replay) (*EnumerationRecord, error) {
	if id.IsZero() {
		return nil, fmt.Errorf("%w: empty identity", ErrInvalidIdentity)
	}
	if replay == nil {
		return nil, fmt.Errorf("count %s: replay must not be nil", id)
	}

	start := c.now()
	s := NewCountingState(id)

	full, err := c.replay(s, ModeFull, replay)
	if err != nil {
		return nil, err
	}
	aligned, err := c.replay(s, ModeAligned, replay)
	if err != nil {
		return nil, err
	}

	if !full.DeclaredSet {
		return nil, fmt.Errorf("%w: %s", ErrModeNotDeclared, id)
	}
	if full.Overflow {
		return nil, fmt.Errorf("%w: product of %v overflows", ErrTooManyCombinations, full.Sizes)
	}
	if c.strict {
		if err := compareReplays(id, full, aligned); err != nil {
			return nil, err
		}
	}

	rec := &EnumerationRecord{
		Identity:    id,
		FullCount:   full.Product,
		AlignedMax:  aligned.Max,
		ColumnSizes: full.Sizes,
		Mode:        full.Declared,
		SessionID:   uuid.NewString(),
	}

	runs := rec.RunCount()
	if runs == 0 {
		return nil, fmt.Errorf("%w: %s declares %s with no columns", ErrNoRuns, id, rec.Mode)
	}
	if c.maxCombinations > 0 && runs > c.maxCombinations {
		return nil, fmt.Errorf("%w: %s has %d runs, limit %d", ErrTooManyCombinations, id, runs, c.maxCombinations)
	}

	end := c.now()
	rec.CountedAt = end
	rec.CountDuration = end.Sub(start)
	return rec, nil
}

// replay runs one counting pass and converts the replay's panics into
// errors.
func (c *CombinationCounter) replay(s *RunState, mode Mode, fn Replay) (tally Tally, err error) {
	s.StartCounting(mode)
	defer func() {
		if r := recover(); r != nil {
			switch v := r.(type) {
			case stopCounting:
				err = nil
			case countingAbort:
				err = v.err
			default:
				err = fmt.Errorf("%w: %s replay of %s: %v", ErrCountingPanicked, mode, s.identity, r)
			}
		}
		tally = s.EndCounting()
	}()

	if err := fn(s); err != nil {
		return Tally{}, fmt.Errorf("%s replay of %s: %w", mode, s.identity, err)
	}
	return Tally{}, nil
}

// compareReplays reports any difference between the FULL and ALIGNED
// counting replays.
func compareReplays(id Identity, full, aligned Tally) error {
	if len(full.Sizes) != len(aligned.Sizes) {
		return &StructureError{
			Identity: id.String(),
			Call:     min(len(full.Sizes), len(aligned.Sizes)),
			Want:     len(full.Sizes),
			Got:      len(aligned.Sizes),
			Reason:   "column count differs between counting replays",
		}
	}
	for i := range full.Sizes {
		if full.Sizes[i] != aligned.Sizes[i] {
			return &StructureError{
				Identity: id.String(),
				Call:     i,
				Want:     full.Sizes[i],
				Got:      aligned.Sizes[i],
				Reason:   "column size differs between counting replays",
			}
		}
	}
	if aligned.DeclaredSet && aligned.Declared != full.Declared {
		return fmt.Errorf("%w: %s declared %s while counting full and %s while counting aligned",
			ErrModeConflict, id, full.Declared, aligned.Declared)
	}
	return nil
}
