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
	"strings"
)

// -----------------------------------------------------------------------------
// Errors
// -----------------------------------------------------------------------------

var (
	// ErrEmptyColumn is returned when a generator call declares no values.
	ErrEmptyColumn = errors.New("column must declare at least one value")

	// ErrInvalidIdentity is returned when a suite or case name cannot form a
	// stable test identity.
	ErrInvalidIdentity = errors.New("invalid test identity")

	// ErrIdentityMismatch is returned when the identity derived from a
	// running test's name disagrees with the declared identity.
	ErrIdentityMismatch = errors.New("test identity mismatch")

	// ErrNotCounted is returned when values are resolved for an identity
	// that has no enumeration record.
	ErrNotCounted = errors.New("no enumeration recorded for test")

	// ErrAlreadyRecorded is returned when recording a second enumeration
	// for the same identity.
	ErrAlreadyRecorded = errors.New("enumeration already recorded")

	// ErrNilRecord is returned when a nil record is passed to the registry.
	ErrNilRecord = errors.New("record must not be nil")

	// ErrModeConflict is returned when a mode declaration disagrees with the
	// mode detected while counting.
	ErrModeConflict = errors.New("mode declaration conflicts with counted mode")

	// ErrModeNotDeclared is returned when a test body finishes without
	// declaring its enumeration mode.
	ErrModeNotDeclared = errors.New("test body did not declare a mode")

	// ErrStructureMismatch is returned when the generator calls of a run do
	// not match the columns discovered while counting.
	ErrStructureMismatch = errors.New("generator structure differs from counted structure")

	// ErrSkipRun marks a run index that does not apply to the active mode.
	// It is a control-flow signal, not a failure.
	ErrSkipRun = errors.New("run index does not apply to this mode")

	// ErrRunIndexOutOfRange is returned for negative run indices or FULL
	// indices beyond the combination count.
	ErrRunIndexOutOfRange = errors.New("run index out of range")

	// ErrTooManyCombinations is returned when the Cartesian product exceeds
	// the configured limit or overflows.
	ErrTooManyCombinations = errors.New("too many combinations")

	// ErrNoRuns is returned when an enumeration would produce zero runs.
	ErrNoRuns = errors.New("enumeration produces no runs")

	// ErrCountingPanicked is returned when the test body panics during a
	// counting replay.
	ErrCountingPanicked = errors.New("test body panicked while counting")

	// ErrInvalidMode is returned when parsing an unknown mode name.
	ErrInvalidMode = errors.New("invalid enumeration mode")
)

// StructureError describes a generator call that does not line up with the
// counted columns.
type StructureError struct {
	// Identity is the test whose structure diverged.
	Identity string

	// Call is the zero-based declaration index of the offending call, or
	// the number of calls made when too few calls were observed.
	Call int

	// Want is the counted column size, or the counted column count when
	// Call reports a short run. -1 when no column was counted at Call.
	Want int

	// Got is the observed column size, or the observed call count.
	Got int

	// Reason is a short human-readable description.
	Reason string
}

// Error implements error.
func (e *StructureError) Error() string {
	return fmt.Sprintf("%s: %s: %s (call %d, want %d, got %d)",
		ErrStructureMismatch, e.Identity, e.Reason, e.Call, e.Want, e.Got)
}

// Unwrap lets errors.Is match ErrStructureMismatch.
func (e *StructureError) Unwrap() error {
	return ErrStructureMismatch
}

// -----------------------------------------------------------------------------
// Modes and Phases
// -----------------------------------------------------------------------------

// Mode selects how columns combine into runs.
type Mode int

const (
	// ModeFull enumerates the Cartesian product of all columns.
	ModeFull Mode = iota

	// ModeAligned zips the columns, cycling the shorter ones. The run
	// count is the size of the largest column.
	ModeAligned
)

// String returns the canonical name of the mode.
func (m Mode) String() string {
	switch m {
	case ModeFull:
		return "full"
	case ModeAligned:
		return "aligned"
	default:
		return fmt.Sprintf("mode(%d)", int(m))
	}
}

// Valid reports whether m is a known mode.
func (m Mode) Valid() bool {
	return m == ModeFull || m == ModeAligned
}

// ParseMode converts a mode name to a Mode. Matching is case-insensitive and
// the empty string maps to ModeFull.
//
// Outputs:
//   - Mode: The parsed mode.
//   - error: ErrInvalidMode for unknown names.
func ParseMode(s string) (Mode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "full":
		return ModeFull, nil
	case "aligned":
		return ModeAligned, nil
	default:
		return ModeFull, fmt.Errorf("%w: %q", ErrInvalidMode, s)
	}
}

// Phase distinguishes counting replays from real runs.
type Phase int

const (
	// PhaseRunning resolves real values for one run index.
	PhaseRunning Phase = iota

	// PhaseCounting records column sizes and hands out placeholders.
	PhaseCounting
)

// String returns the name of the phase.
func (p Phase) String() string {
	switch p {
	case PhaseRunning:
		return "running"
	case PhaseCounting:
		return "counting"
	default:
		return fmt.Sprintf("phase(%d)", int(p))
	}
}

// ConflictPolicy decides what happens when a running test body declares a
// mode that differs from the counted mode.
type ConflictPolicy int

const (
	// ConflictFail reports ErrModeConflict and leaves the record unchanged.
	ConflictFail ConflictPolicy = iota

	// ConflictOverwrite replaces the recorded mode once. Later runs resolve
	// under the new mode; indices beyond its run count are skipped.
	ConflictOverwrite
)

// String returns the configuration name of the policy.
func (p ConflictPolicy) String() string {
	switch p {
	case ConflictFail:
		return "fail"
	case ConflictOverwrite:
		return "overwrite"
	default:
		return fmt.Sprintf("conflict_policy(%d)", int(p))
	}
}

// ParseConflictPolicy converts a configuration name to a ConflictPolicy. The
// empty string maps to ConflictFail.
func ParseConflictPolicy(s string) (ConflictPolicy, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "fail":
		return ConflictFail, nil
	case "overwrite":
		return ConflictOverwrite, nil
	default:
		return ConflictFail, fmt.Errorf("unknown mode conflict policy %q", s)
	}
}
