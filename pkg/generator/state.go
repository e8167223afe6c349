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

import "math"

// RunState is the mutable bookkeeping of one pass over a test body.
//
// Description:
//
//	A pass is either a counting replay or a real run. Counting passes log
//	column sizes; real runs carry the run index, the counted record and the
//	round-robin cursor used by ALIGNED resolution. Every generator call and
//	mode declaration receives the RunState explicitly.
//
// Thread Safety: Not safe for concurrent use. Each pass owns its state; two
// passes never share one.
type RunState struct {
	phase    Phase
	mode     Mode
	identity Identity

	// counting
	sizes    []int
	divider  int
	overflow bool

	// running
	record   *EnumerationRecord
	runIndex int
	cursor   int

	calls       int
	declared    Mode
	declaredSet bool
}

// Tally summarizes one counting replay.
type Tally struct {
	// Mode is the mode the replay ran under.
	Mode Mode

	// Sizes are the logged column sizes in declaration order.
	Sizes []int

	// Product is the running FULL product. Only meaningful for ModeFull.
	Product int

	// Max is the largest logged size, 0 with no columns.
	Max int

	// Declared is the mode the body declared, valid when DeclaredSet.
	Declared    Mode
	DeclaredSet bool

	// Overflow is set when Product overflowed int.
	Overflow bool
}

// NewCountingState returns a state ready for StartCounting.
func NewCountingState(id Identity) *RunState {
	return &RunState{phase: PhaseCounting, identity: id, divider: 1}
}

// NewRunState returns the state for one real run of a counted test.
//
// Inputs:
//   - rec: The counted record. The state resolves under rec.Mode.
//   - runIndex: The run index the host framework is executing.
func NewRunState(rec *EnumerationRecord, runIndex int) *RunState {
	return &RunState{
		phase:    PhaseRunning,
		mode:     rec.Mode,
		identity: rec.Identity,
		record:   rec,
		runIndex: runIndex,
	}
}

// StartCounting resets the state for a counting replay under mode.
func (s *RunState) StartCounting(mode Mode) {
	s.phase = PhaseCounting
	s.mode = mode
	s.sizes = s.sizes[:0]
	s.divider = 1
	s.overflow = false
	s.cursor = 0
	s.calls = 0
	s.declaredSet = false
	s.declared = ModeFull
}

// EndCounting flips the state back to running and returns what the replay
// logged. The column log is cleared so later passes never see stale data.
func (s *RunState) EndCounting() Tally {
	sizes := make([]int, len(s.sizes))
	copy(sizes, s.sizes)
	t := Tally{
		Mode:        s.mode,
		Sizes:       sizes,
		Product:     s.divider,
		Max:         maxOf(sizes),
		Declared:    s.declared,
		DeclaredSet: s.declaredSet,
		Overflow:    s.overflow,
	}
	s.phase = PhaseRunning
	s.sizes = s.sizes[:0]
	s.divider = 1
	s.calls = 0
	return t
}

// observe logs one column during counting and returns the placeholder
// value index for it.
func (s *RunState) observe(size int) int {
	s.sizes = append(s.sizes, size)
	s.calls++
	if s.mode == ModeAligned {
		if size >= 2 {
			return 1
		}
		return 0
	}
	if !s.overflow {
		if size > 0 && s.divider > math.MaxInt/size {
			s.overflow = true
		} else {
			s.divider *= size
		}
	}
	return 0
}

// Declare records the body's mode declaration for this pass. The first
// declaration of a pass wins.
func (s *RunState) Declare(mode Mode) {
	if s.declaredSet {
		return
	}
	s.declared = mode
	s.declaredSet = true
}

// Phase returns the current phase.
func (s *RunState) Phase() Phase { return s.phase }

// Counting reports whether this is a counting replay.
func (s *RunState) Counting() bool { return s.phase == PhaseCounting }

// Mode returns the mode the pass resolves under.
func (s *RunState) Mode() Mode { return s.mode }

// Identity returns the test the pass belongs to.
func (s *RunState) Identity() Identity { return s.identity }

// RunIndex returns the run index of a real run, 0 while counting.
func (s *RunState) RunIndex() int { return s.runIndex }

// Calls returns how many generator calls the pass has made.
func (s *RunState) Calls() int { return s.calls }

// Declared returns the mode declared during this pass, if any.
func (s *RunState) Declared() (Mode, bool) { return s.declared, s.declaredSet }

// Record returns the counted record of a real run, nil while counting.
func (s *RunState) Record() *EnumerationRecord { return s.record }
