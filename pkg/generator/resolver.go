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

import "fmt"

// ValueResolver decides which value a generator call yields.
//
// Description:
//
//	Counting and resolution share one call path distinguished only by the
//	RunState phase. While counting, the call is logged and a placeholder
//	index is returned. While running, the index follows the mode:
//
//	  FULL:    (run / placeValue(call)) % size
//	  ALIGNED: run % ColumnSizes[cursor], cursor advancing round-robin
//
//	In strict mode any call that does not line up with the counted columns
//	is a StructureError. In lenient mode the call is still answered, with
//	the index reduced modulo the call's own size so it never reads out of
//	bounds.
//
// Thread Safety: The resolver itself is stateless and safe for concurrent
// use. The RunState it is handed is not.
type ValueResolver struct {
	strict bool
}

// NewValueResolver creates a resolver.
//
// Inputs:
//   - strict: Report structural mismatches instead of tolerating them.
func NewValueResolver(strict bool) *ValueResolver {
	return &ValueResolver{strict: strict}
}

// Strict reports whether structural mismatches are errors.
func (r *ValueResolver) Strict() bool { return r.strict }

// Resolve returns the value index for the next generator call of s.
//
// Inputs:
//   - s: The pass state. Must not be nil.
//   - size: The number of values declared at the call. Must be >= 1.
//
// Outputs:
//   - int: Index in [0, size).
//   - error: ErrEmptyColumn, ErrNotCounted, ErrSkipRun,
//     ErrRunIndexOutOfRange or a *StructureError.
//
// Example:
//
//	idx, err := resolver.Resolve(state, len(values))
//	if errors.Is(err, generator.ErrSkipRun) {
//	    t.Skip(err)
//	}
func (r *ValueResolver) Resolve(s *RunState, size int) (int, error) {
	if size < 1 {
		return 0, ErrEmptyColumn
	}
	if s.Counting() {
		return s.observe(size), nil
	}

	rec := s.record
	if rec == nil {
		return 0, fmt.Errorf("%w: %s", ErrNotCounted, s.identity)
	}
	call := s.calls
	s.calls++

	if s.runIndex < 0 {
		return 0, fmt.Errorf("%w: %d", ErrRunIndexOutOfRange, s.runIndex)
	}
	if s.mode == ModeAligned && s.runIndex >= rec.AlignedMax {
		return 0, fmt.Errorf("%w: run %d >= %d for %s", ErrSkipRun, s.runIndex, rec.AlignedMax, rec.Identity)
	}
	if s.mode == ModeFull && s.runIndex >= rec.FullCount {
		return 0, fmt.Errorf("%w: run %d >= %d for %s", ErrRunIndexOutOfRange, s.runIndex, rec.FullCount, rec.Identity)
	}

	if err := r.checkCall(rec, call, size); err != nil {
		return 0, err
	}

	var idx int
	if s.mode == ModeAligned {
		colSize := size
		if n := len(rec.ColumnSizes); n > 0 {
			colSize = rec.ColumnSizes[s.cursor%n]
			s.cursor = (s.cursor + 1) % n
		}
		idx = s.runIndex % colSize
	} else {
		idx = (s.runIndex / rec.placeValue(call)) % size
	}
	return idx % size, nil
}

// Complete checks that a real run made exactly as many generator calls as
// were counted. It is a no-op while counting and in lenient mode.
func (r *ValueResolver) Complete(s *RunState) error {
	if s.Counting() || !r.strict || s.record == nil {
		return nil
	}
	if want := len(s.record.ColumnSizes); s.calls != want {
		return &StructureError{
			Identity: s.identity.String(),
			Call:     s.calls,
			Want:     want,
			Got:      s.calls,
			Reason:   "generator call count differs from counted columns",
		}
	}
	return nil
}

func (r *ValueResolver) checkCall(rec *EnumerationRecord, call, size int) error {
	if !r.strict {
		return nil
	}
	if call >= len(rec.ColumnSizes) {
		return &StructureError{
			Identity: rec.Identity.String(),
			Call:     call,
			Want:     -1,
			Got:      size,
			Reason:   "more generator calls than counted columns",
		}
	}
	if want := rec.ColumnSizes[call]; want != size {
		return &StructureError{
			Identity: rec.Identity.String(),
			Call:     call,
			Want:     want,
			Got:      size,
			Reason:   "column size changed",
		}
	}
	return nil
}

// Pick resolves the next generator call of s against col and returns the
// chosen value.
func Pick[T any](r *ValueResolver, s *RunState, col Column[T]) (T, error) {
	idx, err := r.Resolve(s, col.Size())
	if err != nil {
		var zero T
		return zero, err
	}
	return col.At(idx)
}
