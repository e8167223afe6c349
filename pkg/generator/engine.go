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
	"context"
	"errors"
	"fmt"
	"time"

	"golang.org/x/sync/singleflight"
	"golang.org/x/time/rate"

	"github.com/AleutianAI/gentest/pkg/generator/telemetry"
	"github.com/AleutianAI/gentest/pkg/logging"
)

// EngineConfig configures an Engine. The zero value is usable: strict,
// uncapped, ConflictFail, DefaultRegistry, a no-op logger and sink.
type EngineConfig struct {
	// Lenient tolerates structural drift between passes, logging a warning
	// and clamping indices instead of failing.
	Lenient bool

	// MaxCombinations caps the run count of any test. 0 disables the cap.
	MaxCombinations int

	// ConflictPolicy decides what a differing mode declaration does.
	ConflictPolicy ConflictPolicy

	// Registry stores the records. nil means DefaultRegistry.
	Registry *ModeRegistry

	// Logger receives engine logs. nil means logging.Nop().
	Logger *logging.Logger

	// Sink receives telemetry. nil means a NoOpSink.
	Sink telemetry.Sink
}

// Engine is the context object tying the registry, counter, resolver,
// logger and telemetry sink together.
//
// Description:
//
//	The lifecycle of one test is:
//
//	  Prepare(id, replay)      count once, store the record
//	  for run in [0, N):
//	    BeginRun(id, run)      fresh RunState for the run
//	    Resolve(state, size)   once per generator call
//	    DeclareMode(state, m)  once, after the generator calls
//	    EndRun(id, run, outcome) telemetry
//
// Thread Safety: Safe for concurrent use. Concurrent Prepare calls for the
// same identity share one counting session.
type Engine struct {
	registry *ModeRegistry
	counter  *CombinationCounter
	resolver *ValueResolver
	policy   ConflictPolicy
	logger   *logging.Logger
	sink     telemetry.Sink
	group    singleflight.Group

	// driftWarn throttles drift warnings: a lenient body that drifts
	// drifts on every run.
	driftWarn *rate.Sometimes
}

// NewEngine creates an Engine from cfg.
func NewEngine(cfg EngineConfig) *Engine {
	registry := cfg.Registry
	if registry == nil {
		registry = DefaultRegistry
	}
	logger := cfg.Logger
	if logger == nil {
		logger = logging.Nop()
	}
	var sink telemetry.Sink = cfg.Sink
	if sink == nil {
		sink = telemetry.NewNoOpSink()
	}
	return &Engine{
		registry: registry,
		counter:  NewCombinationCounter(!cfg.Lenient, cfg.MaxCombinations),
		resolver: NewValueResolver(!cfg.Lenient),
		policy:   cfg.ConflictPolicy,
		logger:   logger,
		sink:     sink,

		driftWarn: &rate.Sometimes{First: driftWarnBurst, Interval: time.Second},
	}
}

// driftWarnBurst is how many drift warnings are logged before throttling
// to one per second.
const driftWarnBurst = 8

// Registry returns the engine's registry.
func (e *Engine) Registry() *ModeRegistry { return e.registry }

// Strict reports whether structural drift is an error.
func (e *Engine) Strict() bool { return e.resolver.Strict() }

// Prepare returns the record for id, counting replay first if no record
// exists yet.
//
// Description:
//
//	Counting happens at most once per identity and registry. Concurrent
//	callers for the same identity wait for one counting session and share
//	its result.
//
// Inputs:
//   - ctx: Context for telemetry.
//   - id: The test identity.
//   - replay: The test body, replayed only when counting is needed.
//
// Outputs:
//   - *EnumerationRecord: A copy of the stored record.
//   - error: Any CombinationCounter.Count error.
func (e *Engine) Prepare(ctx context.Context, id Identity, replay Replay) (*EnumerationRecord, error) {
	if rec, ok := e.registry.Lookup(id); ok {
		return rec, nil
	}

	v, err, _ := e.group.Do(id.String(), func() (any, error) {
		if rec, ok := e.registry.Lookup(id); ok {
			return rec, nil
		}
		rec, err := e.counter.Count(id, replay)
		if err != nil {
			return nil, err
		}
		if err := e.registry.Record(rec); err != nil {
			if errors.Is(err, ErrAlreadyRecorded) {
				if existing, ok := e.registry.Lookup(id); ok {
					return existing, nil
				}
			}
			return nil, err
		}
		e.reportEnumeration(ctx, rec)
		return rec, nil
	})
	if err != nil {
		e.reportError(ctx, id, "prepare", err)
		return nil, err
	}
	return v.(*EnumerationRecord).Clone(), nil
}

// Enumerator returns a lazy RangeGenerator over the run indices of id.
// Counting happens on the generator's first use.
func (e *Engine) Enumerator(ctx context.Context, id Identity, replay Replay) *RangeGenerator {
	return NewRangeGenerator(id, func() (*EnumerationRecord, error) {
		return e.Prepare(ctx, id, replay)
	})
}

// BeginRun returns the state for one real run of a prepared test.
//
// Outputs:
//   - *RunState: The fresh run state.
//   - error: ErrNotCounted, ErrRunIndexOutOfRange, or ErrSkipRun when the
//     index does not apply to the recorded mode.
func (e *Engine) BeginRun(ctx context.Context, id Identity, run int) (*RunState, error) {
	rec, ok := e.registry.Lookup(id)
	if !ok {
		err := fmt.Errorf("%w: %s", ErrNotCounted, id)
		e.reportError(ctx, id, "begin_run", err)
		return nil, err
	}
	if run < 0 {
		return nil, fmt.Errorf("%w: %d", ErrRunIndexOutOfRange, run)
	}
	if run >= rec.RunCount() {
		if rec.Mode == ModeAligned || rec.ModeOverridden {
			return nil, fmt.Errorf("%w: run %d >= %d for %s in %s mode", ErrSkipRun, run, rec.RunCount(), id, rec.Mode)
		}
		return nil, fmt.Errorf("%w: run %d >= %d for %s", ErrRunIndexOutOfRange, run, rec.FullCount, id)
	}
	e.logger.Debug("run started", "test", id.String(), "run", run, "mode", rec.Mode.String())
	return NewRunState(rec, run), nil
}

// Resolve returns the value index of the next generator call of s.
//
// Outputs:
//   - int: Index in [0, size).
//   - error: See ValueResolver.Resolve.
func (e *Engine) Resolve(ctx context.Context, s *RunState, size int) (int, error) {
	call := s.Calls()
	idx, err := e.resolver.Resolve(s, size)
	if err != nil {
		if !errors.Is(err, ErrSkipRun) {
			e.reportError(ctx, s.Identity(), "resolve", err)
		}
		return 0, err
	}
	if !s.Counting() && !e.resolver.Strict() {
		if rec := s.Record(); call >= len(rec.ColumnSizes) || rec.ColumnSizes[call] != size {
			e.driftWarn.Do(func() {
				e.logger.Warn("generator structure drifted from counted columns",
					"test", s.Identity().String(),
					"run", s.RunIndex(),
					"call", call,
					"size", size,
					"counted", rec.ColumnSizes,
				)
			})
		}
	}
	return idx, nil
}

// DeclareMode applies the body's mode declaration.
//
// Description:
//
//	While counting, the declaration is recorded on s and nothing else
//	happens; the caller then stops the replay. During a real run the call
//	count is checked against the counted columns and the mode against the
//	recorded mode. Under ConflictOverwrite a differing mode replaces the
//	recorded one and the current run, which already resolved values under
//	the old mode, is skipped. The host enumerated the old run count, so an
//	override that grows the run count (Aligned to Full) logs how many
//	combinations no run index reaches.
//
// Outputs:
//   - error: nil, a *StructureError, ErrModeConflict, ErrInvalidMode, or
//     ErrSkipRun after an override.
func (e *Engine) DeclareMode(ctx context.Context, s *RunState, mode Mode) error {
	if !mode.Valid() {
		return fmt.Errorf("%w: %v", ErrInvalidMode, mode)
	}
	if _, declared := s.Declared(); declared && !s.Counting() {
		return nil
	}
	s.Declare(mode)
	if s.Counting() {
		return nil
	}

	if err := e.resolver.Complete(s); err != nil {
		e.reportError(ctx, s.Identity(), "declare_mode", err)
		return err
	}

	changed, err := e.registry.SetMode(s.Identity(), mode, e.policy)
	if err != nil {
		e.reportError(ctx, s.Identity(), "declare_mode", err)
		return err
	}
	if changed {
		e.logger.Warn("mode overridden by running test body",
			"test", s.Identity().String(),
			"run", s.RunIndex(),
			"from", s.Mode().String(),
			"to", mode.String(),
		)
		prev := s.Record()
		next := prev.Clone()
		next.Mode = mode
		if unreached := next.RunCount() - prev.RunCount(); unreached > 0 {
			e.logger.Warn("mode override adds combinations beyond the enumerated runs",
				"test", s.Identity().String(),
				"enumerated", prev.RunCount(),
				"run_count", next.RunCount(),
				"unreached", unreached,
			)
		}
		return fmt.Errorf("%w: %s switched from %s to %s", ErrSkipRun, s.Identity(), s.Mode(), mode)
	}
	return nil
}

// EndRun reports the outcome of a run.
//
// Inputs:
//   - id: The test identity.
//   - run: The run index.
//   - mode: The mode the run resolved under.
//   - outcome: telemetry.OutcomePassed, OutcomeFailed or OutcomeSkipped.
//   - elapsed: Wall time of the run.
func (e *Engine) EndRun(ctx context.Context, id Identity, run int, mode Mode, outcome string, elapsed time.Duration) {
	data := &telemetry.RunData{
		Timestamp: time.Now(),
		Test:      id.String(),
		Mode:      mode.String(),
		RunIndex:  run,
		Outcome:   outcome,
		Duration:  elapsed,
	}
	if err := e.sink.RecordRun(ctx, data); err != nil {
		e.logger.Debug("telemetry run record failed", "error", err.Error())
	}
	e.logger.Debug("run finished", "test", id.String(), "run", run, "outcome", outcome)
}

func (e *Engine) reportEnumeration(ctx context.Context, rec *EnumerationRecord) {
	e.logger.Info("enumeration counted",
		"test", rec.Identity.String(),
		"session_id", rec.SessionID,
		"mode", rec.Mode.String(),
		"columns", rec.ColumnSizes,
		"full_count", rec.FullCount,
		"aligned_max", rec.AlignedMax,
		"runs", rec.RunCount(),
		"duration", rec.CountDuration,
	)
	data := &telemetry.EnumerationData{
		Timestamp:  rec.CountedAt,
		Test:       rec.Identity.String(),
		SessionID:  rec.SessionID,
		Mode:       rec.Mode.String(),
		Columns:    rec.Columns(),
		FullCount:  rec.FullCount,
		AlignedMax: rec.AlignedMax,
		Runs:       rec.RunCount(),
		Duration:   rec.CountDuration,
	}
	if err := e.sink.RecordEnumeration(ctx, data); err != nil {
		e.logger.Debug("telemetry enumeration record failed", "error", err.Error())
	}
}

func (e *Engine) reportError(ctx context.Context, id Identity, op string, err error) {
	e.logger.Error("generator operation failed",
		"test", id.String(),
		"operation", op,
		"error", err.Error(),
	)
	data := &telemetry.ErrorData{
		Timestamp: time.Now(),
		Test:      id.String(),
		Operation: op,
		ErrorType: ErrorType(err),
		Message:   err.Error(),
	}
	if serr := e.sink.RecordError(ctx, data); serr != nil {
		e.logger.Debug("telemetry error record failed", "error", serr.Error())
	}
}

// ErrorType maps an engine error to a short telemetry category.
func ErrorType(err error) string {
	switch {
	case err == nil:
		return "none"
	case errors.Is(err, ErrStructureMismatch):
		return "structure"
	case errors.Is(err, ErrModeConflict):
		return "mode_conflict"
	case errors.Is(err, ErrModeNotDeclared):
		return "mode_not_declared"
	case errors.Is(err, ErrEmptyColumn):
		return "empty_column"
	case errors.Is(err, ErrTooManyCombinations):
		return "too_many_combinations"
	case errors.Is(err, ErrNoRuns):
		return "no_runs"
	case errors.Is(err, ErrCountingPanicked):
		return "panic"
	case errors.Is(err, ErrNotCounted):
		return "not_counted"
	case errors.Is(err, ErrRunIndexOutOfRange):
		return "out_of_range"
	case errors.Is(err, ErrInvalidIdentity), errors.Is(err, ErrIdentityMismatch):
		return "identity"
	case errors.Is(err, ErrInvalidMode):
		return "invalid_mode"
	default:
		return "other"
	}
}

// -----------------------------------------------------------------------------
// Default Engine
// -----------------------------------------------------------------------------

// DefaultEngine is a strict engine on DefaultRegistry.
var DefaultEngine = NewEngine(EngineConfig{})
