// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package telemetry exports metrics and traces for generated test runs.
//
// The engine reports three kinds of events through a Sink:
//
//   - an enumeration, once per test, after both counting replays
//   - a run, once per executed run index, with its outcome
//   - an error, whenever preparation or resolution fails
//
// PrometheusSink and OTelSink implement Sink for their backends;
// CompositeSink fans out to several sinks and NoOpSink discards.
package telemetry

import (
	"context"
	"errors"
	"sync"
	"time"
)

// -----------------------------------------------------------------------------
// Errors
// -----------------------------------------------------------------------------

var (
	// ErrNilContext is returned when a nil context is provided.
	ErrNilContext = errors.New("context must not be nil")

	// ErrNilData is returned when nil data is provided to a recording method.
	ErrNilData = errors.New("data must not be nil")

	// ErrSinkClosed is returned when attempting to use a closed sink.
	ErrSinkClosed = errors.New("sink has been closed")

	// ErrNoSinks is returned when creating a composite sink with no children.
	ErrNoSinks = errors.New("at least one sink is required")
)

// -----------------------------------------------------------------------------
// Interface
// -----------------------------------------------------------------------------

// Sink receives engine telemetry.
//
// Thread Safety: All implementations must be safe for concurrent use.
//
// Example:
//
//	sink, _ := telemetry.NewPrometheusSink(telemetry.DefaultPrometheusConfig())
//	defer sink.Close()
//	engine := generator.NewEngine(generator.EngineConfig{Sink: sink})
type Sink interface {
	// RecordEnumeration records the result of counting one test.
	//
	// Inputs:
	//   - ctx: Context for tracing. Must not be nil.
	//   - data: The enumeration. Must not be nil.
	//
	// Outputs:
	//   - error: Non-nil if inputs are invalid or the sink is closed.
	RecordEnumeration(ctx context.Context, data *EnumerationData) error

	// RecordRun records one executed run index.
	//
	// Inputs:
	//   - ctx: Context for tracing. Must not be nil.
	//   - data: The run. Must not be nil.
	//
	// Outputs:
	//   - error: Non-nil if inputs are invalid or the sink is closed.
	RecordRun(ctx context.Context, data *RunData) error

	// RecordError records a failed engine operation.
	//
	// Inputs:
	//   - ctx: Context for tracing. Must not be nil.
	//   - data: The error event. Must not be nil.
	//
	// Outputs:
	//   - error: Non-nil if inputs are invalid or the sink is closed.
	RecordError(ctx context.Context, data *ErrorData) error

	// Flush exports anything buffered.
	Flush(ctx context.Context) error

	// Close releases resources. After Close every Record method returns
	// ErrSinkClosed. Idempotent.
	Close() error
}

// -----------------------------------------------------------------------------
// Data Types
// -----------------------------------------------------------------------------

// Run outcomes reported in RunData.Outcome.
const (
	OutcomePassed  = "passed"
	OutcomeFailed  = "failed"
	OutcomeSkipped = "skipped"
)

// EnumerationData describes one counted test.
//
// Thread Safety: Immutable after creation; safe for concurrent read access.
type EnumerationData struct {
	// Timestamp is when counting completed.
	Timestamp time.Time

	// Test is the "Suite.Case" identity.
	Test string

	// SessionID correlates the counting replays.
	SessionID string

	// Mode is "full" or "aligned".
	Mode string

	// Columns is the number of generator calls.
	Columns int

	// FullCount is the product of the column sizes.
	FullCount int

	// AlignedMax is the largest column size.
	AlignedMax int

	// Runs is the number of run indices the mode produces.
	Runs int

	// Duration is how long both counting replays took.
	Duration time.Duration
}

// RunData describes one executed run index.
//
// Thread Safety: Immutable after creation; safe for concurrent read access.
type RunData struct {
	// Timestamp is when the run finished.
	Timestamp time.Time

	// Test is the "Suite.Case" identity.
	Test string

	// Mode is the mode the run resolved under.
	Mode string

	// RunIndex is the run index.
	RunIndex int

	// Outcome is OutcomePassed, OutcomeFailed or OutcomeSkipped.
	Outcome string

	// Duration is the wall time of the run.
	Duration time.Duration
}

// ErrorData describes a failed engine operation.
//
// Thread Safety: Immutable after creation; safe for concurrent read access.
type ErrorData struct {
	// Timestamp is when the error occurred.
	Timestamp time.Time

	// Test is the "Suite.Case" identity, if known.
	Test string

	// Operation is the engine operation, e.g. "prepare" or "resolve".
	Operation string

	// ErrorType categorizes the error, e.g. "structure" or "mode_conflict".
	ErrorType string

	// Message is the error text.
	Message string
}

// -----------------------------------------------------------------------------
// Composite Sink
// -----------------------------------------------------------------------------

// CompositeSink forwards every event to several child sinks. One child's
// failure does not stop the others; errors are joined.
//
// Thread Safety: Safe for concurrent use.
type CompositeSink struct {
	sinks  []Sink
	mu     sync.RWMutex
	closed bool
}

// NewCompositeSink creates a composite of the non-nil sinks given.
//
// Outputs:
//   - *CompositeSink: Never nil on success.
//   - error: ErrNoSinks if no non-nil sink was given.
func NewCompositeSink(sinks ...Sink) (*CompositeSink, error) {
	valid := make([]Sink, 0, len(sinks))
	for _, s := range sinks {
		if s != nil {
			valid = append(valid, s)
		}
	}
	if len(valid) == 0 {
		return nil, ErrNoSinks
	}
	return &CompositeSink{sinks: valid}, nil
}

func (c *CompositeSink) children() ([]Sink, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.closed {
		return nil, ErrSinkClosed
	}
	return c.sinks, nil
}

// RecordEnumeration forwards to every child.
func (c *CompositeSink) RecordEnumeration(ctx context.Context, data *EnumerationData) error {
	if ctx == nil {
		return ErrNilContext
	}
	if data == nil {
		return ErrNilData
	}
	sinks, err := c.children()
	if err != nil {
		return err
	}
	var errs []error
	for _, s := range sinks {
		if err := s.RecordEnumeration(ctx, data); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// RecordRun forwards to every child.
func (c *CompositeSink) RecordRun(ctx context.Context, data *RunData) error {
	if ctx == nil {
		return ErrNilContext
	}
	if data == nil {
		return ErrNilData
	}
	sinks, err := c.children()
	if err != nil {
		return err
	}
	var errs []error
	for _, s := range sinks {
		if err := s.RecordRun(ctx, data); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// RecordError forwards to every child.
func (c *CompositeSink) RecordError(ctx context.Context, data *ErrorData) error {
	if ctx == nil {
		return ErrNilContext
	}
	if data == nil {
		return ErrNilData
	}
	sinks, err := c.children()
	if err != nil {
		return err
	}
	var errs []error
	for _, s := range sinks {
		if err := s.RecordError(ctx, data); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Flush flushes every child concurrently.
func (c *CompositeSink) Flush(ctx context.Context) error {
	if ctx == nil {
		return ErrNilContext
	}
	sinks, err := c.children()
	if err != nil {
		return err
	}

	var wg sync.WaitGroup
	errCh := make(chan error, len(sinks))
	for _, s := range sinks {
		wg.Add(1)
		go func(s Sink) {
			defer wg.Done()
			if err := s.Flush(ctx); err != nil {
				errCh <- err
			}
		}(s)
	}
	wg.Wait()
	close(errCh)

	var errs []error
	for err := range errCh {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

// Close closes every child. Idempotent.
func (c *CompositeSink) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	sinks := c.sinks
	c.mu.Unlock()

	var errs []error
	for _, s := range sinks {
		if err := s.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

var _ Sink = (*CompositeSink)(nil)

// -----------------------------------------------------------------------------
// No-Op Sink
// -----------------------------------------------------------------------------

// NoOpSink discards all telemetry. It is the engine's default sink.
type NoOpSink struct{}

// NewNoOpSink creates a NoOpSink.
func NewNoOpSink() *NoOpSink { return &NoOpSink{} }

// RecordEnumeration discards data.
func (n *NoOpSink) RecordEnumeration(ctx context.Context, data *EnumerationData) error { return nil }

// RecordRun discards data.
func (n *NoOpSink) RecordRun(ctx context.Context, data *RunData) error { return nil }

// RecordError discards data.
func (n *NoOpSink) RecordError(ctx context.Context, data *ErrorData) error { return nil }

// Flush is a no-op.
func (n *NoOpSink) Flush(ctx context.Context) error { return nil }

// Close is a no-op.
func (n *NoOpSink) Close() error { return nil }

var _ Sink = (*NoOpSink)(nil)
