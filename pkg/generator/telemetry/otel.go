// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package telemetry

import (
	"context"
	"errors"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

const instrumentationName = "github.com/AleutianAI/gentest/pkg/generator/telemetry"

var (
	// ErrOTelInitFailed is returned when instrument creation fails.
	ErrOTelInitFailed = errors.New("opentelemetry initialization failed")

	// ErrInvalidOTelConfig is returned when the OTel configuration is invalid.
	ErrInvalidOTelConfig = errors.New("invalid opentelemetry configuration")
)

// OTelConfig configures the OpenTelemetry sink.
type OTelConfig struct {
	// ServiceName is reported as an attribute on spans. Required.
	ServiceName string

	// ServiceVersion is the instrumentation version.
	ServiceVersion string

	// TracerProvider, if nil, is the global provider.
	TracerProvider trace.TracerProvider

	// MeterProvider, if nil, is the global provider.
	MeterProvider metric.MeterProvider

	// TraceEnabled enables span creation.
	TraceEnabled bool

	// MetricsEnabled enables metric recording.
	MetricsEnabled bool
}

// DefaultOTelConfig returns service "gentest" with tracing and metrics on.
func DefaultOTelConfig() *OTelConfig {
	return &OTelConfig{
		ServiceName:    "gentest",
		ServiceVersion: "0.1.0",
		TraceEnabled:   true,
		MetricsEnabled: true,
	}
}

// Validate checks the required fields.
func (c *OTelConfig) Validate() error {
	if c.ServiceName == "" {
		return errors.New("service name is required")
	}
	return nil
}

// OTelSink exports engine telemetry as OpenTelemetry spans and metrics.
//
// Description:
//
//	Each event becomes one span ("generator.enumeration", "generator.run",
//	"generator.error") stamped with the event's attributes. Failed runs and
//	errors set the span status to Error. Metrics mirror PrometheusSink.
//
// Thread Safety: Safe for concurrent use.
type OTelSink struct {
	config *OTelConfig
	tracer trace.Tracer
	meter  metric.Meter

	enumerations     metric.Int64Counter
	countingDuration metric.Float64Histogram
	runs             metric.Int64Counter
	runDuration      metric.Float64Histogram
	errorsTotal      metric.Int64Counter

	mu     sync.RWMutex
	closed bool
}

// NewOTelSink creates a sink from config.
//
// Outputs:
//   - *OTelSink: Never nil on success.
//   - error: ErrInvalidOTelConfig or ErrOTelInitFailed.
func NewOTelSink(config *OTelConfig) (*OTelSink, error) {
	if config == nil {
		return nil, ErrInvalidOTelConfig
	}
	if err := config.Validate(); err != nil {
		return nil, errors.Join(ErrInvalidOTelConfig, err)
	}

	cfg := *config
	tp := cfg.TracerProvider
	if tp == nil {
		tp = otel.GetTracerProvider()
	}
	mp := cfg.MeterProvider
	if mp == nil {
		mp = otel.GetMeterProvider()
	}

	s := &OTelSink{
		config: &cfg,
		tracer: tp.Tracer(instrumentationName, trace.WithInstrumentationVersion(cfg.ServiceVersion)),
		meter:  mp.Meter(instrumentationName, metric.WithInstrumentationVersion(cfg.ServiceVersion)),
	}

	if cfg.MetricsEnabled {
		if err := s.initializeMetrics(); err != nil {
			return nil, errors.Join(ErrOTelInitFailed, err)
		}
	}
	return s, nil
}

func (s *OTelSink) initializeMetrics() error {
	var err error

	s.enumerations, err = s.meter.Int64Counter(
		"generator.enumerations",
		metric.WithDescription("Tests whose enumeration was counted"),
		metric.WithUnit("{test}"),
	)
	if err != nil {
		return err
	}

	s.countingDuration, err = s.meter.Float64Histogram(
		"generator.counting.duration",
		metric.WithDescription("Time spent in both counting replays"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return err
	}

	s.runs, err = s.meter.Int64Counter(
		"generator.runs",
		metric.WithDescription("Executed run indices"),
		metric.WithUnit("{run}"),
	)
	if err != nil {
		return err
	}

	s.runDuration, err = s.meter.Float64Histogram(
		"generator.run.duration",
		metric.WithDescription("Wall time of one run index"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return err
	}

	s.errorsTotal, err = s.meter.Int64Counter(
		"generator.errors",
		metric.WithDescription("Failed engine operations"),
		metric.WithUnit("{error}"),
	)
	return err
}

func (s *OTelSink) open() error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return ErrSinkClosed
	}
	return nil
}

// RecordEnumeration records one counted test.
func (s *OTelSink) RecordEnumeration(ctx context.Context, data *EnumerationData) error {
	if ctx == nil {
		return ErrNilContext
	}
	if data == nil {
		return ErrNilData
	}
	if err := s.open(); err != nil {
		return err
	}

	mode := orUnknown(data.Mode)
	if s.config.TraceEnabled {
		_, span := s.tracer.Start(ctx, "generator.enumeration",
			trace.WithTimestamp(data.Timestamp.Add(-data.Duration)),
			trace.WithAttributes(
				attribute.String("service.name", s.config.ServiceName),
				attribute.String("gentest.test", data.Test),
				attribute.String("gentest.session_id", data.SessionID),
				attribute.String("gentest.mode", mode),
				attribute.Int("gentest.columns", data.Columns),
				attribute.Int("gentest.full_count", data.FullCount),
				attribute.Int("gentest.aligned_max", data.AlignedMax),
				attribute.Int("gentest.runs", data.Runs),
			),
		)
		span.End(trace.WithTimestamp(data.Timestamp))
	}

	if s.config.MetricsEnabled {
		attrs := metric.WithAttributes(attribute.String("mode", mode))
		s.enumerations.Add(ctx, 1, attrs)
		s.countingDuration.Record(ctx, data.Duration.Seconds(), attrs)
	}
	return nil
}

// RecordRun records one executed run index.
func (s *OTelSink) RecordRun(ctx context.Context, data *RunData) error {
	if ctx == nil {
		return ErrNilContext
	}
	if data == nil {
		return ErrNilData
	}
	if err := s.open(); err != nil {
		return err
	}

	mode := orUnknown(data.Mode)
	outcome := orUnknown(data.Outcome)
	if s.config.TraceEnabled {
		_, span := s.tracer.Start(ctx, "generator.run",
			trace.WithTimestamp(data.Timestamp.Add(-data.Duration)),
			trace.WithAttributes(
				attribute.String("gentest.test", data.Test),
				attribute.String("gentest.mode", mode),
				attribute.Int("gentest.run_index", data.RunIndex),
				attribute.String("gentest.outcome", outcome),
			),
		)
		if outcome == OutcomeFailed {
			span.SetStatus(codes.Error, "run failed")
		}
		span.End(trace.WithTimestamp(data.Timestamp))
	}

	if s.config.MetricsEnabled {
		s.runs.Add(ctx, 1, metric.WithAttributes(
			attribute.String("mode", mode),
			attribute.String("outcome", outcome),
		))
		s.runDuration.Record(ctx, data.Duration.Seconds(), metric.WithAttributes(attribute.String("mode", mode)))
	}
	return nil
}

// RecordError records a failed operation.
func (s *OTelSink) RecordError(ctx context.Context, data *ErrorData) error {
	if ctx == nil {
		return ErrNilContext
	}
	if data == nil {
		return ErrNilData
	}
	if err := s.open(); err != nil {
		return err
	}

	operation := orUnknown(data.Operation)
	errorType := orUnknown(data.ErrorType)
	if s.config.TraceEnabled {
		_, span := s.tracer.Start(ctx, "generator.error",
			trace.WithTimestamp(data.Timestamp),
			trace.WithAttributes(
				attribute.String("gentest.test", data.Test),
				attribute.String("error.operation", operation),
				attribute.String("error.type", errorType),
				attribute.String("error.message", data.Message),
			),
		)
		span.SetStatus(codes.Error, data.Message)
		span.End()
	}

	if s.config.MetricsEnabled {
		s.errorsTotal.Add(ctx, 1, metric.WithAttributes(
			attribute.String("operation", operation),
			attribute.String("error_type", errorType),
		))
	}
	return nil
}

// Flush is a no-op; providers own export. The caller flushes them.
func (s *OTelSink) Flush(ctx context.Context) error {
	if ctx == nil {
		return ErrNilContext
	}
	return s.open()
}

// Close marks the sink closed. Providers are not shut down. Idempotent.
func (s *OTelSink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

var _ Sink = (*OTelSink)(nil)
