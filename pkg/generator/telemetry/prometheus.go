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

	"github.com/prometheus/client_golang/prometheus"
)

// -----------------------------------------------------------------------------
// Errors
// -----------------------------------------------------------------------------

var (
	// ErrInvalidConfig is returned when the Prometheus configuration is invalid.
	ErrInvalidConfig = errors.New("invalid prometheus configuration")

	// ErrRegistrationFailed is returned when metric registration fails.
	ErrRegistrationFailed = errors.New("metric registration failed")
)

// otherLabel replaces label values beyond the cardinality limit.
const otherLabel = "_other"

// -----------------------------------------------------------------------------
// Configuration
// -----------------------------------------------------------------------------

// PrometheusConfig configures the Prometheus sink.
//
// Thread Safety: Immutable after creation; safe for concurrent read access.
type PrometheusConfig struct {
	// Namespace is the metrics namespace. Required.
	Namespace string

	// Subsystem is the metrics subsystem. Required.
	Subsystem string

	// Registry receives the collectors. If nil, prometheus.DefaultRegisterer.
	Registry prometheus.Registerer

	// DurationBuckets are the histogram buckets for counting and run
	// durations, in seconds. If nil, defaults apply.
	DurationBuckets []float64

	// MaxLabelCardinality bounds the distinct values of the "test" label.
	// Further tests are reported as "_other". Default: 1000.
	MaxLabelCardinality int
}

// DefaultPrometheusConfig returns namespace "gentest", subsystem
// "generator" and sub-second duration buckets.
func DefaultPrometheusConfig() *PrometheusConfig {
	return &PrometheusConfig{
		Namespace: "gentest",
		Subsystem: "generator",
		DurationBuckets: []float64{
			0.00001, 0.0001, 0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5,
		},
		MaxLabelCardinality: 1000,
	}
}

// Validate checks the required fields.
func (c *PrometheusConfig) Validate() error {
	if c.Namespace == "" {
		return errors.New("namespace is required")
	}
	if c.Subsystem == "" {
		return errors.New("subsystem is required")
	}
	return nil
}

// -----------------------------------------------------------------------------
// Prometheus Sink
// -----------------------------------------------------------------------------

// PrometheusSink exports engine telemetry as Prometheus metrics.
//
// Description:
//
//	Metrics (prefixed by namespace and subsystem):
//
//	  enumerations_total{mode}              counter
//	  enumeration_runs{test}                gauge
//	  enumeration_columns{test}             gauge
//	  counting_duration_seconds{mode}       histogram
//	  runs_total{mode,outcome}              counter
//	  run_duration_seconds{mode}            histogram
//	  errors_total{operation,error_type}    counter
//
//	Collectors are registered on creation and unregistered on Close when
//	the registry is a *prometheus.Registry.
//
// Thread Safety: Safe for concurrent use.
type PrometheusSink struct {
	config   *PrometheusConfig
	registry prometheus.Registerer

	enumerationsTotal  *prometheus.CounterVec
	enumerationRuns    *prometheus.GaugeVec
	enumerationColumns *prometheus.GaugeVec
	countingDuration   *prometheus.HistogramVec
	runsTotal          *prometheus.CounterVec
	runDuration        *prometheus.HistogramVec
	errorsTotal        *prometheus.CounterVec

	mu         sync.RWMutex
	closed     bool
	collectors []prometheus.Collector

	labelMu        sync.RWMutex
	seenLabels     map[string]map[string]struct{}
	maxCardinality int
}

// NewPrometheusSink creates and registers the collectors.
//
// Inputs:
//   - config: Must not be nil. It is copied.
//
// Outputs:
//   - *PrometheusSink: Never nil on success.
//   - error: ErrInvalidConfig or ErrRegistrationFailed. A collector that
//     is already registered is tolerated.
func NewPrometheusSink(config *PrometheusConfig) (*PrometheusSink, error) {
	if config == nil {
		return nil, ErrInvalidConfig
	}
	if err := config.Validate(); err != nil {
		return nil, errors.Join(ErrInvalidConfig, err)
	}

	cfg := *config
	if cfg.DurationBuckets == nil {
		cfg.DurationBuckets = DefaultPrometheusConfig().DurationBuckets
	}
	registry := cfg.Registry
	if registry == nil {
		registry = prometheus.DefaultRegisterer
	}
	maxCard := cfg.MaxLabelCardinality
	if maxCard <= 0 {
		maxCard = 1000
	}

	s := &PrometheusSink{
		config:         &cfg,
		registry:       registry,
		seenLabels:     make(map[string]map[string]struct{}),
		maxCardinality: maxCard,
	}

	s.enumerationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: cfg.Namespace,
			Subsystem: cfg.Subsystem,
			Name:      "enumerations_total",
			Help:      "Tests whose enumeration was counted",
		},
		[]string{"mode"},
	)
	s.enumerationRuns = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: cfg.Namespace,
			Subsystem: cfg.Subsystem,
			Name:      "enumeration_runs",
			Help:      "Run indices produced by a test's enumeration",
		},
		[]string{"test"},
	)
	s.enumerationColumns = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: cfg.Namespace,
			Subsystem: cfg.Subsystem,
			Name:      "enumeration_columns",
			Help:      "Generator calls counted for a test",
		},
		[]string{"test"},
	)
	s.countingDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: cfg.Namespace,
			Subsystem: cfg.Subsystem,
			Name:      "counting_duration_seconds",
			Help:      "Time spent in both counting replays",
			Buckets:   cfg.DurationBuckets,
		},
		[]string{"mode"},
	)
	s.runsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: cfg.Namespace,
			Subsystem: cfg.Subsystem,
			Name:      "runs_total",
			Help:      "Executed run indices by outcome",
		},
		[]string{"mode", "outcome"},
	)
	s.runDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: cfg.Namespace,
			Subsystem: cfg.Subsystem,
			Name:      "run_duration_seconds",
			Help:      "Wall time of one run index",
			Buckets:   cfg.DurationBuckets,
		},
		[]string{"mode"},
	)
	s.errorsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: cfg.Namespace,
			Subsystem: cfg.Subsystem,
			Name:      "errors_total",
			Help:      "Failed engine operations by type",
		},
		[]string{"operation", "error_type"},
	)

	s.collectors = []prometheus.Collector{
		s.enumerationsTotal,
		s.enumerationRuns,
		s.enumerationColumns,
		s.countingDuration,
		s.runsTotal,
		s.runDuration,
		s.errorsTotal,
	}
	for _, c := range s.collectors {
		if err := registry.Register(c); err != nil {
			var already prometheus.AlreadyRegisteredError
			if !errors.As(err, &already) {
				return nil, errors.Join(ErrRegistrationFailed, err)
			}
		}
	}

	return s, nil
}

func (s *PrometheusSink) open() error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return ErrSinkClosed
	}
	return nil
}

// RecordEnumeration records one counted test.
func (s *PrometheusSink) RecordEnumeration(ctx context.Context, data *EnumerationData) error {
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
	test := s.sanitizeLabel("test", orUnknown(data.Test))

	s.enumerationsTotal.WithLabelValues(mode).Inc()
	s.enumerationRuns.WithLabelValues(test).Set(float64(data.Runs))
	s.enumerationColumns.WithLabelValues(test).Set(float64(data.Columns))
	s.countingDuration.WithLabelValues(mode).Observe(data.Duration.Seconds())
	return nil
}

// RecordRun records one executed run index.
func (s *PrometheusSink) RecordRun(ctx context.Context, data *RunData) error {
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
	s.runsTotal.WithLabelValues(mode, orUnknown(data.Outcome)).Inc()
	s.runDuration.WithLabelValues(mode).Observe(data.Duration.Seconds())
	return nil
}

// RecordError records a failed operation.
func (s *PrometheusSink) RecordError(ctx context.Context, data *ErrorData) error {
	if ctx == nil {
		return ErrNilContext
	}
	if data == nil {
		return ErrNilData
	}
	if err := s.open(); err != nil {
		return err
	}

	s.errorsTotal.WithLabelValues(orUnknown(data.Operation), orUnknown(data.ErrorType)).Inc()
	return nil
}

// Flush is a no-op; Prometheus pulls.
func (s *PrometheusSink) Flush(ctx context.Context) error {
	if ctx == nil {
		return ErrNilContext
	}
	return s.open()
}

// Close unregisters the collectors. Idempotent.
func (s *PrometheusSink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}
	s.closed = true

	if reg, ok := s.registry.(*prometheus.Registry); ok {
		for _, c := range s.collectors {
			reg.Unregister(c)
		}
	}
	return nil
}

// sanitizeLabel bounds the number of distinct values per label.
func (s *PrometheusSink) sanitizeLabel(labelName, labelValue string) string {
	s.labelMu.RLock()
	if seen := s.seenLabels[labelName]; seen != nil {
		if _, ok := seen[labelValue]; ok {
			s.labelMu.RUnlock()
			return labelValue
		}
		if len(seen) >= s.maxCardinality {
			s.labelMu.RUnlock()
			return otherLabel
		}
	}
	s.labelMu.RUnlock()

	s.labelMu.Lock()
	defer s.labelMu.Unlock()

	seen := s.seenLabels[labelName]
	if seen == nil {
		seen = make(map[string]struct{})
		s.seenLabels[labelName] = seen
	}
	if _, ok := seen[labelValue]; ok {
		return labelValue
	}
	if len(seen) >= s.maxCardinality {
		return otherLabel
	}
	seen[labelValue] = struct{}{}
	return labelValue
}

func orUnknown(v string) string {
	if v == "" {
		return "unknown"
	}
	return v
}

var _ Sink = (*PrometheusSink)(nil)
