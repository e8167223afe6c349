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
	"testing"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

type otelHarness struct {
	sink     *OTelSink
	recorder *tracetest.SpanRecorder
	reader   *sdkmetric.ManualReader
}

func newOTelHarness(t *testing.T) *otelHarness {
	t.Helper()
	recorder := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder))
	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	t.Cleanup(func() {
		_ = tp.Shutdown(context.Background())
		_ = mp.Shutdown(context.Background())
	})

	cfg := DefaultOTelConfig()
	cfg.TracerProvider = tp
	cfg.MeterProvider = mp
	sink, err := NewOTelSink(cfg)
	if err != nil {
		t.Fatalf("NewOTelSink() error = %v", err)
	}
	return &otelHarness{sink: sink, recorder: recorder, reader: reader}
}

// sumOf returns the total of an Int64 sum metric across all data points.
func (h *otelHarness) sumOf(t *testing.T, name string) int64 {
	t.Helper()
	var rm metricdata.ResourceMetrics
	if err := h.reader.Collect(context.Background(), &rm); err != nil {
		t.Fatalf("Collect() error = %v", err)
	}
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			if m.Name != name {
				continue
			}
			sum, ok := m.Data.(metricdata.Sum[int64])
			if !ok {
				t.Fatalf("%s is %T, want Sum[int64]", name, m.Data)
			}
			var total int64
			for _, dp := range sum.DataPoints {
				total += dp.Value
			}
			return total
		}
	}
	return 0
}

func attrValue(attrs []attribute.KeyValue, key string) (attribute.Value, bool) {
	for _, kv := range attrs {
		if string(kv.Key) == key {
			return kv.Value, true
		}
	}
	return attribute.Value{}, false
}

// -----------------------------------------------------------------------------
// Configuration Tests
// -----------------------------------------------------------------------------

func TestOTelConfig_Validate(t *testing.T) {
	cfg := DefaultOTelConfig()
	if err := cfg.Validate(); err != nil {
		t.Errorf("default Validate() error = %v", err)
	}
	cfg.ServiceName = ""
	if err := cfg.Validate(); err == nil {
		t.Error("Validate() accepted empty service name")
	}
	if _, err := NewOTelSink(cfg); !errors.Is(err, ErrInvalidOTelConfig) {
		t.Errorf("NewOTelSink() error = %v, want ErrInvalidOTelConfig", err)
	}
	if _, err := NewOTelSink(nil); !errors.Is(err, ErrInvalidOTelConfig) {
		t.Errorf("NewOTelSink(nil) error = %v, want ErrInvalidOTelConfig", err)
	}
}

func TestNewOTelSink_GlobalProviders(t *testing.T) {
	sink, err := NewOTelSink(DefaultOTelConfig())
	if err != nil {
		t.Fatalf("NewOTelSink() error = %v", err)
	}
	if err := sink.RecordRun(context.Background(), &RunData{Outcome: OutcomePassed}); err != nil {
		t.Errorf("RecordRun() on global providers error = %v", err)
	}
}

// -----------------------------------------------------------------------------
// Recording Tests
// -----------------------------------------------------------------------------

func TestOTelSink_RecordEnumeration(t *testing.T) {
	h := newOTelHarness(t)
	now := time.Now()

	err := h.sink.RecordEnumeration(context.Background(), &EnumerationData{
		Timestamp: now,
		Test:      "Math.Add",
		SessionID: "sess-1",
		Mode:      "aligned",
		Columns:   3,
		FullCount: 12,
		Runs:      3,
		Duration:  time.Millisecond,
	})
	if err != nil {
		t.Fatalf("RecordEnumeration() error = %v", err)
	}

	spans := h.recorder.Ended()
	if len(spans) != 1 {
		t.Fatalf("got %d spans, want 1", len(spans))
	}
	span := spans[0]
	if span.Name() != "generator.enumeration" {
		t.Errorf("span name = %q", span.Name())
	}
	if v, ok := attrValue(span.Attributes(), "gentest.runs"); !ok || v.AsInt64() != 3 {
		t.Errorf("gentest.runs = %v (found %v), want 3", v.AsInt64(), ok)
	}
	if v, ok := attrValue(span.Attributes(), "gentest.test"); !ok || v.AsString() != "Math.Add" {
		t.Errorf("gentest.test = %q", v.AsString())
	}
	if got := span.EndTime().Sub(span.StartTime()); got != time.Millisecond {
		t.Errorf("span duration = %v, want 1ms", got)
	}

	if got := h.sumOf(t, "generator.enumerations"); got != 1 {
		t.Errorf("generator.enumerations = %d, want 1", got)
	}
}

func TestOTelSink_RecordRun_FailedSetsStatus(t *testing.T) {
	h := newOTelHarness(t)
	ctx := context.Background()

	_ = h.sink.RecordRun(ctx, &RunData{Test: "A.B", Mode: "full", RunIndex: 0, Outcome: OutcomePassed})
	_ = h.sink.RecordRun(ctx, &RunData{Test: "A.B", Mode: "full", RunIndex: 1, Outcome: OutcomeFailed})

	spans := h.recorder.Ended()
	if len(spans) != 2 {
		t.Fatalf("got %d spans, want 2", len(spans))
	}
	if spans[0].Status().Code == codes.Error {
		t.Error("passed run has error status")
	}
	if spans[1].Status().Code != codes.Error {
		t.Errorf("failed run status = %v, want Error", spans[1].Status().Code)
	}
	if got := h.sumOf(t, "generator.runs"); got != 2 {
		t.Errorf("generator.runs = %d, want 2", got)
	}
}

func TestOTelSink_RecordError(t *testing.T) {
	h := newOTelHarness(t)

	err := h.sink.RecordError(context.Background(), &ErrorData{
		Test:      "A.B",
		Operation: "prepare",
		ErrorType: "structure",
		Message:   "column size changed",
	})
	if err != nil {
		t.Fatal(err)
	}

	spans := h.recorder.Ended()
	if len(spans) != 1 || spans[0].Status().Code != codes.Error {
		t.Fatalf("error span missing or not marked: %v", spans)
	}
	if got := spans[0].Status().Description; got != "column size changed" {
		t.Errorf("status description = %q", got)
	}
	if got := h.sumOf(t, "generator.errors"); got != 1 {
		t.Errorf("generator.errors = %d, want 1", got)
	}
}

func TestOTelSink_DisabledSignals(t *testing.T) {
	recorder := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder))
	defer tp.Shutdown(context.Background())

	cfg := DefaultOTelConfig()
	cfg.TracerProvider = tp
	cfg.TraceEnabled = false
	cfg.MetricsEnabled = false
	sink, err := NewOTelSink(cfg)
	if err != nil {
		t.Fatal(err)
	}

	if err := sink.RecordRun(context.Background(), &RunData{Outcome: OutcomeFailed}); err != nil {
		t.Fatal(err)
	}
	if n := len(recorder.Ended()); n != 0 {
		t.Errorf("got %d spans with tracing disabled", n)
	}
}

func TestOTelSink_Closed(t *testing.T) {
	h := newOTelHarness(t)
	if err := h.sink.Close(); err != nil {
		t.Fatal(err)
	}
	ctx := context.Background()
	if err := h.sink.RecordEnumeration(ctx, &EnumerationData{}); !errors.Is(err, ErrSinkClosed) {
		t.Errorf("RecordEnumeration after Close error = %v", err)
	}
	if err := h.sink.Flush(ctx); !errors.Is(err, ErrSinkClosed) {
		t.Errorf("Flush after Close error = %v", err)
	}
	if err := h.sink.RecordRun(ctx, nil); !errors.Is(err, ErrNilData) {
		t.Errorf("nil data error = %v, want ErrNilData", err)
	}
}
