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
	"fmt"
	"io"
	"os"

	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	promexporter "go.opentelemetry.io/otel/exporters/prometheus"
	"go.opentelemetry.io/otel/exporters/stdout/stdoutmetric"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
)

// Exporter names accepted by ExportConfig.
const (
	ExporterNone       = "none"
	ExporterStdout     = "stdout"
	ExporterOTLP       = "otlp"
	ExporterPrometheus = "prometheus"
)

// ErrUnknownExporter is returned for an exporter name ExportConfig does not
// support.
var ErrUnknownExporter = errors.New("unknown exporter")

// ExportConfig selects where an exported OTelSink sends spans and metrics.
type ExportConfig struct {
	// ServiceName identifies the process in the exported resource.
	ServiceName string

	// ServiceVersion is the version string for the resource.
	ServiceVersion string

	// TraceExporter is "none", "stdout" or "otlp".
	TraceExporter string

	// MetricExporter is "none", "stdout" or "prometheus".
	MetricExporter string

	// OTLPEndpoint is the OTLP gRPC receiver, e.g. "localhost:4317".
	OTLPEndpoint string

	// OTLPInsecure disables TLS for the OTLP connection.
	OTLPInsecure bool

	// Writer receives stdout exporter output. Default: os.Stdout.
	Writer io.Writer

	// Registerer receives the Prometheus exporter's collector. Default:
	// prometheus.DefaultRegisterer.
	Registerer prometheus.Registerer
}

// DefaultExportConfig returns service "gentest" with both exporters off.
func DefaultExportConfig() ExportConfig {
	return ExportConfig{
		ServiceName:    "gentest",
		ServiceVersion: "0.1.0",
		TraceExporter:  ExporterNone,
		MetricExporter: ExporterNone,
		OTLPEndpoint:   "localhost:4317",
		OTLPInsecure:   true,
	}
}

// Enabled reports whether any exporter is selected.
func (c ExportConfig) Enabled() bool {
	return (c.TraceExporter != "" && c.TraceExporter != ExporterNone) ||
		(c.MetricExporter != "" && c.MetricExporter != ExporterNone)
}

// NewExportedOTelSink builds private tracer and meter providers for cfg and
// an OTelSink on top of them.
//
// Description:
//
//	The providers are not installed globally. Spans are exported as they
//	end; metrics are exported when shutdown is called (stdout) or when the
//	Prometheus registry is gathered.
//
// Inputs:
//   - ctx: Context for exporter construction.
//   - cfg: Exporter selection.
//
// Outputs:
//   - *OTelSink: The sink. Never nil on success.
//   - func(context.Context) error: Flushes and stops both providers. Must
//     be called.
//   - error: ErrUnknownExporter or an exporter construction error.
//
// Example:
//
//	cfg := telemetry.DefaultExportConfig()
//	cfg.TraceExporter = telemetry.ExporterStdout
//	sink, shutdown, err := telemetry.NewExportedOTelSink(ctx, cfg)
//	if err != nil {
//	    return err
//	}
//	defer shutdown(context.Background())
func NewExportedOTelSink(ctx context.Context, cfg ExportConfig) (*OTelSink, func(context.Context) error, error) {
	if ctx == nil {
		return nil, nil, ErrNilContext
	}
	if cfg.Writer == nil {
		cfg.Writer = os.Stdout
	}

	var shutdownFuncs []func(context.Context) error
	shutdown := func(ctx context.Context) error {
		var errs []error
		for _, fn := range shutdownFuncs {
			if err := fn(ctx); err != nil {
				errs = append(errs, err)
			}
		}
		return errors.Join(errs...)
	}

	res := resource.NewWithAttributes(
		"",
		attribute.String("service.name", cfg.ServiceName),
		attribute.String("service.version", cfg.ServiceVersion),
	)

	otelCfg := DefaultOTelConfig()
	otelCfg.ServiceName = cfg.ServiceName
	otelCfg.ServiceVersion = cfg.ServiceVersion
	otelCfg.TraceEnabled = false
	otelCfg.MetricsEnabled = false

	if cfg.TraceExporter != "" && cfg.TraceExporter != ExporterNone {
		tp, err := newTracerProvider(ctx, cfg, res)
		if err != nil {
			return nil, nil, fmt.Errorf("init tracer: %w", err)
		}
		shutdownFuncs = append(shutdownFuncs, tp.Shutdown)
		otelCfg.TracerProvider = tp
		otelCfg.TraceEnabled = true
	}

	if cfg.MetricExporter != "" && cfg.MetricExporter != ExporterNone {
		mp, err := newMeterProvider(cfg, res)
		if err != nil {
			_ = shutdown(ctx)
			return nil, nil, fmt.Errorf("init meter: %w", err)
		}
		shutdownFuncs = append(shutdownFuncs, mp.Shutdown)
		otelCfg.MeterProvider = mp
		otelCfg.MetricsEnabled = true
	}

	sink, err := NewOTelSink(otelCfg)
	if err != nil {
		_ = shutdown(ctx)
		return nil, nil, err
	}
	return sink, shutdown, nil
}

func newTracerProvider(ctx context.Context, cfg ExportConfig, res *resource.Resource) (*sdktrace.TracerProvider, error) {
	var exporter sdktrace.SpanExporter
	var err error

	switch cfg.TraceExporter {
	case ExporterOTLP:
		opts := []otlptracegrpc.Option{
			otlptracegrpc.WithEndpoint(cfg.OTLPEndpoint),
		}
		if cfg.OTLPInsecure {
			opts = append(opts, otlptracegrpc.WithInsecure())
		}
		exporter, err = otlptracegrpc.New(ctx, opts...)
		if err != nil {
			return nil, fmt.Errorf("create exporter: %w", err)
		}
		return sdktrace.NewTracerProvider(
			sdktrace.WithBatcher(exporter),
			sdktrace.WithResource(res),
		), nil

	case ExporterStdout:
		exporter, err = stdouttrace.New(
			stdouttrace.WithWriter(cfg.Writer),
			stdouttrace.WithPrettyPrint(),
		)
		if err != nil {
			return nil, fmt.Errorf("create exporter: %w", err)
		}
		// Synchronous so short CLI invocations print every span.
		return sdktrace.NewTracerProvider(
			sdktrace.WithSyncer(exporter),
			sdktrace.WithResource(res),
		), nil

	default:
		return nil, fmt.Errorf("%w: trace exporter %q", ErrUnknownExporter, cfg.TraceExporter)
	}
}

func newMeterProvider(cfg ExportConfig, res *resource.Resource) (*sdkmetric.MeterProvider, error) {
	switch cfg.MetricExporter {
	case ExporterPrometheus:
		opts := []promexporter.Option{}
		if cfg.Registerer != nil {
			opts = append(opts, promexporter.WithRegisterer(cfg.Registerer))
		}
		exporter, err := promexporter.New(opts...)
		if err != nil {
			return nil, fmt.Errorf("create prometheus exporter: %w", err)
		}
		return sdkmetric.NewMeterProvider(
			sdkmetric.WithResource(res),
			sdkmetric.WithReader(exporter),
		), nil

	case ExporterStdout:
		exporter, err := stdoutmetric.New(
			stdoutmetric.WithWriter(cfg.Writer),
			stdoutmetric.WithPrettyPrint(),
		)
		if err != nil {
			return nil, fmt.Errorf("create stdout metric exporter: %w", err)
		}
		return sdkmetric.NewMeterProvider(
			sdkmetric.WithResource(res),
			sdkmetric.WithReader(sdkmetric.NewPeriodicReader(exporter)),
		), nil

	default:
		return nil, fmt.Errorf("%w: metric exporter %q", ErrUnknownExporter, cfg.MetricExporter)
	}
}
