// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package main

import (
	"context"
	"errors"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/common/expfmt"
	"github.com/spf13/cobra"

	"github.com/AleutianAI/gentest/pkg/generator/telemetry"
)

// exportOptions selects OpenTelemetry exporters for one command.
type exportOptions struct {
	traceExporter  string
	metricExporter string
	otlpEndpoint   string
}

func (o *exportOptions) addFlags(cmd *cobra.Command) {
	defaults := telemetry.DefaultExportConfig()
	cmd.Flags().StringVar(&o.traceExporter, "trace-exporter", defaults.TraceExporter, "span exporter: none, stdout or otlp")
	cmd.Flags().StringVar(&o.metricExporter, "metric-exporter", defaults.MetricExporter, "metric exporter: none, stdout or prometheus")
	cmd.Flags().StringVar(&o.otlpEndpoint, "otlp-endpoint", defaults.OTLPEndpoint, "OTLP gRPC endpoint for --trace-exporter otlp")
}

// newSink builds the engine sink: the configured Prometheus sink plus, when
// exporters are selected, an OTelSink writing to stderr.
//
// Outputs:
//   - telemetry.Sink: The sink for the engine.
//   - func() error: Flushes exporters and closes the sink. Must be called.
//   - error: Sink construction errors.
func (c *cli) newSink(ctx context.Context, opts *exportOptions) (telemetry.Sink, func() error, error) {
	base, err := c.cfg.NewSink(prometheus.NewRegistry())
	if err != nil {
		return nil, nil, err
	}

	exportCfg := telemetry.DefaultExportConfig()
	exportCfg.ServiceVersion = version
	exportCfg.TraceExporter = opts.traceExporter
	exportCfg.MetricExporter = opts.metricExporter
	exportCfg.OTLPEndpoint = opts.otlpEndpoint
	exportCfg.Writer = c.errOut
	if !exportCfg.Enabled() {
		return base, base.Close, nil
	}

	promReg := prometheus.NewRegistry()
	exportCfg.Registerer = promReg
	otelSink, shutdown, err := telemetry.NewExportedOTelSink(ctx, exportCfg)
	if err != nil {
		_ = base.Close()
		return nil, nil, err
	}
	sink, err := telemetry.NewCompositeSink(base, otelSink)
	if err != nil {
		_ = shutdown(ctx)
		return nil, nil, err
	}

	finish := func() error {
		var errs []error
		if opts.metricExporter == telemetry.ExporterPrometheus {
			errs = append(errs, c.writeExposition(promReg))
		}
		errs = append(errs, shutdown(context.WithoutCancel(ctx)), sink.Close())
		return errors.Join(errs...)
	}
	return sink, finish, nil
}

// writeExposition prints the registry in the Prometheus text format.
func (c *cli) writeExposition(reg *prometheus.Registry) error {
	families, err := reg.Gather()
	if err != nil {
		return err
	}
	for _, mf := range families {
		if _, err := expfmt.MetricFamilyToText(c.errOut, mf); err != nil {
			return err
		}
	}
	return nil
}
