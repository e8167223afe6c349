// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package gentest

import (
	"slices"
	"sync"

	"github.com/AleutianAI/gentest/pkg/generator"
	"github.com/AleutianAI/gentest/pkg/generator/config"
)

// Option configures Run and Suite.
type Option func(*options)

type options struct {
	engine   *generator.Engine
	parallel bool
	runs     []int
}

// WithEngine runs the test on e instead of the environment-configured
// engine. GENTEST_* settings are then ignored entirely.
func WithEngine(e *generator.Engine) Option {
	return func(o *options) {
		o.engine = e
	}
}

// WithParallel marks every run-index subtest with t.Parallel.
func WithParallel(enabled bool) Option {
	return func(o *options) {
		o.parallel = enabled
	}
}

// WithRuns restricts execution to the given run indices. Indices beyond
// the enumeration are ignored. No indices means every run.
func WithRuns(runs ...int) Option {
	return func(o *options) {
		o.runs = slices.Clone(runs)
	}
}

// selects reports whether run passes the filter. No filter selects every
// run.
func (o *options) selects(run int) bool {
	return len(o.runs) == 0 || slices.Contains(o.runs, run)
}

// -----------------------------------------------------------------------------
// Environment defaults
// -----------------------------------------------------------------------------

var (
	envOnce    sync.Once
	envConfig  config.Config
	envEngine  *generator.Engine
	envLoadErr error
)

// environment loads GENTEST_* settings once per process and builds the
// engine they describe on generator.DefaultRegistry.
func environment() (config.Config, *generator.Engine, error) {
	envOnce.Do(func() {
		cfg, err := config.Load("")
		if err != nil {
			envLoadErr = err
			return
		}
		sink, err := cfg.NewSink(nil)
		if err != nil {
			envLoadErr = err
			return
		}
		envConfig = cfg
		envEngine = generator.NewEngine(cfg.EngineConfig(cfg.NewLogger(), sink))
	})
	return envConfig, envEngine, envLoadErr
}

// resolve applies opts over the environment defaults.
func resolve(opts []Option) (*options, error) {
	o := &options{}
	for _, opt := range opts {
		opt(o)
	}
	if o.engine != nil {
		return o, nil
	}

	cfg, engine, err := environment()
	if err != nil {
		return nil, err
	}
	base := &options{engine: engine, parallel: cfg.Parallel, runs: cfg.RunFilter()}
	for _, opt := range opts {
		opt(base)
	}
	return base, nil
}
