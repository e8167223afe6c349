// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package config loads engine settings from YAML files and GENTEST_*
// environment variables, and declares upfront plan files for the CLI.
package config

import (
	"errors"
	"fmt"
	"os"
	"sort"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/prometheus/client_golang/prometheus"
	"gopkg.in/yaml.v3"

	"github.com/AleutianAI/gentest/pkg/generator"
	"github.com/AleutianAI/gentest/pkg/generator/telemetry"
	"github.com/AleutianAI/gentest/pkg/logging"
)

// Environment variables read by Load.
const (
	EnvConfig       = "GENTEST_CONFIG"
	EnvStrict       = "GENTEST_STRICT"
	EnvParallel     = "GENTEST_PARALLEL"
	EnvRuns         = "GENTEST_RUNS"
	EnvLogLevel     = "GENTEST_LOG_LEVEL"
	EnvModeConflict = "GENTEST_MODE_CONFLICT"
	EnvMaxCombos    = "GENTEST_MAX_COMBINATIONS"
)

// maxRunRange bounds one "a-b" entry of a run filter.
const maxRunRange = 1 << 16

var (
	// ErrInvalidConfig wraps every validation failure.
	ErrInvalidConfig = errors.New("invalid gentest config")

	// ErrInvalidRunFilter is returned for a malformed runs expression.
	ErrInvalidRunFilter = errors.New("invalid run filter")
)

// configValidate is shared by Config and PlanFile validation.
var configValidate *validator.Validate

func init() {
	configValidate = validator.New()
	_ = configValidate.RegisterValidation("runfilter", validateRunFilter)
	_ = configValidate.RegisterValidation("loglevel", validateLogLevel)
}

func validateRunFilter(fl validator.FieldLevel) bool {
	_, err := ParseRuns(fl.Field().String())
	return err == nil
}

func validateLogLevel(fl validator.FieldLevel) bool {
	_, err := logging.ParseLevel(fl.Field().String())
	return err == nil
}

// Config holds every gentest setting.
//
// Thread Safety: Safe to read concurrently. Not safe to modify after creation.
type Config struct {
	// Strict turns structural drift between passes into a test failure.
	Strict bool `json:"strict" yaml:"strict"`

	// Parallel runs the run-index subtests of each test with t.Parallel.
	Parallel bool `json:"parallel" yaml:"parallel"`

	// MaxCombinations caps the run count of one test. 0 disables the cap.
	MaxCombinations int `json:"max_combinations" yaml:"max_combinations" validate:"gte=0"`

	// ModeConflict is "fail" or "overwrite".
	ModeConflict string `json:"mode_conflict" yaml:"mode_conflict" validate:"oneof=fail overwrite"`

	// Runs restricts execution to a set of run indices, e.g. "0,3-5".
	// Empty runs everything.
	Runs string `json:"runs" yaml:"runs" validate:"runfilter"`

	Log     LogConfig     `json:"log" yaml:"log"`
	Metrics MetricsConfig `json:"metrics" yaml:"metrics"`
}

// LogConfig configures the engine logger.
type LogConfig struct {
	Level string `json:"level" yaml:"level" validate:"loglevel"`
	JSON  bool   `json:"json" yaml:"json"`
	Dir   string `json:"dir" yaml:"dir"`
}

// MetricsConfig configures the Prometheus sink.
type MetricsConfig struct {
	Enabled   bool   `json:"enabled" yaml:"enabled"`
	Namespace string `json:"namespace" yaml:"namespace" validate:"required_if=Enabled true"`
	Subsystem string `json:"subsystem" yaml:"subsystem"`
}

// Default returns the default configuration: strict, sequential, uncapped,
// failing on mode conflicts, logging warnings to stderr, metrics off.
func Default() Config {
	prom := telemetry.DefaultPrometheusConfig()
	return Config{
		Strict:       true,
		ModeConflict: generator.ConflictFail.String(),
		Log: LogConfig{
			Level: logging.LevelWarn.String(),
		},
		Metrics: MetricsConfig{
			Namespace: prom.Namespace,
			Subsystem: prom.Subsystem,
		},
	}
}

// Load builds the configuration with priority env > file > defaults.
//
// Inputs:
//   - path: YAML file to read. Empty means $GENTEST_CONFIG, and no file at
//     all when that is unset too. A missing file is not an error.
//
// Outputs:
//   - Config: The merged configuration.
//   - error: Non-nil if the file or an environment value is malformed or
//     the result fails validation.
func Load(path string) (Config, error) {
	cfg := Default()

	if path == "" {
		path = os.Getenv(EnvConfig)
	}
	if path != "" {
		if err := loadFile(path, &cfg); err != nil {
			return cfg, fmt.Errorf("load config file: %w", err)
		}
	}

	if err := loadEnv(&cfg); err != nil {
		return cfg, err
	}

	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func loadFile(path string, cfg *Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("parse %s: %w", path, err)
	}
	return nil
}

func loadEnv(cfg *Config) error {
	if v := os.Getenv(EnvStrict); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("%w: %s=%q", ErrInvalidConfig, EnvStrict, v)
		}
		cfg.Strict = b
	}
	if v := os.Getenv(EnvParallel); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("%w: %s=%q", ErrInvalidConfig, EnvParallel, v)
		}
		cfg.Parallel = b
	}
	if v := os.Getenv(EnvMaxCombos); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("%w: %s=%q", ErrInvalidConfig, EnvMaxCombos, v)
		}
		cfg.MaxCombinations = n
	}
	if v := os.Getenv(EnvRuns); v != "" {
		cfg.Runs = v
	}
	if v := os.Getenv(EnvLogLevel); v != "" {
		cfg.Log.Level = v
	}
	if v := os.Getenv(EnvModeConflict); v != "" {
		cfg.ModeConflict = strings.ToLower(v)
	}
	return nil
}

// Validate checks the configuration.
//
// Outputs:
//   - error: nil, or ErrInvalidConfig joined with the validator's errors.
func (c Config) Validate() error {
	if err := configValidate.Struct(c); err != nil {
		return errors.Join(ErrInvalidConfig, err)
	}
	return nil
}

// ConflictPolicy returns the parsed mode_conflict setting.
func (c Config) ConflictPolicy() generator.ConflictPolicy {
	p, err := generator.ParseConflictPolicy(c.ModeConflict)
	if err != nil {
		return generator.ConflictFail
	}
	return p
}

// RunFilter returns the allowed run indices in ascending order, or nil
// when every index runs.
func (c Config) RunFilter() []int {
	runs, err := ParseRuns(c.Runs)
	if err != nil {
		return nil
	}
	return runs
}

// NewLogger builds the engine logger from the log section.
func (c Config) NewLogger() *logging.Logger {
	level, err := logging.ParseLevel(c.Log.Level)
	if err != nil {
		level = logging.LevelWarn
	}
	return logging.New(logging.Config{
		Level:  level,
		JSON:   c.Log.JSON,
		LogDir: c.Log.Dir,
	})
}

// NewSink builds the telemetry sink. Without metrics it is a NoOpSink.
//
// Inputs:
//   - reg: Registerer for the Prometheus collectors. nil means the
//     Prometheus default registerer.
func (c Config) NewSink(reg prometheus.Registerer) (telemetry.Sink, error) {
	if !c.Metrics.Enabled {
		return telemetry.NewNoOpSink(), nil
	}
	prom := telemetry.DefaultPrometheusConfig()
	prom.Namespace = c.Metrics.Namespace
	prom.Subsystem = c.Metrics.Subsystem
	if reg != nil {
		prom.Registry = reg
	}
	return telemetry.NewPrometheusSink(prom)
}

// EngineConfig returns the generator.EngineConfig these settings describe.
// Registry is left nil so the engine uses generator.DefaultRegistry.
func (c Config) EngineConfig(logger *logging.Logger, sink telemetry.Sink) generator.EngineConfig {
	return generator.EngineConfig{
		Lenient:         !c.Strict,
		MaxCombinations: c.MaxCombinations,
		ConflictPolicy:  c.ConflictPolicy(),
		Logger:          logger,
		Sink:            sink,
	}
}

// ParseRuns parses a run filter such as "0,3-5,9".
//
// Outputs:
//   - []int: Sorted, deduplicated run indices. nil for an empty filter.
//   - error: ErrInvalidRunFilter for malformed or negative entries.
func ParseRuns(s string) ([]int, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, nil
	}

	seen := make(map[int]struct{})
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		lo, hi, isRange := strings.Cut(part, "-")
		from, err := strconv.Atoi(strings.TrimSpace(lo))
		if err != nil || from < 0 {
			return nil, fmt.Errorf("%w: %q", ErrInvalidRunFilter, part)
		}
		to := from
		if isRange {
			to, err = strconv.Atoi(strings.TrimSpace(hi))
			if err != nil || to < from || to-from > maxRunRange {
				return nil, fmt.Errorf("%w: %q", ErrInvalidRunFilter, part)
			}
		}
		for run := from; run <= to; run++ {
			seen[run] = struct{}{}
		}
	}

	runs := make([]int, 0, len(seen))
	for run := range seen {
		runs = append(runs, run)
	}
	sort.Ints(runs)
	return runs, nil
}
