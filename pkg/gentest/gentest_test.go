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
	"context"
	"slices"
	"sync"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/gentest/pkg/generator"
	"github.com/AleutianAI/gentest/pkg/generator/telemetry"
)

func newEngine(t *testing.T, cfg generator.EngineConfig) *generator.Engine {
	t.Helper()
	cfg.Registry = generator.NewModeRegistry()
	return generator.NewEngine(cfg)
}

// outcomeSink keeps the outcome of every run by index.
type outcomeSink struct {
	telemetry.NoOpSink
	mu       sync.Mutex
	outcomes map[int]string
}

func (s *outcomeSink) RecordRun(_ context.Context, d *telemetry.RunData) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.outcomes == nil {
		s.outcomes = make(map[int]string)
	}
	s.outcomes[d.RunIndex] = d.Outcome
	return nil
}

// -----------------------------------------------------------------------------
// Scenarios
// -----------------------------------------------------------------------------

func TestRun_FullTwoColumns(t *testing.T) {
	e := newEngine(t, generator.EngineConfig{})
	var got [][]int
	var names []string

	ok := Run(t, "Math", "Add", func(t *testing.T, g *G) {
		a := Gen(g, 1, 2)
		b := Gen(g, 10, 20)
		g.Use(Full)
		got = append(got, []int{a, b})
		names = append(names, t.Name())
	}, WithEngine(e))

	require.True(t, ok)
	want := [][]int{{1, 10}, {1, 20}, {2, 10}, {2, 20}}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("values mismatch (-want +got):\n%s", diff)
	}
	prefix := t.Name() + "/Math.Add/"
	assert.Equal(t, []string{prefix + "0", prefix + "1", prefix + "2", prefix + "3"}, names)
}

func TestRun_AlignedThreeColumns(t *testing.T) {
	e := newEngine(t, generator.EngineConfig{})
	var got [][]int

	Run(t, "Zip", "Three", func(t *testing.T, g *G) {
		a := Gen(g, 1, 2, 3)
		b := Gen(g, 10, 20)
		c := Gen(g, 100, 200)
		g.Use(Aligned)
		got = append(got, []int{a, b, c})
	}, WithEngine(e))

	want := [][]int{{1, 10, 100}, {2, 20, 200}, {3, 10, 100}}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("values mismatch (-want +got):\n%s", diff)
	}
}

func TestRun_FullWithSingleton(t *testing.T) {
	e := newEngine(t, generator.EngineConfig{})
	var got []string

	Run(t, "Mixed", "Singleton", func(t *testing.T, g *G) {
		k := Gen(g, "k")
		n := Gen(g, 1, 2, 3)
		g.Use()
		got = append(got, k+string(rune('0'+n)))
	}, WithEngine(e))

	assert.Equal(t, []string{"k1", "k2", "k3"}, got)
}

func TestRun_AlignedSingleColumn(t *testing.T) {
	e := newEngine(t, generator.EngineConfig{})
	var got []int

	Run(t, "One", "Column", func(t *testing.T, g *G) {
		v := Gen(g, 5, 6, 7, 8)
		g.Use(Aligned)
		got = append(got, v)
	}, WithEngine(e))

	assert.Equal(t, []int{5, 6, 7, 8}, got)
}

func TestRun_NoGenerators(t *testing.T) {
	e := newEngine(t, generator.EngineConfig{})
	runs := 0

	Run(t, "Plain", "Test", func(t *testing.T, g *G) {
		g.Use(Full)
		runs++
	}, WithEngine(e))

	assert.Equal(t, 1, runs)
}

// -----------------------------------------------------------------------------
// Context
// -----------------------------------------------------------------------------

func TestG_Context(t *testing.T) {
	e := newEngine(t, generator.EngineConfig{})
	var beforeUse []int
	var afterUse []int
	var counting []bool

	Run(t, "Ctx", "Params", func(t *testing.T, g *G) {
		_ = Gen(g, "a", "b", "c")
		beforeUse = append(beforeUse, g.Param())
		counting = append(counting, g.Counting())
		g.Use(Full)

		afterUse = append(afterUse, g.Param())
		assert.Equal(t, "Ctx.Params", g.Identity().String())
		assert.Equal(t, Full, g.Mode())
	}, WithEngine(e))

	assert.Equal(t, []int{-1, -1, 0, 1, 2}, beforeUse, "two counting replays, then the runs")
	assert.Equal(t, []bool{true, true, false, false, false}, counting)
	assert.Equal(t, []int{0, 1, 2}, afterUse)
}

func TestRun_CountsOncePerIdentity(t *testing.T) {
	e := newEngine(t, generator.EngineConfig{})
	replays := 0
	body := func(t *testing.T, g *G) {
		_ = Gen(g, 1, 2)
		if g.Counting() {
			replays++
		}
		g.Use()
	}

	Run(t, "Once", "Counted", body, WithEngine(e))
	Run(t, "Once", "Counted", body, WithEngine(e))

	assert.Equal(t, 2, replays)
}

// TestRun_EnumeratesRecordedRuns verifies the run indices come from the
// engine's enumerator: an enumeration already in the registry is used as is
// and the body is never replayed for counting.
func TestRun_EnumeratesRecordedRuns(t *testing.T) {
	reg := generator.NewModeRegistry()
	id := generator.MustIdentity("Recorded", "Runs")
	rec, err := generator.NewEnumerationRecord(id, generator.ModeAligned, 2, 3)
	require.NoError(t, err)
	reg.MustRecord(rec)
	e := generator.NewEngine(generator.EngineConfig{Registry: reg})

	gen := e.Enumerator(context.Background(), id, nil)
	require.NoError(t, gen.Err())
	require.Equal(t, 3, gen.Len())

	var runs []int
	Run(t, "Recorded", "Runs", func(t *testing.T, g *G) {
		assert.False(t, g.Counting(), "recorded enumerations are not recounted")
		_ = Gen(g, "a", "b")
		_ = Gen(g, 1, 2, 3)
		g.Use(Aligned)
		runs = append(runs, g.Param())
	}, WithEngine(e))

	assert.Equal(t, slices.Collect(gen.All()), runs)
}

// -----------------------------------------------------------------------------
// Options
// -----------------------------------------------------------------------------

func TestWithRuns(t *testing.T) {
	e := newEngine(t, generator.EngineConfig{})
	var got []int

	Run(t, "Filter", "Runs", func(t *testing.T, g *G) {
		v := Gen(g, 0, 1, 2, 3)
		g.Use(Aligned)
		got = append(got, v)
	}, WithEngine(e), WithRuns(3, 1, 9, 1))

	assert.Equal(t, []int{1, 3}, got)
}

func TestWithParallel(t *testing.T) {
	e := newEngine(t, generator.EngineConfig{})
	var mu sync.Mutex
	var got []int

	Run(t, "Par", "Runs", func(t *testing.T, g *G) {
		a := Gen(g, 0, 1)
		b := Gen(g, 0, 10, 20)
		g.Use(Full)
		mu.Lock()
		got = append(got, a+b)
		mu.Unlock()
	}, WithEngine(e), WithParallel(true))

	slices.Sort(got)
	assert.Equal(t, []int{0, 1, 10, 11, 20, 21}, got)
}

func TestSuite(t *testing.T) {
	e := newEngine(t, generator.EngineConfig{})
	suite := NewSuite("Strings", WithEngine(e))
	assert.Equal(t, "Strings", suite.Name())

	var got []string
	suite.Run(t, "Concat", func(t *testing.T, g *G) {
		a := Gen(g, "x", "y")
		b := Gen(g, "1", "2")
		g.Use(Full)
		got = append(got, a+b)
	}, WithRuns(0, 3))

	assert.Equal(t, []string{"x1", "y2"}, got)
	_, ok := e.Registry().Lookup(generator.MustIdentity("Strings", "Concat"))
	assert.True(t, ok)
}

func TestOptions_Selects(t *testing.T) {
	o := &options{}
	assert.True(t, o.selects(0))
	assert.True(t, o.selects(7))

	o.runs = []int{4, -1, 2, 2}
	assert.True(t, o.selects(2))
	assert.True(t, o.selects(4))
	assert.False(t, o.selects(0))
	assert.False(t, o.selects(3))
}

// -----------------------------------------------------------------------------
// Mode overrides
// -----------------------------------------------------------------------------

// TestRun_ModeOverrideSkipsRun declares the mode from a generated value.
// Counting settles on Full; run 1 then declares Aligned, which replaces the
// recorded mode and skips that run.
func TestRun_ModeOverrideSkipsRun(t *testing.T) {
	sink := &outcomeSink{}
	e := newEngine(t, generator.EngineConfig{
		Lenient:        true,
		ConflictPolicy: generator.ConflictOverwrite,
		Sink:           sink,
	})

	Run(t, "Switch", "Mode", func(t *testing.T, g *G) {
		v := Gen(g, "full", "aligned")
		if v == "aligned" {
			g.Use(Aligned)
		} else {
			g.Use(Full)
		}
	}, WithEngine(e))

	assert.Equal(t, map[int]string{
		0: telemetry.OutcomePassed,
		1: telemetry.OutcomeSkipped,
	}, sink.outcomes)

	rec, ok := e.Registry().Lookup(generator.MustIdentity("Switch", "Mode"))
	require.True(t, ok)
	assert.Equal(t, generator.ModeAligned, rec.Mode)
	assert.True(t, rec.ModeOverridden)
}

func TestRun_DefaultEngine(t *testing.T) {
	for _, key := range []string{"GENTEST_CONFIG", "GENTEST_RUNS"} {
		t.Setenv(key, "")
	}
	var got []int

	Run(t, "Default", "Engine", func(t *testing.T, g *G) {
		v := Gen(g, 7, 8)
		g.Use(Aligned)
		got = append(got, v)
	})

	assert.Equal(t, []int{7, 8}, got)
	_, ok := generator.Lookup(generator.MustIdentity("Default", "Engine"))
	assert.True(t, ok)
}
