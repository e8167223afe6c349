// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package gentest runs one test body once per combination of generated
// values, on top of the testing package.
//
// A test declares its value columns inline with Gen and then its
// combination mode with Use:
//
//	func TestAdd(t *testing.T) {
//		gentest.Run(t, "Math", "Add", func(t *testing.T, g *gentest.G) {
//			a := gentest.Gen(g, 1, 2)
//			b := gentest.Gen(g, 10, 20)
//			g.Use(gentest.Full)
//			require.Equal(t, a+b, Add(a, b))
//		})
//	}
//
// This produces the subtests Math.Add/0 through Math.Add/3 with (a, b)
// taking (1,10), (1,20), (2,10), (2,20). With gentest.Aligned the columns
// are zipped instead: the run count is the largest column and shorter
// columns wrap around.
//
// Before the runs, the body is replayed twice to count its columns. The
// replay stops inside Use, so code before Use must not assert on the
// generated values or stop the test.
package gentest

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/AleutianAI/gentest/pkg/generator"
	"github.com/AleutianAI/gentest/pkg/generator/telemetry"
)

// Mode selects how columns combine into runs.
type Mode = generator.Mode

const (
	// Full runs the Cartesian product of all columns.
	Full = generator.ModeFull

	// Aligned zips the columns, wrapping the shorter ones.
	Aligned = generator.ModeAligned
)

// Body is a parameterized test body.
type Body func(t *testing.T, g *G)

// G is the generator context handed to a Body. It is only valid for the
// pass it was created for.
type G struct {
	t      *testing.T
	ctx    context.Context
	engine *generator.Engine
	state  *generator.RunState
	used   bool
}

// Gen declares a value column and returns this run's value from it.
//
// During counting it returns a placeholder from values. A column without
// values fails the test.
func Gen[T any](g *G, values ...T) T {
	g.t.Helper()
	col, err := generator.NewColumn(values...)
	if err != nil {
		g.fail(err)
	}
	idx, err := g.engine.Resolve(g.ctx, g.state, col.Size())
	if err != nil {
		g.fail(err)
	}
	v, err := col.At(idx)
	if err != nil {
		g.fail(err)
	}
	return v
}

// Use declares the body's combination mode; no argument means Full. It
// must be called once, after every Gen call.
//
// While counting, Use records the mode and ends the replay. During a run it
// checks that the body made the counted generator calls and declared the
// counted mode.
func (g *G) Use(mode ...Mode) {
	g.t.Helper()
	m := Full
	switch len(mode) {
	case 0:
	case 1:
		m = mode[0]
	default:
		g.fail(fmt.Errorf("%w: Use takes at most one mode, got %d", generator.ErrInvalidMode, len(mode)))
	}

	err := g.engine.DeclareMode(g.ctx, g.state, m)
	if g.state.Counting() {
		if err != nil {
			generator.AbortCounting(err)
		}
		generator.StopCounting()
	}
	g.used = true
	if err != nil {
		g.fail(err)
	}
}

// Param returns the run index, or -1 while counting.
func (g *G) Param() int {
	if g.state.Counting() {
		return -1
	}
	return g.state.RunIndex()
}

// Mode returns the mode this pass resolves under.
func (g *G) Mode() Mode { return g.state.Mode() }

// Identity returns the test identity.
func (g *G) Identity() generator.Identity { return g.state.Identity() }

// Counting reports whether this is a counting replay.
func (g *G) Counting() bool { return g.state.Counting() }

// fail ends the pass. Counting replays are aborted with err; runs are
// skipped for ErrSkipRun and failed otherwise.
func (g *G) fail(err error) {
	g.t.Helper()
	if g.state.Counting() {
		generator.AbortCounting(err)
	}
	if errors.Is(err, generator.ErrSkipRun) {
		g.t.Skip(err.Error())
	}
	g.t.Fatalf("gentest: %v", err)
}

// Run declares a parameterized test named suite.caseName and runs body
// once per run index.
//
// Description:
//
//	Run creates the subtest "suite.caseName" and, inside it, one subtest
//	per run index named after the index. The run indices come from the
//	engine's RangeGenerator, which counts the enumeration on first use of
//	the identity and reuses it afterwards. Each run checks that
//	the name the testing package assigned still identifies the declared
//	test.
//
// Outputs:
//   - bool: The result of t.Run for the suite.caseName subtest.
func Run(t *testing.T, suite, caseName string, body Body, opts ...Option) bool {
	t.Helper()
	id, err := generator.NewIdentity(suite, caseName)
	if err != nil {
		t.Fatalf("gentest: %v", err)
	}
	o, err := resolve(opts)
	if err != nil {
		t.Fatalf("gentest: %v", err)
	}

	return t.Run(id.String(), func(t *testing.T) {
		ctx := context.Background()
		gen := o.engine.Enumerator(ctx, id, func(s *generator.RunState) error {
			body(t, &G{t: t, ctx: ctx, engine: o.engine, state: s})
			return nil
		})
		if err := gen.Err(); err != nil {
			t.Fatalf("gentest: counting %s: %v", id, err)
		}

		for run := range gen.All() {
			if !o.selects(run) {
				continue
			}
			t.Run(generator.RunName(run), func(t *testing.T) {
				if o.parallel {
					t.Parallel()
				}
				runOne(ctx, t, o.engine, id, run, body)
			})
		}
	})
}

func runOne(ctx context.Context, t *testing.T, engine *generator.Engine, id generator.Identity, run int, body Body) {
	t.Helper()
	start := time.Now()
	mode := generator.ModeFull
	defer func() {
		outcome := telemetry.OutcomePassed
		switch {
		case t.Skipped():
			outcome = telemetry.OutcomeSkipped
		case t.Failed():
			outcome = telemetry.OutcomeFailed
		}
		engine.EndRun(ctx, id, run, mode, outcome, time.Since(start))
	}()

	named, namedRun, err := generator.ParseRunName(t.Name())
	if err != nil || named != id || namedRun != run {
		t.Fatalf("gentest: %v: declared %s run %d, running as %q", generator.ErrIdentityMismatch, id, run, t.Name())
	}

	state, err := engine.BeginRun(ctx, id, run)
	if errors.Is(err, generator.ErrSkipRun) {
		t.Skip(err.Error())
	}
	if err != nil {
		t.Fatalf("gentest: %v", err)
	}
	mode = state.Mode()

	g := &G{t: t, ctx: ctx, engine: engine, state: state}
	body(t, g)
	if !g.used {
		t.Fatalf("gentest: %v: %s run %d returned without calling Use", generator.ErrModeNotDeclared, id, run)
	}
}

// -----------------------------------------------------------------------------
// Suites
// -----------------------------------------------------------------------------

// Suite groups test cases under one suite name with shared options.
type Suite struct {
	name string
	opts []Option
}

// NewSuite creates a suite. The name must be a valid identity suite.
func NewSuite(name string, opts ...Option) *Suite {
	return &Suite{name: name, opts: opts}
}

// Name returns the suite name.
func (s *Suite) Name() string { return s.name }

// Run runs body as the case caseName of the suite. opts apply after the
// suite's own options.
func (s *Suite) Run(t *testing.T, caseName string, body Body, opts ...Option) bool {
	t.Helper()
	all := make([]Option, 0, len(s.opts)+len(opts))
	all = append(all, s.opts...)
	all = append(all, opts...)
	return Run(t, s.name, caseName, body, all...)
}
