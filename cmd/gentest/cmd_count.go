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
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/AleutianAI/gentest/pkg/generator"
)

type countOptions struct {
	mode   string
	name   string
	tuples bool
	export exportOptions
}

func newCountCmd(c *cli) *cobra.Command {
	opts := &countOptions{}
	cmd := &cobra.Command{
		Use:   "count [sizes...]",
		Short: "Count the runs a sequence of generator columns produces",
		Long: `Replays a synthetic test body declaring one generator column per size,
exactly as go test counts a real body, and prints the stored record.`,
		Example: `  gentest count 2 3
  gentest count 3 2 2 --mode aligned --tuples`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.runCount(cmd, opts, args)
		},
	}
	cmd.Flags().StringVar(&opts.mode, "mode", generator.ModeFull.String(), "enumeration mode: full or aligned")
	cmd.Flags().StringVar(&opts.name, "name", "Cli.Count", "test identity as Suite.Case")
	cmd.Flags().BoolVar(&opts.tuples, "tuples", false, "print the value indices of every run")
	opts.export.addFlags(cmd)
	return cmd
}

func (c *cli) runCount(cmd *cobra.Command, opts *countOptions, args []string) (err error) {
	sizes, err := parseSizes(args)
	if err != nil {
		return err
	}
	mode, err := generator.ParseMode(opts.mode)
	if err != nil {
		return err
	}
	id, err := generator.ParseIdentity(opts.name)
	if err != nil {
		return err
	}

	ctx := cmd.Context()
	sink, finish, err := c.newSink(ctx, &opts.export)
	if err != nil {
		return err
	}
	defer func() {
		err = errors.Join(err, finish())
	}()

	engineCfg := c.cfg.EngineConfig(c.logger, sink)
	engineCfg.Registry = generator.NewModeRegistry()
	engine := generator.NewEngine(engineCfg)

	gen := engine.Enumerator(ctx, id, func(s *generator.RunState) error {
		for _, size := range sizes {
			if _, err := engine.Resolve(ctx, s, size); err != nil {
				return err
			}
		}
		if err := engine.DeclareMode(ctx, s, mode); err != nil {
			return err
		}
		if s.Counting() {
			generator.StopCounting()
		}
		return nil
	})
	rec, err := gen.Record()
	if err != nil {
		return err
	}

	c.printer.Title("Enumeration " + rec.Identity.String())
	c.printer.KeyValues([][2]string{
		{"identity", rec.Identity.String()},
		{"mode", rec.Mode.String()},
		{"columns", strconv.Itoa(rec.Columns())},
		{"column_sizes", joinInts(rec.ColumnSizes)},
		{"full_count", strconv.Itoa(rec.FullCount)},
		{"aligned_max", strconv.Itoa(rec.AlignedMax)},
		{"run_count", strconv.Itoa(gen.Len())},
		{"session", rec.SessionID},
	})
	if !opts.tuples {
		return nil
	}

	plan, err := rec.Plan()
	if err != nil {
		return err
	}
	headers := []string{"run"}
	for i := range sizes {
		headers = append(headers, "c"+strconv.Itoa(i))
	}
	var rows [][]string
	for run := range gen.All() {
		tuple, err := plan.Tuple(run)
		if err != nil {
			return err
		}
		rows = append(rows, append([]string{strconv.Itoa(run)}, intStrings(tuple)...))
	}
	c.printer.Table(headers, rows)
	return nil
}

// parseSizes converts column size arguments.
func parseSizes(args []string) ([]int, error) {
	sizes := make([]int, len(args))
	for i, arg := range args {
		n, err := strconv.Atoi(arg)
		if err != nil {
			return nil, fmt.Errorf("column %d: size %q is not an integer", i, arg)
		}
		if n < 1 {
			return nil, fmt.Errorf("column %d: %w", i, generator.ErrEmptyColumn)
		}
		sizes[i] = n
	}
	return sizes, nil
}

func intStrings(values []int) []string {
	out := make([]string, len(values))
	for i, v := range values {
		out[i] = strconv.Itoa(v)
	}
	return out
}

func joinInts(values []int) string {
	if len(values) == 0 {
		return "-"
	}
	return strings.Join(intStrings(values), ",")
}
