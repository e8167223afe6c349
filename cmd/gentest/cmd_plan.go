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
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/cobra"

	"github.com/AleutianAI/gentest/pkg/generator/config"
)

type planOptions struct {
	mode  string
	runs  string
	watch bool
}

func newPlanCmd(c *cli) *cobra.Command {
	opts := &planOptions{}
	cmd := &cobra.Command{
		Use:   "plan <file>",
		Short: "Expand a plan file into the values of every run",
		Long: `Reads a YAML plan file declaring named generator columns and prints, for
each run index, the value every column yields.`,
		Example: `  gentest plan add.yaml
  gentest plan add.yaml --mode aligned --runs 0,2-3`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := c.runPlan(opts, args[0]); err != nil || !opts.watch {
				return err
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
			defer stop()
			return c.watchPlan(ctx, opts, args[0], nil)
		},
	}
	cmd.Flags().StringVar(&opts.mode, "mode", "", "override the file's mode: full or aligned")
	cmd.Flags().StringVar(&opts.runs, "runs", "", "only print these run indices, e.g. 0,3-5 (default: config runs)")
	cmd.Flags().BoolVar(&opts.watch, "watch", false, "print the plan again whenever the file changes")
	return cmd
}

func (c *cli) runPlan(opts *planOptions, path string) error {
	file, err := config.LoadPlan(path)
	if err != nil {
		return err
	}
	id, err := file.Identity()
	if err != nil {
		return err
	}
	plan, err := file.Plan(opts.mode)
	if err != nil {
		return err
	}

	filter := c.cfg.RunFilter()
	if opts.runs != "" {
		if filter, err = config.ParseRuns(opts.runs); err != nil {
			return err
		}
	}
	selected := make(map[int]bool, len(filter))
	for _, run := range filter {
		selected[run] = true
	}

	headers := []string{"run"}
	for _, col := range file.Columns {
		headers = append(headers, col.Name)
	}
	var rows [][]string
	for run, tuple := range plan.Tuples() {
		if len(selected) > 0 && !selected[run] {
			continue
		}
		values, err := file.Row(tuple)
		if err != nil {
			return err
		}
		rows = append(rows, append([]string{strconv.Itoa(run)}, values...))
	}

	c.logger.Debug("plan expanded",
		"identity", id.String(),
		"mode", plan.Mode().String(),
		"runs", plan.RunCount(),
		"printed", len(rows),
	)
	c.printer.Title(fmt.Sprintf("%s (%s, %d runs)", id, plan.Mode(), plan.RunCount()))
	c.printer.Table(headers, rows)
	return nil
}

// watchPlan prints the plan again on every write to path until ctx is done.
// Invalid intermediate versions of the file print a warning and keep
// watching. ready, if non-nil, is called once the watch is in place.
func (c *cli) watchPlan(ctx context.Context, opts *planOptions, path string, ready func()) error {
	abs, err := filepath.Abs(path)
	if err != nil {
		return err
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer watcher.Close()

	// Editors often replace the file, so watch its directory.
	if err := watcher.Add(filepath.Dir(abs)); err != nil {
		return fmt.Errorf("watch %s: %w", path, err)
	}
	c.logger.Debug("watching plan file", "path", abs)
	if ready != nil {
		ready()
	}

	for {
		select {
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) != abs || (!event.Has(fsnotify.Write) && !event.Has(fsnotify.Create)) {
				continue
			}
			if err := c.runPlan(opts, path); err != nil {
				c.logger.Warn("plan file invalid", "path", abs, "error", err)
				c.printer.Warning(err.Error())
			}

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			c.logger.Warn("plan watcher error", "error", err)

		case <-ctx.Done():
			return nil
		}
	}
}
