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
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/AleutianAI/gentest/pkg/generator/config"
	"github.com/AleutianAI/gentest/pkg/logging"
	"github.com/AleutianAI/gentest/pkg/ux"
)

// version is set at build time with -ldflags "-X main.version=...".
var version = "dev"

// cli carries the state shared by every subcommand.
type cli struct {
	out    io.Writer
	errOut io.Writer

	configPath string
	logLevel   string

	cfg     config.Config
	logger  *logging.Logger
	printer *ux.Printer
}

// newRootCmd builds the command tree writing to out and errOut.
func newRootCmd(out, errOut io.Writer) *cobra.Command {
	c := &cli{out: out, errOut: errOut}

	root := &cobra.Command{
		Use:           "gentest",
		Short:         "Inspect parameterized test enumerations",
		Long:          `gentest counts generator columns, expands plan files into their run tuples and decodes run names, using the same engine go test does.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return c.setup()
		},
		PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
			if c.logger == nil {
				return nil
			}
			return c.logger.Close()
		},
	}
	root.SetOut(out)
	root.SetErr(errOut)

	root.PersistentFlags().StringVar(&c.configPath, "config", "", "config file (default $"+config.EnvConfig+")")
	root.PersistentFlags().StringVar(&c.logLevel, "log-level", "", "log level: debug, info, warn or error")

	root.AddCommand(
		newCountCmd(c),
		newPlanCmd(c),
		newIdentityCmd(c),
		newVersionCmd(c),
	)
	return root
}

// setup loads the configuration and builds the logger and printer.
func (c *cli) setup() error {
	cfg, err := config.Load(c.configPath)
	if err != nil {
		return err
	}
	if c.logLevel != "" {
		cfg.Log.Level = c.logLevel
	}
	level, err := logging.ParseLevel(cfg.Log.Level)
	if err != nil {
		return fmt.Errorf("%w: %v", config.ErrInvalidConfig, err)
	}

	c.cfg = cfg
	c.logger = logging.New(logging.Config{
		Level:   level,
		Output:  c.errOut,
		LogDir:  cfg.Log.Dir,
		Service: "gentest",
		JSON:    cfg.Log.JSON,
	})
	c.printer = ux.NewPrinter(c.out)
	return nil
}
