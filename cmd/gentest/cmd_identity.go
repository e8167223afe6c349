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
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/AleutianAI/gentest/pkg/generator"
)

func newIdentityCmd(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "identity <name>",
		Short: "Decode a test identity or run name",
		Long: `Normalizes "Suite.Case" or a full subtest name such as
"TestMath/Math.Add/3" into its identity and run index.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.runIdentity(args[0])
		},
	}
}

func (c *cli) runIdentity(name string) error {
	if !strings.Contains(name, "/") {
		id, err := generator.ParseIdentity(name)
		if err != nil {
			return err
		}
		c.printer.KeyValues(identityPairs(id))
		return nil
	}

	id, run, err := generator.ParseRunName(name)
	if err != nil {
		return err
	}
	c.printer.KeyValues(append(identityPairs(id), [2]string{"run", strconv.Itoa(run)}))
	return nil
}

func identityPairs(id generator.Identity) [][2]string {
	return [][2]string{
		{"identity", id.String()},
		{"suite", id.Suite},
		{"case", id.Case},
	}
}
