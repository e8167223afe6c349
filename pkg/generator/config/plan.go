// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package config

import (
	"errors"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/AleutianAI/gentest/pkg/generator"
)

// ErrInvalidPlan wraps every plan file validation failure.
var ErrInvalidPlan = errors.New("invalid plan file")

// PlanFile declares the columns of one test upfront.
//
// Example:
//
//	name: Math.Add
//	mode: full
//	columns:
//	  - name: a
//	    values: [1, 2]
//	  - name: b
//	    values: [10, 20]
type PlanFile struct {
	Name    string       `json:"name" yaml:"name" validate:"required"`
	Mode    string       `json:"mode" yaml:"mode" validate:"omitempty,oneof=full aligned"`
	Columns []PlanColumn `json:"columns" yaml:"columns" validate:"dive"`
}

// PlanColumn is one named generator column.
type PlanColumn struct {
	Name   string `json:"name" yaml:"name" validate:"required"`
	Values []any  `json:"values" yaml:"values" validate:"min=1"`
}

// LoadPlan reads and validates a plan file.
func LoadPlan(path string) (*PlanFile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read plan: %w", err)
	}
	return ParsePlan(data)
}

// ParsePlan decodes and validates plan YAML.
func ParsePlan(data []byte) (*PlanFile, error) {
	var p PlanFile
	if err := yaml.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidPlan, err)
	}
	if err := p.Validate(); err != nil {
		return nil, err
	}
	return &p, nil
}

// Validate checks the plan's fields.
func (p *PlanFile) Validate() error {
	if err := configValidate.Struct(p); err != nil {
		return errors.Join(ErrInvalidPlan, err)
	}
	return nil
}

// Sizes returns the column sizes in declaration order.
func (p *PlanFile) Sizes() []int {
	sizes := make([]int, len(p.Columns))
	for i, c := range p.Columns {
		sizes[i] = len(c.Values)
	}
	return sizes
}

// Plan builds the index arithmetic for the file.
//
// Inputs:
//   - override: Mode name replacing the file's mode. Empty keeps it.
func (p *PlanFile) Plan(override string) (*generator.Plan, error) {
	name := p.Mode
	if override != "" {
		name = override
	}
	mode, err := generator.ParseMode(name)
	if err != nil {
		return nil, err
	}
	return generator.NewPlan(mode, p.Sizes()...)
}

// Row renders the values a tuple of value indices selects.
func (p *PlanFile) Row(tuple []int) ([]string, error) {
	if len(tuple) != len(p.Columns) {
		return nil, fmt.Errorf("tuple has %d indices for %d columns", len(tuple), len(p.Columns))
	}
	row := make([]string, len(tuple))
	for i, idx := range tuple {
		values := p.Columns[i].Values
		if idx < 0 || idx >= len(values) {
			return nil, fmt.Errorf("%w: column %s index %d", generator.ErrRunIndexOutOfRange, p.Columns[i].Name, idx)
		}
		row[i] = fmt.Sprint(values[idx])
	}
	return row, nil
}

// Identity parses the plan's name as a test identity.
func (p *PlanFile) Identity() (generator.Identity, error) {
	return generator.ParseIdentity(p.Name)
}
