// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package generator

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"unicode"
)

// dedupSuffix matches the "#NN" suffix the testing package appends to
// duplicate subtest names.
var dedupSuffix = regexp.MustCompile(`#\d+$`)

// Identity names one logical test independent of how many times it runs.
//
// The string form is "<Suite>.<Case>". Suite names never contain a dot, so
// the first dot always separates the two halves.
type Identity struct {
	Suite string
	Case  string
}

// NewIdentity validates suite and case names and builds an Identity.
//
// Description:
//
//	Names must be non-empty and free of whitespace, '/' and '#', because
//	the identity is embedded verbatim in subtest names and recovered from
//	t.Name() during runs. The suite name must also be free of '.'.
//
// Inputs:
//   - suite: The suite (fixture) name.
//   - caseName: The case name within the suite.
//
// Outputs:
//   - Identity: The validated identity.
//   - error: ErrInvalidIdentity wrapped with the offending name.
//
// Example:
//
//	id, err := generator.NewIdentity("Math", "Add")
//	// id.String() == "Math.Add"
func NewIdentity(suite, caseName string) (Identity, error) {
	if err := checkName("suite", suite, true); err != nil {
		return Identity{}, err
	}
	if err := checkName("case", caseName, false); err != nil {
		return Identity{}, err
	}
	return Identity{Suite: suite, Case: caseName}, nil
}

// MustIdentity is NewIdentity that panics on invalid names. Intended for
// package-level declarations in tests.
func MustIdentity(suite, caseName string) Identity {
	id, err := NewIdentity(suite, caseName)
	if err != nil {
		panic(err)
	}
	return id
}

func checkName(kind, name string, forbidDot bool) error {
	if name == "" {
		return fmt.Errorf("%w: empty %s name", ErrInvalidIdentity, kind)
	}
	for _, r := range name {
		switch {
		case unicode.IsSpace(r), !unicode.IsPrint(r):
			return fmt.Errorf("%w: %s name %q contains whitespace or control characters", ErrInvalidIdentity, kind, name)
		case r == '/' || r == '#':
			return fmt.Errorf("%w: %s name %q contains %q", ErrInvalidIdentity, kind, name, r)
		case forbidDot && r == '.':
			return fmt.Errorf("%w: %s name %q contains '.'", ErrInvalidIdentity, kind, name)
		}
	}
	return nil
}

// String returns "<Suite>.<Case>".
func (id Identity) String() string {
	return id.Suite + "." + id.Case
}

// IsZero reports whether the identity is unset.
func (id Identity) IsZero() bool {
	return id.Suite == "" && id.Case == ""
}

// ParseIdentity parses the "<Suite>.<Case>" form, tolerating the "#NN"
// duplicate suffix added by the testing package.
func ParseIdentity(s string) (Identity, error) {
	s = dedupSuffix.ReplaceAllString(s, "")
	suite, caseName, ok := strings.Cut(s, ".")
	if !ok {
		return Identity{}, fmt.Errorf("%w: %q has no suite separator", ErrInvalidIdentity, s)
	}
	return NewIdentity(suite, caseName)
}

// ParseRunName recovers the identity and run index from a running test's
// full name as reported by t.Name().
//
// Description:
//
//	Run subtests are named "<prefix...>/<Suite>.<Case>/<index>". Any
//	number of leading segments (the top-level test function and enclosing
//	groups) form the instantiation prefix and are discarded, as is the
//	"#NN" suffix the testing package appends to duplicate names.
//
// Inputs:
//   - name: The decorated name, usually t.Name().
//
// Outputs:
//   - Identity: The normalized identity.
//   - int: The run index.
//   - error: ErrInvalidIdentity if the name does not have the run shape.
//
// Example:
//
//	id, run, err := generator.ParseRunName("TestMath/Math.Add/3")
//	// id.String() == "Math.Add", run == 3
func ParseRunName(name string) (Identity, int, error) {
	segments := strings.Split(name, "/")
	if len(segments) < 2 {
		return Identity{}, 0, fmt.Errorf("%w: %q is not a run name", ErrInvalidIdentity, name)
	}

	runSeg := dedupSuffix.ReplaceAllString(segments[len(segments)-1], "")
	run, err := strconv.Atoi(runSeg)
	if err != nil || run < 0 {
		return Identity{}, 0, fmt.Errorf("%w: %q has no run index", ErrInvalidIdentity, name)
	}

	id, err := ParseIdentity(segments[len(segments)-2])
	if err != nil {
		return Identity{}, 0, err
	}
	return id, run, nil
}

// RunName returns the subtest name used for a run index.
func RunName(run int) string {
	return strconv.Itoa(run)
}
