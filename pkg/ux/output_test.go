// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package ux

import (
	"bytes"
	"strings"
	"testing"
)

// =============================================================================
// Icon.Render Tests
// =============================================================================

func TestIcon_Render(t *testing.T) {
	for _, icon := range []Icon{IconSuccess, IconWarning, IconError, IconArrow} {
		if !strings.Contains(icon.Render(), string(icon)) {
			t.Errorf("Render() of %q lost the icon", icon)
		}
	}
}

// =============================================================================
// Printer Tests
// =============================================================================

func TestNewPrinter_BufferIsPlain(t *testing.T) {
	var buf bytes.Buffer
	if IsTerminal(&buf) {
		t.Error("a buffer is not a terminal")
	}
	if NewPrinter(&buf).Styled() {
		t.Error("printer on a buffer should be plain")
	}
}

func TestPrinter_PlainMessages(t *testing.T) {
	var buf bytes.Buffer
	p := NewPlainPrinter(&buf)

	p.Title("Enumeration")
	p.Success("counted")
	p.Warning("drift")

	want := "OK: counted\nWARN: drift\n"
	if buf.String() != want {
		t.Errorf("output = %q, want %q", buf.String(), want)
	}
}

func TestPrinter_PlainKeyValues(t *testing.T) {
	var buf bytes.Buffer
	NewPlainPrinter(&buf).KeyValues([][2]string{
		{"mode", "full"},
		{"full_count", "4"},
	})

	want := "mode:       full\nfull_count: 4\n"
	if buf.String() != want {
		t.Errorf("output = %q, want %q", buf.String(), want)
	}
}

func TestPrinter_PlainTable(t *testing.T) {
	var buf bytes.Buffer
	NewPlainPrinter(&buf).Table([]string{"run", "a"}, [][]string{{"0", "1"}, {"1", "2"}})

	want := "run\ta\n0\t1\n1\t2\n"
	if buf.String() != want {
		t.Errorf("output = %q, want %q", buf.String(), want)
	}
}

func TestPrinter_StyledTable(t *testing.T) {
	var buf bytes.Buffer
	p := &Printer{out: &buf, styled: true}
	p.Table([]string{"run", "value"}, [][]string{{"0", "alpha"}, {"12", "b"}})

	out := buf.String()
	for _, want := range []string{"run", "value", "alpha", "12"} {
		if !strings.Contains(out, want) {
			t.Errorf("styled table missing %q:\n%s", want, out)
		}
	}
	if strings.Contains(out, "\t") {
		t.Error("styled table should align with spaces, not tabs")
	}
}

func TestPrinter_StyledMessages(t *testing.T) {
	var buf bytes.Buffer
	p := &Printer{out: &buf, styled: true}

	p.Title("Plan")
	p.Success("done")
	p.KeyValues([][2]string{{"k", "v"}})

	out := buf.String()
	for _, want := range []string{"Plan", string(IconSuccess), "done", "k:", "v"} {
		if !strings.Contains(out, want) {
			t.Errorf("styled output missing %q:\n%s", want, out)
		}
	}
}
