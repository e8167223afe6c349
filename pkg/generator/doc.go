// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package generator implements the value-generation engine behind gentest.
//
// A test body declares several value columns inline. The engine discovers
// those columns by replaying the body, records how many runs the declared
// mode implies, and then resolves one concrete value per column for every
// run index the host framework executes.
//
// # Modes
//
//   - ModeFull enumerates the Cartesian product of all columns. Run count
//     is the product of the column sizes.
//   - ModeAligned walks the columns side by side, cycling shorter columns.
//     Run count is the size of the largest column.
//
// # Two-Phase Protocol
//
//	┌──────────────┐   replay (FULL)    ┌─────────────────────┐
//	│  test body   │ ─────────────────▶ │ CombinationCounter  │
//	│              │   replay (ALIGNED) │  sizes, product,    │
//	│              │ ─────────────────▶ │  max, declared mode │
//	└──────────────┘                    └──────────┬──────────┘
//	                                               │ EnumerationRecord
//	                                               ▼
//	┌──────────────┐   run index r      ┌─────────────────────┐
//	│ RangeGenerator│ ◀──────────────── │    ModeRegistry     │
//	└──────┬───────┘                    └──────────┬──────────┘
//	       │ r in [0, N)                           │
//	       ▼                                       ▼
//	┌──────────────┐   Resolve(size)    ┌─────────────────────┐
//	│  test body   │ ─────────────────▶ │    ValueResolver    │
//	└──────────────┘                    └─────────────────────┘
//
// Counting replays receive placeholder values: the first value of every
// column during the FULL replay and the second value (when present) during
// the ALIGNED replay, so that bodies branching on a generated value walk a
// different path on each replay.
//
// # State
//
// All mutable per-pass state lives in an explicit RunState that the caller
// threads through every call. Nothing is kept in package globals except the
// DefaultRegistry, which is safe for concurrent use.
//
// # Upfront Declaration
//
// Plan computes the same enumeration without executing user code at all,
// from a list of column sizes declared ahead of time. EnumerationRecord
// exposes its Plan so replayed and declared enumerations share one
// implementation of the index arithmetic.
package generator
