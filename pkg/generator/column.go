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

import "fmt"

// Column is the set of candidate values declared at one generator call.
//
// A Column is immutable once built and is re-declared every time the test
// body executes. Values are copied on construction so later mutation of
// the caller's slice has no effect.
type Column[T any] struct {
	values []T
}

// NewColumn builds a column from one or more values.
//
// Outputs:
//   - Column[T]: The column.
//   - error: ErrEmptyColumn if no values were given.
func NewColumn[T any](values ...T) (Column[T], error) {
	if len(values) == 0 {
		return Column[T]{}, ErrEmptyColumn
	}
	cp := make([]T, len(values))
	copy(cp, values)
	return Column[T]{values: cp}, nil
}

// Size returns the number of candidate values.
func (c Column[T]) Size() int {
	return len(c.values)
}

// At returns the value at index i.
//
// Outputs:
//   - T: The value, or the zero value on error.
//   - error: ErrRunIndexOutOfRange when i is outside [0, Size()).
func (c Column[T]) At(i int) (T, error) {
	if i < 0 || i >= len(c.values) {
		var zero T
		return zero, fmt.Errorf("%w: value index %d for column of size %d", ErrRunIndexOutOfRange, i, len(c.values))
	}
	return c.values[i], nil
}

// Values returns a copy of the candidate values in declaration order.
func (c Column[T]) Values() []T {
	cp := make([]T, len(c.values))
	copy(cp, c.values)
	return cp
}
