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
	"sort"
	"sync"
)

// RecordEvent identifies what happened to a record.
type RecordEvent int

const (
	// EventRecorded fires when a record is first stored.
	EventRecorded RecordEvent = iota
	// EventModeChanged fires when SetMode overwrites the mode.
	EventModeChanged
	// EventForgotten fires when a record is removed.
	EventForgotten
)

// String returns the event name.
func (e RecordEvent) String() string {
	switch e {
	case EventRecorded:
		return "recorded"
	case EventModeChanged:
		return "mode_changed"
	case EventForgotten:
		return "forgotten"
	default:
		return fmt.Sprintf("record_event(%d)", int(e))
	}
}

// RecordHook is called after a record changes. It receives a copy.
type RecordHook func(id Identity, rec *EnumerationRecord, event RecordEvent)

// ModeRegistry maps test identities to their enumeration records.
//
// Description:
//
//	Counting stores one record per identity; every later run looks it up
//	to learn the mode and column sizes, since a real run executes the body
//	fresh and cannot recompute them. Records are stored and returned as
//	copies so no caller can mutate shared state behind the lock.
//
// Thread Safety: Safe for concurrent use via read-write mutex.
type ModeRegistry struct {
	mu      sync.RWMutex
	records map[Identity]*EnumerationRecord
	hooks   []RecordHook
}

// NewModeRegistry creates an empty registry.
//
// Outputs:
//   - *ModeRegistry: The new registry. Never nil.
func NewModeRegistry() *ModeRegistry {
	return &ModeRegistry{
		records: make(map[Identity]*EnumerationRecord),
		hooks:   make([]RecordHook, 0),
	}
}

// Record stores the enumeration for rec.Identity.
//
// Inputs:
//   - rec: The record to store. Must not be nil and must validate.
//
// Outputs:
//   - error: nil on success, ErrNilRecord, a validation error, or
//     ErrAlreadyRecorded if the identity already has a record.
//
// Thread Safety: Safe for concurrent use.
func (r *ModeRegistry) Record(rec *EnumerationRecord) error {
	if rec == nil {
		return ErrNilRecord
	}
	if err := rec.Validate(); err != nil {
		return err
	}

	stored := rec.Clone()

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.records[stored.Identity]; exists {
		return fmt.Errorf("%w: %s", ErrAlreadyRecorded, stored.Identity)
	}
	r.records[stored.Identity] = stored

	r.notify(stored, EventRecorded)
	return nil
}

// MustRecord stores rec and panics on error.
func (r *ModeRegistry) MustRecord(rec *EnumerationRecord) {
	if err := r.Record(rec); err != nil {
		panic(fmt.Sprintf("generator: failed to record enumeration: %v", err))
	}
}

// Lookup returns a copy of the record for id.
//
// Outputs:
//   - *EnumerationRecord: The record copy, or nil if not found.
//   - bool: true if found.
//
// Thread Safety: Safe for concurrent use.
func (r *ModeRegistry) Lookup(id Identity) (*EnumerationRecord, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	rec, ok := r.records[id]
	if !ok {
		return nil, false
	}
	return rec.Clone(), true
}

// SetMode applies a mode declared by a running test body.
//
// Description:
//
//	If the declared mode matches the counted mode nothing changes. A
//	differing declaration is rejected under ConflictFail. Under
//	ConflictOverwrite the recorded mode is replaced once; a second
//	differing declaration is rejected.
//
// Inputs:
//   - id: The test identity.
//   - mode: The declared mode.
//   - policy: How to treat a disagreement.
//
// Outputs:
//   - bool: true if the recorded mode was changed.
//   - error: ErrNotCounted, ErrInvalidMode or ErrModeConflict.
//
// Thread Safety: Safe for concurrent use.
func (r *ModeRegistry) SetMode(id Identity, mode Mode, policy ConflictPolicy) (bool, error) {
	if !mode.Valid() {
		return false, fmt.Errorf("%w: %v", ErrInvalidMode, mode)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	rec, ok := r.records[id]
	if !ok {
		return false, fmt.Errorf("%w: %s", ErrNotCounted, id)
	}
	if rec.Mode == mode {
		return false, nil
	}
	if policy != ConflictOverwrite {
		return false, fmt.Errorf("%w: %s counted as %s, declared %s", ErrModeConflict, id, rec.Mode, mode)
	}
	if rec.ModeOverridden {
		return false, fmt.Errorf("%w: %s mode already overridden to %s, declared %s", ErrModeConflict, id, rec.Mode, mode)
	}

	rec.Mode = mode
	rec.ModeOverridden = true
	r.notify(rec, EventModeChanged)
	return true, nil
}

// Forget removes the record for id.
//
// Outputs:
//   - error: nil on success, ErrNotCounted if id has no record.
//
// Thread Safety: Safe for concurrent use.
func (r *ModeRegistry) Forget(id Identity) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	rec, ok := r.records[id]
	if !ok {
		return fmt.Errorf("%w: %s", ErrNotCounted, id)
	}
	delete(r.records, id)
	r.notify(rec, EventForgotten)
	return nil
}

// List returns all recorded identities sorted by their string form.
func (r *ModeRegistry) List() []Identity {
	r.mu.RLock()
	defer r.mu.RUnlock()

	ids := make([]Identity, 0, len(r.records))
	for id := range r.records {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool {
		return ids[i].String() < ids[j].String()
	})
	return ids
}

// Count returns the number of records.
func (r *ModeRegistry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.records)
}

// Clear removes every record, notifying hooks for each.
func (r *ModeRegistry) Clear() {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, rec := range r.records {
		r.notify(rec, EventForgotten)
	}
	r.records = make(map[Identity]*EnumerationRecord)
}

// AddHook registers a hook called after every record change. Hooks run
// with the registry lock held and must not call back into the registry.
func (r *ModeRegistry) AddHook(hook RecordHook) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.hooks = append(r.hooks, hook)
}

// notify must be called with r.mu held.
func (r *ModeRegistry) notify(rec *EnumerationRecord, event RecordEvent) {
	for _, hook := range r.hooks {
		hook(rec.Identity, rec.Clone(), event)
	}
}

// -----------------------------------------------------------------------------
// Default Registry
// -----------------------------------------------------------------------------

// DefaultRegistry is the process-wide registry used by the default engine.
var DefaultRegistry = NewModeRegistry()

// Lookup returns a copy of the record for id from the default registry.
func Lookup(id Identity) (*EnumerationRecord, bool) {
	return DefaultRegistry.Lookup(id)
}

// List returns all identities in the default registry.
func List() []Identity {
	return DefaultRegistry.List()
}
