// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package privacc grants named test contexts access to unexported members
// of types that opt in.
//
// A type opts in by embedding Friend. Access is then declared once per
// (context type, target type, tag) and used through typed handles:
//
//	type account struct {
//		privacc.Friend
//		balance int
//	}
//
//	type ledgerTest struct{}
//
//	_ = privacc.DeclareField[ledgerTest, account, int](privacc.Default, "balance", "balance")
//	p, err := privacc.Field[ledgerTest, account, int](privacc.Default, "balance", &acct)
//	*p = 100
//
// Types that do not embed Friend can never be accessed, and every access
// is type-checked against its declaration.
package privacc

import (
	"errors"
	"fmt"
	"reflect"
	"sort"
	"sync"
	"unsafe"
)

var (
	// ErrNotFriend is returned when the target type does not embed Friend.
	ErrNotFriend = errors.New("target type does not embed privacc.Friend")

	// ErrNoSuchField is returned when the named field does not exist.
	ErrNoSuchField = errors.New("no such field")

	// ErrTypeMismatch is returned when a declared or accessed type differs
	// from the member's type.
	ErrTypeMismatch = errors.New("accessor type mismatch")

	// ErrAlreadyDeclared is returned when a key is declared twice.
	ErrAlreadyDeclared = errors.New("accessor already declared")

	// ErrNotDeclared is returned when no accessor exists for a key.
	ErrNotDeclared = errors.New("accessor not declared")

	// ErrNilTarget is returned for a nil target or accessor function.
	ErrNilTarget = errors.New("target must not be nil")
)

// Friend marks a struct as accessible. Embed it by value.
type Friend struct{}

var friendType = reflect.TypeFor[Friend]()

// Key identifies one accessor.
type Key struct {
	// Context is the type granted access, usually a test-only type.
	Context reflect.Type
	// Target is the struct type whose member is accessed.
	Target reflect.Type
	// Tag names the accessor.
	Tag string
}

// String renders the key for error messages.
func (k Key) String() string {
	return fmt.Sprintf("%v->%v#%s", k.Context, k.Target, k.Tag)
}

type accessorKind int

const (
	kindField accessorKind = iota
	kindFunc
)

type accessor struct {
	kind      accessorKind
	index     []int
	valueType reflect.Type
	fn        any
}

// Registry is the accessor-registration table.
//
// Thread Safety: Safe for concurrent use via read-write mutex.
type Registry struct {
	mu        sync.RWMutex
	accessors map[Key]accessor
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{accessors: make(map[Key]accessor)}
}

// Default is the process-wide registry.
var Default = NewRegistry()

func keyFor[C, T any](tag string) Key {
	return Key{
		Context: reflect.TypeFor[C](),
		Target:  reflect.TypeFor[T](),
		Tag:     tag,
	}
}

// IsFriend reports whether t is a struct embedding Friend.
func IsFriend(t reflect.Type) bool {
	if t == nil || t.Kind() != reflect.Struct {
		return false
	}
	for i := 0; i < t.NumField(); i++ {
		f := t.Field(i)
		if f.Anonymous && f.Type == friendType {
			return true
		}
	}
	return false
}

func (r *Registry) declare(key Key, acc accessor) error {
	if !IsFriend(key.Target) {
		return fmt.Errorf("%w: %v", ErrNotFriend, key.Target)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.accessors[key]; exists {
		return fmt.Errorf("%w: %s", ErrAlreadyDeclared, key)
	}
	r.accessors[key] = acc
	return nil
}

func (r *Registry) lookup(key Key) (accessor, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	acc, ok := r.accessors[key]
	if !ok {
		return accessor{}, fmt.Errorf("%w: %s", ErrNotDeclared, key)
	}
	return acc, nil
}

// DeclareField grants context C access to field of T, typed V.
//
// Inputs:
//   - r: The registry.
//   - tag: Accessor name, unique per (C, T).
//   - field: The Go field name. Promoted fields of embedded structs are
//     allowed; fields reached through embedded pointers are not.
//
// Outputs:
//   - error: ErrNotFriend, ErrNoSuchField, ErrTypeMismatch or
//     ErrAlreadyDeclared.
func DeclareField[C, T, V any](r *Registry, tag, field string) error {
	key := keyFor[C, T](tag)
	if !IsFriend(key.Target) {
		return fmt.Errorf("%w: %v", ErrNotFriend, key.Target)
	}

	f, ok := key.Target.FieldByName(field)
	if !ok {
		return fmt.Errorf("%w: %v.%s", ErrNoSuchField, key.Target, field)
	}
	if throughPointer(key.Target, f.Index) {
		return fmt.Errorf("%w: %v.%s is promoted through an embedded pointer", ErrNoSuchField, key.Target, field)
	}
	want := reflect.TypeFor[V]()
	if f.Type != want {
		return fmt.Errorf("%w: %v.%s is %v, declared %v", ErrTypeMismatch, key.Target, field, f.Type, want)
	}

	return r.declare(key, accessor{
		kind:      kindField,
		index:     f.Index,
		valueType: want,
	})
}

// DeclareFunc grants context C a custom accessor expression on T.
func DeclareFunc[C, T, V any](r *Registry, tag string, fn func(*T) V) error {
	if fn == nil {
		return fmt.Errorf("%w: accessor function", ErrNilTarget)
	}
	return r.declare(keyFor[C, T](tag), accessor{
		kind:      kindFunc,
		valueType: reflect.TypeFor[V](),
		fn:        fn,
	})
}

// Field returns a pointer to the declared field of target. Writes through
// the pointer modify target.
//
// Outputs:
//   - *V: Pointer into target.
//   - error: ErrNilTarget, ErrNotDeclared or ErrTypeMismatch.
func Field[C, T, V any](r *Registry, tag string, target *T) (*V, error) {
	if target == nil {
		return nil, ErrNilTarget
	}
	key := keyFor[C, T](tag)
	acc, err := r.lookup(key)
	if err != nil {
		return nil, err
	}
	if acc.kind != kindField {
		return nil, fmt.Errorf("%w: %s is a function accessor", ErrTypeMismatch, key)
	}
	if acc.valueType != reflect.TypeFor[V]() {
		return nil, fmt.Errorf("%w: %s is %v", ErrTypeMismatch, key, acc.valueType)
	}

	fv := reflect.ValueOf(target).Elem().FieldByIndex(acc.index)
	return (*V)(unsafe.Pointer(fv.UnsafeAddr())), nil
}

// Call evaluates the declared accessor expression on target.
//
// Outputs:
//   - V: The expression's value.
//   - error: ErrNilTarget, ErrNotDeclared or ErrTypeMismatch.
func Call[C, T, V any](r *Registry, tag string, target *T) (V, error) {
	var zero V
	if target == nil {
		return zero, ErrNilTarget
	}
	key := keyFor[C, T](tag)
	acc, err := r.lookup(key)
	if err != nil {
		return zero, err
	}
	fn, ok := acc.fn.(func(*T) V)
	if acc.kind != kindFunc || !ok {
		return zero, fmt.Errorf("%w: %s is not a %v accessor", ErrTypeMismatch, key, reflect.TypeFor[V]())
	}
	return fn(target), nil
}

// MustDeclareField calls DeclareField and panics on error.
func MustDeclareField[C, T, V any](r *Registry, tag, field string) {
	if err := DeclareField[C, T, V](r, tag, field); err != nil {
		panic(fmt.Sprintf("privacc: %v", err))
	}
}

// Declared reports whether key has an accessor.
func (r *Registry) Declared(key Key) bool {
	_, err := r.lookup(key)
	return err == nil
}

// Keys returns all declared keys sorted by their string form.
func (r *Registry) Keys() []Key {
	r.mu.RLock()
	defer r.mu.RUnlock()

	keys := make([]Key, 0, len(r.accessors))
	for k := range r.accessors {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		return keys[i].String() < keys[j].String()
	})
	return keys
}

// Revoke removes the accessor for key.
func (r *Registry) Revoke(key Key) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.accessors[key]; !ok {
		return fmt.Errorf("%w: %s", ErrNotDeclared, key)
	}
	delete(r.accessors, key)
	return nil
}

// throughPointer reports whether walking index from t dereferences an
// embedded pointer.
func throughPointer(t reflect.Type, index []int) bool {
	for _, i := range index[:len(index)-1] {
		f := t.Field(i)
		if f.Type.Kind() == reflect.Pointer {
			return true
		}
		t = f.Type
	}
	return false
}
