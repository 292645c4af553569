// Copyright (c) 2022 Ilya Toropchenko <eliastor@users.noreply.github.com>
//
// Use if this source code is covered by an MIT-style
// license that can be found in the LICENSE file

package taskpool

import (
	"fmt"
	"reflect"
)

// Isolated is a marker interface an argument type may implement to assert
// it has been reviewed and is safe to transfer across goroutine (worker)
// boundaries without further synchronization: it either owns its data
// outright, is deeply immutable, or guards its mutable state with its own
// synchronization.
//
// This is the Go-native substitute for the source's compile-time weak
// isolation trait bound (spec §4.5). Go has no language feature to reject
// an unsafe argument type at compile time the way a trait bound can;
// Isolated plus CheckIsolated (below) move that check to submission time, where it
// is enforced with a runtime error instead of a compiler diagnostic. See
// DESIGN.md for the full rationale and the Open Questions this leaves.
type Isolated interface {
	// IsolatedForTaskPool is never called; its only purpose is to make
	// implementing the interface an explicit, auditable act.
	IsolatedForTaskPool()
}

// isolatedType is the reflect.Type of the Isolated interface, used to test
// whether an arbitrary reflect.Value's type implements it without needing
// an addressable, exported, or already-interface-wrapped value — a static
// type check works even on unexported struct fields, where
// reflect.Value.Interface() would panic.
var isolatedType = reflect.TypeOf((*Isolated)(nil)).Elem()

// CheckIsolated reports whether v satisfies weak isolation. Unlike a
// top-level-only kind check, this recurses: a slice, array, or struct is
// only isolated if every element/field it holds is isolated in turn, since
// a single unsafe pointer buried three fields deep is exactly as dangerous
// to share across workers as one passed directly. Plain value types
// (numbers, strings, and channels, which carry their own synchronization)
// are always safe leaves for the recursion to bottom out on. Pointers,
// maps, funcs, and unsafe pointers must implement Isolated explicitly —
// recursing into what a pointer addresses would miss the actual hazard,
// which is the alias itself, not the pointee's shape.
func CheckIsolated(v any) error {
	if v == nil {
		return nil
	}
	if err := checkIsolatedValue(reflect.ValueOf(v)); err != nil {
		return fmt.Errorf("%w: %T must implement taskpool.Isolated to be submitted", ErrNotIsolated, v)
	}
	return nil
}

// checkIsolatedValue is CheckIsolated's recursive worker. It returns a
// non-nil (but unwrapped) error on the first unsafe value found; callers
// that need the original top-level type in the message re-wrap it.
func checkIsolatedValue(rv reflect.Value) error {
	if rv.Type().Implements(isolatedType) {
		return nil
	}

	switch rv.Kind() {
	case reflect.Bool,
		reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr,
		reflect.Float32, reflect.Float64,
		reflect.Complex64, reflect.Complex128,
		reflect.String,
		reflect.Chan:
		return nil

	case reflect.Slice:
		if rv.IsNil() {
			return nil
		}
		for i := 0; i < rv.Len(); i++ {
			if err := checkIsolatedValue(rv.Index(i)); err != nil {
				return err
			}
		}
		return nil

	case reflect.Array:
		for i := 0; i < rv.Len(); i++ {
			if err := checkIsolatedValue(rv.Index(i)); err != nil {
				return err
			}
		}
		return nil

	case reflect.Struct:
		for i := 0; i < rv.NumField(); i++ {
			if err := checkIsolatedValue(rv.Field(i)); err != nil {
				return err
			}
		}
		return nil

	case reflect.Interface:
		if rv.IsNil() {
			return nil
		}
		return checkIsolatedValue(rv.Elem())

	default:
		// Ptr, Map, Func, UnsafePointer, and anything else: the Implements
		// check above already gave these a chance to opt in; reaching here
		// means they didn't, so they're rejected rather than traversed.
		return ErrNotIsolated
	}
}

// checkAllIsolated validates every argument, returning the first failure.
func checkAllIsolated(args []any) error {
	for _, a := range args {
		if err := CheckIsolated(a); err != nil {
			return err
		}
	}
	return nil
}
