// Copyright (c) 2022 Ilya Toropchenko <eliastor@users.noreply.github.com>
//
// Use if this source code is covered by an MIT-style
// license that can be found in the LICENSE file

package taskpool_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/eliastor/taskpool"
)

type sharedMutable struct{ v int }

func TestCheckIsolated_BarePointerRejected(t *testing.T) {
	err := taskpool.CheckIsolated(&sharedMutable{})
	require.ErrorIs(t, err, taskpool.ErrNotIsolated)
}

func TestCheckIsolated_SliceOfUnsafePointersRejected(t *testing.T) {
	err := taskpool.CheckIsolated([]*sharedMutable{{v: 1}, {v: 2}})
	require.ErrorIs(t, err, taskpool.ErrNotIsolated, "a slice must reject an unsafe element, not just trust its own kind")
}

func TestCheckIsolated_StructFieldPointerRejected(t *testing.T) {
	type wrapper struct {
		Label string
		P     *sharedMutable
	}
	err := taskpool.CheckIsolated(wrapper{Label: "x", P: &sharedMutable{}})
	require.ErrorIs(t, err, taskpool.ErrNotIsolated, "a struct must reject an unsafe field, not just trust its own kind")
}

func TestCheckIsolated_ArrayOfStructsWithMapFieldRejected(t *testing.T) {
	type withMap struct{ M map[string]int }
	arr := [2]withMap{{M: nil}, {M: map[string]int{"a": 1}}}
	err := taskpool.CheckIsolated(arr)
	require.ErrorIs(t, err, taskpool.ErrNotIsolated)
}

func TestCheckIsolated_NestedPlainValuesAccepted(t *testing.T) {
	type inner struct {
		A int
		B [3]string
	}
	type outer struct {
		Inner inner
		Nums  []int
	}
	err := taskpool.CheckIsolated(outer{Inner: inner{A: 1, B: [3]string{"x", "y", "z"}}, Nums: []int{1, 2, 3}})
	assert.NoError(t, err)
}

func TestCheckIsolated_SliceOfIsolatedPointersAccepted(t *testing.T) {
	err := taskpool.CheckIsolated([]*counter{{}, {}})
	assert.NoError(t, err, "a slice of pointers to a type that itself implements Isolated must be accepted")
}

func TestCheckIsolated_InterfaceFieldRecursesIntoDynamicType(t *testing.T) {
	type holder struct {
		Any any
	}
	assert.NoError(t, taskpool.CheckIsolated(holder{Any: 42}))
	assert.ErrorIs(t, taskpool.CheckIsolated(holder{Any: &sharedMutable{}}), taskpool.ErrNotIsolated)
}
