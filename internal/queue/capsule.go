// Copyright (c) 2022 Ilya Toropchenko <eliastor@users.noreply.github.com>
//
// Use if this source code is covered by an MIT-style
// license that can be found in the LICENSE file

// Package queue implements the task pool's capsule type and the ring-buffer
// FIFO that holds them. Both the shared queue and every worker's private
// queue are instances of Ring; neither type is internally synchronized,
// since callers are expected to hold the pool's monitor around every Put
// and Consume (see taskpool.Pool).
package queue

import (
	"context"
	"fmt"
)

// Settings carries per-task scheduling hints. None of the fields change how
// a goroutine-backed fiber is actually scheduled: fiberscheduler.Scheduler
// is preemptively multiplexed by the Go runtime, not cooperatively
// multiplexed by our own code, so there is no yield-ordering loop left for
// a priority band or a scheduling group to affect. The fields are plain
// data carried on the capsule so callers coming from a cooperative-fiber
// background have somewhere to put that intent; nothing currently reads
// them back.
type Settings struct {
	// StackHint is inert; Go goroutine stacks grow dynamically, so there
	// is nothing to size.
	StackHint int

	// Priority is inert.
	Priority int

	// SchedulingGroup is inert.
	SchedulingGroup string
}

// Func is the erased invocation a Capsule carries: a closure over the
// callable and its arguments. Go closures already erase the captured shape,
// so there is no inline-storage arena the way the source language needs one
// for its monomorphized trampolines — a closure over (callable, args...) is
// the idiomatic Go substitute.
type Func func(ctx context.Context) error

// Capsule is a type-erased capture of one enqueued invocation, analogous to
// TaskFuncInfo in the source design. A Capsule may be invoked exactly once;
// invoking it a second time panics, mirroring the source's "storage is
// moved-from after invocation" invariant.
type Capsule struct {
	fn       Func
	Settings Settings
	invoked  bool
}

// NewCapsule builds a Capsule that will call fn on Invoke.
func NewCapsule(settings Settings, fn Func) Capsule {
	return Capsule{fn: fn, Settings: settings}
}

// Set (re)initializes the capsule to invoke fn, clearing the invoked flag.
// It exists so a Ring slot can be reused without reallocating a Capsule
// value, matching the source's move-into-slot design.
func (c *Capsule) Set(settings Settings, fn Func) {
	c.fn = fn
	c.Settings = settings
	c.invoked = false
}

// Invoke runs the stored invocation. Calling Invoke twice on the same
// Capsule panics: the source declares this undefined behavior, and a panic
// is the closest Go analogue of a documented precondition violation that
// remains cheap to check.
func (c *Capsule) Invoke(ctx context.Context) error {
	if c.invoked {
		panic("queue: capsule invoked twice")
	}
	c.invoked = true
	fn := c.fn
	c.fn = nil
	if fn == nil {
		return fmt.Errorf("queue: capsule has no invocation set")
	}
	return fn(ctx)
}
