// Copyright (c) 2022 Ilya Toropchenko <eliastor@users.noreply.github.com>
//
// Use if this source code is covered by an MIT-style
// license that can be found in the LICENSE file

// Package fiberscheduler is the pool's stand-in for the source's fiber
// runtime and event loop, both of which are assumed present in the original
// design and only consumed through a narrow interface (spawn, yield, wait
// on event, and a task handle vended on spawn). Go has no userspace
// cooperative-fiber primitive to assume the presence of, so this package
// provides a minimal, goroutine-backed one: each spawned "fiber" is a
// goroutine, and Handle plays the role of the source's task handle.
//
// This is a deliberate divergence from the source's single-OS-thread
// cooperative multiplexing (see DESIGN.md); it preserves the contract the
// pool actually depends on — spawn does not block the caller, a handle is
// observable as soon as the fiber starts, and panics inside one fiber never
// take down another.
package fiberscheduler

import (
	"context"
	"fmt"
	"runtime"
	"runtime/debug"
	"sync"
	"sync/atomic"
)

// Handle opaquely identifies one spawned fiber, analogous to the task
// handle the source's fiber runtime vends when a task begins.
type Handle uint64

type handleCtxKey struct{}

// ContextWithHandle returns a context carrying h, retrievable later via
// HandleFromContext. The fiber scheduler calls this before invoking a
// spawned fiber's function so the fiber can recover its own identity —
// the Go-native substitute for the source's current_task_handle().
func ContextWithHandle(ctx context.Context, h Handle) context.Context {
	return context.WithValue(ctx, handleCtxKey{}, h)
}

// HandleFromContext retrieves the Handle stashed by ContextWithHandle, if
// any. Code running outside a spawned fiber (e.g. the submitting goroutine
// itself) will get ok == false.
func HandleFromContext(ctx context.Context) (Handle, bool) {
	h, ok := ctx.Value(handleCtxKey{}).(Handle)
	return h, ok
}

// PanicHandler is invoked, if set, when a spawned fiber's function panics.
// It receives the handle, the recovered value, and a captured stack trace.
// A nil PanicHandler silently confines the panic to its fiber, matching the
// source's "uncaught error inside a user fiber is confined to that fiber."
type PanicHandler func(h Handle, recovered any, stack []byte)

// nextHandle is shared by every Scheduler, so handles are unique across all
// schedulers in the process, not just within one.
var nextHandle uint64

// Scheduler tracks the fibers spawned through it, reports how many are
// still running (Len, polled by the pool's draining Join), and lets a
// caller wait for all of them to finish (Wait).
type Scheduler struct {
	wg sync.WaitGroup

	mu      sync.Mutex
	active  map[Handle]struct{}
	onPanic PanicHandler
}

// New returns a ready-to-use Scheduler. onPanic may be nil.
func New(onPanic PanicHandler) *Scheduler {
	return &Scheduler{
		active:  make(map[Handle]struct{}),
		onPanic: onPanic,
	}
}

// Spawn launches fn as a new fiber and returns its Handle once the fiber
// has been registered — but, per the source contract, Spawn does not wait
// for fn to run to completion, only for it to be scheduled; the worker
// calling Spawn is free to go dequeue its next capsule immediately. fn
// itself is responsible for announcing "I have begun" to anyone who needs
// handle freshness (see taskpool.Pool.RunHandle, which has its wrapper send
// the handle down a channel as its very first action).
func (s *Scheduler) Spawn(ctx context.Context, fn func(ctx context.Context)) Handle {
	h := Handle(atomic.AddUint64(&nextHandle, 1))

	s.mu.Lock()
	s.active[h] = struct{}{}
	s.mu.Unlock()

	s.wg.Add(1)
	fiberCtx := ContextWithHandle(ctx, h)

	go func() {
		defer s.wg.Done()
		defer func() {
			s.mu.Lock()
			delete(s.active, h)
			s.mu.Unlock()
		}()
		defer func() {
			if r := recover(); r != nil {
				if s.onPanic != nil {
					s.onPanic(h, r, debug.Stack())
				}
			}
		}()
		fn(fiberCtx)
	}()

	return h
}

// Wait blocks until every fiber spawned through this Scheduler has
// returned (or panicked and been confined). Used by stream's concurrent
// pipe to wait for its reader fiber.
func (s *Scheduler) Wait() {
	s.wg.Wait()
}

// Len reports the number of fibers currently running.
func (s *Scheduler) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.active)
}

// Yield is the cooperative-yield analogue: it gives other goroutines,
// including other fibers spawned on the same worker, a chance to run. It
// is a hint, not a scheduling guarantee, since Go's scheduler is
// preemptive rather than cooperative.
func Yield() {
	runtime.Gosched()
}

// String renders a handle for logging.
func (h Handle) String() string {
	return fmt.Sprintf("fiber-%d", uint64(h))
}
