// Copyright (c) 2022 Ilya Toropchenko <eliastor@users.noreply.github.com>
//
// Use if this source code is covered by an MIT-style
// license that can be found in the LICENSE file

// Package event implements the pool's wakeup primitive: a monotonic,
// counter-based signal that workers wait on when idle and the pool emits
// on submission.
package event

import "sync"

// Signal is a cross-goroutine wakeup primitive with a monotonically
// increasing emit count, matching the source's SharedEvent. It is the Go
// analogue of a condition variable that also remembers how many times it
// has fired, so a waiter that arrives between an Emit and the next Wait
// call does not miss the wakeup.
type Signal struct {
	mu    sync.Mutex
	cond  *sync.Cond
	count uint64
}

// NewSignal returns a ready-to-use Signal.
func NewSignal() *Signal {
	s := &Signal{}
	s.cond = sync.NewCond(&s.mu)
	return s
}

// Emit wakes every goroutine currently blocked in Wait. Used for fan-out,
// where every worker has new private work, and for termination.
func (s *Signal) Emit() {
	s.mu.Lock()
	s.count++
	s.mu.Unlock()
	s.cond.Broadcast()
}

// EmitOne wakes at most one goroutine blocked in Wait. Used for single-task
// submission, where waking every idle worker would just cause the losers to
// find an empty queue and go back to sleep.
func (s *Signal) EmitOne() {
	s.mu.Lock()
	s.count++
	s.mu.Unlock()
	s.cond.Signal()
}

// Wait blocks until the emit count exceeds lastSeen, then returns the new
// count. Callers pass the count they last observed and should loop on the
// returned value for their next Wait call.
func (s *Signal) Wait(lastSeen uint64) uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	for s.count <= lastSeen {
		s.cond.Wait()
	}
	return s.count
}

// Count returns the current emit count.
func (s *Signal) Count() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.count
}
