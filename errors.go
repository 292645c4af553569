// Copyright (c) 2022 Ilya Toropchenko <eliastor@users.noreply.github.com>
//
// Use if this source code is covered by an MIT-style
// license that can be found in the LICENSE file

package taskpool

import "errors"

var (
	// ErrNotIsolated is returned by Run/RunDist and friends when an
	// argument fails the weak-isolation check (see isolation.go). The
	// source rejects this at compile time; Go has no equivalent language
	// feature, so the check happens at submission time instead.
	ErrNotIsolated = errors.New("taskpool: argument does not satisfy weak isolation")

	// ErrPoolDraining is returned by Run/RunDist and friends once Join has
	// been called: no new work is accepted while a graceful drain is in
	// progress.
	ErrPoolDraining = errors.New("taskpool: pool is draining, no new submissions accepted")

	// ErrPoolTerminated is returned by Run/RunDist and friends once
	// Terminate has been called.
	ErrPoolTerminated = errors.New("taskpool: pool has been terminated")

	// errHandleChannelClosed indicates the internal rendezvous channel
	// used by RunHandle/RunDistHandle was closed without a handle having
	// been sent. The wrapper capsule always sends before invoking user
	// code, so observing this is an internal invariant violation.
	errHandleChannelClosed = errors.New("taskpool: handle channel closed before a handle was sent")
)
