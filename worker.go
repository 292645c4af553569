// Copyright (c) 2022 Ilya Toropchenko <eliastor@users.noreply.github.com>
//
// Use if this source code is covered by an MIT-style
// license that can be found in the LICENSE file

package taskpool

import (
	"context"
	"fmt"
	"os"

	"github.com/eliastor/taskpool/fiberscheduler"
	"github.com/eliastor/taskpool/internal/queue"
)

// workerState is purely observational: run records workerRunning and
// workerExited in it, nothing reads it back, and the drain loop below does
// not branch on it.
type workerState int32

const (
	workerStarting workerState = iota
	workerRunning
	workerDraining
	workerExited
)

// worker is one goroutine bound to the pool for its lifetime. Only this
// goroutine consumes privateQueue; only the pool's submission code, under
// pool.mu, writes to it — the same split-ownership the teacher's pool
// uses between its input/worker channels, generalized to an explicit
// queue per worker.
type worker struct {
	pool         *Pool
	index        int
	name         string
	privateQueue *queue.Ring
	scheduler    *fiberscheduler.Scheduler
	state        workerState
	done         chan struct{}
}

func newWorker(p *Pool, index int) *worker {
	w := &worker{
		pool:         p,
		index:        index,
		name:         fmt.Sprintf("pool-%d", index),
		privateQueue: queue.NewRing(),
		done:         make(chan struct{}),
	}
	w.scheduler = fiberscheduler.New(w.onFiberPanic)
	return w
}

func (w *worker) onFiberPanic(h fiberscheduler.Handle, recovered any, stack []byte) {
	w.pool.metrics.panicked.Add(1)
	w.pool.logger.Error().
		Str("worker", w.name).
		Str("fiber", h.String()).
		Interface("panic", recovered).
		Bytes("stack", stack).
		Msg("task fiber panicked; confined to its own fiber")
}

// run is the worker's main loop: the Go-native equivalent of the source's
// "drain loop run inside a wrapper fiber." Here the worker goroutine
// itself plays that role; fibers it spawns are independent goroutines
// tracked by w.scheduler (see fiberscheduler.Scheduler's package doc for
// why this diverges from the source's single-thread cooperative model).
func (w *worker) run(ctx context.Context) {
	defer close(w.done)
	defer func() {
		if r := recover(); r != nil {
			// A panic escaping the drain loop itself means queue
			// invariants are no longer trustworthy; per spec §4.3/§7,
			// this is fatal.
			w.pool.logger.Fatal().
				Str("worker", w.name).
				Interface("panic", r).
				Msg("drain loop panicked; aborting process")
			os.Exit(1)
		}
	}()

	w.state = workerRunning
	last := w.pool.signal.Count()

	for {
		w.pool.mu.Lock()
		if w.pool.terminating {
			w.pool.removeWorkerLocked(w)
			w.pool.mu.Unlock()
			w.warnIfNonEmptyOnExit()
			w.state = workerExited
			return
		}

		var c queue.Capsule
		got := w.privateQueue.Consume(&c) // private queue preferred
		if !got {
			got = w.pool.sharedQueue.Consume(&c)
		}
		w.pool.mu.Unlock()

		if got {
			w.dispatch(ctx, c)
			continue
		}
		last = w.pool.signal.Wait(last)
	}
}

// dispatch hands c to the fiber scheduler and returns immediately: the
// worker must be free to dequeue its next capsule on the next loop
// iteration even while c is still running (spec §4.3, "fiber spawn is
// asynchronous to dequeue").
func (w *worker) dispatch(ctx context.Context, c queue.Capsule) {
	w.scheduler.Spawn(ctx, func(fctx context.Context) {
		if err := c.Invoke(fctx); err != nil {
			w.pool.metrics.errored.Add(1)
		} else {
			w.pool.metrics.completed.Add(1)
		}
	})
}

// warnIfNonEmptyOnExit logs a warning, per spec §4.3/§7, if either this
// worker's private queue or the shared queue is non-empty at shutdown.
// The shared queue's depth is read under the pool's mutex; the private
// queue is read without it, since submissions stop once terminating is
// set. Other workers are winding down concurrently, so the counts are
// advisory for diagnostics, not a correctness gate.
func (w *worker) warnIfNonEmptyOnExit() {
	w.pool.mu.Lock()
	sharedLen := w.pool.sharedQueue.Len()
	w.pool.mu.Unlock()

	if !w.privateQueue.Empty() {
		w.pool.logger.Warn().
			Str("worker", w.name).
			Int("queued", w.privateQueue.Len()).
			Msg("worker exiting with non-empty private queue")
	}
	if sharedLen != 0 {
		w.pool.logger.Warn().
			Str("worker", w.name).
			Int("queued", sharedLen).
			Msg("worker exiting while shared queue is non-empty")
	}
}
