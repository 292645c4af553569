// Copyright (c) 2022 Ilya Toropchenko <eliastor@users.noreply.github.com>
//
// Use if this source code is covered by an MIT-style
// license that can be found in the LICENSE file

// Package taskpool implements a fixed-size pool of worker goroutines that
// dispatch submitted work onto a per-worker fiber scheduler. Submission can
// target either a pool-wide shared queue (any idle worker may pick it up)
// or every worker's own private queue at once (fan-out). A single mutex
// guards both kinds of queue and the pool's worker set; a counting signal
// wakes idle workers without the thundering-herd cost of waking everyone
// for every single-task submission.
package taskpool

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/eliastor/taskpool/fiberscheduler"
	"github.com/eliastor/taskpool/internal/event"
	"github.com/eliastor/taskpool/internal/queue"
)

// joinPollInterval bounds how long Join may take to notice that every
// queue has drained and every fiber has finished.
const joinPollInterval = 2 * time.Millisecond

// Pool owns a fixed set of workers, the shared queue they compete over, and
// the wakeup signal that lets submission avoid busy-waiting.
type Pool struct {
	mu          sync.Mutex
	workers     []*worker
	sharedQueue *queue.Ring
	terminating bool
	draining    bool

	signal *event.Signal
	logger zerolog.Logger

	metrics poolMetrics

	threadCount int // requested count, stable even mid-startup
	ctx         context.Context
	cancel      context.CancelFunc
}

// NewPool creates a Pool and starts cfg's (normalized) worker count
// immediately. A Size of zero is permitted and yields an inert pool with
// no workers, per spec §6 ("n=0 is permitted").
func NewPool(ctx context.Context, cfg PoolConfig) *Pool {
	n := normalizedSize(cfg.Size)

	p := &Pool{
		sharedQueue: queue.NewRing(),
		signal:      event.NewSignal(),
		logger:      loggerOrDefault(cfg),
		threadCount: n,
	}
	p.ctx, p.cancel = context.WithCancel(ctx)

	p.mu.Lock()
	for i := 0; i < n; i++ {
		w := newWorker(p, i)
		p.workers = append(p.workers, w)
		go w.run(p.ctx)
	}
	p.mu.Unlock()

	return p
}

// ThreadCount returns the worker count requested at construction, not the
// live worker count, so fan-out callers can reason about fan-out width
// before startup races are observable (spec §4.4).
func (p *Pool) ThreadCount() int {
	return p.threadCount
}

// Run enqueues fn (with args bound) onto the shared queue; any idle worker
// may pick it up. Every argument must satisfy weak isolation (see
// isolation.go): Go has no compile-time trait bound to enforce this, so the
// check happens here and returns ErrNotIsolated instead of failing to
// compile.
func (p *Pool) Run(settings Settings, fn func(ctx context.Context, args ...any) error, args ...any) error {
	return p.RunCtx(context.Background(), settings, fn, args...)
}

// RunCtx is Run with an explicit parent context for the invocation.
func (p *Pool) RunCtx(ctx context.Context, settings Settings, fn func(ctx context.Context, args ...any) error, args ...any) error {
	if err := checkAllIsolated(args); err != nil {
		return err
	}

	p.mu.Lock()
	if p.terminating {
		p.mu.Unlock()
		return ErrPoolTerminated
	}
	if p.draining {
		p.mu.Unlock()
		return ErrPoolDraining
	}
	p.sharedQueue.Put(settings, wrapCall(ctx, fn, args))
	p.mu.Unlock()

	p.signal.EmitOne()
	return nil
}

// RunHandle submits fn like Run, but returns a fiberscheduler.Handle
// identifying the task once it has begun executing — i.e. after it has
// observed its own handle via fiberscheduler.HandleFromContext at least
// once — matching spec §4.6's "handle freshness" contract.
func (p *Pool) RunHandle(settings Settings, fn func(ctx context.Context, args ...any) error, args ...any) (fiberscheduler.Handle, error) {
	ch := make(chan fiberscheduler.Handle, 1)
	wrapped := func(ctx context.Context, args ...any) error {
		h, _ := fiberscheduler.HandleFromContext(ctx)
		ch <- h
		return fn(ctx, args...)
	}
	if err := p.Run(settings, wrapped, args...); err != nil {
		return 0, err
	}
	h, ok := <-ch
	if !ok {
		return 0, errHandleChannelClosed
	}
	return h, nil
}

// RunDist enqueues one capsule on every worker's private queue, each with
// its own copy of args, and wakes every worker. It launches exactly
// ThreadCount() invocations of fn, matching spec §4.7's fan-out
// cardinality contract. Non-isolated arguments are rejected identically to
// Run.
func (p *Pool) RunDist(settings Settings, fn func(ctx context.Context, args ...any) error, args ...any) error {
	if err := checkAllIsolated(args); err != nil {
		return err
	}

	p.mu.Lock()
	if p.terminating {
		p.mu.Unlock()
		return ErrPoolTerminated
	}
	if p.draining {
		p.mu.Unlock()
		return ErrPoolDraining
	}
	for _, w := range p.workers {
		// Each worker gets its own capsule construction so per-instance
		// argument state (e.g. a value with a private counter) is
		// duplicated rather than aliased across workers.
		w.privateQueue.Put(settings, wrapCall(context.Background(), fn, args))
	}
	p.mu.Unlock()

	p.signal.Emit()
	return nil
}

// RunDistHandle is RunDist's handle-returning counterpart: onHandle is
// invoked exactly ThreadCount() times, once per worker, each call carrying
// that worker's task handle once its task has begun.
func (p *Pool) RunDistHandle(settings Settings, onHandle func(fiberscheduler.Handle), fn func(ctx context.Context, args ...any) error, args ...any) error {
	p.mu.Lock()
	n := len(p.workers)
	p.mu.Unlock()

	ch := make(chan fiberscheduler.Handle, n)
	wrapped := func(ctx context.Context, args ...any) error {
		h, _ := fiberscheduler.HandleFromContext(ctx)
		ch <- h
		return fn(ctx, args...)
	}
	if err := p.RunDist(settings, wrapped, args...); err != nil {
		return err
	}
	for i := 0; i < n; i++ {
		h, ok := <-ch
		if !ok {
			return errHandleChannelClosed
		}
		onHandle(h)
	}
	close(ch)
	return nil
}

// Terminate sets the termination flag, wakes every worker, and joins them
// all. It does not wait for queued-but-not-yet-started work: anything
// still sitting in the shared queue or a private queue when a worker
// notices termination is abandoned and logged as a warning (spec §4.8). To
// drain first, call Join instead.
func (p *Pool) Terminate() {
	p.mu.Lock()
	p.terminating = true
	workers := append([]*worker(nil), p.workers...)
	p.mu.Unlock()

	p.signal.Emit()

	for _, w := range workers {
		<-w.done
	}
	p.cancel()

	p.mu.Lock()
	leaked := p.sharedQueue.Len()
	p.mu.Unlock()
	if leaked != 0 {
		p.logger.Warn().Int("queued", leaked).Msg("pool terminated with a non-empty shared queue")
	}
}

// Join refuses new submissions, then blocks until the shared queue and
// every private queue have been drained and every in-flight fiber has
// completed, and finally behaves as Terminate. This resolves spec §9's
// open question about the source's declared-but-unimplemented graceful
// join: "run the shared queue and all private queues to exhaustion, then
// behave as terminate."
func (p *Pool) Join() {
	p.mu.Lock()
	p.draining = true
	workers := append([]*worker(nil), p.workers...)
	p.mu.Unlock()

	// Queue drain and fiber completion are observed by polling: unlike
	// submission, a fiber finishing does not raise p.signal, so there is
	// no event to block on here. A short poll interval is the plain,
	// standard-library way to wait on state nothing else publishes a
	// wakeup for.
	for {
		p.mu.Lock()
		empty := p.sharedQueue.Empty()
		for _, w := range workers {
			empty = empty && w.privateQueue.Empty()
		}
		p.mu.Unlock()

		allIdle := true
		for _, w := range workers {
			if w.scheduler.Len() != 0 {
				allIdle = false
				break
			}
		}

		if empty && allIdle {
			break
		}
		time.Sleep(joinPollInterval)
	}

	p.Terminate()
}

// removeWorkerLocked removes w from p.workers. Must be called with p.mu
// held; used by a worker's own drain loop as it exits.
func (p *Pool) removeWorkerLocked(w *worker) {
	for i, existing := range p.workers {
		if existing == w {
			p.workers = append(p.workers[:i], p.workers[i+1:]...)
			return
		}
	}
}

// wrapCall binds fn and its variadic args into a queue.Func closure, the
// Go-native trampoline described in internal/queue's package doc. The
// closure is invoked from inside a spawned fiber, whose context (fctx)
// carries the fiberscheduler.Handle but is otherwise derived from the
// worker's own pool-lifetime context — not the submission's. So the
// submission's ctx (the caller's deadline, cancellation, and values) is
// the one actually delivered to fn; the fiber's Handle, if any, is
// re-attached on top of it rather than discarded.
func wrapCall(ctx context.Context, fn func(ctx context.Context, args ...any) error, args []any) queue.Func {
	capturedArgs := append([]any(nil), args...)
	return func(fctx context.Context) error {
		invokeCtx := ctx
		if h, ok := fiberscheduler.HandleFromContext(fctx); ok {
			invokeCtx = fiberscheduler.ContextWithHandle(ctx, h)
		}
		if err := fn(invokeCtx, capturedArgs...); err != nil {
			return fmt.Errorf("taskpool: task invocation: %w", err)
		}
		return nil
	}
}
