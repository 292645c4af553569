// Copyright (c) 2022 Ilya Toropchenko <eliastor@users.noreply.github.com>
//
// Use if this source code is covered by an MIT-style
// license that can be found in the LICENSE file

package stream

import (
	"context"
	"fmt"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/eliastor/taskpool/fiberscheduler"
	"github.com/eliastor/taskpool/internal/event"
)

// Mode selects Pipe's copy strategy.
type Mode int

const (
	// ModeSequential copies through a single 64 KiB scratch buffer,
	// read-then-write, minimizing memory overhead.
	ModeSequential Mode = iota

	// ModeConcurrent overlaps reading and writing through a ring of
	// buffers, trading memory for throughput on slow sinks/sources.
	ModeConcurrent
)

// Unbounded, passed as nbytes, means "transfer until the source reports
// empty" rather than an exact byte count.
const Unbounded int64 = -1

const (
	sequentialBufSize = 64 << 10 // 64 KiB
	concurrentRingLen = 4
	concurrentBufSize = 4 << 20 // 4 MiB
	minChunkSize      = 64 << 10
	maxChunkSize      = 4 << 20
	adaptThreshold    = 100 * time.Millisecond
)

var sequentialBufPool = sync.Pool{
	New: func() any {
		b := make([]byte, sequentialBufSize)
		return &b
	},
}

// Pipe copies bytes from src to dst. If nbytes != Unbounded, exactly nbytes
// must be transferred or Pipe fails; if nbytes == Unbounded, Pipe copies
// until src reports Empty(). Matches spec §6 exactly.
func Pipe(ctx context.Context, src InputStream, dst OutputStream, nbytes int64, mode Mode) (int64, error) {
	switch mode {
	case ModeSequential:
		return pipeSequential(ctx, src, dst, nbytes)
	case ModeConcurrent:
		return pipeConcurrent(ctx, src, dst, nbytes)
	default:
		return 0, fmt.Errorf("stream: unknown pipe mode %d", mode)
	}
}

func pipeSequential(ctx context.Context, src InputStream, dst OutputStream, nbytes int64) (int64, error) {
	bufPtr := sequentialBufPool.Get().(*[]byte)
	defer sequentialBufPool.Put(bufPtr)
	buf := *bufPtr

	var total int64
	for nbytes == Unbounded || total < nbytes {
		want := len(buf)
		if nbytes != Unbounded {
			remaining := nbytes - total
			if remaining < int64(want) {
				want = int(remaining)
			}
		}
		if src.Empty() {
			break
		}
		n, err := src.Read(ctx, buf[:want], IOModeOnce)
		if n > 0 {
			if _, werr := dst.Write(ctx, buf[:n], IOModeAll); werr != nil {
				return total, fmt.Errorf("stream: sequential pipe write: %w", werr)
			}
			total += int64(n)
		}
		if err != nil {
			break
		}
		if n == 0 {
			break
		}
	}

	if nbytes != Unbounded && total != nbytes {
		return total, fmt.Errorf("stream: sequential pipe transferred %d bytes, wanted exactly %d", total, nbytes)
	}
	return total, nil
}

// ringSlot is one of the concurrent pipe's 4 MiB buffers.
type ringSlot struct {
	data []byte
	n    int
	err  error
}

// pipeConcurrent overlaps reading and writing via a 4-slot ring: a reader
// fiber fills slots, the caller's own goroutine drains and writes them.
// readIdx/writeIdx are monotonic uint64 counters; readIdx-writeIdx (taken
// via unsigned subtraction, which wraps correctly regardless of overflow
// as long as the true difference never exceeds the ring length) stays in
// [0, concurrentRingLen], exactly the invariant spec §4/§9 calls for. The
// counters are not reset per call, so they may in principle wrap after
// 2^64 chunks; spec §9 documents this as an accepted precondition rather
// than something to guard against.
func pipeConcurrent(ctx context.Context, src InputStream, dst OutputStream, nbytes int64) (int64, error) {
	ring := make([]ringSlot, concurrentRingLen)
	for i := range ring {
		ring[i].data = make([]byte, concurrentBufSize)
	}

	sig := event.NewSignal()
	var mu sync.Mutex
	var readIdx, writeIdx uint64
	var readDone bool
	var readErr error

	sched := fiberscheduler.New(nil)
	chunkSize := minChunkSize
	// growLimiter caps how often the reader re-probes throughput and grows
	// chunkSize to at most once per adaptive window, even if many reads
	// complete under the threshold within that window.
	growLimiter := rate.NewLimiter(rate.Every(adaptThreshold), 1)

	sched.Spawn(ctx, func(fctx context.Context) {
		var produced int64
		for {
			mu.Lock()
			for readIdx-writeIdx >= concurrentRingLen {
				mu.Unlock()
				sig.Wait(sig.Count())
				mu.Lock()
			}
			slot := &ring[readIdx%concurrentRingLen]
			mu.Unlock()

			want := chunkSize
			if nbytes != Unbounded {
				remaining := nbytes - produced
				if remaining <= 0 {
					want = 0
				} else if remaining < int64(want) {
					want = int(remaining)
				}
			}
			if want == 0 || src.Empty() {
				mu.Lock()
				readDone = true
				mu.Unlock()
				sig.Emit()
				return
			}

			start := time.Now()
			n, rerr := src.Read(fctx, slot.data[:want], IOModeOnce)
			elapsed := time.Since(start)

			mu.Lock()
			slot.n = n
			slot.err = rerr
			readIdx++
			produced += int64(n)
			mu.Unlock()
			sig.Emit()

			if rerr != nil {
				mu.Lock()
				readDone = true
				readErr = rerr
				mu.Unlock()
				sig.Emit()
				return
			}
			if n == 0 {
				mu.Lock()
				readDone = true
				mu.Unlock()
				sig.Emit()
				return
			}
			if elapsed < adaptThreshold && chunkSize < maxChunkSize && growLimiter.Allow() {
				chunkSize *= 2
				if chunkSize > maxChunkSize {
					chunkSize = maxChunkSize
				}
			}
		}
	})

	var total int64
	for {
		mu.Lock()
		for readIdx == writeIdx && !readDone {
			mu.Unlock()
			sig.Wait(sig.Count())
			mu.Lock()
		}
		if readIdx == writeIdx && readDone {
			finalErr := readErr
			mu.Unlock()
			sched.Wait()
			if finalErr != nil {
				return total, fmt.Errorf("stream: concurrent pipe read: %w", finalErr)
			}
			if nbytes != Unbounded && total != nbytes {
				return total, fmt.Errorf("stream: concurrent pipe transferred %d bytes, wanted exactly %d", total, nbytes)
			}
			return total, nil
		}
		slot := ring[writeIdx%concurrentRingLen]
		mu.Unlock()

		if slot.n > 0 {
			if _, werr := dst.Write(ctx, slot.data[:slot.n], IOModeAll); werr != nil {
				sched.Wait()
				return total, fmt.Errorf("stream: concurrent pipe write: %w", werr)
			}
			total += int64(slot.n)
		}

		mu.Lock()
		writeIdx++
		mu.Unlock()
		sig.Emit()
	}
}
