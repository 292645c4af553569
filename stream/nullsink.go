// Copyright (c) 2022 Ilya Toropchenko <eliastor@users.noreply.github.com>
//
// Use if this source code is covered by an MIT-style
// license that can be found in the LICENSE file

package stream

import (
	"context"
	"sync"
)

// nullSink discards every write. It is stateless, so unlike the source's
// per-thread lazily-constructed instance (needed there to avoid contention
// on a shared mutable stream object), one process-wide singleton is
// sufficient here — there is no mutable state for concurrent writers to
// contend over.
type nullSink struct{}

func (nullSink) Write(ctx context.Context, p []byte, mode IOMode) (int, error) { return len(p), nil }
func (nullSink) Flush(ctx context.Context) error                              { return nil }
func (nullSink) Finalize(ctx context.Context) error                           { return nil }

var (
	nullSinkOnce     sync.Once
	nullSinkInstance OutputStream
)

// NullSink returns the process-wide discard-writing OutputStream, building
// it on first use.
func NullSink() OutputStream {
	nullSinkOnce.Do(func() {
		nullSinkInstance = nullSink{}
	})
	return nullSinkInstance
}
