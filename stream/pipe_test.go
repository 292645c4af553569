// Copyright (c) 2022 Ilya Toropchenko <eliastor@users.noreply.github.com>
//
// Use if this source code is covered by an MIT-style
// license that can be found in the LICENSE file

package stream_test

import (
	"bytes"
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/eliastor/taskpool/stream"
)

// fastSource produces deterministic bytes instantly (so every read
// finishes well under the adaptive threshold), up to total bytes, and
// records the largest chunk size ever requested.
type fastSource struct {
	mu        sync.Mutex
	remaining int64
	maxChunk  int
}

func (s *fastSource) Empty() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.remaining <= 0
}
func (s *fastSource) LeastSize() int { return 0 }
func (s *fastSource) Peek() []byte   { return nil }
func (s *fastSource) Read(ctx context.Context, dst []byte, mode stream.IOMode) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(dst) > s.maxChunk {
		s.maxChunk = len(dst)
	}
	want := int64(len(dst))
	if want > s.remaining {
		want = s.remaining
	}
	for i := int64(0); i < want; i++ {
		dst[i] = byte(i)
	}
	s.remaining -= want
	return int(want), nil
}

func TestScenarioS5_ConcurrentPipeTransfersExactlyNBytesAndGrowsChunk(t *testing.T) {
	const total = 64 << 20 // 64 MiB
	src := &fastSource{remaining: total}
	var dst bytes.Buffer

	n, err := stream.Pipe(context.Background(), src, stream.FromWriter(&dst), total, stream.ModeConcurrent)
	require.NoError(t, err)
	assert.EqualValues(t, total, n)
	assert.Equal(t, total, dst.Len())

	src.mu.Lock()
	defer src.mu.Unlock()
	assert.Greater(t, src.maxChunk, 64<<10, "adaptive reader must grow its chunk size past the 64 KiB floor")
}

func TestSequentialPipeTransfersExactBytes(t *testing.T) {
	const total = 200 << 10 // 200 KiB, several buffer refills
	src := &fastSource{remaining: total}
	var dst bytes.Buffer

	n, err := stream.Pipe(context.Background(), src, stream.FromWriter(&dst), total, stream.ModeSequential)
	require.NoError(t, err)
	assert.EqualValues(t, total, n)
	assert.Equal(t, total, dst.Len())
}

func TestPipeUnboundedCopiesUntilSourceEmpty(t *testing.T) {
	const total = 10 << 10
	src := &fastSource{remaining: total}
	var dst bytes.Buffer

	n, err := stream.Pipe(context.Background(), src, stream.FromWriter(&dst), stream.Unbounded, stream.ModeSequential)
	require.NoError(t, err)
	assert.EqualValues(t, total, n)
}

func TestPipeExactCountMismatchFails(t *testing.T) {
	src := &fastSource{remaining: 10}
	var dst bytes.Buffer

	_, err := stream.Pipe(context.Background(), src, stream.FromWriter(&dst), 20, stream.ModeSequential)
	assert.Error(t, err)
}

func TestFromReaderFromWriterRoundTrip(t *testing.T) {
	payload := bytes.Repeat([]byte("a"), 1<<10)
	var dst bytes.Buffer

	n, err := stream.Pipe(context.Background(), stream.FromReader(bytes.NewReader(payload)), stream.FromWriter(&dst), int64(len(payload)), stream.ModeSequential)
	require.NoError(t, err)
	assert.EqualValues(t, len(payload), n)
	assert.Equal(t, payload, dst.Bytes())
}

func TestNullSinkDiscardsWrites(t *testing.T) {
	sink := stream.NullSink()
	n, err := sink.Write(context.Background(), []byte("whatever"), stream.IOModeAll)
	require.NoError(t, err)
	assert.Equal(t, 8, n)
	assert.NoError(t, sink.Flush(context.Background()))
	assert.NoError(t, sink.Finalize(context.Background()))
}
