// Copyright (c) 2022 Ilya Toropchenko <eliastor@users.noreply.github.com>
//
// Use if this source code is covered by an MIT-style
// license that can be found in the LICENSE file

package fiberscheduler

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSpawnDeliversHandleToFiber(t *testing.T) {
	s := New(nil)
	seen := make(chan Handle, 1)

	h := s.Spawn(context.Background(), func(ctx context.Context) {
		got, ok := HandleFromContext(ctx)
		require.True(t, ok)
		seen <- got
	})

	select {
	case got := <-seen:
		assert.Equal(t, h, got)
	case <-time.After(time.Second):
		t.Fatal("fiber never observed its own handle")
	}
	s.Wait()
}

func TestSpawnIsAsynchronousToCaller(t *testing.T) {
	s := New(nil)
	block := make(chan struct{})

	start := time.Now()
	s.Spawn(context.Background(), func(ctx context.Context) {
		<-block
	})
	assert.Less(t, time.Since(start), 100*time.Millisecond, "Spawn must not block on fiber completion")
	close(block)
	s.Wait()
}

func TestPanicInOneFiberIsConfined(t *testing.T) {
	var recovered any
	var mu sync.Mutex
	s := New(func(h Handle, r any, stack []byte) {
		mu.Lock()
		recovered = r
		mu.Unlock()
	})

	ranSecond := make(chan struct{})
	s.Spawn(context.Background(), func(ctx context.Context) {
		panic("boom")
	})
	s.Spawn(context.Background(), func(ctx context.Context) {
		close(ranSecond)
	})

	select {
	case <-ranSecond:
	case <-time.After(time.Second):
		t.Fatal("panic in one fiber prevented another from running")
	}
	s.Wait()

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, "boom", recovered)
}

func TestWaitBlocksUntilAllFibersDone(t *testing.T) {
	s := New(nil)
	const n = 20
	var count int32
	var mu sync.Mutex
	for i := 0; i < n; i++ {
		s.Spawn(context.Background(), func(ctx context.Context) {
			mu.Lock()
			count++
			mu.Unlock()
		})
	}
	s.Wait()
	mu.Lock()
	defer mu.Unlock()
	assert.EqualValues(t, n, count)
	assert.Equal(t, 0, s.Len())
}
