// Copyright (c) 2022 Ilya Toropchenko <eliastor@users.noreply.github.com>
//
// Use if this source code is covered by an MIT-style
// license that can be found in the LICENSE file

package event

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSignalWaitUnblocksOnEmit(t *testing.T) {
	s := NewSignal()
	done := make(chan uint64, 1)
	go func() {
		done <- s.Wait(s.Count())
	}()

	time.Sleep(10 * time.Millisecond)
	s.Emit()

	select {
	case n := <-done:
		assert.Equal(t, uint64(1), n)
	case <-time.After(time.Second):
		t.Fatal("Wait did not unblock after Emit")
	}
}

func TestSignalEmitBeforeWaitIsNotMissed(t *testing.T) {
	s := NewSignal()
	last := s.Count()
	s.Emit()
	// A late Wait call must see the already-raised count rather than block.
	doneCh := make(chan struct{})
	go func() {
		s.Wait(last)
		close(doneCh)
	}()
	select {
	case <-doneCh:
	case <-time.After(time.Second):
		t.Fatal("Wait blocked despite a prior Emit")
	}
}

func TestSignalEmitBroadcastsToAllWaiters(t *testing.T) {
	s := NewSignal()
	const n = 8
	var wg sync.WaitGroup
	wg.Add(n)
	for i := 0; i < n; i++ {
		go func() {
			defer wg.Done()
			s.Wait(s.Count())
		}()
	}
	time.Sleep(10 * time.Millisecond)
	s.Emit()

	waitDone := make(chan struct{})
	go func() {
		wg.Wait()
		close(waitDone)
	}()
	select {
	case <-waitDone:
	case <-time.After(time.Second):
		t.Fatal("Emit did not wake all waiters")
	}
}

func TestSignalEmitOneWakesAtMostOne(t *testing.T) {
	s := NewSignal()
	const n = 4
	woken := make(chan int, n)
	for i := 0; i < n; i++ {
		i := i
		go func() {
			s.Wait(s.Count())
			woken <- i
		}()
	}
	time.Sleep(10 * time.Millisecond)
	s.EmitOne()

	select {
	case <-woken:
	case <-time.After(time.Second):
		t.Fatal("EmitOne did not wake any waiter")
	}
	select {
	case <-woken:
		t.Fatal("EmitOne woke more than one waiter")
	case <-time.After(50 * time.Millisecond):
	}
	require.Equal(t, uint64(1), s.Count())
}
