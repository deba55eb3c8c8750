package task

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestGoDispatcher(t *testing.T) {
	done := make(chan struct{})

	GoDispatcher{}.Dispatch(func() { close(done) })

	select {
	case <-done:
	case <-time.After(500 * time.Millisecond):
		t.Fatal("Timed out waiting for dispatched function")
	}
}

func TestDispatcherFunc(t *testing.T) {
	var ran bool
	d := DispatcherFunc(func(fn func()) { fn() })

	d.Dispatch(func() { ran = true })

	assert.True(t, ran)
}

func TestSerialDispatcher_Order(t *testing.T) {
	d := NewSerialDispatcher()

	const count = 100
	var (
		mu      sync.Mutex
		got     []int
		running atomic.Int32
		overlap atomic.Bool
	)
	done := make(chan struct{})

	for i := 0; i < count; i++ {
		i := i
		d.Dispatch(func() {
			if running.Add(1) > 1 {
				overlap.Store(true)
			}
			defer running.Add(-1)

			mu.Lock()
			got = append(got, i)
			n := len(got)
			mu.Unlock()
			if n == count {
				close(done)
			}
		})
	}

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Timed out waiting for serial dispatcher to drain")
	}

	assert.False(t, overlap.Load(), "functions must not overlap")
	for i := 0; i < count; i++ {
		assert.Equal(t, i, got[i])
	}
}

func TestSerialDispatcher_RestartsAfterIdle(t *testing.T) {
	d := NewSerialDispatcher()

	for round := 0; round < 3; round++ {
		done := make(chan struct{})
		d.Dispatch(func() { close(done) })

		select {
		case <-done:
		case <-time.After(500 * time.Millisecond):
			t.Fatalf("Timed out in round %d", round)
		}
		time.Sleep(10 * time.Millisecond)
	}
}
