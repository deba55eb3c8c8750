package task

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// queueDispatcher holds dispatched functions until flushed
type queueDispatcher struct {
	mu  sync.Mutex
	fns []func()
}

func (d *queueDispatcher) Dispatch(fn func()) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.fns = append(d.fns, fn)
}

func (d *queueDispatcher) flush() int {
	d.mu.Lock()
	fns := d.fns
	d.fns = nil
	d.mu.Unlock()
	for _, fn := range fns {
		fn()
	}
	return len(fns)
}

func TestTask_OnCompleteIsNeverInline(t *testing.T) {
	op := NewOperation(OperationType(1), func(ctx context.Context) (int, error) { return 4, nil })
	op.run()
	task := newTask[int](op.ID(), opSource[int]{op: op}, nil)

	d := &queueDispatcher{}
	var got []Outcome[int]
	task.OnComplete(d, func(_ *Task[int], out Outcome[int]) { got = append(got, out) })

	assert.Empty(t, got, "callback ran inline on an already finished task")
	assert.Equal(t, 1, d.flush())
	assert.Equal(t, []Outcome[int]{Success(4)}, got)
}

func TestTask_OnCompleteBeforeFinish(t *testing.T) {
	op := NewOperation(OperationType(1), func(ctx context.Context) (int, error) { return 4, nil })
	task := newTask[int](op.ID(), opSource[int]{op: op}, nil)

	d := &queueDispatcher{}
	var calls int
	task.OnComplete(d, func(*Task[int], Outcome[int]) { calls++ })
	task.OnComplete(d, func(*Task[int], Outcome[int]) { calls++ })
	assert.Equal(t, 0, d.flush())

	op.run()

	assert.Equal(t, 2, d.flush())
	assert.Equal(t, 2, calls)
}

func TestTask_DefaultDispatcher(t *testing.T) {
	m := newTestManager(t, 1, WithCallbackDispatcher(NewSerialDispatcher()))
	m.Start()

	task := PerformFunc(m, OperationType(1), func(ctx context.Context) (string, error) { return "ok", nil })

	done := make(chan Outcome[string], 1)
	task.OnComplete(nil, func(_ *Task[string], out Outcome[string]) { done <- out })

	select {
	case out := <-done:
		assert.Equal(t, Success("ok"), out)
	case <-time.After(time.Second):
		t.Fatal("Timed out waiting for callback on default dispatcher")
	}
}

func TestTask_WaitHonoursContext(t *testing.T) {
	m := newTestManager(t, 1)
	task := PerformFunc(m, OperationType(1), func(ctx context.Context) (int, error) { return 1, nil })

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := task.Wait(ctx)
	require.Error(t, err)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestTask_CancelForwards(t *testing.T) {
	op := NewOperation(OperationType(1), func(ctx context.Context) (int, error) { return 1, nil })
	task := newTask[int](op.ID(), opSource[int]{op: op}, nil)

	assert.False(t, task.IsCancelled())
	task.Cancel()
	assert.True(t, task.IsCancelled())
	assert.True(t, op.IsCancelled())
	assert.Equal(t, op.ID(), task.ID())
}

func TestTask_CompletionWaitsForRetries(t *testing.T) {
	m := newTestManager(t, 2)
	m.Start()

	var rounds atomic.Int32
	newRound := func(attempt int) Group[string] {
		return NewGroup(NewOperation(OperationType(1), func(ctx context.Context) (string, error) {
			rounds.Add(1)
			if attempt == 0 {
				return "", errors.New("transient")
			}
			return "upstream", nil
		}))
	}
	upstream := PerformGroup(m, newRound(0), func(attempt int, out Outcome[string]) RetryDecision[string] {
		if out.IsFailure() {
			return Retry(newRound(attempt + 1))
		}
		return Finish[string]()
	})

	completion := upstream.Completion()
	assert.Same(t, completion, upstream.Completion())

	downstream := NewOperation(OperationType(2), func(ctx context.Context) (int32, error) {
		return rounds.Load(), nil
	})
	downstream.AddDependency(completion, true)
	task := Perform(m, downstream)

	assert.Equal(t, Success(int32(2)), waitForOutcome(t, task))
	out, done := completion.Result()
	require.True(t, done)
	assert.Equal(t, Success("upstream"), out)
}

func TestTask_CompletionPropagatesCancellation(t *testing.T) {
	m := newTestManager(t, 1)
	m.Start()

	release := make(chan struct{})
	started := make(chan struct{}, 1)
	upstream := Perform(m, gatedOp(OperationType(1), release, started))
	<-started

	var ran atomic.Bool
	downstream := NewOperation(OperationType(2), func(ctx context.Context) (int, error) {
		ran.Store(true)
		return 1, nil
	})
	downstream.AddDependency(upstream.Completion(), true)
	task := Perform(m, downstream)

	upstream.Cancel()
	assert.True(t, waitForOutcome(t, task).IsCancelled())
	assert.False(t, ran.Load())
}
