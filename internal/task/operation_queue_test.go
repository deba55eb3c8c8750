package task

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupTestLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelDebug,
	}))
}

func newTestOp(name string, opts ...OperationOption) *Op[string] {
	return NewOperation(OperationType(1), func(ctx context.Context) (string, error) {
		return name, nil
	}, append(opts, WithName(name))...)
}

// enqueueAll enqueues ops and assigns submission sequence numbers in order
func enqueueAll(t *testing.T, q *OperationQueue, ops ...Operation) {
	t.Helper()
	for i, op := range ops {
		require.NoError(t, q.Enqueue(op))
		op.core().admit(uint64(i + 1))
	}
}

func popNames(q *OperationQueue) []string {
	var names []string
	for op := q.PopReady(); op != nil; op = q.PopReady() {
		names = append(names, op.Name())
	}
	return names
}

func TestNewOperationQueue(t *testing.T) {
	queue := NewOperationQueue(10, setupTestLogger())

	assert.NotNil(t, queue)
	assert.Equal(t, 10, queue.capacity)
	assert.Equal(t, 0, queue.Len())
	assert.False(t, queue.closed)
}

func TestOperationQueue_Enqueue(t *testing.T) {
	queue := NewOperationQueue(2, setupTestLogger())

	assert.NoError(t, queue.Enqueue(newTestOp("a")))
	assert.NoError(t, queue.Enqueue(newTestOp("b")))

	// Test queue full
	err := queue.Enqueue(newTestOp("c"))
	assert.Error(t, err)
	assert.ErrorIs(t, err, ErrQueueFull)

	// Popping one makes space
	require.NotNil(t, queue.PopReady())
	assert.NoError(t, queue.Enqueue(newTestOp("c")))
	assert.Equal(t, 2, queue.Len())
}

func TestOperationQueue_Unbounded(t *testing.T) {
	queue := NewOperationQueue(0, setupTestLogger())

	for i := 0; i < 100; i++ {
		require.NoError(t, queue.Enqueue(newTestOp("op")))
	}
	assert.Equal(t, 100, queue.Len())
}

func TestOperationQueue_Close(t *testing.T) {
	queue := NewOperationQueue(10, setupTestLogger())
	op := newTestOp("a")
	require.NoError(t, queue.Enqueue(op))

	drained := queue.Close()
	assert.True(t, queue.closed)
	require.Len(t, drained, 1)
	assert.Equal(t, op.ID(), drained[0].ID())
	assert.Equal(t, 0, queue.Len())

	err := queue.Enqueue(newTestOp("b"))
	assert.ErrorIs(t, err, ErrQueueClosed)

	// Closing twice drains nothing
	assert.Empty(t, queue.Close())
}

func TestOperationQueue_Operations(t *testing.T) {
	queue := NewOperationQueue(0, setupTestLogger())
	a, b := newTestOp("a"), newTestOp("b")
	enqueueAll(t, queue, a, b)

	snapshot := queue.Operations()
	require.Len(t, snapshot, 2)
	assert.Equal(t, "a", snapshot[0].Name())
	assert.Equal(t, "b", snapshot[1].Name())

	// The snapshot is a copy
	snapshot[0] = nil
	assert.NotNil(t, queue.Operations()[0])
}

func TestOperationQueue_PopReady_Priority(t *testing.T) {
	queue := NewOperationQueue(0, setupTestLogger())
	enqueueAll(t, queue,
		newTestOp("low", WithPriority(0)),
		newTestOp("high", WithPriority(100)),
		newTestOp("mid", WithPriority(50)),
	)

	assert.Equal(t, []string{"high", "mid", "low"}, popNames(queue))
}

func TestOperationQueue_PopReady_FIFO(t *testing.T) {
	queue := NewOperationQueue(0, setupTestLogger())
	enqueueAll(t, queue,
		newTestOp("x", WithOrder(OrderFIFO)),
		newTestOp("y", WithOrder(OrderFIFO)),
		newTestOp("z", WithOrder(OrderFIFO)),
	)

	assert.Equal(t, []string{"x", "y", "z"}, popNames(queue))
}

func TestOperationQueue_PopReady_LIFO(t *testing.T) {
	queue := NewOperationQueue(0, setupTestLogger())
	enqueueAll(t, queue,
		newTestOp("x", WithOrder(OrderLIFO)),
		newTestOp("y", WithOrder(OrderLIFO)),
		newTestOp("z", WithOrder(OrderLIFO)),
	)

	assert.Equal(t, []string{"z", "y", "x"}, popNames(queue))
}

func TestOperationQueue_PopReady_PriorityBeatsOrder(t *testing.T) {
	queue := NewOperationQueue(0, setupTestLogger())
	enqueueAll(t, queue,
		newTestOp("first", WithOrder(OrderLIFO)),
		newTestOp("important", WithPriority(1)),
		newTestOp("last", WithOrder(OrderLIFO)),
	)

	assert.Equal(t, []string{"important", "last", "first"}, popNames(queue))
}

func TestOperationQueue_Dependencies(t *testing.T) {
	queue := NewOperationQueue(0, setupTestLogger())
	dep := newTestOp("dep")
	blocked := newTestOp("blocked", WithPriority(100))
	blocked.AddDependency(dep, false)
	free := newTestOp("free")
	enqueueAll(t, queue, blocked, free)

	assert.Equal(t, 1, queue.Blocked())
	assert.Equal(t, []string{"free"}, popNames(queue))
	assert.Nil(t, queue.PopReady(), "blocked operation must not be handed out")

	dep.run()

	assert.Equal(t, 0, queue.Blocked())
	assert.Equal(t, []string{"blocked"}, popNames(queue))
}

func TestOperationQueue_Sweep(t *testing.T) {
	boom := errors.New("boom")
	queue := NewOperationQueue(0, setupTestLogger())

	failed := NewOperation(OperationType(2), func(ctx context.Context) (int, error) { return 0, boom })
	failed.run()

	cancelled := newTestOp("cancelled")
	strong := newTestOp("strong")
	strong.AddDependency(failed, true)
	weak := newTestOp("weak")
	weak.AddDependency(failed, false)
	enqueueAll(t, queue, cancelled, strong, weak)
	cancelled.Cancel()

	drops := queue.Sweep()

	require.Len(t, drops, 2)
	assert.Equal(t, cancelled.ID(), drops[0].op.ID())
	assert.Equal(t, OutcomeCancelled, drops[0].terminal.Kind)
	assert.Equal(t, strong.ID(), drops[1].op.ID())
	assert.Equal(t, OutcomeFailure, drops[1].terminal.Kind)
	assert.ErrorIs(t, drops[1].terminal.Err, boom)

	// A weak dependency does not propagate its failure
	assert.Equal(t, []string{"weak"}, popNames(queue))
}

func TestOperationQueue_SweepWaitsForAllDependencies(t *testing.T) {
	queue := NewOperationQueue(0, setupTestLogger())

	failed := NewOperation(OperationType(2), func(ctx context.Context) (int, error) {
		return 0, errors.New("boom")
	})
	failed.run()
	pending := newTestOp("pending")

	dependent := newTestOp("dependent")
	dependent.AddDependency(failed, true)
	dependent.AddDependency(pending, false)
	enqueueAll(t, queue, dependent)

	assert.Empty(t, queue.Sweep(), "propagation waits until every dependency has finished")
	assert.Equal(t, 1, queue.Len())

	pending.run()

	drops := queue.Sweep()
	require.Len(t, drops, 1)
	assert.Equal(t, OutcomeFailure, drops[0].terminal.Kind)
}
