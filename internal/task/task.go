package task

import (
	"context"
	"sync"

	"github.com/google/uuid"
)

// source is whatever a Task is backed by: a single operation or a retry
// controller driving one or more group rounds.
type source[T any] interface {
	cancel()
	isCancelled() bool
	whenComplete(fn func(Outcome[T]))
}

// Task is the caller-facing handle for submitted work. It can be cancelled
// and delivers one terminal outcome to every completion callback, however
// many times the work was retried underneath.
type Task[T any] struct {
	id       uuid.UUID
	src      source[T]
	fallback Dispatcher

	completionOnce sync.Once
	completion     *Op[T]
}

func newTask[T any](id uuid.UUID, src source[T], fallback Dispatcher) *Task[T] {
	if fallback == nil {
		fallback = GoDispatcher{}
	}
	return &Task[T]{id: id, src: src, fallback: fallback}
}

// ID returns the identifier of the task's first primary operation
func (t *Task[T]) ID() uuid.UUID {
	return t.id
}

// Cancel cancels the underlying work. It is safe to call repeatedly and
// after the task has finished.
func (t *Task[T]) Cancel() {
	t.src.cancel()
}

// IsCancelled reports the cancellation flag of the underlying work
func (t *Task[T]) IsCancelled() bool {
	return t.src.isCancelled()
}

// OnComplete registers fn to receive the terminal outcome. fn is always
// dispatched asynchronously on d, even when the task has already finished.
// A nil d uses the task manager's default callback dispatcher.
func (t *Task[T]) OnComplete(d Dispatcher, fn func(*Task[T], Outcome[T])) {
	if d == nil {
		d = t.fallback
	}
	t.src.whenComplete(func(out Outcome[T]) {
		d.Dispatch(func() { fn(t, out) })
	})
}

// Completion returns an operation that finishes with the task's terminal
// outcome, after any retries. It is never submitted itself and exists to be
// passed to AddDependency, so that a dependent waits for the whole task
// rather than for a single round. Every call returns the same operation.
func (t *Task[T]) Completion() *Op[T] {
	t.completionOnce.Do(func() {
		op := NewAsyncOperation(OperationType(0), func(context.Context, func(Outcome[T])) {},
			WithName("completion-"+t.id.String()))
		t.src.whenComplete(func(out Outcome[T]) { op.finish(out) })
		t.completion = op
	})
	return t.completion
}

// Wait blocks until the task finishes or ctx is done.
func (t *Task[T]) Wait(ctx context.Context) (Outcome[T], error) {
	ch := make(chan Outcome[T], 1)
	t.src.whenComplete(func(out Outcome[T]) { ch <- out })

	select {
	case out := <-ch:
		return out, nil
	case <-ctx.Done():
		return Outcome[T]{}, ctx.Err()
	}
}

// opSource backs a task with a single operation.
type opSource[T any] struct {
	op *Op[T]
}

func (s opSource[T]) cancel()                          { s.op.Cancel() }
func (s opSource[T]) isCancelled() bool                { return s.op.IsCancelled() }
func (s opSource[T]) whenComplete(fn func(Outcome[T])) { s.op.OnComplete(fn) }
