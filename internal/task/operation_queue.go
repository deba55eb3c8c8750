package task

import (
	"fmt"
	"log/slog"
)

// settled pairs an operation removed from the queue with the terminal it
// must finish with instead of running.
type settled struct {
	op       Operation
	terminal Terminal
}

// OperationQueue holds admitted operations that have not started yet, in
// submission order. It is not safe for concurrent use; the TaskManager
// guards it with its own mutex.
type OperationQueue struct {
	ops      []Operation
	capacity int
	logger   *slog.Logger
	closed   bool
}

// NewOperationQueue creates a queue holding at most capacity operations.
// A capacity of zero or less means unbounded.
func NewOperationQueue(capacity int, logger *slog.Logger) *OperationQueue {
	return &OperationQueue{
		ops:      make([]Operation, 0),
		capacity: capacity,
		logger:   logger,
		closed:   false,
	}
}

// Enqueue appends an admitted operation.
// Returns an error if the queue is full or closed
func (q *OperationQueue) Enqueue(op Operation) error {
	if q.closed {
		return ErrQueueClosed
	}
	if q.capacity > 0 && len(q.ops) >= q.capacity {
		return fmt.Errorf("%w: queue capacity %d reached", ErrQueueFull, q.capacity)
	}

	q.ops = append(q.ops, op)
	q.logger.Debug("operation enqueued",
		"operation_id", op.ID(),
		"operation_type", op.Type(),
		"priority", op.Priority(),
		"queue_len", len(q.ops))
	return nil
}

// Len returns the number of queued operations
func (q *OperationQueue) Len() int {
	return len(q.ops)
}

// Operations returns a snapshot of the queued operations in submission order
func (q *OperationQueue) Operations() []Operation {
	ops := make([]Operation, len(q.ops))
	copy(ops, q.ops)
	return ops
}

// Blocked counts queued operations still waiting on a dependency
func (q *OperationQueue) Blocked() int {
	n := 0
	for _, op := range q.ops {
		if ready, _ := evaluate(op); !ready {
			n++
		}
	}
	return n
}

// Close prevents further enqueues and returns the operations still queued
func (q *OperationQueue) Close() []Operation {
	if q.closed {
		return nil
	}
	q.closed = true
	drained := q.ops
	q.ops = nil
	q.logger.Info("operation queue closed", "drained", len(drained))
	return drained
}

// Sweep removes operations that must finish without running: cancelled
// ones, and ones whose strong dependency ended without success.
func (q *OperationQueue) Sweep() []settled {
	var out []settled
	kept := q.ops[:0]
	for _, op := range q.ops {
		if op.IsCancelled() {
			out = append(out, settled{op: op, terminal: Terminal{Kind: OutcomeCancelled}})
			continue
		}
		if ready, propagated := evaluate(op); ready && propagated != nil {
			out = append(out, settled{op: op, terminal: *propagated})
			continue
		}
		kept = append(kept, op)
	}
	for i := len(kept); i < len(q.ops); i++ {
		q.ops[i] = nil
	}
	q.ops = kept
	return out
}

// PopReady removes and returns the best runnable operation, or nil if
// every queued operation is blocked on a dependency.
func (q *OperationQueue) PopReady() Operation {
	best := -1
	for i, op := range q.ops {
		if ready, propagated := evaluate(op); !ready || propagated != nil {
			continue
		}
		if best < 0 || runsBefore(op, q.ops[best]) {
			best = i
		}
	}
	if best < 0 {
		return nil
	}
	op := q.ops[best]
	q.ops = append(q.ops[:best], q.ops[best+1:]...)
	return op
}

// evaluate reports whether every dependency of op has finished and, if so,
// the terminal of the first strong dependency that did not succeed.
func evaluate(op Operation) (bool, *Terminal) {
	var propagated *Terminal
	for _, dep := range op.Dependencies() {
		t, finished := dep.Operation.Terminal()
		if !finished {
			return false, nil
		}
		if dep.Strong && t.Kind != OutcomeSuccess && propagated == nil {
			t := t
			propagated = &t
		}
	}
	return true, propagated
}

// runsBefore orders operations by priority, then by submission sequence.
// Between equal priorities the later submission decides the direction:
// FIFO keeps it behind the earlier one, LIFO moves it ahead.
func runsBefore(a, b Operation) bool {
	if a.Priority() != b.Priority() {
		return a.Priority() > b.Priority()
	}
	seqA, seqB := a.core().sequence(), b.core().sequence()
	later, aIsLater := b, false
	if seqA > seqB {
		later, aIsLater = a, true
	}
	if later.Order() == OrderLIFO {
		return aIsLater
	}
	return !aIsLater
}
