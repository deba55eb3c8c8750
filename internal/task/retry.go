package task

import (
	"fmt"
	"runtime/debug"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/shakurocom/iOS-Toolbox-sub000/internal/events"
)

// RetryDecision is what a RetryHandler returns after each round.
type RetryDecision[T any] struct {
	retry bool
	delay time.Duration
	next  Group[T]
}

// Finish ends retrying; the task finishes with the round's outcome.
func Finish[T any]() RetryDecision[T] {
	return RetryDecision[T]{}
}

// Retry submits next as the following round right away.
func Retry[T any](next Group[T]) RetryDecision[T] {
	return RetryDecision[T]{retry: true, next: next}
}

// RetryAfter submits next as the following round once delay has elapsed.
func RetryAfter[T any](delay time.Duration, next Group[T]) RetryDecision[T] {
	return RetryDecision[T]{retry: true, delay: delay, next: next}
}

// IsRetry reports whether the decision asks for another round.
func (d RetryDecision[T]) IsRetry() bool { return d.retry }

// Delay returns the wait before the next round.
func (d RetryDecision[T]) Delay() time.Duration { return d.delay }

// Next returns the group of the next round.
func (d RetryDecision[T]) Next() Group[T] { return d.next }

// RetryHandler decides, after every member of a round has finished, whether
// to finish with outcome or to run another round. attempt starts at 0 and
// grows by one per retry. The next round must use fresh operations; a
// group whose members have all finished fails the task with
// ErrFinishedRetryGroup.
type RetryHandler[T any] func(attempt int, outcome Outcome[T]) RetryDecision[T]

// retryController runs group rounds until its handler says Finish.
//
// Invariant: attempt, group, cancelled, finished, outcome, callbacks and
// timer are only accessed while holding mu.
type retryController[T any] struct {
	m       *TaskManager
	handler RetryHandler[T]

	mu        sync.Mutex
	attempt   int
	group     Group[T]
	cancelled bool
	finished  bool
	outcome   Outcome[T]
	callbacks []func(Outcome[T])
	timer     *time.Timer
}

func newRetryController[T any](m *TaskManager, handler RetryHandler[T]) *retryController[T] {
	return &retryController[T]{m: m, handler: handler}
}

func (c *retryController[T]) start(g Group[T]) {
	c.submitRound(g)
}

// submitRound submits every member of g and joins on their completion
// with a countdown, so no worker waits on the group.
func (c *retryController[T]) submitRound(g Group[T]) {
	if g.Primary == nil {
		c.finish(Failure[T](ErrNilPrimary))
		return
	}

	c.mu.Lock()
	c.group = g
	attempt := c.attempt
	c.mu.Unlock()

	members := g.Members()
	remaining := int32(len(members))
	for _, op := range members {
		op.core().whenFinished(func(Terminal) {
			if atomic.AddInt32(&remaining, -1) == 0 {
				c.roundFinished(g)
			}
		})
	}

	c.m.logger.Debug("submitting operation group",
		"operation_id", g.Primary.ID(),
		"operation_type", g.Primary.Type(),
		"secondary_count", len(g.Secondary),
		"attempt", attempt)
	for _, op := range members {
		if !op.core().isAdmitted() && !op.IsFinished() {
			c.m.Submit(op)
		}
	}

	c.mu.Lock()
	cancelled := c.cancelled
	c.mu.Unlock()
	if cancelled {
		g.Primary.Cancel()
	}
}

// roundFinished runs once every member of g has finished.
func (c *retryController[T]) roundFinished(g Group[T]) {
	c.mu.Lock()
	if c.finished {
		c.mu.Unlock()
		return
	}
	cancelled := c.cancelled
	attempt := c.attempt
	c.mu.Unlock()

	if cancelled {
		c.finish(Cancelled[T]())
		return
	}

	outcome, _ := g.Primary.Result()
	decision, err := c.decide(attempt, outcome)
	if err != nil {
		c.finish(Failure[T](err))
		return
	}
	if !decision.retry {
		c.finish(outcome)
		return
	}
	if decision.next.Primary != nil && decision.next.IsComplete() {
		c.finish(Failure[T](ErrFinishedRetryGroup))
		return
	}

	c.mu.Lock()
	if c.cancelled {
		c.mu.Unlock()
		c.finish(Cancelled[T]())
		return
	}
	c.attempt++
	next := decision.next
	if decision.delay > 0 {
		c.timer = time.AfterFunc(decision.delay, func() { c.resume(next) })
	}
	c.mu.Unlock()

	c.m.logger.Info("retrying operation group",
		"operation_id", g.Primary.ID(),
		"operation_type", g.Primary.Type(),
		"attempt", attempt+1,
		"previous_outcome", outcome.Kind.String(),
		"delay", decision.delay)
	c.m.emit(events.KindRetried, g.Primary, func(ev *events.OperationEvent) {
		ev.Attempt = attempt + 1
		ev.Outcome = outcome.Kind.String()
	})

	if decision.delay <= 0 {
		c.submitRound(next)
	}
}

// resume submits the next round after a backoff delay
func (c *retryController[T]) resume(next Group[T]) {
	c.mu.Lock()
	c.timer = nil
	cancelled := c.cancelled
	c.mu.Unlock()

	if cancelled {
		c.finish(Cancelled[T]())
		return
	}
	c.submitRound(next)
}

// decide calls the handler, turning a panic into a PanicError.
func (c *retryController[T]) decide(attempt int, outcome Outcome[T]) (decision RetryDecision[T], err error) {
	defer func() {
		if r := recover(); r != nil {
			c.m.logger.Error("retry handler panicked", "attempt", attempt, "panic", fmt.Sprint(r))
			err = &PanicError{OperationID: c.primaryID(), Value: r, Stack: debug.Stack()}
		}
	}()
	return c.handler(attempt, outcome), nil
}

func (c *retryController[T]) primaryID() (id uuid.UUID) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.group.Primary != nil {
		id = c.group.Primary.ID()
	}
	return id
}

func (c *retryController[T]) finish(out Outcome[T]) {
	c.mu.Lock()
	if c.finished {
		c.mu.Unlock()
		return
	}
	c.finished = true
	c.outcome = out
	callbacks := c.callbacks
	c.callbacks = nil
	c.mu.Unlock()

	for _, fn := range callbacks {
		fn(out)
	}
}

// cancel cancels the in-flight primary. A pending backoff is abandoned and
// the controller finishes as cancelled right away.
func (c *retryController[T]) cancel() {
	c.mu.Lock()
	if c.finished || c.cancelled {
		c.mu.Unlock()
		return
	}
	c.cancelled = true
	primary := c.group.Primary
	timer := c.timer
	c.mu.Unlock()

	if timer != nil && timer.Stop() {
		c.finish(Cancelled[T]())
		return
	}
	if primary != nil {
		primary.Cancel()
	}
}

func (c *retryController[T]) isCancelled() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.cancelled {
		return true
	}
	return c.group.Primary != nil && c.group.Primary.IsCancelled()
}

func (c *retryController[T]) whenComplete(fn func(Outcome[T])) {
	c.mu.Lock()
	if c.finished {
		out := c.outcome
		c.mu.Unlock()
		fn(out)
		return
	}
	c.callbacks = append(c.callbacks, fn)
	c.mu.Unlock()
}
