package task

import (
	"context"
	"fmt"
	"runtime/debug"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
)

// OperationType is a caller-defined tag for a kind of work. Admission
// policies use it to match duplicates and ordering constraints; many
// operations may share a type.
type OperationType int

// QueueOrder breaks ties between operations of equal priority.
type QueueOrder int

// Possible queue orders
const (
	// OrderFIFO runs the earliest submission first.
	OrderFIFO QueueOrder = iota
	// OrderLIFO runs the most recent submission first.
	OrderLIFO
)

// OperationStatus represents where an operation is in its lifecycle
type OperationStatus string

// Possible operation status values
const (
	StatusSubmitted        OperationStatus = "submitted"
	StatusAdmissionPending OperationStatus = "admission_pending"
	StatusQueued           OperationStatus = "queued"
	StatusRunning          OperationStatus = "running"
	StatusFinished         OperationStatus = "finished"
)

// Dependency is an edge to an operation that must finish first. A strong
// dependency also propagates a non-success terminal to the dependent.
type Dependency struct {
	Operation Operation
	Strong    bool
}

// Operation is the result-type-agnostic view of an operation that the
// TaskManager schedules. The only implementation is *Op[T].
type Operation interface {
	// ID returns the operation's unique identifier
	ID() uuid.UUID

	// Type returns the logical type tag
	Type() OperationType

	// Name returns a human readable name used in logs and spans
	Name() string

	// Priority returns the ordering key; higher runs first
	Priority() int

	// Order returns the tie-break among equal priorities
	Order() QueueOrder

	// Status returns the current lifecycle status
	Status() OperationStatus

	// AddDependency makes this operation wait for dep. It must be called
	// before the operation is admitted; later calls panic.
	AddDependency(dep Operation, strong bool)

	// Dependencies returns a copy of the dependency edges
	Dependencies() []Dependency

	// Cancel flags the operation as cancelled. It is idempotent and a no-op
	// once the operation has finished.
	Cancel()

	// OnCancel registers a hook run once when the operation is cancelled
	OnCancel(fn func())

	IsCancelled() bool
	IsExecuting() bool
	IsFinished() bool

	// Done is closed when the operation finishes
	Done() <-chan struct{}

	// Terminal returns the terminal kind and error once finished
	Terminal() (Terminal, bool)

	core() *opCore
}

// OperationOption configures an operation at construction.
type OperationOption func(*opCore)

// WithPriority sets the priority value; the default is 0.
func WithPriority(priority int) OperationOption {
	return func(c *opCore) {
		c.priority = priority
	}
}

// WithOrder sets the tie-break among operations of equal priority.
func WithOrder(order QueueOrder) OperationOption {
	return func(c *opCore) {
		c.order = order
	}
}

// WithName sets the name reported in logs, events and spans.
func WithName(name string) OperationOption {
	return func(c *opCore) {
		c.name = name
	}
}

// opCore holds the lifecycle state shared by every operation regardless
// of its result type. All mutable fields are guarded by mu.
type opCore struct {
	id       uuid.UUID
	typ      OperationType
	name     string
	priority int
	order    QueueOrder

	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}

	mu          sync.Mutex
	status      OperationStatus
	admitted    bool
	cancelled   bool
	seq         uint64
	deps        []Dependency
	cancelHooks []func()
	finishHooks []func(Terminal)
	terminal    Terminal
	startedAt   time.Time

	// Set by the typed wrapper.
	run        func()
	settle     func(Terminal) bool
	mirrorFrom func(src Operation)
}

func newOpCore(typ OperationType, opts []OperationOption) *opCore {
	ctx, cancel := context.WithCancel(context.Background())
	c := &opCore{
		id:     uuid.New(),
		typ:    typ,
		order:  OrderFIFO,
		ctx:    ctx,
		cancel: cancel,
		done:   make(chan struct{}),
		status: StatusSubmitted,
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.name == "" {
		c.name = fmt.Sprintf("operation-%d", typ)
	}
	return c
}

func (c *opCore) core() *opCore { return c }

// ID returns the operation's unique identifier
func (c *opCore) ID() uuid.UUID { return c.id }

// Type returns the logical type tag
func (c *opCore) Type() OperationType { return c.typ }

// Name returns the operation name
func (c *opCore) Name() string { return c.name }

// Priority returns the priority value
func (c *opCore) Priority() int { return c.priority }

// Order returns the tie-break order
func (c *opCore) Order() QueueOrder { return c.order }

// Done is closed when the operation finishes
func (c *opCore) Done() <-chan struct{} { return c.done }

// Status returns the current lifecycle status
func (c *opCore) Status() OperationStatus {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.status
}

// AddDependency makes the operation wait for dep
func (c *opCore) AddDependency(dep Operation, strong bool) {
	if dep == nil {
		return
	}
	if dep.core() == c {
		panic(fmt.Sprintf("task: operation %s cannot depend on itself", c.id))
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.admitted {
		panic(fmt.Sprintf("task: dependency added to operation %s after admission", c.id))
	}
	c.deps = append(c.deps, Dependency{Operation: dep, Strong: strong})
}

// Dependencies returns a copy of the dependency edges
func (c *opCore) Dependencies() []Dependency {
	c.mu.Lock()
	defer c.mu.Unlock()
	deps := make([]Dependency, len(c.deps))
	copy(deps, c.deps)
	return deps
}

// Cancel flags the operation as cancelled and cancels its context
func (c *opCore) Cancel() {
	c.mu.Lock()
	if c.cancelled || c.status == StatusFinished {
		c.mu.Unlock()
		return
	}
	c.cancelled = true
	hooks := c.cancelHooks
	c.cancelHooks = nil
	c.mu.Unlock()

	c.cancel()
	for _, hook := range hooks {
		hook()
	}
}

// OnCancel registers fn to run once on cancellation. If the operation is
// already cancelled, fn runs immediately on the calling goroutine.
func (c *opCore) OnCancel(fn func()) {
	c.mu.Lock()
	if c.cancelled {
		c.mu.Unlock()
		fn()
		return
	}
	if c.status == StatusFinished {
		c.mu.Unlock()
		return
	}
	c.cancelHooks = append(c.cancelHooks, fn)
	c.mu.Unlock()
}

// IsCancelled reports whether Cancel was called before the operation finished
func (c *opCore) IsCancelled() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.cancelled
}

// IsExecuting reports whether the body is running
func (c *opCore) IsExecuting() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.status == StatusRunning
}

// IsFinished reports whether the operation produced its outcome
func (c *opCore) IsFinished() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.status == StatusFinished
}

// Terminal returns the terminal kind and error once finished
func (c *opCore) Terminal() (Terminal, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.terminal, c.status == StatusFinished
}

// whenFinished registers fn to receive the terminal. If the operation is
// already finished, fn runs immediately on the calling goroutine.
func (c *opCore) whenFinished(fn func(Terminal)) {
	c.mu.Lock()
	if c.status == StatusFinished {
		t := c.terminal
		c.mu.Unlock()
		fn(t)
		return
	}
	c.finishHooks = append(c.finishHooks, fn)
	c.mu.Unlock()
}

func (c *opCore) setStatus(status OperationStatus) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.status == StatusFinished {
		return
	}
	c.status = status
	if status == StatusRunning {
		c.startedAt = time.Now()
	}
}

// admit marks the operation as owned by a scheduler. Submitting the same
// operation twice is a programming error.
func (c *opCore) admit(seq uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.admitted {
		panic(fmt.Sprintf("task: operation %s submitted more than once", c.id))
	}
	c.admitted = true
	c.seq = seq
	if c.status != StatusFinished {
		c.status = StatusQueued
	}
}

func (c *opCore) isAdmitted() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.admitted
}

func (c *opCore) sequence() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.seq
}

func (c *opCore) runningSince() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.startedAt
}

// finishLocked records the terminal and returns the hooks to run.
// The caller holds mu and has checked the operation is not finished.
func (c *opCore) finishLocked(t Terminal) []func(Terminal) {
	c.status = StatusFinished
	c.terminal = t
	hooks := c.finishHooks
	c.finishHooks = nil
	c.cancelHooks = nil
	close(c.done)
	return hooks
}

// Op is a cancellable unit of work producing exactly one Outcome[T].
type Op[T any] struct {
	*opCore

	body func(ctx context.Context, finish func(Outcome[T]))

	// guarded by opCore.mu
	result      Outcome[T]
	completions []func(Outcome[T])
}

// NewOperation creates an operation from a synchronous body. The returned
// value and error become the outcome; an error returned after the operation
// was cancelled becomes a cancellation.
func NewOperation[T any](typ OperationType, fn func(ctx context.Context) (T, error), opts ...OperationOption) *Op[T] {
	return NewAsyncOperation(typ, func(ctx context.Context, finish func(Outcome[T])) {
		value, err := fn(ctx)
		switch {
		case err == nil:
			finish(Success(value))
		case ctx.Err() != nil:
			finish(Cancelled[T]())
		default:
			finish(Failure[T](err))
		}
	}, opts...)
}

// NewAsyncOperation creates an operation whose body may return before the
// work completes. The body must call finish exactly once, from any
// goroutine; a second call panics. The context is cancelled by Cancel.
func NewAsyncOperation[T any](typ OperationType, body func(ctx context.Context, finish func(Outcome[T])), opts ...OperationOption) *Op[T] {
	op := &Op[T]{
		opCore: newOpCore(typ, opts),
		body:   body,
	}
	op.run = op.execute
	op.settle = func(t Terminal) bool { return op.finish(outcomeOf[T](t)) }
	op.mirrorFrom = op.mirror
	return op
}

// Result returns the outcome once the operation has finished.
func (o *Op[T]) Result() (Outcome[T], bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.result, o.status == StatusFinished
}

// OnComplete registers fn to receive the outcome. fn runs synchronously on
// the goroutine that finishes the operation, or immediately if it already
// has. Use Task.OnComplete for asynchronous delivery on a dispatcher.
func (o *Op[T]) OnComplete(fn func(Outcome[T])) {
	o.mu.Lock()
	if o.status == StatusFinished {
		out := o.result
		o.mu.Unlock()
		fn(out)
		return
	}
	o.completions = append(o.completions, fn)
	o.mu.Unlock()
}

// finish publishes the outcome once. Later calls return false.
func (o *Op[T]) finish(out Outcome[T]) bool {
	o.mu.Lock()
	if o.status == StatusFinished {
		o.mu.Unlock()
		return false
	}
	o.result = out
	completions := o.completions
	o.completions = nil
	hooks := o.finishLocked(out.Terminal())
	o.mu.Unlock()

	o.cancel()

	for _, hook := range hooks {
		hook(out.Terminal())
	}
	for _, fn := range completions {
		fn(out)
	}
	return true
}

// execute runs the body on a worker. A panic before finish becomes a
// failure; a panic after finish (including a second finish) is re-raised.
func (o *Op[T]) execute() {
	var called atomic.Bool
	finish := func(out Outcome[T]) {
		if !called.CompareAndSwap(false, true) {
			panic(fmt.Sprintf("task: operation %s finished more than once", o.id))
		}
		o.finish(out)
	}

	defer func() {
		if r := recover(); r != nil {
			if !called.CompareAndSwap(false, true) {
				panic(r)
			}
			o.finish(Failure[T](&PanicError{OperationID: o.id, Value: r, Stack: debug.Stack()}))
		}
	}()

	o.body(o.ctx, finish)
}

// mirror finishes o with the outcome of src, which the admission policy
// chose to run in o's place.
func (o *Op[T]) mirror(src Operation) {
	o.setStatus(StatusQueued)
	if typed, ok := src.(*Op[T]); ok {
		typed.OnComplete(func(out Outcome[T]) { o.finish(out) })
		return
	}
	src.core().whenFinished(func(t Terminal) { o.finish(outcomeOf[T](t)) })
}
