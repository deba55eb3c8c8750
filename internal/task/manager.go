package task

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shakurocom/iOS-Toolbox-sub000/internal/events"
)

// TaskManagerConfig holds configuration for the task manager
type TaskManagerConfig struct {
	// MaxConcurrentOperations caps how many operations run at once.
	// Operations blocked on dependencies do not count.
	MaxConcurrentOperations int

	// QueueSize caps admitted operations that have not started yet.
	// Zero means unbounded.
	QueueSize int

	// WorkerCount sizes the default worker pool.
	// It is raised to MaxConcurrentOperations when smaller, so that every
	// dispatched operation has a worker and none waits in the pool buffer.
	WorkerCount int
}

// DefaultTaskManagerConfig returns a TaskManagerConfig with reasonable defaults
func DefaultTaskManagerConfig() TaskManagerConfig {
	return TaskManagerConfig{
		MaxConcurrentOperations: 4,
		QueueSize:               0,
		WorkerCount:             0,
	}
}

// Stats is a point-in-time snapshot of the task manager.
type Stats struct {
	Queued       int    `json:"queued"`
	Blocked      int    `json:"blocked"`
	Running      int    `json:"running"`
	Submitted    uint64 `json:"submitted"`
	Deduplicated uint64 `json:"deduplicated"`
	Rejected     uint64 `json:"rejected"`
	Finished     uint64 `json:"finished"`
}

// Option configures a TaskManager.
type Option func(*TaskManager)

// WithAdmissionPolicy installs the hook consulted for every submission.
func WithAdmissionPolicy(policy AdmissionPolicy) Option {
	return func(m *TaskManager) { m.policy = policy }
}

// WithEventEmitter publishes lifecycle events to emitter.
func WithEventEmitter(emitter events.EventEmitter) Option {
	return func(m *TaskManager) { m.emitter = emitter }
}

// WithDispatcher replaces the built-in worker pool as the execution primitive.
func WithDispatcher(d Dispatcher) Option {
	return func(m *TaskManager) { m.dispatcher = d }
}

// WithCallbackDispatcher sets the default context for task completion callbacks.
func WithCallbackDispatcher(d Dispatcher) Option {
	return func(m *TaskManager) { m.callbacks = d }
}

// TaskManager admits operations, orders them by priority and dependency
// edges, and runs at most MaxConcurrentOperations of them at a time.
//
// Operations move from submitted through admission_pending, queued and
// running to finished. The queue, the set of running operations and the counters are
// guarded by mu; no operation lock is ever held while acquiring mu.
type TaskManager struct {
	config     TaskManagerConfig
	logger     *slog.Logger
	policy     AdmissionPolicy
	emitter    events.EventEmitter
	dispatcher Dispatcher
	callbacks  Dispatcher
	pool       *WorkerPool

	mu      sync.Mutex
	queue   *OperationQueue
	active  map[uuid.UUID]Operation
	seq     uint64
	started bool
	stopped bool
	stats   Stats
}

// NewTaskManager creates a TaskManager. It queues submissions right away
// but runs nothing until Start is called.
func NewTaskManager(config TaskManagerConfig, logger *slog.Logger, opts ...Option) *TaskManager {
	if config.MaxConcurrentOperations <= 0 {
		logger.Warn("invalid max concurrent operations specified, using default",
			"specified_count", config.MaxConcurrentOperations,
			"default_count", 1)
		config.MaxConcurrentOperations = 1
	}
	if config.WorkerCount < config.MaxConcurrentOperations {
		if config.WorkerCount > 0 {
			logger.Warn("worker count below max concurrent operations, raising it",
				"specified_count", config.WorkerCount,
				"max_concurrent_operations", config.MaxConcurrentOperations)
		}
		config.WorkerCount = config.MaxConcurrentOperations
	}

	m := &TaskManager{
		config: config,
		logger: logger.With("component", "task_manager"),
		active: make(map[uuid.UUID]Operation),
	}
	for _, opt := range opts {
		opt(m)
	}

	if m.dispatcher == nil {
		m.pool = NewWorkerPool(WorkerPoolConfig{
			WorkerCount: config.WorkerCount,
			QueueSize:   config.MaxConcurrentOperations,
		}, logger)
		m.pool.SetErrorHandler(func(workerID int, err error) {
			m.logger.Error("worker job failed", "worker_id", workerID, "error", err)
		})
		m.dispatcher = m.pool
	}
	if m.callbacks == nil {
		m.callbacks = GoDispatcher{}
	}
	m.queue = NewOperationQueue(config.QueueSize, m.logger)

	return m
}

// Start begins running queued operations
func (m *TaskManager) Start() {
	m.mu.Lock()
	if m.started || m.stopped {
		m.mu.Unlock()
		return
	}
	m.started = true
	m.mu.Unlock()

	if m.pool != nil {
		m.pool.Start()
	}
	m.logger.Info("task manager started",
		"max_concurrent_operations", m.config.MaxConcurrentOperations,
		"queue_size", m.config.QueueSize)

	m.schedule()
}

// Stop closes the queue, finishes queued operations as cancelled, cancels
// running ones and waits for the workers to exit. Submissions after Stop
// fail with ErrQueueClosed.
func (m *TaskManager) Stop() {
	m.mu.Lock()
	if m.stopped {
		m.mu.Unlock()
		return
	}
	m.stopped = true
	drained := m.queue.Close()
	running := make([]Operation, 0, len(m.active))
	for _, op := range m.active {
		running = append(running, op)
	}
	m.mu.Unlock()

	for _, op := range drained {
		op.Cancel()
		op.core().settle(Terminal{Kind: OutcomeCancelled})
	}
	for _, op := range running {
		op.Cancel()
	}

	if m.pool != nil {
		m.pool.Stop()
	}
	m.logger.Info("task manager stopped",
		"cancelled_queued", len(drained),
		"cancelled_running", len(running))
}

// Stats returns a snapshot of queue depth and counters
func (m *TaskManager) Stats() Stats {
	m.mu.Lock()
	defer m.mu.Unlock()
	s := m.stats
	s.Queued = m.queue.Len()
	s.Blocked = m.queue.Blocked()
	s.Running = len(m.active)
	return s
}

// Submit runs the admission path for op and returns the operation that was
// actually admitted: op itself, or the already-queued operation chosen by
// the admission policy, whose outcome op will mirror.
func (m *TaskManager) Submit(op Operation) Operation {
	c := op.core()
	if c.isAdmitted() {
		panic("task: operation " + op.ID().String() + " submitted more than once")
	}
	c.setStatus(StatusAdmissionPending)

	admitted, err := m.admit(op)
	switch {
	case err != nil:
		m.logger.Warn("operation rejected",
			"operation_id", op.ID(),
			"operation_type", op.Type(),
			"error", err)
		c.settle(Terminal{Kind: OutcomeFailure, Err: err})
		m.emit(events.KindRejected, op, func(ev *events.OperationEvent) { ev.Error = err.Error() })
		return op

	case admitted != op:
		m.logger.Debug("operation coalesced into queued operation",
			"operation_id", op.ID(),
			"operation_type", op.Type(),
			"admitted_id", admitted.ID())
		c.mirrorFrom(admitted)
		m.emit(events.KindDeduplicated, op, nil)
		return admitted
	}

	c.whenFinished(func(t Terminal) { m.operationFinished(op, t) })
	op.OnCancel(m.schedule)
	for _, dep := range op.Dependencies() {
		dep.Operation.core().whenFinished(func(Terminal) { m.schedule() })
	}
	m.emit(events.KindAdmitted, op, nil)

	m.schedule()
	return op
}

// admit consults the admission policy and enqueues the chosen operation.
func (m *TaskManager) admit(op Operation) (Operation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.stats.Submitted++
	if m.stopped {
		m.stats.Rejected++
		return nil, ErrQueueClosed
	}

	if m.policy != nil {
		if chosen := m.policy(op, m.queue.Operations()); chosen != nil && chosen != op {
			m.stats.Deduplicated++
			return chosen, nil
		}
	}

	if err := m.queue.Enqueue(op); err != nil {
		m.stats.Rejected++
		return nil, err
	}
	m.seq++
	op.core().admit(m.seq)
	return op, nil
}

// schedule settles operations that must not run and hands runnable ones
// to the dispatcher until the concurrency cap is reached.
func (m *TaskManager) schedule() {
	m.mu.Lock()
	if m.stopped {
		m.mu.Unlock()
		return
	}
	drops := m.queue.Sweep()
	var starts []Operation
	if m.started {
		for len(m.active) < m.config.MaxConcurrentOperations {
			op := m.queue.PopReady()
			if op == nil {
				break
			}
			m.active[op.ID()] = op
			starts = append(starts, op)
		}
	}
	m.mu.Unlock()

	for _, d := range drops {
		m.logger.Debug("operation finished without running",
			"operation_id", d.op.ID(),
			"operation_type", d.op.Type(),
			"outcome", d.terminal.Kind.String())
		d.op.core().settle(d.terminal)
	}
	for _, op := range starts {
		op := op
		m.dispatcher.Dispatch(func() { m.execute(op) })
	}
}

// execute runs one operation on a worker
func (m *TaskManager) execute(op Operation) {
	c := op.core()
	if op.IsCancelled() {
		c.settle(Terminal{Kind: OutcomeCancelled})
		return
	}

	c.setStatus(StatusRunning)
	m.logger.Debug("running operation",
		"operation_id", op.ID(),
		"operation_type", op.Type(),
		"priority", op.Priority())
	m.emit(events.KindStarted, op, nil)

	c.run()
}

// operationFinished releases the concurrency slot of a finished operation
func (m *TaskManager) operationFinished(op Operation, t Terminal) {
	m.mu.Lock()
	delete(m.active, op.ID())
	m.stats.Finished++
	m.mu.Unlock()

	startedAt := op.core().runningSince()
	m.logger.Debug("operation finished",
		"operation_id", op.ID(),
		"operation_type", op.Type(),
		"outcome", t.Kind.String())
	m.emit(events.KindFinished, op, func(ev *events.OperationEvent) {
		ev.Outcome = t.Kind.String()
		if t.Err != nil {
			ev.Error = t.Err.Error()
		}
		if !startedAt.IsZero() {
			ev.Duration = time.Since(startedAt)
		}
	})

	m.schedule()
}

// emit publishes a lifecycle event if an emitter is configured
func (m *TaskManager) emit(kind events.Kind, op Operation, fill func(*events.OperationEvent)) {
	if m.emitter == nil {
		return
	}
	ev := events.NewOperationEvent(kind, op.ID(), int(op.Type()), op.Name())
	ev.Priority = op.Priority()
	if fill != nil {
		fill(ev)
	}
	if err := m.emitter.EmitEvent(context.Background(), ev); err != nil {
		m.logger.Warn("failed to emit operation event",
			"event_kind", kind,
			"operation_id", op.ID(),
			"error", err)
	}
}

// Perform submits op and returns a task delivering its outcome.
func Perform[T any](m *TaskManager, op *Op[T]) *Task[T] {
	admitted := m.Submit(op)
	if typed, ok := admitted.(*Op[T]); ok {
		return newTask[T](typed.ID(), opSource[T]{op: typed}, m.callbacks)
	}
	// Coalesced into an operation of another result type; op mirrors its
	// terminal and reports ErrAdmissionTypeMismatch on success.
	return newTask[T](op.ID(), opSource[T]{op: op}, m.callbacks)
}

// PerformFunc builds an operation from fn and performs it.
func PerformFunc[T any](m *TaskManager, typ OperationType, fn func(ctx context.Context) (T, error), opts ...OperationOption) *Task[T] {
	return Perform(m, NewOperation(typ, fn, opts...))
}

// PerformGroup submits a group. With a nil handler the task finishes with
// the primary's outcome once every member has finished; otherwise the
// group runs under a retry controller driven by handler.
func PerformGroup[T any](m *TaskManager, group Group[T], handler RetryHandler[T]) *Task[T] {
	if handler == nil {
		handler = func(int, Outcome[T]) RetryDecision[T] { return Finish[T]() }
	}
	ctrl := newRetryController(m, handler)
	id := uuid.New()
	if group.Primary != nil {
		id = group.Primary.ID()
	}
	t := newTask[T](id, ctrl, m.callbacks)
	ctrl.start(group)
	return t
}
