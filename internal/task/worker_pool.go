package task

import (
	"fmt"
	"log/slog"
	"runtime/debug"
	"sync"
)

// WorkerPool manages a fixed set of worker goroutines that run dispatched
// jobs. It is the execution primitive behind the TaskManager and handles
// graceful shutdown and worker lifecycle.
type WorkerPool struct {
	// jobs buffers dispatched work for the workers
	jobs chan func()

	// workerCount is the number of concurrent workers to start
	workerCount int

	// wg tracks active worker goroutines for clean shutdown
	wg sync.WaitGroup

	// mu guards started and closed against concurrent Dispatch and Stop
	mu      sync.RWMutex
	started bool
	closed  bool

	// logger for structured logging
	logger *slog.Logger

	// errorHandler is called when a job panics
	// If nil, panics are only logged
	errorHandler func(workerID int, err error)
}

// WorkerPoolConfig holds configuration options for the worker pool
type WorkerPoolConfig struct {
	// WorkerCount determines how many concurrent worker goroutines to start
	// If zero or negative, defaults to 1
	WorkerCount int

	// QueueSize is the job buffer; a full buffer spills onto a dedicated goroutine
	QueueSize int
}

// DefaultWorkerPoolConfig returns a WorkerPoolConfig with reasonable defaults
func DefaultWorkerPoolConfig() WorkerPoolConfig {
	return WorkerPoolConfig{
		WorkerCount: 2,
		QueueSize:   16,
	}
}

// NewWorkerPool creates a new worker pool with the specified configuration
func NewWorkerPool(config WorkerPoolConfig, logger *slog.Logger) *WorkerPool {
	// Apply defaults for invalid config values
	workerCount := config.WorkerCount
	if workerCount <= 0 {
		workerCount = 1
		logger.Warn("invalid worker count specified, using default",
			"specified_count", config.WorkerCount,
			"default_count", 1)
	}
	queueSize := config.QueueSize
	if queueSize < 0 {
		queueSize = 0
	}

	return &WorkerPool{
		jobs:         make(chan func(), queueSize),
		workerCount:  workerCount,
		logger:       logger.With("component", "worker_pool"),
		errorHandler: nil,
	}
}

// SetErrorHandler allows setting a custom handler for panicking jobs
func (p *WorkerPool) SetErrorHandler(handler func(workerID int, err error)) {
	p.errorHandler = handler
}

// Start launches the worker goroutines. Calling it twice has no effect.
func (p *WorkerPool) Start() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.started || p.closed {
		return
	}
	p.started = true

	for i := 0; i < p.workerCount; i++ {
		p.wg.Add(1)
		go p.worker(i)
	}
	p.logger.Debug("worker pool started", "worker_count", p.workerCount)
}

// Stop stops accepting jobs, lets the workers drain what is buffered and
// waits for them to exit.
func (p *WorkerPool) Stop() {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.closed = true
	close(p.jobs)
	started := p.started
	p.mu.Unlock()

	if !started {
		// Nobody will drain the buffer, run what is left here.
		for job := range p.jobs {
			p.runJob(-1, job)
		}
	}
	p.wg.Wait()
	p.logger.Debug("worker pool stopped")
}

// Dispatch hands fn to a worker. When the buffer is full, or the pool is
// already stopped, fn runs on a dedicated goroutine so it is never lost.
func (p *WorkerPool) Dispatch(fn func()) {
	p.mu.RLock()
	if p.closed {
		p.mu.RUnlock()
		go p.runJob(-1, fn)
		return
	}

	select {
	case p.jobs <- fn:
		p.mu.RUnlock()
	default:
		p.mu.RUnlock()
		p.logger.Warn("worker pool saturated, running job on a dedicated goroutine",
			"queue_cap", cap(p.jobs))
		go p.runJob(-1, fn)
	}
}

// worker runs jobs until the job channel is closed and drained
func (p *WorkerPool) worker(id int) {
	defer p.wg.Done()

	p.logger.Debug("starting worker", "worker_id", id)
	for job := range p.jobs {
		p.runJob(id, job)
	}
	p.logger.Debug("job channel closed, stopping worker", "worker_id", id)
}

// runJob executes a job, converting a panic into an error for the handler
func (p *WorkerPool) runJob(workerID int, job func()) {
	defer func() {
		if r := recover(); r != nil {
			err := fmt.Errorf("panic in worker job: %v", r)
			p.logger.Error("worker job panicked",
				"worker_id", workerID,
				"error", err,
				"stack", string(debug.Stack()))
			if p.errorHandler != nil {
				p.errorHandler(workerID, err)
			}
		}
	}()

	job()
}
