package api

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/shakurocom/iOS-Toolbox-sub000/internal/api/shared"
	"github.com/shakurocom/iOS-Toolbox-sub000/internal/platform/logger"
	"github.com/shakurocom/iOS-Toolbox-sub000/internal/task"
)

// ErrSimulatedFailure is the failure of a round listed in FailAttempts.
var ErrSimulatedFailure = errors.New("simulated failure")

// DefaultMaxTracked caps how many operations the handler remembers.
const DefaultMaxTracked = 1024

// OperationHandler submits simulated operations to a task manager and
// tracks their tasks for polling and cancellation.
type OperationHandler struct {
	manager    *task.TaskManager
	policy     task.RetryPolicy
	logger     *slog.Logger
	maxTracked int

	mu    sync.RWMutex
	ops   map[uuid.UUID]*trackedOperation
	order []uuid.UUID
}

// trackedOperation is guarded by OperationHandler.mu except for the
// immutable req, task, completion and submittedAt.
type trackedOperation struct {
	req         SubmitOperationRequest
	task        *task.Task[string]
	submittedAt time.Time

	// completion finishes with the task after all retries; dependents wait on it
	completion task.Operation

	attempts   int
	outcome    *task.Outcome[string]
	finishedAt time.Time
}

// NewOperationHandler creates a handler. policy drives retries for
// requests that set retry.
func NewOperationHandler(manager *task.TaskManager, policy task.RetryPolicy, logger *slog.Logger) *OperationHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &OperationHandler{
		manager:    manager,
		policy:     policy,
		logger:     logger,
		maxTracked: DefaultMaxTracked,
		ops:        make(map[uuid.UUID]*trackedOperation),
	}
}

// SetMaxTracked changes how many operations are remembered. Finished
// operations are forgotten oldest first once the limit is exceeded.
func (h *OperationHandler) SetMaxTracked(n int) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.maxTracked = n
}

// Submit handles POST /operations.
func (h *OperationHandler) Submit(w http.ResponseWriter, r *http.Request) {
	log := logger.FromContextOrDefault(r.Context(), h.logger)

	var req SubmitOperationRequest
	if err := shared.DecodeJSON(r, &req); err != nil {
		shared.RespondWithErrorAndLog(w, r, http.StatusBadRequest, "Invalid request format", err)
		return
	}
	if err := shared.ValidateRequest(&req); err != nil {
		shared.RespondWithErrorAndLog(w, r, http.StatusBadRequest, shared.ValidationMessage(err), err)
		return
	}

	deps, err := h.resolveDependencies(req.DependsOn)
	if err != nil {
		HandleAPIError(w, r, err, "")
		return
	}

	tracked := &trackedOperation{req: req, submittedAt: time.Now().UTC()}
	build := func(attempt int) task.Group[string] {
		op := newSimulatedOperation(req, attempt)
		for _, dep := range deps {
			op.AddDependency(dep.Operation, dep.Strong)
		}
		h.mu.Lock()
		tracked.attempts = attempt + 1
		h.mu.Unlock()
		return task.NewGroup(op)
	}

	first := build(0)
	var handler task.RetryHandler[string]
	if req.Retry {
		handler = h.retryHandler(build)
	}
	t := task.PerformGroup(h.manager, first, handler)

	if out, done := first.Primary.Result(); done && isRejection(out.Err) {
		HandleAPIError(w, r, out.Err, "")
		return
	}

	tracked.task = t
	tracked.completion = t.Completion()
	h.track(t.ID(), tracked)
	t.OnComplete(nil, func(t *task.Task[string], out task.Outcome[string]) {
		h.complete(tracked, out)
		h.logger.Debug("operation task finished",
			"operation_id", t.ID(),
			"outcome", out.Kind.String())
	})

	log.Info("operation submitted",
		"operation_id", t.ID(),
		"operation_type", req.Type,
		"priority", req.Priority,
		"retry", req.Retry,
		"dependencies", len(deps))

	shared.RespondWithJSON(w, r, http.StatusAccepted, h.snapshot(t.ID(), tracked))
}

// Get handles GET /operations/{id}.
func (h *OperationHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, ok := handlePathUUID(w, r, "id")
	if !ok {
		return
	}

	tracked, err := h.lookup(id)
	if err != nil {
		HandleAPIError(w, r, err, "")
		return
	}
	shared.RespondWithJSON(w, r, http.StatusOK, h.snapshot(id, tracked))
}

// List handles GET /operations.
func (h *OperationHandler) List(w http.ResponseWriter, r *http.Request) {
	h.mu.RLock()
	ids := append([]uuid.UUID(nil), h.order...)
	h.mu.RUnlock()

	resp := OperationListResponse{Operations: make([]OperationResponse, 0, len(ids))}
	for _, id := range ids {
		tracked, err := h.lookup(id)
		if err != nil {
			continue
		}
		resp.Operations = append(resp.Operations, h.snapshot(id, tracked))
	}
	shared.RespondWithJSON(w, r, http.StatusOK, resp)
}

// Cancel handles DELETE /operations/{id}. Cancelling a finished
// operation is a no-op that still reports its state.
func (h *OperationHandler) Cancel(w http.ResponseWriter, r *http.Request) {
	id, ok := handlePathUUID(w, r, "id")
	if !ok {
		return
	}

	tracked, err := h.lookup(id)
	if err != nil {
		HandleAPIError(w, r, err, "")
		return
	}

	tracked.task.Cancel()
	logger.FromContextOrDefault(r.Context(), h.logger).Info("operation cancel requested", "operation_id", id)

	shared.RespondWithJSON(w, r, http.StatusAccepted, h.snapshot(id, tracked))
}

// Stats handles GET /stats.
func (h *OperationHandler) Stats(w http.ResponseWriter, r *http.Request) {
	shared.RespondWithJSON(w, r, http.StatusOK, h.manager.Stats())
}

// retryHandler wraps the backoff policy so that scheduler rejections
// finish at once instead of being retried into a closed or full queue.
func (h *OperationHandler) retryHandler(build func(attempt int) task.Group[string]) task.RetryHandler[string] {
	backoff := task.BackoffRetryHandler(h.policy, build)
	return func(attempt int, out task.Outcome[string]) task.RetryDecision[string] {
		if isRejection(out.Err) {
			return task.Finish[string]()
		}
		return backoff(attempt, out)
	}
}

func (h *OperationHandler) resolveDependencies(reqs []DependencyRequest) ([]task.Dependency, error) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	deps := make([]task.Dependency, 0, len(reqs))
	for _, dr := range reqs {
		tracked, ok := h.ops[dr.ID]
		if !ok {
			return nil, fmt.Errorf("%w: %s", ErrUnknownDependency, dr.ID)
		}
		deps = append(deps, task.Dependency{Operation: tracked.completion, Strong: dr.Strong})
	}
	return deps, nil
}

func (h *OperationHandler) lookup(id uuid.UUID) (*trackedOperation, error) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	tracked, ok := h.ops[id]
	if !ok {
		return nil, ErrOperationNotFound
	}
	return tracked, nil
}

func (h *OperationHandler) track(id uuid.UUID, tracked *trackedOperation) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.ops[id] = tracked
	h.order = append(h.order, id)
	h.pruneLocked()
}

// pruneLocked forgets the oldest finished operations beyond maxTracked.
func (h *OperationHandler) pruneLocked() {
	excess := len(h.order) - h.maxTracked
	if h.maxTracked <= 0 || excess <= 0 {
		return
	}
	kept := h.order[:0]
	for _, id := range h.order {
		if excess > 0 && h.ops[id].outcome != nil {
			delete(h.ops, id)
			excess--
			continue
		}
		kept = append(kept, id)
	}
	h.order = kept
}

func (h *OperationHandler) complete(tracked *trackedOperation, out task.Outcome[string]) {
	h.mu.Lock()
	defer h.mu.Unlock()
	tracked.outcome = &out
	tracked.finishedAt = time.Now().UTC()
}

func (h *OperationHandler) snapshot(id uuid.UUID, tracked *trackedOperation) OperationResponse {
	h.mu.RLock()
	defer h.mu.RUnlock()

	resp := OperationResponse{
		ID:          id,
		Name:        tracked.req.Name,
		Type:        tracked.req.Type,
		Priority:    tracked.req.Priority,
		State:       StatePending,
		Attempts:    tracked.attempts,
		Cancelled:   tracked.task.IsCancelled(),
		SubmittedAt: tracked.submittedAt,
	}
	if tracked.outcome == nil {
		return resp
	}

	finishedAt := tracked.finishedAt
	resp.FinishedAt = &finishedAt
	switch tracked.outcome.Kind {
	case task.OutcomeSuccess:
		resp.State = StateSuccess
		resp.Result = tracked.outcome.Value
	case task.OutcomeCancelled:
		resp.State = StateCancelled
	default:
		resp.State = StateFailure
		resp.Error = tracked.outcome.Err.Error()
	}
	return resp
}

func isRejection(err error) bool {
	return errors.Is(err, task.ErrQueueFull) || errors.Is(err, task.ErrQueueClosed)
}

// newSimulatedOperation builds the operation for one round of req.
func newSimulatedOperation(req SubmitOperationRequest, attempt int) *task.Op[string] {
	order := task.OrderFIFO
	if req.Order == "lifo" {
		order = task.OrderLIFO
	}
	duration := time.Duration(req.DurationMS) * time.Millisecond
	fail := attempt < req.FailAttempts

	return task.NewOperation(task.OperationType(req.Type), func(ctx context.Context) (string, error) {
		if duration > 0 {
			timer := time.NewTimer(duration)
			defer timer.Stop()
			select {
			case <-ctx.Done():
				return "", ctx.Err()
			case <-timer.C:
			}
		}
		if fail {
			return "", fmt.Errorf("%w on attempt %d", ErrSimulatedFailure, attempt+1)
		}
		return fmt.Sprintf("completed on attempt %d", attempt+1), nil
	}, task.WithPriority(req.Priority), task.WithOrder(order), task.WithName(req.Name))
}

// RegisterRoutes mounts the operation endpoints on r.
func (h *OperationHandler) RegisterRoutes(r chi.Router) {
	r.Get("/stats", h.Stats)
	r.Route("/operations", func(r chi.Router) {
		r.Post("/", h.Submit)
		r.Get("/", h.List)
		r.Get("/{id}", h.Get)
		r.Delete("/{id}", h.Cancel)
	})
}
