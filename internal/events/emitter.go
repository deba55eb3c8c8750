package events

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
)

// InMemoryEventEmitter dispatches events synchronously to the handlers
// registered with it. Handlers run on the emitting goroutine, which for the
// task manager is a scheduling or worker goroutine, so they must be quick.
type InMemoryEventEmitter struct {
	mu            sync.RWMutex
	subscriptions []subscription
	logger        *slog.Logger
}

type subscription struct {
	handler EventHandler
	// kinds is nil for handlers that receive every kind
	kinds map[Kind]struct{}
}

func (s subscription) wants(kind Kind) bool {
	if s.kinds == nil {
		return true
	}
	_, ok := s.kinds[kind]
	return ok
}

// NewInMemoryEventEmitter creates a new instance of InMemoryEventEmitter.
func NewInMemoryEventEmitter(logger *slog.Logger) *InMemoryEventEmitter {
	if logger == nil {
		logger = slog.Default()
	}
	return &InMemoryEventEmitter{
		logger: logger.With("component", "in_memory_event_emitter"),
	}
}

// RegisterHandler subscribes handler to the given kinds, or to every kind
// when none are given.
func (e *InMemoryEventEmitter) RegisterHandler(handler EventHandler, kinds ...Kind) {
	sub := subscription{handler: handler}
	if len(kinds) > 0 {
		sub.kinds = make(map[Kind]struct{}, len(kinds))
		for _, k := range kinds {
			sub.kinds[k] = struct{}{}
		}
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	e.subscriptions = append(e.subscriptions, sub)
	e.logger.Debug("registered new event handler",
		"handler_count", len(e.subscriptions),
		"kinds", kinds)
}

// EmitEvent publishes event to every subscribed handler. A failing or
// panicking handler does not stop delivery to the others; their errors
// are joined into the returned error.
func (e *InMemoryEventEmitter) EmitEvent(ctx context.Context, event *OperationEvent) error {
	e.mu.RLock()
	subs := make([]subscription, len(e.subscriptions))
	copy(subs, e.subscriptions)
	e.mu.RUnlock()

	var errs []error
	for i, sub := range subs {
		if !sub.wants(event.Kind) {
			continue
		}
		if err := deliver(ctx, sub.handler, event); err != nil {
			e.logger.Error("handler failed to process event",
				"error", err,
				"handler_index", i,
				"event_id", event.ID,
				"event_kind", event.Kind,
				"operation_id", event.OperationID)
			errs = append(errs, err)
		}
	}

	return errors.Join(errs...)
}

func deliver(ctx context.Context, handler EventHandler, event *OperationEvent) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("event handler panicked: %v", r)
		}
	}()
	return handler.HandleEvent(ctx, event)
}
