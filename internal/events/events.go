package events

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Kind identifies the lifecycle transition an event reports.
type Kind string

// Event kinds
const (
	KindAdmitted     Kind = "admitted"
	KindDeduplicated Kind = "deduplicated"
	KindRejected     Kind = "rejected"
	KindStarted      Kind = "started"
	KindFinished     Kind = "finished"
	KindRetried      Kind = "retried"
)

// OperationEvent describes one lifecycle transition of an operation.
type OperationEvent struct {
	// ID is a unique identifier for this event
	ID uuid.UUID `json:"id"`

	// Kind is the transition being reported
	Kind Kind `json:"kind"`

	// OperationID identifies the operation
	OperationID uuid.UUID `json:"operation_id"`

	// OperationType is the caller-defined type tag
	OperationType int `json:"operation_type"`

	// OperationName is the human readable operation name
	OperationName string `json:"operation_name"`

	// Priority is the operation's priority value
	Priority int `json:"priority"`

	// Outcome is set on finished events: success, cancelled or failure
	Outcome string `json:"outcome,omitempty"`

	// Error is the failure message on finished or rejected events
	Error string `json:"error,omitempty"`

	// Attempt is the retry round on retried events
	Attempt int `json:"attempt,omitempty"`

	// Duration is the running time on finished events for operations that started
	Duration time.Duration `json:"duration,omitempty"`

	// CreatedAt is the timestamp when the event was created
	CreatedAt time.Time `json:"created_at"`
}

// NewOperationEvent creates an event of the given kind for an operation.
func NewOperationEvent(kind Kind, operationID uuid.UUID, operationType int, name string) *OperationEvent {
	return &OperationEvent{
		ID:            uuid.New(),
		Kind:          kind,
		OperationID:   operationID,
		OperationType: operationType,
		OperationName: name,
		CreatedAt:     time.Now(),
	}
}

// EventHandler defines an interface for components that can handle events.
type EventHandler interface {
	// HandleEvent processes the given event within the provided context.
	// Returns an error if the event cannot be handled successfully.
	HandleEvent(ctx context.Context, event *OperationEvent) error
}

// EventHandlerFunc adapts a function to the EventHandler interface.
type EventHandlerFunc func(ctx context.Context, event *OperationEvent) error

// HandleEvent calls f(ctx, event).
func (f EventHandlerFunc) HandleEvent(ctx context.Context, event *OperationEvent) error {
	return f(ctx, event)
}

// EventEmitter defines an interface for components that can emit events.
// This allows the scheduler to publish events without knowing the handlers.
type EventEmitter interface {
	// EmitEvent publishes the given event to all registered handlers.
	// Returns an error if the event cannot be emitted.
	EmitEvent(ctx context.Context, event *OperationEvent) error
}
