package api

import (
	"time"

	"github.com/google/uuid"
)

// Operation states reported to clients
const (
	StatePending   = "pending"
	StateSuccess   = "success"
	StateFailure   = "failure"
	StateCancelled = "cancelled"
)

// SubmitOperationRequest describes a simulated unit of work. The operation
// sleeps for DurationMS and fails its first FailAttempts rounds.
type SubmitOperationRequest struct {
	Type     int    `json:"type"     validate:"gte=0"`
	Name     string `json:"name"     validate:"max=128"`
	Priority int    `json:"priority" validate:"gte=-100,lte=100"`
	// Order is fifo or lifo; empty means fifo
	Order        string `json:"order"         validate:"omitempty,oneof=fifo lifo"`
	DurationMS   int    `json:"duration_ms"   validate:"gte=0,lte=600000"`
	FailAttempts int    `json:"fail_attempts" validate:"gte=0,lte=100"`

	// Retry runs the operation under the configured backoff policy
	Retry bool `json:"retry"`

	DependsOn []DependencyRequest `json:"depends_on" validate:"omitempty,max=32,dive"`
}

// DependencyRequest names a previously submitted operation to wait for.
type DependencyRequest struct {
	ID     uuid.UUID `json:"id"     validate:"required"`
	Strong bool      `json:"strong"`
}

// OperationResponse is the tracked state of a submitted operation.
type OperationResponse struct {
	ID          uuid.UUID  `json:"id"`
	Name        string     `json:"name,omitempty"`
	Type        int        `json:"type"`
	Priority    int        `json:"priority"`
	State       string     `json:"state"`
	Attempts    int        `json:"attempts"`
	Cancelled   bool       `json:"cancelled"`
	Result      string     `json:"result,omitempty"`
	Error       string     `json:"error,omitempty"`
	SubmittedAt time.Time  `json:"submitted_at"`
	FinishedAt  *time.Time `json:"finished_at,omitempty"`
}

// OperationListResponse wraps every tracked operation.
type OperationListResponse struct {
	Operations []OperationResponse `json:"operations"`
}
