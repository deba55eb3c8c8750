package task

import (
	"errors"
	"fmt"

	"github.com/google/uuid"
)

// Common errors delivered through failed or cancelled outcomes.
var (
	// ErrQueueClosed is the failure of operations submitted after Stop.
	ErrQueueClosed = errors.New("operation queue is closed")

	// ErrQueueFull is the failure of operations submitted while the queue
	// already holds QueueSize operations.
	ErrQueueFull = errors.New("operation queue is full")

	// ErrCancelled is returned by Outcome.Get for cancelled outcomes.
	ErrCancelled = errors.New("operation cancelled")

	// ErrAdmissionTypeMismatch is the failure of a submission that the
	// admission policy coalesced into an operation with another result type.
	ErrAdmissionTypeMismatch = errors.New("admitted operation has a different result type")

	// ErrNilFailure stands in for a nil error passed to Failure.
	ErrNilFailure = errors.New("operation failed without an error")

	// ErrNilPrimary is the failure of a group or retry round with no primary operation.
	ErrNilPrimary = errors.New("operation group has no primary operation")

	// ErrFinishedRetryGroup is the failure of a task whose retry handler
	// asked for another round with a group that has already finished.
	ErrFinishedRetryGroup = errors.New("retry round group has already finished")
)

// PanicError reports a panic recovered from an operation body or a retry handler.
type PanicError struct {
	OperationID uuid.UUID
	Value       any
	Stack       []byte
}

func (e *PanicError) Error() string {
	return fmt.Sprintf("panic in operation %s: %v", e.OperationID, e.Value)
}
