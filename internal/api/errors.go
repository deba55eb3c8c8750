package api

import (
	"errors"
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/shakurocom/iOS-Toolbox-sub000/internal/api/shared"
	"github.com/shakurocom/iOS-Toolbox-sub000/internal/task"
)

// Errors returned by the operation handlers
var (
	ErrOperationNotFound = errors.New("operation not found")
	ErrInvalidID         = errors.New("invalid operation id")
	ErrUnknownDependency = errors.New("dependency refers to an unknown operation")
)

// MapErrorToStatusCode maps internal errors to HTTP status codes so that
// handlers never leak internal error types to clients.
func MapErrorToStatusCode(err error) int {
	var verrs validator.ValidationErrors
	switch {
	case errors.Is(err, ErrOperationNotFound):
		return http.StatusNotFound

	case errors.Is(err, ErrInvalidID),
		errors.Is(err, ErrUnknownDependency),
		errors.As(err, &verrs):
		return http.StatusBadRequest

	// Scheduler back-pressure
	case errors.Is(err, task.ErrQueueFull),
		errors.Is(err, task.ErrQueueClosed):
		return http.StatusServiceUnavailable

	default:
		return http.StatusInternalServerError
	}
}

// GetSafeErrorMessage returns a client-facing message for err.
func GetSafeErrorMessage(err error) string {
	if err == nil {
		return "An unexpected error occurred"
	}

	var verrs validator.ValidationErrors
	switch {
	case errors.Is(err, ErrOperationNotFound):
		return "Operation not found"
	case errors.Is(err, ErrInvalidID):
		return "Invalid operation ID"
	case errors.Is(err, ErrUnknownDependency):
		return "Dependency refers to an unknown operation"
	case errors.As(err, &verrs):
		return "Invalid request"
	case errors.Is(err, task.ErrQueueFull):
		return "Operation queue is full"
	case errors.Is(err, task.ErrQueueClosed):
		return "Task manager is shutting down"
	default:
		return "An unexpected error occurred"
	}
}

// HandleAPIError writes the mapped status and a safe message for err.
// A non-empty message overrides the mapped one.
func HandleAPIError(w http.ResponseWriter, r *http.Request, err error, message string) {
	if message == "" {
		message = GetSafeErrorMessage(err)
	}
	shared.RespondWithErrorAndLog(w, r, MapErrorToStatusCode(err), message, err)
}
