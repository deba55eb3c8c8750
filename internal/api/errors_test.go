package api

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/shakurocom/iOS-Toolbox-sub000/internal/api/shared"
	"github.com/shakurocom/iOS-Toolbox-sub000/internal/task"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMapErrorToStatusCode(t *testing.T) {
	validationErr := shared.ValidateRequest(&SubmitOperationRequest{Priority: 1000})
	require.Error(t, validationErr)

	tests := []struct {
		name   string
		err    error
		status int
		msg    string
	}{
		{"not found", ErrOperationNotFound, http.StatusNotFound, "Operation not found"},
		{"wrapped not found", fmt.Errorf("lookup: %w", ErrOperationNotFound), http.StatusNotFound, "Operation not found"},
		{"invalid id", ErrInvalidID, http.StatusBadRequest, "Invalid operation ID"},
		{"unknown dependency", ErrUnknownDependency, http.StatusBadRequest, "Dependency refers to an unknown operation"},
		{"validation", validationErr, http.StatusBadRequest, "Invalid request"},
		{"queue full", task.ErrQueueFull, http.StatusServiceUnavailable, "Operation queue is full"},
		{"queue closed", task.ErrQueueClosed, http.StatusServiceUnavailable, "Task manager is shutting down"},
		{"unknown", errors.New("boom"), http.StatusInternalServerError, "An unexpected error occurred"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.status, MapErrorToStatusCode(tc.err))
			assert.Equal(t, tc.msg, GetSafeErrorMessage(tc.err))
		})
	}
}

func TestGetSafeErrorMessageNil(t *testing.T) {
	assert.Equal(t, "An unexpected error occurred", GetSafeErrorMessage(nil))
}
