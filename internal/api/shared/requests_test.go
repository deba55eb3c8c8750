package shared

import (
	"bytes"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type sampleRequest struct {
	Name     string `json:"name"     validate:"required"`
	Priority int    `json:"priority" validate:"gte=0,lte=10"`
}

func TestDecodeJSON(t *testing.T) {
	tests := []struct {
		name        string
		requestBody string
		wantErr     bool
		errContains string
	}{
		{
			name:        "valid json",
			requestBody: `{"name": "test", "priority": 3}`,
			wantErr:     false,
		},
		{
			name:        "invalid json",
			requestBody: `{"name": "test", "priority": 3,}`, // trailing comma
			wantErr:     true,
			errContains: "invalid character",
		},
		{
			name:        "empty body",
			requestBody: "",
			wantErr:     true,
			errContains: "EOF",
		},
		{
			name:        "unknown field",
			requestBody: `{"name": "test", "colour": "blue"}`,
			wantErr:     true,
			errContains: "unknown field",
		},
		{
			name:        "trailing value",
			requestBody: `{"name": "test"} {"name": "again"}`,
			wantErr:     true,
			errContains: "single JSON value",
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/test", bytes.NewBufferString(tc.requestBody))

			var target sampleRequest
			err := DecodeJSON(req, &target)

			if tc.wantErr {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tc.errContains)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, "test", target.Name)
			assert.Equal(t, 3, target.Priority)
		})
	}
}

// errorReader fails every read
type errorReader struct{}

func (er errorReader) Read(p []byte) (n int, err error) {
	return 0, io.ErrUnexpectedEOF
}

func TestDecodeJSONWithReadError(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "/test", errorReader{})

	var target struct{}
	err := DecodeJSON(req, &target)

	assert.Error(t, err)
	assert.Contains(t, err.Error(), "unexpected EOF")
}

type selfValidating struct {
	Name string
}

func (v *selfValidating) Validate() error {
	if v.Name == "invalid" {
		return errors.New("name is invalid")
	}
	return nil
}

func TestValidateRequest(t *testing.T) {
	tests := []struct {
		name    string
		req     interface{}
		wantErr bool
	}{
		{name: "valid request with validator", req: &selfValidating{Name: "test"}},
		{name: "invalid request with validator", req: &selfValidating{Name: "invalid"}, wantErr: true},
		{name: "valid struct tags", req: &sampleRequest{Name: "x", Priority: 2}},
		{name: "missing required field", req: &sampleRequest{Priority: 2}, wantErr: true},
		{name: "out of range", req: &sampleRequest{Name: "x", Priority: 11}, wantErr: true},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			err := ValidateRequest(tc.req)
			if tc.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestValidationMessage(t *testing.T) {
	err := ValidateRequest(&sampleRequest{Priority: 11})
	require.Error(t, err)

	msg := ValidationMessage(err)
	assert.Contains(t, msg, "name failed required")
	assert.Contains(t, msg, "priority failed lte=10")

	assert.Equal(t, "Invalid request", ValidationMessage(errors.New("plain")))
}
