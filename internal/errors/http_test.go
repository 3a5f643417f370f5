package errors

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/3leaps/goferry/pkg/transfer"
)

func decode(t *testing.T, rec *httptest.ResponseRecorder) HTTPErrorResponse {
	t.Helper()
	var body HTTPErrorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	return body
}

func TestWriteError(t *testing.T) {
	rec := httptest.NewRecorder()
	rec.Header().Set(RequestIDHeader, "req-1")

	WriteError(rec, http.StatusBadRequest, CodeBadRequest, "bad", map[string]any{"field": "source"})

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))

	body := decode(t, rec)
	assert.Equal(t, CodeBadRequest, body.Error.Code)
	assert.Equal(t, "bad", body.Error.Message)
	assert.Equal(t, "source", body.Error.Details["field"])
	assert.Equal(t, "req-1", body.Error.RequestID)
}

func TestStatusFor(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		status int
		code   string
	}{
		{"source not found", fmt.Errorf("x: %w", transfer.ErrSourceNotFound), http.StatusNotFound, "SOURCE_NOT_FOUND"},
		{"invalid locator", transfer.ErrInvalidLocator, http.StatusBadRequest, "INVALID_ARGUMENT"},
		{"invalid policy", transfer.ErrInvalidPolicy, http.StatusBadRequest, "INVALID_ARGUMENT"},
		{"network", transfer.ErrNetwork, http.StatusBadGateway, "NETWORK_ERROR"},
		{"integrity", &transfer.IntegrityMismatchError{Resource: "/a", Expected: 2, Actual: 1}, http.StatusBadGateway, "INTEGRITY_MISMATCH"},
		{"directory", transfer.ErrDirectoryUnavailable, http.StatusInternalServerError, "DIRECTORY_UNAVAILABLE"},
		{"deadline", context.DeadlineExceeded, http.StatusGatewayTimeout, "TIMEOUT"},
		{"cancelled", context.Canceled, http.StatusServiceUnavailable, "TIMEOUT"},
		{"other", assert.AnError, http.StatusInternalServerError, CodeInternal},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			status, code := StatusFor(tt.err)
			assert.Equal(t, tt.status, status)
			assert.Equal(t, tt.code, code)
		})
	}
}

func TestRespondWithError_IntegrityDetails(t *testing.T) {
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/v1/transfers", nil)

	RespondWithError(rec, req, &transfer.IntegrityMismatchError{Resource: "/file.bin", Expected: 100, Actual: 40})

	assert.Equal(t, http.StatusBadGateway, rec.Code)
	body := decode(t, rec)
	assert.Equal(t, "INTEGRITY_MISMATCH", body.Error.Code)
	assert.Equal(t, "/file.bin", body.Error.Details["resource"])
	assert.Equal(t, float64(100), body.Error.Details["expected_bytes"])
	assert.Equal(t, float64(40), body.Error.Details["actual_bytes"])
}

func TestRouterHandlers(t *testing.T) {
	rec := httptest.NewRecorder()
	NotFound(rec, httptest.NewRequest(http.MethodGet, "/nope", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, CodeNotFound, decode(t, rec).Error.Code)

	rec = httptest.NewRecorder()
	MethodNotAllowed(rec, httptest.NewRequest(http.MethodDelete, "/version", nil))
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
	assert.Equal(t, CodeMethodNotAllowed, decode(t, rec).Error.Code)
}
