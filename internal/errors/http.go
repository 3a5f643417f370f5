// Package errors renders the HTTP error envelope shared by every server
// response and maps transfer errors onto HTTP statuses.
package errors

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"net/http"

	"github.com/3leaps/goferry/pkg/output"
	"github.com/3leaps/goferry/pkg/transfer"
)

// RequestIDHeader carries the request correlation ID.
const RequestIDHeader = "X-Request-ID"

// HTTP-only error codes. Transfer failures use the codes in pkg/output.
const (
	CodeBadRequest         = "BAD_REQUEST"
	CodeNotFound           = "NOT_FOUND"
	CodeMethodNotAllowed   = "METHOD_NOT_ALLOWED"
	CodeInternal           = "INTERNAL_ERROR"
	CodeServiceUnavailable = "SERVICE_UNAVAILABLE"
)

// HTTPErrorResponse is the envelope for every error response.
type HTTPErrorResponse struct {
	Error ErrorBody `json:"error"`
}

// ErrorBody is the payload of HTTPErrorResponse.
type ErrorBody struct {
	Code      string         `json:"code"`
	Message   string         `json:"message"`
	Details   map[string]any `json:"details,omitempty"`
	RequestID string         `json:"request_id,omitempty"`
}

// WriteError writes an error envelope with the given status. The request ID
// is taken from the response header set by the request ID middleware.
func WriteError(w http.ResponseWriter, status int, code, message string, details map[string]any) {
	body := HTTPErrorResponse{Error: ErrorBody{
		Code:      code,
		Message:   message,
		Details:   details,
		RequestID: w.Header().Get(RequestIDHeader),
	}}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

// RespondWithError writes the envelope for err.
func RespondWithError(w http.ResponseWriter, r *http.Request, err error) {
	status, code := StatusFor(err)
	WriteError(w, status, code, err.Error(), DetailsFor(err))
}

// NotFound is the router's 404 handler.
func NotFound(w http.ResponseWriter, r *http.Request) {
	WriteError(w, http.StatusNotFound, CodeNotFound, "no route for "+r.Method+" "+r.URL.Path, nil)
}

// MethodNotAllowed is the router's 405 handler.
func MethodNotAllowed(w http.ResponseWriter, r *http.Request) {
	WriteError(w, http.StatusMethodNotAllowed, CodeMethodNotAllowed, "method "+r.Method+" not allowed on "+r.URL.Path, nil)
}

// StatusFor maps an error to an HTTP status and a stable code.
func StatusFor(err error) (int, string) {
	code := transfer.ErrorCode(err)
	switch code {
	case output.ErrCodeSourceNotFound:
		return http.StatusNotFound, code
	case output.ErrCodeInvalidArgument:
		return http.StatusBadRequest, code
	case output.ErrCodeIntegrityMismatch, output.ErrCodeNetwork:
		return http.StatusBadGateway, code
	case output.ErrCodeDirectoryUnavailable, output.ErrCodeCopyFailed, output.ErrCodeTransferFailed:
		return http.StatusInternalServerError, code
	case output.ErrCodeTimeout:
		if stderrors.Is(err, context.DeadlineExceeded) {
			return http.StatusGatewayTimeout, code
		}
		return http.StatusServiceUnavailable, code
	default:
		return http.StatusInternalServerError, CodeInternal
	}
}

// DetailsFor returns structured context for errors that carry it.
func DetailsFor(err error) map[string]any {
	var ime *transfer.IntegrityMismatchError
	if stderrors.As(err, &ime) {
		return map[string]any{
			"resource":       ime.Resource,
			"expected_bytes": ime.Expected,
			"actual_bytes":   ime.Actual,
		}
	}
	return nil
}
