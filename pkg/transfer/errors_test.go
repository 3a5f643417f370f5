package transfer

import (
	"context"
	"errors"
	"fmt"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/3leaps/goferry/pkg/output"
	"github.com/3leaps/goferry/pkg/provider"
)

func TestError_Error(t *testing.T) {
	tests := []struct {
		name     string
		err      *Error
		expected string
	}{
		{
			name:     "resource and cause",
			err:      &Error{Op: "copy", Kind: ErrCopyFailed, Resource: "/data/a.txt", Err: errors.New("disk full")},
			expected: "copy: copy failed: /data/a.txt: disk full",
		},
		{
			name:     "resource only",
			err:      &Error{Op: "transfer", Kind: ErrSourceNotFound, Resource: "/data/a.txt"},
			expected: "transfer: source not found: /data/a.txt",
		},
		{
			name:     "cause only",
			err:      &Error{Op: "transfer", Kind: ErrInvalidPolicy, Err: errors.New("ConflictPolicy(0)")},
			expected: "transfer: invalid conflict policy: ConflictPolicy(0)",
		},
		{
			name:     "bare",
			err:      &Error{Op: "fetch", Kind: ErrNetwork},
			expected: "fetch: network error",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, tt.err.Error())
		})
	}
}

func TestError_UnwrapMatchesKindAndCause(t *testing.T) {
	cause := &provider.ProviderError{Op: "GetObject", Provider: provider.ProviderHTTP, Err: provider.ErrNotFound}
	err := newError("fetch", ErrSourceNotFound, "/a.bin", cause)

	assert.True(t, IsSourceNotFound(err))
	assert.True(t, provider.IsNotFound(err))
	assert.False(t, IsNetworkError(err))

	var pe *provider.ProviderError
	assert.True(t, errors.As(err, &pe))
}

func TestTransferFailed_KeepsInnerKind(t *testing.T) {
	inner := newError("copy", ErrDirectoryUnavailable, "/ro", errors.New("permission denied"))
	err := newError("transfer", ErrTransferFailed, "/src", inner)

	assert.True(t, IsTransferFailed(err))
	assert.True(t, IsDirectoryUnavailable(err))

	var te *Error
	require.True(t, errors.As(err, &te))
	assert.Equal(t, ErrTransferFailed, te.Kind)
}

func TestIntegrityMismatchError(t *testing.T) {
	err := &IntegrityMismatchError{Resource: "/files/a.bin", Expected: 100, Actual: 40}

	assert.Equal(t, "integrity mismatch for /files/a.bin: expected=100 got=40", err.Error())
	assert.True(t, IsIntegrityMismatch(err))
	assert.False(t, IsNetworkError(err))

	wrapped := fmt.Errorf("row 3: %w", err)
	var ime *IntegrityMismatchError
	require.True(t, errors.As(wrapped, &ime))
	assert.Equal(t, int64(100), ime.Expected)
	assert.Equal(t, int64(40), ime.Actual)
}

func TestIntegrityMismatchError_WithCause(t *testing.T) {
	cause := newError("fetch", ErrNetwork, "/files/a.bin", io.ErrUnexpectedEOF)
	err := &IntegrityMismatchError{Resource: "/files/a.bin", Expected: 100, Actual: 40, Err: cause}

	assert.True(t, IsIntegrityMismatch(err))
	assert.True(t, IsNetworkError(err))
	assert.True(t, errors.Is(err, io.ErrUnexpectedEOF))
	assert.Contains(t, err.Error(), "expected=100 got=40")
}

func TestErrorCode(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want string
	}{
		{"nil", nil, ""},
		{"source not found", newError("transfer", ErrSourceNotFound, "/a", nil), output.ErrCodeSourceNotFound},
		{"directory unavailable", newError("prepare", ErrDirectoryUnavailable, "/a", nil), output.ErrCodeDirectoryUnavailable},
		{"copy failed", newError("copy", ErrCopyFailed, "/a", nil), output.ErrCodeCopyFailed},
		{"network", newError("fetch", ErrNetwork, "/a", nil), output.ErrCodeNetwork},
		{"integrity", &IntegrityMismatchError{Resource: "/a", Expected: 2, Actual: 1}, output.ErrCodeIntegrityMismatch},
		{
			"integrity over network",
			&IntegrityMismatchError{Resource: "/a", Expected: 2, Actual: 1, Err: newError("fetch", ErrNetwork, "/a", nil)},
			output.ErrCodeIntegrityMismatch,
		},
		{"transfer failed wraps copy", newError("transfer", ErrTransferFailed, "/a", newError("copy", ErrCopyFailed, "/b", nil)), output.ErrCodeCopyFailed},
		{"transfer failed bare", newError("transfer", ErrTransferFailed, "/a", errors.New("odd")), output.ErrCodeTransferFailed},
		{"invalid policy", newError("transfer", ErrInvalidPolicy, "", nil), output.ErrCodeInvalidArgument},
		{"invalid locator", newError("fetch", ErrInvalidLocator, "x", nil), output.ErrCodeInvalidArgument},
		{"cancelled network", newError("fetch", ErrNetwork, "/a", context.Canceled), output.ErrCodeTimeout},
		{"deadline", context.DeadlineExceeded, output.ErrCodeTimeout},
		{"unknown", errors.New("boom"), output.ErrCodeInternal},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ErrorCode(tt.err))
		})
	}
}
