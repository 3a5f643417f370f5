package transfer

import (
	"context"
	"errors"
	"fmt"

	"github.com/3leaps/goferry/pkg/output"
)

// Sentinel errors identifying the kind of a transfer failure.
var (
	// ErrSourceNotFound indicates the source does not exist.
	ErrSourceNotFound = errors.New("source not found")

	// ErrDirectoryUnavailable indicates the destination directory could not be
	// created or made writable.
	ErrDirectoryUnavailable = errors.New("destination directory unavailable")

	// ErrCopyFailed indicates the byte copy could not complete.
	ErrCopyFailed = errors.New("copy failed")

	// ErrNetwork indicates a connection, DNS, timeout, read or status failure.
	ErrNetwork = errors.New("network error")

	// ErrIntegrityMismatch indicates bytes written differ from the advertised size.
	ErrIntegrityMismatch = errors.New("integrity mismatch")

	// ErrTransferFailed wraps a failed local copy.
	ErrTransferFailed = errors.New("transfer failed")

	// ErrInvalidPolicy indicates an unknown or unset conflict policy.
	ErrInvalidPolicy = errors.New("invalid conflict policy")

	// ErrInvalidLocator indicates a locator that cannot serve its role
	// (for example a remote destination).
	ErrInvalidLocator = errors.New("invalid locator")
)

// Error is a typed transfer failure.
//
// Kind is one of the sentinel errors above; Err is the underlying cause.
// errors.Is matches both.
type Error struct {
	// Op is the operation that failed (e.g., "copy", "fetch", "transfer").
	Op string

	// Kind is the sentinel identifying the failure class.
	Kind error

	// Resource is the path or URL path involved. Never a full URL.
	Resource string

	// Err is the underlying error, if any.
	Err error
}

// Error implements the error interface.
func (e *Error) Error() string {
	switch {
	case e.Resource != "" && e.Err != nil:
		return fmt.Sprintf("%s: %v: %s: %v", e.Op, e.Kind, e.Resource, e.Err)
	case e.Resource != "":
		return fmt.Sprintf("%s: %v: %s", e.Op, e.Kind, e.Resource)
	case e.Err != nil:
		return fmt.Sprintf("%s: %v: %v", e.Op, e.Kind, e.Err)
	default:
		return fmt.Sprintf("%s: %v", e.Op, e.Kind)
	}
}

// Unwrap returns the kind and the cause for errors.Is/As support.
func (e *Error) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Err}
}

// IntegrityMismatchError reports that the bytes written to the destination
// differ from the size the remote source advertised.
//
// Resource is the URL path only, so query-string credentials never reach logs.
// Err is set when the mismatch was caused by a failed read mid-stream.
type IntegrityMismatchError struct {
	Resource string
	Expected int64
	Actual   int64
	Err      error
}

func (e *IntegrityMismatchError) Error() string {
	msg := fmt.Sprintf("integrity mismatch for %s: expected=%d got=%d", e.Resource, e.Expected, e.Actual)
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

// Is reports whether target is ErrIntegrityMismatch.
func (e *IntegrityMismatchError) Is(target error) bool {
	return target == ErrIntegrityMismatch
}

// Unwrap returns the mid-stream cause, if any.
func (e *IntegrityMismatchError) Unwrap() error {
	return e.Err
}

func newError(op string, kind error, resource string, err error) *Error {
	return &Error{Op: op, Kind: kind, Resource: resource, Err: err}
}

// IsSourceNotFound returns true if the source does not exist.
func IsSourceNotFound(err error) bool {
	return errors.Is(err, ErrSourceNotFound)
}

// IsDirectoryUnavailable returns true if the destination directory could not be prepared.
func IsDirectoryUnavailable(err error) bool {
	return errors.Is(err, ErrDirectoryUnavailable)
}

// IsCopyFailed returns true if the byte copy failed.
func IsCopyFailed(err error) bool {
	return errors.Is(err, ErrCopyFailed)
}

// IsNetworkError returns true if the error came from the network path.
func IsNetworkError(err error) bool {
	return errors.Is(err, ErrNetwork)
}

// IsIntegrityMismatch returns true if verification failed.
func IsIntegrityMismatch(err error) bool {
	return errors.Is(err, ErrIntegrityMismatch)
}

// IsTransferFailed returns true if a local transfer failed.
func IsTransferFailed(err error) bool {
	return errors.Is(err, ErrTransferFailed)
}

// ErrorCode maps an error to a stable machine-readable code.
//
// The most specific kind wins: a failed local transfer whose cause is a copy
// failure reports COPY_FAILED.
func ErrorCode(err error) string {
	switch {
	case err == nil:
		return ""
	case IsIntegrityMismatch(err):
		return output.ErrCodeIntegrityMismatch
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return output.ErrCodeTimeout
	case IsSourceNotFound(err):
		return output.ErrCodeSourceNotFound
	case IsDirectoryUnavailable(err):
		return output.ErrCodeDirectoryUnavailable
	case IsCopyFailed(err):
		return output.ErrCodeCopyFailed
	case IsNetworkError(err):
		return output.ErrCodeNetwork
	case errors.Is(err, ErrInvalidPolicy), errors.Is(err, ErrInvalidLocator):
		return output.ErrCodeInvalidArgument
	case IsTransferFailed(err):
		return output.ErrCodeTransferFailed
	default:
		return output.ErrCodeInternal
	}
}
