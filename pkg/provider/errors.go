package provider

import (
	"errors"
	"fmt"
)

// Sentinel errors for provider operations.
var (
	// ErrNotFound indicates the requested object does not exist.
	ErrNotFound = errors.New("object not found")

	// ErrAccessDenied indicates insufficient permissions.
	ErrAccessDenied = errors.New("access denied")

	// ErrBucketNotFound indicates the bucket does not exist.
	ErrBucketNotFound = errors.New("bucket not found")

	// ErrInvalidCredentials indicates authentication failed.
	ErrInvalidCredentials = errors.New("invalid credentials")

	// ErrProviderUnavailable indicates the remote service is unavailable.
	ErrProviderUnavailable = errors.New("provider unavailable")

	// ErrThrottled indicates the request was rate limited by the remote side.
	ErrThrottled = errors.New("request throttled")

	// ErrUnexpectedStatus indicates a response status with no specific mapping.
	ErrUnexpectedStatus = errors.New("unexpected response status")

	// ErrUnsupportedScheme indicates no provider is registered for a URL scheme.
	ErrUnsupportedScheme = errors.New("unsupported scheme")

	// ErrInvalidURL indicates a locator could not be parsed for this provider.
	ErrInvalidURL = errors.New("invalid url")
)

// ProviderError wraps provider-specific errors with context.
type ProviderError struct {
	// Op is the operation that failed (e.g., "Head", "GetObject").
	Op string

	// Provider is the provider type (e.g., "s3").
	Provider ProviderType

	// Resource is the URL path (or bucket/key) the operation targeted.
	Resource string

	// StatusCode is the HTTP status code, when one was received.
	StatusCode int

	// Err is the underlying error.
	Err error
}

// Error implements the error interface.
func (e *ProviderError) Error() string {
	switch {
	case e.Resource != "" && e.StatusCode != 0:
		return fmt.Sprintf("%s %s: %s: status %d: %v", e.Provider, e.Op, e.Resource, e.StatusCode, e.Err)
	case e.Resource != "":
		return fmt.Sprintf("%s %s: %s: %v", e.Provider, e.Op, e.Resource, e.Err)
	default:
		return fmt.Sprintf("%s %s: %v", e.Provider, e.Op, e.Err)
	}
}

// Unwrap returns the underlying error for errors.Is/As support.
func (e *ProviderError) Unwrap() error {
	return e.Err
}

// IsNotFound returns true if the error indicates an object was not found.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// IsAccessDenied returns true if the error indicates insufficient permissions.
func IsAccessDenied(err error) bool {
	return errors.Is(err, ErrAccessDenied)
}

// IsBucketNotFound returns true if the error indicates the bucket does not exist.
func IsBucketNotFound(err error) bool {
	return errors.Is(err, ErrBucketNotFound)
}

// IsInvalidCredentials returns true if the error indicates authentication failed.
func IsInvalidCredentials(err error) bool {
	return errors.Is(err, ErrInvalidCredentials)
}

// IsProviderUnavailable returns true if the error indicates the remote service is unavailable.
func IsProviderUnavailable(err error) bool {
	return errors.Is(err, ErrProviderUnavailable)
}

// IsThrottled returns true if the error indicates the request was rate limited.
func IsThrottled(err error) bool {
	return errors.Is(err, ErrThrottled)
}

// IsUnsupportedScheme returns true if no provider handles the URL scheme.
func IsUnsupportedScheme(err error) bool {
	return errors.Is(err, ErrUnsupportedScheme)
}
