// Package provider defines abstractions for remote transfer sources.
//
// Providers expose a minimal surface area focused on metadata retrieval and
// streaming reads of a single object addressed by URL. Authentication uses SDK
// default credential chains - providers should not implement custom auth logic.
package provider

import (
	"context"
	"time"
)

// Provider abstracts metadata lookups against a remote source.
//
// Implementations should:
//   - Accept fully qualified URLs for their scheme(s)
//   - Report an unknown size rather than guessing one
//   - Be safe for concurrent use
type Provider interface {
	// Head returns metadata for a single object.
	// Returns ErrNotFound if the object does not exist.
	Head(ctx context.Context, rawURL string) (*ObjectMeta, error)

	// Close releases any resources held by the provider.
	Close() error
}

// ObjectMeta contains metadata for a single remote object.
// Returned by Head operations.
type ObjectMeta struct {
	// URL is the locator the metadata was retrieved for.
	URL string

	// Size is the advertised object size in bytes. Only meaningful when
	// SizeKnown is true.
	Size int64

	// SizeKnown reports whether the remote side declared a length.
	SizeKnown bool

	// ETag is the entity tag, if the remote side returned one.
	ETag string

	// LastModified is when the object was last modified, if known.
	LastModified time.Time

	// ContentType is the MIME type of the object.
	ContentType string
}

// ProviderType identifies a remote source implementation.
type ProviderType string

const (
	// ProviderHTTP represents plain HTTP(S) origins.
	ProviderHTTP ProviderType = "http"

	// ProviderS3 represents AWS S3 or S3-compatible storage.
	ProviderS3 ProviderType = "s3"
)

// String returns the string representation of the provider type.
func (p ProviderType) String() string {
	return string(p)
}
