package provider

import (
	"context"
	"io"
)

// Optional provider capability interfaces.
//
// These interfaces are used for feature detection (type assertions). The core
// Provider interface remains intentionally small.

// ObjectGetter can download objects as a stream.
//
// contentLength is the length declared by the response, or -1 when the remote
// side did not declare one. It is informational; callers count the bytes they
// actually read.
type ObjectGetter interface {
	GetObject(ctx context.Context, rawURL string) (body io.ReadCloser, contentLength int64, err error)
}
