package transfer

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"

	"go.uber.org/zap"

	"github.com/3leaps/goferry/pkg/locator"
	"github.com/3leaps/goferry/pkg/provider"
)

// FetchResult is the outcome of a remote fetch.
type FetchResult struct {
	// Destination is the final local path.
	Destination string

	// Bytes is the number of bytes written to Destination. It is the
	// authoritative count for verification.
	Bytes int64

	// Reused is true when UseExisting kept an existing destination and nothing
	// was fetched.
	Reused bool

	// DeclaredLength is the length the GET response declared, if any.
	// Informational only.
	DeclaredLength SizeSample
}

// Fetch streams a remote resource straight into a local destination.
//
// Directory preparation and conflict policy behave as in Copy. The body is
// written to the final path; a failure mid-stream leaves the partial file in
// place and returns a non-nil result with the bytes written so far alongside
// the error.
func (v *Verifier) Fetch(ctx context.Context, rawURL, destination string, policy ConflictPolicy) (*FetchResult, error) {
	if !policy.Valid() {
		return nil, newError("fetch", ErrInvalidPolicy, "", fmt.Errorf("%s", policy))
	}
	if locator.Classify(rawURL) != locator.KindRemoteURL {
		return nil, newError("fetch", ErrInvalidLocator, rawURL, errors.New("not a remote URL"))
	}
	resource := locator.ResourcePath(rawURL)

	dst, err := locator.LocalPath(destination)
	if err != nil {
		return nil, newError("fetch", ErrInvalidLocator, destination, err)
	}
	if err := prepareDir(filepath.Dir(dst)); err != nil {
		return nil, err
	}

	target, reuse, err := resolveTarget(dst, policy)
	if err != nil {
		return nil, err
	}
	if reuse {
		v.log.Debug("destination exists, keeping it", zap.String("destination", target))
		return &FetchResult{Destination: target, Reused: true}, nil
	}

	p, err := v.providers.Resolve(rawURL)
	if err != nil {
		return nil, newError("fetch", ErrNetwork, resource, err)
	}
	getter, ok := p.(provider.ObjectGetter)
	if !ok {
		return nil, newError("fetch", ErrNetwork, resource, fmt.Errorf("%s provider cannot stream objects", locator.Scheme(rawURL)))
	}

	body, declared, err := getter.GetObject(ctx, rawURL)
	if err != nil {
		if provider.IsNotFound(err) || provider.IsBucketNotFound(err) {
			return nil, newError("fetch", ErrSourceNotFound, resource, err)
		}
		return nil, newError("fetch", ErrNetwork, resource, err)
	}
	defer func() { _ = body.Close() }()

	f, target, err := createTarget(dst, target, policy)
	if err != nil {
		return nil, err
	}

	src := &readTracker{r: body}
	n, copyErr := io.Copy(f, src)
	syncErr := f.Sync()
	closeErr := f.Close()

	res := &FetchResult{Destination: target, Bytes: n}
	if declared >= 0 {
		res.DeclaredLength = KnownSize(declared)
	}

	switch {
	case copyErr != nil && src.err != nil:
		return res, newError("fetch", ErrNetwork, resource, src.err)
	case copyErr != nil:
		return res, newError("fetch", ErrCopyFailed, target, copyErr)
	case syncErr != nil:
		return res, newError("fetch", ErrCopyFailed, target, syncErr)
	case closeErr != nil:
		return res, newError("fetch", ErrCopyFailed, target, closeErr)
	}

	if res.DeclaredLength.Known && res.DeclaredLength.Bytes != n {
		v.log.Warn("response length differs from bytes written",
			zap.String("resource", resource),
			zap.Int64("expected_bytes", res.DeclaredLength.Bytes),
			zap.Int64("actual_bytes", n))
	}
	return res, nil
}

// createTarget opens the fetch destination for writing.
//
// Under Rename the file is created exclusively; if another writer claimed the
// chosen name in the meantime the next free name is tried.
func createTarget(dst, target string, policy ConflictPolicy) (*os.File, string, error) {
	flags := os.O_WRONLY | os.O_CREATE | os.O_TRUNC
	if policy == Rename {
		flags |= os.O_EXCL
	}

	for attempt := 0; ; attempt++ {
		f, err := os.OpenFile(target, flags, 0o644)
		if err == nil {
			return f, target, nil
		}
		if policy != Rename || !errors.Is(err, fs.ErrExist) || attempt >= maxRenameAttempts {
			// Refused creation of a new file is the directory's fault.
			if errors.Is(err, fs.ErrPermission) {
				if _, statErr := os.Lstat(target); errors.Is(statErr, fs.ErrNotExist) {
					return nil, "", newError("fetch", ErrDirectoryUnavailable, filepath.Dir(target), err)
				}
			}
			return nil, "", newError("fetch", ErrCopyFailed, target, err)
		}
		next, nerr := freeName(dst)
		if nerr != nil {
			return nil, "", nerr
		}
		target = next
	}
}
