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
)

// copyResult is the outcome of a local copy.
type copyResult struct {
	Destination string
	Bytes       int64
	Skipped     bool
	Reused      bool
}

// Copy copies a local source to a local destination and returns the final
// destination path, which differs from destination under Rename.
//
// Copying a file onto itself is a no-op that returns destination as given.
// Content is written to a temporary
// file in the destination directory and renamed into place, so a failed copy
// never leaves a partial file at the returned path.
func (v *Verifier) Copy(ctx context.Context, source, destination string, policy ConflictPolicy) (string, error) {
	res, err := v.copyLocal(ctx, source, destination, policy)
	if err != nil {
		return "", err
	}
	return res.Destination, nil
}

func (v *Verifier) copyLocal(ctx context.Context, source, destination string, policy ConflictPolicy) (*copyResult, error) {
	if !policy.Valid() {
		return nil, newError("copy", ErrInvalidPolicy, "", fmt.Errorf("%s", policy))
	}
	src, err := locator.LocalPath(source)
	if err != nil {
		return nil, newError("copy", ErrInvalidLocator, source, err)
	}
	dst, err := locator.LocalPath(destination)
	if err != nil {
		return nil, newError("copy", ErrInvalidLocator, destination, err)
	}

	info, err := os.Stat(src)
	if err != nil {
		return nil, newError("copy", ErrSourceNotFound, src, err)
	}
	if !info.Mode().IsRegular() {
		return nil, newError("copy", ErrSourceNotFound, src, errors.New("not a regular file"))
	}

	if locator.SameLocation(src, dst) {
		return &copyResult{Destination: destination, Skipped: true}, nil
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
		return &copyResult{Destination: target, Reused: true}, nil
	}

	n, err := copyFile(ctx, src, target, info.Mode().Perm())
	if err != nil {
		return nil, err
	}
	return &copyResult{Destination: target, Bytes: n}, nil
}

// copyFile writes src into a temp file beside target, syncs it and renames it
// into place. The temp file is removed on any failure.
func copyFile(ctx context.Context, src, target string, perm fs.FileMode) (n int64, err error) {
	in, err := os.Open(src)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return 0, newError("copy", ErrSourceNotFound, src, err)
		}
		return 0, newError("copy", ErrCopyFailed, src, err)
	}
	defer func() { _ = in.Close() }()

	dir := filepath.Dir(target)
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(target)+".goferry-*")
	if err != nil {
		return 0, newError("copy", ErrDirectoryUnavailable, dir, err)
	}
	tmpName := tmp.Name()
	committed := false
	defer func() {
		if !committed {
			_ = tmp.Close()
			_ = os.Remove(tmpName)
		}
	}()

	n, err = io.Copy(tmp, ctxReader{ctx: ctx, r: in})
	if err != nil {
		return n, newError("copy", ErrCopyFailed, target, err)
	}
	if err := tmp.Sync(); err != nil {
		return n, newError("copy", ErrCopyFailed, target, err)
	}
	if err := tmp.Close(); err != nil {
		return n, newError("copy", ErrCopyFailed, target, err)
	}
	if err := os.Chmod(tmpName, perm); err != nil {
		return n, newError("copy", ErrCopyFailed, target, err)
	}
	if err := os.Rename(tmpName, target); err != nil {
		return n, newError("copy", ErrCopyFailed, target, err)
	}
	committed = true
	return n, nil
}
