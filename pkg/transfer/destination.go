package transfer

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
)

// maxRenameAttempts bounds the name_N.ext search under Rename.
const maxRenameAttempts = 10000

// prepareDir makes sure dir exists and the calling user can create files in
// it.
//
// A missing directory is created with 0o755. An existing directory without
// owner write permission gets it added, then the directory is checked with a
// temporary file. Any failure is ErrDirectoryUnavailable.
func prepareDir(dir string) error {
	info, err := os.Stat(dir)
	switch {
	case err == nil:
		if !info.IsDir() {
			return newError("prepare", ErrDirectoryUnavailable, dir, errors.New("not a directory"))
		}
		perm := info.Mode().Perm()
		if perm&0o200 == 0 {
			if err := os.Chmod(dir, perm|0o700); err != nil {
				return newError("prepare", ErrDirectoryUnavailable, dir, err)
			}
		}
		if err := checkWritable(dir); err != nil {
			return newError("prepare", ErrDirectoryUnavailable, dir, err)
		}
		return nil
	case errors.Is(err, fs.ErrNotExist):
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return newError("prepare", ErrDirectoryUnavailable, dir, err)
		}
		return nil
	default:
		return newError("prepare", ErrDirectoryUnavailable, dir, err)
	}
}

// checkWritable creates and removes an empty file in dir.
func checkWritable(dir string) error {
	f, err := os.CreateTemp(dir, ".goferry-check-*")
	if err != nil {
		return err
	}
	name := f.Name()
	_ = f.Close()
	return os.Remove(name)
}

// resolveTarget applies policy to the requested destination path.
//
// reuse is true when the destination exists and policy is UseExisting.
func resolveTarget(dst string, policy ConflictPolicy) (target string, reuse bool, err error) {
	info, err := os.Lstat(dst)
	if errors.Is(err, fs.ErrNotExist) {
		return dst, false, nil
	}
	if err != nil {
		return "", false, newError("resolve", ErrCopyFailed, dst, err)
	}
	if info.IsDir() {
		return "", false, newError("resolve", ErrCopyFailed, dst, errors.New("destination is a directory"))
	}

	switch policy {
	case Replace:
		return dst, false, nil
	case UseExisting:
		return dst, true, nil
	case Rename:
		name, err := freeName(dst)
		return name, false, err
	default:
		return "", false, newError("resolve", ErrInvalidPolicy, dst, fmt.Errorf("%s", policy))
	}
}

// freeName returns the first name_N.ext next to dst, N counting from 0,
// that does not exist.
func freeName(dst string) (string, error) {
	dir, base := filepath.Split(dst)
	ext := filepath.Ext(base)
	if ext == base {
		// Dotfiles such as ".env" have no extension.
		ext = ""
	}
	stem := strings.TrimSuffix(base, ext)

	for i := 0; i < maxRenameAttempts; i++ {
		candidate := filepath.Join(dir, fmt.Sprintf("%s_%d%s", stem, i, ext))
		if _, err := os.Lstat(candidate); errors.Is(err, fs.ErrNotExist) {
			return candidate, nil
		}
	}
	return "", newError("resolve", ErrCopyFailed, dst, fmt.Errorf("no free name after %d attempts", maxRenameAttempts))
}

// ctxReader fails reads once ctx is done.
type ctxReader struct {
	ctx context.Context
	r   io.Reader
}

func (c ctxReader) Read(p []byte) (int, error) {
	if err := c.ctx.Err(); err != nil {
		return 0, err
	}
	return c.r.Read(p)
}

// readTracker remembers the first read error so callers can tell a failing
// source apart from a failing destination after io.Copy.
type readTracker struct {
	r   io.Reader
	err error
}

func (t *readTracker) Read(p []byte) (int, error) {
	n, err := t.r.Read(p)
	if err != nil && err != io.EOF && t.err == nil {
		t.err = err
	}
	return n, err
}
