// Package locator classifies transfer endpoints and decides whether two
// endpoints denote the same filesystem entry.
//
// A locator is a plain string: an absolute or relative filesystem path, a
// file:// URI, or a remote URL (http, https, s3, ...). Classification is a pure
// function of the string; nothing is cached on the value.
package locator

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
)

// Kind is the derived classification of a locator.
type Kind int

const (
	// KindLocalPath is a plain filesystem path.
	KindLocalPath Kind = iota

	// KindLocalURI is a file:// URI.
	KindLocalURI

	// KindRemoteURL is anything reachable only over the network.
	KindRemoteURL
)

// String returns the string representation of the kind.
func (k Kind) String() string {
	switch k {
	case KindLocalPath:
		return "local-path"
	case KindLocalURI:
		return "local-uri"
	case KindRemoteURL:
		return "remote-url"
	default:
		return "unknown"
	}
}

// IsLocal reports whether the kind resolves to a filesystem entry.
func (k Kind) IsLocal() bool {
	return k == KindLocalPath || k == KindLocalURI
}

// ErrNotLocal indicates a remote locator was used where a local one is required.
var ErrNotLocal = errors.New("locator is not local")

// Classify returns the kind of the locator.
//
// file:// is local; any other scheme:// (http, https, s3, or an unknown one)
// is remote. Unknown schemes fail open to the network path, which performs its
// own existence checks. Strings without a scheme, including Windows drive
// paths such as C:\data, are local paths.
func Classify(loc string) Kind {
	scheme, ok := schemeOf(loc)
	if !ok {
		return KindLocalPath
	}
	if scheme == "file" {
		return KindLocalURI
	}
	return KindRemoteURL
}

// Scheme returns the lower-cased scheme of the locator, or "" for plain paths.
func Scheme(loc string) string {
	scheme, _ := schemeOf(loc)
	return scheme
}

func schemeOf(loc string) (string, bool) {
	idx := strings.Index(loc, "://")
	if idx <= 0 {
		return "", false
	}
	scheme := loc[:idx]
	// A scheme is ALPHA *( ALPHA / DIGIT / "+" / "-" / "." ).
	for i, r := range scheme {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z':
		case i > 0 && (r >= '0' && r <= '9' || r == '+' || r == '-' || r == '.'):
		default:
			return "", false
		}
	}
	return strings.ToLower(scheme), true
}

// LocalPath converts a local path or file:// URI into a cleaned OS path.
//
// Relative paths stay relative; use Normalize for an absolute form.
func LocalPath(loc string) (string, error) {
	switch Classify(loc) {
	case KindLocalPath:
		if strings.TrimSpace(loc) == "" {
			return "", fmt.Errorf("empty locator")
		}
		return filepath.Clean(loc), nil
	case KindLocalURI:
		u, err := url.Parse(loc)
		if err != nil {
			return "", fmt.Errorf("invalid file URI %q: %w", loc, err)
		}
		if u.Host != "" && u.Host != "localhost" {
			return "", fmt.Errorf("file URI %q names remote host %q", loc, u.Host)
		}
		path := u.Path
		if u.RawPath != "" {
			if unescaped, err := url.PathUnescape(u.RawPath); err == nil {
				path = unescaped
			}
		}
		if path == "" {
			return "", fmt.Errorf("file URI %q has no path", loc)
		}
		// file:///C:/data -> C:/data on Windows-style paths.
		if len(path) >= 3 && path[0] == '/' && path[2] == ':' {
			path = path[1:]
		}
		return filepath.Clean(filepath.FromSlash(path)), nil
	default:
		return "", fmt.Errorf("%w: %s", ErrNotLocal, loc)
	}
}

// Normalize resolves a local locator to an absolute, cleaned path.
//
// When the entry (or its parent directory) exists, symlinks are resolved so
// that two spellings of the same entry normalize identically.
func Normalize(loc string) (string, error) {
	p, err := LocalPath(loc)
	if err != nil {
		return "", err
	}
	abs, err := filepath.Abs(p)
	if err != nil {
		return "", fmt.Errorf("resolve %q: %w", loc, err)
	}
	if resolved, err := filepath.EvalSymlinks(abs); err == nil {
		return resolved, nil
	}
	dir, base := filepath.Split(abs)
	if resolvedDir, err := filepath.EvalSymlinks(dir); err == nil {
		return filepath.Join(resolvedDir, base), nil
	}
	return abs, nil
}

// SameLocation reports whether a and b denote the identical filesystem entry.
//
// Remote locators are never the same location. When both entries exist the
// answer comes from os.SameFile, which also covers hard links.
func SameLocation(a, b string) bool {
	if !Classify(a).IsLocal() || !Classify(b).IsLocal() {
		return false
	}
	na, err := Normalize(a)
	if err != nil {
		return false
	}
	nb, err := Normalize(b)
	if err != nil {
		return false
	}
	if na == nb {
		return true
	}
	sa, errA := os.Stat(na)
	sb, errB := os.Stat(nb)
	if errA != nil || errB != nil {
		return false
	}
	return os.SameFile(sa, sb)
}

// ResourcePath returns the path component of a remote URL, without host,
// user info or query string. It is safe to log.
func ResourcePath(loc string) string {
	u, err := url.Parse(loc)
	if err != nil || u.Path == "" {
		if i := strings.IndexAny(loc, "?#"); i >= 0 {
			loc = loc[:i]
		}
		if j := strings.Index(loc, "://"); j >= 0 {
			rest := loc[j+3:]
			if k := strings.Index(rest, "/"); k >= 0 {
				return rest[k:]
			}
			return "/"
		}
		return loc
	}
	return u.Path
}

// Redact strips user info, query string and fragment from remote URLs so the
// result can be logged. Local locators are returned unchanged.
func Redact(loc string) string {
	if Classify(loc) != KindRemoteURL {
		return loc
	}
	u, err := url.Parse(loc)
	if err != nil {
		return Scheme(loc) + "://" + ResourcePath(loc)
	}
	u.User = nil
	u.RawQuery = ""
	u.ForceQuery = false
	u.Fragment = ""
	u.RawFragment = ""
	return u.String()
}
