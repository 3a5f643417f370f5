package manifest

import (
	"fmt"
	"net/url"
	"path"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/3leaps/goferry/pkg/locator"
)

// SourceKey is the part of a source locator that templates and exclude
// patterns see.
type SourceKey struct {
	// Host is the URL host (the bucket for s3://). Empty for local sources.
	Host string

	// Key is the slash-separated path without a leading slash.
	Key string
}

// KeyOf derives the SourceKey of a locator.
func KeyOf(loc string) (SourceKey, error) {
	if !locator.Classify(loc).IsLocal() {
		u, err := url.Parse(loc)
		if err != nil {
			return SourceKey{}, fmt.Errorf("parse source %q: %w", locator.Redact(loc), err)
		}
		return SourceKey{Host: u.Host, Key: strings.TrimPrefix(u.Path, "/")}, nil
	}

	p, err := locator.LocalPath(loc)
	if err != nil {
		return SourceKey{}, err
	}
	p = strings.TrimPrefix(p, filepath.VolumeName(p))
	return SourceKey{Key: strings.TrimPrefix(filepath.ToSlash(p), "/")}, nil
}

type templatePart interface {
	append(dst *strings.Builder, src SourceKey) error
}

type literalPart string

type filenamePart struct{}

type keyPart struct{}

type hostPart struct{}

type dirPart struct{ idx int }

func (p literalPart) append(dst *strings.Builder, _ SourceKey) error {
	dst.WriteString(string(p))
	return nil
}

func (filenamePart) append(dst *strings.Builder, src SourceKey) error {
	_, filename := splitKey(src.Key)
	if filename == "" {
		return fmt.Errorf("{filename} is empty for %q", src.Key)
	}
	dst.WriteString(filename)
	return nil
}

func (keyPart) append(dst *strings.Builder, src SourceKey) error {
	dst.WriteString(src.Key)
	return nil
}

func (hostPart) append(dst *strings.Builder, src SourceKey) error {
	if src.Host == "" {
		return fmt.Errorf("{host} is empty for local source %q", src.Key)
	}
	dst.WriteString(src.Host)
	return nil
}

func (p dirPart) append(dst *strings.Builder, src SourceKey) error {
	dirs, _ := splitKey(src.Key)
	if p.idx < 0 || p.idx >= len(dirs) {
		return fmt.Errorf("dir[%d] out of range for %q", p.idx, src.Key)
	}
	dst.WriteString(dirs[p.idx])
	return nil
}

// Template maps a source key to a relative destination path.
//
// Supported placeholders:
//   - {filename}: final path segment
//   - {dir[n]}: nth directory component (0-based)
//   - {key}: full source key
//   - {host}: URL host, or bucket for s3:// sources
type Template struct {
	parts []templatePart
}

// CompileTemplate parses a template string. An empty template is {key}.
func CompileTemplate(template string) (*Template, error) {
	if template == "" {
		return &Template{parts: []templatePart{keyPart{}}}, nil
	}

	var parts []templatePart
	s := template
	for len(s) > 0 {
		open := strings.IndexByte(s, '{')
		if open == -1 {
			parts = append(parts, literalPart(s))
			break
		}
		if open > 0 {
			parts = append(parts, literalPart(s[:open]))
			s = s[open:]
		}

		closeIdx := strings.IndexByte(s, '}')
		if closeIdx == -1 {
			return nil, fmt.Errorf("unclosed placeholder in %q", template)
		}
		part, err := parsePlaceholder(s[1:closeIdx])
		if err != nil {
			return nil, err
		}
		parts = append(parts, part)
		s = s[closeIdx+1:]
	}

	return &Template{parts: parts}, nil
}

// Apply renders the template for src. The result is a clean relative
// slash path that cannot climb out of its root.
func (t *Template) Apply(src SourceKey) (string, error) {
	var b strings.Builder
	for _, part := range t.parts {
		if err := part.append(&b, src); err != nil {
			return "", err
		}
	}

	out := path.Clean("/" + b.String())
	out = strings.TrimPrefix(out, "/")
	if out == "" || out == "." {
		return "", fmt.Errorf("template produced empty path for %q", src.Key)
	}
	for _, seg := range strings.Split(b.String(), "/") {
		if seg == ".." {
			return "", fmt.Errorf("template produced path traversal for %q", src.Key)
		}
	}
	return out, nil
}

func parsePlaceholder(p string) (templatePart, error) {
	switch {
	case p == "filename":
		return filenamePart{}, nil
	case p == "key":
		return keyPart{}, nil
	case p == "host":
		return hostPart{}, nil
	case strings.HasPrefix(p, "dir[") && strings.HasSuffix(p, "]"):
		nStr := strings.TrimSuffix(strings.TrimPrefix(p, "dir["), "]")
		idx, err := strconv.Atoi(nStr)
		if err != nil || idx < 0 {
			return nil, fmt.Errorf("invalid dir index %q", nStr)
		}
		return dirPart{idx: idx}, nil
	default:
		return nil, fmt.Errorf("unsupported placeholder {%s}", p)
	}
}

func splitKey(key string) (dirs []string, filename string) {
	trimmed := strings.TrimSuffix(key, "/")
	if trimmed == "" {
		return nil, ""
	}
	parts := strings.Split(trimmed, "/")
	return parts[:len(parts)-1], parts[len(parts)-1]
}
