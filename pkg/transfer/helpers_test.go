package transfer

import (
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

// origin is a configurable HTTP source for tests.
type origin struct {
	// headLength is advertised on HEAD; negative means HEAD is refused (405).
	headLength int64

	// body is served on GET.
	body string

	// declare sends Content-Length on GET (otherwise the body is chunked).
	declare bool

	// truncateAt, when > 0, declares len(body) but stops writing after that
	// many bytes and drops the connection.
	truncateAt int

	// status overrides the GET status when non-zero.
	status int

	heads atomic.Int32
	gets  atomic.Int32
}

func (o *origin) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodHead:
		o.heads.Add(1)
		if o.headLength < 0 {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		w.Header().Set("Content-Length", strconv.FormatInt(o.headLength, 10))
		w.WriteHeader(http.StatusOK)
	case http.MethodGet:
		o.gets.Add(1)
		if o.status != 0 {
			w.WriteHeader(o.status)
			return
		}
		if o.truncateAt > 0 {
			w.Header().Set("Content-Length", strconv.Itoa(len(o.body)))
			_, _ = io.WriteString(w, o.body[:o.truncateAt])
			return
		}
		if o.declare {
			w.Header().Set("Content-Length", strconv.Itoa(len(o.body)))
			_, _ = io.WriteString(w, o.body)
			return
		}
		_, _ = io.WriteString(w, o.body)
		if f, ok := w.(http.Flusher); ok {
			f.Flush()
		}
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

func newOrigin(t *testing.T, o *origin) string {
	t.Helper()
	srv := httptest.NewServer(o)
	t.Cleanup(srv.Close)
	return srv.URL
}

// newVerifier returns a Verifier whose logs are captured at debug level.
func newVerifier(t *testing.T) (*Verifier, *observer.ObservedLogs) {
	t.Helper()
	core, logs := observer.New(zap.DebugLevel)
	return New(Options{Logger: zap.New(core)}), logs
}

type doerFunc func(*http.Request) (*http.Response, error)

func (f doerFunc) Do(req *http.Request) (*http.Response, error) { return f(req) }

// newVerifierWithDoer routes every HTTP request through fn.
func newVerifierWithDoer(t *testing.T, fn doerFunc) (*Verifier, *observer.ObservedLogs) {
	t.Helper()
	core, logs := observer.New(zap.DebugLevel)
	return New(Options{Logger: zap.New(core), HTTPClient: fn}), logs
}

// stubResponse builds a response whose declared length may disagree with body.
func stubResponse(req *http.Request, status int, body string, declared int64) *http.Response {
	return &http.Response{
		StatusCode:    status,
		Status:        http.StatusText(status),
		Header:        make(http.Header),
		Body:          io.NopCloser(strings.NewReader(body)),
		ContentLength: declared,
		Request:       req,
	}
}

// closedURL returns the base URL of a server that is no longer listening.
func closedURL(t *testing.T) string {
	t.Helper()
	srv := httptest.NewServer(http.NotFoundHandler())
	u := srv.URL
	srv.Close()
	return u
}

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

func readFile(t *testing.T, path string) string {
	t.Helper()
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	return string(data)
}

func listDir(t *testing.T, dir string) []string {
	t.Helper()
	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		names = append(names, e.Name())
	}
	return names
}

func repeat(s string, n int) string {
	return strings.Repeat(s, n)
}
