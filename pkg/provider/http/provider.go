// Package http implements the provider interface for plain HTTP(S) origins.
package http

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/3leaps/goferry/pkg/locator"
	"github.com/3leaps/goferry/pkg/provider"
)

// DefaultUserAgent is sent when Config.UserAgent is empty.
const DefaultUserAgent = "goferry"

// DefaultHeadTimeout bounds a single HEAD request when Config.HeadTimeout is zero.
const DefaultHeadTimeout = 30 * time.Second

// Doer executes HTTP requests. *http.Client satisfies it.
type Doer interface {
	Do(req *http.Request) (*http.Response, error)
}

// Config configures an HTTP provider.
type Config struct {
	// Client executes requests. Nil uses an http.Client with Timeout applied.
	Client Doer

	// Timeout bounds a whole GET (headers and body) when Client is nil.
	// Zero means no client-level timeout; callers still bound work via ctx.
	Timeout time.Duration

	// HeadTimeout bounds a single HEAD request.
	HeadTimeout time.Duration

	// UserAgent is sent with every request.
	UserAgent string
}

// Provider implements provider.Provider for http and https URLs.
type Provider struct {
	client      Doer
	headTimeout time.Duration
	userAgent   string
}

// Ensure Provider implements the interfaces.
var (
	_ provider.Provider     = (*Provider)(nil)
	_ provider.ObjectGetter = (*Provider)(nil)
)

// New creates a new HTTP provider.
func New(cfg Config) *Provider {
	client := cfg.Client
	if client == nil {
		client = &http.Client{Timeout: cfg.Timeout}
	}
	headTimeout := cfg.HeadTimeout
	if headTimeout <= 0 {
		headTimeout = DefaultHeadTimeout
	}
	ua := strings.TrimSpace(cfg.UserAgent)
	if ua == "" {
		ua = DefaultUserAgent
	}
	return &Provider{client: client, headTimeout: headTimeout, userAgent: ua}
}

// Head issues a HEAD request and reports the declared Content-Length.
//
// A 2xx response without a parseable Content-Length yields SizeKnown=false.
func (p *Provider) Head(ctx context.Context, rawURL string) (*provider.ObjectMeta, error) {
	ctx, cancel := context.WithTimeout(ctx, p.headTimeout)
	defer cancel()

	resp, err := p.do(ctx, http.MethodHead, rawURL)
	if err != nil {
		return nil, p.wrapError("Head", rawURL, 0, err)
	}
	defer func() { _ = resp.Body.Close() }()
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, p.wrapError("Head", rawURL, resp.StatusCode, statusError(resp.StatusCode))
	}

	meta := &provider.ObjectMeta{
		URL:         rawURL,
		ETag:        strings.Trim(resp.Header.Get("ETag"), "\""),
		ContentType: resp.Header.Get("Content-Type"),
	}
	if n, ok := declaredLength(resp); ok {
		meta.Size = n
		meta.SizeKnown = true
	}
	if lm := resp.Header.Get("Last-Modified"); lm != "" {
		if t, err := http.ParseTime(lm); err == nil {
			meta.LastModified = t
		}
	}
	return meta, nil
}

// GetObject issues a GET request and returns the response body as a stream.
//
// The caller must close the body. contentLength is -1 when undeclared.
func (p *Provider) GetObject(ctx context.Context, rawURL string) (io.ReadCloser, int64, error) {
	resp, err := p.do(ctx, http.MethodGet, rawURL)
	if err != nil {
		return nil, 0, p.wrapError("GetObject", rawURL, 0, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))
		_ = resp.Body.Close()
		return nil, 0, p.wrapError("GetObject", rawURL, resp.StatusCode, statusError(resp.StatusCode))
	}

	n, ok := declaredLength(resp)
	if !ok {
		n = -1
	}
	return resp.Body, n, nil
}

// Close releases any resources held by the provider.
func (p *Provider) Close() error {
	if c, ok := p.client.(*http.Client); ok {
		c.CloseIdleConnections()
	}
	return nil
}

func (p *Provider) do(ctx context.Context, method, rawURL string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, method, rawURL, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", provider.ErrInvalidURL, err)
	}
	req.Header.Set("User-Agent", p.userAgent)
	// An explicit encoding stops the transport from negotiating gzip and
	// decoding transparently; stored bytes must be the origin's bytes.
	req.Header.Set("Accept-Encoding", "identity")
	return p.client.Do(req)
}

func (p *Provider) wrapError(op, rawURL string, status int, err error) error {
	return &provider.ProviderError{
		Op:         op,
		Provider:   provider.ProviderHTTP,
		Resource:   locator.ResourcePath(rawURL),
		StatusCode: status,
		Err:        err,
	}
}

// declaredLength returns the response's Content-Length, if any.
func declaredLength(resp *http.Response) (int64, bool) {
	if resp.ContentLength >= 0 {
		return resp.ContentLength, true
	}
	v := strings.TrimSpace(resp.Header.Get("Content-Length"))
	if v == "" {
		return 0, false
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil || n < 0 {
		return 0, false
	}
	return n, true
}

// statusError maps an HTTP status to a provider sentinel error.
func statusError(code int) error {
	switch {
	case code == http.StatusNotFound, code == http.StatusGone:
		return provider.ErrNotFound
	case code == http.StatusUnauthorized:
		return provider.ErrInvalidCredentials
	case code == http.StatusForbidden:
		return provider.ErrAccessDenied
	case code == http.StatusTooManyRequests:
		return provider.ErrThrottled
	case code >= 500:
		return provider.ErrProviderUnavailable
	default:
		return provider.ErrUnexpectedStatus
	}
}
