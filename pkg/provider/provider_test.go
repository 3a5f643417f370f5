package provider

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubProvider struct {
	name     string
	closed   int
	closeErr error
}

func (s *stubProvider) Head(context.Context, string) (*ObjectMeta, error) {
	return &ObjectMeta{URL: s.name}, nil
}

func (s *stubProvider) Close() error {
	s.closed++
	return s.closeErr
}

func TestProviderError_Error(t *testing.T) {
	tests := []struct {
		name     string
		err      *ProviderError
		expected string
	}{
		{
			name:     "with resource and status",
			err:      &ProviderError{Op: "Head", Provider: ProviderHTTP, Resource: "/a.bin", StatusCode: 404, Err: ErrNotFound},
			expected: "http Head: /a.bin: status 404: object not found",
		},
		{
			name:     "with resource",
			err:      &ProviderError{Op: "GetObject", Provider: ProviderS3, Resource: "bucket/key", Err: ErrAccessDenied},
			expected: "s3 GetObject: bucket/key: access denied",
		},
		{
			name:     "bare",
			err:      &ProviderError{Op: "New", Provider: ProviderS3, Err: ErrInvalidCredentials},
			expected: "s3 New: invalid credentials",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, tt.err.Error())
		})
	}
}

func TestProviderError_Unwrap(t *testing.T) {
	err := &ProviderError{Op: "Head", Provider: ProviderHTTP, Err: ErrThrottled}
	assert.True(t, IsThrottled(err))
	assert.False(t, IsNotFound(err))
	assert.Equal(t, ErrThrottled, errors.Unwrap(err))
}

func TestIsHelpers(t *testing.T) {
	assert.True(t, IsNotFound(ErrNotFound))
	assert.True(t, IsAccessDenied(ErrAccessDenied))
	assert.True(t, IsBucketNotFound(ErrBucketNotFound))
	assert.True(t, IsInvalidCredentials(ErrInvalidCredentials))
	assert.True(t, IsProviderUnavailable(ErrProviderUnavailable))
	assert.True(t, IsUnsupportedScheme(ErrUnsupportedScheme))
	assert.False(t, IsNotFound(nil))
}

func TestProviderType_String(t *testing.T) {
	assert.Equal(t, "http", ProviderHTTP.String())
	assert.Equal(t, "s3", ProviderS3.String())
}

func TestRegistry_Resolve(t *testing.T) {
	web := &stubProvider{name: "web"}
	obj := &stubProvider{name: "obj"}

	r := NewRegistry()
	r.Register(web, "http", "https")
	r.Register(obj, "s3")

	p, err := r.Resolve("https://example.test/a")
	require.NoError(t, err)
	assert.Same(t, web, p)

	p, err = r.Resolve("HTTP://example.test/a")
	require.NoError(t, err)
	assert.Same(t, web, p)

	p, err = r.Resolve("s3://bucket/key")
	require.NoError(t, err)
	assert.Same(t, obj, p)

	assert.ElementsMatch(t, []string{"http", "https", "s3"}, r.Schemes())
}

func TestRegistry_ResolveUnsupported(t *testing.T) {
	r := NewRegistry()

	_, err := r.Resolve("ftp://host/file")
	require.Error(t, err)
	assert.True(t, IsUnsupportedScheme(err))

	_, err = r.Resolve("/local/path")
	require.Error(t, err)
	assert.True(t, IsUnsupportedScheme(err))
}

func TestRegistry_CloseOncePerProvider(t *testing.T) {
	web := &stubProvider{name: "web"}
	obj := &stubProvider{name: "obj", closeErr: errors.New("close failed")}

	r := NewRegistry()
	r.Register(web, "http", "https")
	r.Register(obj, "s3")

	err := r.Close()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "close failed")
	assert.Equal(t, 1, web.closed)
	assert.Equal(t, 1, obj.closed)
}
