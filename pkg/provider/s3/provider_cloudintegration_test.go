//go:build cloudintegration

package s3_test

import (
	"context"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/3leaps/goferry/pkg/provider"
	"github.com/3leaps/goferry/test/cloudtest"
)

func TestProvider_HeadAndGet(t *testing.T) {
	cloudtest.SkipIfUnavailable(t)
	ctx := context.Background()

	bucket := cloudtest.CreateBucket(t, ctx)
	url := cloudtest.PutObject(t, ctx, bucket, "data/part-0.bin", []byte("twelve bytes"))
	p := cloudtest.Provider(t, ctx)

	meta, err := p.Head(ctx, url)
	require.NoError(t, err)
	assert.True(t, meta.SizeKnown)
	assert.Equal(t, int64(12), meta.Size)
	assert.NotEmpty(t, meta.ETag)

	body, n, err := p.GetObject(ctx, url)
	require.NoError(t, err)
	defer func() { _ = body.Close() }()
	assert.Equal(t, int64(12), n)
	data, err := io.ReadAll(body)
	require.NoError(t, err)
	assert.Equal(t, "twelve bytes", string(data))
}

func TestProvider_NotFound(t *testing.T) {
	cloudtest.SkipIfUnavailable(t)
	ctx := context.Background()

	bucket := cloudtest.CreateBucket(t, ctx)
	p := cloudtest.Provider(t, ctx)

	_, err := p.Head(ctx, "s3://"+bucket+"/missing")
	assert.True(t, provider.IsNotFound(err), "got %v", err)

	_, _, err = p.GetObject(ctx, "s3://"+bucket+"/missing")
	assert.True(t, provider.IsNotFound(err), "got %v", err)
}
