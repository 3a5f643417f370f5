package transfer

import (
	"context"
	"os"
	"strconv"

	"go.uber.org/zap"

	"github.com/3leaps/goferry/pkg/locator"
	"github.com/3leaps/goferry/pkg/provider"
)

// SizeSample is an optional byte count. Unknown is never the same as zero.
type SizeSample struct {
	Bytes int64
	Known bool
}

// KnownSize returns a known sample of n bytes.
func KnownSize(n int64) SizeSample {
	return SizeSample{Bytes: n, Known: true}
}

// UnknownSize is the sample for sources that cannot report a size.
var UnknownSize = SizeSample{}

// String returns the byte count, or "unknown".
func (s SizeSample) String() string {
	if !s.Known {
		return "unknown"
	}
	return strconv.FormatInt(s.Bytes, 10)
}

// Ptr returns the byte count as a pointer, nil when unknown.
func (s SizeSample) Ptr() *int64 {
	if !s.Known {
		return nil
	}
	n := s.Bytes
	return &n
}

// LocalSize reads filesystem metadata for a local locator. Content is not read.
//
// Missing entries, directories and other non-regular files are unknown.
func LocalSize(loc string) SizeSample {
	path, err := locator.LocalPath(loc)
	if err != nil {
		return UnknownSize
	}
	info, err := os.Stat(path)
	if err != nil || !info.Mode().IsRegular() {
		return UnknownSize
	}
	return KnownSize(info.Size())
}

// RemoteSize asks the provider registered for rawURL's scheme for the
// advertised size without fetching the body.
//
// The answer is advisory: any error, non-2xx status or missing length yields
// UnknownSize.
func (v *Verifier) RemoteSize(ctx context.Context, rawURL string) SizeSample {
	p, err := v.providers.Resolve(rawURL)
	if err != nil {
		v.log.Debug("size lookup skipped", zap.String("resource", locator.ResourcePath(rawURL)), zap.Error(err))
		return UnknownSize
	}
	meta, err := p.Head(ctx, rawURL)
	if err != nil {
		v.log.Debug("size lookup failed", zap.String("resource", locator.ResourcePath(rawURL)), zap.Error(err))
		return UnknownSize
	}
	return sampleFromMeta(meta)
}

func sampleFromMeta(meta *provider.ObjectMeta) SizeSample {
	if meta == nil || !meta.SizeKnown || meta.Size < 0 {
		return UnknownSize
	}
	return KnownSize(meta.Size)
}

// Size returns the size sample for any locator kind.
func (v *Verifier) Size(ctx context.Context, loc string) SizeSample {
	if locator.Classify(loc).IsLocal() {
		return LocalSize(loc)
	}
	return v.RemoteSize(ctx, loc)
}
