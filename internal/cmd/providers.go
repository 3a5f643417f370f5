package cmd

import (
	"context"

	"go.uber.org/zap"

	"github.com/3leaps/goferry/internal/config"
	"github.com/3leaps/goferry/pkg/locator"
	"github.com/3leaps/goferry/pkg/manifest"
	"github.com/3leaps/goferry/pkg/provider"
	httpprovider "github.com/3leaps/goferry/pkg/provider/http"
	"github.com/3leaps/goferry/pkg/provider/s3"
	"github.com/3leaps/goferry/pkg/transfer"
)

// s3Config merges manifest S3 settings over the application config.
func s3Config(cfg *config.Config, override *manifest.S3Config) s3.Config {
	out := s3.Config{
		Region:         cfg.S3.Region,
		Endpoint:       cfg.S3.Endpoint,
		Profile:        cfg.S3.Profile,
		ForcePathStyle: cfg.S3.ForcePathStyle,
	}
	if override != nil {
		if override.Region != "" {
			out.Region = override.Region
		}
		if override.Endpoint != "" {
			out.Endpoint = override.Endpoint
		}
		if override.Profile != "" {
			out.Profile = override.Profile
		}
		out.ForcePathStyle = out.ForcePathStyle || override.ForcePathStyle
	}
	// S3-compatible services (moto, MinIO, etc.) require path-style URLs.
	if out.Endpoint != "" {
		out.ForcePathStyle = true
	}
	return out
}

// needsS3 reports whether any source is an s3:// URL.
func needsS3(sources ...string) bool {
	for _, src := range sources {
		if locator.Scheme(src) == "s3" {
			return true
		}
	}
	return false
}

// newRegistry registers the HTTP provider and, when withS3 is set, the S3
// provider.
func newRegistry(ctx context.Context, cfg *config.Config, withS3 bool, s3cfg s3.Config) (*provider.Registry, error) {
	reg := provider.NewRegistry()
	reg.Register(httpprovider.New(httpprovider.Config{
		Timeout:     cfg.HTTP.Timeout,
		HeadTimeout: cfg.HTTP.HeadTimeout,
		UserAgent:   cfg.HTTP.UserAgent,
	}), "http", "https")

	if withS3 {
		p, err := s3.New(ctx, s3cfg)
		if err != nil {
			return nil, err
		}
		reg.Register(p, "s3")
	}
	return reg, nil
}

// newVerifier builds a transfer engine over reg.
func newVerifier(reg *provider.Registry, log *zap.Logger) *transfer.Verifier {
	return transfer.New(transfer.Options{Logger: log, Providers: reg})
}
