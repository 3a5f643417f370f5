// Package config loads goferry's layered configuration.
//
// Precedence, highest first: runtime overrides, environment variables
// (GOFERRY_*), the goferry.yaml config file, built-in defaults.
package config

import (
	"fmt"
	"time"

	"github.com/bmatcuk/doublestar/v4"

	"github.com/3leaps/goferry/pkg/transfer"
)

// Config is the full application configuration.
type Config struct {
	Logging  LoggingConfig  `mapstructure:"logging"`
	HTTP     HTTPConfig     `mapstructure:"http"`
	Transfer TransferConfig `mapstructure:"transfer"`
	Batch    BatchConfig    `mapstructure:"batch"`
	Server   ServerConfig   `mapstructure:"server"`
	S3       S3Config       `mapstructure:"s3"`
}

// LoggingConfig selects the log level and rendering.
type LoggingConfig struct {
	Level   string `mapstructure:"level"`
	Profile string `mapstructure:"profile"`
}

// HTTPConfig configures the HTTP source provider.
type HTTPConfig struct {
	// Timeout bounds a whole GET, body included.
	Timeout time.Duration `mapstructure:"timeout"`

	// HeadTimeout bounds a single size lookup.
	HeadTimeout time.Duration `mapstructure:"head_timeout"`

	UserAgent string `mapstructure:"user_agent"`
}

// TransferConfig holds single-transfer defaults.
type TransferConfig struct {
	// OnExists is the default conflict policy: replace, rename or use-existing.
	OnExists string `mapstructure:"on_exists"`
}

// BatchConfig holds batch runner defaults. Manifest values win.
type BatchConfig struct {
	Concurrency   int     `mapstructure:"concurrency"`
	RateLimit     float64 `mapstructure:"rate_limit"`
	ProgressEvery int     `mapstructure:"progress_every"`
}

// ServerConfig configures `goferry serve`.
type ServerConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	IdleTimeout     time.Duration `mapstructure:"idle_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`

	// DestinationRoot and SourceRoot confine local destinations and local
	// sources. AllowedHosts restricts remote sources; empty allows any host.
	DestinationRoot string   `mapstructure:"destination_root"`
	SourceRoot      string   `mapstructure:"source_root"`
	AllowedHosts    []string `mapstructure:"allowed_hosts"`
}

// S3Config configures the S3 source provider. Manifest values win.
type S3Config struct {
	Region         string `mapstructure:"region"`
	Endpoint       string `mapstructure:"endpoint"`
	Profile        string `mapstructure:"profile"`
	ForcePathStyle bool   `mapstructure:"force_path_style"`
}

// Validate checks values that the type system cannot.
func (c *Config) Validate() error {
	if _, err := transfer.ParsePolicy(c.Transfer.OnExists); err != nil {
		return fmt.Errorf("transfer.on_exists: %w", err)
	}
	if c.Batch.Concurrency < 1 {
		return fmt.Errorf("batch.concurrency must be >= 1, got %d", c.Batch.Concurrency)
	}
	if c.Batch.RateLimit < 0 {
		return fmt.Errorf("batch.rate_limit must be >= 0, got %g", c.Batch.RateLimit)
	}
	if c.Server.Port < 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port out of range: %d", c.Server.Port)
	}
	for _, p := range c.Server.AllowedHosts {
		if !doublestar.ValidatePattern(p) {
			return fmt.Errorf("server.allowed_hosts: invalid pattern %q", p)
		}
	}
	if c.HTTP.Timeout < 0 || c.HTTP.HeadTimeout < 0 {
		return fmt.Errorf("http timeouts must not be negative")
	}
	return nil
}
