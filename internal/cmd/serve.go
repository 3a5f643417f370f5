package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/fulmenhq/gofulmen/foundry"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/3leaps/goferry/internal/observability"
	"github.com/3leaps/goferry/internal/server"
	"github.com/3leaps/goferry/internal/server/handlers"
	"github.com/3leaps/goferry/pkg/provider/s3"
	"github.com/3leaps/goferry/pkg/transfer"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the transfer API over HTTP",
	Long: `Start the HTTP server.

Endpoints:
  POST /v1/transfers   {"source": "...", "destination": "...", "on_exists": "rename"}
  GET  /v1/size        ?locator=...
  GET  /health, /health/live, /health/ready, /health/startup
  GET  /version

With --destination-root, every destination must be a relative path and is
written under that directory.

Sources are not confined by --destination-root. Without further flags any
client can read any local file the server user can read, and make the server
fetch any URL, internal addresses included. Before listening beyond
localhost:
  --source-root   local sources and /v1/size locators must name files under
                  this directory (relative paths resolve under it)
  --allow-host    remote sources must match one of these host patterns
                  (doublestar globs, the bucket for s3://); repeatable

Examples:
  goferry serve
  goferry serve --host 0.0.0.0 --port 9000 --destination-root /srv/incoming \
    --source-root /srv/outgoing --allow-host '*.example.com'`,
	RunE: runServe,
}

var (
	serveHost            string
	servePort            int
	serveDestinationRoot string
	serveSourceRoot      string
	serveAllowHosts      []string
)

func init() {
	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().StringVar(&serveHost, "host", "", "Listen host (default from config: localhost)")
	serveCmd.Flags().IntVar(&servePort, "port", -1, "Listen port (default from config: 8080)")
	serveCmd.Flags().StringVar(&serveDestinationRoot, "destination-root", "", "Confine destinations to this directory (sources are not affected)")
	serveCmd.Flags().StringVar(&serveSourceRoot, "source-root", "", "Confine local sources and size locators to this directory")
	serveCmd.Flags().StringSliceVar(&serveAllowHosts, "allow-host", nil, "Host pattern remote sources must match (repeatable; default any host)")
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx := commandContext(cmd)
	cfg, err := currentConfig(ctx)
	if err != nil {
		return exitError(foundry.ExitInvalidArgument, "Invalid configuration", err)
	}

	host := cfg.Server.Host
	if serveHost != "" {
		host = serveHost
	}
	port := cfg.Server.Port
	if servePort >= 0 {
		port = servePort
	}

	if err := observability.InitServerLogger("goferry", cfg.Logging.Level, cfg.Logging.Profile); err != nil {
		return exitError(foundry.ExitInvalidArgument, "Invalid logging configuration", err)
	}

	policy, err := transfer.ParsePolicy(cfg.Transfer.OnExists)
	if err != nil {
		return exitError(foundry.ExitInvalidArgument, "Invalid transfer.on_exists", err)
	}

	root := firstNonEmpty(serveDestinationRoot, cfg.Server.DestinationRoot)
	if root != "" {
		if root, err = filepath.Abs(root); err != nil {
			return exitError(foundry.ExitInvalidArgument, "Invalid --destination-root", err)
		}
		if err := os.MkdirAll(root, 0o755); err != nil {
			return exitError(foundry.ExitFileWriteError, "Cannot create destination root", err)
		}
	}

	sourceRoot := firstNonEmpty(serveSourceRoot, cfg.Server.SourceRoot)
	if sourceRoot != "" {
		if sourceRoot, err = filepath.Abs(sourceRoot); err != nil {
			return exitError(foundry.ExitInvalidArgument, "Invalid --source-root", err)
		}
		info, statErr := os.Stat(sourceRoot)
		if statErr == nil && !info.IsDir() {
			statErr = fmt.Errorf("%s: not a directory", sourceRoot)
		}
		if statErr != nil {
			return exitError(foundry.ExitInvalidArgument, "Invalid --source-root", statErr)
		}
	}

	allowHosts := cfg.Server.AllowedHosts
	if len(serveAllowHosts) > 0 {
		allowHosts = serveAllowHosts
	}
	for _, p := range allowHosts {
		if !doublestar.ValidatePattern(p) {
			return exitError(foundry.ExitInvalidArgument, "Invalid --allow-host", fmt.Errorf("pattern %q", p))
		}
	}

	reg, err := newRegistry(ctx, cfg, false, s3Config(cfg, nil))
	if err != nil {
		return exitError(foundry.ExitExternalServiceUnavailable, "Failed to create providers", err)
	}
	if s3p, s3err := s3.New(ctx, s3Config(cfg, nil)); s3err != nil {
		observability.ServerLogger.Warn("s3 sources disabled", zap.Error(s3err))
	} else {
		reg.Register(s3p, "s3")
	}
	defer func() { _ = reg.Close() }()

	health := handlers.InitHealthManager(versionInfo.Version)
	health.RegisterChecker("temp_dir", dirWritableChecker{dir: os.TempDir()})
	if root != "" {
		health.RegisterChecker("destination_root", dirWritableChecker{dir: root})
	}

	srv := server.New(host, port,
		server.WithEngine(newVerifier(reg, observability.ServerLogger)),
		server.WithTransferConfig(handlers.TransferHandlerConfig{
			DefaultPolicy:   policy,
			DestinationRoot: root,
			SourceRoot:      sourceRoot,
			AllowedHosts:    allowHosts,
			Logger:          observability.ServerLogger,
		}),
		server.WithTimeouts(server.Timeouts{
			Read:     cfg.Server.ReadTimeout,
			Write:    cfg.Server.WriteTimeout,
			Idle:     cfg.Server.IdleTimeout,
			Shutdown: cfg.Server.ShutdownTimeout,
		}),
	)

	observability.ServerLogger.Info("Starting server",
		zap.String("addr", srv.Addr()),
		zap.String("version", versionInfo.Version),
		zap.String("on_exists", policy.String()),
		zap.String("destination_root", root),
		zap.String("source_root", sourceRoot),
		zap.Strings("allowed_hosts", allowHosts))
	if sourceRoot == "" || len(allowHosts) == 0 {
		observability.ServerLogger.Warn("sources are unrestricted; set --source-root and --allow-host before exposing the server")
	}

	if err := srv.Start(ctx); err != nil {
		return exitError(foundry.ExitExternalServiceUnavailable, "Server failed", err)
	}
	return nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

// dirWritableChecker verifies that a temp file can be created in dir.
type dirWritableChecker struct {
	dir string
}

func (c dirWritableChecker) CheckHealth(ctx context.Context) error {
	if c.dir == "" {
		return errors.New("no directory configured")
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	f, err := os.CreateTemp(c.dir, ".goferry-health-*")
	if err != nil {
		return fmt.Errorf("directory %s not writable: %w", c.dir, err)
	}
	name := f.Name()
	_ = f.Close()
	return os.Remove(name)
}
