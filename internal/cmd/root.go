// Package cmd implements the goferry command line.
package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/fulmenhq/gofulmen/foundry"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/3leaps/goferry/internal/config"
	"github.com/3leaps/goferry/internal/observability"
	"github.com/3leaps/goferry/internal/server/handlers"
)

// VersionInfo is build metadata injected by main.
type VersionInfo struct {
	Version   string
	Commit    string
	BuildDate string
}

var versionInfo = VersionInfo{Version: "dev", Commit: "unknown", BuildDate: "unknown"}

// SetVersionInfo records build metadata for `goferry version`, the /version
// endpoint and the HTTP user agent.
func SetVersionInfo(version, commit, buildDate string) {
	versionInfo = VersionInfo{Version: version, Commit: commit, BuildDate: buildDate}
	handlers.SetVersionInfo(version, commit, buildDate)
	config.SetVersion(version)
}

var (
	cfgFile    string
	logLevel   string
	logProfile string
	verbose    bool

	appConfig *config.Config
)

var rootCmd = &cobra.Command{
	Use:   "goferry",
	Short: "Verified file transfers",
	Long: `goferry copies files from local paths, file:// URIs, http(s) and s3 URLs
to local destinations, verifies that every byte arrived, and applies a
conflict policy when the destination already exists.

Examples:
  goferry copy https://example.com/data.csv ./data.csv
  goferry size s3://bucket/key.parquet
  goferry batch --job batch.yaml --checkpoint state.db
  goferry serve --port 8080`,
	SilenceUsage:      true,
	SilenceErrors:     true,
	PersistentPreRunE: initApp,
}

func init() {
	pf := rootCmd.PersistentFlags()
	pf.StringVar(&cfgFile, "config", "", "Config file (default: ./goferry.yaml or $XDG_CONFIG_HOME/goferry/goferry.yaml)")
	pf.StringVar(&logLevel, "log-level", "", "Log level: debug, info, warn, error")
	pf.StringVar(&logProfile, "log-profile", "", "Log profile for serve: console or structured")
	pf.BoolVarP(&verbose, "verbose", "v", false, "Enable debug logging")
}

// initApp loads configuration and initializes the CLI logger.
func initApp(cmd *cobra.Command, args []string) error {
	if cfgFile != "" {
		if err := os.Setenv(config.ConfigFileEnv, cfgFile); err != nil {
			return exitError(foundry.ExitInvalidArgument, "Invalid --config", err)
		}
	}

	logging := map[string]any{}
	if logLevel != "" {
		logging["level"] = logLevel
	}
	if logProfile != "" {
		logging["profile"] = logProfile
	}

	cfg, err := config.Load(commandContext(cmd), map[string]any{"logging": logging})
	if err != nil {
		return exitError(foundry.ExitInvalidArgument, "Invalid configuration", err)
	}
	if _, err := observability.ParseLevel(cfg.Logging.Level); err != nil {
		return exitError(foundry.ExitInvalidArgument, "Invalid logging level", err)
	}
	appConfig = cfg

	observability.InitCLILogger("goferry", verbose || cfg.Logging.Level == "debug")
	observability.CLILogger.Debug("Configuration loaded",
		zap.String("log_level", cfg.Logging.Level),
		zap.String("on_exists", cfg.Transfer.OnExists))
	return nil
}

// Execute runs the root command and returns the process exit code.
func Execute(ctx context.Context) int {
	err := rootCmd.ExecuteContext(ctx)
	observability.Sync()
	if err == nil {
		return 0
	}

	fmt.Fprintln(os.Stderr, "Error:", err)
	var ee *ExitError
	if errors.As(err, &ee) {
		return ee.Code
	}
	return 1
}

func commandContext(cmd *cobra.Command) context.Context {
	if ctx := cmd.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}

// currentConfig returns the loaded config, loading defaults when a command
// runs without the root pre-run (tests).
func currentConfig(ctx context.Context) (*config.Config, error) {
	if appConfig != nil {
		return appConfig, nil
	}
	cfg, err := config.Load(ctx)
	if err != nil {
		return nil, err
	}
	appConfig = cfg
	return cfg, nil
}
