package cmd

import (
	"encoding/json"

	"github.com/fulmenhq/gofulmen/foundry"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/3leaps/goferry/internal/observability"
	"github.com/3leaps/goferry/pkg/locator"
)

var sizeCmd = &cobra.Command{
	Use:   "size LOCATOR...",
	Short: "Report the size of sources without transferring them",
	Long: `Report the size of each locator as one JSON line.

Local sources are sized with stat. Remote sources are sized with a metadata
request (HEAD for http(s), HeadObject for s3). A source whose size cannot be
determined is reported with "known": false; that is never an error.

Examples:
  goferry size ./data.csv
  goferry size https://example.com/archive.tar.gz s3://bucket/key`,
	Args: cobra.MinimumNArgs(1),
	RunE: runSize,
}

type sizeLine struct {
	Locator string `json:"locator"`
	Known   bool   `json:"known"`
	Bytes   *int64 `json:"bytes,omitempty"`
}

func init() {
	rootCmd.AddCommand(sizeCmd)
}

func runSize(cmd *cobra.Command, args []string) error {
	ctx := commandContext(cmd)
	cfg, err := currentConfig(ctx)
	if err != nil {
		return exitError(foundry.ExitInvalidArgument, "Invalid configuration", err)
	}

	reg, err := newRegistry(ctx, cfg, needsS3(args...), s3Config(cfg, nil))
	if err != nil {
		observability.CLILogger.Error("Failed to create provider", zap.Error(err))
		return exitError(foundry.ExitExternalServiceUnavailable, "Failed to connect to storage provider", err)
	}
	defer func() { _ = reg.Close() }()

	engine := newVerifier(reg, observability.CLILogger)
	enc := json.NewEncoder(cmd.OutOrStdout())
	for _, loc := range args {
		s := engine.Size(ctx, loc)
		if err := enc.Encode(sizeLine{Locator: locator.Redact(loc), Known: s.Known, Bytes: s.Ptr()}); err != nil {
			return exitError(foundry.ExitFileWriteError, "Failed to write output", err)
		}
		if err := ctx.Err(); err != nil {
			return exitError(foundry.ExitSignalInt, "size cancelled", err)
		}
	}
	return nil
}
