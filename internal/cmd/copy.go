package cmd

import (
	"context"
	"errors"

	"github.com/fulmenhq/gofulmen/foundry"
	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/3leaps/goferry/internal/observability"
	"github.com/3leaps/goferry/pkg/locator"
	"github.com/3leaps/goferry/pkg/output"
	"github.com/3leaps/goferry/pkg/transfer"
)

var copyCmd = &cobra.Command{
	Use:   "copy SOURCE DESTINATION",
	Short: "Transfer one file and verify it",
	Long: `Transfer a single source to a local destination.

SOURCE may be a local path, a file:// URI, an http(s) URL or an s3:// URL.
DESTINATION is a local path or file:// URI; missing parent directories are
created. One JSONL record describing the outcome is written to stdout.

Conflict policies (--on-exists):
  replace       overwrite the existing destination
  rename        keep it and write to name_0.ext, name_1.ext, ...
  use-existing  keep it and skip the transfer

Examples:
  goferry copy https://example.com/report.pdf ./reports/report.pdf
  goferry copy s3://bucket/data/part-0.parquet /data/part-0.parquet --on-exists replace
  goferry copy ./a.txt ./backup/a.txt --on-exists use-existing`,
	Args: cobra.ExactArgs(2),
	RunE: runCopy,
}

var copyOnExists string

func init() {
	rootCmd.AddCommand(copyCmd)
	copyCmd.Flags().StringVar(&copyOnExists, "on-exists", "", "Conflict policy: replace, rename, use-existing (default from config: rename)")
}

func runCopy(cmd *cobra.Command, args []string) error {
	ctx := commandContext(cmd)
	src, dst := args[0], args[1]

	cfg, err := currentConfig(ctx)
	if err != nil {
		return exitError(foundry.ExitInvalidArgument, "Invalid configuration", err)
	}

	policyName := cfg.Transfer.OnExists
	if copyOnExists != "" {
		policyName = copyOnExists
	}
	policy, err := transfer.ParsePolicy(policyName)
	if err != nil {
		return exitError(foundry.ExitInvalidArgument, "Invalid --on-exists value", err)
	}

	reg, err := newRegistry(ctx, cfg, needsS3(src), s3Config(cfg, nil))
	if err != nil {
		observability.CLILogger.Error("Failed to create provider", zap.Error(err))
		return exitError(foundry.ExitExternalServiceUnavailable, "Failed to connect to storage provider", err)
	}
	defer func() { _ = reg.Close() }()

	w := output.NewJSONLWriter(cmd.OutOrStdout(), uuid.NewString())
	defer func() { _ = w.Close() }()

	engine := newVerifier(reg, observability.CLILogger)
	res, err := engine.Transfer(ctx, src, dst, policy)
	if err != nil {
		code := transfer.ErrorCode(err)
		observability.CLILogger.Error("Transfer failed",
			zap.String("source", locator.Redact(src)),
			zap.String("destination", dst),
			zap.String("code", code),
			zap.Error(err))
		rec := &output.ErrorRecord{
			Code:        code,
			Message:     err.Error(),
			Source:      locator.Redact(src),
			Destination: dst,
		}
		var ime *transfer.IntegrityMismatchError
		if errors.As(err, &ime) {
			rec.Details = map[string]any{
				"resource":       ime.Resource,
				"expected_bytes": ime.Expected,
				"actual_bytes":   ime.Actual,
			}
		}
		if werr := w.WriteError(ctx, rec); werr != nil {
			observability.CLILogger.Debug("Failed to emit error record", zap.Error(werr))
		}
		return exitError(transferExitCode(err), "Transfer failed", err)
	}

	if err := writeResult(ctx, w, src, dst, policy, res); err != nil {
		return exitError(foundry.ExitFileWriteError, "Failed to write output", err)
	}
	return nil
}

func writeResult(ctx context.Context, w output.Writer, src, dst string, policy transfer.ConflictPolicy, res *transfer.Result) error {
	if res.Skipped || res.Reused {
		reason := output.SkipUseExisting
		if res.Skipped {
			reason = output.SkipSameLocation
		}
		observability.CLILogger.Info("Transfer skipped",
			zap.String("destination", res.Destination),
			zap.String("reason", reason))
		return w.WriteSkip(ctx, &output.SkipRecord{
			Source:      locator.Redact(src),
			Destination: dst,
			Reason:      reason,
		})
	}

	observability.CLILogger.Info("Transfer complete",
		zap.String("destination", res.Destination),
		zap.Int64("bytes", res.Bytes),
		zap.Bool("verified", res.Verified),
		zap.Duration("duration", res.Duration))
	return w.WriteTransfer(ctx, &output.TransferRecord{
		Source:           locator.Redact(src),
		Destination:      dst,
		FinalDestination: res.Destination,
		SourceKind:       res.Kind.String(),
		Bytes:            res.Bytes,
		ExpectedBytes:    res.Expected.Ptr(),
		Verified:         res.Verified,
		Policy:           policy.String(),
		DurationMs:       res.Duration.Milliseconds(),
	})
}
