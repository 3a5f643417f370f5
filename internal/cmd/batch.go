package cmd

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/fulmenhq/gofulmen/foundry"
	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/3leaps/goferry/internal/config"
	"github.com/3leaps/goferry/internal/observability"
	"github.com/3leaps/goferry/pkg/batch"
	"github.com/3leaps/goferry/pkg/checkpoint"
	"github.com/3leaps/goferry/pkg/locator"
	"github.com/3leaps/goferry/pkg/manifest"
	"github.com/3leaps/goferry/pkg/output"
)

var batchCmd = &cobra.Command{
	Use:   "batch",
	Short: "Run a batch of transfers from a manifest",
	Long: `Run the transfers listed in a YAML or JSON batch manifest.

Items are numbered from 1 in manifest order and processed by a worker pool.
Items that share a destination are never transferred concurrently. Every
outcome is written as a JSONL record; failed items do not stop the batch.

With --checkpoint, each outcome is also recorded in a SQLite file. A later
run with --resume skips items already completed or skipped there and retries
failed ones.

Examples:
  goferry batch --job batch.yaml
  goferry batch --job batch.yaml --plan
  goferry batch --job batch.yaml --checkpoint state.db
  goferry batch --job batch.yaml --checkpoint state.db --resume`,
	RunE: runBatch,
}

var (
	batchJobPath     string
	batchOutput      string
	batchCheckpoint  string
	batchResume      bool
	batchPlan        bool
	batchQuiet       bool
	batchConcurrency int
)

func init() {
	rootCmd.AddCommand(batchCmd)

	batchCmd.Flags().StringVarP(&batchJobPath, "job", "j", "", "Path to batch manifest (required)")
	batchCmd.Flags().StringVarP(&batchOutput, "output", "o", "", "Override output destination (stdout or file:/path)")
	batchCmd.Flags().StringVar(&batchCheckpoint, "checkpoint", "", "SQLite checkpoint file recording per-item outcomes")
	batchCmd.Flags().BoolVar(&batchResume, "resume", false, "Skip items the checkpoint already marks complete or skipped")
	batchCmd.Flags().BoolVar(&batchPlan, "plan", false, "Validate manifest and show plan without executing")
	batchCmd.Flags().BoolVarP(&batchQuiet, "quiet", "q", false, "Suppress progress records")
	batchCmd.Flags().IntVar(&batchConcurrency, "concurrency", 0, "Override manifest concurrency")

	_ = batchCmd.MarkFlagRequired("job")
}

func runBatch(cmd *cobra.Command, args []string) error {
	ctx := commandContext(cmd)

	cfg, err := currentConfig(ctx)
	if err != nil {
		return exitError(foundry.ExitInvalidArgument, "Invalid configuration", err)
	}

	m, err := manifest.Load(batchJobPath, manifestDefaults(cfg))
	if err != nil {
		observability.CLILogger.Error("Invalid batch manifest", zap.String("path", batchJobPath), zap.Error(err))
		if _, statErr := os.Stat(batchJobPath); statErr != nil {
			return exitError(foundry.ExitFileNotFound, "Failed to read batch manifest", err)
		}
		return exitError(foundry.ExitInvalidArgument, "Invalid batch manifest", err)
	}

	if batchOutput != "" {
		m.Output.Destination = batchOutput
	}
	if batchConcurrency < 0 {
		return exitError(foundry.ExitInvalidArgument, "Invalid --concurrency value", fmt.Errorf("concurrency must be >= 1"))
	}
	if batchConcurrency > 0 {
		m.Concurrency = batchConcurrency
	}
	if batchResume && batchCheckpoint == "" {
		return exitError(foundry.ExitInvalidArgument, "--resume requires --checkpoint", fmt.Errorf("no checkpoint file given"))
	}

	pairs, err := m.Pairs()
	if err != nil {
		return exitError(foundry.ExitInvalidArgument, "Invalid batch manifest", err)
	}

	if batchPlan {
		return showBatchPlan(cmd.OutOrStdout(), m, pairs)
	}
	return executeBatch(ctx, cmd.OutOrStdout(), cfg, m, pairs)
}

func manifestDefaults(cfg *config.Config) manifest.Defaults {
	return manifest.Defaults{
		OnExists:    cfg.Transfer.OnExists,
		Concurrency: cfg.Batch.Concurrency,
		RateLimit:   cfg.Batch.RateLimit,
	}
}

func showBatchPlan(w io.Writer, m *manifest.Manifest, pairs []manifest.Pair) error {
	excluded := 0
	for _, p := range pairs {
		if p.Excluded {
			excluded++
		}
	}

	fmt.Fprintln(w, "=== Batch Plan ===")
	fmt.Fprintln(w)
	fmt.Fprintf(w, "Items:    %d (%d excluded)\n", len(pairs), excluded)
	fmt.Fprintf(w, "Workers:  %d\n", m.Concurrency)
	if m.RateLimit > 0 {
		fmt.Fprintf(w, "Rate:     %g/s\n", m.RateLimit)
	}
	fmt.Fprintf(w, "OnExists: %s\n", m.OnExists)
	fmt.Fprintf(w, "Root:     %s\n", m.DestinationRoot)
	if m.DestinationTemplate != "" {
		fmt.Fprintf(w, "Template: %s\n", m.DestinationTemplate)
	}
	if len(m.Exclude) > 0 {
		fmt.Fprintf(w, "Excludes: %s\n", strings.Join(m.Exclude, ", "))
	}
	fmt.Fprintf(w, "Output:   %s\n", m.Output.Destination)
	fmt.Fprintln(w)
	for _, p := range pairs {
		if p.Excluded {
			fmt.Fprintf(w, "  %4d  %s  (excluded by %s)\n", p.Seq, locator.Redact(p.Source), p.ExcludedBy)
			continue
		}
		fmt.Fprintf(w, "  %4d  %s -> %s  [%s]\n", p.Seq, locator.Redact(p.Source), p.Destination, p.Policy)
	}
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Manifest validated successfully. Remove --plan to execute.")
	return nil
}

func executeBatch(ctx context.Context, stdout io.Writer, cfg *config.Config, m *manifest.Manifest, pairs []manifest.Pair) error {
	jobID := uuid.New().String()

	sources := make([]string, 0, len(pairs))
	for _, p := range pairs {
		if !p.Excluded {
			sources = append(sources, p.Source)
		}
	}
	reg, err := newRegistry(ctx, cfg, needsS3(sources...), s3Config(cfg, m.S3))
	if err != nil {
		observability.CLILogger.Error("Failed to create provider", zap.Error(err))
		return exitError(foundry.ExitExternalServiceUnavailable, "Failed to connect to storage provider", err)
	}
	defer func() { _ = reg.Close() }()

	writer, cleanup, err := createWriter(stdout, m, jobID)
	if err != nil {
		observability.CLILogger.Error("Failed to create writer", zap.Error(err))
		return exitError(foundry.ExitFileWriteError, "Failed to create output", err)
	}
	defer cleanup()

	var store *checkpoint.Store
	if batchCheckpoint != "" {
		store, err = checkpoint.Open(ctx, checkpoint.Config{Path: batchCheckpoint})
		if err != nil {
			observability.CLILogger.Error("Failed to open checkpoint", zap.String("path", batchCheckpoint), zap.Error(err))
			return exitError(foundry.ExitFileWriteError, "Failed to open checkpoint", err)
		}
		defer func() { _ = store.Close() }()
	}

	runner := batch.New(newVerifier(reg, observability.CLILogger), writer, batch.Config{
		Concurrency:   m.Concurrency,
		RateLimit:     m.RateLimit,
		ProgressEvery: cfg.Batch.ProgressEvery,
		Resume:        batchResume,
	}, batch.Options{
		Checkpoint: store,
		Logger:     observability.CLILogger,
		JobID:      jobID,
	})

	observability.CLILogger.Info("Starting batch",
		zap.String("job_id", jobID),
		zap.Int("items", len(pairs)),
		zap.Int("concurrency", m.Concurrency))

	summary, err := runner.Run(ctx, pairs)
	if err != nil {
		if ctx.Err() != nil {
			observability.CLILogger.Warn("Batch cancelled", zap.String("job_id", jobID))
			return exitError(foundry.ExitSignalInt, "Batch cancelled", err)
		}
		observability.CLILogger.Error("Batch failed", zap.String("job_id", jobID), zap.Error(err))
		return exitError(foundry.ExitFileWriteError, "Batch failed", err)
	}

	observability.CLILogger.Info("Batch completed",
		zap.String("job_id", jobID),
		zap.Int64("transferred", summary.Transferred),
		zap.Int64("skipped", summary.Skipped),
		zap.Int64("errors", summary.Errors),
		zap.Int64("bytes_total", summary.BytesTotal),
		zap.Duration("duration", summary.Duration))

	if summary.Errors > 0 {
		return exitError(foundry.ExitExternalServiceUnavailable, "Batch completed with errors", fmt.Errorf("errors=%d", summary.Errors))
	}
	return nil
}

// createWriter creates an output writer from manifest configuration.
// Returns the writer, a cleanup function, and any error.
func createWriter(stdout io.Writer, m *manifest.Manifest, jobID string) (output.Writer, func(), error) {
	wrap := func(w output.Writer) output.Writer {
		if batchQuiet || !m.Output.ProgressEnabled() {
			return output.WithoutProgress(w)
		}
		return w
	}

	dest := m.Output.Destination
	if dest == "" || dest == "stdout" {
		w := output.NewJSONLWriter(stdout, jobID)
		return wrap(w), func() { _ = w.Close() }, nil
	}

	path := strings.TrimPrefix(dest, "file:")
	f, err := os.Create(path)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create output file %s: %w", path, err)
	}

	w := output.NewJSONLWriter(f, jobID)
	cleanup := func() {
		_ = w.Close()
		_ = f.Close()
	}
	return wrap(w), cleanup, nil
}
