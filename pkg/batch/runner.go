// Package batch runs numbered transfer pairs through the transfer engine.
//
// The runner is the caller the engine expects: it feeds (source, destination,
// policy) triples to a Transferer, serializes pairs that share a destination,
// and records every outcome as a JSONL record and, optionally, a checkpoint
// row. Failed pairs are recorded and the run continues.
package batch

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/3leaps/goferry/pkg/checkpoint"
	"github.com/3leaps/goferry/pkg/locator"
	"github.com/3leaps/goferry/pkg/manifest"
	"github.com/3leaps/goferry/pkg/output"
	"github.com/3leaps/goferry/pkg/transfer"
)

// Transferer performs a single verified transfer. *transfer.Verifier
// satisfies it.
type Transferer interface {
	Transfer(ctx context.Context, source, destination string, policy transfer.ConflictPolicy) (*transfer.Result, error)
}

// Config configures a batch run.
type Config struct {
	// Concurrency is the number of transfer workers.
	// Default: 4.
	Concurrency int

	// RateLimit is the maximum transfers started per second (0 = unlimited).
	RateLimit float64

	// ProgressEvery emits a progress record every N finished pairs.
	// Default: 100.
	ProgressEvery int

	// Resume skips pairs the checkpoint already marks complete or skipped.
	Resume bool
}

// DefaultConfig returns the default batch configuration.
func DefaultConfig() Config {
	return Config{
		Concurrency:   4,
		ProgressEvery: 100,
	}
}

// Summary contains statistics from a completed run.
type Summary struct {
	Items       int64
	Transferred int64
	Skipped     int64
	Errors      int64
	BytesTotal  int64
	Duration    time.Duration
}

// Runner executes a batch. A Runner is single-use.
type Runner struct {
	engine Transferer
	writer output.Writer
	store  *checkpoint.Store
	log    *zap.Logger
	config Config
	jobID  string

	// Rate limiter (nil if unlimited)
	limiter *rate.Limiter
	locks   *KeyLock

	completed   atomic.Int64
	transferred atomic.Int64
	skipped     atomic.Int64
	bytesTotal  atomic.Int64
	errorCount  atomic.Int64

	total int64
}

// Options carries the optional collaborators of a Runner.
type Options struct {
	// Checkpoint records per-pair outcomes. Nil disables checkpointing and
	// makes Config.Resume a no-op.
	Checkpoint *checkpoint.Store

	// Logger receives run-level and per-pair logs. Nil disables logging.
	Logger *zap.Logger

	// JobID correlates records. Empty generates a UUID.
	JobID string
}

// New creates a runner.
func New(engine Transferer, w output.Writer, cfg Config, opts Options) *Runner {
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = DefaultConfig().Concurrency
	}
	if cfg.ProgressEvery <= 0 {
		cfg.ProgressEvery = DefaultConfig().ProgressEvery
	}
	if w == nil {
		w = output.Discard
	}
	jobID := opts.JobID
	if jobID == "" {
		jobID = uuid.NewString()
	}
	log := opts.Logger
	if log == nil {
		log = zap.NewNop()
	}

	r := &Runner{
		engine: engine,
		writer: w,
		store:  opts.Checkpoint,
		log:    log.With(zap.String("job_id", jobID)),
		config: cfg,
		jobID:  jobID,
		locks:  NewKeyLock(),
	}
	if cfg.RateLimit > 0 {
		r.limiter = rate.NewLimiter(rate.Limit(cfg.RateLimit), 1)
	}
	return r
}

// JobID returns the run's correlation ID.
func (r *Runner) JobID() string {
	return r.jobID
}

// Run processes pairs and returns summary statistics.
//
// Per-pair failures are written as error records and counted; they never stop
// the run. Run stops early only when ctx is cancelled or when an output or
// checkpoint write fails, returning the partial summary with the error.
func (r *Runner) Run(ctx context.Context, pairs []manifest.Pair) (*Summary, error) {
	start := time.Now()
	r.total = int64(len(pairs))

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	r.log.Info("batch starting",
		zap.Int("items", len(pairs)),
		zap.Int("concurrency", r.config.Concurrency),
		zap.Float64("rate_limit", r.config.RateLimit),
		zap.Bool("resume", r.config.Resume && r.store != nil))

	if err := r.writeProgress(ctx, output.PhaseStarting); err != nil {
		return nil, err
	}

	var (
		fatalOnce sync.Once
		fatalErr  error
	)
	fail := func(err error) {
		fatalOnce.Do(func() {
			fatalErr = err
			cancel()
		})
	}

	work := make(chan manifest.Pair)
	var wg sync.WaitGroup
	for i := 0; i < r.config.Concurrency; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for p := range work {
				if err := r.runOne(ctx, p); err != nil {
					fail(err)
					return
				}
				if n := r.completed.Add(1); n%int64(r.config.ProgressEvery) == 0 {
					if err := r.writeProgress(ctx, output.PhaseTransferring); err != nil {
						fail(err)
						return
					}
				}
			}
		}()
	}

feed:
	for _, p := range pairs {
		select {
		case work <- p:
		case <-ctx.Done():
			break feed
		}
	}
	close(work)
	wg.Wait()

	summary := r.buildSummary(time.Since(start))
	if fatalErr != nil {
		return summary, fatalErr
	}
	if err := ctx.Err(); err != nil {
		r.log.Warn("batch cancelled", zap.Int64("completed", r.completed.Load()), zap.Error(err))
		return summary, err
	}

	if err := r.writeProgress(ctx, output.PhaseComplete); err != nil {
		return summary, err
	}
	if err := r.writeSummary(ctx, summary); err != nil {
		return summary, err
	}
	r.log.Info("batch complete",
		zap.Int64("transferred", summary.Transferred),
		zap.Int64("skipped", summary.Skipped),
		zap.Int64("errors", summary.Errors),
		zap.Int64("bytes_total", summary.BytesTotal),
		zap.Duration("duration", summary.Duration))
	return summary, nil
}

// runOne processes a single pair. Only output and checkpoint failures are
// returned; transfer failures become error records.
func (r *Runner) runOne(ctx context.Context, p manifest.Pair) error {
	if p.Excluded {
		r.skipped.Add(1)
		return r.writer.WriteSkip(ctx, &output.SkipRecord{
			Seq:         int64(p.Seq),
			Source:      locator.Redact(p.Source),
			Destination: p.Destination,
			Reason:      output.SkipExcluded,
		})
	}

	if r.config.Resume && r.store != nil {
		done, status, err := r.store.ItemDone(ctx, p.Source, p.Destination)
		if err != nil {
			return fmt.Errorf("checkpoint lookup for item %d: %w", p.Seq, err)
		}
		if done {
			r.log.Debug("pair already done", zap.Int("seq", p.Seq), zap.String("status", status))
			r.skipped.Add(1)
			return r.writer.WriteSkip(ctx, &output.SkipRecord{
				Seq:         int64(p.Seq),
				Source:      locator.Redact(p.Source),
				Destination: p.Destination,
				Reason:      output.SkipCheckpoint,
			})
		}
	}

	if err := r.waitForRateLimit(ctx); err != nil {
		// Cancelled while waiting; the pair is not attempted.
		return nil
	}

	unlock := r.locks.LockDestination(p.Destination)
	res, err := r.engine.Transfer(ctx, p.Source, p.Destination, p.Policy)
	unlock()

	if err != nil {
		if ctx.Err() != nil && errors.Is(err, ctx.Err()) {
			// Cancelled mid-transfer; leave it unrecorded so a resume retries it.
			return nil
		}
		return r.recordFailure(ctx, p, err)
	}
	return r.recordResult(ctx, p, res)
}

func (r *Runner) recordResult(ctx context.Context, p manifest.Pair, res *transfer.Result) error {
	row := checkpoint.Item{
		Seq:              p.Seq,
		Source:           p.Source,
		Destination:      p.Destination,
		FinalDestination: res.Destination,
		Bytes:            res.Bytes,
		ExpectedBytes:    res.Expected.Ptr(),
		JobID:            r.jobID,
	}

	var err error
	if res.Skipped || res.Reused {
		reason := output.SkipUseExisting
		if res.Skipped {
			reason = output.SkipSameLocation
		}
		r.skipped.Add(1)
		row.Status = checkpoint.StatusSkipped
		err = r.writer.WriteSkip(ctx, &output.SkipRecord{
			Seq:         int64(p.Seq),
			Source:      locator.Redact(p.Source),
			Destination: p.Destination,
			Reason:      reason,
		})
	} else {
		r.transferred.Add(1)
		r.bytesTotal.Add(res.Bytes)
		row.Status = checkpoint.StatusComplete
		err = r.writer.WriteTransfer(ctx, &output.TransferRecord{
			Seq:              int64(p.Seq),
			Source:           locator.Redact(p.Source),
			Destination:      p.Destination,
			FinalDestination: res.Destination,
			SourceKind:       res.Kind.String(),
			Bytes:            res.Bytes,
			ExpectedBytes:    res.Expected.Ptr(),
			Verified:         res.Verified,
			Policy:           p.Policy.String(),
			DurationMs:       res.Duration.Milliseconds(),
		})
	}
	if err != nil {
		return err
	}
	return r.checkpoint(ctx, row)
}

func (r *Runner) recordFailure(ctx context.Context, p manifest.Pair, err error) error {
	r.errorCount.Add(1)
	code := transfer.ErrorCode(err)
	r.log.Warn("transfer failed",
		zap.Int("seq", p.Seq),
		zap.String("source", locator.Redact(p.Source)),
		zap.String("destination", p.Destination),
		zap.String("code", code),
		zap.Error(err))

	rec := &output.ErrorRecord{
		Code:        code,
		Message:     err.Error(),
		Seq:         int64(p.Seq),
		Source:      locator.Redact(p.Source),
		Destination: p.Destination,
	}
	row := checkpoint.Item{
		Seq:          p.Seq,
		Source:       p.Source,
		Destination:  p.Destination,
		Status:       checkpoint.StatusFailed,
		ErrorCode:    code,
		ErrorMessage: err.Error(),
		JobID:        r.jobID,
	}

	var ime *transfer.IntegrityMismatchError
	if errors.As(err, &ime) {
		rec.Details = map[string]any{
			"resource":       ime.Resource,
			"expected_bytes": ime.Expected,
			"actual_bytes":   ime.Actual,
		}
		row.Bytes = ime.Actual
		expected := ime.Expected
		row.ExpectedBytes = &expected
	}

	if err := r.writer.WriteError(ctx, rec); err != nil {
		return err
	}
	return r.checkpoint(ctx, row)
}

func (r *Runner) checkpoint(ctx context.Context, row checkpoint.Item) error {
	if r.store == nil {
		return nil
	}
	return r.store.UpsertItem(ctx, row)
}

// waitForRateLimit blocks until the rate limiter allows a transfer.
func (r *Runner) waitForRateLimit(ctx context.Context) error {
	if r.limiter == nil {
		return nil
	}
	return r.limiter.Wait(ctx)
}

func (r *Runner) writeProgress(ctx context.Context, phase string) error {
	return r.writer.WriteProgress(ctx, &output.ProgressRecord{
		Phase:      phase,
		Total:      r.total,
		Completed:  r.completed.Load(),
		BytesTotal: r.bytesTotal.Load(),
	})
}

func (r *Runner) writeSummary(ctx context.Context, s *Summary) error {
	return r.writer.WriteSummary(ctx, &output.SummaryRecord{
		Items:         s.Items,
		Transferred:   s.Transferred,
		Skipped:       s.Skipped,
		Errors:        s.Errors,
		BytesTotal:    s.BytesTotal,
		Duration:      s.Duration,
		DurationHuman: s.Duration.Round(time.Millisecond).String(),
	})
}

func (r *Runner) buildSummary(d time.Duration) *Summary {
	return &Summary{
		Items:       r.total,
		Transferred: r.transferred.Load(),
		Skipped:     r.skipped.Load(),
		Errors:      r.errorCount.Load(),
		BytesTotal:  r.bytesTotal.Load(),
		Duration:    d,
	}
}
