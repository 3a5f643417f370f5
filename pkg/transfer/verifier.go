// Package transfer implements verified single-file transfers.
//
// A transfer either finds the destination already in the requested state, or
// writes the full content and verifies it, or returns a typed error. Local
// sources are copied through a temp file and trusted once renamed into place.
// Remote sources are sized with a metadata request, streamed to the
// destination, and the bytes written are compared with the advertised size.
package transfer

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"go.uber.org/zap"

	"github.com/3leaps/goferry/pkg/locator"
	"github.com/3leaps/goferry/pkg/provider"
	httpprovider "github.com/3leaps/goferry/pkg/provider/http"
)

// Transfer states, as logged at debug level.
const (
	stateStart      = "start"
	stateClassified = "classified"
	stateSkipped    = "skipped"
	stateCopying    = "copying"
	stateFetching   = "fetching"
	stateVerifying  = "verifying"
	stateDone       = "done"
	stateFailed     = "failed"
)

// Options configures a Verifier.
type Options struct {
	// Logger receives state transitions and verification warnings.
	// Nil disables logging.
	Logger *zap.Logger

	// Providers resolves remote URLs. Nil registers an HTTP provider for
	// http and https using HTTPClient.
	Providers *provider.Registry

	// HTTPClient executes requests for the default HTTP provider.
	// Ignored when Providers is set.
	HTTPClient httpprovider.Doer
}

// Verifier runs transfers. It holds no per-call state and is safe for
// concurrent use; callers serialize transfers that share a destination.
type Verifier struct {
	log       *zap.Logger
	providers *provider.Registry
}

// New creates a Verifier.
func New(opts Options) *Verifier {
	log := opts.Logger
	if log == nil {
		log = zap.NewNop()
	}
	reg := opts.Providers
	if reg == nil {
		reg = provider.NewRegistry()
		reg.Register(httpprovider.New(httpprovider.Config{Client: opts.HTTPClient}), "http", "https")
	}
	return &Verifier{log: log, providers: reg}
}

// Result describes a successful transfer. It is only ever returned with a nil
// error, and its Destination is complete.
type Result struct {
	// Source is the source locator as supplied.
	Source string

	// Destination is the final destination path. A same-location no-op
	// returns the destination exactly as supplied.
	Destination string

	// Kind is the classification of the source.
	Kind locator.Kind

	// Skipped is true when source and destination were the same entry.
	Skipped bool

	// Reused is true when UseExisting kept an existing destination.
	Reused bool

	// Bytes is the number of bytes written.
	Bytes int64

	// Expected is the source size sample taken before the transfer.
	Expected SizeSample

	// Verified is true when a known expected size matched the bytes written.
	Verified bool

	// Duration is the wall time of the transfer.
	Duration time.Duration
}

// Transfer moves the content of source to destination under policy.
//
// Local sources must exist; a source that is the destination is a no-op.
// Remote sources are sized first (advisory), fetched, then verified: a known
// size that differs from the bytes written is an *IntegrityMismatchError, an
// unknown size completes unverified. A failed remote transfer leaves any
// partial destination file in place.
func (v *Verifier) Transfer(ctx context.Context, source, destination string, policy ConflictPolicy) (*Result, error) {
	start := time.Now()
	log := v.log.With(
		zap.String("source", locator.Redact(source)),
		zap.String("destination", destination),
		zap.Stringer("policy", policy),
	)
	log.Debug("transfer state", zap.String("state", stateStart))

	if !policy.Valid() {
		err := newError("transfer", ErrInvalidPolicy, "", fmt.Errorf("%s", policy))
		log.Debug("transfer state", zap.String("state", stateFailed), zap.Error(err))
		return nil, err
	}

	kind := locator.Classify(source)
	log.Debug("transfer state", zap.String("state", stateClassified), zap.Stringer("kind", kind))

	var (
		res *Result
		err error
	)
	if kind.IsLocal() {
		res, err = v.transferLocal(ctx, log, source, destination, policy)
	} else {
		res, err = v.transferRemote(ctx, log, source, destination, policy)
	}
	if err != nil {
		log.Debug("transfer state", zap.String("state", stateFailed), zap.Error(err))
		return nil, err
	}

	res.Source = source
	res.Kind = kind
	res.Duration = time.Since(start)
	log.Debug("transfer state",
		zap.String("state", stateDone),
		zap.String("final_destination", res.Destination),
		zap.Int64("actual_bytes", res.Bytes))
	return res, nil
}

func (v *Verifier) transferLocal(ctx context.Context, log *zap.Logger, source, destination string, policy ConflictPolicy) (*Result, error) {
	src, err := locator.LocalPath(source)
	if err != nil {
		return nil, newError("transfer", ErrInvalidLocator, source, err)
	}

	// Existence first: a stat is not a write.
	info, err := os.Stat(src)
	if err != nil {
		return nil, newError("transfer", ErrSourceNotFound, src, err)
	}
	if !info.Mode().IsRegular() {
		return nil, newError("transfer", ErrSourceNotFound, src, errors.New("not a regular file"))
	}
	expected := KnownSize(info.Size())

	if locator.SameLocation(source, destination) {
		log.Debug("transfer state", zap.String("state", stateSkipped))
		return &Result{Destination: destination, Skipped: true, Expected: expected}, nil
	}

	log.Debug("transfer state", zap.String("state", stateCopying))
	cr, err := v.copyLocal(ctx, source, destination, policy)
	if err != nil {
		if errors.Is(err, ErrInvalidLocator) {
			return nil, err
		}
		return nil, newError("transfer", ErrTransferFailed, src, err)
	}
	return &Result{
		Destination: cr.Destination,
		Skipped:     cr.Skipped,
		Reused:      cr.Reused,
		Bytes:       cr.Bytes,
		Expected:    expected,
	}, nil
}

func (v *Verifier) transferRemote(ctx context.Context, log *zap.Logger, source, destination string, policy ConflictPolicy) (*Result, error) {
	resource := locator.ResourcePath(source)

	log.Debug("transfer state", zap.String("state", stateFetching))
	expected := v.RemoteSize(ctx, source)

	fr, err := v.Fetch(ctx, source, destination, policy)
	if err != nil {
		// A read that died mid-stream against a known size is reported as the
		// truncation it produced; the network cause stays matchable.
		if fr != nil && expected.Known && fr.Bytes != expected.Bytes && IsNetworkError(err) {
			return nil, &IntegrityMismatchError{Resource: resource, Expected: expected.Bytes, Actual: fr.Bytes, Err: err}
		}
		return nil, err
	}
	if fr.Reused {
		log.Debug("transfer state", zap.String("state", stateSkipped))
		return &Result{Destination: fr.Destination, Reused: true, Expected: expected}, nil
	}

	log.Debug("transfer state", zap.String("state", stateVerifying), zap.Stringer("expected_bytes", expected))
	res := &Result{Destination: fr.Destination, Bytes: fr.Bytes, Expected: expected}

	if !expected.Known {
		log.Warn("source size unknown, transfer not verified",
			zap.String("resource", resource),
			zap.Int64("actual_bytes", fr.Bytes))
		return res, nil
	}
	if expected.Bytes != fr.Bytes {
		return nil, &IntegrityMismatchError{Resource: resource, Expected: expected.Bytes, Actual: fr.Bytes}
	}
	res.Verified = true
	return res, nil
}
