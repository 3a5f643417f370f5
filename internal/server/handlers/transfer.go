package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"net/http"
	"net/url"
	"path/filepath"
	"strings"
	"time"

	"github.com/bmatcuk/doublestar/v4"
	"go.uber.org/zap"

	apperrors "github.com/3leaps/goferry/internal/errors"
	"github.com/3leaps/goferry/pkg/batch"
	"github.com/3leaps/goferry/pkg/locator"
	"github.com/3leaps/goferry/pkg/transfer"
)

const maxRequestBody = 1 << 20

// Engine runs transfers and size lookups. *transfer.Verifier satisfies it.
type Engine interface {
	Transfer(ctx context.Context, source, destination string, policy transfer.ConflictPolicy) (*transfer.Result, error)
	Size(ctx context.Context, loc string) transfer.SizeSample
}

// TransferRequest is the body of POST /v1/transfers.
type TransferRequest struct {
	Source      string `json:"source"`
	Destination string `json:"destination"`

	// OnExists overrides the server's default conflict policy.
	OnExists string `json:"on_exists,omitempty"`
}

// TransferResponse describes a completed transfer.
type TransferResponse struct {
	Source           string `json:"source"`
	Destination      string `json:"destination"`
	FinalDestination string `json:"final_destination"`
	SourceKind       string `json:"source_kind"`
	Policy           string `json:"policy"`

	// Outcome is transferred, same_location or use_existing.
	Outcome string `json:"outcome"`

	Bytes         int64  `json:"bytes"`
	ExpectedBytes *int64 `json:"expected_bytes,omitempty"`
	Verified      bool   `json:"verified"`
	DurationMs    int64  `json:"duration_ms"`
}

// Transfer outcomes.
const (
	OutcomeTransferred  = "transferred"
	OutcomeSameLocation = "same_location"
	OutcomeUseExisting  = "use_existing"
)

// SizeResponse is the body of GET /v1/size.
type SizeResponse struct {
	Locator string `json:"locator"`
	Known   bool   `json:"known"`

	// Bytes is omitted when the size is unknown.
	Bytes *int64 `json:"bytes,omitempty"`
}

// TransferHandler serves the transfer API.
type TransferHandler struct {
	engine          Engine
	log             *zap.Logger
	defaultPolicy   transfer.ConflictPolicy
	destinationRoot string
	sourceRoot      string
	allowedHosts    []string
	locks           *batch.KeyLock
}

// TransferHandlerConfig configures a TransferHandler.
type TransferHandlerConfig struct {
	// DefaultPolicy applies when a request names none. Zero means Rename.
	DefaultPolicy transfer.ConflictPolicy

	// DestinationRoot confines destinations: when set, a destination must be
	// a relative path and is resolved under the root.
	DestinationRoot string

	// SourceRoot confines local sources and size locators: when set, a local
	// locator must name a file under the root. Relative paths are resolved
	// under it.
	SourceRoot string

	// AllowedHosts lists doublestar patterns matched against the host of a
	// remote source or size locator (the bucket for s3). Empty allows any
	// host.
	AllowedHosts []string

	Logger *zap.Logger
}

// NewTransferHandler creates a TransferHandler.
func NewTransferHandler(engine Engine, cfg TransferHandlerConfig) *TransferHandler {
	log := cfg.Logger
	if log == nil {
		log = zap.NewNop()
	}
	policy := cfg.DefaultPolicy
	if !policy.Valid() {
		policy = transfer.Rename
	}
	sourceRoot := cfg.SourceRoot
	if sourceRoot != "" {
		sourceRoot = filepath.Clean(sourceRoot)
	}
	return &TransferHandler{
		engine:          engine,
		log:             log,
		defaultPolicy:   policy,
		destinationRoot: cfg.DestinationRoot,
		sourceRoot:      sourceRoot,
		allowedHosts:    cfg.AllowedHosts,
		locks:           batch.NewKeyLock(),
	}
}

// Transfer handles POST /v1/transfers. Requests for the same destination are
// served one at a time.
func (h *TransferHandler) Transfer(w http.ResponseWriter, r *http.Request) {
	var req TransferRequest
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxRequestBody))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&req); err != nil {
		apperrors.WriteError(w, http.StatusBadRequest, apperrors.CodeBadRequest, "invalid request body: "+err.Error(), nil)
		return
	}
	if req.Source == "" || req.Destination == "" {
		apperrors.WriteError(w, http.StatusBadRequest, apperrors.CodeBadRequest, "source and destination are required", nil)
		return
	}

	policy := h.defaultPolicy
	if req.OnExists != "" {
		p, err := transfer.ParsePolicy(req.OnExists)
		if err != nil {
			respondWithError(w, r, err)
			return
		}
		policy = p
	}

	src, err := h.resolveSource(req.Source)
	if err != nil {
		respondWithError(w, r, err)
		return
	}
	dst, err := h.resolveDestination(req.Destination)
	if err != nil {
		respondWithError(w, r, err)
		return
	}

	unlock := h.locks.LockDestination(dst)
	res, err := h.engine.Transfer(r.Context(), src, dst, policy)
	unlock()
	if err != nil {
		h.log.Warn("transfer failed",
			zap.String("source", locator.Redact(req.Source)),
			zap.String("destination", dst),
			zap.String("code", transfer.ErrorCode(err)),
			zap.Error(err))
		respondWithError(w, r, err)
		return
	}

	outcome := OutcomeTransferred
	switch {
	case res.Skipped:
		outcome = OutcomeSameLocation
	case res.Reused:
		outcome = OutcomeUseExisting
	}
	writeJSON(w, http.StatusOK, TransferResponse{
		Source:           locator.Redact(req.Source),
		Destination:      dst,
		FinalDestination: res.Destination,
		SourceKind:       res.Kind.String(),
		Policy:           policy.String(),
		Outcome:          outcome,
		Bytes:            res.Bytes,
		ExpectedBytes:    res.Expected.Ptr(),
		Verified:         res.Verified,
		DurationMs:       res.Duration.Milliseconds(),
	})
}

// Size handles GET /v1/size?locator=... A size that cannot be determined
// is reported as unknown, never as an error.
func (h *TransferHandler) Size(w http.ResponseWriter, r *http.Request) {
	loc := r.URL.Query().Get("locator")
	if loc == "" {
		apperrors.WriteError(w, http.StatusBadRequest, apperrors.CodeBadRequest, "locator query parameter is required", nil)
		return
	}
	resolved, err := h.resolveSource(loc)
	if err != nil {
		respondWithError(w, r, err)
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), time.Minute)
	defer cancel()
	s := h.engine.Size(ctx, resolved)
	writeJSON(w, http.StatusOK, SizeResponse{
		Locator: locator.Redact(loc),
		Known:   s.Known,
		Bytes:   s.Ptr(),
	})
}

func (h *TransferHandler) resolveDestination(dst string) (string, error) {
	if h.destinationRoot == "" {
		return dst, nil
	}
	if locator.Classify(dst) != locator.KindLocalPath || filepath.IsAbs(dst) {
		return "", fmt.Errorf("%w: destination must be a relative path", transfer.ErrInvalidLocator)
	}
	clean := filepath.Clean(dst)
	if clean == "." || clean == ".." || strings.HasPrefix(clean, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("%w: destination escapes the destination root", transfer.ErrInvalidLocator)
	}
	return filepath.Join(h.destinationRoot, clean), nil
}

// resolveSource applies SourceRoot to local locators and AllowedHosts to
// remote ones. The returned locator is what the engine sees.
func (h *TransferHandler) resolveSource(src string) (string, error) {
	if locator.Classify(src) == locator.KindRemoteURL {
		return src, h.checkHost(src)
	}
	if h.sourceRoot == "" {
		return src, nil
	}
	p, err := locator.LocalPath(src)
	if err != nil {
		return "", fmt.Errorf("%w: %v", transfer.ErrInvalidLocator, err)
	}
	if !filepath.IsAbs(p) {
		p = filepath.Join(h.sourceRoot, p)
	}
	p = filepath.Clean(p)
	if !within(h.sourceRoot, p) {
		return "", fmt.Errorf("%w: source is outside the source root", transfer.ErrInvalidLocator)
	}
	// A symlink under the root may still point elsewhere. A missing file is
	// left for the engine to report.
	resolved, err := filepath.EvalSymlinks(p)
	switch {
	case err == nil:
		root, rootErr := filepath.EvalSymlinks(h.sourceRoot)
		if rootErr != nil {
			root = h.sourceRoot
		}
		if !within(root, resolved) {
			return "", fmt.Errorf("%w: source is outside the source root", transfer.ErrInvalidLocator)
		}
	case !errors.Is(err, fs.ErrNotExist):
		return "", fmt.Errorf("%w: %v", transfer.ErrInvalidLocator, err)
	}
	return p, nil
}

func (h *TransferHandler) checkHost(src string) error {
	if len(h.allowedHosts) == 0 {
		return nil
	}
	u, err := url.Parse(src)
	if err != nil {
		return fmt.Errorf("%w: %v", transfer.ErrInvalidLocator, err)
	}
	host := strings.ToLower(u.Hostname())
	for _, pattern := range h.allowedHosts {
		if ok, _ := doublestar.Match(strings.ToLower(pattern), host); ok {
			return nil
		}
	}
	return fmt.Errorf("%w: host %q is not allowed", transfer.ErrInvalidLocator, host)
}

// within reports whether p is root or lies under it. Both must be clean.
func within(root, p string) bool {
	rel, err := filepath.Rel(root, p)
	if err != nil {
		return false
	}
	return rel == "." || (rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator)))
}
