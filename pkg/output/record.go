// Package output provides JSONL output for transfer results.
//
// Output is structured as typed record envelopes containing transfers,
// skips, errors, and progress updates. Each line is a self-contained JSON
// object that can be parsed independently.
package output

import (
	"encoding/json"
	"errors"
	"time"
)

// Record type constants define the envelope types for JSONL output.
// These follow the pattern: goferry.<type>.v<version>
const (
	// TypeTransfer identifies completed transfer records.
	TypeTransfer = "goferry.transfer.v1"

	// TypeSkip identifies pairs that needed no transfer.
	TypeSkip = "goferry.skip.v1"

	// TypeError identifies error records.
	TypeError = "goferry.error.v1"

	// TypeProgress identifies progress update records.
	TypeProgress = "goferry.progress.v1"

	// TypeSummary identifies final summary records.
	TypeSummary = "goferry.summary.v1"
)

// Record is the envelope for all JSONL output.
//
// Each line of JSONL output contains a Record with a type-specific
// payload in the Data field. The type field determines how to
// interpret the Data payload.
type Record struct {
	// Type identifies the record type (e.g., "goferry.transfer.v1").
	Type string `json:"type"`

	// TS is the timestamp when the record was created (RFC3339Nano).
	TS time.Time `json:"ts"`

	// JobID is the correlation ID for this run.
	JobID string `json:"job_id"`

	// Data contains the type-specific payload as raw JSON.
	Data json.RawMessage `json:"data"`
}

// TransferRecord is the data payload for a completed transfer.
type TransferRecord struct {
	// Seq is the position of the pair in its batch, starting at 1.
	// Zero for one-off transfers.
	Seq int64 `json:"seq,omitempty"`

	// Source is the source locator as supplied.
	Source string `json:"source"`

	// Destination is the requested destination.
	Destination string `json:"destination"`

	// FinalDestination is where the content landed (differs under rename).
	FinalDestination string `json:"final_destination"`

	// SourceKind is local-path, local-uri or remote-url.
	SourceKind string `json:"source_kind"`

	// Bytes is the number of bytes written.
	Bytes int64 `json:"bytes"`

	// ExpectedBytes is the advertised source size; nil when unknown.
	ExpectedBytes *int64 `json:"expected_bytes,omitempty"`

	// Verified reports whether a size comparison actually took place.
	Verified bool `json:"verified"`

	// Policy is the conflict policy applied.
	Policy string `json:"policy"`

	// DurationMs is the wall time of the transfer in milliseconds.
	DurationMs int64 `json:"duration_ms"`
}

// SkipRecord is the data payload for pairs that needed no transfer.
type SkipRecord struct {
	Seq         int64  `json:"seq,omitempty"`
	Source      string `json:"source"`
	Destination string `json:"destination"`
	Reason      string `json:"reason"`
}

// Skip reasons.
const (
	// SkipSameLocation means source and destination are the same entry.
	SkipSameLocation = "same_location"

	// SkipUseExisting means the destination existed and was kept.
	SkipUseExisting = "use_existing"

	// SkipExcluded means an exclude pattern matched the source.
	SkipExcluded = "excluded"

	// SkipCheckpoint means a resumed run already completed the pair.
	SkipCheckpoint = "checkpoint"
)

// ErrorRecord is the data payload for errors.
//
// Errors are emitted as records rather than failing the entire batch,
// allowing partial results when some transfers fail.
type ErrorRecord struct {
	// Code is a machine-readable error code.
	Code string `json:"code"`

	// Message is a human-readable error description.
	Message string `json:"message"`

	// Seq is the batch position of the failing pair, if applicable.
	Seq int64 `json:"seq,omitempty"`

	// Source is the source locator related to this error, if applicable.
	Source string `json:"source,omitempty"`

	// Destination is the requested destination, if applicable.
	Destination string `json:"destination,omitempty"`

	// Details contains additional error context.
	Details any `json:"details,omitempty"`
}

// Error codes for ErrorRecord.
const (
	// ErrCodeSourceNotFound indicates the source does not exist.
	ErrCodeSourceNotFound = "SOURCE_NOT_FOUND"

	// ErrCodeDirectoryUnavailable indicates the destination directory could
	// not be created or made writable.
	ErrCodeDirectoryUnavailable = "DIRECTORY_UNAVAILABLE"

	// ErrCodeCopyFailed indicates the byte copy could not complete.
	ErrCodeCopyFailed = "COPY_FAILED"

	// ErrCodeNetwork indicates a connection, DNS, timeout or status failure.
	ErrCodeNetwork = "NETWORK_ERROR"

	// ErrCodeIntegrityMismatch indicates bytes written differ from the advertised size.
	ErrCodeIntegrityMismatch = "INTEGRITY_MISMATCH"

	// ErrCodeTransferFailed indicates a local transfer failed for another reason.
	ErrCodeTransferFailed = "TRANSFER_FAILED"

	// ErrCodeInvalidArgument indicates a malformed locator or policy.
	ErrCodeInvalidArgument = "INVALID_ARGUMENT"

	// ErrCodeTimeout indicates an operation timed out or was cancelled.
	ErrCodeTimeout = "TIMEOUT"

	// ErrCodeInternal indicates an unexpected internal error.
	ErrCodeInternal = "INTERNAL"
)

// ProgressRecord is the data payload for progress updates.
type ProgressRecord struct {
	// Phase indicates the current batch phase.
	Phase string `json:"phase"`

	// Total is the number of pairs in the batch.
	Total int64 `json:"total"`

	// Completed is the number of pairs finished so far (any outcome).
	Completed int64 `json:"completed"`

	// BytesTotal is the cumulative number of bytes written so far.
	BytesTotal int64 `json:"bytes_total"`
}

// Progress phase constants.
const (
	// PhaseStarting indicates the batch is initializing.
	PhaseStarting = "starting"

	// PhaseTransferring indicates pairs are being processed.
	PhaseTransferring = "transferring"

	// PhaseComplete indicates the batch has finished.
	PhaseComplete = "complete"
)

// SummaryRecord is the data payload for final summaries.
type SummaryRecord struct {
	// Items is the number of pairs considered.
	Items int64 `json:"items"`

	// Transferred is the number of pairs whose content was written.
	Transferred int64 `json:"transferred"`

	// Skipped is the number of pairs that needed no transfer.
	Skipped int64 `json:"skipped"`

	// Errors is the count of failed pairs.
	Errors int64 `json:"errors"`

	// BytesTotal is the cumulative number of bytes written.
	BytesTotal int64 `json:"bytes_total"`

	// Duration is the total run duration.
	Duration time.Duration `json:"duration_ns"`

	// DurationHuman is a human-readable duration string.
	DurationHuman string `json:"duration"`
}

// Writer errors.
var (
	// ErrWriterClosed is returned when writing to a closed writer.
	ErrWriterClosed = errors.New("writer is closed")
)

// WriteError wraps errors that occur during write operations.
type WriteError struct {
	Op  string // Operation that failed (e.g., "marshal_data", "write")
	Err error  // Underlying error
}

func (e *WriteError) Error() string {
	return "output: " + e.Op + ": " + e.Err.Error()
}

func (e *WriteError) Unwrap() error {
	return e.Err
}
