// Package checkpoint records per-pair batch outcomes in a local SQLite file
// so an interrupted batch can resume without redoing finished pairs.
package checkpoint

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"
)

const schemaVersion = 1

// Item statuses.
const (
	StatusComplete = "complete"
	StatusSkipped  = "skipped"
	StatusFailed   = "failed"
)

// Store is a checkpoint database handle.
type Store struct {
	db *sql.DB
}

// Config configures Open.
type Config struct {
	// Path is a file path, a "file:" DSN, or ":memory:".
	Path string
}

// Open opens (and creates if needed) a checkpoint database.
//
// Parent directories of a file path are created. File databases use WAL and a
// busy timeout on a single connection.
func Open(ctx context.Context, cfg Config) (*Store, error) {
	dsn, err := buildDSN(cfg.Path)
	if err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open checkpoint: %w", err)
	}
	// A single connection keeps ":memory:" databases alive and serializes writers.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping checkpoint: %w", err)
	}
	if err := configure(ctx, db, dsn); err != nil {
		_ = db.Close()
		return nil, err
	}

	s := &Store{db: db}
	if err := s.ensureSchema(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

// Close closes the database.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func buildDSN(path string) (string, error) {
	path = strings.TrimSpace(path)
	switch {
	case path == "":
		return "", errors.New("checkpoint path is required")
	case path == ":memory:":
		return path, nil
	case strings.HasPrefix(path, "file:"):
		local := strings.TrimPrefix(path, "file:")
		if i := strings.IndexByte(local, '?'); i >= 0 {
			local = local[:i]
		}
		if err := ensureDir(local); err != nil {
			return "", err
		}
		return path, nil
	default:
		if err := ensureDir(path); err != nil {
			return "", err
		}
		return "file:" + filepath.Clean(path), nil
	}
}

func ensureDir(path string) error {
	dir := filepath.Dir(filepath.Clean(path))
	if dir == "." || dir == string(filepath.Separator) {
		return nil
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create checkpoint directory: %w", err)
	}
	return nil
}

func configure(ctx context.Context, db *sql.DB, dsn string) error {
	if dsn == ":memory:" {
		return nil
	}

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	var journalMode string
	if err := db.QueryRowContext(ctx, "PRAGMA journal_mode=WAL").Scan(&journalMode); err != nil {
		return fmt.Errorf("enable WAL mode: %w", err)
	}
	var busyTimeout int
	if err := db.QueryRowContext(ctx, "PRAGMA busy_timeout=5000").Scan(&busyTimeout); err != nil {
		return fmt.Errorf("set busy timeout: %w", err)
	}
	return nil
}

func (s *Store) ensureSchema(ctx context.Context) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS checkpoint_meta (
			id INTEGER PRIMARY KEY CHECK (id = 1),
			schema_version INTEGER NOT NULL,
			created_at TEXT NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS transfer_items (
			source TEXT NOT NULL,
			destination TEXT NOT NULL,
			seq INTEGER NOT NULL,
			final_destination TEXT,
			status TEXT NOT NULL,
			bytes INTEGER NOT NULL DEFAULT 0,
			expected_bytes INTEGER,
			error_code TEXT,
			error_message TEXT,
			job_id TEXT,
			updated_at TEXT NOT NULL,
			PRIMARY KEY (source, destination)
		);`,
		`CREATE INDEX IF NOT EXISTS idx_transfer_items_status ON transfer_items(status);`,
	}
	for _, stmt := range stmts {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("init schema: %w", err)
		}
	}

	now := time.Now().UTC().Format(time.RFC3339Nano)
	if _, err := s.db.ExecContext(ctx,
		`INSERT OR IGNORE INTO checkpoint_meta (id, schema_version, created_at) VALUES (1, ?, ?);`,
		schemaVersion, now); err != nil {
		return fmt.Errorf("init schema meta: %w", err)
	}

	var version int
	if err := s.db.QueryRowContext(ctx, `SELECT schema_version FROM checkpoint_meta WHERE id = 1`).Scan(&version); err != nil {
		return fmt.Errorf("read schema version: %w", err)
	}
	if version != schemaVersion {
		return fmt.Errorf("checkpoint schema version %d not supported (want %d)", version, schemaVersion)
	}
	return nil
}

// ItemDone reports whether the pair finished in an earlier run. Complete and
// skipped pairs are done; failed pairs are retried on resume.
func (s *Store) ItemDone(ctx context.Context, source, destination string) (bool, string, error) {
	var status string
	err := s.db.QueryRowContext(ctx,
		`SELECT status FROM transfer_items WHERE source = ? AND destination = ?`,
		source, destination).Scan(&status)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return false, "", nil
		}
		return false, "", err
	}
	switch status {
	case StatusComplete, StatusSkipped:
		return true, status, nil
	default:
		return false, status, nil
	}
}

// Item is one checkpoint row.
type Item struct {
	Seq              int
	Source           string
	Destination      string
	FinalDestination string
	Status           string
	Bytes            int64

	// ExpectedBytes is nil when the source size was unknown.
	ExpectedBytes *int64

	ErrorCode    string
	ErrorMessage string
	JobID        string

	// UpdatedAt defaults to now.
	UpdatedAt time.Time
}

// UpsertItem inserts or replaces the row for (Source, Destination).
func (s *Store) UpsertItem(ctx context.Context, it Item) error {
	if it.UpdatedAt.IsZero() {
		it.UpdatedAt = time.Now()
	}
	var expected sql.NullInt64
	if it.ExpectedBytes != nil {
		expected = sql.NullInt64{Int64: *it.ExpectedBytes, Valid: true}
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO transfer_items (
			source, destination, seq, final_destination, status, bytes, expected_bytes, error_code, error_message, job_id, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(source, destination) DO UPDATE SET
			seq=excluded.seq,
			final_destination=excluded.final_destination,
			status=excluded.status,
			bytes=excluded.bytes,
			expected_bytes=excluded.expected_bytes,
			error_code=excluded.error_code,
			error_message=excluded.error_message,
			job_id=excluded.job_id,
			updated_at=excluded.updated_at
	`,
		it.Source, it.Destination, it.Seq, it.FinalDestination, it.Status, it.Bytes, expected,
		it.ErrorCode, it.ErrorMessage, it.JobID, it.UpdatedAt.UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("upsert checkpoint item %d: %w", it.Seq, err)
	}
	return nil
}

// GetItem returns the row for a pair, or nil when there is none.
func (s *Store) GetItem(ctx context.Context, source, destination string) (*Item, error) {
	var (
		it        Item
		final     sql.NullString
		expected  sql.NullInt64
		code, msg sql.NullString
		jobID     sql.NullString
		updated   string
	)
	err := s.db.QueryRowContext(ctx, `
		SELECT seq, source, destination, final_destination, status, bytes, expected_bytes, error_code, error_message, job_id, updated_at
		FROM transfer_items WHERE source = ? AND destination = ?
	`, source, destination).Scan(
		&it.Seq, &it.Source, &it.Destination, &final, &it.Status, &it.Bytes, &expected, &code, &msg, &jobID, &updated,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}

	it.FinalDestination = final.String
	if expected.Valid {
		n := expected.Int64
		it.ExpectedBytes = &n
	}
	it.ErrorCode = code.String
	it.ErrorMessage = msg.String
	it.JobID = jobID.String
	if t, err := time.Parse(time.RFC3339Nano, updated); err == nil {
		it.UpdatedAt = t
	}
	return &it, nil
}

// Counts is the number of rows per status.
type Counts struct {
	Complete int
	Skipped  int
	Failed   int
}

// Total returns the number of rows counted.
func (c Counts) Total() int {
	return c.Complete + c.Skipped + c.Failed
}

// Counts returns row counts grouped by status.
func (s *Store) Counts(ctx context.Context) (Counts, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT status, COUNT(*) FROM transfer_items GROUP BY status`)
	if err != nil {
		return Counts{}, err
	}
	defer func() { _ = rows.Close() }()

	var c Counts
	for rows.Next() {
		var (
			status string
			n      int
		)
		if err := rows.Scan(&status, &n); err != nil {
			return Counts{}, err
		}
		switch status {
		case StatusComplete:
			c.Complete = n
		case StatusSkipped:
			c.Skipped = n
		case StatusFailed:
			c.Failed = n
		}
	}
	return c, rows.Err()
}
