package output

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func decodeLine(t *testing.T, line []byte, payload any) Record {
	t.Helper()
	var record Record
	require.NoError(t, json.Unmarshal(line, &record))
	if payload != nil {
		require.NoError(t, json.Unmarshal(record.Data, payload))
	}
	return record
}

func TestNewJSONLWriter(t *testing.T) {
	var buf bytes.Buffer
	w := NewJSONLWriter(&buf, "job-123")

	assert.NotNil(t, w)
	assert.Equal(t, "job-123", w.JobID())
}

func TestJSONLWriter_WriteTransfer(t *testing.T) {
	var buf bytes.Buffer
	w := NewJSONLWriter(&buf, "job-123")
	fixed := time.Date(2024, 1, 15, 12, 0, 0, 0, time.UTC)
	w.now = func() time.Time { return fixed }

	expected := int64(2048)
	err := w.WriteTransfer(context.Background(), &TransferRecord{
		Seq:              3,
		Source:           "https://example.com/a.bin",
		Destination:      "/data/a.bin",
		FinalDestination: "/data/a_0.bin",
		SourceKind:       "remote-url",
		Bytes:            2048,
		ExpectedBytes:    &expected,
		Verified:         true,
		Policy:           "rename",
		DurationMs:       12,
	})
	require.NoError(t, err)

	var data TransferRecord
	record := decodeLine(t, buf.Bytes(), &data)

	assert.Equal(t, TypeTransfer, record.Type)
	assert.Equal(t, "job-123", record.JobID)
	assert.Equal(t, fixed, record.TS)
	assert.Equal(t, int64(3), data.Seq)
	assert.Equal(t, "/data/a_0.bin", data.FinalDestination)
	require.NotNil(t, data.ExpectedBytes)
	assert.Equal(t, int64(2048), *data.ExpectedBytes)
	assert.True(t, data.Verified)
}

func TestJSONLWriter_WriteTransfer_UnknownSize(t *testing.T) {
	var buf bytes.Buffer
	w := NewJSONLWriter(&buf, "job-123")

	err := w.WriteTransfer(context.Background(), &TransferRecord{Source: "s", Destination: "d", Bytes: 10})
	require.NoError(t, err)

	assert.NotContains(t, buf.String(), "expected_bytes")
	assert.Contains(t, buf.String(), `"verified":false`)
}

func TestJSONLWriter_WriteSkip(t *testing.T) {
	var buf bytes.Buffer
	w := NewJSONLWriter(&buf, "job-123")

	err := w.WriteSkip(context.Background(), &SkipRecord{
		Seq:         1,
		Source:      "/a",
		Destination: "/a",
		Reason:      SkipSameLocation,
	})
	require.NoError(t, err)

	var data SkipRecord
	record := decodeLine(t, buf.Bytes(), &data)
	assert.Equal(t, TypeSkip, record.Type)
	assert.Equal(t, SkipSameLocation, data.Reason)
}

func TestJSONLWriter_WriteError(t *testing.T) {
	var buf bytes.Buffer
	w := NewJSONLWriter(&buf, "job-123")

	err := w.WriteError(context.Background(), &ErrorRecord{
		Code:        ErrCodeIntegrityMismatch,
		Message:     "integrity mismatch for /a.bin: expected=100 got=40",
		Seq:         7,
		Source:      "https://example.com/a.bin",
		Destination: "/data/a.bin",
		Details:     map[string]any{"expected_bytes": 100, "actual_bytes": 40},
	})
	require.NoError(t, err)

	var data ErrorRecord
	record := decodeLine(t, buf.Bytes(), &data)
	assert.Equal(t, TypeError, record.Type)
	assert.Equal(t, ErrCodeIntegrityMismatch, data.Code)
	assert.Equal(t, int64(7), data.Seq)
	assert.NotNil(t, data.Details)
}

func TestJSONLWriter_WriteProgressAndSummary(t *testing.T) {
	var buf bytes.Buffer
	w := NewJSONLWriter(&buf, "job-123")
	ctx := context.Background()

	require.NoError(t, w.WriteProgress(ctx, &ProgressRecord{Phase: PhaseStarting, Total: 4}))
	require.NoError(t, w.WriteSummary(ctx, &SummaryRecord{
		Items:         4,
		Transferred:   2,
		Skipped:       1,
		Errors:        1,
		BytesTotal:    4096,
		Duration:      1500 * time.Millisecond,
		DurationHuman: "1.5s",
	}))

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 2)

	var prog ProgressRecord
	assert.Equal(t, TypeProgress, decodeLine(t, []byte(lines[0]), &prog).Type)
	assert.Equal(t, int64(4), prog.Total)

	var sum SummaryRecord
	assert.Equal(t, TypeSummary, decodeLine(t, []byte(lines[1]), &sum).Type)
	assert.Equal(t, int64(2), sum.Transferred)
	assert.Equal(t, 1500*time.Millisecond, sum.Duration)
}

func TestJSONLWriter_Close(t *testing.T) {
	var buf bytes.Buffer
	w := NewJSONLWriter(&buf, "job-123")

	require.NoError(t, w.Close())

	err := w.WriteSkip(context.Background(), &SkipRecord{Source: "a"})
	assert.ErrorIs(t, err, ErrWriterClosed)
}

func TestJSONLWriter_ConcurrentWrites(t *testing.T) {
	var buf bytes.Buffer
	w := NewJSONLWriter(&buf, "job-123")

	const numWriters = 10
	const writesPerWriter = 100

	var wg sync.WaitGroup
	wg.Add(numWriters)

	for i := 0; i < numWriters; i++ {
		go func(writerID int) {
			defer wg.Done()
			for j := 0; j < writesPerWriter; j++ {
				_ = w.WriteTransfer(context.Background(), &TransferRecord{
					Source: "file.txt",
					Bytes:  int64(writerID*writesPerWriter + j),
				})
			}
		}(i)
	}

	wg.Wait()

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	assert.Len(t, lines, numWriters*writesPerWriter)

	for i, line := range lines {
		var record Record
		err := json.Unmarshal([]byte(line), &record)
		assert.NoError(t, err, "line %d should be valid JSON: %s", i, line)
	}
}

func TestJSONLWriter_ContextCancellation(t *testing.T) {
	var buf bytes.Buffer
	w := NewJSONLWriter(&buf, "job-123")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := w.WriteSkip(ctx, &SkipRecord{Source: "file.txt"})
	assert.ErrorIs(t, err, context.Canceled)
	assert.Empty(t, buf.String())
}

// failingWriter is an io.Writer that always returns an error.
type failingWriter struct {
	err error
}

func (f *failingWriter) Write(p []byte) (n int, err error) {
	return 0, f.err
}

func TestJSONLWriter_WriteFailure(t *testing.T) {
	w := NewJSONLWriter(&failingWriter{err: errors.New("disk full")}, "job-123")

	err := w.WriteSkip(context.Background(), &SkipRecord{Source: "file.txt"})
	require.Error(t, err)

	var writeErr *WriteError
	assert.True(t, errors.As(err, &writeErr))
	assert.Equal(t, "write", writeErr.Op)
}

// shortWriteWriter writes at most bytesPerWrite bytes per call, returning nil error.
type shortWriteWriter struct {
	buf           bytes.Buffer
	bytesPerWrite int
}

func (sw *shortWriteWriter) Write(p []byte) (n int, err error) {
	toWrite := len(p)
	if toWrite > sw.bytesPerWrite {
		toWrite = sw.bytesPerWrite
	}
	return sw.buf.Write(p[:toWrite])
}

func TestJSONLWriter_ShortWrite(t *testing.T) {
	shortWriter := &shortWriteWriter{bytesPerWrite: 10}
	w := NewJSONLWriter(shortWriter, "job-123")

	err := w.WriteTransfer(context.Background(), &TransferRecord{
		Source:      "https://example.com/data/2024/file.parquet",
		Destination: "/tmp/file.parquet",
		Bytes:       1048576,
	})
	require.NoError(t, err)

	lines := strings.Split(strings.TrimSpace(shortWriter.buf.String()), "\n")
	require.Len(t, lines, 1)
	assert.Equal(t, TypeTransfer, decodeLine(t, []byte(lines[0]), nil).Type)
}

// zeroWriteWriter always returns 0 bytes written with nil error.
type zeroWriteWriter struct{}

func (zw *zeroWriteWriter) Write(p []byte) (n int, err error) {
	return 0, nil
}

func TestJSONLWriter_ZeroWrite(t *testing.T) {
	w := NewJSONLWriter(&zeroWriteWriter{}, "job-123")

	err := w.WriteSkip(context.Background(), &SkipRecord{Source: "file.txt"})
	require.Error(t, err)
	assert.ErrorIs(t, err, io.ErrShortWrite)
}

func TestWriteError(t *testing.T) {
	underlying := errors.New("underlying error")
	err := &WriteError{Op: "marshal", Err: underlying}

	assert.Equal(t, "output: marshal: underlying error", err.Error())
	assert.ErrorIs(t, err, underlying)
}

func TestErrorRecord_OmitEmpty(t *testing.T) {
	data, err := json.Marshal(ErrorRecord{Code: ErrCodeInternal, Message: "Something went wrong"})
	require.NoError(t, err)

	assert.NotContains(t, string(data), "seq")
	assert.NotContains(t, string(data), "source")
	assert.NotContains(t, string(data), "details")
}

func TestDiscard(t *testing.T) {
	ctx := context.Background()
	assert.NoError(t, Discard.WriteTransfer(ctx, &TransferRecord{}))
	assert.NoError(t, Discard.WriteSkip(ctx, &SkipRecord{}))
	assert.NoError(t, Discard.WriteError(ctx, &ErrorRecord{}))
	assert.NoError(t, Discard.WriteProgress(ctx, &ProgressRecord{}))
	assert.NoError(t, Discard.WriteSummary(ctx, &SummaryRecord{}))
	assert.NoError(t, Discard.Close())
}

func TestWithoutProgress(t *testing.T) {
	ctx := context.Background()
	var buf bytes.Buffer
	w := WithoutProgress(NewJSONLWriter(&buf, "job-1"))

	require.NoError(t, w.WriteProgress(ctx, &ProgressRecord{Phase: PhaseStarting}))
	require.NoError(t, w.WriteSummary(ctx, &SummaryRecord{Items: 1}))
	require.NoError(t, w.Close())

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 1)
	assert.Contains(t, lines[0], TypeSummary)
}
