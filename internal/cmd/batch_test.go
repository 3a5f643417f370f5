package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/fulmenhq/gofulmen/foundry"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/3leaps/goferry/internal/config"
	"github.com/3leaps/goferry/pkg/checkpoint"
	"github.com/3leaps/goferry/pkg/manifest"
	"github.com/3leaps/goferry/pkg/output"
)

// writeBatchFixture creates n source files and a manifest copying them under
// dir/out. It returns the manifest path.
func writeBatchFixture(t *testing.T, dir string, n int, extra string) string {
	t.Helper()
	var items strings.Builder
	for i := 0; i < n; i++ {
		src := filepath.Join(dir, "src", fmt.Sprintf("f%d.txt", i))
		require.NoError(t, os.MkdirAll(filepath.Dir(src), 0o755))
		require.NoError(t, os.WriteFile(src, []byte(fmt.Sprintf("file %d", i)), 0o644))
		fmt.Fprintf(&items, "  - source: %s\n    destination: f%d.txt\n", src, i)
	}
	job := fmt.Sprintf("version: \"1.0\"\ndestination_root: %s\n%sitems:\n%s",
		filepath.Join(dir, "out"), extra, items.String())
	path := filepath.Join(dir, "batch.yaml")
	require.NoError(t, os.WriteFile(path, []byte(job), 0o644))
	return path
}

func TestBatch_Plan(t *testing.T) {
	dir := t.TempDir()
	job := writeBatchFixture(t, dir, 2, "exclude:\n  - \"**/f1.txt\"\n")

	out, err := runCLI(t, "batch", "--job", job, "--plan")
	require.NoError(t, err)
	assert.Contains(t, out, "=== Batch Plan ===")
	assert.Contains(t, out, "Items:    2 (1 excluded)")
	assert.Contains(t, out, "excluded by **/f1.txt")
	assert.Contains(t, out, "Manifest validated successfully")

	_, err = os.Stat(filepath.Join(dir, "out"))
	assert.True(t, os.IsNotExist(err), "plan must not transfer")
}

func TestBatch_Run(t *testing.T) {
	dir := t.TempDir()
	job := writeBatchFixture(t, dir, 3, "")

	out, err := runCLI(t, "batch", "--job", job, "--quiet")
	require.NoError(t, err)

	recs := records(t, out)
	assert.Len(t, recordsOfType(recs, output.TypeTransfer), 3)
	assert.Empty(t, recordsOfType(recs, output.TypeProgress))
	require.Len(t, recordsOfType(recs, output.TypeSummary), 1)

	for i := 0; i < 3; i++ {
		got, err := os.ReadFile(filepath.Join(dir, "out", fmt.Sprintf("f%d.txt", i)))
		require.NoError(t, err)
		assert.Equal(t, fmt.Sprintf("file %d", i), string(got))
	}
}

func TestBatch_ErrorsExitCode(t *testing.T) {
	dir := t.TempDir()
	job := writeBatchFixture(t, dir, 1, "")
	require.NoError(t, os.Remove(filepath.Join(dir, "src", "f0.txt")))

	out, err := runCLI(t, "batch", "--job", job, "--quiet")
	require.Error(t, err)
	assert.Equal(t, foundry.ExitExternalServiceUnavailable, exitCode(t, err))

	errs := recordsOfType(records(t, out), output.TypeError)
	require.Len(t, errs, 1)
	var rec output.ErrorRecord
	require.NoError(t, json.Unmarshal(errs[0].Data, &rec))
	assert.Equal(t, output.ErrCodeSourceNotFound, rec.Code)
	assert.Equal(t, int64(1), rec.Seq)
}

func TestBatch_CheckpointResume(t *testing.T) {
	dir := t.TempDir()
	job := writeBatchFixture(t, dir, 2, "on_exists: replace\n")
	cp := filepath.Join(dir, "state", "cp.db")

	_, err := runCLI(t, "batch", "--job", job, "--quiet", "--checkpoint", cp)
	require.NoError(t, err)

	store, err := checkpoint.Open(context.Background(), checkpoint.Config{Path: cp})
	require.NoError(t, err)
	counts, err := store.Counts(context.Background())
	require.NoError(t, err)
	require.NoError(t, store.Close())
	assert.Equal(t, 2, counts.Complete)

	out, err := runCLI(t, "batch", "--job", job, "--quiet", "--checkpoint", cp, "--resume")
	require.NoError(t, err)
	recs := records(t, out)
	assert.Empty(t, recordsOfType(recs, output.TypeTransfer))
	skips := recordsOfType(recs, output.TypeSkip)
	require.Len(t, skips, 2)
	var skip output.SkipRecord
	require.NoError(t, json.Unmarshal(skips[0].Data, &skip))
	assert.Equal(t, output.SkipCheckpoint, skip.Reason)
}

func TestBatch_FlagErrors(t *testing.T) {
	dir := t.TempDir()
	job := writeBatchFixture(t, dir, 1, "")

	_, err := runCLI(t, "batch", "--job", job, "--resume")
	require.Error(t, err)
	assert.Equal(t, foundry.ExitInvalidArgument, exitCode(t, err))

	_, err = runCLI(t, "batch", "--job", job, "--concurrency", "-1")
	require.Error(t, err)
	assert.Equal(t, foundry.ExitInvalidArgument, exitCode(t, err))

	_, err = runCLI(t, "batch", "--job", filepath.Join(dir, "missing.yaml"))
	require.Error(t, err)
	assert.Equal(t, foundry.ExitFileNotFound, exitCode(t, err))

	bad := filepath.Join(dir, "bad.yaml")
	require.NoError(t, os.WriteFile(bad, []byte("version: \"1.0\"\nitems: []\n"), 0o644))
	_, err = runCLI(t, "batch", "--job", bad)
	require.Error(t, err)
	assert.Equal(t, foundry.ExitInvalidArgument, exitCode(t, err))
}

func TestManifestDefaults(t *testing.T) {
	cfg := &config.Config{
		Transfer: config.TransferConfig{OnExists: "replace"},
		Batch:    config.BatchConfig{Concurrency: 9, RateLimit: 2.5},
	}
	assert.Equal(t, manifest.Defaults{OnExists: "replace", Concurrency: 9, RateLimit: 2.5}, manifestDefaults(cfg))
}

func TestCreateWriter_File(t *testing.T) {
	resetFlags()
	path := filepath.Join(t.TempDir(), "out.jsonl")
	m := &manifest.Manifest{Output: manifest.OutputConfig{Destination: "file:" + path}}

	w, cleanup, err := createWriter(nil, m, "job-1")
	require.NoError(t, err)
	require.NoError(t, w.WriteSkip(context.Background(), &output.SkipRecord{Source: "a", Destination: "b", Reason: output.SkipExcluded}))
	cleanup()

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), output.TypeSkip)
	assert.Contains(t, string(data), `"job_id":"job-1"`)

	_, _, err = createWriter(nil, &manifest.Manifest{Output: manifest.OutputConfig{Destination: "file:" + filepath.Join(path, "nope", "x")}}, "job-2")
	assert.Error(t, err)
}

func TestS3Config(t *testing.T) {
	cfg := &config.Config{S3: config.S3Config{Region: "us-east-1", Profile: "dev"}}

	got := s3Config(cfg, nil)
	assert.Equal(t, "us-east-1", got.Region)
	assert.Equal(t, "dev", got.Profile)
	assert.False(t, got.ForcePathStyle)

	got = s3Config(cfg, &manifest.S3Config{Region: "eu-west-1", Endpoint: "http://localhost:5000"})
	assert.Equal(t, "eu-west-1", got.Region)
	assert.Equal(t, "dev", got.Profile)
	assert.Equal(t, "http://localhost:5000", got.Endpoint)
	assert.True(t, got.ForcePathStyle)
}

func TestNeedsS3(t *testing.T) {
	assert.False(t, needsS3())
	assert.False(t, needsS3("./a", "https://example.com/x"))
	assert.True(t, needsS3("./a", "s3://bucket/key"))
}
