package sqlite

import (
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSnapshotPerform(t *testing.T) {
	dir := t.TempDir()
	dbPath := filepath.Join(dir, "bookingd.db")
	require.NoError(t, os.WriteFile(dbPath, []byte("database contents"), 0o644))

	snapDir := filepath.Join(dir, "snapshots")
	logger := zerolog.New(io.Discard)
	svc := NewSnapshotService(dbPath, SnapshotConfig{
		Enabled:     true,
		StoragePath: snapDir,
	}, &logger)

	require.NoError(t, svc.Perform())

	entries, err := os.ReadDir(snapDir)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.True(t, strings.HasPrefix(entries[0].Name(), "snapshot_"))

	copied, err := os.ReadFile(filepath.Join(snapDir, entries[0].Name()))
	require.NoError(t, err)
	assert.Equal(t, "database contents", string(copied))
}

func TestSnapshotPerformMissingSource(t *testing.T) {
	dir := t.TempDir()
	logger := zerolog.New(io.Discard)
	svc := NewSnapshotService(filepath.Join(dir, "missing.db"), SnapshotConfig{
		StoragePath: filepath.Join(dir, "snapshots"),
	}, &logger)

	assert.Error(t, svc.Perform())
}

func TestSnapshotCleanupOld(t *testing.T) {
	dir := t.TempDir()
	snapDir := filepath.Join(dir, "snapshots")
	require.NoError(t, os.MkdirAll(snapDir, 0o755))

	oldFile := filepath.Join(snapDir, "snapshot_20250101_000000.db")
	require.NoError(t, os.WriteFile(oldFile, []byte("old"), 0o644))
	stale := time.Now().AddDate(0, 0, -10)
	require.NoError(t, os.Chtimes(oldFile, stale, stale))

	freshFile := filepath.Join(snapDir, "snapshot_20250922_090000.db")
	require.NoError(t, os.WriteFile(freshFile, []byte("fresh"), 0o644))

	logger := zerolog.New(io.Discard)
	svc := NewSnapshotService(filepath.Join(dir, "bookingd.db"), SnapshotConfig{
		StoragePath:   snapDir,
		RetentionDays: 7,
	}, &logger)

	svc.CleanupOld()

	assert.NoFileExists(t, oldFile)
	assert.FileExists(t, freshFile)
}

func TestSnapshotCleanupDisabled(t *testing.T) {
	dir := t.TempDir()
	snapDir := filepath.Join(dir, "snapshots")
	require.NoError(t, os.MkdirAll(snapDir, 0o755))

	oldFile := filepath.Join(snapDir, "snapshot_20250101_000000.db")
	require.NoError(t, os.WriteFile(oldFile, []byte("old"), 0o644))
	stale := time.Now().AddDate(0, 0, -100)
	require.NoError(t, os.Chtimes(oldFile, stale, stale))

	logger := zerolog.New(io.Discard)
	svc := NewSnapshotService(filepath.Join(dir, "bookingd.db"), SnapshotConfig{
		StoragePath: snapDir,
	}, &logger)

	// RetentionDays of zero means keep everything.
	svc.CleanupOld()
	assert.FileExists(t, oldFile)
}
