package report

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// touch creates a file with the given mtime.
func touch(t *testing.T, dir, name string, mtime time.Time) {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte("x"), 0o644))
	require.NoError(t, os.Chtimes(path, mtime, mtime))
}

func TestCleanOldResults(t *testing.T) {
	dir := t.TempDir()
	base := time.Now().Add(-time.Hour)
	touch(t, dir, "result_1.xlsx", base)
	touch(t, dir, "result_2.xlsx", base.Add(time.Minute))
	touch(t, dir, "result_3.xlsx", base.Add(2*time.Minute))
	touch(t, dir, "notes.txt", base) // never touched by retention

	CleanOldResults(dir, 2, nil)

	assert.NoFileExists(t, filepath.Join(dir, "result_1.xlsx"))
	assert.FileExists(t, filepath.Join(dir, "result_2.xlsx"))
	assert.FileExists(t, filepath.Join(dir, "result_3.xlsx"))
	assert.FileExists(t, filepath.Join(dir, "notes.txt"))
}

func TestCleanOldResultsUnderLimit(t *testing.T) {
	dir := t.TempDir()
	touch(t, dir, "result_1.xlsx", time.Now())

	CleanOldResults(dir, 50, nil)
	assert.FileExists(t, filepath.Join(dir, "result_1.xlsx"))
}

func TestCleanOldResultsMissingDir(t *testing.T) {
	// Best-effort: a missing directory is not a fault.
	CleanOldResults(filepath.Join(t.TempDir(), "nope"), 10, nil)
}

func TestRecentFiles(t *testing.T) {
	dir := t.TempDir()
	base := time.Now().Add(-time.Hour)
	touch(t, dir, "old.xlsx", base)
	touch(t, dir, "mid.xlsx", base.Add(time.Minute))
	touch(t, dir, "new.xlsx", base.Add(2*time.Minute))

	files := RecentFiles(dir, 2)
	require.Len(t, files, 2)
	assert.Equal(t, "new.xlsx", files[0].Name)
	assert.Equal(t, "mid.xlsx", files[1].Name)
	assert.Equal(t, "0.0 KB", files[0].FormattedSize)
	assert.NotEmpty(t, files[0].FormattedTime)
}

func TestRecentFilesEmptyDir(t *testing.T) {
	assert.Empty(t, RecentFiles(t.TempDir(), 10))
}
