package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGetPaths(t *testing.T) {
	base := t.TempDir()
	cfg := Default()
	cfg.Paths.BaseDir = base
	cfg.Paths.ArchiveDir = "archive"
	cfg.Telemetry.TracesFile = "/var/tmp/traces.json"

	paths, err := cfg.GetPaths()
	require.NoError(t, err)

	assert.Equal(t, filepath.Join(base, "downloads"), paths.DownloadDir)
	assert.Equal(t, filepath.Join(base, "archive"), paths.ArchiveDir)
	assert.Equal(t, filepath.Join(base, "log.txt"), paths.LogFile)
	assert.Equal(t, filepath.Join(base, "adminexport.db"), paths.JournalFile)
	assert.Equal(t, "/var/tmp/traces.json", paths.TracesFile)
	assert.Empty(t, paths.MetricsFile)
}

func TestGetPaths_WorkingDirectory(t *testing.T) {
	cfg := Default()

	paths, err := cfg.GetPaths()
	require.NoError(t, err)

	wd, err := os.Getwd()
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(wd, "downloads"), paths.DownloadDir)
}

func TestEnsureDirectories(t *testing.T) {
	base := t.TempDir()
	paths := &Paths{
		BaseDir:     base,
		DownloadDir: filepath.Join(base, "dl"),
		LogFile:     filepath.Join(base, "logs", "log.txt"),
		JournalFile: filepath.Join(base, "state", "runs.db"),
	}

	require.NoError(t, paths.EnsureDirectories())

	for _, dir := range []string{"dl", "logs", "state"} {
		info, err := os.Stat(filepath.Join(base, dir))
		require.NoError(t, err)
		assert.True(t, info.IsDir())
	}
}

func TestPathHelperMethods(t *testing.T) {
	paths := &Paths{DownloadDir: "/data/dl"}

	assert.Empty(t, paths.GetArchivePath("goods.csv"))

	paths.ArchiveDir = "/data/archive"
	assert.Equal(t, filepath.Join("/data/archive", "goods.csv"), paths.GetArchivePath("goods.csv"))
}

func TestFileExists(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(dir, "present.txt")
	require.NoError(t, os.WriteFile(file, []byte("x"), 0644))

	assert.True(t, FileExists(file))
	assert.False(t, FileExists(filepath.Join(dir, "absent.txt")))
}
