package config

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
)

// Paths contains the resolved application paths.
// Relative entries in PathsConfig resolve against BaseDir, or the working
// directory when BaseDir is empty.
type Paths struct {
	BaseDir     string
	DownloadDir string
	ArchiveDir  string
	LogFile     string
	JournalFile string
	TracesFile  string
	MetricsFile string
}

// GetPaths resolves every configured path to an absolute one
func (c *Config) GetPaths() (*Paths, error) {
	base := c.Paths.BaseDir
	if base == "" {
		wd, err := os.Getwd()
		if err != nil {
			return nil, fmt.Errorf("failed to get working directory: %w", err)
		}
		base = wd
	}
	base, err := filepath.Abs(base)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve base directory: %w", err)
	}

	return &Paths{
		BaseDir:     base,
		DownloadDir: resolve(base, c.Paths.DownloadDir),
		ArchiveDir:  resolve(base, c.Paths.ArchiveDir),
		LogFile:     resolve(base, c.Logging.FilePath),
		JournalFile: resolve(base, c.Journal.Path),
		TracesFile:  resolve(base, c.Telemetry.TracesFile),
		MetricsFile: resolve(base, c.Telemetry.MetricsFile),
	}, nil
}

// resolve keeps empty values empty so disabled outputs stay disabled
func resolve(base, p string) string {
	if p == "" {
		return ""
	}
	if filepath.IsAbs(p) {
		return filepath.Clean(p)
	}
	return filepath.Join(base, p)
}

// EnsureDirectories creates all required directories if they don't exist
func (p *Paths) EnsureDirectories() error {
	directories := []string{p.DownloadDir, p.ArchiveDir}
	for _, file := range []string{p.LogFile, p.JournalFile, p.TracesFile, p.MetricsFile} {
		if file != "" {
			directories = append(directories, filepath.Dir(file))
		}
	}

	logger := slog.Default()

	for _, dir := range directories {
		if dir == "" {
			continue
		}
		if err := os.MkdirAll(dir, DirPerm); err != nil {
			return fmt.Errorf("failed to create directory %s: %v", dir, err)
		}

		logger.Debug("Ensured directory exists",
			slog.String("directory", dir))
	}

	return nil
}

// GetArchivePath returns the path for an archived dataset, or "" when
// archiving is disabled
func (p *Paths) GetArchivePath(filename string) string {
	if p.ArchiveDir == "" {
		return ""
	}
	return filepath.Join(p.ArchiveDir, filename)
}

// FileExists checks if a file exists
func FileExists(path string) bool {
	_, err := os.Stat(path)
	return !os.IsNotExist(err)
}

// LogPathResolution logs the resolved paths for debugging
func (p *Paths) LogPathResolution(logger *slog.Logger) {
	if logger == nil {
		logger = slog.Default()
	}

	logger.Info("Path resolution summary",
		slog.Group("directories",
			slog.String("base", p.BaseDir),
			slog.String("downloads", p.DownloadDir),
			slog.String("archive", p.ArchiveDir),
		),
		slog.Group("files",
			slog.String("log", p.LogFile),
			slog.String("journal", p.JournalFile),
			slog.String("traces", p.TracesFile),
			slog.String("metrics", p.MetricsFile),
		))
}
