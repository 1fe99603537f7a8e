package files

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"adminexport/internal/config"
	apperrors "adminexport/internal/errors"
)

// Manager provides file management operations
type Manager struct {
	logger *slog.Logger
}

// NewManager creates a new file manager instance
func NewManager(logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{logger: logger}
}

// DeleteFile deletes a file
func (m *Manager) DeleteFile(path string) error {
	m.logger.Info("Deleting file",
		slog.String("path", path))

	return os.Remove(path)
}

// WriteFile writes data through a sibling temp file and renames it into
// place, so pollers never see a partial file under the final name
func (m *Manager) WriteFile(path string, data []byte) error {
	m.logger.Info("Writing file",
		slog.String("path", path),
		slog.Int("size_bytes", len(data)))

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, config.DirPerm); err != nil {
		return fmt.Errorf("failed to create directory: %w", err)
	}

	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("failed to write temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("failed to close temp file: %w", err)
	}
	if err := os.Chmod(tmpName, config.FilePerm); err != nil {
		os.Remove(tmpName)
		return err
	}
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("failed to rename temp file: %w", err)
	}
	return nil
}

// KeepLatest leaves exactly one file with an accepted extension in dir, the
// newest by modification time (the creation time proxy of GetLatestFile),
// and deletes the rest. It returns the survivor and
// the deleted paths. A directory without candidates is a NoCandidate error.
func (m *Manager) KeepLatest(dir string, exts []string) (FileInfo, []string, error) {
	candidates, err := NewDiscovery("").FindByExtensions(dir, exts)
	if err != nil {
		return FileInfo{}, nil, apperrors.NewNoCandidateError(dir).WithContext("cause", err.Error())
	}

	latest, ok := GetLatestFile(candidates)
	if !ok {
		return FileInfo{}, nil, apperrors.NewNoCandidateError(dir)
	}

	var deleted []string
	for _, file := range candidates {
		if file.Path == latest.Path {
			continue
		}
		if err := m.DeleteFile(file.Path); err != nil {
			// A leftover stale file does not block the run
			m.logger.Warn("Failed to delete stale export",
				slog.String("path", file.Path),
				slog.String("error", err.Error()))
			continue
		}
		deleted = append(deleted, file.Path)
	}

	m.logger.Info("Selected latest export",
		slog.String("path", latest.Path),
		slog.Int64("size_bytes", latest.Size),
		slog.Int("deleted", len(deleted)))

	return latest, deleted, nil
}
