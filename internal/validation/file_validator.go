package validation

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"adminexport/internal/config"
	apperrors "adminexport/internal/errors"
	"adminexport/internal/files"
)

// FileValidator checks the download directory and acquired artifacts
type FileValidator struct {
	logger *slog.Logger
}

// NewFileValidator creates a new file validator
func NewFileValidator(logger *slog.Logger) *FileValidator {
	if logger == nil {
		logger = slog.Default()
	}
	return &FileValidator{
		logger: logger,
	}
}

// ValidateDownloadDirectory ensures dir exists or can be created, is a
// directory and is writable
func (v *FileValidator) ValidateDownloadDirectory(dir string) error {
	if dir == "" {
		return apperrors.NewAppValidationError("download directory is empty")
	}

	info, err := os.Stat(dir)
	if err == nil && !info.IsDir() {
		v.logger.Error("Download path is not a directory",
			slog.String("path", dir))
		return apperrors.NewAppValidationError(fmt.Sprintf("%s is not a directory", dir))
	}

	if err := os.MkdirAll(dir, config.DirPerm); err != nil {
		v.logger.Error("Failed to create download directory",
			slog.String("directory", dir),
			slog.String("error", err.Error()))
		return fmt.Errorf("failed to create download directory %s: %w", dir, err)
	}

	// Verify it's writable by creating a test file
	testFile := filepath.Join(dir, ".write_test")
	file, err := os.Create(testFile)
	if err != nil {
		v.logger.Error("Download directory is not writable",
			slog.String("directory", dir),
			slog.String("error", err.Error()))
		return fmt.Errorf("download directory %s is not writable: %w", dir, err)
	}
	file.Close()
	os.Remove(testFile)

	v.logger.Debug("Download directory validated",
		slog.String("directory", dir))
	return nil
}

// ValidateFile checks if a specific file exists and is readable
func (v *FileValidator) ValidateFile(path string) error {
	info, err := os.Stat(path)
	if os.IsNotExist(err) {
		v.logger.Error("File does not exist",
			slog.String("file", path))
		return fmt.Errorf("file %s does not exist", path)
	}
	if err != nil {
		return fmt.Errorf("failed to stat file %s: %w", path, err)
	}
	if !info.Mode().IsRegular() {
		v.logger.Error("Path is not a regular file",
			slog.String("path", path))
		return fmt.Errorf("%s is not a regular file", path)
	}

	file, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("file %s is not readable: %w", path, err)
	}
	file.Close()

	return nil
}

// ValidateArtifact checks that an acquired file can be handed to the loader:
// present, regular, non-empty and carrying an accepted extension
func (v *FileValidator) ValidateArtifact(path string, exts []string) error {
	if err := v.ValidateFile(path); err != nil {
		return apperrors.NewAppValidationError(err.Error()).WithContext("file", path)
	}

	base := filepath.Base(path)
	if strings.HasPrefix(base, "~$") || strings.HasPrefix(base, ".") {
		return apperrors.NewAppValidationError(fmt.Sprintf("%s is a temporary file", base))
	}

	if !files.HasExtension(base, exts) {
		ext := strings.ToLower(filepath.Ext(base))
		v.logger.Error("Artifact has an unsupported extension",
			slog.String("file", path),
			slog.String("extension", ext))
		return apperrors.NewUnsupportedFormatError(ext).WithContext("file", path)
	}

	info, err := os.Stat(path)
	if err != nil {
		return apperrors.NewAppValidationError(err.Error())
	}
	if info.Size() == 0 {
		return apperrors.NewAppValidationError(fmt.Sprintf("%s is empty", base)).WithContext("file", path)
	}

	v.logger.Debug("Artifact validated",
		slog.String("file", path),
		slog.Int64("size", info.Size()))
	return nil
}
