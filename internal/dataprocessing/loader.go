package dataprocessing

import (
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	apperrors "adminexport/internal/errors"
)

// Loader reads export files into datasets
type Loader struct {
	logger *slog.Logger
}

// NewLoader creates a loader that logs through logger
func NewLoader(logger *slog.Logger) *Loader {
	if logger == nil {
		logger = slog.Default()
	}
	return &Loader{logger: logger}
}

// Load reads path by extension. Unknown extensions are UnsupportedFormat
// errors; read failures are Parsing errors.
func (l *Loader) Load(path string) (*Dataset, error) {
	ext := strings.ToLower(filepath.Ext(path))

	var (
		ds  *Dataset
		err error
	)

	switch ext {
	case ".csv":
		ds, err = l.loadCSV(path)
	case ".xlsx":
		ds, err = readXLSX(path)
	case ".xls":
		var kind xlsKind
		ds, kind, err = readXLS(path)
		l.logger.Debug("Sniffed xls content",
			slog.String("file", path),
			slog.String("kind", kind.String()))
	case ".zip":
		return l.loadArchive(path)
	default:
		return nil, apperrors.NewUnsupportedFormatError(ext).WithContext("file", path)
	}

	if err != nil {
		return nil, apperrors.NewParsingError("failed to read "+filepath.Base(path), err).
			WithContext("file", path)
	}

	ds.Source = path
	l.logger.Info("Dataset loaded",
		slog.String("file", path),
		slog.Int("rows", ds.NumRows()),
		slog.Int("columns", len(ds.Columns)),
		slog.String("encoding", ds.Encoding))

	return ds, nil
}

func (l *Loader) loadCSV(path string) (*Dataset, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	ds, skipped, err := parseCSV(data)
	if err != nil {
		return nil, err
	}
	if skipped > 0 {
		l.logger.Warn("Skipped malformed csv lines",
			slog.String("file", path),
			slog.Int("skipped", skipped))
	}
	return ds, nil
}

func (l *Loader) loadArchive(path string) (*Dataset, error) {
	member, err := extractFirstMember(path)
	if err != nil {
		return nil, apperrors.NewParsingError("failed to unpack "+filepath.Base(path), err).
			WithContext("file", path)
	}

	l.logger.Info("Extracted archive member",
		slog.String("archive", path),
		slog.String("member", member))

	return l.Load(member)
}
