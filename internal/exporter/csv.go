package exporter

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"adminexport/internal/config"
	"adminexport/internal/dataprocessing"
)

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// WriteOptions configures CSV encoding
type WriteOptions struct {
	BOMPrefix  bool // Add UTF-8 BOM for Excel compatibility
	SkipHeader bool
	CRLF       bool
}

// EncodeCSV writes ds as CSV. The header row comes first unless SkipHeader
// is set.
func EncodeCSV(w io.Writer, ds *dataprocessing.Dataset, opts WriteOptions) error {
	if opts.BOMPrefix {
		if _, err := w.Write(utf8BOM); err != nil {
			return fmt.Errorf("failed to write BOM: %w", err)
		}
	}

	writer := csv.NewWriter(w)
	writer.UseCRLF = opts.CRLF

	if !opts.SkipHeader {
		if err := writer.Write(ds.Columns); err != nil {
			return fmt.Errorf("failed to write headers: %w", err)
		}
	}

	for i, record := range ds.Rows {
		if err := writer.Write(record); err != nil {
			return fmt.Errorf("failed to write record %d: %w", i, err)
		}
	}

	writer.Flush()
	return writer.Error()
}

// EncodeCSVBytes is EncodeCSV into memory
func EncodeCSVBytes(ds *dataprocessing.Dataset, opts WriteOptions) ([]byte, error) {
	var buf bytes.Buffer
	if err := EncodeCSV(&buf, ds, opts); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// CSVWriter writes datasets to files under the configured paths
type CSVWriter struct {
	paths  *config.Paths
	logger *slog.Logger
}

// NewCSVWriter creates a new CSV writer instance
func NewCSVWriter(paths *config.Paths, logger *slog.Logger) *CSVWriter {
	if logger == nil {
		logger = slog.Default()
	}
	return &CSVWriter{paths: paths, logger: logger}
}

// WriteCSV writes ds to filePath, replacing any existing file. Relative
// paths resolve against the archive directory.
func (w *CSVWriter) WriteCSV(filePath string, ds *dataprocessing.Dataset, opts WriteOptions) error {
	fullPath := w.resolvePath(filePath)

	w.logger.Info("Writing CSV file",
		slog.String("file_path", filePath),
		slog.String("full_path", fullPath),
		slog.Int("record_count", ds.NumRows()))

	if err := os.MkdirAll(filepath.Dir(fullPath), config.DirPerm); err != nil {
		return fmt.Errorf("failed to create directory: %w", err)
	}

	file, err := os.OpenFile(fullPath, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, config.FilePerm)
	if err != nil {
		return fmt.Errorf("failed to open file: %w", err)
	}

	if err := EncodeCSV(file, ds, opts); err != nil {
		file.Close()
		return err
	}
	return file.Close()
}

// Archive writes ds into the archive directory as <table>_<timestamp>.csv
// with a BOM. It returns "" without writing when archiving is disabled.
func (w *CSVWriter) Archive(ds *dataprocessing.Dataset, table string, at time.Time) (string, error) {
	if w.paths == nil || w.paths.ArchiveDir == "" {
		return "", nil
	}

	path := w.paths.GetArchivePath(ArchiveName(table, at))
	if err := w.WriteCSV(path, ds, WriteOptions{BOMPrefix: true}); err != nil {
		return "", err
	}
	return path, nil
}

// ArchiveName is the file name Archive uses for table at time at
func ArchiveName(table string, at time.Time) string {
	return fmt.Sprintf("%s_%s.csv", table, at.UTC().Format("20060102T150405Z"))
}

func (w *CSVWriter) resolvePath(filePath string) string {
	if filepath.IsAbs(filePath) || w.paths == nil || w.paths.ArchiveDir == "" {
		return filePath
	}
	return w.paths.GetArchivePath(filePath)
}
