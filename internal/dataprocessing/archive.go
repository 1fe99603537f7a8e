package dataprocessing

import (
	"archive/zip"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"adminexport/internal/config"
	"adminexport/internal/files"
)

// archiveMembers are the entry types a downloaded archive may wrap
var archiveMembers = []string{"csv", "xlsx", "xls"}

// extractFirstMember writes the first loadable entry of a zip archive next
// to it and returns the extracted path
func extractFirstMember(path string) (string, error) {
	r, err := zip.OpenReader(path)
	if err != nil {
		return "", fmt.Errorf("failed to open archive: %w", err)
	}
	defer r.Close()

	for _, f := range r.File {
		if f.FileInfo().IsDir() || strings.HasPrefix(f.Name, "__MACOSX/") {
			continue
		}
		name := filepath.Base(f.Name)
		if strings.HasPrefix(name, ".") || !files.HasExtension(name, archiveMembers) {
			continue
		}

		dst := filepath.Join(filepath.Dir(path), name)
		if err := extractEntry(f, dst); err != nil {
			return "", err
		}
		return dst, nil
	}

	return "", fmt.Errorf("archive %s has no csv, xlsx or xls entry", filepath.Base(path))
}

func extractEntry(f *zip.File, dst string) error {
	src, err := f.Open()
	if err != nil {
		return fmt.Errorf("failed to open entry %s: %w", f.Name, err)
	}
	defer src.Close()

	out, err := os.OpenFile(dst, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, config.FilePerm)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", dst, err)
	}
	if _, err := io.Copy(out, src); err != nil {
		out.Close()
		return fmt.Errorf("failed to extract %s: %w", f.Name, err)
	}
	return out.Close()
}
