package validation

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "adminexport/internal/errors"
)

func TestFileValidator_ValidateDownloadDirectory(t *testing.T) {
	tests := []struct {
		name      string
		setupFunc func(t *testing.T) string
		wantErr   bool
	}{
		{
			name:      "existing directory",
			setupFunc: func(t *testing.T) string { return t.TempDir() },
		},
		{
			name: "missing directory is created",
			setupFunc: func(t *testing.T) string {
				return filepath.Join(t.TempDir(), "a", "b")
			},
		},
		{
			name: "path is a file",
			setupFunc: func(t *testing.T) string {
				file := filepath.Join(t.TempDir(), "file")
				require.NoError(t, os.WriteFile(file, []byte("x"), 0644))
				return file
			},
			wantErr: true,
		},
		{
			name:      "empty path",
			setupFunc: func(t *testing.T) string { return "" },
			wantErr:   true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dir := tt.setupFunc(t)
			err := NewFileValidator(nil).ValidateDownloadDirectory(dir)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			info, err := os.Stat(dir)
			require.NoError(t, err)
			assert.True(t, info.IsDir())
			assert.NoFileExists(t, filepath.Join(dir, ".write_test"))
		})
	}
}

func TestFileValidator_ValidateArtifact(t *testing.T) {
	exts := []string{"csv", "xls", "xlsx", "zip"}
	dir := t.TempDir()

	write := func(name, content string) string {
		path := filepath.Join(dir, name)
		require.NoError(t, os.WriteFile(path, []byte(content), 0644))
		return path
	}

	tests := []struct {
		name     string
		path     string
		wantType apperrors.ErrorType
	}{
		{"valid csv", write("goods.csv", "a,b\n"), ""},
		{"valid xlsx upper", write("GOODS.XLSX", "PK"), ""},
		{"empty file", write("empty.csv", ""), apperrors.ErrTypeValidation},
		{"wrong extension", write("goods.pdf", "%PDF"), apperrors.ErrTypeUnsupportedFormat},
		{"office lock file", write("~$goods.xlsx", "x"), apperrors.ErrTypeValidation},
		{"missing", filepath.Join(dir, "missing.csv"), apperrors.ErrTypeValidation},
		{"directory", dir, apperrors.ErrTypeValidation},
	}

	v := NewFileValidator(nil)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := v.ValidateArtifact(tt.path, exts)
			if tt.wantType == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Equal(t, tt.wantType, apperrors.TypeOf(err))
		})
	}
}
