package dataprocessing

import (
	"archive/zip"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/text/encoding/korean"

	apperrors "adminexport/internal/errors"
	"adminexport/internal/shared/testutil"
)

func encodeCP949(t *testing.T, s string) []byte {
	t.Helper()
	out, err := korean.EUCKR.NewEncoder().Bytes([]byte(s))
	require.NoError(t, err)
	return out
}

func TestLoad_CSV(t *testing.T) {
	tests := []struct {
		name         string
		content      func(t *testing.T) []byte
		wantColumns  []string
		wantRows     [][]string
		wantEncoding string
	}{
		{
			name:         "utf-8 with signature",
			content:      func(*testing.T) []byte { return append([]byte{0xEF, 0xBB, 0xBF}, "상품,가격\n사과,100\n"...) },
			wantColumns:  []string{"상품", "가격"},
			wantRows:     [][]string{{"사과", "100"}},
			wantEncoding: EncodingUTF8,
		},
		{
			name:         "cp949 fallback",
			content:      func(t *testing.T) []byte { return encodeCP949(t, "상품,가격\n배,200\n") },
			wantColumns:  []string{"상품", "가격"},
			wantRows:     [][]string{{"배", "200"}},
			wantEncoding: EncodingCP949,
		},
		{
			name:        "long lines skipped, short lines padded",
			content:     func(*testing.T) []byte { return []byte("a,b,c\n1,2,3\n4,5,6,7\n8\n") },
			wantColumns: []string{"a", "b", "c"},
			wantRows:    [][]string{{"1", "2", "3"}, {"8", "", ""}},
		},
		{
			name:        "blank header cells named",
			content:     func(*testing.T) []byte { return []byte("a,,c\n1,2,3\n") },
			wantColumns: []string{"a", "Unnamed: 1", "c"},
			wantRows:    [][]string{{"1", "2", "3"}},
		},
		{
			name:        "lazy quotes",
			content:     func(*testing.T) []byte { return []byte("a,b\n say \"hi\",2\n") },
			wantColumns: []string{"a", "b"},
			wantRows:    [][]string{{` say "hi"`, "2"}},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := testutil.WriteFile(t, t.TempDir(), "export.csv", tt.content(t))

			ds, err := NewLoader(nil).Load(path)
			require.NoError(t, err)

			assert.Equal(t, tt.wantColumns, ds.Columns)
			assert.Equal(t, tt.wantRows, ds.Rows)
			assert.Equal(t, path, ds.Source)
			if tt.wantEncoding != "" {
				assert.Equal(t, tt.wantEncoding, ds.Encoding)
			}
		})
	}
}

func TestLoad_CSVLogsSkippedLines(t *testing.T) {
	logger, handler := testutil.NewTestLogger(t)
	path := testutil.WriteFile(t, t.TempDir(), "export.csv", []byte("a\n1\n2,3\n"))

	_, err := NewLoader(logger).Load(path)
	require.NoError(t, err)

	testutil.AssertLogContains(t, handler, "Skipped malformed csv lines")
	testutil.AssertLogAttr(t, handler, "skipped", int64(1))
}

func TestLoad_EmptyCSV(t *testing.T) {
	path := testutil.WriteFile(t, t.TempDir(), "export.csv", nil)

	_, err := NewLoader(nil).Load(path)
	require.Error(t, err)
	assert.True(t, apperrors.IsType(err, apperrors.ErrTypeParsing))
}

func TestLoad_XLSX(t *testing.T) {
	path := filepath.Join(t.TempDir(), "export.xlsx")
	testutil.WriteXLSX(t, path, [][]string{
		{"code", "name"},
		{"A1", "alpha"},
		{"B2"},
		{"C3", "gamma", "extra"},
	})

	ds, err := NewLoader(nil).Load(path)
	require.NoError(t, err)

	assert.Equal(t, []string{"code", "name", "Unnamed: 2"}, ds.Columns)
	assert.Equal(t, [][]string{
		{"A1", "alpha", ""},
		{"B2", "", ""},
		{"C3", "gamma", "extra"},
	}, ds.Rows)
}

func TestLoad_XLSHTMLTable(t *testing.T) {
	html := `<html><head><meta charset="utf-8"></head><body>
<table border="1">
<tr><th>번호</th><th>상품명</th></tr>
<tr><td>1</td><td> 사과 </td></tr>
<tr><td>2</td><td><table><tr><td>nested</td></tr></table></td></tr>
</table></body></html>`
	path := testutil.WriteFile(t, t.TempDir(), "export.xls", []byte(html))

	ds, err := NewLoader(nil).Load(path)
	require.NoError(t, err)

	assert.Equal(t, []string{"번호", "상품명"}, ds.Columns)
	require.Len(t, ds.Rows, 2)
	assert.Equal(t, []string{"1", "사과"}, ds.Rows[0])
	assert.Equal(t, "2", ds.Rows[1][0])
}

func TestLoad_XLSHTMLTableCP949(t *testing.T) {
	html := "<table><tr><td>상품</td></tr><tr><td>배</td></tr></table>"
	path := testutil.WriteFile(t, t.TempDir(), "export.xls", encodeCP949(t, html))

	ds, err := NewLoader(nil).Load(path)
	require.NoError(t, err)

	assert.Equal(t, []string{"상품"}, ds.Columns)
	assert.Equal(t, [][]string{{"배"}}, ds.Rows)
	assert.Equal(t, EncodingCP949, ds.Encoding)
}

func TestLoad_XLSDisguisedWorkbook(t *testing.T) {
	dir := t.TempDir()
	xlsx := filepath.Join(dir, "real.xlsx")
	testutil.WriteXLSX(t, xlsx, [][]string{{"a"}, {"1"}})

	xls := filepath.Join(dir, "export.xls")
	require.NoError(t, os.Rename(xlsx, xls))

	ds, err := NewLoader(nil).Load(xls)
	require.NoError(t, err)
	assert.Equal(t, []string{"a"}, ds.Columns)
	assert.Equal(t, [][]string{{"1"}}, ds.Rows)
}

func TestLoad_XLSCorruptBIFF(t *testing.T) {
	content := append([]byte{0xD0, 0xCF, 0x11, 0xE0, 0xA1, 0xB1, 0x1A, 0xE1}, make([]byte, 64)...)
	path := testutil.WriteFile(t, t.TempDir(), "export.xls", content)

	_, err := NewLoader(nil).Load(path)
	require.Error(t, err)
	assert.True(t, apperrors.IsType(err, apperrors.ErrTypeParsing))
}

func TestSniffXLS(t *testing.T) {
	tests := []struct {
		name string
		head []byte
		want xlsKind
	}{
		{"biff", []byte{0xD0, 0xCF, 0x11, 0xE0, 0xA1, 0xB1, 0x1A, 0xE1, 0}, xlsBIFF},
		{"zip", []byte("PK\x03\x04rest"), xlsOOXML},
		{"html", []byte("\r\n  <html>"), xlsHTML},
		{"html with signature", append([]byte{0xEF, 0xBB, 0xBF}, "<table>"...), xlsHTML},
		{"text", []byte("a\tb\n"), xlsUnknown},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, sniffXLS(tt.head))
		})
	}
}

func TestLoad_Zip(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "export.zip")

	f, err := os.Create(path)
	require.NoError(t, err)
	zw := zip.NewWriter(f)
	w, err := zw.Create("__MACOSX/._goods.csv")
	require.NoError(t, err)
	_, err = w.Write([]byte("junk"))
	require.NoError(t, err)
	w, err = zw.Create("readme.txt")
	require.NoError(t, err)
	_, err = w.Write([]byte("hello"))
	require.NoError(t, err)
	w, err = zw.Create("nested/goods.csv")
	require.NoError(t, err)
	_, err = w.Write([]byte("a,b\n1,2\n"))
	require.NoError(t, err)
	require.NoError(t, zw.Close())
	require.NoError(t, f.Close())

	ds, err := NewLoader(nil).Load(path)
	require.NoError(t, err)

	assert.Equal(t, []string{"a", "b"}, ds.Columns)
	assert.Equal(t, filepath.Join(dir, "goods.csv"), ds.Source)
	assert.FileExists(t, filepath.Join(dir, "goods.csv"))
}

func TestLoad_ZipWithoutMember(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "export.zip")

	f, err := os.Create(path)
	require.NoError(t, err)
	zw := zip.NewWriter(f)
	w, err := zw.Create("notes.txt")
	require.NoError(t, err)
	_, err = w.Write([]byte("x"))
	require.NoError(t, err)
	require.NoError(t, zw.Close())
	require.NoError(t, f.Close())

	_, err = NewLoader(nil).Load(path)
	assert.True(t, apperrors.IsType(err, apperrors.ErrTypeParsing))
}

func TestLoad_UnsupportedFormat(t *testing.T) {
	path := testutil.WriteFile(t, t.TempDir(), "export.pdf", []byte("%PDF"))

	_, err := NewLoader(nil).Load(path)
	require.Error(t, err)
	assert.True(t, apperrors.IsType(err, apperrors.ErrTypeUnsupportedFormat))
}
