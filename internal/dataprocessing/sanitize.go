package dataprocessing

import (
	"strconv"
	"strings"
	"unicode"
	"unicode/utf8"
)

// SanitizeColumns turns header cells into unique identifier-safe names.
// Each name is trimmed, every rune other than a letter, number or underscore
// becomes "_", a leading digit gets a "_" prefix, and repeats are suffixed
// _1, _2, ... in order. Applying it twice changes nothing.
func SanitizeColumns(cols []string) []string {
	seen := make(map[string]bool, len(cols))
	out := make([]string, 0, len(cols))

	for _, c := range cols {
		name := sanitizeName(c)

		base := name
		for i := 1; seen[name]; i++ {
			name = base + "_" + strconv.Itoa(i)
		}
		seen[name] = true
		out = append(out, name)
	}

	return out
}

func sanitizeName(c string) string {
	c = strings.TrimSpace(c)

	var b strings.Builder
	b.Grow(len(c) + 1)
	if first, _ := utf8.DecodeRuneInString(c); unicode.IsDigit(first) {
		b.WriteByte('_')
	}
	for _, r := range c {
		if isWordRune(r) {
			b.WriteRune(r)
		} else {
			b.WriteByte('_')
		}
	}
	return b.String()
}

func isWordRune(r rune) bool {
	return r == '_' || unicode.IsLetter(r) || unicode.IsNumber(r)
}

// CleanStats counts the rows Clean removed
type CleanStats struct {
	EmptyRows     int
	DuplicateRows int
}

// Removed returns the total number of dropped rows
func (s CleanStats) Removed() int {
	return s.EmptyRows + s.DuplicateRows
}

// Clean drops rows whose cells are all empty, then exact duplicate rows,
// keeping the first occurrence. Row order is preserved and ds is not modified.
func Clean(ds *Dataset) (*Dataset, CleanStats) {
	out := &Dataset{
		Columns:  append([]string(nil), ds.Columns...),
		Rows:     make([][]string, 0, len(ds.Rows)),
		Source:   ds.Source,
		Encoding: ds.Encoding,
	}

	var stats CleanStats
	seen := make(map[string]struct{}, len(ds.Rows))

	for _, row := range ds.Rows {
		if isEmptyRow(row) {
			stats.EmptyRows++
			continue
		}

		key := rowKey(row)
		if _, dup := seen[key]; dup {
			stats.DuplicateRows++
			continue
		}
		seen[key] = struct{}{}
		out.Rows = append(out.Rows, append([]string(nil), row...))
	}

	return out, stats
}

func isEmptyRow(row []string) bool {
	for _, cell := range row {
		if cell != "" {
			return false
		}
	}
	return true
}

// rowKey length-prefixes each cell so distinct rows never share a key
func rowKey(row []string) string {
	var b strings.Builder
	for _, cell := range row {
		b.WriteString(strconv.Itoa(len(cell)))
		b.WriteByte(':')
		b.WriteString(cell)
	}
	return b.String()
}
