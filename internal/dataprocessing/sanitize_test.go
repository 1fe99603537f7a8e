package dataprocessing

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSanitizeColumns(t *testing.T) {
	tests := []struct {
		name string
		in   []string
		want []string
	}{
		{
			name: "spaces, leading digit and repeats",
			in:   []string{"a b", "1x", "a b"},
			want: []string{"a_b", "_1x", "a_b_1"},
		},
		{
			name: "korean names are kept",
			in:   []string{" 상품명 ", "가격(원)", "재고-수량"},
			want: []string{"상품명", "가격_원_", "재고_수량"},
		},
		{
			name: "third repeat",
			in:   []string{"x", "x", "x"},
			want: []string{"x", "x_1", "x_2"},
		},
		{
			name: "suffix collides with an existing name",
			in:   []string{"a", "a_1", "a"},
			want: []string{"a", "a_1", "a_2"},
		},
		{
			name: "punctuation only",
			in:   []string{"#", "", "Unnamed: 2"},
			want: []string{"_", "", "Unnamed__2"},
		},
		{
			name: "empty input",
			in:   nil,
			want: []string{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := SanitizeColumns(tt.in)
			assert.Equal(t, tt.want, got)
			assert.Equal(t, got, SanitizeColumns(got), "must be idempotent")
		})
	}
}

func TestSanitizeColumns_Unique(t *testing.T) {
	in := []string{"a b", "a_b", "a-b", "a.b", "a b"}
	got := SanitizeColumns(in)

	seen := map[string]bool{}
	for _, c := range got {
		assert.False(t, seen[c], "duplicate column %q", c)
		seen[c] = true
	}
	assert.Len(t, got, len(in))
}

func TestClean(t *testing.T) {
	ds := &Dataset{
		Columns: []string{"a", "b"},
		Rows: [][]string{
			{"1", "x"},
			{"", ""},
			{"2", "y"},
			{"1", "x"},
			{"", "z"},
			{"", ""},
			{"2", "y"},
		},
	}

	cleaned, stats := Clean(ds)

	assert.Equal(t, [][]string{{"1", "x"}, {"2", "y"}, {"", "z"}}, cleaned.Rows)
	assert.Equal(t, 2, stats.EmptyRows)
	assert.Equal(t, 2, stats.DuplicateRows)
	assert.Equal(t, 4, stats.Removed())
	assert.Len(t, ds.Rows, 7, "input must not be modified")

	again, stats2 := Clean(cleaned)
	assert.Equal(t, cleaned.Rows, again.Rows)
	assert.Zero(t, stats2.Removed())
}

func TestClean_KeyIsUnambiguous(t *testing.T) {
	ds := &Dataset{
		Columns: []string{"a", "b"},
		Rows: [][]string{
			{"1:2", "3"},
			{"1", "2:3"},
		},
	}

	cleaned, stats := Clean(ds)
	assert.Len(t, cleaned.Rows, 2)
	assert.Zero(t, stats.DuplicateRows)
}

func TestDatasetClone(t *testing.T) {
	ds := &Dataset{Columns: []string{"a"}, Rows: [][]string{{"1"}}, Source: "f.csv"}
	c := ds.Clone()
	c.Rows[0][0] = "2"
	c.Columns[0] = "b"

	assert.Equal(t, "1", ds.Rows[0][0])
	assert.Equal(t, "a", ds.Columns[0])
	assert.Equal(t, "f.csv", c.Source)
}
