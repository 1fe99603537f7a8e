package dataprocessing

import (
	"fmt"
	"strings"
)

// Dataset is an ordered string table. Every row has exactly len(Columns) cells.
type Dataset struct {
	Columns []string
	Rows    [][]string

	// Source is the file the rows were read from
	Source string
	// Encoding names the text encoding that decoded the source, when it had one
	Encoding string
}

// NumRows returns the number of data rows
func (d *Dataset) NumRows() int {
	return len(d.Rows)
}

// Clone returns a deep copy
func (d *Dataset) Clone() *Dataset {
	out := &Dataset{
		Columns:  append([]string(nil), d.Columns...),
		Rows:     make([][]string, len(d.Rows)),
		Source:   d.Source,
		Encoding: d.Encoding,
	}
	for i, row := range d.Rows {
		out.Rows[i] = append([]string(nil), row...)
	}
	return out
}

// rowPolicy decides what happens to rows longer than the header
type rowPolicy int

const (
	// skipLongRows drops rows with more cells than the header
	skipLongRows rowPolicy = iota
	// widenHeader adds Unnamed columns until the widest row fits
	widenHeader
)

// fromRecords builds a Dataset whose first record is the header. Blank
// header cells become "Unnamed: N"; short rows are padded with "".
func fromRecords(records [][]string, policy rowPolicy) (*Dataset, int) {
	if len(records) == 0 {
		return &Dataset{}, 0
	}

	header := append([]string(nil), records[0]...)
	body := records[1:]

	if policy == widenHeader {
		for _, row := range body {
			for len(header) < len(row) {
				header = append(header, "")
			}
		}
	}

	for i, name := range header {
		if strings.TrimSpace(name) == "" {
			header[i] = fmt.Sprintf("Unnamed: %d", i)
		}
	}

	ds := &Dataset{Columns: header, Rows: make([][]string, 0, len(body))}
	skipped := 0
	for _, row := range body {
		if len(row) > len(header) {
			skipped++
			continue
		}
		cells := make([]string, len(header))
		copy(cells, row)
		ds.Rows = append(ds.Rows, cells)
	}

	return ds, skipped
}
