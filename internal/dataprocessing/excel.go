package dataprocessing

import (
	"bytes"
	"errors"
	"fmt"
	"os"

	"github.com/extrame/xls"
	"github.com/xuri/excelize/v2"
)

var (
	zipMagic  = []byte("PK\x03\x04")
	biffMagic = []byte{0xD0, 0xCF, 0x11, 0xE0, 0xA1, 0xB1, 0x1A, 0xE1}
)

// readXLSX reads the first worksheet of an OOXML workbook
func readXLSX(path string) (*Dataset, error) {
	f, err := excelize.OpenFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open workbook: %w", err)
	}
	defer f.Close()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, errors.New("workbook has no sheets")
	}

	rows, err := f.GetRows(sheets[0])
	if err != nil {
		return nil, fmt.Errorf("failed to read sheet %q: %w", sheets[0], err)
	}
	if len(rows) == 0 {
		return nil, fmt.Errorf("sheet %q is empty", sheets[0])
	}

	ds, _ := fromRecords(rows, widenHeader)
	return ds, nil
}

// xlsKind is what an .xls download really contains
type xlsKind int

const (
	xlsUnknown xlsKind = iota
	xlsHTML
	xlsOOXML
	xlsBIFF
)

func (k xlsKind) String() string {
	switch k {
	case xlsHTML:
		return "html"
	case xlsOOXML:
		return "ooxml"
	case xlsBIFF:
		return "biff"
	default:
		return "unknown"
	}
}

// sniffXLS classifies the leading bytes of an .xls file. Admin consoles
// commonly serve an HTML table under that extension.
func sniffXLS(head []byte) xlsKind {
	switch {
	case bytes.HasPrefix(head, biffMagic):
		return xlsBIFF
	case bytes.HasPrefix(head, zipMagic):
		return xlsOOXML
	}

	trimmed := bytes.TrimLeft(bytes.TrimPrefix(head, utf8BOM), " \t\r\n")
	if bytes.HasPrefix(trimmed, []byte("<")) {
		return xlsHTML
	}
	return xlsUnknown
}

// readXLS dispatches on the sniffed content
func readXLS(path string) (*Dataset, xlsKind, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, xlsUnknown, err
	}

	head := data
	if len(head) > 512 {
		head = head[:512]
	}

	kind := sniffXLS(head)
	var ds *Dataset
	switch kind {
	case xlsHTML:
		ds, err = parseHTMLTable(data)
	case xlsOOXML:
		ds, err = readXLSX(path)
	case xlsBIFF:
		ds, err = readBIFF(path)
	default:
		// Tab or comma separated text saved as .xls
		ds, _, err = parseCSV(data)
	}
	return ds, kind, err
}

// readBIFF reads the first sheet of a legacy binary workbook
func readBIFF(path string) (ds *Dataset, err error) {
	// The BIFF reader panics on truncated streams
	defer func() {
		if r := recover(); r != nil {
			ds, err = nil, fmt.Errorf("corrupt xls workbook: %v", r)
		}
	}()

	wb, err := xls.Open(path, "utf-8")
	if err != nil {
		return nil, fmt.Errorf("failed to open xls workbook: %w", err)
	}
	if wb.NumSheets() == 0 {
		return nil, errors.New("workbook has no sheets")
	}

	sheet := wb.GetSheet(0)
	if sheet == nil {
		return nil, errors.New("first sheet is unreadable")
	}

	var records [][]string
	for i := 0; i <= int(sheet.MaxRow); i++ {
		row := sheet.Row(i)
		if row == nil {
			records = append(records, nil)
			continue
		}
		cells := make([]string, row.LastCol())
		for j := range cells {
			cells[j] = row.Col(j)
		}
		records = append(records, cells)
	}

	// Trailing rows past the data are reported as nil
	for len(records) > 0 && len(records[len(records)-1]) == 0 {
		records = records[:len(records)-1]
	}
	if len(records) == 0 {
		return nil, errors.New("sheet is empty")
	}

	ds, _ = fromRecords(records, widenHeader)
	return ds, nil
}
