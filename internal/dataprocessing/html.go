package dataprocessing

import (
	"bytes"
	"errors"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// parseHTMLTable reads the first <table> of an HTML document. The first row
// is the header; th and td cells are both accepted.
func parseHTMLTable(data []byte) (*Dataset, error) {
	text, encoding, err := decodeText(data)
	if err != nil {
		return nil, err
	}

	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(text))
	if err != nil {
		return nil, err
	}

	table := doc.Find("table").First()
	if table.Length() == 0 {
		return nil, errors.New("no table in html document")
	}

	var records [][]string
	table.Find("tr").Each(func(_ int, tr *goquery.Selection) {
		// Skip rows of nested tables
		if tr.Closest("table").Get(0) != table.Get(0) {
			return
		}
		var cells []string
		tr.ChildrenFiltered("th, td").Each(func(_ int, cell *goquery.Selection) {
			cells = append(cells, strings.TrimSpace(cell.Text()))
		})
		records = append(records, cells)
	})

	if len(records) == 0 {
		return nil, errors.New("html table has no rows")
	}

	ds, _ := fromRecords(records, widenHeader)
	ds.Encoding = encoding
	return ds, nil
}
