package dataprocessing

import (
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"unicode/utf8"

	"golang.org/x/text/encoding/korean"
	"golang.org/x/text/transform"
)

const (
	EncodingUTF8  = "utf-8"
	EncodingCP949 = "cp949"
)

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// errNotUTF8 marks content that must be retried with the legacy encoding
var errNotUTF8 = errors.New("content is not valid UTF-8")

// decodeUTF8 strips an optional signature and rejects invalid sequences
func decodeUTF8(data []byte) ([]byte, error) {
	data = bytes.TrimPrefix(data, utf8BOM)
	if !utf8.Valid(data) {
		return nil, errNotUTF8
	}
	return data, nil
}

// decodeCP949 converts CP949 (EUC-KR superset) bytes to UTF-8
func decodeCP949(data []byte) ([]byte, error) {
	out, _, err := transform.Bytes(korean.EUCKR.NewDecoder(), data)
	if err != nil {
		return nil, err
	}
	return out, nil
}

// decodeText tries UTF-8 first, then CP949, and names the winner
func decodeText(data []byte) ([]byte, string, error) {
	if text, err := decodeUTF8(data); err == nil {
		return text, EncodingUTF8, nil
	}
	text, err := decodeCP949(data)
	if err != nil {
		return nil, "", err
	}
	return text, EncodingCP949, nil
}

// readCSVRecords parses delimited text with lenient quoting. Records with
// more fields than the header are dropped and counted.
func readCSVRecords(text []byte) (*Dataset, int, error) {
	r := csv.NewReader(bytes.NewReader(text))
	r.FieldsPerRecord = -1
	r.LazyQuotes = true

	var records [][]string
	for {
		record, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, 0, err
		}
		records = append(records, record)
	}

	if len(records) == 0 {
		return nil, 0, errors.New("no header row")
	}

	ds, skipped := fromRecords(records, skipLongRows)
	return ds, skipped, nil
}

// parseCSV decodes and parses CSV content, falling back from UTF-8 to CP949
// when decoding or parsing the UTF-8 attempt fails
func parseCSV(data []byte) (*Dataset, int, error) {
	var utf8Err error
	if text, err := decodeUTF8(data); err == nil {
		ds, skipped, err := readCSVRecords(text)
		if err == nil {
			ds.Encoding = EncodingUTF8
			return ds, skipped, nil
		}
		utf8Err = err
	} else {
		utf8Err = err
	}

	text, err := decodeCP949(data)
	if err != nil {
		return nil, 0, fmt.Errorf("utf-8: %v; cp949: %w", utf8Err, err)
	}
	ds, skipped, err := readCSVRecords(text)
	if err != nil {
		return nil, 0, fmt.Errorf("utf-8: %v; cp949: %w", utf8Err, err)
	}
	ds.Encoding = EncodingCP949
	return ds, skipped, nil
}
