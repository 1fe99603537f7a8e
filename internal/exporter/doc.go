// Package exporter serializes cleaned datasets as CSV.
//
// EncodeCSV produces the body of a warehouse load job. CSVWriter writes the
// same encoding to disk so a copy of each published dataset can be archived
// next to the raw download.
//
// Example usage:
//
//	w := exporter.NewCSVWriter(paths)
//	path, err := w.Archive(ds, "goods_csv", time.Now())
package exporter
