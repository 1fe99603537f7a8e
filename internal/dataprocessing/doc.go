// Package dataprocessing turns an acquired export file into a clean tabular
// dataset.
//
// Load picks a reader by extension:
//
//	.csv   UTF-8 (optional signature), then CP949
//	.xlsx  first worksheet
//	.xls   HTML table, OOXML workbook or BIFF workbook, sniffed from content
//	.zip   first csv/xlsx/xls entry
//
// Every cell is kept as a string. SanitizeColumns makes header names safe
// warehouse identifiers and Clean drops empty and duplicate rows.
//
//	ds, err := dataprocessing.NewLoader(logger).Load(path)
//	if err != nil {
//	    return err
//	}
//	ds.Columns = dataprocessing.SanitizeColumns(ds.Columns)
//	cleaned, stats := dataprocessing.Clean(ds)
package dataprocessing
