// Package files locates exported files in the download directory and keeps
// it tidy: extension scans, latest-file selection and logged deletes.
package files
