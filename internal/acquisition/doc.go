// Package acquisition gets the exported file onto disk.
//
// Two strategies are tried in order under a FallbackPolicy. The
// FilesystemPoller watches the download directory for the browser's
// in-progress marker and a stabilized terminal file. NetworkCapture reads
// the attachment straight out of the recorded network responses.
//
// Poller states:
//
//	NO_FILE -> DOWNLOADING (marker present) -> STABLE (size unchanged across
//	the stable delay) -> DONE
//
// A poller that never observes anything within the stall threshold fails
// with NoProgress; one that observed activity but never stabilized fails
// with DownloadTimeout.
package acquisition
