package acquisition

import (
	"context"
	"encoding/base64"
	"fmt"
	"log/slog"
	"mime"
	"net/url"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"adminexport/internal/browser"
	"adminexport/internal/config"
	apperrors "adminexport/internal/errors"
	"adminexport/internal/files"
)

// StrategyNetwork names the capture strategy
const StrategyNetwork = "network"

// ResponseLog yields responses recorded since the previous call
type ResponseLog interface {
	Drain() []browser.Response
}

// BodyFetcher fetches a recorded response body from the tab that received
// it. The flag reports base64.
type BodyFetcher interface {
	ResponseBody(ctx context.Context, resp browser.Response) (string, bool, error)
}

// NetworkCapture saves an attachment straight from the network layer
type NetworkCapture struct {
	log          ResponseLog
	fetcher      BodyFetcher
	dir          string
	manager      *files.Manager
	extensions   []string
	pollInterval time.Duration
	logger       *slog.Logger
}

// NewNetworkCapture writes captured attachments into dir
func NewNetworkCapture(log ResponseLog, fetcher BodyFetcher, dir string, cfg config.AcquisitionConfig, logger *slog.Logger) *NetworkCapture {
	if logger == nil {
		logger = slog.Default()
	}
	return &NetworkCapture{
		log:          log,
		fetcher:      fetcher,
		dir:          dir,
		manager:      files.NewManager(logger),
		extensions:   cfg.Extensions,
		pollInterval: cfg.PollInterval,
		logger:       logger.With(slog.String("strategy", StrategyNetwork)),
	}
}

// Name implements Strategy
func (c *NetworkCapture) Name() string { return StrategyNetwork }

// Acquire implements Strategy. Attachments whose body cannot be fetched yet
// are retried on every poll until the deadline.
func (c *NetworkCapture) Acquire(ctx context.Context, timeout time.Duration) (*Artifact, error) {
	deadline := time.Now().Add(timeout)
	var pending []browser.Response
	var lastErr error

	for {
		for _, resp := range c.log.Drain() {
			disposition := resp.Header("Content-Disposition")
			if !IsAttachment(disposition) {
				continue
			}
			name := AttachmentFilename(disposition, mimeHint(resp))
			if !files.HasExtension(name, c.extensions) {
				c.logger.Info("Ignoring attachment with unexpected extension",
					slog.String("request_id", resp.RequestID),
					slog.String("name", name))
				continue
			}
			c.logger.Info("Attachment response seen",
				slog.String("request_id", resp.RequestID),
				slog.String("url", resp.URL),
				slog.String("name", name),
				slog.String("mime", mimeHint(resp)))
			pending = append(pending, resp)
		}

		remaining := pending[:0]
		for _, resp := range pending {
			art, err := c.save(ctx, resp)
			if err == nil {
				return art, nil
			}
			lastErr = err
			c.logger.Debug("Attachment body not available yet",
				slog.String("request_id", resp.RequestID),
				slog.String("error", err.Error()))
			remaining = append(remaining, resp)
		}
		pending = remaining

		if !time.Now().Before(deadline) {
			return nil, apperrors.NewAttachmentNotFoundError(
				fmt.Sprintf("no attachment captured within %s", timeout), lastErr).
				WithContext("pending", len(pending))
		}
		if err := sleep(ctx, c.pollInterval); err != nil {
			return nil, apperrors.NewAttachmentNotFoundError("capture canceled", err)
		}
	}
}

func (c *NetworkCapture) save(ctx context.Context, resp browser.Response) (*Artifact, error) {
	body, encoded, err := c.fetcher.ResponseBody(ctx, resp)
	if err != nil {
		return nil, err
	}

	data := []byte(body)
	if encoded {
		data, err = base64.StdEncoding.DecodeString(body)
		if err != nil {
			return nil, fmt.Errorf("failed to decode body: %w", err)
		}
	}

	hint := mimeHint(resp)
	name := AttachmentFilename(resp.Header("Content-Disposition"), hint)
	path := filepath.Join(c.dir, name)
	if err := c.manager.WriteFile(path, data); err != nil {
		return nil, apperrors.NewStorageError("failed to save captured attachment", err).
			WithContext("path", path)
	}

	c.logger.Info("Attachment captured",
		slog.String("path", path),
		slog.Int("size_bytes", len(data)),
		slog.Bool("base64", encoded))

	return &Artifact{
		Path:       path,
		Strategy:   StrategyNetwork,
		MimeHint:   hint,
		Size:       int64(len(data)),
		AcquiredAt: time.Now(),
	}, nil
}

func mimeHint(resp browser.Response) string {
	if resp.MimeType != "" {
		return resp.MimeType
	}
	if mt, _, err := mime.ParseMediaType(resp.Header("Content-Type")); err == nil {
		return mt
	}
	return ""
}

// IsAttachment reports whether a Content-Disposition value marks a download.
// The type must be attachment; a bare filename parameter counts only when no
// type token is present, so inline responses are never downloads.
func IsAttachment(disposition string) bool {
	d := strings.TrimSpace(disposition)
	if d == "" {
		return false
	}
	if dt, _, err := mime.ParseMediaType(d); err == nil {
		return dt == "attachment"
	}
	lower := strings.ToLower(d)
	return strings.HasPrefix(lower, "attachment") || strings.HasPrefix(lower, "filename")
}

var (
	extendedFilename = regexp.MustCompile(`(?i)filename\*\s*=\s*([^;]+)`)
	plainFilename    = regexp.MustCompile(`(?i)filename\s*=\s*("([^"]*)"|[^;]+)`)
)

// AttachmentFilename derives a safe base name from a Content-Disposition
// value. RFC 2231 extended, quoted and bare forms are accepted. A missing
// extension is filled in from the mime hint; a missing name becomes
// "download".
func AttachmentFilename(disposition, mimeType string) string {
	name := dispositionFilename(disposition)

	name = strings.ReplaceAll(name, `\`, "/")
	name = filepath.Base(strings.TrimSpace(name))
	if name == "." || name == "/" || name == ".." {
		name = ""
	}
	name = strings.TrimLeft(name, ".")
	if name == "" {
		name = config.DefaultCaptureName
	}

	if filepath.Ext(name) == "" {
		name += extensionFor(mimeType)
	}
	return name
}

func dispositionFilename(disposition string) string {
	if _, params, err := mime.ParseMediaType(disposition); err == nil {
		// mime decodes filename* into filename
		if fn := params["filename"]; fn != "" {
			return unescape(fn)
		}
	}

	if m := extendedFilename.FindStringSubmatch(disposition); m != nil {
		value := strings.Trim(strings.TrimSpace(m[1]), `"`)
		if i := strings.Index(value, "''"); i >= 0 {
			value = value[i+2:]
		}
		return unescape(value)
	}
	if m := plainFilename.FindStringSubmatch(disposition); m != nil {
		if m[2] != "" {
			return unescape(m[2])
		}
		return unescape(strings.Trim(strings.TrimSpace(m[1]), `"`))
	}
	return ""
}

// unescape decodes percent-encoded names, leaving invalid ones untouched
func unescape(s string) string {
	if !strings.Contains(s, "%") {
		return s
	}
	if decoded, err := url.PathUnescape(s); err == nil {
		return decoded
	}
	return s
}

func extensionFor(mimeType string) string {
	mt := strings.ToLower(strings.TrimSpace(mimeType))
	if i := strings.Index(mt, ";"); i >= 0 {
		mt = strings.TrimSpace(mt[:i])
	}
	// Types admin consoles send exports as
	switch mt {
	case "text/csv", "application/csv", "text/comma-separated-values":
		return ".csv"
	case "application/vnd.ms-excel":
		return ".xls"
	case "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet":
		return ".xlsx"
	case "application/zip", "application/x-zip-compressed":
		return ".zip"
	}
	if exts, err := mime.ExtensionsByType(mt); err == nil && len(exts) > 0 {
		return exts[0]
	}
	return ""
}
