package acquisition

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"adminexport/internal/config"
	apperrors "adminexport/internal/errors"
	"adminexport/internal/files"
)

// StrategyFilesystem names the polling strategy
const StrategyFilesystem = "filesystem"

type entry struct {
	size    int64
	modTime time.Time
}

// FilesystemPoller waits for a browser download to settle in dir
type FilesystemPoller struct {
	dir            string
	exts           []string
	markers        []string
	pollInterval   time.Duration
	stableDelay    time.Duration
	stallThreshold time.Duration
	logger         *slog.Logger

	baseline map[string]entry
}

// NewFilesystemPoller creates a poller for dir using the acquisition settings
func NewFilesystemPoller(dir string, cfg config.AcquisitionConfig, logger *slog.Logger) *FilesystemPoller {
	if logger == nil {
		logger = slog.Default()
	}
	return &FilesystemPoller{
		dir:            dir,
		exts:           cfg.Extensions,
		markers:        cfg.Markers,
		pollInterval:   cfg.PollInterval,
		stableDelay:    cfg.StableDelay,
		stallThreshold: cfg.StallThreshold,
		logger:         logger.With(slog.String("strategy", StrategyFilesystem)),
		baseline:       map[string]entry{},
	}
}

// Name implements Strategy
func (p *FilesystemPoller) Name() string { return StrategyFilesystem }

// Snapshot records the entries present before the export is triggered.
// Unchanged baseline files are never taken as the new download.
func (p *FilesystemPoller) Snapshot() error {
	entries, err := p.scan()
	if err != nil {
		return err
	}
	p.baseline = entries
	p.logger.Debug("Download directory snapshot", slog.Int("entries", len(entries)))
	return nil
}

// Acquire implements Strategy
func (p *FilesystemPoller) Acquire(ctx context.Context, timeout time.Duration) (*Artifact, error) {
	start := time.Now()
	deadline := start.Add(timeout)

	observed := false
	var lastBytes int64
	state := StateAbsent

	for {
		entries, err := p.scan()
		if err != nil {
			return nil, apperrors.NewAcquisitionError("failed to scan download directory", err).
				WithContext("dir", p.dir)
		}

		markerBytes, markerCount := p.markerStats(entries)
		if markerCount > 0 {
			if !observed {
				p.logger.Info("Download in progress", slog.Int("markers", markerCount))
			}
			observed = true
			if markerBytes > lastBytes {
				lastBytes = markerBytes
			}
			state = StateDownloading
		} else if cand, ok := p.newest(entries); ok {
			observed = true
			size, stable, err := p.stabilize(ctx, cand)
			if err != nil {
				return nil, apperrors.NewAcquisitionError("download wait canceled", err)
			}
			if stable {
				p.logger.Info("Download stabilized",
					slog.String("path", cand.Path),
					slog.Int64("size_bytes", size),
					slog.Duration("elapsed", time.Since(start)))
				return &Artifact{
					Path:       cand.Path,
					Strategy:   StrategyFilesystem,
					Size:       size,
					AcquiredAt: time.Now(),
				}, nil
			}
			if size > lastBytes {
				lastBytes = size
			}
			state = StateGrowing
		}

		now := time.Now()
		if !observed && now.Sub(start) >= p.stallThreshold {
			return nil, apperrors.NewNoProgressError(
				fmt.Sprintf("no download activity within %s", p.stallThreshold)).
				WithContext("dir", p.dir)
		}
		if !now.Before(deadline) {
			return nil, apperrors.NewDownloadTimeoutError(
				fmt.Sprintf("download did not complete within %s", timeout)).
				WithContext("dir", p.dir).
				WithContext("state", string(state)).
				WithContext("observed_bytes", lastBytes)
		}

		if err := sleep(ctx, p.pollInterval); err != nil {
			return nil, apperrors.NewAcquisitionError("download wait canceled", err)
		}
	}
}

// scan lists regular, non-hidden entries of dir. A missing dir is empty.
func (p *FilesystemPoller) scan() (map[string]entry, error) {
	dirEntries, err := os.ReadDir(p.dir)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return map[string]entry{}, nil
		}
		return nil, err
	}

	out := make(map[string]entry, len(dirEntries))
	for _, de := range dirEntries {
		if de.IsDir() {
			continue
		}
		info, err := de.Info()
		if err != nil {
			// Renamed between ReadDir and Info
			continue
		}
		out[de.Name()] = entry{size: info.Size(), modTime: info.ModTime()}
	}
	return out, nil
}

func (p *FilesystemPoller) isMarker(name string) bool {
	lower := strings.ToLower(name)
	for _, m := range p.markers {
		if m != "" && strings.HasSuffix(lower, strings.ToLower(m)) {
			return true
		}
	}
	return false
}

func (p *FilesystemPoller) markerStats(entries map[string]entry) (int64, int) {
	var total int64
	count := 0
	for name, e := range entries {
		// A stale marker left by an earlier run is not activity
		if p.isMarker(name) && !p.unchanged(name, e) {
			total += e.size
			count++
		}
	}
	return total, count
}

func (p *FilesystemPoller) unchanged(name string, e entry) bool {
	old, ok := p.baseline[name]
	return ok && old.size == e.size && old.modTime.Equal(e.modTime)
}

// newest returns the most recently modified terminal file that is new or
// changed since the snapshot
func (p *FilesystemPoller) newest(entries map[string]entry) (Candidate, bool) {
	var best Candidate
	found := false

	for name, e := range entries {
		if strings.HasPrefix(name, ".") || p.isMarker(name) || !files.HasExtension(name, p.exts) {
			continue
		}
		if p.unchanged(name, e) {
			continue
		}
		path := filepath.Join(p.dir, name)
		if !found || e.modTime.After(best.ModTime) || (e.modTime.Equal(best.ModTime) && path > best.Path) {
			best = Candidate{
				Path:    path,
				Size:    e.size,
				ModTime: e.modTime,
				Ext:     files.NormalizeExt(filepath.Ext(name)),
				State:   StateGrowing,
			}
			found = true
		}
	}
	return best, found
}

// stabilize reads the size twice, stableDelay apart
func (p *FilesystemPoller) stabilize(ctx context.Context, c Candidate) (int64, bool, error) {
	first, err := os.Stat(c.Path)
	if err != nil {
		return 0, false, nil
	}
	if err := sleep(ctx, p.stableDelay); err != nil {
		return 0, false, err
	}
	second, err := os.Stat(c.Path)
	if err != nil {
		return 0, false, nil
	}

	size := second.Size()
	return size, size > 0 && size == first.Size(), nil
}
