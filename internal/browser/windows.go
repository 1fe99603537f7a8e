package browser

import (
	"context"
	"log/slog"
	"time"

	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/cdproto/target"
	"github.com/chromedp/chromedp"
)

const windowPollInterval = 200 * time.Millisecond

// WindowWatcher detects tabs opened after it was created
type WindowWatcher struct {
	s     *Session
	known map[target.ID]bool
}

// WatchWindows records the currently open tabs
func (s *Session) WatchWindows(ctx context.Context) (*WindowWatcher, error) {
	infos, err := s.targets(ctx)
	if err != nil {
		return nil, err
	}

	known := make(map[target.ID]bool, len(infos))
	for _, info := range infos {
		known[info.TargetID] = true
	}
	return &WindowWatcher{s: s, known: known}, nil
}

// Adopt waits up to grace for a new page tab and makes it the active one.
// It reports whether a tab was adopted.
func (w *WindowWatcher) Adopt(ctx context.Context, grace time.Duration) (bool, error) {
	deadline := time.Now().Add(grace)

	for {
		infos, err := w.s.targets(ctx)
		if err != nil {
			return false, err
		}
		for _, info := range infos {
			if info.Type != "page" || w.known[info.TargetID] {
				continue
			}
			return true, w.s.adopt(info)
		}

		if time.Now().After(deadline) {
			return false, nil
		}
		select {
		case <-ctx.Done():
			return false, ctx.Err()
		case <-time.After(windowPollInterval):
		}
	}
}

func (s *Session) targets(ctx context.Context) ([]*target.Info, error) {
	runCtx, cancel := derive(s.active(), ctx)
	defer cancel()
	return chromedp.Targets(runCtx)
}

func (s *Session) adopt(info *target.Info) error {
	tabCtx, tabCancel := chromedp.NewContext(s.root, chromedp.WithTargetID(info.TargetID))
	if err := chromedp.Run(tabCtx, network.Enable()); err != nil {
		tabCancel()
		return err
	}
	s.listen(tabCtx, string(info.TargetID))
	s.tabs.push(string(info.TargetID), tabCtx, tabCancel)

	s.logger.Info("Adopted new window",
		slog.String("target_id", string(info.TargetID)),
		slog.String("url", info.URL))
	return nil
}
