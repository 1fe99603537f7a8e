package browser

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/chromedp/cdproto/browser"
	"github.com/chromedp/cdproto/cdp"
	"github.com/chromedp/cdproto/inspector"
	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/cdproto/target"
	"github.com/chromedp/chromedp"
	"github.com/chromedp/chromedp/kb"
)

const (
	dialogQueueSize   = 16
	networkBufferSize = 2048
)

// Session is a running browser with one active tab
type Session struct {
	cfg    Config
	logger *slog.Logger

	allocCancel   context.CancelFunc
	browserCancel context.CancelFunc
	timeoutCancel context.CancelFunc
	root          context.Context
	rootID        string

	tabs     *tabStack
	dialogs  *dialogQueue
	network  *NetworkRecorder
	closeOne sync.Once
}

// New launches Chrome, routes downloads into cfg.DownloadDir and starts the
// dialog and network listeners. Close must be called on every path.
func New(ctx context.Context, cfg Config, logger *slog.Logger) (*Session, error) {
	if logger == nil {
		logger = slog.Default()
	}

	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.NoSandbox,
		chromedp.DisableGPU,
		chromedp.Flag("disable-dev-shm-usage", true),
		chromedp.Flag("remote-allow-origins", "*"),
		chromedp.WindowSize(cfg.WindowWidth, cfg.WindowHeight),
	)
	if cfg.Headless {
		opts = append(opts, chromedp.Flag("headless", "new"))
	} else {
		opts = append(opts, chromedp.Flag("headless", false))
	}
	if cfg.ExecPath != "" {
		opts = append(opts, chromedp.ExecPath(cfg.ExecPath))
	}
	if cfg.UserAgent != "" {
		opts = append(opts, chromedp.UserAgent(cfg.UserAgent))
	}

	allocCtx, allocCancel := chromedp.NewExecAllocator(ctx, opts...)
	browserCtx, browserCancel := chromedp.NewContext(allocCtx,
		chromedp.WithLogf(func(format string, args ...interface{}) {
			logger.Debug(fmt.Sprintf(format, args...), slog.String("component", "chromedp"))
		}),
		chromedp.WithErrorf(func(format string, args ...interface{}) {
			logger.Warn(fmt.Sprintf(format, args...), slog.String("component", "chromedp"))
		}))

	// First Run starts the browser and binds it to browserCtx
	if err := chromedp.Run(browserCtx); err != nil {
		browserCancel()
		allocCancel()
		return nil, fmt.Errorf("failed to start browser: %w", err)
	}

	var rootID string
	if c := chromedp.FromContext(browserCtx); c != nil && c.Target != nil {
		rootID = string(c.Target.TargetID)
	}

	root, timeoutCancel := browserCtx, context.CancelFunc(func() {})
	if cfg.Timeout > 0 {
		root, timeoutCancel = context.WithTimeout(browserCtx, cfg.Timeout)
	}

	s := &Session{
		cfg:           cfg,
		logger:        logger,
		allocCancel:   allocCancel,
		browserCancel: browserCancel,
		timeoutCancel: timeoutCancel,
		root:          root,
		rootID:        rootID,
		tabs:          newTabStack(rootID, root),
		dialogs:       newDialogQueue(dialogQueueSize),
		network:       NewNetworkRecorder(networkBufferSize),
	}

	s.listen(root, rootID)

	// Discovery delivers targetDestroyed for popups the export closes
	setup := []chromedp.Action{network.Enable(), target.SetDiscoverTargets(true)}
	if cfg.DownloadDir != "" {
		setup = append(setup, browser.SetDownloadBehavior(browser.SetDownloadBehaviorBehaviorAllow).
			WithDownloadPath(cfg.DownloadDir).
			WithEventsEnabled(true))
	}
	if err := chromedp.Run(root, setup...); err != nil {
		s.Close()
		return nil, fmt.Errorf("failed to configure browser: %w", err)
	}

	logger.Info("Browser started",
		slog.String("exec_path", cfg.ExecPath),
		slog.Bool("headless", cfg.Headless),
		slog.String("download_dir", cfg.DownloadDir))

	return s, nil
}

// listen subscribes to the events of the tab behind tabCtx
func (s *Session) listen(tabCtx context.Context, tabID string) {
	chromedp.ListenTarget(tabCtx, func(ev interface{}) {
		switch ev := ev.(type) {
		case *page.EventJavascriptDialogOpening:
			s.logger.Info("Dialog opened",
				slog.String("type", ev.Type.String()),
				slog.String("message", ev.Message))
			s.dialogs.push(ev.Message)
			// Handling must not block the event loop
			go func() {
				if err := chromedp.Run(tabCtx, page.HandleJavaScriptDialog(true)); err != nil {
					s.logger.Debug("Dialog accept failed", slog.String("error", err.Error()))
				}
			}()
		case *network.EventResponseReceived:
			s.network.Record(tabID, ev)
		case *target.EventTargetDestroyed:
			s.tabClosed(string(ev.TargetID))
		case *inspector.EventDetached:
			s.tabClosed(tabID)
		case *browser.EventDownloadWillBegin:
			s.logger.Info("Download started",
				slog.String("guid", ev.GUID),
				slog.String("suggested_filename", ev.SuggestedFilename),
				slog.String("url", ev.URL))
		case *browser.EventDownloadProgress:
			if ev.State == browser.DownloadProgressStateCompleted {
				s.logger.Info("Download completed",
					slog.String("guid", ev.GUID),
					slog.Float64("received_bytes", ev.ReceivedBytes))
			}
		}
	})
}

// tabClosed falls back to the previous tab when an adopted one goes away
func (s *Session) tabClosed(id string) {
	if id == s.rootID || !s.tabs.release(id) {
		return
	}
	s.logger.Info("Adopted window closed, restored previous tab",
		slog.String("target_id", id),
		slog.Int("open_tabs", s.tabs.depth()))
}

func (s *Session) active() context.Context {
	return s.tabs.active()
}

// derive returns a context on the tab behind base that also ends with ctx
func derive(base, ctx context.Context) (context.Context, context.CancelFunc) {
	runCtx, cancel := context.WithCancel(base)
	if deadline, ok := ctx.Deadline(); ok {
		var dcancel context.CancelFunc
		runCtx, dcancel = context.WithDeadline(runCtx, deadline)
		inner := cancel
		cancel = func() { dcancel(); inner() }
	}
	stop := context.AfterFunc(ctx, cancel)
	return runCtx, func() {
		stop()
		cancel()
	}
}

func (s *Session) run(ctx context.Context, actions ...chromedp.Action) error {
	return s.runOn(s.active(), ctx, actions...)
}

func (s *Session) runOn(tabCtx, ctx context.Context, actions ...chromedp.Action) error {
	runCtx, cancel := derive(tabCtx, ctx)
	defer cancel()
	return chromedp.Run(runCtx, actions...)
}

// Navigate loads url in the active tab
func (s *Session) Navigate(ctx context.Context, url string) error {
	return s.run(ctx, chromedp.Navigate(url))
}

// Location returns the URL of the active tab
func (s *Session) Location(ctx context.Context) (string, error) {
	var url string
	err := s.run(ctx, chromedp.Location(&url))
	return url, err
}

// Title returns the document title of the active tab
func (s *Session) Title(ctx context.Context) (string, error) {
	var title string
	err := s.run(ctx, chromedp.Title(&title))
	return title, err
}

// WaitPresent blocks until sel matches an element in the DOM
func (s *Session) WaitPresent(ctx context.Context, sel string) error {
	return s.run(ctx, chromedp.WaitReady(sel, chromedp.ByQuery))
}

// SetValue replaces the value of the input matched by sel
func (s *Session) SetValue(ctx context.Context, sel, value string) error {
	return s.run(ctx,
		chromedp.Clear(sel, chromedp.ByQuery),
		chromedp.SendKeys(sel, value, chromedp.ByQuery))
}

// PressEnter sends the Enter key to the element matched by sel
func (s *Session) PressEnter(ctx context.Context, sel string) error {
	return s.run(ctx, chromedp.SendKeys(sel, kb.Enter, chromedp.ByQuery))
}

// Submit submits the form that owns the element matched by sel
func (s *Session) Submit(ctx context.Context, sel string) error {
	return s.run(ctx, chromedp.Submit(sel, chromedp.ByQuery))
}

// Click clicks the first visible element matched by sel
func (s *Session) Click(ctx context.Context, sel string) error {
	return s.run(ctx, chromedp.Click(sel, chromedp.ByQuery, chromedp.NodeVisible))
}

// Evaluate runs script in the active tab. res may be nil to discard the result.
func (s *Session) Evaluate(ctx context.Context, script string, res interface{}) error {
	return s.run(ctx, chromedp.Evaluate(script, res))
}

// DrainAlert returns the text of one dialog that opened since the last call,
// waiting up to timeout. Dialogs are already accepted when they open.
func (s *Session) DrainAlert(ctx context.Context, timeout time.Duration) (string, bool) {
	msg, ok := s.dialogs.drain(ctx, timeout)
	if ok {
		s.logger.Info("Alert drained", slog.String("message", msg))
	}
	return msg, ok
}

// Responses exposes the recorded network responses
func (s *Session) Responses() *NetworkRecorder {
	return s.network
}

// ResponseBody fetches the body of a recorded response on the tab that
// received it. The second result reports whether the body is base64 encoded.
func (s *Session) ResponseBody(ctx context.Context, resp Response) (string, bool, error) {
	var res network.GetResponseBodyReturns
	err := s.runOn(s.tabs.lookup(resp.TargetID), ctx, chromedp.ActionFunc(func(ctx context.Context) error {
		return cdp.Execute(ctx, network.CommandGetResponseBody,
			&network.GetResponseBodyParams{RequestID: network.RequestID(resp.RequestID)}, &res)
	}))
	if err != nil {
		return "", false, err
	}
	return res.Body, res.Base64encoded, nil
}

// Close tears the browser down. It is safe to call more than once.
func (s *Session) Close() {
	s.closeOne.Do(func() {
		s.tabs.closeAll()

		s.timeoutCancel()
		s.browserCancel()
		s.allocCancel()
		s.logger.Info("Browser closed")
	})
}
