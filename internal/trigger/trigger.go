// Package trigger starts the admin console export.
//
// Controls on the list page are collected by one script evaluation, ranked
// by how strongly they look like the export button and clicked in order.
// When nothing can be clicked the page's own export function is invoked
// directly.
package trigger

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"adminexport/internal/config"
	apperrors "adminexport/internal/errors"
)

const (
	// IndexAttr tags collected controls so they can be clicked by selector
	IndexAttr = "data-adminexport-idx"

	defaultClickTimeout = 5 * time.Second
)

// Path names how the export was started
type Path string

const (
	PathClick  Path = "click"
	PathScript Path = "script"
)

// Driver is the browser surface the trigger needs
type Driver interface {
	Evaluate(ctx context.Context, script string, res interface{}) error
	Click(ctx context.Context, sel string) error
	DrainAlert(ctx context.Context, timeout time.Duration) (string, bool)
}

// WindowAdopter switches to a tab opened after it was created
type WindowAdopter interface {
	Adopt(ctx context.Context, grace time.Duration) (bool, error)
}

// WatchFunc starts watching for new tabs
type WatchFunc func(ctx context.Context) (WindowAdopter, error)

// Result describes a sent export request
type Result struct {
	Path      Path
	Control   *Ranked
	Attempt   int
	SentAt    time.Time
	Alert     string
	NewWindow bool
}

// Trigger fires the export
type Trigger struct {
	driver   Driver
	watch    WatchFunc
	criteria Criteria
	cfg      config.ExportConfig
	logger   *slog.Logger

	clickTimeout time.Duration
}

// Option customizes a Trigger
type Option func(*Trigger)

// WithWindowWatcher enables adopting tabs the export opens
func WithWindowWatcher(watch WatchFunc) Option {
	return func(t *Trigger) { t.watch = watch }
}

// New creates a trigger driven by the export settings
func New(driver Driver, cfg config.ExportConfig, logger *slog.Logger, opts ...Option) *Trigger {
	if logger == nil {
		logger = slog.Default()
	}
	t := &Trigger{
		driver:       driver,
		criteria:     CriteriaFrom(cfg),
		cfg:          cfg,
		logger:       logger.With(slog.String("component", "trigger")),
		clickTimeout: defaultClickTimeout,
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Fire sends the export request, retrying with a fixed backoff
func (t *Trigger) Fire(ctx context.Context) (*Result, error) {
	attempts := t.cfg.Attempts
	if attempts < 1 {
		attempts = 1
	}

	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		if attempt > 1 {
			t.logger.InfoContext(ctx, "Retrying export trigger",
				slog.Int("attempt", attempt),
				slog.Duration("backoff", t.cfg.Backoff))
			if err := sleep(ctx, t.cfg.Backoff); err != nil {
				return nil, apperrors.NewExportTriggerError("export trigger canceled", err)
			}
		}

		result, err := t.attempt(ctx)
		if err == nil {
			result.Attempt = attempt
			return result, nil
		}
		lastErr = err
		t.logger.WarnContext(ctx, "Export trigger attempt failed",
			slog.Int("attempt", attempt),
			slog.String("error", err.Error()))
	}

	return nil, apperrors.NewExportTriggerError("export trigger exhausted", lastErr).
		WithContext("attempts", attempts)
}

func (t *Trigger) attempt(ctx context.Context) (*Result, error) {
	var watcher WindowAdopter
	if t.watch != nil {
		w, err := t.watch(ctx)
		if err != nil {
			t.logger.DebugContext(ctx, "Window watch unavailable", slog.String("error", err.Error()))
		} else {
			watcher = w
		}
	}

	result := &Result{}

	descs, err := t.collect(ctx)
	if err != nil {
		t.logger.DebugContext(ctx, "Control collection failed", slog.String("error", err.Error()))
	}
	ranked := Rank(descs, t.criteria)
	t.logger.DebugContext(ctx, "Ranked export controls",
		slog.Int("collected", len(descs)),
		slog.Int("usable", len(ranked)))

	for i := range ranked {
		r := ranked[i]
		if err := t.click(ctx, r.Index); err != nil {
			t.logger.DebugContext(ctx, "Control click failed",
				slog.Int("index", r.Index),
				slog.String("signal", r.Signal.String()),
				slog.String("error", err.Error()))
			continue
		}
		result.Path = PathClick
		result.Control = &r
		t.logger.InfoContext(ctx, "Clicked export control",
			slog.Int("index", r.Index),
			slog.String("id", r.ID),
			slog.String("signal", r.Signal.String()),
			slog.String("text", r.Text))
		break
	}

	if result.Path == "" {
		if err := t.driver.Evaluate(ctx, t.cfg.Script, nil); err != nil {
			return nil, fmt.Errorf("export script %q: %w", t.cfg.Script, err)
		}
		result.Path = PathScript
		t.logger.InfoContext(ctx, "Invoked export script", slog.String("script", t.cfg.Script))
	}
	result.SentAt = time.Now()

	if msg, ok := t.driver.DrainAlert(ctx, t.cfg.AlertWait); ok {
		result.Alert = msg
	}

	if watcher != nil {
		adopted, err := watcher.Adopt(ctx, t.cfg.WindowGrace)
		if err != nil {
			t.logger.DebugContext(ctx, "Window adoption failed", slog.String("error", err.Error()))
		}
		result.NewWindow = adopted
	}

	return result, nil
}

func (t *Trigger) collect(ctx context.Context) ([]Descriptor, error) {
	script, err := collectScript(t.cfg.CandidateSelector)
	if err != nil {
		return nil, err
	}
	var descs []Descriptor
	if err := t.driver.Evaluate(ctx, script, &descs); err != nil {
		return nil, err
	}
	return descs, nil
}

func (t *Trigger) click(ctx context.Context, index int) error {
	ctx, cancel := context.WithTimeout(ctx, t.clickTimeout)
	defer cancel()
	return t.driver.Click(ctx, IndexSelector(index))
}

// IndexSelector matches the control collected at index
func IndexSelector(index int) string {
	return fmt.Sprintf(`[%s="%d"]`, IndexAttr, index)
}

// collectScript tags every candidate control and returns its description
func collectScript(selector string) (string, error) {
	sel, err := json.Marshal(selector)
	if err != nil {
		return "", err
	}
	attr, _ := json.Marshal(IndexAttr)

	return fmt.Sprintf(`(() => {
	const attr = %s;
	document.querySelectorAll('[' + attr + ']').forEach(el => el.removeAttribute(attr));
	const out = [];
	document.querySelectorAll(%s).forEach((el, i) => {
		el.setAttribute(attr, String(i));
		const style = window.getComputedStyle(el);
		const rect = el.getBoundingClientRect();
		const cls = typeof el.className === 'string' ? el.className : (el.getAttribute('class') || '');
		out.push({
			index: i,
			tag: el.tagName.toLowerCase(),
			id: el.id || '',
			classes: cls,
			handler: el.getAttribute('onclick') || '',
			href: el.getAttribute('href') || '',
			text: (el.innerText || el.value || el.getAttribute('alt') || el.getAttribute('title') || '').trim().slice(0, 200),
			attrs: ['name', 'title', 'alt', 'src', 'value'].map(a => el.getAttribute(a) || '').join(' '),
			visible: style.display !== 'none' && style.visibility !== 'hidden' && (rect.width > 0 || rect.height > 0),
			enabled: !el.disabled && el.getAttribute('aria-disabled') !== 'true',
			source: el.outerHTML.slice(0, 200),
		});
	});
	return out;
})()`, attr, sel), nil
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
