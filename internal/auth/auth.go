// Package auth establishes and renews the admin console session.
package auth

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"adminexport/internal/config"
	apperrors "adminexport/internal/errors"
)

const defaultURLPollInterval = 250 * time.Millisecond

// Driver is the browser surface the establisher needs
type Driver interface {
	Navigate(ctx context.Context, url string) error
	Location(ctx context.Context) (string, error)
	Title(ctx context.Context) (string, error)
	WaitPresent(ctx context.Context, sel string) error
	SetValue(ctx context.Context, sel, value string) error
	PressEnter(ctx context.Context, sel string) error
	Submit(ctx context.Context, sel string) error
	Click(ctx context.Context, sel string) error
	DrainAlert(ctx context.Context, timeout time.Duration) (string, bool)
}

// Session is an authenticated browser context
type Session struct {
	URL           string
	EstablishedAt time.Time
}

// Establisher signs in and re-signs in when a protected page bounces to
// the login page
type Establisher struct {
	driver       Driver
	cfg          config.LoginConfig
	logger       *slog.Logger
	pollInterval time.Duration

	session *Session
}

// NewEstablisher creates an establisher for the configured login page
func NewEstablisher(driver Driver, cfg config.LoginConfig, logger *slog.Logger) *Establisher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Establisher{
		driver:       driver,
		cfg:          cfg,
		logger:       logger.With(slog.String("component", "auth")),
		pollInterval: defaultURLPollInterval,
	}
}

// Session returns the current session, nil before the first login
func (e *Establisher) Session() *Session {
	return e.session
}

// fieldSelector matches an input by its name attribute
func fieldSelector(name string) string {
	return fmt.Sprintf(`[name=%q]`, name)
}

// IsLoginPage reports whether url carries the login page signature
func (e *Establisher) IsLoginPage(url string) bool {
	return strings.Contains(url, e.cfg.Hint)
}

// Login signs in through the login form
func (e *Establisher) Login(ctx context.Context) (*Session, error) {
	e.session = nil
	idSel := fieldSelector(e.cfg.IDField)
	pwSel := fieldSelector(e.cfg.PasswordField)

	e.logger.InfoContext(ctx, "Opening login page", slog.String("url", e.cfg.URL))
	if err := e.withTimeout(ctx, e.cfg.NavigationTimeout, func(ctx context.Context) error {
		return e.driver.Navigate(ctx, e.cfg.URL)
	}); err != nil {
		return nil, apperrors.NewAuthError("failed to open login page", err).
			WithContext("url", e.cfg.URL)
	}

	if err := e.waitFields(ctx, idSel, pwSel); err != nil {
		return nil, e.authFailure(ctx, "login fields not found", err)
	}

	if err := e.fill(ctx, idSel, pwSel); err != nil {
		return nil, e.authFailure(ctx, "failed to fill login form", err)
	}

	// A rejected first attempt shows an alert; refill and resubmit once
	if msg, ok := e.driver.DrainAlert(ctx, e.cfg.AlertWait); ok {
		e.logger.WarnContext(ctx, "Login alert shown, retrying once", slog.String("alert", msg))
		if err := e.waitFields(ctx, idSel, pwSel); err != nil {
			return nil, e.authFailure(ctx, "login fields not found after alert", err)
		}
		if err := e.fill(ctx, idSel, pwSel); err != nil {
			return nil, e.authFailure(ctx, "failed to refill login form", err)
		}
		if msg, ok := e.driver.DrainAlert(ctx, e.cfg.AlertWait); ok {
			e.logger.WarnContext(ctx, "Login alert shown again", slog.String("alert", msg))
		}
	}

	url, left := e.waitLeftLogin(ctx, e.cfg.NavigationTimeout)
	if !left {
		e.logger.InfoContext(ctx, "Still on login page, submitting form directly")
		if err := e.driver.Submit(ctx, pwSel); err != nil {
			e.logger.DebugContext(ctx, "Form submit failed", slog.String("error", err.Error()))
		}
		url, left = e.waitLeftLogin(ctx, e.cfg.NavigationTimeout/2)
	}
	if !left {
		e.logger.InfoContext(ctx, "Still on login page, clicking submit control",
			slog.String("selector", e.cfg.SubmitSelector))
		if err := e.withTimeout(ctx, e.cfg.FieldTimeout, func(ctx context.Context) error {
			return e.driver.Click(ctx, e.cfg.SubmitSelector)
		}); err != nil {
			e.logger.DebugContext(ctx, "Submit click failed", slog.String("error", err.Error()))
		}
		url, left = e.waitLeftLogin(ctx, e.cfg.NavigationTimeout/2)
	}
	if !left {
		return nil, e.authFailure(ctx, "login page still shown after submit", nil)
	}

	e.session = &Session{URL: url, EstablishedAt: time.Now()}
	e.logger.InfoContext(ctx, "Login succeeded", slog.String("url", url))
	return e.session, nil
}

// EnsureSession navigates to url, signing in again first when the
// navigation lands on the login page
func (e *Establisher) EnsureSession(ctx context.Context, url string) error {
	if err := e.navigate(ctx, url); err != nil {
		return err
	}

	current, err := e.driver.Location(ctx)
	if err != nil {
		return apperrors.NewAuthError("failed to read current url", err)
	}
	if !e.IsLoginPage(current) {
		e.session = &Session{URL: current, EstablishedAt: e.establishedAt()}
		return nil
	}

	e.logger.InfoContext(ctx, "Session expired, logging in again", slog.String("url", current))
	if _, err := e.Login(ctx); err != nil {
		return err
	}
	if err := e.navigate(ctx, url); err != nil {
		return err
	}

	current, err = e.driver.Location(ctx)
	if err != nil {
		return apperrors.NewAuthError("failed to read current url", err)
	}
	if e.IsLoginPage(current) {
		return e.authFailure(ctx, "redirected to login page after re-login", nil)
	}
	e.session.URL = current
	return nil
}

func (e *Establisher) establishedAt() time.Time {
	if e.session != nil {
		return e.session.EstablishedAt
	}
	return time.Now()
}

func (e *Establisher) navigate(ctx context.Context, url string) error {
	if err := e.withTimeout(ctx, e.cfg.NavigationTimeout, func(ctx context.Context) error {
		return e.driver.Navigate(ctx, url)
	}); err != nil {
		return apperrors.NewAuthError("failed to open page", err).WithContext("url", url)
	}
	return sleep(ctx, e.cfg.SettleDelay)
}

func (e *Establisher) waitFields(ctx context.Context, sels ...string) error {
	return e.withTimeout(ctx, e.cfg.FieldTimeout, func(ctx context.Context) error {
		for _, sel := range sels {
			if err := e.driver.WaitPresent(ctx, sel); err != nil {
				return fmt.Errorf("%s: %w", sel, err)
			}
		}
		return nil
	})
}

func (e *Establisher) fill(ctx context.Context, idSel, pwSel string) error {
	return e.withTimeout(ctx, e.cfg.FieldTimeout, func(ctx context.Context) error {
		if err := e.driver.SetValue(ctx, idSel, e.cfg.ID); err != nil {
			return err
		}
		if err := e.driver.SetValue(ctx, pwSel, e.cfg.Password); err != nil {
			return err
		}
		return e.driver.PressEnter(ctx, pwSel)
	})
}

// waitLeftLogin polls the current url until it no longer matches the login
// signature or timeout elapses
func (e *Establisher) waitLeftLogin(ctx context.Context, timeout time.Duration) (string, bool) {
	deadline := time.Now().Add(timeout)
	var url string

	for {
		if current, err := e.driver.Location(ctx); err == nil {
			url = current
			if !e.IsLoginPage(url) {
				return url, true
			}
		}
		if !time.Now().Before(deadline) {
			return url, false
		}
		if err := sleep(ctx, e.pollInterval); err != nil {
			return url, false
		}
	}
}

// authFailure builds an AuthError carrying the page title and url
func (e *Establisher) authFailure(ctx context.Context, msg string, cause error) error {
	err := apperrors.NewAuthError(msg, cause)
	if url, lerr := e.driver.Location(ctx); lerr == nil {
		err = err.WithContext("url", url)
	}
	if title, terr := e.driver.Title(ctx); terr == nil {
		err = err.WithContext("title", title)
	}
	e.logger.ErrorContext(ctx, "Login failed",
		slog.String("reason", msg),
		slog.Any("context", err.Context))
	return err
}

func (e *Establisher) withTimeout(ctx context.Context, d time.Duration, fn func(context.Context) error) error {
	if d > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, d)
		defer cancel()
	}
	return fn(ctx)
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
