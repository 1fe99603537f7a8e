package acquisition

import (
	"context"
	"errors"
	"log/slog"
	"time"

	apperrors "adminexport/internal/errors"
)

// Retrigger re-issues the export request
type Retrigger func(ctx context.Context) error

// AttemptFunc observes every strategy attempt
type AttemptFunc func(ctx context.Context, strategy string, art *Artifact, dur time.Duration, err error)

// FallbackPolicy orders the strategies. The primary is retried once after a
// re-trigger when it saw no progress; any other primary failure goes to the
// secondary directly.
type FallbackPolicy struct {
	Primary          Strategy
	Secondary        Strategy
	Retrigger        Retrigger
	PrimaryTimeout   time.Duration
	SecondaryTimeout time.Duration
	OnAttempt        AttemptFunc
	Logger           *slog.Logger
}

// Acquire runs the policy
func (p *FallbackPolicy) Acquire(ctx context.Context) (*Artifact, error) {
	logger := p.Logger
	if logger == nil {
		logger = slog.Default()
	}

	art, primaryErr := p.run(ctx, p.Primary, p.PrimaryTimeout)
	if primaryErr == nil {
		return art, nil
	}
	if ctx.Err() != nil {
		return nil, apperrors.NewAcquisitionError("acquisition canceled", errors.Join(primaryErr, ctx.Err()))
	}

	if apperrors.IsType(primaryErr, apperrors.ErrTypeNoProgress) && p.Retrigger != nil {
		logger.WarnContext(ctx, "No download progress, re-triggering export once",
			slog.String("strategy", p.Primary.Name()))
		if err := p.Retrigger(ctx); err != nil {
			logger.WarnContext(ctx, "Re-trigger failed", slog.String("error", err.Error()))
			primaryErr = errors.Join(primaryErr, err)
		} else {
			art, err := p.run(ctx, p.Primary, p.PrimaryTimeout)
			if err == nil {
				return art, nil
			}
			primaryErr = errors.Join(primaryErr, err)
		}
	}

	if p.Secondary == nil {
		return nil, apperrors.NewAcquisitionError("acquisition failed", primaryErr)
	}

	logger.WarnContext(ctx, "Falling back to secondary strategy",
		slog.String("from", p.Primary.Name()),
		slog.String("to", p.Secondary.Name()),
		slog.String("error", primaryErr.Error()))

	art, secondaryErr := p.run(ctx, p.Secondary, p.SecondaryTimeout)
	if secondaryErr == nil {
		return art, nil
	}

	return nil, apperrors.NewAcquisitionError("all acquisition strategies failed",
		errors.Join(primaryErr, secondaryErr))
}

func (p *FallbackPolicy) run(ctx context.Context, s Strategy, timeout time.Duration) (*Artifact, error) {
	start := time.Now()
	art, err := s.Acquire(ctx, timeout)
	if p.OnAttempt != nil {
		p.OnAttempt(ctx, s.Name(), art, time.Since(start), err)
	}
	return art, err
}
