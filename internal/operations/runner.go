package operations

import (
	"context"
	"fmt"
	"log/slog"
	"time"
)

// Runner executes the steps of a run in order
type Runner struct {
	tracer *RunTracer
	logger *slog.Logger
}

// NewRunner creates a runner. A nil tracer records nothing.
func NewRunner(tracer *RunTracer, logger *slog.Logger) *Runner {
	if tracer == nil {
		tracer, _ = NewRunTracer(nil)
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Runner{tracer: tracer, logger: logger}
}

// Run executes steps sequentially and stops at the first failure. Steps
// after a failure are marked skipped. The returned error is an
// OperationError wrapping the step's own error.
func (r *Runner) Run(ctx context.Context, state *RunState, steps []Step) error {
	for _, step := range steps {
		state.SetStep(step.ID(), NewStepState(step.ID(), step.Name()))
	}

	ctx, span := r.tracer.TraceRun(ctx, state)
	defer span.End()

	state.Start()
	r.logRunStart(ctx, state, len(steps))

	err := r.execute(ctx, state, steps)
	switch {
	case err == nil:
		state.Complete()
	case ctx.Err() != nil:
		state.Cancel(err)
	default:
		state.Fail(err)
	}

	r.tracer.RecordRunCompletion(ctx, span, state, err)
	r.logRunComplete(ctx, state, err)
	return err
}

func (r *Runner) execute(ctx context.Context, state *RunState, steps []Step) error {
	for i, step := range steps {
		if err := ctx.Err(); err != nil {
			r.skipRemaining(state, steps[i:], "run cancelled")
			return NewCancellationError(step.ID(), err)
		}

		if err := r.executeStep(ctx, state, step, i+1, len(steps)); err != nil {
			r.skipRemaining(state, steps[i+1:], fmt.Sprintf("step %s failed", step.ID()))
			return err
		}
	}
	return nil
}

func (r *Runner) executeStep(ctx context.Context, state *RunState, step Step, number, total int) error {
	stepState := state.GetStep(step.ID())

	ctx, span := r.tracer.TraceStep(ctx, state.ID, step)
	defer span.End()

	r.logStepStart(ctx, state.ID, step, number, total)
	stepState.Start()
	start := time.Now()
	err := step.Execute(ctx, state)
	duration := time.Since(start)

	if reason, ok := IsSkip(err); ok {
		stepState.Skip(reason)
		r.tracer.RecordStepCompletion(ctx, span, step.ID(), StepStatusSkipped, duration, nil)
		r.logStepSkipped(ctx, state.ID, step.ID(), reason)
		return nil
	}

	if err != nil {
		stepState.Fail(err)
		r.tracer.RecordStepCompletion(ctx, span, step.ID(), StepStatusFailed, duration, err)
		r.logStepError(ctx, state.ID, step.ID(), duration, err)
		if ctx.Err() != nil {
			return NewCancellationError(step.ID(), err)
		}
		return WrapError(err, step.ID())
	}

	stepState.Complete()
	r.tracer.RecordStepCompletion(ctx, span, step.ID(), StepStatusCompleted, duration, nil)
	r.logStepComplete(ctx, state.ID, step.ID(), duration)
	return nil
}

func (r *Runner) skipRemaining(state *RunState, steps []Step, reason string) {
	for _, step := range steps {
		if s := state.GetStep(step.ID()); s != nil && s.GetStatus() == StepStatusPending {
			s.Skip(reason)
		}
	}
}
