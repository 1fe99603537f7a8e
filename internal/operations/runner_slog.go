package operations

import (
	"context"
	"log/slog"
	"time"

	"adminexport/internal/infrastructure"
)

func (r *Runner) logRunStart(ctx context.Context, state *RunState, steps int) {
	attrs := []any{
		slog.String("run_id", state.ID),
		slog.String("table", state.Table),
		slog.Int("steps", steps),
	}
	if spanTrace := infrastructure.TraceIDFromContext(ctx); spanTrace != "" {
		attrs = append(attrs, slog.String("otel_trace_id", spanTrace))
	}
	r.logger.InfoContext(ctx, "Run started", attrs...)
}

func (r *Runner) logRunComplete(ctx context.Context, state *RunState, err error) {
	if err != nil {
		r.logger.ErrorContext(ctx, "Run failed",
			slog.String("run_id", state.ID),
			slog.String("step", StepOf(err)),
			slog.Duration("duration", state.Duration()),
			slog.String("error", err.Error()))
		return
	}
	r.logger.InfoContext(ctx, "Run completed",
		slog.String("run_id", state.ID),
		slog.Int("rows", state.RowCount()),
		slog.Duration("duration", state.Duration()))
}

func (r *Runner) logStepStart(ctx context.Context, runID string, step Step, number, total int) {
	r.logger.InfoContext(ctx, "Step started",
		slog.String("run_id", runID),
		slog.String("step", step.ID()),
		slog.String("name", step.Name()),
		slog.Int("step_number", number),
		slog.Int("total_steps", total))
}

func (r *Runner) logStepComplete(ctx context.Context, runID, stepID string, duration time.Duration) {
	r.logger.InfoContext(ctx, "Step completed",
		slog.String("run_id", runID),
		slog.String("step", stepID),
		slog.Duration("duration", duration))
}

func (r *Runner) logStepSkipped(ctx context.Context, runID, stepID, reason string) {
	r.logger.InfoContext(ctx, "Step skipped",
		slog.String("run_id", runID),
		slog.String("step", stepID),
		slog.String("reason", reason))
}

func (r *Runner) logStepError(ctx context.Context, runID, stepID string, duration time.Duration, err error) {
	r.logger.ErrorContext(ctx, "Step failed",
		slog.String("run_id", runID),
		slog.String("step", stepID),
		slog.Duration("duration", duration),
		slog.String("error", err.Error()))
}
