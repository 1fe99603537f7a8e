package operations

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	tracenoop "go.opentelemetry.io/otel/trace/noop"

	"adminexport/internal/infrastructure"
)

const (
	TracerName = "adminexport.run"
)

// RunTracer provides OpenTelemetry instrumentation for runs
type RunTracer struct {
	tracer  trace.Tracer
	metrics *infrastructure.BusinessMetrics
}

// NewRunTracer creates a tracer from the initialized providers. Nil providers
// give a tracer that records nothing.
func NewRunTracer(providers *infrastructure.OTelProviders) (*RunTracer, error) {
	if providers == nil {
		return &RunTracer{tracer: tracenoop.NewTracerProvider().Tracer(TracerName)}, nil
	}

	metrics, err := infrastructure.CreateBusinessMetrics(providers.Meter)
	if err != nil {
		return nil, fmt.Errorf("failed to create business metrics: %w", err)
	}

	return &RunTracer{
		tracer:  providers.Tracer,
		metrics: metrics,
	}, nil
}

// Metrics returns the business metrics, nil when metrics are off
func (rt *RunTracer) Metrics() *infrastructure.BusinessMetrics {
	return rt.metrics
}

// TraceRun creates a span for the entire run
func (rt *RunTracer) TraceRun(ctx context.Context, state *RunState) (context.Context, trace.Span) {
	return rt.tracer.Start(ctx, "run.execute",
		trace.WithSpanKind(trace.SpanKindInternal),
		trace.WithAttributes(
			attribute.String("run.id", state.ID),
			attribute.String("run.table", state.Table),
		),
	)
}

// TraceStep creates a span for one step
func (rt *RunTracer) TraceStep(ctx context.Context, runID string, step Step) (context.Context, trace.Span) {
	return rt.tracer.Start(ctx, fmt.Sprintf("run.step.%s", step.ID()),
		trace.WithSpanKind(trace.SpanKindInternal),
		trace.WithAttributes(
			attribute.String("run.id", runID),
			attribute.String("step.id", step.ID()),
			attribute.String("step.name", step.Name()),
		),
	)
}

// RecordStepCompletion closes out a step span and records step metrics
func (rt *RunTracer) RecordStepCompletion(ctx context.Context, span trace.Span, stepID string, status StepStatus, duration time.Duration, err error) {
	span.SetAttributes(
		attribute.String("step.status", string(status)),
		attribute.Float64("step.duration_seconds", duration.Seconds()),
	)

	switch status {
	case StepStatusFailed:
		infrastructure.RecordError(ctx, err,
			trace.WithAttributes(attribute.String("step.id", stepID)))
	case StepStatusSkipped:
		span.SetStatus(codes.Ok, "step skipped")
	default:
		span.SetStatus(codes.Ok, "step completed")
	}

	if status != StepStatusSkipped {
		infrastructure.RecordStepMetrics(ctx, rt.metrics, stepID, duration, err)
	}
}

// RecordRunCompletion closes out the run span and records run metrics
func (rt *RunTracer) RecordRunCompletion(ctx context.Context, span trace.Span, state *RunState, err error) {
	duration := state.Duration()
	span.SetAttributes(
		attribute.String("run.status", string(state.Status)),
		attribute.Float64("run.duration_seconds", duration.Seconds()),
		attribute.Int("run.rows", state.RowCount()),
	)

	if err != nil {
		infrastructure.RecordError(ctx, err)
	} else {
		span.SetStatus(codes.Ok, "run completed")
	}

	infrastructure.RecordRunMetrics(ctx, rt.metrics, state.Table, duration, err)
}
