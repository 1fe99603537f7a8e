package infrastructure

import (
	"context"

	"github.com/google/uuid"
)

type contextKey string

// Context keys for the ids the trace handler copies onto every record
const (
	TraceIDContextKey contextKey = "trace_id"
	RunIDContextKey   contextKey = "run_id"
)

// WithTraceID stores traceID on ctx
func WithTraceID(ctx context.Context, traceID string) context.Context {
	return context.WithValue(ctx, TraceIDContextKey, traceID)
}

// GetTraceID returns the trace id on ctx, or ""
func GetTraceID(ctx context.Context) string {
	traceID, _ := ctx.Value(TraceIDContextKey).(string)
	return traceID
}

// EnsureTraceID returns ctx unchanged when it already carries a trace id and
// otherwise attaches a fresh uuid
func EnsureTraceID(ctx context.Context) context.Context {
	if GetTraceID(ctx) != "" {
		return ctx
	}
	return WithTraceID(ctx, uuid.New().String())
}

// WithRunID stores the journal run id on ctx
func WithRunID(ctx context.Context, runID string) context.Context {
	return context.WithValue(ctx, RunIDContextKey, runID)
}

// GetRunID returns the run id on ctx, or ""
func GetRunID(ctx context.Context) string {
	runID, _ := ctx.Value(RunIDContextKey).(string)
	return runID
}
