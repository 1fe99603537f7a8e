package operations_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/codes"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	apperrors "adminexport/internal/errors"
	"adminexport/internal/infrastructure"
	"adminexport/internal/operations"
	"adminexport/internal/operations/testutil"
	sharedtestutil "adminexport/internal/shared/testutil"
)

type telemetry struct {
	spans  *tracetest.SpanRecorder
	reader *sdkmetric.ManualReader
	tracer *operations.RunTracer
}

func newTelemetry(t *testing.T) *telemetry {
	t.Helper()
	spans := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(spans))
	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))

	tracer, err := operations.NewRunTracer(&infrastructure.OTelProviders{
		Tracer: tp.Tracer("test"),
		Meter:  mp.Meter("test"),
	})
	require.NoError(t, err)
	return &telemetry{spans: spans, reader: reader, tracer: tracer}
}

// counter sums every data point of an int64 counter
func (tm *telemetry) counter(t *testing.T, name string) int64 {
	t.Helper()
	var rm metricdata.ResourceMetrics
	require.NoError(t, tm.reader.Collect(context.Background(), &rm))

	var total int64
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			if m.Name != name {
				continue
			}
			sum, ok := m.Data.(metricdata.Sum[int64])
			require.True(t, ok, "%s is not an int64 sum", name)
			for _, dp := range sum.DataPoints {
				total += dp.Value
			}
		}
	}
	return total
}

func (tm *telemetry) span(name string) sdktrace.ReadOnlySpan {
	for _, s := range tm.spans.Ended() {
		if s.Name() == name {
			return s
		}
	}
	return nil
}

func TestRunner_RunsStepsInOrder(t *testing.T) {
	var order []string
	record := func(id string) *testutil.MockStep {
		return testutil.NewMockStep(id, func(ctx context.Context, state *operations.RunState) error {
			order = append(order, id)
			return nil
		})
	}
	steps := []operations.Step{record("a"), record("b"), record("c")}

	tm := newTelemetry(t)
	logger, handler := sharedtestutil.NewTestLogger(t)
	state := operations.NewRunState("run-1", "p.d.t")

	err := operations.NewRunner(tm.tracer, logger).Run(context.Background(), state, steps)
	require.NoError(t, err)

	assert.Equal(t, []string{"a", "b", "c"}, order)
	assert.Equal(t, operations.RunStatusCompleted, state.Status)
	assert.Len(t, state.StepsWithStatus(operations.StepStatusCompleted), 3)

	assert.NotNil(t, tm.span("run.execute"))
	assert.NotNil(t, tm.span("run.step.b"))
	assert.Equal(t, int64(3), tm.counter(t, "adminexport_steps_total"))
	assert.Equal(t, int64(1), tm.counter(t, "adminexport_runs_total"))

	sharedtestutil.AssertLogContains(t, handler, "Run completed")
	sharedtestutil.AssertNoErrors(t, handler)
}

func TestRunner_StopsAtFirstFailure(t *testing.T) {
	cause := apperrors.NewParsingError("bad file", nil)
	a := testutil.NewMockStep("a", nil)
	b := testutil.NewMockStep("b", func(context.Context, *operations.RunState) error { return cause })
	c := testutil.NewMockStep("c", nil)

	tm := newTelemetry(t)
	logger, handler := sharedtestutil.NewTestLogger(t)
	state := operations.NewRunState("run-1", "p.d.t")

	err := operations.NewRunner(tm.tracer, logger).Run(context.Background(), state, []operations.Step{a, b, c})
	require.Error(t, err)

	assert.Equal(t, "b", operations.StepOf(err))
	assert.True(t, apperrors.IsType(err, apperrors.ErrTypeParsing))
	assert.Zero(t, c.GetExecuteCalls())

	assert.Equal(t, operations.RunStatusFailed, state.Status)
	assert.Equal(t, operations.StepStatusCompleted, state.GetStep("a").GetStatus())
	assert.Equal(t, operations.StepStatusFailed, state.GetStep("b").GetStatus())
	assert.Equal(t, operations.StepStatusSkipped, state.GetStep("c").GetStatus())
	assert.Equal(t, "step b failed", state.GetStep("c").Message)

	span := tm.span("run.step.b")
	require.NotNil(t, span)
	assert.Equal(t, codes.Error, span.Status().Code)
	assert.Equal(t, int64(1), tm.counter(t, "adminexport_step_errors_total"))

	sharedtestutil.AssertLogContains(t, handler, "Step failed")
	sharedtestutil.AssertLogAttr(t, handler, "step", "b")
}

func TestRunner_SkippedStepContinues(t *testing.T) {
	a := testutil.NewMockStep("a", func(context.Context, *operations.RunState) error {
		return operations.Skip("dry run")
	})
	b := testutil.NewMockStep("b", nil)

	tm := newTelemetry(t)
	state := operations.NewRunState("run-1", "p.d.t")

	require.NoError(t, operations.NewRunner(tm.tracer, nil).Run(context.Background(), state, []operations.Step{a, b}))

	assert.Equal(t, operations.StepStatusSkipped, state.GetStep("a").GetStatus())
	assert.Equal(t, "dry run", state.GetStep("a").Message)
	assert.Equal(t, 1, b.GetExecuteCalls())
	// Skipped steps are not counted as executed
	assert.Equal(t, int64(1), tm.counter(t, "adminexport_steps_total"))
}

func TestRunner_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	a := testutil.NewMockStep("a", func(context.Context, *operations.RunState) error {
		cancel()
		return nil
	})
	b := testutil.NewMockStep("b", nil)
	state := operations.NewRunState("run-1", "p.d.t")

	err := operations.NewRunner(nil, nil).Run(ctx, state, []operations.Step{a, b})
	require.Error(t, err)

	var opErr *operations.OperationError
	require.True(t, errors.As(err, &opErr))
	assert.Equal(t, operations.ErrorTypeCancellation, opErr.Type)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, operations.RunStatusCancelled, state.Status)
	assert.Equal(t, operations.StepStatusSkipped, state.GetStep("b").GetStatus())
	assert.Zero(t, b.GetExecuteCalls())
}

func TestNewRunTracer_NilProviders(t *testing.T) {
	tracer, err := operations.NewRunTracer(nil)
	require.NoError(t, err)
	assert.Nil(t, tracer.Metrics())

	state := operations.NewRunState("run-1", "p.d.t")
	require.NoError(t, operations.NewRunner(tracer, nil).Run(context.Background(), state,
		[]operations.Step{testutil.NewMockStep("a", nil)}))
}
