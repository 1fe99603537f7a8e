package infrastructure

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "adminexport/internal/errors"
)

func TestInitializeOTel_Disabled(t *testing.T) {
	providers, err := InitializeOTel(DefaultOTelConfig(), nil)
	require.NoError(t, err)

	assert.Nil(t, providers.TracerProvider)
	assert.Nil(t, providers.MeterProvider)
	assert.NotNil(t, providers.Tracer)
	assert.NotNil(t, providers.Meter)

	metrics, err := CreateBusinessMetrics(providers.Meter)
	require.NoError(t, err)
	RecordRunMetrics(context.Background(), metrics, "p.d.t", time.Second, nil)

	assert.NoError(t, providers.Shutdown(context.Background()))
}

func TestInitializeOTel_WritesFiles(t *testing.T) {
	dir := t.TempDir()
	cfg := DefaultOTelConfig()
	cfg.TracesFile = filepath.Join(dir, "traces.json")
	cfg.MetricsFile = filepath.Join(dir, "metrics.prom")

	providers, err := InitializeOTel(cfg, nil)
	require.NoError(t, err)
	require.NotNil(t, providers.TracerProvider)
	require.NotNil(t, providers.Registry)

	metrics, err := CreateBusinessMetrics(providers.Meter)
	require.NoError(t, err)

	ctx, span := providers.Tracer.Start(context.Background(), "run")
	assert.NotEmpty(t, TraceIDFromContext(ctx))
	SetSpanAttributes(ctx, map[string]interface{}{"table": "p.d.t", "rows": 3})
	AddSpanEvent(ctx, "acquired", map[string]interface{}{"strategy": "filesystem"})
	RecordError(ctx, errors.New("boom"))
	span.End()

	RecordRunMetrics(ctx, metrics, "p.d.t", 2*time.Second, nil)
	RecordStepMetrics(ctx, metrics, "publish", time.Second, apperrors.NewPublishError("x", nil))
	RecordAcquisition(ctx, metrics, "filesystem", 128, nil)
	RecordTriggerAttempt(ctx, metrics, "click")
	RecordRows(ctx, metrics, "p.d.t", 10, 2)

	require.NoError(t, providers.Shutdown(context.Background()))

	traces, err := os.ReadFile(cfg.TracesFile)
	require.NoError(t, err)
	assert.Contains(t, string(traces), `"Name":"run"`)

	prom, err := os.ReadFile(cfg.MetricsFile)
	require.NoError(t, err)
	assert.Contains(t, string(prom), "adminexport_runs_total")
	assert.Contains(t, string(prom), `error_type="PUBLISH"`)
}

func TestRecordHelpers_NilMetrics(t *testing.T) {
	ctx := context.Background()
	assert.NotPanics(t, func() {
		RecordRunMetrics(ctx, nil, "t", time.Second, nil)
		RecordStepMetrics(ctx, nil, "s", time.Second, nil)
		RecordAcquisition(ctx, nil, "network", 0, nil)
		RecordTriggerAttempt(ctx, nil, "script")
		RecordRows(ctx, nil, "t", 1, 0)
	})
}

func TestErrorTypeName(t *testing.T) {
	assert.Equal(t, "NO_PROGRESS", errorTypeName(apperrors.NewNoProgressError("x")))
	assert.Equal(t, "*errors.errorString", errorTypeName(errors.New("plain")))
}
