package infrastructure

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	promclient "github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	otelprom "go.opentelemetry.io/otel/exporters/prometheus"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/metric"
	metricnoop "go.opentelemetry.io/otel/metric/noop"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.28.0"
	"go.opentelemetry.io/otel/trace"
	tracenoop "go.opentelemetry.io/otel/trace/noop"

	"adminexport/internal/config"
	apperrors "adminexport/internal/errors"
)

const (
	MeterName = "adminexport"
)

// OTelConfig holds OpenTelemetry configuration.
// An empty TracesFile or MetricsFile disables that signal.
type OTelConfig struct {
	ServiceName    string
	ServiceVersion string
	Environment    string
	TracesFile     string
	MetricsFile    string
	SampleRatio    float64
}

// OTelProviders holds the OpenTelemetry providers
type OTelProviders struct {
	TracerProvider *sdktrace.TracerProvider
	MeterProvider  *sdkmetric.MeterProvider
	Tracer         trace.Tracer
	Meter          metric.Meter
	Registry       *promclient.Registry
	Logger         *slog.Logger

	traceFile   *os.File
	metricsFile string
}

// DefaultOTelConfig returns a configuration with both signals disabled
func DefaultOTelConfig() *OTelConfig {
	env := os.Getenv("ENVIRONMENT")
	if env == "" {
		env = "production"
		if os.Getenv("GITHUB_ACTIONS") == "true" {
			env = "ci"
		}
	}

	return &OTelConfig{
		ServiceName:    config.AppName,
		ServiceVersion: config.AppVersion,
		Environment:    env,
		SampleRatio:    1.0,
	}
}

// OTelConfigFrom maps the telemetry section and resolved paths onto an OTelConfig
func OTelConfigFrom(tc config.TelemetryConfig, paths *config.Paths) *OTelConfig {
	cfg := DefaultOTelConfig()
	if tc.ServiceName != "" {
		cfg.ServiceName = tc.ServiceName
	}
	if paths != nil {
		cfg.TracesFile = paths.TracesFile
		cfg.MetricsFile = paths.MetricsFile
	}
	return cfg
}

// InitializeOTel sets up tracing and metrics. Disabled signals get no-op
// implementations so callers never check for nil.
func InitializeOTel(cfg *OTelConfig, logger *slog.Logger) (*OTelProviders, error) {
	if cfg == nil {
		cfg = DefaultOTelConfig()
	}
	if logger == nil {
		logger = GetLogger()
	}

	ctx := context.Background()

	res, err := createResource(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create resource: %w", err)
	}

	providers := &OTelProviders{
		Tracer: tracenoop.NewTracerProvider().Tracer(MeterName),
		Meter:  metricnoop.NewMeterProvider().Meter(MeterName),
		Logger: logger,
	}

	if cfg.TracesFile != "" {
		if err := initializeTracing(ctx, cfg, res, providers); err != nil {
			return nil, fmt.Errorf("failed to initialize tracing: %w", err)
		}
	}

	if cfg.MetricsFile != "" {
		if err := initializeMetrics(ctx, cfg, res, providers); err != nil {
			providers.Shutdown(ctx)
			return nil, fmt.Errorf("failed to initialize metrics: %w", err)
		}
	}

	logger.DebugContext(ctx, "OpenTelemetry initialization complete",
		slog.String("service", cfg.ServiceName),
		slog.Bool("tracing_enabled", cfg.TracesFile != ""),
		slog.Bool("metrics_enabled", cfg.MetricsFile != ""))

	return providers, nil
}

// createResource creates the OpenTelemetry resource
func createResource(cfg *OTelConfig) (*resource.Resource, error) {
	return resource.NewWithAttributes(
		semconv.SchemaURL,
		semconv.ServiceName(cfg.ServiceName),
		semconv.ServiceVersion(cfg.ServiceVersion),
		semconv.DeploymentEnvironmentName(cfg.Environment),
		attribute.String("service.instance.id", generateInstanceID()),
	), nil
}

// initializeTracing exports spans as JSON lines into the traces file
func initializeTracing(ctx context.Context, cfg *OTelConfig, res *resource.Resource, providers *OTelProviders) error {
	file, err := os.OpenFile(cfg.TracesFile, os.O_CREATE|os.O_APPEND|os.O_WRONLY, config.FilePerm)
	if err != nil {
		return fmt.Errorf("failed to open traces file: %w", err)
	}

	exporter, err := stdouttrace.New(stdouttrace.WithWriter(file))
	if err != nil {
		file.Close()
		return fmt.Errorf("failed to create trace exporter: %w", err)
	}

	// One short-lived process: spans go out synchronously
	tp := sdktrace.NewTracerProvider(
		sdktrace.WithSyncer(exporter),
		sdktrace.WithResource(res),
		sdktrace.WithSampler(sdktrace.TraceIDRatioBased(cfg.SampleRatio)),
	)

	providers.traceFile = file
	providers.TracerProvider = tp
	providers.Tracer = tp.Tracer(MeterName, trace.WithInstrumentationVersion(cfg.ServiceVersion))

	otel.SetTracerProvider(tp)

	providers.Logger.DebugContext(ctx, "Tracing initialized",
		slog.String("file", cfg.TracesFile),
		slog.Float64("sample_ratio", cfg.SampleRatio))

	return nil
}

// initializeMetrics registers the Prometheus exporter on a private registry.
// The registry is written to the metrics file at shutdown in textfile format.
func initializeMetrics(ctx context.Context, cfg *OTelConfig, res *resource.Resource, providers *OTelProviders) error {
	registry := promclient.NewRegistry()

	exporter, err := otelprom.New(otelprom.WithRegisterer(registry))
	if err != nil {
		return fmt.Errorf("failed to create prometheus exporter: %w", err)
	}

	mp := sdkmetric.NewMeterProvider(
		sdkmetric.WithResource(res),
		sdkmetric.WithReader(exporter),
	)

	providers.Registry = registry
	providers.metricsFile = cfg.MetricsFile
	providers.MeterProvider = mp
	providers.Meter = mp.Meter(MeterName, metric.WithInstrumentationVersion(cfg.ServiceVersion))

	otel.SetMeterProvider(mp)

	providers.Logger.DebugContext(ctx, "Metrics initialized",
		slog.String("file", cfg.MetricsFile))

	return nil
}

// BusinessMetrics holds the run metrics
type BusinessMetrics struct {
	RunsTotal          metric.Int64Counter
	RunDuration        metric.Float64Histogram
	StepsTotal         metric.Int64Counter
	StepDuration       metric.Float64Histogram
	StepErrors         metric.Int64Counter
	TriggerAttempts    metric.Int64Counter
	AcquisitionResults metric.Int64Counter
	DownloadedBytes    metric.Int64Counter
	RowsLoaded         metric.Int64Counter
	RowsDropped        metric.Int64Counter
}

// CreateBusinessMetrics creates application-specific metrics
func CreateBusinessMetrics(meter metric.Meter) (*BusinessMetrics, error) {
	runsTotal, err := meter.Int64Counter(
		"adminexport_runs_total",
		metric.WithDescription("Total number of export runs"),
	)
	if err != nil {
		return nil, err
	}

	runDuration, err := meter.Float64Histogram(
		"adminexport_run_duration_seconds",
		metric.WithDescription("Export run duration in seconds"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, err
	}

	stepsTotal, err := meter.Int64Counter(
		"adminexport_steps_total",
		metric.WithDescription("Total number of run steps executed"),
	)
	if err != nil {
		return nil, err
	}

	stepDuration, err := meter.Float64Histogram(
		"adminexport_step_duration_seconds",
		metric.WithDescription("Run step duration in seconds"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, err
	}

	stepErrors, err := meter.Int64Counter(
		"adminexport_step_errors_total",
		metric.WithDescription("Total number of failed run steps"),
	)
	if err != nil {
		return nil, err
	}

	triggerAttempts, err := meter.Int64Counter(
		"adminexport_trigger_attempts_total",
		metric.WithDescription("Total number of export trigger attempts"),
	)
	if err != nil {
		return nil, err
	}

	acquisitionResults, err := meter.Int64Counter(
		"adminexport_acquisition_results_total",
		metric.WithDescription("Acquisition outcomes per strategy"),
	)
	if err != nil {
		return nil, err
	}

	downloadedBytes, err := meter.Int64Counter(
		"adminexport_downloaded_bytes",
		metric.WithDescription("Total bytes of acquired export files"),
		metric.WithUnit("By"),
	)
	if err != nil {
		return nil, err
	}

	rowsLoaded, err := meter.Int64Counter(
		"adminexport_rows_loaded_total",
		metric.WithDescription("Rows written to the warehouse"),
	)
	if err != nil {
		return nil, err
	}

	rowsDropped, err := meter.Int64Counter(
		"adminexport_rows_dropped_total",
		metric.WithDescription("Rows removed as empty or duplicate"),
	)
	if err != nil {
		return nil, err
	}

	return &BusinessMetrics{
		RunsTotal:          runsTotal,
		RunDuration:        runDuration,
		StepsTotal:         stepsTotal,
		StepDuration:       stepDuration,
		StepErrors:         stepErrors,
		TriggerAttempts:    triggerAttempts,
		AcquisitionResults: acquisitionResults,
		DownloadedBytes:    downloadedBytes,
		RowsLoaded:         rowsLoaded,
		RowsDropped:        rowsDropped,
	}, nil
}

// Shutdown flushes spans, writes the metrics textfile and releases files
func (p *OTelProviders) Shutdown(ctx context.Context) error {
	var errs []error

	if p.TracerProvider != nil {
		if err := p.TracerProvider.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("tracer provider shutdown: %w", err))
		}
	}
	if p.traceFile != nil {
		if err := p.traceFile.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close traces file: %w", err))
		}
		p.traceFile = nil
	}

	if p.Registry != nil && p.metricsFile != "" {
		if err := promclient.WriteToTextfile(p.metricsFile, p.Registry); err != nil {
			errs = append(errs, fmt.Errorf("write metrics textfile: %w", err))
		}
	}

	if p.MeterProvider != nil {
		if err := p.MeterProvider.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("meter provider shutdown: %w", err))
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("opentelemetry shutdown errors: %v", errs)
	}

	p.Logger.DebugContext(ctx, "OpenTelemetry shutdown complete")
	return nil
}

// generateInstanceID generates a unique instance identifier
func generateInstanceID() string {
	hostname, _ := os.Hostname()
	return fmt.Sprintf("%s-%d", hostname, time.Now().Unix())
}

// TraceIDFromContext extracts trace ID from context for logging correlation
func TraceIDFromContext(ctx context.Context) string {
	spanCtx := trace.SpanContextFromContext(ctx)
	if spanCtx.IsValid() {
		return spanCtx.TraceID().String()
	}
	return ""
}

// AddSpanEvent adds an event to the current span with structured attributes
func AddSpanEvent(ctx context.Context, name string, attributes map[string]interface{}) {
	span := trace.SpanFromContext(ctx)
	if !span.IsRecording() {
		return
	}

	span.AddEvent(name, trace.WithAttributes(toAttributes(attributes)...))
}

// RecordError records an error on the current span
func RecordError(ctx context.Context, err error, options ...trace.EventOption) {
	span := trace.SpanFromContext(ctx)
	if !span.IsRecording() {
		return
	}

	span.RecordError(err, options...)
	span.SetStatus(codes.Error, err.Error())
}

// SetSpanAttributes sets attributes on the current span
func SetSpanAttributes(ctx context.Context, attributes map[string]interface{}) {
	span := trace.SpanFromContext(ctx)
	if !span.IsRecording() {
		return
	}

	span.SetAttributes(toAttributes(attributes)...)
}

func toAttributes(attributes map[string]interface{}) []attribute.KeyValue {
	attrs := make([]attribute.KeyValue, 0, len(attributes))
	for k, v := range attributes {
		switch val := v.(type) {
		case string:
			attrs = append(attrs, attribute.String(k, val))
		case int:
			attrs = append(attrs, attribute.Int(k, val))
		case int64:
			attrs = append(attrs, attribute.Int64(k, val))
		case float64:
			attrs = append(attrs, attribute.Float64(k, val))
		case bool:
			attrs = append(attrs, attribute.Bool(k, val))
		default:
			attrs = append(attrs, attribute.String(k, fmt.Sprintf("%v", val)))
		}
	}
	return attrs
}

// RecordRunMetrics records the outcome of a whole run
func RecordRunMetrics(ctx context.Context, metrics *BusinessMetrics, table string, duration time.Duration, err error) {
	if metrics == nil {
		return
	}

	status := "success"
	if err != nil {
		status = "failure"
	}
	attrs := metric.WithAttributes(
		attribute.String("table", table),
		attribute.String("status", status),
	)

	metrics.RunsTotal.Add(ctx, 1, attrs)
	metrics.RunDuration.Record(ctx, duration.Seconds(), attrs)
}

// RecordStepMetrics records metrics for one run step
func RecordStepMetrics(ctx context.Context, metrics *BusinessMetrics, stepID string, duration time.Duration, err error) {
	if metrics == nil {
		return
	}

	status := "success"
	if err != nil {
		status = "failure"
	}
	attrs := []attribute.KeyValue{
		attribute.String("step.id", stepID),
		attribute.String("status", status),
	}

	metrics.StepsTotal.Add(ctx, 1, metric.WithAttributes(attrs...))
	metrics.StepDuration.Record(ctx, duration.Seconds(), metric.WithAttributes(attrs...))
	if err != nil {
		metrics.StepErrors.Add(ctx, 1, metric.WithAttributes(
			attribute.String("step.id", stepID),
			attribute.String("error.type", errorTypeName(err)),
		))
	}
}

// RecordAcquisition records which strategy produced or failed to produce a file
func RecordAcquisition(ctx context.Context, metrics *BusinessMetrics, strategy string, size int64, err error) {
	if metrics == nil {
		return
	}

	outcome := "acquired"
	if err != nil {
		outcome = errorTypeName(err)
	}
	metrics.AcquisitionResults.Add(ctx, 1, metric.WithAttributes(
		attribute.String("strategy", strategy),
		attribute.String("outcome", outcome),
	))
	if err == nil && size > 0 {
		metrics.DownloadedBytes.Add(ctx, size, metric.WithAttributes(attribute.String("strategy", strategy)))
	}
}

// RecordTriggerAttempt counts one export trigger attempt
func RecordTriggerAttempt(ctx context.Context, metrics *BusinessMetrics, path string) {
	if metrics == nil {
		return
	}
	metrics.TriggerAttempts.Add(ctx, 1, metric.WithAttributes(attribute.String("path", path)))
}

// RecordRows records cleaned and published row counts
func RecordRows(ctx context.Context, metrics *BusinessMetrics, table string, loaded, dropped int) {
	if metrics == nil {
		return
	}
	attrs := metric.WithAttributes(attribute.String("table", table))
	metrics.RowsLoaded.Add(ctx, int64(loaded), attrs)
	metrics.RowsDropped.Add(ctx, int64(dropped), attrs)
}

// errorTypeName labels an error by its application type when it has one
func errorTypeName(err error) string {
	if t := apperrors.TypeOf(err); t != "" {
		return string(t)
	}
	return fmt.Sprintf("%T", err)
}
