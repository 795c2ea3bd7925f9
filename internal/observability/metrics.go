// Package observability provides OpenTelemetry instrumentation for tracing and metrics.
package observability

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/prometheus"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
)

// InitMetrics initializes the OpenTelemetry metrics provider with a Prometheus exporter.
// It returns the HTTP handler for the /metrics endpoint and a shutdown function.
// The shutdown function should be called on application exit for graceful cleanup.
func InitMetrics() (http.Handler, func(context.Context) error, error) {
	exporter, err := prometheus.New()
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create prometheus exporter: %w", err)
	}

	provider := sdkmetric.NewMeterProvider(
		sdkmetric.WithReader(exporter),
	)

	otel.SetMeterProvider(provider)

	return promhttp.Handler(), provider.Shutdown, nil
}

// JobMetrics records worker pool outcomes. It satisfies the pool's
// Metrics interface.
type JobMetrics struct {
	started   metric.Int64Counter
	completed metric.Int64Counter
	failed    metric.Int64Counter
	retried   metric.Int64Counter
	duration  metric.Float64Histogram
}

// NewJobMetrics registers the job instruments on the global meter
// provider. Call after InitMetrics.
func NewJobMetrics() (*JobMetrics, error) {
	meter := otel.Meter("opsplane")

	started, err := meter.Int64Counter("jobs_started_total",
		metric.WithDescription("Job attempts started"))
	if err != nil {
		return nil, err
	}
	completed, err := meter.Int64Counter("jobs_completed_total",
		metric.WithDescription("Jobs finished successfully"))
	if err != nil {
		return nil, err
	}
	failed, err := meter.Int64Counter("jobs_failed_total",
		metric.WithDescription("Jobs terminally failed or cancelled"))
	if err != nil {
		return nil, err
	}
	retried, err := meter.Int64Counter("jobs_retried_total",
		metric.WithDescription("Job attempts re-queued for retry"))
	if err != nil {
		return nil, err
	}
	duration, err := meter.Float64Histogram("job_duration_seconds",
		metric.WithDescription("Wall time of successful job attempts"),
		metric.WithUnit("s"))
	if err != nil {
		return nil, err
	}

	return &JobMetrics{
		started:   started,
		completed: completed,
		failed:    failed,
		retried:   retried,
		duration:  duration,
	}, nil
}

func typeAttr(jobType string) metric.MeasurementOption {
	return metric.WithAttributes(attribute.String("job_type", jobType))
}

func (m *JobMetrics) RecordJobStarted(ctx context.Context, jobType string) {
	m.started.Add(ctx, 1, typeAttr(jobType))
}

func (m *JobMetrics) RecordJobCompleted(ctx context.Context, jobType string, duration time.Duration) {
	m.completed.Add(ctx, 1, typeAttr(jobType))
	m.duration.Record(ctx, duration.Seconds(), typeAttr(jobType))
}

func (m *JobMetrics) RecordJobFailed(ctx context.Context, jobType string) {
	m.failed.Add(ctx, 1, typeAttr(jobType))
}

func (m *JobMetrics) RecordJobRetried(ctx context.Context, jobType string) {
	m.retried.Add(ctx, 1, typeAttr(jobType))
}
