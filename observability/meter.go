package observability

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetrichttp"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"

	"github.com/opencouncil/scribe/logger"
)

// MeterConfig configures the OpenTelemetry meter provider.
type MeterConfig struct {
	// ServiceName is the name of the service.
	ServiceName string
	// ServiceVersion is the version of the service.
	ServiceVersion string
	// Environment is the deployment environment (dev, staging, prod).
	Environment string
	// Endpoint is the OTLP HTTP endpoint host:port (e.g., "localhost:4318").
	Endpoint string
	// Insecure allows insecure connections (for development).
	Insecure bool
	// Interval is the metric export interval.
	Interval time.Duration
}

// DefaultMeterConfig returns sensible defaults for development.
func DefaultMeterConfig(serviceName string) MeterConfig {
	return MeterConfig{
		ServiceName:    serviceName,
		ServiceVersion: "1.0.0",
		Environment:    "development",
		Endpoint:       "localhost:4318",
		Insecure:       true,
		Interval:       15 * time.Second,
	}
}

// InitMeter initializes the OpenTelemetry meter provider.
// Returns a MeterProvider that should be shut down on application exit.
func InitMeter(ctx context.Context, config MeterConfig, log *logger.Logger) (*sdkmetric.MeterProvider, error) {
	opts := []otlpmetrichttp.Option{
		otlpmetrichttp.WithEndpoint(config.Endpoint),
	}
	if config.Insecure {
		opts = append(opts, otlpmetrichttp.WithInsecure())
	}

	exporter, err := otlpmetrichttp.New(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("creating metric exporter: %w", err)
	}

	res, err := newResource(config.ServiceName, config.ServiceVersion, config.Environment)
	if err != nil {
		return nil, fmt.Errorf("creating resource: %w", err)
	}

	readerOpts := []sdkmetric.PeriodicReaderOption{}
	if config.Interval > 0 {
		readerOpts = append(readerOpts, sdkmetric.WithInterval(config.Interval))
	}

	mp := sdkmetric.NewMeterProvider(
		sdkmetric.WithReader(sdkmetric.NewPeriodicReader(exporter, readerOpts...)),
		sdkmetric.WithResource(res),
	)

	otel.SetMeterProvider(mp)

	if log != nil {
		log.Info("meter initialized", logger.Fields(
			"service", config.ServiceName,
			"endpoint", config.Endpoint,
			"interval", config.Interval.String(),
		))
	}

	return mp, nil
}

// Meter returns a named meter from the global provider.
func Meter(name string) metric.Meter {
	return otel.Meter(name)
}

// Metrics holds the metric instruments recorded by the coordination layers.
type Metrics struct {
	jobsSubmitted     metric.Int64Counter
	jobsActive        metric.Int64UpDownCounter
	jobsQueued        metric.Int64UpDownCounter
	jobDuration       metric.Float64Histogram
	tasksTotal        metric.Int64Counter
	deliveriesFailed  metric.Int64Counter
	utterancesDropped metric.Int64Counter
	driftCost         metric.Float64Histogram
}

// NewMetrics creates the instruments on the given meter.
func NewMetrics(meter metric.Meter) (*Metrics, error) {
	jobsSubmitted, err := meter.Int64Counter("jobs.submitted",
		metric.WithDescription("Total jobs submitted to upstream providers"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating jobs.submitted counter: %w", err)
	}

	jobsActive, err := meter.Int64UpDownCounter("jobs.active",
		metric.WithDescription("Jobs currently running against an upstream provider"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating jobs.active counter: %w", err)
	}

	jobsQueued, err := meter.Int64UpDownCounter("jobs.queued",
		metric.WithDescription("Jobs waiting for a free slot"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating jobs.queued counter: %w", err)
	}

	jobDuration, err := meter.Float64Histogram("jobs.duration",
		metric.WithDescription("End-to-end duration of upstream jobs in seconds"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating jobs.duration histogram: %w", err)
	}

	tasksTotal, err := meter.Int64Counter("tasks.total",
		metric.WithDescription("Total tasks accepted, labelled by final status"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating tasks.total counter: %w", err)
	}

	deliveriesFailed, err := meter.Int64Counter("deliveries.failed",
		metric.WithDescription("Result or progress deliveries that could not reach the caller"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating deliveries.failed counter: %w", err)
	}

	utterancesDropped, err := meter.Int64Counter("reconcile.utterances_dropped",
		metric.WithDescription("Utterances discarded because no speaker attribution was acceptable"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating reconcile.utterances_dropped counter: %w", err)
	}

	driftCost, err := meter.Float64Histogram("reconcile.drift_cost",
		metric.WithDescription("Drift cost of accepted speaker attributions"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating reconcile.drift_cost histogram: %w", err)
	}

	return &Metrics{
		jobsSubmitted:     jobsSubmitted,
		jobsActive:        jobsActive,
		jobsQueued:        jobsQueued,
		jobDuration:       jobDuration,
		tasksTotal:        tasksTotal,
		deliveriesFailed:  deliveriesFailed,
		utterancesDropped: utterancesDropped,
		driftCost:         driftCost,
	}, nil
}

// NopMetrics returns metrics backed by the global (possibly no-op) meter.
func NopMetrics() *Metrics {
	m, _ := NewMetrics(otel.Meter("nop"))
	return m
}

// JobSubmitted records a job handed to a provider.
func (m *Metrics) JobSubmitted(ctx context.Context, provider string) {
	if m == nil {
		return
	}
	m.jobsSubmitted.Add(ctx, 1, metric.WithAttributes(attribute.String("provider", provider)))
}

// JobStarted marks a job as occupying a provider slot.
func (m *Metrics) JobStarted(ctx context.Context, provider string) {
	if m == nil {
		return
	}
	m.jobsActive.Add(ctx, 1, metric.WithAttributes(attribute.String("provider", provider)))
}

// JobFinished releases the active gauge and records the duration.
func (m *Metrics) JobFinished(ctx context.Context, provider string, d time.Duration, err error) {
	if m == nil {
		return
	}
	attrs := metric.WithAttributes(
		attribute.String("provider", provider),
		attribute.Bool("error", err != nil),
	)
	m.jobsActive.Add(ctx, -1, metric.WithAttributes(attribute.String("provider", provider)))
	m.jobDuration.Record(ctx, d.Seconds(), attrs)
}

// JobQueued adjusts the queued gauge by delta (+1 on enqueue, -1 on dequeue).
func (m *Metrics) JobQueued(ctx context.Context, provider string, delta int64) {
	if m == nil {
		return
	}
	m.jobsQueued.Add(ctx, delta, metric.WithAttributes(attribute.String("provider", provider)))
}

// TaskFinished records a completed task with its final status.
func (m *Metrics) TaskFinished(ctx context.Context, taskType, status string) {
	if m == nil {
		return
	}
	m.tasksTotal.Add(ctx, 1, metric.WithAttributes(
		attribute.String("type", taskType),
		attribute.String("status", status),
	))
}

// DeliveryFailed records an unreachable caller endpoint.
func (m *Metrics) DeliveryFailed(ctx context.Context, kind string) {
	if m == nil {
		return
	}
	m.deliveriesFailed.Add(ctx, 1, metric.WithAttributes(attribute.String("kind", kind)))
}

// UtteranceDropped records an utterance discarded during reconciliation.
func (m *Metrics) UtteranceDropped(ctx context.Context) {
	if m == nil {
		return
	}
	m.utterancesDropped.Add(ctx, 1)
}

// DriftCostObserved records the drift cost of an accepted attribution.
func (m *Metrics) DriftCostObserved(ctx context.Context, cost float64) {
	if m == nil {
		return
	}
	m.driftCost.Record(ctx, cost)
}
