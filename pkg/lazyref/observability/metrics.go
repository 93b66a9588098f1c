package observability

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// MetricsRecorder records lazyref metrics.
// Use NewMetricsRecorder() for OTel metrics or NoopMetrics{} when disabled.
type MetricsRecorder interface {
	// RecordInit records a cell initialization with its duration and error status.
	RecordInit(ctx context.Context, refName string, duration time.Duration, err error)

	// RecordClone records a handle clone.
	RecordClone(ctx context.Context, refName string)

	// RecordRelease records a handle release.
	RecordRelease(ctx context.Context, refName string)

	// RecordDestroy records a cell destruction after the last release.
	RecordDestroy(ctx context.Context, refName string)

	// RecordMemoLookup records a memo store lookup and whether it hit.
	RecordMemoLookup(ctx context.Context, key string, hit bool)
}

// otelMetrics implements MetricsRecorder using OpenTelemetry.
type otelMetrics struct {
	initCount      metric.Int64Counter
	initLatency    metric.Float64Histogram
	initErrors     metric.Int64Counter
	handleClones   metric.Int64Counter
	handleReleases metric.Int64Counter
	cellDestroys   metric.Int64Counter
	memoLookups    metric.Int64Counter
}

var (
	defaultMetrics     *otelMetrics
	defaultMetricsOnce sync.Once
	defaultMetricsErr  error
)

// getDefaultMetrics returns the default OTel metrics instance.
// Lazily initializes the metrics on first call.
func getDefaultMetrics() (*otelMetrics, error) {
	defaultMetricsOnce.Do(func() {
		defaultMetrics, defaultMetricsErr = newOtelMetrics()
	})
	return defaultMetrics, defaultMetricsErr
}

// newOtelMetrics creates a new OTel metrics instance.
func newOtelMetrics() (*otelMetrics, error) {
	meter := otel.Meter("lazyref")

	initCount, err := meter.Int64Counter("lazyref.init.count",
		metric.WithDescription("Number of cell initializations"),
	)
	if err != nil {
		return nil, err
	}

	initLatency, err := meter.Float64Histogram("lazyref.init.latency_ms",
		metric.WithDescription("Cell initialization latency in milliseconds"),
		metric.WithUnit("ms"),
	)
	if err != nil {
		return nil, err
	}

	initErrors, err := meter.Int64Counter("lazyref.init.errors",
		metric.WithDescription("Number of cell initialization failures"),
	)
	if err != nil {
		return nil, err
	}

	handleClones, err := meter.Int64Counter("lazyref.handle.clones",
		metric.WithDescription("Number of handle clones"),
	)
	if err != nil {
		return nil, err
	}

	handleReleases, err := meter.Int64Counter("lazyref.handle.releases",
		metric.WithDescription("Number of handle releases"),
	)
	if err != nil {
		return nil, err
	}

	cellDestroys, err := meter.Int64Counter("lazyref.cell.destroys",
		metric.WithDescription("Number of cells destroyed after the last release"),
	)
	if err != nil {
		return nil, err
	}

	memoLookups, err := meter.Int64Counter("lazyref.memo.lookups",
		metric.WithDescription("Number of memo store lookups"),
	)
	if err != nil {
		return nil, err
	}

	return &otelMetrics{
		initCount:      initCount,
		initLatency:    initLatency,
		initErrors:     initErrors,
		handleClones:   handleClones,
		handleReleases: handleReleases,
		cellDestroys:   cellDestroys,
		memoLookups:    memoLookups,
	}, nil
}

// NewMetricsRecorder returns a MetricsRecorder that uses OpenTelemetry.
// If metrics initialization fails, returns a no-op recorder.
//
// The recorder uses the global OTel meter provider. Configure the provider
// before calling this function:
//
//	import "go.opentelemetry.io/otel"
//	otel.SetMeterProvider(yourProvider)
func NewMetricsRecorder() MetricsRecorder {
	m, err := getDefaultMetrics()
	if err != nil {
		slog.Warn("metrics initialization failed, using no-op recorder",
			slog.String("error", err.Error()))
		return NoopMetrics{}
	}
	return m
}

// RecordInit records a cell initialization.
func (m *otelMetrics) RecordInit(ctx context.Context, refName string, duration time.Duration, err error) {
	attrs := []attribute.KeyValue{
		attribute.String("ref_name", refName),
	}

	m.initCount.Add(ctx, 1, metric.WithAttributes(attrs...))
	m.initLatency.Record(ctx, float64(duration.Milliseconds()), metric.WithAttributes(attrs...))

	if err != nil {
		m.initErrors.Add(ctx, 1, metric.WithAttributes(attrs...))
	}
}

// RecordClone records a handle clone.
func (m *otelMetrics) RecordClone(ctx context.Context, refName string) {
	m.handleClones.Add(ctx, 1, metric.WithAttributes(
		attribute.String("ref_name", refName),
	))
}

// RecordRelease records a handle release.
func (m *otelMetrics) RecordRelease(ctx context.Context, refName string) {
	m.handleReleases.Add(ctx, 1, metric.WithAttributes(
		attribute.String("ref_name", refName),
	))
}

// RecordDestroy records a cell destruction.
func (m *otelMetrics) RecordDestroy(ctx context.Context, refName string) {
	m.cellDestroys.Add(ctx, 1, metric.WithAttributes(
		attribute.String("ref_name", refName),
	))
}

// RecordMemoLookup records a memo store lookup.
func (m *otelMetrics) RecordMemoLookup(ctx context.Context, key string, hit bool) {
	m.memoLookups.Add(ctx, 1, metric.WithAttributes(
		attribute.String("key", key),
		attribute.Bool("hit", hit),
	))
}
