package observability

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
)

// NoopMetrics is a MetricsRecorder that does nothing.
// Use when metrics are disabled to avoid overhead.
type NoopMetrics struct{}

// Compile-time interface check.
var _ MetricsRecorder = NoopMetrics{}

// RecordInit does nothing.
func (NoopMetrics) RecordInit(_ context.Context, _ string, _ time.Duration, _ error) {}

// RecordClone does nothing.
func (NoopMetrics) RecordClone(_ context.Context, _ string) {}

// RecordRelease does nothing.
func (NoopMetrics) RecordRelease(_ context.Context, _ string) {}

// RecordDestroy does nothing.
func (NoopMetrics) RecordDestroy(_ context.Context, _ string) {}

// RecordMemoLookup does nothing.
func (NoopMetrics) RecordMemoLookup(_ context.Context, _ string, _ bool) {}

// NoopSpanManager is a SpanManager that does nothing.
// Use when tracing is disabled to avoid overhead.
type NoopSpanManager struct{}

// Compile-time interface check.
var _ SpanManager = NoopSpanManager{}

// noopSpan is a span that does nothing.
// We use the OTel noop package for a proper no-op span implementation.
var noopSpan = noop.Span{}

// StartInitSpan returns the context unchanged and a no-op span.
func (NoopSpanManager) StartInitSpan(ctx context.Context, _ string) (context.Context, trace.Span) {
	return ctx, noopSpan
}

// EndSpanWithError does nothing.
func (NoopSpanManager) EndSpanWithError(_ trace.Span, _ error) {}

// AddSpanEvent does nothing.
func (NoopSpanManager) AddSpanEvent(_ context.Context, _ string, _ ...attribute.KeyValue) {}
