package lazyref

import (
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/randalmurphal/lazyref/pkg/lazyref/observability"
)

// settings holds per-cell configuration shared by Ref and SharedRef.
// It is populated through the builder methods (WithName, WithLogger, ...)
// before the handle is cloned or shared, and read-only afterward.
type settings[T any] struct {
	name           string
	logger         *slog.Logger
	metrics        observability.MetricsRecorder
	spans          observability.SpanManager
	tracingEnabled bool
	finalizer      Finalizer[T]
}

// defaultSettings returns the default cell configuration.
// Observability is off: no logger, no-op metrics and spans.
func defaultSettings[T any]() settings[T] {
	return settings[T]{
		name:    fmt.Sprintf("ref-%s", uuid.New().String()[:8]),
		metrics: observability.NoopMetrics{},
		spans:   observability.NoopSpanManager{},
	}
}

// setMetrics switches between the OTel recorder and the no-op recorder.
func (s *settings[T]) setMetrics(enabled bool) {
	if enabled {
		s.metrics = observability.NewMetricsRecorder()
	} else {
		s.metrics = observability.NoopMetrics{}
	}
}

// setTracing switches between the OTel span manager and the no-op manager.
func (s *settings[T]) setTracing(enabled bool) {
	s.tracingEnabled = enabled
	if enabled {
		s.spans = observability.NewSpanManager()
	} else {
		s.spans = observability.NoopSpanManager{}
	}
}
