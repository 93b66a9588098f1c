package memo

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/randalmurphal/lazyref/pkg/lazyref"
	"github.com/randalmurphal/lazyref/pkg/lazyref/observability"
)

// options holds configuration for a memoized handle.
type options struct {
	name           string
	logger         *slog.Logger
	failFast       bool
	metricsEnabled bool
	tracingEnabled bool
}

// defaultOptions returns the default memoization configuration.
func defaultOptions(key string) options {
	return options{
		name: "memo-" + key,
	}
}

// Option configures memoization behavior.
type Option func(*options)

// WithName sets the handle name used in logs, metrics, and traces.
// Default: "memo-" followed by the key.
func WithName(name string) Option {
	return func(o *options) {
		if name != "" {
			o.name = name
		}
	}
}

// WithLogger sets the logger for store lookups and cell lifecycle events.
// A nil logger (the default) disables logging.
func WithLogger(logger *slog.Logger) Option {
	return func(o *options) {
		o.logger = logger
	}
}

// WithFailFast makes store failures fatal.
// Default: false, meaning an unreadable store falls back to computing and
// a failed write is logged and dropped. With fail-fast enabled, either
// failure is returned from the factory and poisons the cell.
func WithFailFast(fatal bool) Option {
	return func(o *options) {
		o.failFast = fatal
	}
}

// WithMetrics enables OpenTelemetry metrics for the handle and the store
// lookups. Default: disabled.
func WithMetrics(enabled bool) Option {
	return func(o *options) {
		o.metricsEnabled = enabled
	}
}

// WithTracing enables OpenTelemetry tracing for the handle.
// Default: disabled.
func WithTracing(enabled bool) Option {
	return func(o *options) {
		o.tracingEnabled = enabled
	}
}

// New returns a shared handle whose factory reads through the store.
//
// Forcing the handle first consults store under key: a usable entry
// satisfies initialization without invoking factory. Otherwise factory
// runs and its value is written back to the store for the next process.
// Unreadable, corrupt, or version-mismatched entries count as misses and
// are recomputed; only factory failures poison the cell.
//
// The value type must round-trip through encoding/json.
//
// Panics if store or factory is nil.
func New[T any](store Store, key string, factory lazyref.Factory[T], opts ...Option) *lazyref.SharedRef[T] {
	if store == nil {
		panic("memo: store cannot be nil")
	}
	if factory == nil {
		panic("memo: factory cannot be nil")
	}

	o := defaultOptions(key)
	for _, opt := range opts {
		opt(&o)
	}

	recorder := observability.MetricsRecorder(observability.NoopMetrics{})
	if o.metricsEnabled {
		recorder = observability.NewMetricsRecorder()
	}

	memoized := func() (T, error) {
		var zero T
		ctx := context.Background()

		data, err := store.Get(key)
		switch {
		case err == nil:
			if value, ok := decode[T](o.logger, key, data); ok {
				observability.LogMemoHit(o.logger, key)
				recorder.RecordMemoLookup(ctx, key, true)
				return value, nil
			}
		case !errors.Is(err, ErrNotFound):
			if o.failFast {
				return zero, fmt.Errorf("memo get %s: %w", key, err)
			}
			observability.LogMemoStoreError(o.logger, key, "get", err)
		}

		observability.LogMemoMiss(o.logger, key)
		recorder.RecordMemoLookup(ctx, key, false)

		value, err := factory()
		if err != nil {
			return zero, err
		}

		if err := persist(store, key, value, o); err != nil {
			return zero, err
		}
		return value, nil
	}

	return lazyref.NewShared(memoized).
		WithName(o.name).
		WithLogger(o.logger).
		WithMetrics(o.metricsEnabled).
		WithTracing(o.tracingEnabled)
}

// decode unpacks a stored entry, treating unreadable or incompatible
// entries as misses.
func decode[T any](logger *slog.Logger, key string, data []byte) (T, bool) {
	var zero T

	entry, err := Unmarshal(data)
	if err != nil {
		observability.LogMemoStoreError(logger, key, "decode", err)
		return zero, false
	}
	if entry.Version != Version {
		observability.LogMemoStoreError(logger, key, "decode",
			fmt.Errorf("entry version %d not supported", entry.Version))
		return zero, false
	}

	var value T
	if err := json.Unmarshal(entry.Payload, &value); err != nil {
		observability.LogMemoStoreError(logger, key, "decode", err)
		return zero, false
	}
	return value, true
}

// persist writes a computed value back to the store.
// Failures are logged and dropped unless fail-fast is enabled.
func persist[T any](store Store, key string, value T, o options) error {
	payload, err := json.Marshal(value)
	if err != nil {
		if o.failFast {
			return fmt.Errorf("memo encode %s: %w", key, err)
		}
		observability.LogMemoStoreError(o.logger, key, "encode", err)
		return nil
	}

	data, err := NewEntry(key, payload).Marshal()
	if err != nil {
		if o.failFast {
			return fmt.Errorf("memo encode %s: %w", key, err)
		}
		observability.LogMemoStoreError(o.logger, key, "encode", err)
		return nil
	}

	if err := store.Put(key, data); err != nil {
		if o.failFast {
			return fmt.Errorf("memo put %s: %w", key, err)
		}
		observability.LogMemoStoreError(o.logger, key, "put", err)
	}
	return nil
}
