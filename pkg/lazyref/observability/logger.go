// Package observability provides production-grade observability features
// for lazyref: structured logging, metrics, and distributed tracing.
//
// Features:
//   - Structured logging via slog (Go stdlib)
//   - Metrics via OpenTelemetry
//   - Tracing via OpenTelemetry
//
// All features are opt-in and have no-op implementations when disabled.
package observability

import (
	"log/slog"
	"time"
)

// EnrichLogger adds lazyref context to a logger.
// Returns a new logger with the ref_name field attached.
//
// Example:
//
//	enriched := EnrichLogger(logger, "backend")
//	enriched.Info("dialing") // includes ref_name
func EnrichLogger(logger *slog.Logger, refName string) *slog.Logger {
	if logger == nil {
		return nil
	}
	return logger.With(
		slog.String("ref_name", refName),
	)
}

// LogInitStart logs the start of cell initialization.
func LogInitStart(logger *slog.Logger, refName string) {
	if logger == nil {
		return
	}
	logger.Debug("initialization starting",
		slog.String("ref_name", refName),
	)
}

// LogInitComplete logs successful cell initialization.
func LogInitComplete(logger *slog.Logger, refName string, durationMs float64) {
	if logger == nil {
		return
	}
	logger.Info("initialization complete",
		slog.String("ref_name", refName),
		slog.Float64("duration_ms", durationMs),
	)
}

// LogInitError logs cell initialization failure.
// The cell is poisoned after this point.
func LogInitError(logger *slog.Logger, refName string, err error) {
	if logger == nil {
		return
	}
	logger.Error("initialization failed",
		slog.String("ref_name", refName),
		slog.String("error", err.Error()),
	)
}

// LogClone logs handle cloning.
func LogClone(logger *slog.Logger, refName string, refs int) {
	if logger == nil {
		return
	}
	logger.Debug("handle cloned",
		slog.String("ref_name", refName),
		slog.Int("refs", refs),
	)
}

// LogRelease logs a handle release.
func LogRelease(logger *slog.Logger, refName string, refs int) {
	if logger == nil {
		return
	}
	logger.Debug("handle released",
		slog.String("ref_name", refName),
		slog.Int("refs", refs),
	)
}

// LogDestroy logs cell destruction after the last release.
func LogDestroy(logger *slog.Logger, refName string) {
	if logger == nil {
		return
	}
	logger.Debug("cell destroyed",
		slog.String("ref_name", refName),
	)
}

// LogMemoHit logs a memo store read that satisfied initialization.
func LogMemoHit(logger *slog.Logger, key string) {
	if logger == nil {
		return
	}
	logger.Debug("memo hit",
		slog.String("key", key),
	)
}

// LogMemoMiss logs a memo store read that found no usable entry.
func LogMemoMiss(logger *slog.Logger, key string) {
	if logger == nil {
		return
	}
	logger.Debug("memo miss",
		slog.String("key", key),
	)
}

// LogMemoStoreError logs a memo store failure (non-fatal).
func LogMemoStoreError(logger *slog.Logger, key string, op string, err error) {
	if logger == nil {
		return
	}
	logger.Warn("memo store failed",
		slog.String("key", key),
		slog.String("operation", op),
		slog.String("error", err.Error()),
	)
}

// TimedOperation measures the duration of an operation.
// Returns a function that, when called, returns the elapsed time in milliseconds.
//
// Example:
//
//	done := TimedOperation()
//	// ... do work ...
//	durationMs := done()
func TimedOperation() func() float64 {
	start := time.Now()
	return func() float64 {
		return float64(time.Since(start).Milliseconds())
	}
}
