/*
Package lazyref provides lazily initialized, reference-counted handles.

# Overview

lazyref is a Go library for sharing expensive values that should be
computed at most once, on first use. A handle wraps a cell holding either
a pending factory or the value it produced. Cloning a handle shares the
cell; forcing any handle runs the factory exactly once and publishes the
result to every clone. Releasing the last handle destroys the cell and
runs an optional finalizer, giving deterministic teardown for values that
own resources (connections, files, subprocesses).

Two handle types cover the two concurrency regimes:
  - Ref is for use within a single goroutine. No atomics, no locks.
  - SharedRef is safe to clone into and force from many goroutines.
    Initialization is coordinated so the factory runs exactly once even
    under concurrent first access.

# Basic Usage

Wrap the expensive computation in a factory and force on demand:

	cfg := lazyref.New(func() (*Config, error) {
	    return parseConfigFile("./app.yaml")
	})
	defer cfg.Release()

	value, err := cfg.Value() // factory runs here
	if err != nil {
	    log.Fatal(err)
	}
	value, _ = cfg.Value() // cached, factory not re-invoked

# Shared Handles

SharedRef carries one value across goroutines. Each goroutine should own
its own clone and release it when done:

	conn := lazyref.NewShared(dialBackend).
	    WithName("backend").
	    WithFinalizer(func(c *Conn) { c.Close() })

	for i := 0; i < 3; i++ {
	    h := conn.Clone()
	    go func() {
	        defer h.Release()
	        c, err := h.Value() // first caller dials, the rest wait
	        ...
	    }()
	}
	conn.Release()

The finalizer runs exactly once, when the last handle is released and the
cell holds a value.

# Poisoning

A factory that returns an error or panics poisons the cell. The caller
that triggered initialization receives the failure itself (an *InitError,
or a *PanicError carrying the recovered value and stack). Every later
caller receives a *PoisonedError matching ErrPoisoned. The factory is
never re-invoked; a poisoned cell stays poisoned:

	_, err := ref.Value()
	var initErr *lazyref.InitError
	if errors.As(err, &initErr) {
	    log.Printf("initialization failed: %v", initErr.Err)
	}

	_, err = ref.Value()
	if errors.Is(err, lazyref.ErrPoisoned) {
	    // observed the earlier failure
	}

# Observability

Logging, metrics, and tracing are opt-in per handle:

	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))

	ref := lazyref.NewShared(loadModel).
	    WithLogger(logger).
	    WithMetrics(true).
	    WithTracing(true)

Logs include structured fields: ref_name, duration_ms, refs.
OpenTelemetry metrics: lazyref.init.count, lazyref.init.latency_ms, etc.
OpenTelemetry tracing: one lazyref.init.{name} span per initialization.

# Thread Safety

  - Ref is NOT safe for concurrent use. Confine it to one goroutine or
    guard it externally.
  - SharedRef methods are safe to call from many goroutines, with one
    exception: Release must not race with other calls on the same handle.
    Give each goroutine its own clone and let it release that.
  - Builder methods (WithName, WithFinalizer, ...) configure the cell and
    must be called before the handle is cloned or shared.
  - A SharedRef factory that forces its own cell deadlocks on the
    initialization guard. The single-goroutine Ref detects this case and
    poisons the cell with ErrReentrantInit instead.

# Subpackages

  - group: keyed collections of shared handles with concurrent warmup
  - memo: persistent memoization backed by pluggable stores
  - config: configuration loading for stores and observability
  - observability: logging, metrics, and tracing helpers
*/
package lazyref
