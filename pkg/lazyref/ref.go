package lazyref

import (
	"context"
	"log/slog"
	"runtime/debug"
	"time"

	"github.com/randalmurphal/lazyref/pkg/lazyref/observability"
	"go.opentelemetry.io/otel/trace"
)

// Ref is a lazily initialized, reference-counted handle for use within a
// single goroutine. It keeps no locks and no atomics; sharing a Ref or its
// clones across goroutines without external synchronization is a data race.
// Use SharedRef for concurrent access.
//
// Clones share one cell: forcing any of them runs the factory once and
// publishes the value to all. The cell is destroyed when the last handle
// is released.
type Ref[T any] struct {
	cell     *cell[T]
	released bool
}

// cell is the state shared by every Ref cloned from one constructor call.
type cell[T any] struct {
	settings[T]
	refs    int
	state   cellState
	forcing bool
	factory Factory[T]
	value   T
	err     error // failure that poisoned the cell
}

// New creates a Ref that will compute its value with factory on first use.
// The returned handle owns the cell's initial reference.
//
// Panics if factory is nil.
func New[T any](factory Factory[T]) *Ref[T] {
	if factory == nil {
		panic("lazyref: factory cannot be nil")
	}
	return &Ref[T]{cell: &cell[T]{
		settings: defaultSettings[T](),
		refs:     1,
		factory:  factory,
	}}
}

// FromValue creates a Ref that is already initialized with value.
// No factory is involved; the handle behaves as if it had been forced.
func FromValue[T any](value T) *Ref[T] {
	c := &cell[T]{
		settings: defaultSettings[T](),
		refs:     1,
		state:    stateReady,
		value:    value,
	}
	return &Ref[T]{cell: c}
}

// WithName sets the handle name used in logs, metrics, and traces.
// Default: "ref-" followed by a random suffix.
//
// Must be called before the handle is cloned.
func (r *Ref[T]) WithName(name string) *Ref[T] {
	if name != "" {
		r.cell.name = name
	}
	return r
}

// WithFinalizer sets the finalizer run when the last handle is released.
//
// Must be called before the handle is cloned.
func (r *Ref[T]) WithFinalizer(fn Finalizer[T]) *Ref[T] {
	r.cell.finalizer = fn
	return r
}

// WithLogger sets the logger for cell lifecycle events.
// A nil logger (the default) disables logging.
//
// Must be called before the handle is cloned.
func (r *Ref[T]) WithLogger(logger *slog.Logger) *Ref[T] {
	r.cell.logger = logger
	return r
}

// WithMetrics enables or disables OpenTelemetry metrics for this cell.
// Default: disabled.
//
// Must be called before the handle is cloned.
func (r *Ref[T]) WithMetrics(enabled bool) *Ref[T] {
	r.cell.setMetrics(enabled)
	return r
}

// WithTracing enables or disables OpenTelemetry tracing for this cell.
// Default: disabled.
//
// Must be called before the handle is cloned.
func (r *Ref[T]) WithTracing(enabled bool) *Ref[T] {
	r.cell.setTracing(enabled)
	return r
}

// Value returns the cell value, invoking the factory on first use.
//
// The first call runs the factory. A factory error or panic poisons the
// cell: this call returns the failure itself (*InitError or *PanicError)
// and every later call returns a *PoisonedError matching ErrPoisoned.
// On success, every call returns the same value.
//
// Returns ErrReleased if the handle has been released.
func (r *Ref[T]) Value() (T, error) {
	if r.released {
		var zero T
		return zero, ErrReleased
	}
	return r.cell.force()
}

// MustValue returns the cell value, panicking on error.
// Useful for values whose initialization cannot meaningfully fail.
func (r *Ref[T]) MustValue() T {
	v, err := r.Value()
	if err != nil {
		panic(err)
	}
	return v
}

// Peek returns the value without forcing initialization.
// The second return is true only if the cell is initialized. Peek never
// invokes the factory and has no side effects.
func (r *Ref[T]) Peek() (T, bool) {
	if r.released || r.cell.state != stateReady {
		var zero T
		return zero, false
	}
	return r.cell.value, true
}

// Initialized reports whether the cell holds a value.
// Returns false for pending, poisoned, and released handles.
func (r *Ref[T]) Initialized() bool {
	return !r.released && r.cell.state == stateReady
}

// Poisoned reports whether the cell was poisoned by a failed initialization.
func (r *Ref[T]) Poisoned() bool {
	return !r.released && r.cell.state == statePoisoned
}

// Name returns the handle name.
func (r *Ref[T]) Name() string {
	return r.cell.name
}

// Refs returns the number of live handles sharing the cell.
// Useful for testing and diagnostics.
func (r *Ref[T]) Refs() int {
	return r.cell.refs
}

// Clone returns a new handle sharing the same cell.
// Cloning never triggers initialization; it only increments the refcount.
//
// Panics if the handle has been released: a released handle cannot mint
// new references.
func (r *Ref[T]) Clone() *Ref[T] {
	if r.released {
		panic("lazyref: clone of released handle")
	}
	c := r.cell
	c.refs++
	observability.LogClone(c.logger, c.name, c.refs)
	c.metrics.RecordClone(context.Background(), c.name)
	return &Ref[T]{cell: c}
}

// Release drops this handle's reference.
// When the last handle is released the cell is destroyed: the value (or
// the still-pending factory) is dropped, and the finalizer runs if the
// cell held a value.
//
// Release is idempotent per handle; the second call returns ErrReleased
// without touching the refcount.
func (r *Ref[T]) Release() error {
	if r.released {
		return ErrReleased
	}
	r.released = true
	r.cell.release()
	return nil
}

// force returns the cell value, initializing on first use.
func (c *cell[T]) force() (T, error) {
	switch c.state {
	case stateReady:
		return c.value, nil
	case statePoisoned:
		var zero T
		return zero, &PoisonedError{Name: c.name, Cause: c.err}
	}
	if c.forcing {
		// The factory forced the cell it is initializing. Unwind to the
		// outer force, which poisons the cell.
		panic(reentrantForce{name: c.name})
	}
	return c.init()
}

// init invokes the factory exactly once and publishes the outcome.
func (c *cell[T]) init() (T, error) {
	observability.LogInitStart(c.logger, c.name)

	ctx := context.Background()
	var span trace.Span
	if c.tracingEnabled {
		ctx, span = c.spans.StartInitSpan(ctx, c.name)
	}

	start := time.Now()
	value, err := c.runFactory()
	duration := time.Since(start)

	c.metrics.RecordInit(ctx, c.name, duration, err)
	if c.tracingEnabled {
		c.spans.EndSpanWithError(span, err)
	}

	if err != nil {
		c.err = err
		c.state = statePoisoned
		observability.LogInitError(c.logger, c.name, err)
		var zero T
		return zero, err
	}

	c.value = value
	c.state = stateReady
	observability.LogInitComplete(c.logger, c.name, float64(duration.Milliseconds()))
	return value, nil
}

// runFactory calls the factory with panic recovery and reentrancy
// detection. The factory reference is dropped before the call so it can
// never run twice, even after a failure.
func (c *cell[T]) runFactory() (result T, err error) {
	c.forcing = true
	factory := c.factory
	c.factory = nil

	defer func() {
		c.forcing = false
		if r := recover(); r != nil {
			if _, ok := r.(reentrantForce); ok {
				err = &InitError{Name: c.name, Err: ErrReentrantInit}
				return
			}
			err = &PanicError{
				Name:  c.name,
				Value: r,
				Stack: string(debug.Stack()),
			}
		}
	}()

	value, ferr := factory()
	if ferr != nil {
		return result, &InitError{Name: c.name, Err: ferr}
	}
	return value, nil
}

// release decrements the refcount and destroys the cell at zero.
func (c *cell[T]) release() {
	c.refs--
	observability.LogRelease(c.logger, c.name, c.refs)
	c.metrics.RecordRelease(context.Background(), c.name)
	if c.refs > 0 {
		return
	}
	c.destroy()
}

// destroy drops the cell contents and runs the finalizer for a held value.
// Called exactly once, by the final release.
func (c *cell[T]) destroy() {
	observability.LogDestroy(c.logger, c.name)
	c.metrics.RecordDestroy(context.Background(), c.name)

	if c.state == stateReady && c.finalizer != nil {
		c.finalizer(c.value)
	}

	c.factory = nil
	c.finalizer = nil
	var zero T
	c.value = zero
}
