package lazyref

import (
	"context"
	"log/slog"
	"runtime/debug"
	"sync"
	"sync/atomic"
	"time"

	"github.com/randalmurphal/lazyref/pkg/lazyref/observability"
	"go.opentelemetry.io/otel/trace"
)

// SharedRef is a lazily initialized, reference-counted handle that is safe
// for concurrent use. Clones share one cell; when several goroutines force
// at once, exactly one runs the factory and the rest block until the value
// is published. Once the cell is initialized, Value and Peek are lock-free.
//
// Each goroutine should own its own clone. Methods on a single handle may
// be called concurrently, except Release, which must not race with other
// calls on the same handle.
type SharedRef[T any] struct {
	cell     *sharedCell[T]
	released atomic.Bool
}

// sharedCell is the state shared by every SharedRef cloned from one
// constructor call.
//
// The state tag is the publication point: init writes value and err before
// storing the terminal state, so a handle that observes stateReady on the
// lock-free path never sees a partially initialized value.
type sharedCell[T any] struct {
	settings[T]
	refs    atomic.Int64
	state   atomic.Int32
	once    sync.Once
	factory Factory[T]
	value   T
	err     error // failure that poisoned the cell
}

// NewShared creates a SharedRef that will compute its value with factory
// on first use. The returned handle owns the cell's initial reference.
//
// Panics if factory is nil.
func NewShared[T any](factory Factory[T]) *SharedRef[T] {
	if factory == nil {
		panic("lazyref: factory cannot be nil")
	}
	c := &sharedCell[T]{
		settings: defaultSettings[T](),
		factory:  factory,
	}
	c.refs.Store(1)
	return &SharedRef[T]{cell: c}
}

// SharedFromValue creates a SharedRef that is already initialized with value.
// No factory is involved; the handle behaves as if it had been forced.
func SharedFromValue[T any](value T) *SharedRef[T] {
	c := &sharedCell[T]{
		settings: defaultSettings[T](),
		value:    value,
	}
	c.refs.Store(1)
	c.state.Store(int32(stateReady))
	return &SharedRef[T]{cell: c}
}

// WithName sets the handle name used in logs, metrics, and traces.
// Default: "ref-" followed by a random suffix.
//
// Must be called before the handle is cloned or shared across goroutines.
func (s *SharedRef[T]) WithName(name string) *SharedRef[T] {
	if name != "" {
		s.cell.name = name
	}
	return s
}

// WithFinalizer sets the finalizer run when the last handle is released.
//
// Must be called before the handle is cloned or shared across goroutines.
func (s *SharedRef[T]) WithFinalizer(fn Finalizer[T]) *SharedRef[T] {
	s.cell.finalizer = fn
	return s
}

// WithLogger sets the logger for cell lifecycle events.
// A nil logger (the default) disables logging.
//
// Must be called before the handle is cloned or shared across goroutines.
func (s *SharedRef[T]) WithLogger(logger *slog.Logger) *SharedRef[T] {
	s.cell.logger = logger
	return s
}

// WithMetrics enables or disables OpenTelemetry metrics for this cell.
// Default: disabled.
//
// Must be called before the handle is cloned or shared across goroutines.
func (s *SharedRef[T]) WithMetrics(enabled bool) *SharedRef[T] {
	s.cell.setMetrics(enabled)
	return s
}

// WithTracing enables or disables OpenTelemetry tracing for this cell.
// Default: disabled.
//
// Must be called before the handle is cloned or shared across goroutines.
func (s *SharedRef[T]) WithTracing(enabled bool) *SharedRef[T] {
	s.cell.setTracing(enabled)
	return s
}

// Value returns the cell value, invoking the factory on first use.
//
// When several goroutines force a pending cell, exactly one runs the
// factory and the others block until the outcome is published. A factory
// error or panic poisons the cell: the goroutine that ran the factory
// receives the failure itself (*InitError or *PanicError) and every other
// caller receives a *PoisonedError matching ErrPoisoned.
//
// A factory that forces its own cell deadlocks; see the package
// documentation on thread safety.
//
// Returns ErrReleased if the handle has been released.
func (s *SharedRef[T]) Value() (T, error) {
	if s.released.Load() {
		var zero T
		return zero, ErrReleased
	}
	return s.cell.force()
}

// MustValue returns the cell value, panicking on error.
// Useful for values whose initialization cannot meaningfully fail.
func (s *SharedRef[T]) MustValue() T {
	v, err := s.Value()
	if err != nil {
		panic(err)
	}
	return v
}

// Peek returns the value without forcing initialization.
// The second return is true only if the cell is initialized. Peek never
// invokes the factory, never blocks, and has no side effects, even while
// another goroutine is mid-initialization.
func (s *SharedRef[T]) Peek() (T, bool) {
	if s.released.Load() || cellState(s.cell.state.Load()) != stateReady {
		var zero T
		return zero, false
	}
	return s.cell.value, true
}

// Initialized reports whether the cell holds a value.
// Returns false for pending, poisoned, and released handles.
func (s *SharedRef[T]) Initialized() bool {
	return !s.released.Load() && cellState(s.cell.state.Load()) == stateReady
}

// Poisoned reports whether the cell was poisoned by a failed initialization.
func (s *SharedRef[T]) Poisoned() bool {
	return !s.released.Load() && cellState(s.cell.state.Load()) == statePoisoned
}

// Name returns the handle name.
func (s *SharedRef[T]) Name() string {
	return s.cell.name
}

// Refs returns the number of live handles sharing the cell.
// Useful for testing and diagnostics.
func (s *SharedRef[T]) Refs() int {
	return int(s.cell.refs.Load())
}

// Clone returns a new handle sharing the same cell.
// Cloning never triggers initialization; it only increments the refcount.
//
// Panics if the handle has been released: a released handle cannot mint
// new references.
func (s *SharedRef[T]) Clone() *SharedRef[T] {
	if s.released.Load() {
		panic("lazyref: clone of released handle")
	}
	c := s.cell
	refs := c.refs.Add(1)
	observability.LogClone(c.logger, c.name, int(refs))
	c.metrics.RecordClone(context.Background(), c.name)
	return &SharedRef[T]{cell: c}
}

// Release drops this handle's reference.
// The handle that decrements the refcount to zero destroys the cell: the
// value (or the still-pending factory) is dropped, and the finalizer runs
// if the cell held a value. The atomic decrement makes exactly one
// releaser the destroyer, no matter how releases interleave.
//
// Release is idempotent per handle; the second call returns ErrReleased
// without touching the refcount.
func (s *SharedRef[T]) Release() error {
	if !s.released.CompareAndSwap(false, true) {
		return ErrReleased
	}
	s.cell.release()
	return nil
}

// force returns the cell value, initializing on first use.
func (c *sharedCell[T]) force() (T, error) {
	if cellState(c.state.Load()) == statePending {
		var ran bool
		c.once.Do(func() {
			ran = true
			c.init()
		})
		if ran && c.err != nil {
			// This goroutine triggered the failure; report it directly.
			var zero T
			return zero, c.err
		}
	}

	if cellState(c.state.Load()) == stateReady {
		return c.value, nil
	}
	var zero T
	return zero, &PoisonedError{Name: c.name, Cause: c.err}
}

// init invokes the factory and publishes the outcome. Called at most once,
// inside the cell's sync.Once. The terminal state store comes last so the
// lock-free read paths only observe fully published cells.
func (c *sharedCell[T]) init() {
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
		c.state.Store(int32(statePoisoned))
		observability.LogInitError(c.logger, c.name, err)
		return
	}

	c.value = value
	c.state.Store(int32(stateReady))
	observability.LogInitComplete(c.logger, c.name, float64(duration.Milliseconds()))
}

// runFactory calls the factory with panic recovery. The factory reference
// is dropped before the call so it can never run twice, even after a
// failure.
func (c *sharedCell[T]) runFactory() (result T, err error) {
	factory := c.factory
	c.factory = nil

	defer func() {
		if r := recover(); r != nil {
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
func (c *sharedCell[T]) release() {
	remaining := c.refs.Add(-1)
	observability.LogRelease(c.logger, c.name, int(remaining))
	c.metrics.RecordRelease(context.Background(), c.name)
	if remaining > 0 {
		return
	}
	c.destroy()
}

// destroy drops the cell contents and runs the finalizer for a held value.
// Reached only by the release that took the refcount to zero, after every
// handle is already released, so no reads can race with it.
func (c *sharedCell[T]) destroy() {
	observability.LogDestroy(c.logger, c.name)
	c.metrics.RecordDestroy(context.Background(), c.name)

	if cellState(c.state.Load()) == stateReady && c.finalizer != nil {
		c.finalizer(c.value)
	}

	c.factory = nil
	c.finalizer = nil
	var zero T
	c.value = zero
}
