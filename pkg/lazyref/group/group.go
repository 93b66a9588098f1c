// Package group manages keyed collections of shared lazy handles.
//
// A Group owns one SharedRef per key, created on demand from a keyed
// factory. It gives a set of expensive per-key values (connections per
// region, models per tenant) the same semantics as a single handle:
// exactly-once initialization per key, poisoning on failure, and
// refcounted teardown.
//
// Common use cases:
//   - Connection pools keyed by endpoint
//   - Per-tenant resources created on first request
//   - Pre-warming a known key set at startup
package group

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/google/uuid"
	"github.com/randalmurphal/lazyref/pkg/lazyref"
	"golang.org/x/sync/errgroup"
)

// ErrClosed indicates the group has been closed.
var ErrClosed = errors.New("group closed")

// Factory produces the value for a key.
// It is invoked at most once per key, on first force of that key's cell.
type Factory[K comparable, V any] func(K) (V, error)

// Group is a thread-safe collection of shared lazy handles indexed by key.
// The map is guarded by a sync.RWMutex; forcing happens on the per-key
// cell, outside the map lock, so a slow factory for one key never blocks
// access to the others.
type Group[K comparable, V any] struct {
	mu      sync.RWMutex
	factory Factory[K, V]
	handles map[K]*lazyref.SharedRef[V]
	closed  bool

	name           string
	logger         *slog.Logger
	finalizer      func(K, V)
	metricsEnabled bool
	tracingEnabled bool
	warmLimit      int
}

// New creates an empty group that builds values with factory.
//
// Panics if factory is nil.
func New[K comparable, V any](factory Factory[K, V]) *Group[K, V] {
	if factory == nil {
		panic("group: factory cannot be nil")
	}
	return &Group[K, V]{
		factory: factory,
		handles: make(map[K]*lazyref.SharedRef[V]),
		name:    fmt.Sprintf("group-%s", uuid.New().String()[:8]),
	}
}

// WithName sets the group name. Handle names derive from it as
// "name/key". Default: "group-" followed by a random suffix.
//
// Must be called before the group is used.
func (g *Group[K, V]) WithName(name string) *Group[K, V] {
	if name != "" {
		g.name = name
	}
	return g
}

// WithLogger sets the logger passed to every handle the group creates.
// A nil logger (the default) disables logging.
//
// Must be called before the group is used.
func (g *Group[K, V]) WithLogger(logger *slog.Logger) *Group[K, V] {
	g.logger = logger
	return g
}

// WithFinalizer sets the finalizer for values the group creates.
// It runs when the last handle for a key is released, keyed so shared
// teardown logic can tell entries apart.
//
// Must be called before the group is used.
func (g *Group[K, V]) WithFinalizer(fn func(K, V)) *Group[K, V] {
	g.finalizer = fn
	return g
}

// WithMetrics enables OpenTelemetry metrics on every handle the group
// creates. Default: disabled.
//
// Must be called before the group is used.
func (g *Group[K, V]) WithMetrics(enabled bool) *Group[K, V] {
	g.metricsEnabled = enabled
	return g
}

// WithTracing enables OpenTelemetry tracing on every handle the group
// creates. Default: disabled.
//
// Must be called before the group is used.
func (g *Group[K, V]) WithTracing(enabled bool) *Group[K, V] {
	g.tracingEnabled = enabled
	return g
}

// WithWarmLimit caps the number of keys Warm forces concurrently.
// Default: 0, meaning no limit.
//
// Must be called before the group is used.
func (g *Group[K, V]) WithWarmLimit(n int) *Group[K, V] {
	if n > 0 {
		g.warmLimit = n
	}
	return g
}

// Get returns the value for key, invoking the group factory on first use.
// Concurrent Gets for the same key coordinate on the key's cell: the
// factory runs exactly once per key. A factory failure poisons the key's
// cell; see lazyref.SharedRef.Value for the error contract.
//
// Returns ErrClosed if the group has been closed.
func (g *Group[K, V]) Get(key K) (V, error) {
	h, err := g.handleFor(key)
	if err != nil {
		var zero V
		return zero, err
	}
	defer h.Release()
	return h.Value()
}

// Handle returns a caller-owned clone of the handle for key, creating the
// cell if needed without forcing it. The caller must Release the clone;
// it keeps the cell alive even after Forget or Close.
//
// Returns ErrClosed if the group has been closed.
func (g *Group[K, V]) Handle(key K) (*lazyref.SharedRef[V], error) {
	return g.handleFor(key)
}

// Peek returns the value for key without forcing initialization.
// The second return is true only if the key exists and is initialized.
func (g *Group[K, V]) Peek(key K) (V, bool) {
	// Peek never blocks, so reading under the lock keeps a concurrent
	// Forget from destroying the cell mid-read.
	g.mu.RLock()
	defer g.mu.RUnlock()

	h, ok := g.handles[key]
	if !ok {
		var zero V
		return zero, false
	}
	return h.Peek()
}

// Has returns true if the group holds a cell for key, initialized or not.
func (g *Group[K, V]) Has(key K) bool {
	g.mu.RLock()
	defer g.mu.RUnlock()
	_, ok := g.handles[key]
	return ok
}

// Keys returns all keys in the group.
// The order is not guaranteed.
func (g *Group[K, V]) Keys() []K {
	g.mu.RLock()
	defer g.mu.RUnlock()
	keys := make([]K, 0, len(g.handles))
	for k := range g.handles {
		keys = append(keys, k)
	}
	return keys
}

// Len returns the number of cells in the group.
func (g *Group[K, V]) Len() int {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return len(g.handles)
}

// Forget releases the group's handle for key and removes it from the map.
// Clones handed out by Handle keep the cell alive until they are released;
// a later Get for the same key builds a fresh cell.
//
// Returns nil if the key doesn't exist, ErrClosed if the group has been
// closed.
func (g *Group[K, V]) Forget(key K) error {
	g.mu.Lock()
	if g.closed {
		g.mu.Unlock()
		return ErrClosed
	}
	h, ok := g.handles[key]
	delete(g.handles, key)
	g.mu.Unlock()

	if !ok {
		return nil
	}
	// Release outside the lock: the final release may run a finalizer.
	return h.Release()
}

// Warm forces the given keys concurrently, bounded by WithWarmLimit.
// It returns the first factory error encountered; remaining keys that
// already started still finish forcing. Keys whose cells are already
// initialized are no-ops.
//
// Cancelling ctx stops unstarted keys and returns the context error.
func (g *Group[K, V]) Warm(ctx context.Context, keys ...K) error {
	eg, ctx := errgroup.WithContext(ctx)
	if g.warmLimit > 0 {
		eg.SetLimit(g.warmLimit)
	}

	for _, key := range keys {
		eg.Go(func() error {
			select {
			case <-ctx.Done():
				return ctx.Err()
			default:
			}
			if _, err := g.Get(key); err != nil {
				return fmt.Errorf("warm %v: %w", key, err)
			}
			return nil
		})
	}

	return eg.Wait()
}

// Close releases every handle the group owns and marks the group closed.
// Finalizers run for initialized cells with no outstanding clones.
// Subsequent Get, Handle, Forget, and Warm calls return ErrClosed.
// Close is idempotent.
func (g *Group[K, V]) Close() error {
	g.mu.Lock()
	if g.closed {
		g.mu.Unlock()
		return nil
	}
	g.closed = true
	handles := g.handles
	g.handles = nil
	g.mu.Unlock()

	if g.logger != nil {
		g.logger.Debug("group closing",
			slog.String("group", g.name),
			slog.Int("cells", len(handles)),
		)
	}

	var firstErr error
	for _, h := range handles {
		if err := h.Release(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// handleFor returns a caller-owned clone of the handle for key, creating
// the cell if needed. Creation is atomic per key: the double-checked write
// lock makes sure concurrent callers end up sharing one cell.
//
// The clone is taken while the map lock is held. A handle still in the map
// cannot have been released yet (Forget and Close remove under the write
// lock before releasing), so cloning here pins the cell against a
// concurrent Forget or Close destroying it mid-use.
func (g *Group[K, V]) handleFor(key K) (*lazyref.SharedRef[V], error) {
	// Fast path: cell already exists
	g.mu.RLock()
	if g.closed {
		g.mu.RUnlock()
		return nil, ErrClosed
	}
	if h, ok := g.handles[key]; ok {
		clone := h.Clone()
		g.mu.RUnlock()
		return clone, nil
	}
	g.mu.RUnlock()

	// Slow path: create with write lock
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.closed {
		return nil, ErrClosed
	}

	// Double-check after acquiring write lock
	if h, ok := g.handles[key]; ok {
		return h.Clone(), nil
	}

	h := g.newHandle(key)
	g.handles[key] = h

	if g.logger != nil {
		g.logger.Debug("group cell created",
			slog.String("group", g.name),
			slog.String("key", fmt.Sprint(key)),
		)
	}

	return h.Clone(), nil
}

// newHandle builds the shared handle for key, binding the group factory
// and forwarding the group's observability configuration.
func (g *Group[K, V]) newHandle(key K) *lazyref.SharedRef[V] {
	factory := g.factory
	h := lazyref.NewShared(func() (V, error) { return factory(key) }).
		WithName(fmt.Sprintf("%s/%v", g.name, key)).
		WithLogger(g.logger).
		WithMetrics(g.metricsEnabled).
		WithTracing(g.tracingEnabled)

	if g.finalizer != nil {
		fin := g.finalizer
		h = h.WithFinalizer(func(v V) { fin(key, v) })
	}
	return h
}
