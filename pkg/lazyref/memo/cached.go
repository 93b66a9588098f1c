package memo

import (
	"fmt"
	"sync/atomic"

	"github.com/dgraph-io/ristretto/v2"
)

// Default ristretto configuration values.
const (
	// DefaultNumCounters is the number of keys to track frequency for.
	DefaultNumCounters = 1e6 // 1 million

	// DefaultMaxCost is the cache budget in bytes.
	DefaultMaxCost = 1e8 // 100 MB

	// DefaultBufferItems is the number of keys per Get buffer.
	DefaultBufferItems = 64
)

// CachedStore wraps a Store with a ristretto read-through cache.
// Reads served from the cache skip the underlying store entirely; writes
// go to the underlying store first, then update the cache. Entries are
// costed by payload size against the configured byte budget.
type CachedStore struct {
	inner  Store
	cache  *ristretto.Cache[string, []byte]
	closed atomic.Bool
}

// NewCachedStore wraps inner with a cache using the default budget.
func NewCachedStore(inner Store) (*CachedStore, error) {
	return NewCachedStoreWithMaxCost(inner, DefaultMaxCost)
}

// NewCachedStoreWithMaxCost wraps inner with a cache holding up to
// maxCost bytes of payloads.
func NewCachedStoreWithMaxCost(inner Store, maxCost int64) (*CachedStore, error) {
	cache, err := ristretto.NewCache(&ristretto.Config[string, []byte]{
		NumCounters: DefaultNumCounters,
		MaxCost:     maxCost,
		BufferItems: DefaultBufferItems,
		Cost: func(data []byte) int64 {
			return int64(len(data))
		},
	})
	if err != nil {
		return nil, fmt.Errorf("create cache: %w", err)
	}
	return &CachedStore{
		inner: inner,
		cache: cache,
	}, nil
}

// Put implements Store.
// The underlying store is the source of truth; the cache is updated only
// after the write succeeds.
func (c *CachedStore) Put(key string, data []byte) error {
	if c.closed.Load() {
		return ErrStoreClosed
	}

	if err := c.inner.Put(key, data); err != nil {
		return err
	}

	c.cacheFill(key, data)
	return nil
}

// Get implements Store.
func (c *CachedStore) Get(key string) ([]byte, error) {
	if c.closed.Load() {
		return nil, ErrStoreClosed
	}

	if data, ok := c.cache.Get(key); ok {
		// Return a copy to prevent modification
		result := make([]byte, len(data))
		copy(result, data)
		return result, nil
	}

	data, err := c.inner.Get(key)
	if err != nil {
		return nil, err
	}

	c.cacheFill(key, data)
	return data, nil
}

// Delete implements Store.
func (c *CachedStore) Delete(key string) error {
	if c.closed.Load() {
		return ErrStoreClosed
	}

	if err := c.inner.Delete(key); err != nil {
		return err
	}

	c.cache.Del(key)
	c.cache.Wait()
	return nil
}

// List implements Store.
// Listing always reads the underlying store; the cache holds payloads,
// not metadata.
func (c *CachedStore) List() ([]Info, error) {
	if c.closed.Load() {
		return nil, ErrStoreClosed
	}
	return c.inner.List()
}

// Clear implements Store.
func (c *CachedStore) Clear() error {
	if c.closed.Load() {
		return ErrStoreClosed
	}

	if err := c.inner.Clear(); err != nil {
		return err
	}

	c.cache.Clear()
	c.cache.Wait()
	return nil
}

// Close implements Store.
// Closes the cache and the underlying store. Close is idempotent.
func (c *CachedStore) Close() error {
	if !c.closed.CompareAndSwap(false, true) {
		return nil
	}

	c.cache.Close()
	return c.inner.Close()
}

// cacheFill stores a copy of data in the cache and waits for it to be
// applied, so a Get immediately after a fill sees the cached entry.
func (c *CachedStore) cacheFill(key string, data []byte) {
	stored := make([]byte, len(data))
	copy(stored, data)
	c.cache.Set(key, stored, int64(len(stored)))
	c.cache.Wait()
}
