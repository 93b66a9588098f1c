package memo_test

import (
	"testing"

	"github.com/randalmurphal/lazyref/pkg/lazyref/memo"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCachedStore_ServesFromCache(t *testing.T) {
	inner := memo.NewMemoryStore()
	cached, err := memo.NewCachedStore(inner)
	require.NoError(t, err)
	defer cached.Close()

	require.NoError(t, cached.Put("entry-1", []byte("cached data")))

	// Remove from the underlying store; the cache must still serve the read
	require.NoError(t, inner.Delete("entry-1"))

	data, err := cached.Get("entry-1")
	require.NoError(t, err)
	assert.Equal(t, []byte("cached data"), data)
}

func TestCachedStore_ReadThroughFillsCache(t *testing.T) {
	inner := memo.NewMemoryStore()
	cached, err := memo.NewCachedStore(inner)
	require.NoError(t, err)
	defer cached.Close()

	// Written behind the cache's back
	require.NoError(t, inner.Put("entry-1", []byte("from inner")))

	// First read misses the cache and fills it
	data, err := cached.Get("entry-1")
	require.NoError(t, err)
	assert.Equal(t, []byte("from inner"), data)

	// Later reads survive the inner entry disappearing
	require.NoError(t, inner.Delete("entry-1"))

	data, err = cached.Get("entry-1")
	require.NoError(t, err)
	assert.Equal(t, []byte("from inner"), data)
}

func TestCachedStore_Delete_EvictsCacheEntry(t *testing.T) {
	inner := memo.NewMemoryStore()
	cached, err := memo.NewCachedStore(inner)
	require.NoError(t, err)
	defer cached.Close()

	require.NoError(t, cached.Put("entry-1", []byte("old")))
	require.NoError(t, cached.Delete("entry-1"))

	// A fresh inner entry must be visible: a stale cache hit would return "old"
	require.NoError(t, inner.Put("entry-1", []byte("new")))

	data, err := cached.Get("entry-1")
	require.NoError(t, err)
	assert.Equal(t, []byte("new"), data)
}

func TestCachedStore_Clear_DropsCache(t *testing.T) {
	inner := memo.NewMemoryStore()
	cached, err := memo.NewCachedStore(inner)
	require.NoError(t, err)
	defer cached.Close()

	require.NoError(t, cached.Put("entry-1", []byte("old")))
	require.NoError(t, cached.Clear())

	require.NoError(t, inner.Put("entry-1", []byte("new")))

	data, err := cached.Get("entry-1")
	require.NoError(t, err)
	assert.Equal(t, []byte("new"), data)
}

func TestCachedStore_Close_ClosesInner(t *testing.T) {
	inner := memo.NewMemoryStore()
	cached, err := memo.NewCachedStore(inner)
	require.NoError(t, err)

	require.NoError(t, cached.Close())

	err = inner.Put("entry-1", []byte("data"))
	assert.ErrorIs(t, err, memo.ErrStoreClosed)

	// Close is idempotent
	assert.NoError(t, cached.Close())
}

func TestCachedStore_WithMaxCost(t *testing.T) {
	inner := memo.NewMemoryStore()
	cached, err := memo.NewCachedStoreWithMaxCost(inner, 1<<20)
	require.NoError(t, err)
	defer cached.Close()

	require.NoError(t, cached.Put("entry-1", []byte("data")))

	data, err := cached.Get("entry-1")
	require.NoError(t, err)
	assert.Equal(t, []byte("data"), data)
}
