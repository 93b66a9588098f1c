package memo_test

import (
	"path/filepath"
	"testing"

	"github.com/randalmurphal/lazyref/pkg/lazyref/config"
	"github.com/randalmurphal/lazyref/pkg/lazyref/memo"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestStoreFromConfig_DefaultsToMemory tests an empty config yields a
// memory store.
func TestStoreFromConfig_DefaultsToMemory(t *testing.T) {
	store, err := memo.StoreFromConfig(config.New(nil))
	require.NoError(t, err)
	defer store.Close()

	assert.IsType(t, &memo.MemoryStore{}, store)
}

// TestStoreFromConfig_SQLite tests the sqlite driver.
func TestStoreFromConfig_SQLite(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "memo.db")
	cfg := config.New(map[string]any{
		"driver": "sqlite",
		"path":   dbPath,
	})

	store, err := memo.StoreFromConfig(cfg)
	require.NoError(t, err)
	defer store.Close()

	require.NoError(t, store.Put("entry-1", []byte("data")))
	data, err := store.Get("entry-1")
	require.NoError(t, err)
	assert.Equal(t, []byte("data"), data)
}

// TestStoreFromConfig_SQLiteRequiresPath tests path validation.
func TestStoreFromConfig_SQLiteRequiresPath(t *testing.T) {
	cfg := config.New(map[string]any{"driver": "sqlite"})

	_, err := memo.StoreFromConfig(cfg)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "sqlite driver requires path")
}

// TestStoreFromConfig_UnknownDriver tests driver validation.
func TestStoreFromConfig_UnknownDriver(t *testing.T) {
	cfg := config.New(map[string]any{"driver": "redis"})

	_, err := memo.StoreFromConfig(cfg)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown memo store driver")
}

// TestStoreFromConfig_Cached tests the cache wrapper option.
func TestStoreFromConfig_Cached(t *testing.T) {
	cfg := config.New(map[string]any{
		"driver": "memory",
		"cache":  true,
	})

	store, err := memo.StoreFromConfig(cfg)
	require.NoError(t, err)
	defer store.Close()

	assert.IsType(t, &memo.CachedStore{}, store)

	require.NoError(t, store.Put("entry-1", []byte("data")))
	data, err := store.Get("entry-1")
	require.NoError(t, err)
	assert.Equal(t, []byte("data"), data)
}

// TestStoreFromConfig_CachedMaxCost tests the cache budget option.
func TestStoreFromConfig_CachedMaxCost(t *testing.T) {
	cfg := config.New(map[string]any{
		"driver":         "memory",
		"cache":          true,
		"cache_max_cost": 1 << 20,
	})

	store, err := memo.StoreFromConfig(cfg)
	require.NoError(t, err)
	defer store.Close()

	assert.IsType(t, &memo.CachedStore{}, store)
}

// TestStoreFromConfig_FromYAMLSection tests wiring a store from a nested
// section of a larger config file.
func TestStoreFromConfig_FromYAMLSection(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "memo.db")
	raw := `
service: demo
memo:
  driver: sqlite
  path: ` + dbPath + `
  cache: true
`

	cfg, err := config.FromYAML([]byte(raw))
	require.NoError(t, err)

	store, err := memo.StoreFromConfig(cfg.Sub("memo"))
	require.NoError(t, err)
	defer store.Close()

	require.NoError(t, store.Put("entry-1", []byte("data")))
	data, err := store.Get("entry-1")
	require.NoError(t, err)
	assert.Equal(t, []byte("data"), data)
}
