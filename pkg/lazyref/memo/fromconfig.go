package memo

import (
	"errors"
	"fmt"

	"github.com/randalmurphal/lazyref/pkg/lazyref/config"
)

// StoreFromConfig builds a memo store from configuration.
//
// Recognized keys:
//   - driver: "memory" (default) or "sqlite"
//   - path: database file path (required for sqlite)
//   - cache: wrap the store in a ristretto read-through cache (default false)
//   - cache_max_cost: cache budget in bytes (default DefaultMaxCost)
//
// Example YAML:
//
//	driver: sqlite
//	path: ./memo.db
//	cache: true
//	cache_max_cost: 33554432
func StoreFromConfig(cfg config.Config) (Store, error) {
	driver := cfg.String("driver", "memory")

	var store Store
	switch driver {
	case "memory":
		store = NewMemoryStore()
	case "sqlite":
		path := cfg.String("path", "")
		if path == "" {
			return nil, errors.New("sqlite driver requires path")
		}
		s, err := NewSQLiteStore(path)
		if err != nil {
			return nil, fmt.Errorf("open sqlite store: %w", err)
		}
		store = s
	default:
		return nil, fmt.Errorf("unknown memo store driver: %s", driver)
	}

	if cfg.Bool("cache", false) {
		maxCost := int64(cfg.Int("cache_max_cost", 0))
		if maxCost <= 0 {
			maxCost = DefaultMaxCost
		}
		cached, err := NewCachedStoreWithMaxCost(store, maxCost)
		if err != nil {
			store.Close()
			return nil, err
		}
		store = cached
	}

	return store, nil
}
