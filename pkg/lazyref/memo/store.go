// Package memo provides persistent memoization for shared lazy handles.
//
// A memoized handle consults a Store before running its factory: a usable
// stored entry satisfies initialization without computing, and a computed
// value is written back for the next process. Stores persist opaque
// payloads wrapped in a versioned envelope (see Entry).
package memo

import (
	"errors"
	"time"
)

// Store persists memoized values across processes.
// Implementations must be safe for concurrent use.
type Store interface {
	// Put stores the payload for a key.
	// Overwrites if an entry for the key already exists.
	Put(key string, data []byte) error

	// Get retrieves the payload for a key.
	// Returns ErrNotFound if no entry exists.
	Get(key string) ([]byte, error)

	// Delete removes the entry for a key.
	// Returns nil if the entry doesn't exist.
	Delete(key string) error

	// List returns metadata for all entries, ordered by creation time.
	// Returns empty slice (not error) if the store is empty.
	List() ([]Info, error)

	// Clear removes all entries.
	Clear() error

	// Close releases any resources (connections, files).
	Close() error
}

// Info provides entry metadata without loading the payload.
type Info struct {
	Key       string
	CreatedAt time.Time
	Size      int64
}

// Sentinel errors for store operations.
var (
	// ErrNotFound indicates an entry doesn't exist.
	ErrNotFound = errors.New("memo entry not found")

	// ErrStoreClosed indicates the store has been closed.
	ErrStoreClosed = errors.New("memo store closed")
)
