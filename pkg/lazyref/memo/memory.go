package memo

import (
	"sort"
	"sync"
	"time"
)

// MemoryStore is an in-memory memo store for testing and single-process
// use. Data is lost when the process exits.
type MemoryStore struct {
	mu     sync.RWMutex
	data   map[string]storedEntry
	closed bool
}

// storedEntry holds entry data with metadata for List().
type storedEntry struct {
	data      []byte
	createdAt time.Time
}

// NewMemoryStore creates a new in-memory memo store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		data: make(map[string]storedEntry),
	}
}

// Put implements Store.
func (m *MemoryStore) Put(key string, data []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return ErrStoreClosed
	}

	// Copy data to avoid retaining caller's slice
	stored := make([]byte, len(data))
	copy(stored, data)

	m.data[key] = storedEntry{
		data:      stored,
		createdAt: time.Now().UTC(),
	}

	return nil
}

// Get implements Store.
func (m *MemoryStore) Get(key string) ([]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.closed {
		return nil, ErrStoreClosed
	}

	entry, ok := m.data[key]
	if !ok {
		return nil, ErrNotFound
	}

	// Return a copy to prevent modification
	result := make([]byte, len(entry.data))
	copy(result, entry.data)
	return result, nil
}

// Delete implements Store.
func (m *MemoryStore) Delete(key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return ErrStoreClosed
	}

	delete(m.data, key)
	return nil
}

// List implements Store.
func (m *MemoryStore) List() ([]Info, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.closed {
		return nil, ErrStoreClosed
	}

	infos := make([]Info, 0, len(m.data))
	for key, entry := range m.data {
		infos = append(infos, Info{
			Key:       key,
			CreatedAt: entry.createdAt,
			Size:      int64(len(entry.data)),
		})
	}

	// Sort by creation time, then key for a stable order
	sort.Slice(infos, func(i, j int) bool {
		if infos[i].CreatedAt.Equal(infos[j].CreatedAt) {
			return infos[i].Key < infos[j].Key
		}
		return infos[i].CreatedAt.Before(infos[j].CreatedAt)
	})

	return infos, nil
}

// Clear implements Store.
func (m *MemoryStore) Clear() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return ErrStoreClosed
	}

	m.data = make(map[string]storedEntry)
	return nil
}

// Close implements Store.
func (m *MemoryStore) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.closed = true
	m.data = nil
	return nil
}

// Len returns the number of entries in the store.
// Useful for testing.
func (m *MemoryStore) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.data)
}
