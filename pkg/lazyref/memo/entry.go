package memo

import (
	"encoding/json"
	"time"
)

// Version is the current entry format version.
// Increment when making breaking changes to the entry structure.
const Version = 1

// Entry is the persisted envelope for one memoized value.
// The payload is the JSON encoding of the value; the envelope carries
// enough metadata to reject incompatible entries on read.
type Entry struct {
	Version   int             `json:"version"`
	Key       string          `json:"key"`
	CreatedAt time.Time       `json:"created_at"`
	Payload   json.RawMessage `json:"payload"`
}

// NewEntry creates an entry for the given key.
// Payload must already be JSON-serialized.
func NewEntry(key string, payload []byte) *Entry {
	return &Entry{
		Version:   Version,
		Key:       key,
		CreatedAt: time.Now().UTC(),
		Payload:   payload,
	}
}

// Marshal serializes an entry to JSON.
func (e *Entry) Marshal() ([]byte, error) {
	return json.Marshal(e)
}

// Unmarshal deserializes an entry from JSON.
func Unmarshal(data []byte) (*Entry, error) {
	var e Entry
	if err := json.Unmarshal(data, &e); err != nil {
		return nil, err
	}
	return &e, nil
}
