package plugin

import (
	"encoding/json"
	"maps"
	"slices"
	"sync"

	mcerrors "github.com/Iron-Ham/mapcore/internal/errors"
)

// Store is a plugin's private key-value state. Values must be
// JSON-serializable so they can be written into snapshots. The store
// survives basemap changes and is cleared when the plugin is unregistered.
type Store struct {
	mu   sync.RWMutex
	data map[string]any
}

// NewStore returns an empty store.
func NewStore() *Store {
	return &Store{data: make(map[string]any)}
}

// Get returns the value for key.
func (s *Store) Get(key string) (any, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.data[key]
	return v, ok
}

// Set stores value under key. It fails if value cannot be encoded as JSON.
func (s *Store) Set(key string, value any) error {
	if err := checkSerializable(key, value); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data[key] = value
	return nil
}

// Has reports whether key is set.
func (s *Store) Has(key string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.data[key]
	return ok
}

// Delete removes key and reports whether it was present.
func (s *Store) Delete(key string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.data[key]
	delete(s.data, key)
	return ok
}

// Clear removes every key.
func (s *Store) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	clear(s.data)
}

// Keys returns the keys in sorted order.
func (s *Store) Keys() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return slices.Sorted(maps.Keys(s.data))
}

// Len returns the number of keys.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.data)
}

// Snapshot returns a shallow copy of the contents.
func (s *Store) Snapshot() map[string]any {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return maps.Clone(s.data)
}

// Merge sets every key of state. Nothing is written if any value is not
// serializable.
func (s *Store) Merge(state map[string]any) error {
	for k, v := range state {
		if err := checkSerializable(k, v); err != nil {
			return err
		}
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	maps.Copy(s.data, state)
	return nil
}

func checkSerializable(key string, value any) error {
	if _, err := json.Marshal(value); err != nil {
		return mcerrors.NewValidationError("store value is not serializable").
			WithField(key).
			WithCause(mcerrors.Join(mcerrors.ErrNotSerializable, err))
	}
	return nil
}
