// Package memory implements the KVStore interface with an in-memory map.
// There is no durability and no transactional isolation: a reader concurrent
// with a writer can observe a partially-updated view across keys.
package memory

import "sync"

// Store is an in-memory key/value store safe for concurrent use.
type Store struct {
	mu sync.RWMutex
	m  map[string][]byte
}

// New constructs an in-memory key/value store.
func New() *Store {
	return &Store{
		m: make(map[string][]byte),
	}
}

// Get returns the value stored under the specified key.
func (s *Store) Get(key []byte) ([]byte, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	value, exists := s.m[string(key)]
	if !exists {
		return nil, false
	}

	return clone(value), true
}

// Insert stores the value under the specified key, returning any value
// previously stored under it.
func (s *Store) Insert(key []byte, value []byte) ([]byte, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	old, existed := s.m[string(key)]
	s.m[string(key)] = clone(value)

	return old, existed
}

// Remove deletes the value stored under the specified key, returning it.
func (s *Store) Remove(key []byte) ([]byte, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	old, existed := s.m[string(key)]
	delete(s.m, string(key))

	return old, existed
}

// clone keeps callers from aliasing the map's backing arrays.
func clone(value []byte) []byte {
	c := make([]byte, len(value))
	copy(c, value)
	return c
}
