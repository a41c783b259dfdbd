package memory

import (
	"context"
	"slices"
	"sync"

	"vendinha/internal/store"
)

// Store keeps values in process memory. It satisfies store.Backend and is
// used for tests and throwaway runs.
type Store struct {
	mu     sync.RWMutex
	values map[string][]byte
	closed bool
}

func New() *Store {
	return &Store{values: make(map[string][]byte)}
}

func (s *Store) Load(_ context.Context, key string) ([]byte, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return nil, false, store.ErrClosed
	}
	value, ok := s.values[key]
	if !ok {
		return nil, false, nil
	}
	return slices.Clone(value), true, nil
}

func (s *Store) Save(_ context.Context, key string, value []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return store.ErrClosed
	}
	s.values[key] = slices.Clone(value)
	return nil
}

func (s *Store) Keys() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	keys := make([]string, 0, len(s.values))
	for key := range s.values {
		keys = append(keys, key)
	}
	slices.Sort(keys)
	return keys
}

func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}
