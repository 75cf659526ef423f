// Package memory provides an in-memory Store for tests and for the
// engine's degraded mode when the durable store fails mid-cycle.
package memory

import (
	"context"
	"sync"

	"github.com/driftsync/driftsync/storage"
)

// Store is a concurrency-safe in-memory implementation of storage.Store.
type Store struct {
	mu     sync.RWMutex
	data   map[string]map[string][]byte
	closed bool
}

var _ storage.Store = (*Store)(nil)

// New creates an empty in-memory store.
func New() *Store {
	return &Store{data: make(map[string]map[string][]byte)}
}

func (s *Store) Get(ctx context.Context, collection, key string) ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return nil, storage.ErrStoreClosed
	}
	coll, ok := s.data[collection]
	if !ok {
		return nil, storage.ErrNotFound
	}
	value, ok := coll[key]
	if !ok {
		return nil, storage.ErrNotFound
	}
	out := make([]byte, len(value))
	copy(out, value)
	return out, nil
}

func (s *Store) Put(ctx context.Context, collection, key string, value []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return storage.ErrStoreClosed
	}
	coll, ok := s.data[collection]
	if !ok {
		coll = make(map[string][]byte)
		s.data[collection] = coll
	}
	stored := make([]byte, len(value))
	copy(stored, value)
	coll[key] = stored
	return nil
}

func (s *Store) Delete(ctx context.Context, collection, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return storage.ErrStoreClosed
	}
	if coll, ok := s.data[collection]; ok {
		delete(coll, key)
	}
	return nil
}

func (s *Store) GetAll(ctx context.Context, collection string) (map[string][]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return nil, storage.ErrStoreClosed
	}
	out := make(map[string][]byte)
	for key, value := range s.data[collection] {
		copied := make([]byte, len(value))
		copy(copied, value)
		out[key] = copied
	}
	return out, nil
}

func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return storage.ErrStoreClosed
	}
	s.closed = true
	s.data = nil
	return nil
}
