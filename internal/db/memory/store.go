// Package memory implements db.Store in process memory. Nothing survives a restart.
package memory

import (
	"context"
	"sync"
	"time"

	"github.com/opengeos/maplibre-gl-noaa-lidar/internal/db"
)

// Compile-time check: Store implements db.Store.
var _ db.Store = (*Store)(nil)

type entry struct {
	value     []byte
	expiresAt time.Time
}

// Store is a mutex-guarded map.
type Store struct {
	mu     sync.RWMutex
	values map[string]entry
	now    func() time.Time
}

// NewStore creates an empty store.
func NewStore() *Store {
	return &Store{values: make(map[string]entry), now: time.Now}
}

// Ping always succeeds.
func (s *Store) Ping(_ context.Context) error { return nil }

// WaitForReady always succeeds.
func (s *Store) WaitForReady(_ context.Context, _ time.Duration) error { return nil }

// Close drops all values.
func (s *Store) Close() {
	s.mu.Lock()
	s.values = make(map[string]entry)
	s.mu.Unlock()
}

// Get retrieves a copy of the value stored at key.
func (s *Store) Get(_ context.Context, key string) ([]byte, error) {
	s.mu.RLock()
	e, ok := s.values[key]
	s.mu.RUnlock()
	if !ok || (!e.expiresAt.IsZero() && s.now().After(e.expiresAt)) {
		return nil, db.ErrKeyNotFound
	}
	return append([]byte(nil), e.value...), nil
}

// Set stores a copy of value.
func (s *Store) Set(_ context.Context, key string, value []byte) error {
	s.put(key, entry{value: append([]byte(nil), value...)})
	return nil
}

// SetWithTTL stores a copy of value that reads as missing after ttl.
func (s *Store) SetWithTTL(_ context.Context, key string, value []byte, ttl time.Duration) error {
	s.put(key, entry{value: append([]byte(nil), value...), expiresAt: s.now().Add(ttl)})
	return nil
}

// Del removes a key.
func (s *Store) Del(_ context.Context, key string) error {
	s.mu.Lock()
	delete(s.values, key)
	s.mu.Unlock()
	return nil
}

func (s *Store) put(key string, e entry) {
	s.mu.Lock()
	s.values[key] = e
	s.mu.Unlock()
}
