package lock

import (
	"context"
	"sync"
	"time"
)

// MemoryStore is an in-process Store with real expiry semantics. It exists
// for tests and single-node development runs where Redis is not available.
type MemoryStore struct {
	mu      sync.Mutex
	entries map[string]time.Time // key -> expiry
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{entries: make(map[string]time.Time)}
}

func (s *MemoryStore) SetNX(_ context.Context, key string, ttl time.Duration) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if exp, ok := s.entries[key]; ok && time.Now().Before(exp) {
		return false, nil
	}
	s.entries[key] = time.Now().Add(ttl)
	return true, nil
}

func (s *MemoryStore) Exists(_ context.Context, keys ...string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := time.Now()
	for _, k := range keys {
		if exp, ok := s.entries[k]; ok && now.Before(exp) {
			return true, nil
		}
	}
	return false, nil
}

func (s *MemoryStore) Del(_ context.Context, keys ...string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, k := range keys {
		delete(s.entries, k)
	}
	return nil
}
