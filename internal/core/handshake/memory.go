package handshake

import (
	"context"
	"sync"
	"time"
)

type memoryEntry struct {
	value string
	exp   time.Time
}

// MemoryStore serves single-process deployments and tests.
type MemoryStore struct {
	mu sync.Mutex
	m  map[string]memoryEntry
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{m: make(map[string]memoryEntry)}
}

func (s *MemoryStore) Put(_ context.Context, key, value string, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	e := memoryEntry{value: value}
	if ttl > 0 {
		e.exp = time.Now().Add(ttl)
	}
	s.m[key] = e
	return nil
}

func (s *MemoryStore) Take(_ context.Context, key string) (string, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.m[key]
	if !ok {
		return "", false, nil
	}
	delete(s.m, key)
	if !e.exp.IsZero() && time.Now().After(e.exp) {
		return "", false, nil
	}
	return e.value, true, nil
}

func (s *MemoryStore) Delete(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.m, key)
	return nil
}
