package ratelimit

import (
	"context"
	"sync"
	"time"
)

// MemoryStore is the single-process store: a mutex-guarded map. Suitable when
// the gateway runs as one instance; horizontally-scaled deployments should
// use the Redis store instead.
type MemoryStore struct {
	mu      sync.Mutex
	entries map[string]Entry
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{entries: make(map[string]Entry)}
}

func (s *MemoryStore) Get(_ context.Context, key string) (Entry, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.entries[key]
	return e, ok, nil
}

func (s *MemoryStore) CompareAndSwap(_ context.Context, key string, old Entry, oldExists bool, next Entry) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cur, ok := s.entries[key]
	if ok != oldExists || (ok && cur != old) {
		return false, nil
	}
	s.entries[key] = next
	return true, nil
}

func (s *MemoryStore) Sweep(_ context.Context, now time.Time) error {
	nowMs := now.UnixMilli()
	s.mu.Lock()
	defer s.mu.Unlock()
	for key, e := range s.entries {
		if nowMs >= e.WindowResetAt {
			delete(s.entries, key)
		}
	}
	return nil
}

func (s *MemoryStore) Len(_ context.Context) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries), nil
}
