package ratelimit

import (
	"context"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
)

// MemoryStore is a process-local Store. It tracks at most maxKeys keys and
// evicts the least recently used one when full.
type MemoryStore struct {
	mu   sync.Mutex
	keys *lru.Cache[string, []time.Time]
	now  func() time.Time
}

var (
	_ Store  = (*MemoryStore)(nil)
	_ Pruner = (*MemoryStore)(nil)
)

// NewMemoryStore creates a MemoryStore bounded to maxKeys keys.
func NewMemoryStore(maxKeys int) (*MemoryStore, error) {
	cache, err := lru.New[string, []time.Time](maxKeys)
	if err != nil {
		return nil, err
	}
	return &MemoryStore{keys: cache, now: time.Now}, nil
}

// SetClock replaces the time source.
func (s *MemoryStore) SetClock(now func() time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.now = now
}

// Allow implements Store.
func (s *MemoryStore) Allow(_ context.Context, key string, limit int, window time.Duration) (Decision, error) {
	if err := Validate(limit, window); err != nil {
		return Decision{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	cutoff := now.Add(-window)

	hits, _ := s.keys.Get(key)
	live := hits[:0]
	for _, hit := range hits {
		if hit.After(cutoff) {
			live = append(live, hit)
		}
	}

	decision := Decide(live, limit, window, now)
	if decision.Allowed {
		live = append(live, now)
	}
	s.keys.Add(key, live)
	return decision, nil
}

// Prune implements Pruner. It drops keys with no hit inside the window and
// returns how many were dropped. Keys with live hits are trimmed on their
// next Allow.
func (s *MemoryStore) Prune(_ context.Context, window time.Duration) (int, error) {
	if window <= 0 {
		return 0, ErrInvalidLimit
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	cutoff := s.now().Add(-window)
	dropped := 0
	for _, key := range s.keys.Keys() {
		hits, ok := s.keys.Peek(key)
		if !ok {
			continue
		}
		if len(hits) > 0 && hits[len(hits)-1].After(cutoff) {
			continue
		}
		s.keys.Remove(key)
		dropped++
	}
	return dropped, nil
}

// Len returns the number of tracked keys.
func (s *MemoryStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.keys.Len()
}
