package readstate

import (
	"context"
	"sync"
)

// MemoryStore implements Store in process memory. Sessions using it lose
// read/unread state on restart, which the engine tolerates.
type MemoryStore struct {
	mu      sync.RWMutex
	seen    map[string]map[int64]struct{}
	markers map[string]int64
}

// NewMemoryStore constructs an empty in-memory read-state store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		seen:    make(map[string]map[int64]struct{}),
		markers: make(map[string]int64),
	}
}

// AddSeen implements Store.
func (s *MemoryStore) AddSeen(_ context.Context, account string, timestamps ...int64) error {
	account = normalizeAccount(account)
	if account == "" || len(timestamps) == 0 {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	set := s.seen[account]
	if set == nil {
		set = make(map[int64]struct{})
		s.seen[account] = set
	}
	for _, ts := range timestamps {
		set[ts] = struct{}{}
	}

	return nil
}

// HasSeen implements Store.
func (s *MemoryStore) HasSeen(_ context.Context, account string, timestamps []int64) (map[int64]bool, error) {
	account = normalizeAccount(account)

	s.mu.RLock()
	defer s.mu.RUnlock()

	set := s.seen[account]
	seen := make(map[int64]bool, len(timestamps))
	for _, ts := range timestamps {
		_, ok := set[ts]
		seen[ts] = ok
	}

	return seen, nil
}

// LastSeenMarker implements Store.
func (s *MemoryStore) LastSeenMarker(_ context.Context, account string) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.markers[normalizeAccount(account)], nil
}

// SetLastSeenMarker implements Store.
func (s *MemoryStore) SetLastSeenMarker(_ context.Context, account string, timestamp int64) error {
	account = normalizeAccount(account)
	if account == "" {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.markers[account] = timestamp

	return nil
}

// Clear implements Store.
func (s *MemoryStore) Clear(_ context.Context, account string) error {
	account = normalizeAccount(account)

	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.seen, account)
	delete(s.markers, account)

	return nil
}
