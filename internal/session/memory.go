package session

import (
	"context"
	"sync"
	"time"
)

type memoryEntry struct {
	slot    Slot
	expires time.Time
}

// MemoryStore is the single-node slot store used when no redis is configured.
type MemoryStore struct {
	mu    sync.Mutex
	slots map[string]memoryEntry
	now   func() time.Time
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{slots: make(map[string]memoryEntry), now: time.Now}
}

func (s *MemoryStore) Put(_ context.Context, id string, slot Slot, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.slots[id] = memoryEntry{slot: slot, expires: s.now().Add(ttl)}
	return nil
}

func (s *MemoryStore) Get(_ context.Context, id string) (*Slot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.slots[id]
	if !ok {
		return nil, ErrNotFound
	}
	if !s.now().Before(e.expires) {
		delete(s.slots, id)
		return nil, ErrNotFound
	}
	slot := e.slot
	return &slot, nil
}

func (s *MemoryStore) Delete(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.slots, id)
	return nil
}
