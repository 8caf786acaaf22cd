package intent

import (
	"context"
	"sync"
)

// MemoryStore is an in-memory, thread-safe Store implementation for testing
// and single-process deployments.
type MemoryStore struct {
	mu      sync.RWMutex
	intents map[string]*Intent
}

// NewMemory creates an empty MemoryStore.
func NewMemory() *MemoryStore {
	return &MemoryStore{intents: make(map[string]*Intent)}
}

// Put stores an intent. Creation belongs to the calling platform, not the
// admission core; tests and fixtures use this directly.
func (s *MemoryStore) Put(i *Intent) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *i
	s.intents[i.ID] = &cp
}

// Get implements Store.
func (s *MemoryStore) Get(_ context.Context, id string) (*Intent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	i, ok := s.intents[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *i
	return &cp, nil
}

// SetStatus implements Store.
func (s *MemoryStore) SetStatus(_ context.Context, id string, status Status) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	i, ok := s.intents[id]
	if !ok {
		return ErrNotFound
	}
	i.Status = status
	return nil
}
