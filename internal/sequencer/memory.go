package sequencer

import (
	"context"
	"sync"
)

// MemorySequencer is an in-memory, thread-safe Sequencer implementation for
// testing and single-process deployments.
type MemorySequencer struct {
	mu       sync.Mutex
	counters map[string]int64
}

// NewMemory creates a MemorySequencer with no provisioned registries.
func NewMemory() *MemorySequencer {
	return &MemorySequencer{counters: make(map[string]int64)}
}

// Provision creates (or resets) the counter row for a registry.
func (s *MemorySequencer) Provision(registry string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.counters[registry] = 0
}

// Next implements Sequencer.
func (s *MemorySequencer) Next(_ context.Context, registry string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cur, ok := s.counters[registry]
	if !ok {
		return 0, ErrMissing
	}
	cur++
	s.counters[registry] = cur
	return cur, nil
}
