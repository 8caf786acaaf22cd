package auditlog

import (
	"context"
	"encoding/json"
	"sort"
	"sync"
)

// MemoryLedger is an in-memory, thread-safe Ledger implementation. It is
// primarily useful for testing and for single-process deployments that do
// not require durable persistence across restarts.
type MemoryLedger struct {
	mu      sync.RWMutex
	nextSeq int64
	chains  map[string][]*Entry
}

// NewMemory creates an empty MemoryLedger.
func NewMemory() *MemoryLedger {
	return &MemoryLedger{chains: make(map[string][]*Entry)}
}

// Append implements Ledger.
func (l *MemoryLedger) Append(_ context.Context, registry, action string, seq int64, payload any) (*Entry, error) {
	canonical, err := encodeMaterial(registry, action, seq, payload)
	if err != nil {
		return nil, err
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	var prev []byte
	chain := l.chains[registry]
	if len(chain) > 0 {
		prev = chain[len(chain)-1].HashSelf
	}

	l.nextSeq++
	entry := &Entry{
		Registry: registry,
		AuditSeq: l.nextSeq,
		Action:   action,
		Material: json.RawMessage(canonical),
		HashPrev: prev,
		HashSelf: chainHash(prev, canonical),
	}
	l.chains[registry] = append(chain, entry)
	return entry, nil
}

// Tail implements Ledger.
func (l *MemoryLedger) Tail(_ context.Context, registry string) (*Entry, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	chain := l.chains[registry]
	if len(chain) == 0 {
		return nil, nil
	}
	return chain[len(chain)-1], nil
}

// Count implements Ledger.
func (l *MemoryLedger) Count(_ context.Context, registry string) (int64, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return int64(len(l.chains[registry])), nil
}

// Entries implements Ledger.
func (l *MemoryLedger) Entries(_ context.Context, registry string, limit, offset int) ([]*Entry, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	chain := l.chains[registry]
	if offset >= len(chain) {
		return nil, nil
	}
	end := offset + limit
	if limit <= 0 || end > len(chain) {
		end = len(chain)
	}
	out := make([]*Entry, end-offset)
	copy(out, chain[offset:end])
	return out, nil
}

// ScanAll implements Ledger.
func (l *MemoryLedger) ScanAll(_ context.Context, fn func(*Entry) error) error {
	l.mu.RLock()
	defer l.mu.RUnlock()

	registries := make([]string, 0, len(l.chains))
	for r := range l.chains {
		registries = append(registries, r)
	}
	sort.Strings(registries)

	for _, r := range registries {
		for _, e := range l.chains[r] {
			if err := fn(e); err != nil {
				return err
			}
		}
	}
	return nil
}

// HasSeq implements Ledger.
func (l *MemoryLedger) HasSeq(_ context.Context, registry string, seq int64) (bool, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	for _, e := range l.chains[registry] {
		var m struct {
			Seq int64 `json:"seq"`
		}
		if err := json.Unmarshal(e.Material, &m); err != nil {
			continue
		}
		if m.Seq == seq {
			return true, nil
		}
	}
	return false, nil
}

// Tamper overwrites the stored entry at position idx (zero-based) in the
// registry's chain. It exists only so tests can simulate storage-level
// corruption; production code has no path to it.
func (l *MemoryLedger) Tamper(registry string, idx int, mutate func(*Entry)) {
	l.mu.Lock()
	defer l.mu.Unlock()
	chain := l.chains[registry]
	if idx >= 0 && idx < len(chain) {
		mutate(chain[idx])
	}
}
