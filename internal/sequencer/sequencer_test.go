package sequencer_test

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/syncforge/syncforge/internal/sequencer"
)

var ctx = context.Background()

func TestNext_missingRegistry(t *testing.T) {
	s := sequencer.NewMemory()
	if _, err := s.Next(ctx, "unprovisioned"); !errors.Is(err, sequencer.ErrMissing) {
		t.Errorf("got %v, want ErrMissing", err)
	}
}

func TestNext_monotonic(t *testing.T) {
	s := sequencer.NewMemory()
	s.Provision("r1")

	for want := int64(1); want <= 5; want++ {
		got, err := s.Next(ctx, "r1")
		if err != nil {
			t.Fatal(err)
		}
		if got != want {
			t.Fatalf("seq %d, want %d", got, want)
		}
	}
}

func TestNext_registriesIndependent(t *testing.T) {
	s := sequencer.NewMemory()
	s.Provision("r1")
	s.Provision("r2")

	if seq, _ := s.Next(ctx, "r1"); seq != 1 {
		t.Errorf("r1 first seq = %d, want 1", seq)
	}
	if seq, _ := s.Next(ctx, "r2"); seq != 1 {
		t.Errorf("r2 first seq = %d, want 1", seq)
	}
}

func TestNext_noDuplicatesUnderConcurrency(t *testing.T) {
	s := sequencer.NewMemory()
	s.Provision("r1")

	const n = 100
	var mu sync.Mutex
	seen := make(map[int64]bool, n)

	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			seq, err := s.Next(ctx, "r1")
			if err != nil {
				t.Error(err)
				return
			}
			mu.Lock()
			if seen[seq] {
				t.Errorf("duplicate seq %d issued", seq)
			}
			seen[seq] = true
			mu.Unlock()
		}()
	}
	wg.Wait()

	if len(seen) != n {
		t.Errorf("issued %d distinct values, want %d", len(seen), n)
	}
}
