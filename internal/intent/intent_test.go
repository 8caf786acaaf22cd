package intent_test

import (
	"context"
	"errors"
	"testing"

	"github.com/syncforge/syncforge/internal/intent"
)

func TestAuthorizes(t *testing.T) {
	i := &intent.Intent{ID: "i1", Status: intent.StatusPending, Registries: []string{"users", "orders"}}

	if !i.Authorizes("users") {
		t.Error("pending intent should authorize a listed registry")
	}
	if i.Authorizes("billing") {
		t.Error("intent should not authorize an unlisted registry")
	}

	i.Status = intent.StatusComplete
	if i.Authorizes("users") {
		t.Error("spent intent should authorize nothing")
	}

	i.Status = intent.StatusIncomplete
	if i.Authorizes("users") {
		t.Error("incomplete intent should authorize nothing")
	}
}

func TestMemoryStoreGetNotFound(t *testing.T) {
	s := intent.NewMemory()
	if _, err := s.Get(context.Background(), "missing"); !errors.Is(err, intent.ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
}

func TestMemoryStoreSetStatus(t *testing.T) {
	s := intent.NewMemory()
	s.Put(&intent.Intent{ID: "i1", Status: intent.StatusPending, Registries: []string{"users"}})

	if err := s.SetStatus(context.Background(), "i1", intent.StatusComplete); err != nil {
		t.Fatalf("SetStatus: %v", err)
	}
	i, err := s.Get(context.Background(), "i1")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if i.Status != intent.StatusComplete {
		t.Errorf("status = %q, want complete", i.Status)
	}

	if err := s.SetStatus(context.Background(), "missing", intent.StatusComplete); !errors.Is(err, intent.ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
}

func TestMemoryStoreGetReturnsCopy(t *testing.T) {
	s := intent.NewMemory()
	s.Put(&intent.Intent{ID: "i1", Status: intent.StatusPending, Registries: []string{"users"}})

	i, _ := s.Get(context.Background(), "i1")
	i.Status = intent.StatusComplete

	again, _ := s.Get(context.Background(), "i1")
	if again.Status != intent.StatusPending {
		t.Error("mutating a returned intent must not change the stored one")
	}
}
