// Package intent reads and transitions commit intents.
//
// An intent is created by the caller before admission and consumed exactly
// once: pending intents either complete on a successful write or become
// incomplete when the append or finalization fails. This package never
// creates intents and never moves one out of a terminal status.
package intent

import (
	"context"
	"errors"
)

// Status is the lifecycle state of a commit intent.
type Status string

const (
	StatusPending    Status = "pending"
	StatusComplete   Status = "complete"
	StatusIncomplete Status = "incomplete"
)

// ErrNotFound is returned when no intent exists for an id.
var ErrNotFound = errors.New("commit intent not found")

// Intent is one caller-created, one-shot write authorization.
type Intent struct {
	ID         string   `json:"intent_id"`
	Status     Status   `json:"status"`
	Registries []string `json:"registries"`
}

// Authorizes reports whether the intent is still pending and names the
// given registry.
func (i *Intent) Authorizes(registry string) bool {
	if i.Status != StatusPending {
		return false
	}
	for _, r := range i.Registries {
		if r == registry {
			return true
		}
	}
	return false
}

// Store loads intents and records their outcome.
// Both MemoryStore and PostgresStore implement this interface.
type Store interface {
	// Get returns the intent with the given id, or ErrNotFound.
	Get(ctx context.Context, id string) (*Intent, error)

	// SetStatus records the intent's final status.
	SetStatus(ctx context.Context, id string, status Status) error
}
