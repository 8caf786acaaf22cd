// Package nonce tracks previously seen (actor, nonce) pairs to reject
// replayed write requests.
//
// The window lives in process memory only: it starts empty and is lost on
// restart, which permits nonce reuse across restarts. That is an accepted
// property of the design, not something this package tries to paper over.
package nonce

import (
	"errors"
	"sync"
)

// ErrReplay is returned when an actor presents a nonce it has already used.
var ErrReplay = errors.New("REPLAY")

// DefaultCapacity is the per-actor window size used when none is configured.
const DefaultCapacity = 1000

// Window is a shared, bounded, per-actor replay window. Check and record
// happen under one lock so two concurrent requests can never both pass for
// the same nonce.
type Window struct {
	mu       sync.Mutex
	capacity int
	actors   map[string]*actorWindow
}

// actorWindow keeps both a set for O(1) lookup and an insertion-ordered
// queue so eviction is FIFO, not whatever order a map iterates in.
type actorWindow struct {
	set   map[string]struct{}
	order []string
}

// NewWindow creates an empty Window. capacity <= 0 selects DefaultCapacity.
func NewWindow(capacity int) *Window {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Window{
		capacity: capacity,
		actors:   make(map[string]*actorWindow),
	}
}

// Remember records the (actor, nonce) pair, returning ErrReplay if it was
// already present. Recording is irreversible: the nonce stays consumed even
// when a later step of the caller's pipeline fails.
func (w *Window) Remember(actor, nonce string) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	aw, ok := w.actors[actor]
	if !ok {
		aw = &actorWindow{set: make(map[string]struct{})}
		w.actors[actor] = aw
	}

	if _, dup := aw.set[nonce]; dup {
		return ErrReplay
	}

	aw.set[nonce] = struct{}{}
	aw.order = append(aw.order, nonce)

	if len(aw.set) > w.capacity {
		oldest := aw.order[0]
		aw.order = aw.order[1:]
		delete(aw.set, oldest)
	}
	return nil
}

// Len returns the number of nonces currently tracked for actor.
func (w *Window) Len(actor string) int {
	w.mu.Lock()
	defer w.mu.Unlock()
	if aw, ok := w.actors[actor]; ok {
		return len(aw.set)
	}
	return 0
}
