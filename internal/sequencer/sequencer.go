// Package sequencer issues per-registry monotonically increasing sequence
// numbers.
//
// Counters must be provisioned (one row per registry) before the first
// write; the sequencer itself never creates them. The issued value is
// embedded in audit material but is independent of the ledger's own
// insertion order, and the two may diverge under concurrent writers.
package sequencer

import (
	"context"
	"errors"
)

// ErrMissing is returned when a registry has no provisioned counter.
var ErrMissing = errors.New("SEQUENCER_MISSING")

// Sequencer advances a registry's counter exactly once per call.
// Both MemorySequencer and PostgresSequencer implement this interface.
type Sequencer interface {
	// Next atomically increments and returns the registry's counter.
	Next(ctx context.Context, registry string) (int64, error)
}
