// Package auditlog implements the append-only, hash-chained audit ledger.
//
// Every registry has an independent chain: each entry's hash covers its own
// canonical material plus the previous entry's hash, making retroactive
// edits detectable. Entries are immutable; the ledger offers no update or
// delete of any kind.
//
// Two implementations of the Ledger interface are provided:
//   - MemoryLedger: in-process, for testing and development.
//   - PostgresLedger: durable, for production use.
package auditlog

import "context"

// Ledger is the append-only audit store.
type Ledger interface {
	// Append reads the registry's tail, links a new entry to it and
	// inserts it. The first entry of a registry links to an empty hash.
	Append(ctx context.Context, registry, action string, seq int64, payload any) (*Entry, error)

	// Tail returns the most recent entry for registry, or nil when the
	// registry has no entries.
	Tail(ctx context.Context, registry string) (*Entry, error)

	// Count returns the number of entries for registry.
	Count(ctx context.Context, registry string) (int64, error)

	// Entries returns up to limit entries for registry ordered by
	// audit_seq ascending, starting at offset.
	Entries(ctx context.Context, registry string, limit, offset int) ([]*Entry, error)

	// ScanAll streams every entry ordered by (registry, audit_seq)
	// ascending. Returning an error from fn aborts the scan.
	ScanAll(ctx context.Context, fn func(*Entry) error) error

	// HasSeq reports whether registry holds an entry whose material
	// carries the given sequencer value.
	HasSeq(ctx context.Context, registry string, seq int64) (bool, error)
}
