package auditlog

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"hash/fnv"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"
)

// PostgresLedger persists audit chains to the audit_log table. It implements
// the Ledger interface.
type PostgresLedger struct {
	db     *pgxpool.Pool
	logger *zap.Logger
}

// NewPostgres creates a PostgresLedger backed by the given connection pool.
func NewPostgres(db *pgxpool.Pool, logger *zap.Logger) *PostgresLedger {
	return &PostgresLedger{db: db, logger: logger}
}

// lockKey derives a stable advisory lock key for a registry. Appends to the
// same registry serialize on this key; different registries proceed in
// parallel.
func lockKey(registry string) int64 {
	h := fnv.New64a()
	h.Write([]byte(registry))
	return int64(h.Sum64())
}

// Append implements Ledger.
// It acquires a per-registry PostgreSQL advisory lock, reads the chain tail,
// computes the new entry hash, and inserts it, all within one transaction.
// Without the lock two concurrent appends could read the same tail and one
// would silently fork the chain.
func (l *PostgresLedger) Append(ctx context.Context, registry, action string, seq int64, payload any) (*Entry, error) {
	canonical, err := encodeMaterial(registry, action, seq, payload)
	if err != nil {
		return nil, err
	}

	tx, err := l.db.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	// The lock is released automatically when the transaction ends.
	if _, err := tx.Exec(ctx, "SELECT pg_advisory_xact_lock($1)", lockKey(registry)); err != nil {
		return nil, fmt.Errorf("acquire advisory lock: %w", err)
	}

	var prev []byte
	err = tx.QueryRow(ctx,
		`SELECT hash_self FROM audit_log WHERE registry = $1 ORDER BY audit_seq DESC LIMIT 1`,
		registry,
	).Scan(&prev)
	if err != nil && !errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("read ledger tail: %w", err)
	}

	entry := &Entry{
		Registry: registry,
		Action:   action,
		Material: json.RawMessage(canonical),
		HashPrev: prev,
		HashSelf: chainHash(prev, canonical),
	}

	err = tx.QueryRow(ctx,
		`INSERT INTO audit_log (registry, action, payload, hash_prev, hash_self)
		 VALUES ($1, $2, $3, $4, $5)
		 RETURNING audit_seq`,
		entry.Registry, entry.Action, canonical, entry.HashPrev, entry.HashSelf,
	).Scan(&entry.AuditSeq)
	if err != nil {
		return nil, fmt.Errorf("insert ledger entry: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit ledger tx: %w", err)
	}

	l.logger.Debug("audit entry appended",
		zap.String("registry", registry),
		zap.Int64("audit_seq", entry.AuditSeq),
		zap.Int64("seq", seq),
	)
	return entry, nil
}

// Tail implements Ledger.
func (l *PostgresLedger) Tail(ctx context.Context, registry string) (*Entry, error) {
	entry, err := scanEntry(l.db.QueryRow(ctx,
		`SELECT registry, audit_seq, action, payload, hash_prev, hash_self
		 FROM audit_log WHERE registry = $1 ORDER BY audit_seq DESC LIMIT 1`,
		registry,
	))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read ledger tail: %w", err)
	}
	return entry, nil
}

// Count implements Ledger.
func (l *PostgresLedger) Count(ctx context.Context, registry string) (int64, error) {
	var n int64
	if err := l.db.QueryRow(ctx,
		`SELECT COUNT(*) FROM audit_log WHERE registry = $1`, registry,
	).Scan(&n); err != nil {
		return 0, fmt.Errorf("count ledger entries: %w", err)
	}
	return n, nil
}

// Entries implements Ledger.
func (l *PostgresLedger) Entries(ctx context.Context, registry string, limit, offset int) ([]*Entry, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := l.db.Query(ctx,
		`SELECT registry, audit_seq, action, payload, hash_prev, hash_self
		 FROM audit_log WHERE registry = $1
		 ORDER BY audit_seq ASC LIMIT $2 OFFSET $3`,
		registry, limit, offset,
	)
	if err != nil {
		return nil, fmt.Errorf("query ledger entries: %w", err)
	}
	defer rows.Close()

	var out []*Entry
	for rows.Next() {
		entry, err := scanEntry(rows)
		if err != nil {
			return nil, fmt.Errorf("scan ledger row: %w", err)
		}
		out = append(out, entry)
	}
	return out, rows.Err()
}

// ScanAll implements Ledger. It streams every row in chain-replay order;
// O(n) in total ledger size.
func (l *PostgresLedger) ScanAll(ctx context.Context, fn func(*Entry) error) error {
	rows, err := l.db.Query(ctx,
		`SELECT registry, audit_seq, action, payload, hash_prev, hash_self
		 FROM audit_log ORDER BY registry ASC, audit_seq ASC`,
	)
	if err != nil {
		return fmt.Errorf("query ledger: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		entry, err := scanEntry(rows)
		if err != nil {
			return fmt.Errorf("scan ledger row: %w", err)
		}
		if err := fn(entry); err != nil {
			return err
		}
	}
	return rows.Err()
}

// HasSeq implements Ledger.
func (l *PostgresLedger) HasSeq(ctx context.Context, registry string, seq int64) (bool, error) {
	var exists bool
	err := l.db.QueryRow(ctx,
		`SELECT EXISTS(
			SELECT 1 FROM audit_log
			WHERE registry = $1 AND (payload->>'seq')::bigint = $2
		)`,
		registry, seq,
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check ledger seq: %w", err)
	}
	return exists, nil
}

func scanEntry(row pgx.Row) (*Entry, error) {
	entry := &Entry{}
	var payload []byte
	if err := row.Scan(
		&entry.Registry, &entry.AuditSeq, &entry.Action,
		&payload, &entry.HashPrev, &entry.HashSelf,
	); err != nil {
		return nil, err
	}
	entry.Material = json.RawMessage(payload)
	return entry, nil
}
