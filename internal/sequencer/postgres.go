package sequencer

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresSequencer advances counters in the registry_sequencer table.
// The single UPDATE takes a row-level exclusive lock, so concurrent callers
// for the same registry serialize at the database and can never observe the
// same value.
type PostgresSequencer struct {
	db *pgxpool.Pool
}

// NewPostgres creates a PostgresSequencer backed by the given pool.
func NewPostgres(db *pgxpool.Pool) *PostgresSequencer {
	return &PostgresSequencer{db: db}
}

// Next implements Sequencer.
func (s *PostgresSequencer) Next(ctx context.Context, registry string) (int64, error) {
	var seq int64
	err := s.db.QueryRow(ctx,
		`UPDATE registry_sequencer SET seq = seq + 1 WHERE registry = $1 RETURNING seq`,
		registry,
	).Scan(&seq)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, ErrMissing
	}
	if err != nil {
		return 0, fmt.Errorf("advance sequencer for %q: %w", registry, err)
	}
	return seq, nil
}

// Provision inserts a counter row for a registry if it does not exist.
func (s *PostgresSequencer) Provision(ctx context.Context, registry string) error {
	_, err := s.db.Exec(ctx,
		`INSERT INTO registry_sequencer (registry, seq) VALUES ($1, 0)
		 ON CONFLICT (registry) DO NOTHING`,
		registry,
	)
	if err != nil {
		return fmt.Errorf("provision sequencer for %q: %w", registry, err)
	}
	return nil
}
