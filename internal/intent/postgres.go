package intent

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresStore reads and updates intents in the commit_intent table.
type PostgresStore struct {
	db *pgxpool.Pool
}

// NewPostgres creates a PostgresStore backed by the given pool.
func NewPostgres(db *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{db: db}
}

// Get implements Store.
func (s *PostgresStore) Get(ctx context.Context, id string) (*Intent, error) {
	i := &Intent{ID: id}
	var status string
	err := s.db.QueryRow(ctx,
		`SELECT status, registries FROM commit_intent WHERE intent_id = $1`,
		id,
	).Scan(&status, &i.Registries)
	i.Status = Status(status)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load commit intent %q: %w", id, err)
	}
	return i, nil
}

// SetStatus implements Store.
func (s *PostgresStore) SetStatus(ctx context.Context, id string, status Status) error {
	tag, err := s.db.Exec(ctx,
		`UPDATE commit_intent SET status = $2 WHERE intent_id = $1`,
		id, string(status),
	)
	if err != nil {
		return fmt.Errorf("update commit intent %q: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}
