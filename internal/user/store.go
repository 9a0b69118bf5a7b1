// Package user provides read-only access to user accounts. Account
// creation and credential issuance live in a separate service; this
// package only resolves token subjects to stable user IDs.
package user

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

// ErrNotFound is returned when no user matches the lookup.
var ErrNotFound = errors.New("user: not found")

// Store reads user rows from PostgreSQL.
type Store struct {
	db *sql.DB
}

// NewStore creates a user store backed by the given database handle.
func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

// IDByUsername resolves a username to its user ID.
func (s *Store) IDByUsername(ctx context.Context, username string) (int64, error) {
	const query = `SELECT id FROM users WHERE username = $1`

	var id int64
	err := s.db.QueryRowContext(ctx, query, username).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, ErrNotFound
	}
	if err != nil {
		return 0, fmt.Errorf("user: lookup %q: %w", username, err)
	}
	return id, nil
}
