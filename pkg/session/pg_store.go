package session

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PGStore is a PostgreSQL session Store backed by a pgx connection pool.
// Requires the sessions table from the bundled migrations.
type PGStore struct {
	pool *pgxpool.Pool
}

// NewPGStore creates a PostgreSQL session store.
func NewPGStore(pool *pgxpool.Pool) *PGStore {
	if pool == nil {
		panic("session: pgx pool is required")
	}
	return &PGStore{pool: pool}
}

func (s *PGStore) Create(ctx context.Context, session *Session) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO sessions (id, token, user_id, expires_at, created_at)
		VALUES ($1, $2, $3, $4, $5)`,
		session.ID, session.Token, session.UserID, session.ExpiresAt, session.CreatedAt)
	if err != nil {
		return fmt.Errorf("create session: %w", err)
	}
	return nil
}

func (s *PGStore) Get(ctx context.Context, token string) (*Session, error) {
	var session Session
	err := s.pool.QueryRow(ctx, `
		SELECT id, token, user_id, expires_at, created_at
		FROM sessions WHERE token = $1`, token).
		Scan(&session.ID, &session.Token, &session.UserID, &session.ExpiresAt, &session.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get session: %w", err)
	}
	if session.IsExpired() {
		return nil, ErrExpired
	}
	return &session, nil
}

func (s *PGStore) Delete(ctx context.Context, token string) error {
	if _, err := s.pool.Exec(ctx, `DELETE FROM sessions WHERE token = $1`, token); err != nil {
		return fmt.Errorf("delete session: %w", err)
	}
	return nil
}

func (s *PGStore) DeleteExpired(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, `DELETE FROM sessions WHERE expires_at < $1`, time.Now().UTC()); err != nil {
		return fmt.Errorf("delete expired sessions: %w", err)
	}
	return nil
}
