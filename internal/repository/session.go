package repository

import (
	"context"
	"fmt"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/xenking/storefront/internal/domain/session"
)

const (
	loadSessionSQL = `SELECT id, COALESCE(user_id, 0), data, expires_at
		FROM sessions WHERE id = $1 AND expires_at > now()`

	saveSessionSQL = `INSERT INTO sessions (id, user_id, data, expires_at)
		VALUES ($1, NULLIF($2, 0), $3, $4)
		ON CONFLICT (id) DO UPDATE SET
			user_id = EXCLUDED.user_id,
			data = EXCLUDED.data,
			expires_at = EXCLUDED.expires_at,
			updated_at = now()`

	deleteSessionSQL = `DELETE FROM sessions WHERE id = $1`

	purgeSessionsSQL = `DELETE FROM sessions WHERE expires_at <= now()`
)

var _ session.Store = (*SessionRepository)(nil)

// SessionRepository implements session.Store with the session data in a
// JSONB column.
type SessionRepository struct {
	pool *pgxpool.Pool
}

// NewSessionRepository returns a SessionRepository that uses the given pool.
func NewSessionRepository(pool *pgxpool.Pool) *SessionRepository {
	return &SessionRepository{pool: pool}
}

// Load returns session.ErrNotFound for unknown or expired ids.
func (r *SessionRepository) Load(ctx context.Context, id string) (*session.Session, error) {
	var (
		s   session.Session
		raw []byte
	)
	err := r.pool.QueryRow(ctx, loadSessionSQL, id).Scan(&s.ID, &s.UserID, &raw, &s.ExpiresAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, session.ErrNotFound
		}
		return nil, fmt.Errorf("loading session: %w", err)
	}
	data, err := session.UnmarshalData(raw)
	if err != nil {
		return nil, err
	}
	s.Data = data
	return &s, nil
}

// Save inserts or replaces the session.
func (r *SessionRepository) Save(ctx context.Context, s *session.Session) error {
	_, err := r.pool.Exec(ctx, saveSessionSQL, s.ID, s.UserID, s.Data.Marshal(), s.ExpiresAt)
	if err != nil {
		return fmt.Errorf("saving session: %w", err)
	}
	return nil
}

// Delete removes the session.
func (r *SessionRepository) Delete(ctx context.Context, id string) error {
	if _, err := r.pool.Exec(ctx, deleteSessionSQL, id); err != nil {
		return fmt.Errorf("deleting session: %w", err)
	}
	return nil
}

// PurgeExpired deletes expired sessions and returns how many were removed.
func (r *SessionRepository) PurgeExpired(ctx context.Context) (int64, error) {
	tag, err := r.pool.Exec(ctx, purgeSessionsSQL)
	if err != nil {
		return 0, fmt.Errorf("purging sessions: %w", err)
	}
	return tag.RowsAffected(), nil
}
