// Package sessions provides a PostgreSQL-backed repository for server-stored
// opaque session tokens bound to a client fingerprint.
package sessions

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/censusconnect/authserver/internal/common"
	"github.com/censusconnect/authserver/internal/dbx"
	"github.com/censusconnect/authserver/internal/server/models"
)

type PostgresRepository struct {
	db dbx.DBTX
}

func NewPostgresRepository(db dbx.DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

// Create inserts a new session row. The expiry is decided by the caller,
// not stamped here, so the service clock stays the single source of time.
func (r *PostgresRepository) Create(ctx context.Context, userID int64, token string, fp models.Fingerprint, expiresAt time.Time) (*models.Session, error) {
	query := `
		INSERT INTO sessions (user_id, token, ip_address, user_agent, expires_at)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id, created_at
	`
	s := &models.Session{
		UserID:      userID,
		Token:       token,
		Fingerprint: fp,
		ExpiresAt:   expiresAt,
	}
	err := r.db.QueryRowContext(ctx, query, userID, token, fp.IP, fp.UserAgent, expiresAt).
		Scan(&s.ID, &s.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	return s, nil
}

// Find returns the session row for the given token, or common.ErrNotFound.
func (r *PostgresRepository) Find(ctx context.Context, token string) (*models.Session, error) {
	query := `
		SELECT id, user_id, ip_address, user_agent, created_at, expires_at, revoked
		FROM sessions
		WHERE token = $1
	`
	s := &models.Session{Token: token}
	err := r.db.QueryRowContext(ctx, query, token).Scan(
		&s.ID, &s.UserID, &s.Fingerprint.IP, &s.Fingerprint.UserAgent,
		&s.CreatedAt, &s.ExpiresAt, &s.Revoked)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrNotFound
		}
		return nil, fmt.Errorf("db error: %w", err)
	}
	return s, nil
}

// Revoke marks a single session revoked.
func (r *PostgresRepository) Revoke(ctx context.Context, token string) error {
	query := `
		UPDATE sessions
		SET revoked = TRUE
		WHERE token = $1
	`
	if _, err := r.db.ExecContext(ctx, query, token); err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}

// RevokeAllForUser revokes every outstanding session for a user in one
// statement, as required on password change or suspected compromise.
func (r *PostgresRepository) RevokeAllForUser(ctx context.Context, userID int64) (int64, error) {
	query := `
		UPDATE sessions
		SET revoked = TRUE
		WHERE user_id = $1 AND NOT revoked
	`
	res, err := r.db.ExecContext(ctx, query, userID)
	if err != nil {
		return 0, fmt.Errorf("db error: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("db error: %w", err)
	}
	return n, nil
}

// DeleteExpired removes sessions that expired before the given time.
// Advisory cleanup only; validation always checks expiry itself.
func (r *PostgresRepository) DeleteExpired(ctx context.Context, before time.Time) (int64, error) {
	query := `
		DELETE FROM sessions
		WHERE expires_at < $1
	`
	res, err := r.db.ExecContext(ctx, query, before)
	if err != nil {
		return 0, fmt.Errorf("db error: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("db error: %w", err)
	}
	return n, nil
}
