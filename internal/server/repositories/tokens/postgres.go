// Package tokens provides a PostgreSQL-backed repository for single-use
// security tokens (activation, password reset). Only SHA-256 digests are
// stored, so a database read leak exposes nothing consumable.
package tokens

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

// Upsert stores a new token digest for (user, purpose), replacing any prior
// live token. The replacement is what invalidates a stale token after a
// re-request.
func (r *PostgresRepository) Upsert(ctx context.Context, userID int64, purpose, tokenHash string) error {
	query := `
		INSERT INTO security_tokens (user_id, purpose, token_hash, created_at)
		VALUES ($1, $2, $3, now())
		ON CONFLICT (user_id, purpose)
		DO UPDATE SET token_hash = EXCLUDED.token_hash, created_at = now()
	`
	if _, err := r.db.ExecContext(ctx, query, userID, purpose, tokenHash); err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}

// Consume atomically removes the token row and returns it. A missing row
// yields common.ErrNotFound; because the delete and the read are one
// statement, a token can never be consumed twice.
func (r *PostgresRepository) Consume(ctx context.Context, tokenHash, purpose string) (*models.SecurityToken, error) {
	query := `
		DELETE FROM security_tokens
		WHERE token_hash = $1 AND purpose = $2
		RETURNING user_id, created_at
	`
	st := &models.SecurityToken{TokenHash: tokenHash, Purpose: purpose}
	err := r.db.QueryRowContext(ctx, query, tokenHash, purpose).Scan(&st.UserID, &st.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrNotFound
		}
		return nil, fmt.Errorf("db error: %w", err)
	}
	return st, nil
}

// DeleteExpired prunes tokens created before the given time. Advisory only;
// Consume checks the TTL itself.
func (r *PostgresRepository) DeleteExpired(ctx context.Context, purpose string, before time.Time) (int64, error) {
	query := `
		DELETE FROM security_tokens
		WHERE purpose = $1 AND created_at < $2
	`
	res, err := r.db.ExecContext(ctx, query, purpose, before)
	if err != nil {
		return 0, fmt.Errorf("db error: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("db error: %w", err)
	}
	return n, nil
}
