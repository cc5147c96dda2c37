// Package throttle provides the PostgreSQL-backed state for endpoint-level
// rate limiting: per-endpoint rules, a write-through attempt log, and a
// per-key lockout row used for serialization.
package throttle

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

// GetRule returns the policy for an endpoint, or common.ErrNotFound when the
// endpoint is not throttled.
func (r *PostgresRepository) GetRule(ctx context.Context, endpoint string) (*models.ThrottleRule, error) {
	query := `
		SELECT max_attempts, time_window_seconds, lockout_seconds
		FROM throttle_rules
		WHERE endpoint = $1
	`
	rule := &models.ThrottleRule{Endpoint: endpoint}
	var windowSec, lockoutSec int64
	err := r.db.QueryRowContext(ctx, query, endpoint).Scan(&rule.MaxAttempts, &windowSec, &lockoutSec)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrNotFound
		}
		return nil, fmt.Errorf("db error: %w", err)
	}
	rule.TimeWindow = time.Duration(windowSec) * time.Second
	rule.LockoutDuration = time.Duration(lockoutSec) * time.Second
	return rule, nil
}

// LockKey upserts the per-key row and takes a row lock on it, so concurrent
// checkAndRecord calls for the same key serialize. Returns the current
// lockout deadline, nil when none is set.
func (r *PostgresRepository) LockKey(ctx context.Context, identifier, endpoint string) (*time.Time, error) {
	insert := `
		INSERT INTO throttle_locks (identifier, endpoint)
		VALUES ($1, $2)
		ON CONFLICT (identifier, endpoint) DO NOTHING
	`
	if _, err := r.db.ExecContext(ctx, insert, identifier, endpoint); err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}

	query := `
		SELECT blocked_until
		FROM throttle_locks
		WHERE identifier = $1 AND endpoint = $2
		FOR UPDATE
	`
	var until sql.NullTime
	if err := r.db.QueryRowContext(ctx, query, identifier, endpoint).Scan(&until); err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	if !until.Valid {
		return nil, nil
	}
	return &until.Time, nil
}

// CountRecent counts attempts inside the current window. Blocked probes are
// excluded so they never pre-fill a future window.
func (r *PostgresRepository) CountRecent(ctx context.Context, identifier, endpoint string, since time.Time) (int, error) {
	query := `
		SELECT COUNT(*)
		FROM throttle_attempts
		WHERE identifier = $1 AND endpoint = $2 AND NOT blocked AND created_at > $3
	`
	var count int
	if err := r.db.QueryRowContext(ctx, query, identifier, endpoint, since).Scan(&count); err != nil {
		return 0, fmt.Errorf("db error: %w", err)
	}
	return count, nil
}

// RecordAttempt logs one call, allowed or blocked. Write-through: every
// request reaching a throttled endpoint leaves a row.
func (r *PostgresRepository) RecordAttempt(ctx context.Context, identifier, endpoint string, blocked bool, at time.Time) error {
	query := `
		INSERT INTO throttle_attempts (identifier, endpoint, blocked, created_at)
		VALUES ($1, $2, $3, $4)
	`
	if _, err := r.db.ExecContext(ctx, query, identifier, endpoint, blocked, at); err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}

// SetBlockedUntil arms the lockout for a key.
func (r *PostgresRepository) SetBlockedUntil(ctx context.Context, identifier, endpoint string, until time.Time) error {
	query := `
		UPDATE throttle_locks
		SET blocked_until = $3
		WHERE identifier = $1 AND endpoint = $2
	`
	if _, err := r.db.ExecContext(ctx, query, identifier, endpoint, until); err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}

// DeleteOldAttempts prunes the attempt log. The audit log keeps the durable
// history; this table only needs to cover the widest rule window.
func (r *PostgresRepository) DeleteOldAttempts(ctx context.Context, before time.Time) (int64, error) {
	query := `
		DELETE FROM throttle_attempts
		WHERE created_at < $1
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
