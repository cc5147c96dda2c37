// Package users provides the PostgreSQL-backed credential store. All
// counter updates are single atomic statements so two concurrent login
// attempts for the same account cannot lose an increment.
package users

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgconn"

	"github.com/censusconnect/authserver/internal/common"
	"github.com/censusconnect/authserver/internal/dbx"
	"github.com/censusconnect/authserver/internal/server/models"
)

// pgUniqueViolation is the Postgres error code for unique_violation.
const pgUniqueViolation = "23505"

type PostgresRepository struct {
	db dbx.DBTX
}

func NewPostgresRepository(db dbx.DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

// Create inserts a new (inactive) user. Duplicate username or email is
// detected from the unique constraint, not a pre-check, so concurrent
// registrations cannot race past each other.
func (r *PostgresRepository) Create(ctx context.Context, user *models.User) (*models.User, error) {
	query := `
		INSERT INTO users (username, email, password_hash, is_active, is_admin)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id, created_at
	`
	err := r.db.QueryRowContext(ctx, query,
		user.Username, user.Email, user.PasswordHash, user.IsActive, user.IsAdmin).Scan(&user.ID, &user.CreatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation {
			return nil, common.ErrDuplicateIdentity
		}
		return nil, fmt.Errorf("db error: %w", err)
	}
	return user, nil
}

const userColumns = `id, username, email, password_hash, is_active, is_admin,
	       failed_login_attempts, last_failed_login, locked_until,
	       created_at, updated_at, last_login_at`

func (r *PostgresRepository) scanUser(row *sql.Row) (*models.User, error) {
	user := &models.User{}
	var lastFailed, lockedUntil, lastLogin sql.NullTime
	err := row.Scan(&user.ID, &user.Username, &user.Email, &user.PasswordHash,
		&user.IsActive, &user.IsAdmin, &user.FailedLoginAttempts,
		&lastFailed, &lockedUntil, &user.CreatedAt, &user.UpdatedAt, &lastLogin)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrNotFound
		}
		return nil, fmt.Errorf("db error: %w", err)
	}
	if lastFailed.Valid {
		user.LastFailedLogin = &lastFailed.Time
	}
	if lockedUntil.Valid {
		user.LockedUntil = &lockedUntil.Time
	}
	if lastLogin.Valid {
		user.LastLoginAt = &lastLogin.Time
	}
	return user, nil
}

func (r *PostgresRepository) GetByID(ctx context.Context, id int64) (*models.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE id = $1`
	return r.scanUser(r.db.QueryRowContext(ctx, query, id))
}

func (r *PostgresRepository) GetByUsername(ctx context.Context, username string) (*models.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE username = $1`
	return r.scanUser(r.db.QueryRowContext(ctx, query, username))
}

func (r *PostgresRepository) GetByEmail(ctx context.Context, email string) (*models.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE email = $1`
	return r.scanUser(r.db.QueryRowContext(ctx, query, email))
}

// UpdateProfile renames the identity columns. Collisions surface from the
// same unique constraints that guard Create.
func (r *PostgresRepository) UpdateProfile(ctx context.Context, id int64, username, email string) error {
	query := `
		UPDATE users
		SET username = $2, email = $3, updated_at = now()
		WHERE id = $1
		RETURNING id
	`
	var got int64
	if err := r.db.QueryRowContext(ctx, query, id, username, email).Scan(&got); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return common.ErrNotFound
		}
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation {
			return common.ErrDuplicateIdentity
		}
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}

// RecordLoginFailure bumps the failure counter and, when the post-increment
// count reaches threshold, arms the account-level lockout. One statement, so
// concurrent failures serialize on the row.
func (r *PostgresRepository) RecordLoginFailure(ctx context.Context, id int64, threshold int, lockout time.Duration) (*LoginOutcome, error) {
	query := `
		UPDATE users
		SET failed_login_attempts = failed_login_attempts + 1,
		    last_failed_login = now(),
		    locked_until = CASE
		        WHEN failed_login_attempts + 1 >= $2
		        THEN now() + $3 * interval '1 second'
		        ELSE locked_until
		    END,
		    updated_at = now()
		WHERE id = $1
		RETURNING failed_login_attempts, locked_until
	`
	outcome := &LoginOutcome{}
	var lockedUntil sql.NullTime
	err := r.db.QueryRowContext(ctx, query, id, threshold, int64(lockout.Seconds())).
		Scan(&outcome.FailedAttempts, &lockedUntil)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrNotFound
		}
		return nil, fmt.Errorf("db error: %w", err)
	}
	if lockedUntil.Valid {
		outcome.LockedUntil = &lockedUntil.Time
	}
	return outcome, nil
}

// RecordLoginSuccess resets the failure counter and stamps last_login_at.
func (r *PostgresRepository) RecordLoginSuccess(ctx context.Context, id int64) error {
	query := `
		UPDATE users
		SET failed_login_attempts = 0,
		    locked_until = NULL,
		    last_login_at = now(),
		    updated_at = now()
		WHERE id = $1
	`
	if _, err := r.db.ExecContext(ctx, query, id); err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}

func (r *PostgresRepository) SetPasswordHash(ctx context.Context, id int64, hash string) error {
	query := `
		UPDATE users
		SET password_hash = $2, updated_at = now()
		WHERE id = $1
		RETURNING id
	`
	var got int64
	if err := r.db.QueryRowContext(ctx, query, id, hash).Scan(&got); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return common.ErrNotFound
		}
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}

func (r *PostgresRepository) MarkActive(ctx context.Context, id int64) error {
	query := `
		UPDATE users
		SET is_active = TRUE, updated_at = now()
		WHERE id = $1
		RETURNING id
	`
	var got int64
	if err := r.db.QueryRowContext(ctx, query, id).Scan(&got); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return common.ErrNotFound
		}
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}

// Delete removes the account. Sessions and security tokens cascade; audit
// rows keep their data with the actor column nulled.
func (r *PostgresRepository) Delete(ctx context.Context, id int64) error {
	query := `DELETE FROM users WHERE id = $1 RETURNING id`
	var got int64
	if err := r.db.QueryRowContext(ctx, query, id).Scan(&got); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return common.ErrNotFound
		}
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}
