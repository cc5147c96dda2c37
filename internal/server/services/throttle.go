package services

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/censusconnect/authserver/internal/common"
	"github.com/censusconnect/authserver/internal/dbx"
	"github.com/censusconnect/authserver/internal/server/models"
	"github.com/censusconnect/authserver/internal/server/repositories/repomanager"
)

// ThrottleService enforces per-endpoint rate limits with database-backed
// sliding windows. All state lives in PostgreSQL so limits hold across
// server instances.
type ThrottleService struct {
	db          *sql.DB
	repomanager repomanager.RepositoryManager
	now         func() time.Time
}

func NewThrottleService(db *sql.DB, m repomanager.RepositoryManager) *ThrottleService {
	return &ThrottleService{db: db, repomanager: m, now: time.Now}
}

// CheckAndRecord decides whether one call to endpoint by identifier may
// proceed, and logs the attempt either way. The whole check runs in one
// transaction holding a row lock on the (identifier, endpoint) key, so
// concurrent calls for the same key serialize and the window count stays
// exact.
//
// Attempts made while a lockout is active are recorded as blocked but do
// not count toward the window, so probing during a lockout never extends it.
// Endpoints without a configured rule are always allowed and not recorded.
//
// On storage errors the caller must treat the request as denied.
func (s *ThrottleService) CheckAndRecord(ctx context.Context, identifier, endpoint string) (*models.ThrottleDecision, error) {
	decision := &models.ThrottleDecision{}

	err := dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		repo := s.repomanager.Throttle(tx)

		rule, err := repo.GetRule(ctx, endpoint)
		if err != nil {
			if errors.Is(err, common.ErrNotFound) {
				decision.Allowed = true
				return nil
			}
			return fmt.Errorf("error loading throttle rule: %w", err)
		}

		now := s.now()

		until, err := repo.LockKey(ctx, identifier, endpoint)
		if err != nil {
			return fmt.Errorf("error locking throttle key: %w", err)
		}

		if until != nil && until.After(now) {
			if err := repo.RecordAttempt(ctx, identifier, endpoint, true, now); err != nil {
				return fmt.Errorf("error recording blocked attempt: %w", err)
			}
			decision.Allowed = false
			decision.RetryAfter = until.Sub(now)
			return nil
		}

		count, err := repo.CountRecent(ctx, identifier, endpoint, now.Add(-rule.TimeWindow))
		if err != nil {
			return fmt.Errorf("error counting attempts: %w", err)
		}

		if count >= rule.MaxAttempts {
			deadline := now.Add(rule.LockoutDuration)
			if err := repo.SetBlockedUntil(ctx, identifier, endpoint, deadline); err != nil {
				return fmt.Errorf("error setting lockout: %w", err)
			}
			if err := repo.RecordAttempt(ctx, identifier, endpoint, true, now); err != nil {
				return fmt.Errorf("error recording blocked attempt: %w", err)
			}
			decision.Allowed = false
			decision.RetryAfter = rule.LockoutDuration
			return nil
		}

		if err := repo.RecordAttempt(ctx, identifier, endpoint, false, now); err != nil {
			return fmt.Errorf("error recording attempt: %w", err)
		}
		decision.Allowed = true
		return nil
	})
	if err != nil {
		return nil, err
	}
	return decision, nil
}
