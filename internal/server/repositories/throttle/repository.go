package throttle

import (
	"context"
	"time"

	"github.com/censusconnect/authserver/internal/server/models"
)

type Repository interface {
	GetRule(ctx context.Context, endpoint string) (*models.ThrottleRule, error)
	// LockKey serializes concurrent checks for one (identifier, endpoint)
	// and returns the current lockout deadline, if any. Must be called
	// inside a transaction.
	LockKey(ctx context.Context, identifier, endpoint string) (*time.Time, error)
	CountRecent(ctx context.Context, identifier, endpoint string, since time.Time) (int, error)
	RecordAttempt(ctx context.Context, identifier, endpoint string, blocked bool, at time.Time) error
	SetBlockedUntil(ctx context.Context, identifier, endpoint string, until time.Time) error
	DeleteOldAttempts(ctx context.Context, before time.Time) (int64, error)
}
