package users

import (
	"context"
	"time"

	"github.com/censusconnect/authserver/internal/server/models"
)

// LoginOutcome is what an atomic failure update reports back: the counter
// value after the increment and the lockout deadline, if one is now set.
type LoginOutcome struct {
	FailedAttempts int
	LockedUntil    *time.Time
}

type Repository interface {
	Create(ctx context.Context, user *models.User) (*models.User, error)
	GetByID(ctx context.Context, id int64) (*models.User, error)
	GetByUsername(ctx context.Context, username string) (*models.User, error)
	GetByEmail(ctx context.Context, email string) (*models.User, error)
	UpdateProfile(ctx context.Context, id int64, username, email string) error
	RecordLoginFailure(ctx context.Context, id int64, threshold int, lockout time.Duration) (*LoginOutcome, error)
	RecordLoginSuccess(ctx context.Context, id int64) error
	SetPasswordHash(ctx context.Context, id int64, hash string) error
	MarkActive(ctx context.Context, id int64) error
	Delete(ctx context.Context, id int64) error
}
