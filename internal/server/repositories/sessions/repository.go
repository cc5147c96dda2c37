package sessions

import (
	"context"
	"time"

	"github.com/censusconnect/authserver/internal/server/models"
)

type Repository interface {
	Create(ctx context.Context, userID int64, token string, fp models.Fingerprint, expiresAt time.Time) (*models.Session, error)
	Find(ctx context.Context, token string) (*models.Session, error)
	Revoke(ctx context.Context, token string) error
	RevokeAllForUser(ctx context.Context, userID int64) (int64, error)
	DeleteExpired(ctx context.Context, before time.Time) (int64, error)
}
