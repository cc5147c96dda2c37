package tokens

import (
	"context"
	"time"

	"github.com/censusconnect/authserver/internal/server/models"
)

type Repository interface {
	Upsert(ctx context.Context, userID int64, purpose, tokenHash string) error
	Consume(ctx context.Context, tokenHash, purpose string) (*models.SecurityToken, error)
	DeleteExpired(ctx context.Context, purpose string, before time.Time) (int64, error)
}
