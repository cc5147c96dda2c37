package services

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/censusconnect/authserver/internal/common"
	"github.com/censusconnect/authserver/internal/server/config"
	"github.com/censusconnect/authserver/internal/server/models"
	"github.com/censusconnect/authserver/internal/server/repositories/repomanager"
)

// tokenRandBytes is the entropy of a raw security token; the emitted string
// is twice this many hex characters.
const tokenRandBytes = 32

// HashToken derives the stored form of a raw token. Only digests are
// persisted, so a leaked table row cannot be replayed.
func HashToken(raw string) string {
	sum := sha256.Sum256([]byte(raw))
	return hex.EncodeToString(sum[:])
}

// TokenService issues and consumes single-use security tokens for account
// activation and password reset. Expiry is lazy: stale rows are rejected at
// consume time and swept by the pruner.
type TokenService struct {
	db            *sql.DB
	repomanager   repomanager.RepositoryManager
	activationTTL time.Duration
	resetTTL      time.Duration
	now           func() time.Time
}

func NewTokenService(db *sql.DB, m repomanager.RepositoryManager, cfg *config.Config) *TokenService {
	return &TokenService{
		db:            db,
		repomanager:   m,
		activationTTL: cfg.ActivationTokenTTL,
		resetTTL:      cfg.ResetTokenTTL,
		now:           time.Now,
	}
}

func (s *TokenService) ttl(purpose string) time.Duration {
	if purpose == models.TokenPurposeReset {
		return s.resetTTL
	}
	return s.activationTTL
}

// Issue mints a fresh token for (userID, purpose) and returns the raw value.
// Any previously issued token for the same pair stops working, since only
// the newest digest is stored.
func (s *TokenService) Issue(ctx context.Context, userID int64, purpose string) (string, error) {
	raw, err := common.MakeRandHexString(tokenRandBytes)
	if err != nil {
		return "", common.ErrInternal
	}
	repo := s.repomanager.Tokens(s.db)
	if err := repo.Upsert(ctx, userID, purpose, HashToken(raw)); err != nil {
		return "", fmt.Errorf("error storing token: %w", err)
	}
	return raw, nil
}

// Consume atomically redeems a raw token and returns the owning user ID.
// A second redemption of the same value fails, as does a token older than
// its purpose's TTL. Unknown tokens yield ErrTokenInvalid, stale ones
// ErrTokenExpired.
func (s *TokenService) Consume(ctx context.Context, raw, purpose string) (int64, error) {
	repo := s.repomanager.Tokens(s.db)
	token, err := repo.Consume(ctx, HashToken(raw), purpose)
	if err != nil {
		if errors.Is(err, common.ErrNotFound) {
			return 0, common.ErrTokenInvalid
		}
		return 0, fmt.Errorf("error consuming token: %w", err)
	}
	if s.now().Sub(token.CreatedAt) > s.ttl(purpose) {
		return 0, common.ErrTokenExpired
	}
	return token.UserID, nil
}
