package services

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/censusconnect/authserver/internal/common"
	"github.com/censusconnect/authserver/internal/server/config"
	"github.com/censusconnect/authserver/internal/server/models"
	"github.com/censusconnect/authserver/internal/server/repositories/repomanager"
)

// sessionRandBytes is the entropy of an opaque session token.
const sessionRandBytes = 32

// SessionService manages server-stored opaque session tokens. Tokens carry
// no claims; every request resolves against the sessions table, so
// revocation is immediate.
type SessionService struct {
	db          *sql.DB
	repomanager repomanager.RepositoryManager
	sessionTTL  time.Duration
	now         func() time.Time
}

func NewSessionService(db *sql.DB, m repomanager.RepositoryManager, cfg *config.Config) *SessionService {
	return &SessionService{
		db:          db,
		repomanager: m,
		sessionTTL:  cfg.SessionTTL,
		now:         time.Now,
	}
}

// Create mints a session bound to the client fingerprint.
func (s *SessionService) Create(ctx context.Context, userID int64, fp models.Fingerprint) (*models.Session, error) {
	token, err := common.MakeRandHexString(sessionRandBytes)
	if err != nil {
		return nil, common.ErrInternal
	}
	repo := s.repomanager.Sessions(s.db)
	session, err := repo.Create(ctx, userID, token, fp, s.now().Add(s.sessionTTL))
	if err != nil {
		return nil, fmt.Errorf("error creating session: %w", err)
	}
	return session, nil
}

// Validate resolves a presented token. The fingerprint must match the one
// captured at login; a mismatch is treated as a stolen token and rejected
// outright.
func (s *SessionService) Validate(ctx context.Context, token string, fp models.Fingerprint) (*models.Session, error) {
	repo := s.repomanager.Sessions(s.db)
	session, err := repo.Find(ctx, token)
	if err != nil {
		if errors.Is(err, common.ErrNotFound) {
			return nil, common.ErrTokenInvalid
		}
		return nil, fmt.Errorf("error finding session: %w", err)
	}
	if session.Revoked {
		return nil, common.ErrSessionRevoked
	}
	if !s.now().Before(session.ExpiresAt) {
		return nil, common.ErrSessionExpired
	}
	if session.Fingerprint.IP != fp.IP || session.Fingerprint.UserAgent != fp.UserAgent {
		return nil, common.ErrFingerprintMismatch
	}
	return session, nil
}

// Revoke invalidates one session by token.
func (s *SessionService) Revoke(ctx context.Context, token string) error {
	repo := s.repomanager.Sessions(s.db)
	if err := repo.Revoke(ctx, token); err != nil {
		return fmt.Errorf("error revoking session: %w", err)
	}
	return nil
}

// RevokeAllForUser invalidates every live session of a user and returns how
// many were affected. Used after password changes.
func (s *SessionService) RevokeAllForUser(ctx context.Context, userID int64) (int64, error) {
	repo := s.repomanager.Sessions(s.db)
	n, err := repo.RevokeAllForUser(ctx, userID)
	if err != nil {
		return 0, fmt.Errorf("error revoking sessions: %w", err)
	}
	return n, nil
}
