package services

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/censusconnect/authserver/internal/common"
	"github.com/censusconnect/authserver/internal/dbx"
	"github.com/censusconnect/authserver/internal/logging"
	"github.com/censusconnect/authserver/internal/server/config"
	"github.com/censusconnect/authserver/internal/server/models"
	"github.com/censusconnect/authserver/internal/server/repositories/repomanager"
	"github.com/censusconnect/authserver/internal/server/security"
	"github.com/censusconnect/authserver/pkg/validator"
)

// Throttler decides whether a request to a throttled endpoint may proceed.
type Throttler interface {
	CheckAndRecord(ctx context.Context, identifier, endpoint string) (*models.ThrottleDecision, error)
}

// TokenIssuer mints and redeems single-use security tokens.
type TokenIssuer interface {
	Issue(ctx context.Context, userID int64, purpose string) (string, error)
	Consume(ctx context.Context, raw, purpose string) (int64, error)
}

// SessionManager owns the lifecycle of opaque session tokens.
type SessionManager interface {
	Create(ctx context.Context, userID int64, fp models.Fingerprint) (*models.Session, error)
	Validate(ctx context.Context, token string, fp models.Fingerprint) (*models.Session, error)
	Revoke(ctx context.Context, token string) error
	RevokeAllForUser(ctx context.Context, userID int64) (int64, error)
}

// Auditor appends events to the audit log.
type Auditor interface {
	Append(ctx context.Context, e *models.AuditEvent) error
}

// RetryAfterError reports a rejection together with the time the caller
// must wait before trying again. It unwraps to Err when set, otherwise to
// common.ErrRateLimited, so errors.Is keeps working at the HTTP boundary.
type RetryAfterError struct {
	After time.Duration
	Err   error
}

func (e *RetryAfterError) Error() string {
	return fmt.Sprintf("%v, retry after %s", e.Unwrap(), e.After)
}

func (e *RetryAfterError) Unwrap() error {
	if e.Err != nil {
		return e.Err
	}
	return common.ErrRateLimited
}

// AuthService orchestrates the authentication flows: registration,
// activation, login with per-account lockout, password reset and change,
// logout, and account deletion. Every flow first consults the throttle
// engine, then emits audit events describing the outcome.
type AuthService struct {
	db          *sql.DB
	repomanager repomanager.RepositoryManager
	hasher      *security.PasswordHasher
	validator   *validator.Validator
	throttle    Throttler
	tokens      TokenIssuer
	sessions    SessionManager
	audit       Auditor
	email       EmailSender
	log         logging.Logger

	maxFailedLogins int
	lockDuration    time.Duration
	now             func() time.Time
}

func NewAuthService(db *sql.DB, m repomanager.RepositoryManager, cfg *config.Config,
	throttle Throttler, tokens TokenIssuer, sessions SessionManager,
	audit Auditor, email EmailSender, log logging.Logger) *AuthService {
	return &AuthService{
		db:              db,
		repomanager:     m,
		hasher:          security.NewPasswordHasher(),
		validator:       validator.New(),
		throttle:        throttle,
		tokens:          tokens,
		sessions:        sessions,
		audit:           audit,
		email:           email,
		log:             log,
		maxFailedLogins: cfg.MaxFailedLogins,
		lockDuration:    cfg.AccountLockDuration,
		now:             time.Now,
	}
}

// checkThrottle runs the rate limiter for one request. Storage errors deny
// the request: the limiter fails closed. A rejection is itself a security
// event and lands in the audit log.
func (s *AuthService) checkThrottle(ctx context.Context, fp models.Fingerprint, endpoint string) error {
	decision, err := s.throttle.CheckAndRecord(ctx, fp.IP, endpoint)
	if err != nil {
		s.log.Error(ctx, "throttle check failed", "endpoint", endpoint, "error", err)
		return common.ErrInternal
	}
	if !decision.Allowed {
		s.record(ctx, s.event(models.AuditLockout, nil, fp, fp.IP, endpoint,
			fmt.Sprintf("throttled, retry after %s", decision.RetryAfter)))
		return &RetryAfterError{After: decision.RetryAfter}
	}
	return nil
}

// record appends an audit event best-effort; the main flow never fails
// because the log write did.
func (s *AuthService) record(ctx context.Context, e *models.AuditEvent) {
	if err := s.audit.Append(ctx, e); err != nil {
		s.log.Error(ctx, "audit append failed", "kind", e.Kind, "error", err)
	}
}

func (s *AuthService) event(kind string, userID *int64, fp models.Fingerprint, identifier, endpoint, reason string) *models.AuditEvent {
	return &models.AuditEvent{
		UserID:     userID,
		Kind:       kind,
		IP:         fp.IP,
		UserAgent:  fp.UserAgent,
		Identifier: identifier,
		Endpoint:   endpoint,
		Reason:     reason,
	}
}

// Register creates an inactive account and mails an activation link. The
// throttle counts every request reaching the endpoint, valid or not.
func (s *AuthService) Register(ctx context.Context, username, email, password string, fp models.Fingerprint) (*models.User, error) {
	if err := s.checkThrottle(ctx, fp, models.EndpointRegister); err != nil {
		return nil, err
	}

	username = s.validator.SanitizeString(username)
	email = s.validator.SanitizeString(email)

	if err := s.validateRegistration(username, email, password); err != nil {
		s.record(ctx, s.event(models.AuditValidationFailure, nil, fp, username, models.EndpointRegister, err.Error()))
		return nil, err
	}

	hash, err := s.hasher.Hash(password)
	if err != nil {
		return nil, common.ErrInternal
	}

	repo := s.repomanager.Users(s.db)
	user, err := repo.Create(ctx, &models.User{
		Username:     username,
		Email:        email,
		PasswordHash: hash,
	})
	if err != nil {
		if errors.Is(err, common.ErrDuplicateIdentity) {
			s.record(ctx, s.event(models.AuditValidationFailure, nil, fp, username, models.EndpointRegister, "duplicate identity"))
			return nil, common.ErrDuplicateIdentity
		}
		return nil, fmt.Errorf("error creating user: %w", err)
	}

	s.record(ctx, s.event(models.AuditRegister, &user.ID, fp, username, models.EndpointRegister, ""))

	raw, err := s.tokens.Issue(ctx, user.ID, models.TokenPurposeActivation)
	if err != nil {
		return nil, fmt.Errorf("error issuing activation token: %w", err)
	}
	s.record(ctx, s.event(models.AuditTokenIssued, &user.ID, fp, username, models.EndpointRegister, models.TokenPurposeActivation))

	s.sendMail(ctx, user, fp, "Activate your account",
		fmt.Sprintf("Hello %s,\n\nUse this token to activate your account: %s\n", user.Username, raw))

	return user, nil
}

func (s *AuthService) validateRegistration(username, email, password string) error {
	if err := s.validator.ValidateUsername(username); err != nil {
		return err
	}
	if err := s.validator.ValidateEmail(email); err != nil {
		return err
	}
	return s.validator.ValidatePassword(password)
}

// sendMail delivers best-effort. A delivery failure is logged and audited
// but does not fail the flow; the user can request a fresh token.
func (s *AuthService) sendMail(ctx context.Context, user *models.User, fp models.Fingerprint, subject, body string) {
	if err := s.email.Send(ctx, user.Email, subject, body); err != nil {
		s.log.Error(ctx, "mail delivery failed", "to", user.Email, "error", err)
		s.record(ctx, s.event(models.AuditEmailSendFailed, &user.ID, fp, user.Username, "", err.Error()))
	}
}

// Activate redeems an activation token and marks the account active.
func (s *AuthService) Activate(ctx context.Context, rawToken string, fp models.Fingerprint) error {
	if err := s.checkThrottle(ctx, fp, models.EndpointActivation); err != nil {
		return err
	}

	userID, err := s.tokens.Consume(ctx, rawToken, models.TokenPurposeActivation)
	if err != nil {
		if errors.Is(err, common.ErrTokenInvalid) || errors.Is(err, common.ErrTokenExpired) {
			s.record(ctx, s.event(models.AuditTokenRejected, nil, fp, "", models.EndpointActivation, err.Error()))
			return err
		}
		return fmt.Errorf("error consuming activation token: %w", err)
	}
	s.record(ctx, s.event(models.AuditTokenConsumed, &userID, fp, "", models.EndpointActivation, models.TokenPurposeActivation))

	repo := s.repomanager.Users(s.db)
	if err := repo.MarkActive(ctx, userID); err != nil {
		return fmt.Errorf("error activating user: %w", err)
	}
	s.record(ctx, s.event(models.AuditActivation, &userID, fp, "", models.EndpointActivation, ""))
	return nil
}

// Login verifies credentials and mints a session. Failures are
// indistinguishable to the caller; the audit log records the real reason.
func (s *AuthService) Login(ctx context.Context, username, password string, fp models.Fingerprint) (*models.Session, error) {
	if err := s.checkThrottle(ctx, fp, models.EndpointLogin); err != nil {
		return nil, err
	}

	username = s.validator.SanitizeString(username)
	repo := s.repomanager.Users(s.db)

	user, err := repo.GetByUsername(ctx, username)
	if err != nil {
		if errors.Is(err, common.ErrNotFound) {
			// Burn the same hashing work as a real check so a username
			// miss is not observable through timing.
			s.hasher.DummyVerify(password)
			s.record(ctx, s.event(models.AuditLoginFailure, nil, fp, username, models.EndpointLogin, "unknown username"))
			return nil, common.ErrInvalidCredentials
		}
		return nil, common.ErrInternal
	}

	now := s.now()
	if user.Locked(now) {
		s.record(ctx, s.event(models.AuditLoginFailure, &user.ID, fp, username, models.EndpointLogin, "account locked"))
		return nil, &RetryAfterError{After: user.LockedUntil.Sub(now), Err: common.ErrAccountLocked}
	}
	if !user.IsActive {
		s.record(ctx, s.event(models.AuditLoginFailure, &user.ID, fp, username, models.EndpointLogin, "account inactive"))
		return nil, common.ErrAccountInactive
	}

	ok, err := s.hasher.Verify(password, user.PasswordHash)
	if err != nil {
		return nil, common.ErrInternal
	}
	if !ok {
		outcome, err := repo.RecordLoginFailure(ctx, user.ID, s.maxFailedLogins, s.lockDuration)
		if err != nil {
			return nil, common.ErrInternal
		}
		s.record(ctx, s.event(models.AuditLoginFailure, &user.ID, fp, username, models.EndpointLogin, "invalid password"))
		if outcome.LockedUntil != nil && outcome.FailedAttempts >= s.maxFailedLogins {
			s.record(ctx, s.event(models.AuditLockout, &user.ID, fp, username, models.EndpointLogin,
				fmt.Sprintf("locked until %s after %d failures", outcome.LockedUntil.Format(time.RFC3339), outcome.FailedAttempts)))
		}
		return nil, common.ErrInvalidCredentials
	}

	if err := repo.RecordLoginSuccess(ctx, user.ID); err != nil {
		return nil, common.ErrInternal
	}

	session, err := s.sessions.Create(ctx, user.ID, fp)
	if err != nil {
		return nil, common.ErrInternal
	}
	s.record(ctx, s.event(models.AuditLoginSuccess, &user.ID, fp, username, models.EndpointLogin, ""))
	return session, nil
}

// User returns the account behind a validated session.
func (s *AuthService) User(ctx context.Context, userID int64) (*models.User, error) {
	user, err := s.repomanager.Users(s.db).GetByID(ctx, userID)
	if err != nil {
		if errors.Is(err, common.ErrNotFound) {
			return nil, common.ErrNotFound
		}
		return nil, common.ErrInternal
	}
	return user, nil
}

// UpdateProfile changes the account's username and email. Uniqueness is
// left to the store's constraints, so two concurrent renames to the same
// identity cannot both succeed.
func (s *AuthService) UpdateProfile(ctx context.Context, userID int64, username, email string, fp models.Fingerprint) (*models.User, error) {
	username = s.validator.SanitizeString(username)
	email = s.validator.SanitizeString(email)

	if err := s.validator.ValidateUsername(username); err != nil {
		s.record(ctx, s.event(models.AuditValidationFailure, &userID, fp, username, "update_profile", err.Error()))
		return nil, err
	}
	if err := s.validator.ValidateEmail(email); err != nil {
		s.record(ctx, s.event(models.AuditValidationFailure, &userID, fp, email, "update_profile", err.Error()))
		return nil, err
	}

	repo := s.repomanager.Users(s.db)
	if err := repo.UpdateProfile(ctx, userID, username, email); err != nil {
		if errors.Is(err, common.ErrDuplicateIdentity) {
			s.record(ctx, s.event(models.AuditValidationFailure, &userID, fp, username, "update_profile", "duplicate identity"))
			return nil, common.ErrDuplicateIdentity
		}
		return nil, common.ErrInternal
	}
	s.record(ctx, s.event(models.AuditProfileUpdated, &userID, fp, username, "update_profile", ""))

	user, err := repo.GetByID(ctx, userID)
	if err != nil {
		return nil, common.ErrInternal
	}
	return user, nil
}

// Logout revokes the presented session.
func (s *AuthService) Logout(ctx context.Context, session *models.Session, fp models.Fingerprint) error {
	if err := s.sessions.Revoke(ctx, session.Token); err != nil {
		return common.ErrInternal
	}
	s.record(ctx, s.event(models.AuditSessionRevoked, &session.UserID, fp, "", "", "logout"))
	return nil
}

// RequestPasswordReset issues a reset token when the email matches an
// account. The response is identical either way so the endpoint cannot be
// used to enumerate registered addresses.
func (s *AuthService) RequestPasswordReset(ctx context.Context, email string, fp models.Fingerprint) error {
	if err := s.checkThrottle(ctx, fp, models.EndpointPasswordReset); err != nil {
		return err
	}

	email = s.validator.SanitizeString(email)
	repo := s.repomanager.Users(s.db)

	user, err := repo.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, common.ErrNotFound) {
			s.record(ctx, s.event(models.AuditPasswordReset, nil, fp, email, models.EndpointPasswordReset, "unknown email"))
			return nil
		}
		return common.ErrInternal
	}

	raw, err := s.tokens.Issue(ctx, user.ID, models.TokenPurposeReset)
	if err != nil {
		return common.ErrInternal
	}
	s.record(ctx, s.event(models.AuditTokenIssued, &user.ID, fp, email, models.EndpointPasswordReset, models.TokenPurposeReset))

	s.sendMail(ctx, user, fp, "Password reset",
		fmt.Sprintf("Hello %s,\n\nUse this token to reset your password: %s\n", user.Username, raw))

	s.record(ctx, s.event(models.AuditPasswordReset, &user.ID, fp, email, models.EndpointPasswordReset, ""))
	return nil
}

// ResetPassword redeems a reset token, sets the new password, and revokes
// every live session of the account.
func (s *AuthService) ResetPassword(ctx context.Context, rawToken, newPassword string, fp models.Fingerprint) error {
	if err := s.checkThrottle(ctx, fp, models.EndpointPasswordReset); err != nil {
		return err
	}

	if err := s.validator.ValidatePassword(newPassword); err != nil {
		s.record(ctx, s.event(models.AuditValidationFailure, nil, fp, "", models.EndpointPasswordReset, err.Error()))
		return err
	}

	userID, err := s.tokens.Consume(ctx, rawToken, models.TokenPurposeReset)
	if err != nil {
		if errors.Is(err, common.ErrTokenInvalid) || errors.Is(err, common.ErrTokenExpired) {
			s.record(ctx, s.event(models.AuditTokenRejected, nil, fp, "", models.EndpointPasswordReset, err.Error()))
			return err
		}
		return common.ErrInternal
	}
	s.record(ctx, s.event(models.AuditTokenConsumed, &userID, fp, "", models.EndpointPasswordReset, models.TokenPurposeReset))

	return s.setPassword(ctx, userID, newPassword, fp)
}

// ChangePassword verifies the current password before setting a new one.
// All sessions are revoked afterwards, including the caller's.
func (s *AuthService) ChangePassword(ctx context.Context, userID int64, current, newPassword string, fp models.Fingerprint) error {
	repo := s.repomanager.Users(s.db)
	user, err := repo.GetByID(ctx, userID)
	if err != nil {
		return common.ErrInternal
	}

	ok, err := s.hasher.Verify(current, user.PasswordHash)
	if err != nil {
		return common.ErrInternal
	}
	if !ok {
		s.record(ctx, s.event(models.AuditLoginFailure, &userID, fp, user.Username, "change_password", "current password mismatch"))
		return common.ErrInvalidCredentials
	}

	if err := s.validator.ValidatePassword(newPassword); err != nil {
		s.record(ctx, s.event(models.AuditValidationFailure, &userID, fp, user.Username, "change_password", err.Error()))
		return err
	}

	return s.setPassword(ctx, userID, newPassword, fp)
}

func (s *AuthService) setPassword(ctx context.Context, userID int64, newPassword string, fp models.Fingerprint) error {
	hash, err := s.hasher.Hash(newPassword)
	if err != nil {
		return common.ErrInternal
	}

	repo := s.repomanager.Users(s.db)
	if err := repo.SetPasswordHash(ctx, userID, hash); err != nil {
		return common.ErrInternal
	}

	revoked, err := s.sessions.RevokeAllForUser(ctx, userID)
	if err != nil {
		return common.ErrInternal
	}
	if revoked > 0 {
		s.record(ctx, s.event(models.AuditSessionRevoked, &userID, fp, "", "",
			fmt.Sprintf("%d sessions revoked after password change", revoked)))
	}
	s.record(ctx, s.event(models.AuditPasswordChanged, &userID, fp, "", "", ""))
	return nil
}

// DeleteAccount removes the account after re-verifying the password. The
// deletion event is written in the same transaction as the delete; the
// foreign key anonymizes the actor column instead of cascading, so the
// trail survives the account.
func (s *AuthService) DeleteAccount(ctx context.Context, userID int64, password string, fp models.Fingerprint) error {
	repo := s.repomanager.Users(s.db)
	user, err := repo.GetByID(ctx, userID)
	if err != nil {
		return common.ErrInternal
	}

	ok, err := s.hasher.Verify(password, user.PasswordHash)
	if err != nil {
		return common.ErrInternal
	}
	if !ok {
		s.record(ctx, s.event(models.AuditLoginFailure, &userID, fp, user.Username, "delete_account", "password mismatch"))
		return common.ErrInvalidCredentials
	}

	err = dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		e := s.event(models.AuditAccountDeleted, &userID, fp, user.Username, "delete_account", "")
		e.ID = uuid.NewString()
		e.CreatedAt = s.now()
		if err := s.repomanager.Audit(tx).Append(ctx, e); err != nil {
			return err
		}
		return s.repomanager.Users(tx).Delete(ctx, userID)
	})
	if err != nil {
		return common.ErrInternal
	}
	return nil
}
