package services

import (
	"context"
	"database/sql"
	"fmt"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"

	"github.com/censusconnect/authserver/internal/common"
	"github.com/censusconnect/authserver/internal/dbx"
	"github.com/censusconnect/authserver/internal/logging"
	"github.com/censusconnect/authserver/internal/server/models"
	auditrepo "github.com/censusconnect/authserver/internal/server/repositories/audit"
	sessionsrepo "github.com/censusconnect/authserver/internal/server/repositories/sessions"
	throttlerepo "github.com/censusconnect/authserver/internal/server/repositories/throttle"
	tokensrepo "github.com/censusconnect/authserver/internal/server/repositories/tokens"
	usersrepo "github.com/censusconnect/authserver/internal/server/repositories/users"
)

// --- helpers ---

func newSQLMockDB(t *testing.T) (*sql.DB, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New error: %v", err)
	}
	return db, mock
}

type nopLogger struct{}

func (nopLogger) Info(ctx context.Context, msg string, args ...any)  {}
func (nopLogger) Warn(ctx context.Context, msg string, args ...any)  {}
func (nopLogger) Error(ctx context.Context, msg string, args ...any) {}
func (nopLogger) With(args ...any) logging.Logger                    { return nopLogger{} }

// --- fake repositories ---

type fakeUsersRepo struct {
	byUsername map[string]*models.User
	byEmail    map[string]*models.User
	byID       map[int64]*models.User

	createOut *models.User
	createErr error

	failureOut *usersrepo.LoginOutcome
	failureErr error

	successCalls []int64
	setHashCalls map[int64]string
	activeCalls  []int64
	deleteCalls  []int64

	profileCalls []int64
	profileErr   error
}

func newFakeUsersRepo() *fakeUsersRepo {
	return &fakeUsersRepo{
		byUsername:   map[string]*models.User{},
		byEmail:      map[string]*models.User{},
		byID:         map[int64]*models.User{},
		setHashCalls: map[int64]string{},
	}
}

func (f *fakeUsersRepo) add(u *models.User) {
	f.byUsername[u.Username] = u
	f.byEmail[u.Email] = u
	f.byID[u.ID] = u
}

func (f *fakeUsersRepo) Create(ctx context.Context, u *models.User) (*models.User, error) {
	if f.createErr != nil {
		return nil, f.createErr
	}
	if f.createOut != nil {
		return f.createOut, nil
	}
	u.ID = int64(len(f.byID) + 1)
	f.add(u)
	return u, nil
}

func (f *fakeUsersRepo) GetByID(ctx context.Context, id int64) (*models.User, error) {
	if u, ok := f.byID[id]; ok {
		return u, nil
	}
	return nil, common.ErrNotFound
}

func (f *fakeUsersRepo) GetByUsername(ctx context.Context, username string) (*models.User, error) {
	if u, ok := f.byUsername[username]; ok {
		return u, nil
	}
	return nil, common.ErrNotFound
}

func (f *fakeUsersRepo) GetByEmail(ctx context.Context, email string) (*models.User, error) {
	if u, ok := f.byEmail[email]; ok {
		return u, nil
	}
	return nil, common.ErrNotFound
}

func (f *fakeUsersRepo) UpdateProfile(ctx context.Context, id int64, username, email string) error {
	if f.profileErr != nil {
		return f.profileErr
	}
	f.profileCalls = append(f.profileCalls, id)
	if u, ok := f.byID[id]; ok {
		u.Username = username
		u.Email = email
	}
	return nil
}

func (f *fakeUsersRepo) RecordLoginFailure(ctx context.Context, id int64, threshold int, lockout time.Duration) (*usersrepo.LoginOutcome, error) {
	if f.failureErr != nil {
		return nil, f.failureErr
	}
	if f.failureOut != nil {
		return f.failureOut, nil
	}
	return &usersrepo.LoginOutcome{FailedAttempts: 1}, nil
}

func (f *fakeUsersRepo) RecordLoginSuccess(ctx context.Context, id int64) error {
	f.successCalls = append(f.successCalls, id)
	return nil
}

func (f *fakeUsersRepo) SetPasswordHash(ctx context.Context, id int64, hash string) error {
	f.setHashCalls[id] = hash
	return nil
}

func (f *fakeUsersRepo) MarkActive(ctx context.Context, id int64) error {
	f.activeCalls = append(f.activeCalls, id)
	if u, ok := f.byID[id]; ok {
		u.IsActive = true
	}
	return nil
}

func (f *fakeUsersRepo) Delete(ctx context.Context, id int64) error {
	f.deleteCalls = append(f.deleteCalls, id)
	return nil
}

type fakeSessionsRepo struct {
	createOut *models.Session
	createErr error

	findOut *models.Session
	findErr error

	revokeCalls    []string
	revokeAllCalls []int64
	revokeAllOut   int64

	deletedBefore []time.Time
}

func (f *fakeSessionsRepo) Create(ctx context.Context, userID int64, token string, fp models.Fingerprint, expiresAt time.Time) (*models.Session, error) {
	if f.createErr != nil {
		return nil, f.createErr
	}
	if f.createOut != nil {
		return f.createOut, nil
	}
	return &models.Session{UserID: userID, Token: token, Fingerprint: fp, ExpiresAt: expiresAt}, nil
}

func (f *fakeSessionsRepo) Find(ctx context.Context, token string) (*models.Session, error) {
	if f.findErr != nil {
		return nil, f.findErr
	}
	return f.findOut, nil
}

func (f *fakeSessionsRepo) Revoke(ctx context.Context, token string) error {
	f.revokeCalls = append(f.revokeCalls, token)
	return nil
}

func (f *fakeSessionsRepo) RevokeAllForUser(ctx context.Context, userID int64) (int64, error) {
	f.revokeAllCalls = append(f.revokeAllCalls, userID)
	return f.revokeAllOut, nil
}

func (f *fakeSessionsRepo) DeleteExpired(ctx context.Context, before time.Time) (int64, error) {
	f.deletedBefore = append(f.deletedBefore, before)
	return 0, nil
}

// fakeTokensRepo mirrors the store's semantics: one live token per
// (user, purpose), and consuming removes the row.
type fakeTokensRepo struct {
	tokens map[string]*models.SecurityToken // keyed by userID|purpose

	deletedPurposes []string
}

func newFakeTokensRepo() *fakeTokensRepo {
	return &fakeTokensRepo{tokens: map[string]*models.SecurityToken{}}
}

func tokenKey(userID int64, purpose string) string {
	return fmt.Sprintf("%d|%s", userID, purpose)
}

func (f *fakeTokensRepo) Upsert(ctx context.Context, userID int64, purpose, tokenHash string) error {
	f.tokens[tokenKey(userID, purpose)] = &models.SecurityToken{
		UserID:    userID,
		Purpose:   purpose,
		TokenHash: tokenHash,
		CreatedAt: time.Now(),
	}
	return nil
}

func (f *fakeTokensRepo) Consume(ctx context.Context, tokenHash, purpose string) (*models.SecurityToken, error) {
	for key, tok := range f.tokens {
		if tok.TokenHash == tokenHash && tok.Purpose == purpose {
			delete(f.tokens, key)
			return tok, nil
		}
	}
	return nil, common.ErrNotFound
}

func (f *fakeTokensRepo) DeleteExpired(ctx context.Context, purpose string, before time.Time) (int64, error) {
	f.deletedPurposes = append(f.deletedPurposes, purpose)
	return 0, nil
}

type fakeAuditRepo struct {
	events   []*models.AuditEvent
	queryOut []models.AuditEvent

	appendErr error
}

func (f *fakeAuditRepo) Append(ctx context.Context, e *models.AuditEvent) error {
	if f.appendErr != nil {
		return f.appendErr
	}
	f.events = append(f.events, e)
	return nil
}

func (f *fakeAuditRepo) Query(ctx context.Context, filter models.AuditFilter) ([]models.AuditEvent, error) {
	return f.queryOut, nil
}

func (f *fakeAuditRepo) kinds() []string {
	var out []string
	for _, e := range f.events {
		out = append(out, e.Kind)
	}
	return out
}

type fakeThrottleRepo struct {
	rule    *models.ThrottleRule
	ruleErr error

	lockUntil *time.Time
	lockErr   error

	count    int
	countErr error

	attempts []bool // blocked flags, in order

	blockedUntil  *time.Time
	deletedBefore []time.Time
}

func (f *fakeThrottleRepo) GetRule(ctx context.Context, endpoint string) (*models.ThrottleRule, error) {
	if f.ruleErr != nil {
		return nil, f.ruleErr
	}
	return f.rule, nil
}

func (f *fakeThrottleRepo) LockKey(ctx context.Context, identifier, endpoint string) (*time.Time, error) {
	if f.lockErr != nil {
		return nil, f.lockErr
	}
	return f.lockUntil, nil
}

func (f *fakeThrottleRepo) CountRecent(ctx context.Context, identifier, endpoint string, since time.Time) (int, error) {
	if f.countErr != nil {
		return 0, f.countErr
	}
	return f.count, nil
}

func (f *fakeThrottleRepo) RecordAttempt(ctx context.Context, identifier, endpoint string, blocked bool, at time.Time) error {
	f.attempts = append(f.attempts, blocked)
	return nil
}

func (f *fakeThrottleRepo) SetBlockedUntil(ctx context.Context, identifier, endpoint string, until time.Time) error {
	f.blockedUntil = &until
	return nil
}

func (f *fakeThrottleRepo) DeleteOldAttempts(ctx context.Context, before time.Time) (int64, error) {
	f.deletedBefore = append(f.deletedBefore, before)
	return 0, nil
}

// --- fake repository manager ---

type fakeRepoManager struct {
	users    *fakeUsersRepo
	sessions *fakeSessionsRepo
	tokens   *fakeTokensRepo
	audit    *fakeAuditRepo
	throttle *fakeThrottleRepo
}

func (m *fakeRepoManager) RunMigrations(context.Context, *sql.DB) error { return nil }
func (m *fakeRepoManager) Users(db dbx.DBTX) usersrepo.Repository       { return m.users }
func (m *fakeRepoManager) Sessions(db dbx.DBTX) sessionsrepo.Repository { return m.sessions }
func (m *fakeRepoManager) Tokens(db dbx.DBTX) tokensrepo.Repository     { return m.tokens }
func (m *fakeRepoManager) Audit(db dbx.DBTX) auditrepo.Repository       { return m.audit }
func (m *fakeRepoManager) Throttle(db dbx.DBTX) throttlerepo.Repository { return m.throttle }

// --- fake service-level collaborators ---

type fakeThrottler struct {
	decision *models.ThrottleDecision
	err      error
	calls    []string // endpoints, in order
}

func (f *fakeThrottler) CheckAndRecord(ctx context.Context, identifier, endpoint string) (*models.ThrottleDecision, error) {
	f.calls = append(f.calls, endpoint)
	if f.err != nil {
		return nil, f.err
	}
	if f.decision != nil {
		return f.decision, nil
	}
	return &models.ThrottleDecision{Allowed: true}, nil
}

type fakeTokenIssuer struct {
	issueOut string
	issueErr error

	consumeOut int64
	consumeErr error

	issuedPurposes []string
}

func (f *fakeTokenIssuer) Issue(ctx context.Context, userID int64, purpose string) (string, error) {
	f.issuedPurposes = append(f.issuedPurposes, purpose)
	if f.issueErr != nil {
		return "", f.issueErr
	}
	return f.issueOut, nil
}

func (f *fakeTokenIssuer) Consume(ctx context.Context, raw, purpose string) (int64, error) {
	if f.consumeErr != nil {
		return 0, f.consumeErr
	}
	return f.consumeOut, nil
}

type fakeSessionManager struct {
	createOut *models.Session
	createErr error

	revokeCalls    []string
	revokeAllCalls []int64
	revokeAllOut   int64
}

func (f *fakeSessionManager) Create(ctx context.Context, userID int64, fp models.Fingerprint) (*models.Session, error) {
	if f.createErr != nil {
		return nil, f.createErr
	}
	if f.createOut != nil {
		return f.createOut, nil
	}
	return &models.Session{UserID: userID, Token: "sess-token", Fingerprint: fp}, nil
}

func (f *fakeSessionManager) Validate(ctx context.Context, token string, fp models.Fingerprint) (*models.Session, error) {
	return nil, common.ErrNotFound
}

func (f *fakeSessionManager) Revoke(ctx context.Context, token string) error {
	f.revokeCalls = append(f.revokeCalls, token)
	return nil
}

func (f *fakeSessionManager) RevokeAllForUser(ctx context.Context, userID int64) (int64, error) {
	f.revokeAllCalls = append(f.revokeAllCalls, userID)
	return f.revokeAllOut, nil
}

type fakeSender struct {
	sent []string // recipients
	err  error
}

func (f *fakeSender) Send(ctx context.Context, to, subject, body string) error {
	if f.err != nil {
		return f.err
	}
	f.sent = append(f.sent, to)
	return nil
}
