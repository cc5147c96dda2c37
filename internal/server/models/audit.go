package models

import "time"

// Audit event kinds. The set is open-ended; these are the ones the auth
// flows emit.
const (
	AuditLoginSuccess      = "login_success"
	AuditLoginFailure      = "login_failure"
	AuditLockout           = "lockout"
	AuditRegister          = "register"
	AuditActivation        = "activation"
	AuditTokenIssued       = "token_issued"
	AuditTokenConsumed     = "token_consumed"
	AuditTokenRejected     = "token_rejected"
	AuditSessionRevoked    = "session_revoked"
	AuditPasswordReset     = "password_reset_requested"
	AuditPasswordChanged   = "password_changed"
	AuditProfileUpdated    = "profile_updated"
	AuditAccountDeleted    = "account_deleted"
	AuditEmailSendFailed   = "email_send_failed"
	AuditValidationFailure = "validation_failure"
)

// AuditEvent is an append-only record of an authentication event. UserID is
// nil when no account is involved (or after the account was deleted, since
// the actor column is anonymized rather than cascaded).
type AuditEvent struct {
	ID         string
	UserID     *int64
	Kind       string
	IP         string
	UserAgent  string
	Identifier string
	Endpoint   string
	Reason     string
	CreatedAt  time.Time
}

// AuditFilter narrows an operator query. Zero values mean "any".
type AuditFilter struct {
	UserID     *int64
	Kind       string
	Identifier string
	Endpoint   string
	Since      *time.Time
	Until      *time.Time
	Limit      uint64
	Offset     uint64
}
