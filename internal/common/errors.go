// Package common defines shared constants and sentinel errors used across
// the auth subsystem. Callers should use errors.Is to match these values.
package common

import "errors"

var (
	// Repository-level errors.
	ErrNotFound = errors.New("not found")

	// Service-level errors (generic/internal flow control).
	ErrInternal   = errors.New("internal error")
	ErrValidation = errors.New("validation error")

	// Registration errors. Duplicate identity is user-visible and specific.
	ErrDuplicateIdentity = errors.New("username or email already in use")

	// Login errors. InvalidCredentials never reveals whether the username
	// or the password was wrong; the detail goes to the audit log only.
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrAccountInactive    = errors.New("account not activated")
	ErrAccountLocked      = errors.New("account temporarily locked")
	ErrRateLimited        = errors.New("rate limit exceeded")

	// Security-token errors. Expired and not-found are collapsed to
	// ErrTokenInvalid at the boundary.
	ErrTokenInvalid = errors.New("token invalid or expired")
	ErrTokenExpired = errors.New("token expired")

	// Session errors. All three collapse to "please log in again" outward.
	ErrSessionExpired      = errors.New("session expired")
	ErrSessionRevoked      = errors.New("session revoked")
	ErrFingerprintMismatch = errors.New("session fingerprint mismatch")
)
