package models

import "time"

// User is a persisted account record. LockedUntil being nil or in the past
// means login attempts are permitted; IsActive=false blocks login regardless
// of the lockout state.
type User struct {
	ID                  int64
	Username            string
	Email               string
	PasswordHash        string
	IsActive            bool
	IsAdmin             bool
	FailedLoginAttempts int
	LastFailedLogin     *time.Time
	LockedUntil         *time.Time
	CreatedAt           time.Time
	UpdatedAt           time.Time
	LastLoginAt         *time.Time
}

// Locked reports whether the account-level lockout is in effect at now.
func (u *User) Locked(now time.Time) bool {
	return u.LockedUntil != nil && u.LockedUntil.After(now)
}
