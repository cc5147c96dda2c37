package models

import "time"

// Fingerprint is the client-identifying metadata bound to a session at
// creation time.
type Fingerprint struct {
	IP        string
	UserAgent string
}

// Session is a server-stored opaque login token. A session is valid iff
// !Revoked && now < ExpiresAt.
type Session struct {
	ID          int64
	UserID      int64
	Token       string
	Fingerprint Fingerprint
	CreatedAt   time.Time
	ExpiresAt   time.Time
	Revoked     bool
}
