package models

import "time"

// Purposes for single-use security tokens. At most one live token exists per
// (user, purpose); issuing a new one overwrites the prior value.
const (
	TokenPurposeActivation = "activation"
	TokenPurposeReset      = "reset"
)

// SecurityToken is the stored form of a single-use token. Only a SHA-256
// digest of the random value is persisted.
type SecurityToken struct {
	UserID    int64
	Purpose   string
	TokenHash string
	CreatedAt time.Time
}
