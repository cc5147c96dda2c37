package models

import "time"

// Throttled endpoint names, matching the seeded throttle_rules rows.
const (
	EndpointLogin         = "login"
	EndpointRegister      = "register"
	EndpointPasswordReset = "password_reset"
	EndpointActivation    = "activation"
)

// ThrottleRule is the per-endpoint policy: MaxAttempts within TimeWindow,
// then a LockoutDuration block.
type ThrottleRule struct {
	Endpoint        string
	MaxAttempts     int
	TimeWindow      time.Duration
	LockoutDuration time.Duration
}

// ThrottleDecision is the outcome of a checkAndRecord call. RetryAfter is
// only meaningful when Allowed is false.
type ThrottleDecision struct {
	Allowed    bool
	RetryAfter time.Duration
}
