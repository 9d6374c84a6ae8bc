package domain

import "time"

// RateLimitWindow is the persisted per-identity counter.
type RateLimitWindow struct {
	Count           int       `json:"count"`
	WindowStartedAt time.Time `json:"windowStartedAt"`
}

// RateLimitDecision is the outcome of one recorded hit.
type RateLimitDecision struct {
	Allowed    bool
	Count      int
	Remaining  int
	RetryAfter time.Duration
	// Degraded is set when the CAS loop gave up and the hit was let through unaccounted.
	Degraded bool
}
