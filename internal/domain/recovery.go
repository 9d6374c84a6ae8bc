package domain

import "time"

// RecoveryRecord is the persisted half of a verification code. The plaintext
// code is never stored.
type RecoveryRecord struct {
	Hash          []byte     `json:"hash"`
	Salt          []byte     `json:"salt"`
	ExpiresAt     time.Time  `json:"expiresAt"`
	CorrelationID string     `json:"correlationId"`
	Attempts      int        `json:"attempts"`
	ConsumedAt    *time.Time `json:"consumedAt,omitempty"`
}

// IssuedCode is what the issuance flow hands back to its caller. Code and
// Channel are empty when nothing was sent; the JSON form is identical either way.
type IssuedCode struct {
	Code          string    `json:"-"`
	Hash          []byte    `json:"-"`
	Salt          []byte    `json:"-"`
	ExpiresAt     time.Time `json:"expiresAt"`
	Channel       string    `json:"-"`
	CorrelationID string    `json:"correlationId"`
}

// VerifyResult is returned for an accepted code.
type VerifyResult struct {
	Email         string    `json:"email"`
	VerifiedAt    time.Time `json:"verifiedAt"`
	RecoveryToken string    `json:"recoveryToken,omitempty"`
	CorrelationID string    `json:"correlationId"`
}
