package domain

import "time"

// EmailStatus is the three-state account classification.
type EmailStatus string

const (
	StatusRegisteredVerified   EmailStatus = "registered_verified"
	StatusRegisteredUnverified EmailStatus = "registered_unverified"
	StatusNotRegistered        EmailStatus = "not_registered"
)

// EmailClassificationResult is computed per request and never persisted.
type EmailClassificationResult struct {
	Status        EmailStatus `json:"status"`
	VerifiedAt    *time.Time  `json:"verifiedAt"`
	LastSignInAt  *time.Time  `json:"lastSignInAt"`
	CorrelationID string      `json:"correlationId"`
	// Account is the record whose email equals the queried one, if the
	// directory returned it. Delivery targets come only from here.
	Account *DirectoryUser `json:"-"`
}

// DirectoryUser is the narrow view of a directory account used for classification.
type DirectoryUser struct {
	Email            string     `json:"email" validate:"required"`
	EmailConfirmedAt *time.Time `json:"email_confirmed_at"`
	LastSignInAt     *time.Time `json:"last_sign_in_at"`
	Phone            string     `json:"phone"`
}
