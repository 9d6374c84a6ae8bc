package http

import (
	"github.com/go-email-gate/internal/application/classifier"
	"github.com/go-email-gate/internal/application/recovery"
	"github.com/go-email-gate/internal/domain"
)

// Deps holds all infrastructure dependencies for the router.
// Directory, SMSSender and Signer may be nil.
type Deps struct {
	KVStore   domain.KVStore
	Directory classifier.Directory
	Mailer    recovery.Mailer
	SMSSender recovery.SMSSender
	Signer    recovery.Signer
}
