package classifier

import (
	"context"
	"errors"
	"log/slog"
	"strings"

	"github.com/go-email-gate/internal/domain"
)

// PageSize is the most directory records one lookup may return. Two is enough
// to tell "found" from "ambiguous" without pulling unrelated accounts.
const PageSize = 2

// Directory looks up accounts by a substring filter on email.
type Directory interface {
	ListUsers(ctx context.Context, filter string, perPage int) ([]domain.DirectoryUser, error)
}

// Service maps an email address to one of three account states.
type Service interface {
	Classify(ctx context.Context, email, correlationID string) (*domain.EmailClassificationResult, error)
}

type service struct {
	directory Directory
}

// NewService accepts a nil directory; every call then fails with server_config.
func NewService(directory Directory) Service {
	return &service{directory: directory}
}

// NormalizeEmail trims and lowercases an address.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func (s *service) Classify(ctx context.Context, email, correlationID string) (*domain.EmailClassificationResult, error) {
	if s.directory == nil {
		return nil, domain.NewServerConfigError(errors.New("user directory not configured"))
	}
	normalized := NormalizeEmail(email)

	users, err := s.directory.ListUsers(ctx, normalized, PageSize)
	if err != nil {
		ce := domain.NewDirectoryQueryError(err)
		slog.Error("directory lookup failed",
			"correlation_id", correlationID,
			"upstream_code", ce.UpstreamCode,
			"upstream_message", ce.UpstreamMessage,
			"err", err)
		return nil, ce
	}

	if len(users) > 1 {
		slog.Warn("ambiguous directory match", "correlation_id", correlationID, "matches", len(users))
	}

	res := &domain.EmailClassificationResult{Status: domain.StatusNotRegistered, CorrelationID: correlationID}
	if len(users) == 0 {
		return res, nil
	}
	for i := range users {
		if NormalizeEmail(users[i].Email) == normalized {
			res.Account = &users[i]
			break
		}
	}
	for _, u := range users {
		if u.EmailConfirmedAt != nil {
			res.Status = domain.StatusRegisteredVerified
			res.VerifiedAt = u.EmailConfirmedAt
			res.LastSignInAt = u.LastSignInAt
			return res, nil
		}
	}
	res.Status = domain.StatusRegisteredUnverified
	res.LastSignInAt = users[0].LastSignInAt
	return res, nil
}
