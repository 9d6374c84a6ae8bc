package recovery

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/go-email-gate/internal/application/classifier"
	"github.com/go-email-gate/internal/domain"
	"github.com/go-email-gate/internal/pkg/code"
)

const (
	ChannelEmail = "email"
	ChannelSMS   = "sms"

	maxCASRetries = 3
	emailSubject  = "Your recovery code"

	// How long a record is kept after its code expires.
	retentionAfterExpiry = 10 * time.Minute
)

// IssueRequest names the account and the preferred channel. Destinations are
// read from the account record, never from the request.
type IssueRequest struct {
	Email         string `json:"email" validate:"required,email"`
	Channel       string `json:"channel" validate:"omitempty,oneof=email sms"`
	CorrelationID string `json:"-"`
}

type VerifyRequest struct {
	Email         string `json:"email" validate:"required,email"`
	Code          string `json:"code" validate:"required"`
	CorrelationID string `json:"-"`
}

// Mailer delivers the code by email.
type Mailer interface {
	SendEmail(ctx context.Context, to, subject, body string) error
}

// SMSSender delivers the code by SMS.
type SMSSender interface {
	SendSMS(ctx context.Context, to, message string) error
}

// Signer issues the grant returned after a successful verification.
type Signer interface {
	Sign(email, correlationID string) (string, error)
}

type Service interface {
	Issue(ctx context.Context, req IssueRequest) (*domain.IssuedCode, error)
	Verify(ctx context.Context, req VerifyRequest) (*domain.VerifyResult, error)
}

// ServiceDeps groups the collaborators. SMSSender and Signer are optional.
type ServiceDeps struct {
	Classifier classifier.Service
	Store      domain.KVStore
	Mailer     Mailer
	SMSSender  SMSSender
	Signer     Signer
	Now        func() time.Time
}

type service struct {
	classifier classifier.Service
	store      domain.KVStore
	mailer     Mailer
	sms        SMSSender
	signer     Signer
	now        func() time.Time
}

func NewService(d ServiceDeps) Service {
	now := d.Now
	if now == nil {
		now = time.Now
	}
	return &service{
		classifier: d.Classifier,
		store:      d.Store,
		mailer:     d.Mailer,
		sms:        d.SMSSender,
		signer:     d.Signer,
		now:        now,
	}
}

// Key returns the KV key of the recovery record for email.
func Key(email string) string {
	return "recovery:" + classifier.NormalizeEmail(email)
}

func (s *service) Issue(ctx context.Context, req IssueRequest) (*domain.IssuedCode, error) {
	email := classifier.NormalizeEmail(req.Email)
	res, err := s.classifier.Classify(ctx, email, req.CorrelationID)
	if err != nil {
		return nil, err
	}

	now := s.now()
	issued := &domain.IssuedCode{
		ExpiresAt:     code.CalculateExpiry(now),
		CorrelationID: req.CorrelationID,
	}

	// Unknown addresses get the same answer and nothing is stored or sent.
	// So do partial directory hits: a code is only ever sent to the account
	// whose email is exactly the one requested.
	if res.Status == domain.StatusNotRegistered || res.Account == nil {
		slog.Info("recovery code requested without a matching account", "correlation_id", req.CorrelationID)
		return issued, nil
	}

	plain, err := code.Generate()
	if err != nil {
		return nil, err
	}
	salt, err := code.GenerateSalt()
	if err != nil {
		return nil, err
	}
	hash := code.Hash(plain, salt)

	rec := domain.RecoveryRecord{
		Hash:          hash,
		Salt:          salt,
		ExpiresAt:     issued.ExpiresAt,
		CorrelationID: req.CorrelationID,
	}
	if err := s.replace(ctx, Key(email), rec, now); err != nil {
		return nil, err
	}

	channel, to := s.destination(req.Channel, email, res.Account)
	if err := s.deliver(ctx, channel, to, code.FormatForDisplay(plain)); err != nil {
		// Answered like a success so the response does not reveal the account.
		slog.Error("recovery code delivery failed",
			"correlation_id", req.CorrelationID, "channel", channel, "err", err)
		return issued, nil
	}

	issued.Code = plain
	issued.Hash = hash
	issued.Salt = salt
	issued.Channel = channel
	return issued, nil
}

// destination picks SMS only when asked for, configured, and the account has
// a phone on file. Everything else goes to the account email.
func (s *service) destination(preferred, email string, account *domain.DirectoryUser) (string, string) {
	if preferred == ChannelSMS && s.sms != nil && account.Phone != "" {
		return ChannelSMS, account.Phone
	}
	return ChannelEmail, email
}

// replace writes rec over whatever record is stored, retrying on lost races.
func (s *service) replace(ctx context.Context, key string, rec domain.RecoveryRecord, now time.Time) error {
	payload, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("encode recovery record: %w", err)
	}
	for attempt := 0; attempt < maxCASRetries; attempt++ {
		entry, err := s.store.Get(ctx, key)
		if err != nil {
			return fmt.Errorf("%w: %w", domain.ErrStoreUnavailable, err)
		}
		ok, err := s.store.AtomicCheckAndSet(ctx,
			[]domain.KVCheck{{Key: key, ExpectedVersion: entry.Version}},
			[]domain.KVWrite{{Key: key, Value: payload, TTL: recordTTL(rec, now)}},
		)
		if err != nil {
			return fmt.Errorf("%w: %w", domain.ErrStoreUnavailable, err)
		}
		if ok {
			return nil
		}
	}
	return fmt.Errorf("%w: recovery record contended", domain.ErrStoreUnavailable)
}

func recordTTL(rec domain.RecoveryRecord, now time.Time) time.Duration {
	return max(rec.ExpiresAt.Sub(now), 0) + retentionAfterExpiry
}

func (s *service) deliver(ctx context.Context, channel, to, display string) error {
	body := fmt.Sprintf("Your recovery code is %s. It expires in %d minutes.", display, int(code.TTL/time.Minute))
	if channel == ChannelSMS {
		return s.sms.SendSMS(ctx, to, body)
	}
	if s.mailer == nil {
		return errors.New("no mailer configured")
	}
	return s.mailer.SendEmail(ctx, to, emailSubject, body)
}

func (s *service) Verify(ctx context.Context, req VerifyRequest) (*domain.VerifyResult, error) {
	email := classifier.NormalizeEmail(req.Email)
	key := Key(email)

	for attempt := 0; attempt < maxCASRetries; attempt++ {
		entry, err := s.store.Get(ctx, key)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", domain.ErrStoreUnavailable, err)
		}
		if !entry.Exists() {
			return nil, domain.ErrInvalidCode
		}
		var rec domain.RecoveryRecord
		if err := json.Unmarshal(entry.Value, &rec); err != nil {
			slog.Warn("unreadable recovery record", "correlation_id", req.CorrelationID, "err", err)
			return nil, domain.ErrInvalidCode
		}

		now := s.now()
		switch {
		case rec.ConsumedAt != nil:
			return nil, domain.ErrInvalidCode
		case code.IsExpired(rec.ExpiresAt, now):
			return nil, domain.ErrCodeExpired
		case rec.Attempts >= code.MaxValidationAttempts:
			return nil, domain.ErrAttemptsExhausted
		}

		matched := code.ValidateVerificationCode(req.Code, rec.Hash, rec.Salt)
		if matched {
			rec.ConsumedAt = &now
		} else {
			rec.Attempts++
		}
		payload, err := json.Marshal(rec)
		if err != nil {
			return nil, fmt.Errorf("encode recovery record: %w", err)
		}
		ok, err := s.store.AtomicCheckAndSet(ctx,
			[]domain.KVCheck{{Key: key, ExpectedVersion: entry.Version}},
			[]domain.KVWrite{{Key: key, Value: payload, TTL: recordTTL(rec, now)}},
		)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", domain.ErrStoreUnavailable, err)
		}
		if !ok {
			continue
		}

		if !matched {
			slog.Info("recovery code rejected",
				"correlation_id", req.CorrelationID, "attempts", rec.Attempts)
			return nil, domain.ErrInvalidCode
		}

		result := &domain.VerifyResult{Email: email, VerifiedAt: now, CorrelationID: req.CorrelationID}
		if s.signer != nil {
			tok, err := s.signer.Sign(email, req.CorrelationID)
			if err != nil {
				return nil, fmt.Errorf("sign recovery grant: %w", err)
			}
			result.RecoveryToken = tok
		}
		return result, nil
	}
	return nil, fmt.Errorf("%w: recovery record contended", domain.ErrStoreUnavailable)
}
