package ratelimit

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"strings"
	"time"

	"github.com/go-email-gate/internal/domain"
)

const (
	DefaultCeiling      = 10
	DefaultWindow       = 60 * time.Second
	DefaultMaxRetries   = 5
	DefaultRetryBackoff = 10 * time.Millisecond
)

// Options configures one limiter scope.
type Options struct {
	Ceiling      int
	Window       time.Duration
	MaxRetries   int
	RetryBackoff time.Duration
	// Scope namespaces keys so separate endpoints keep separate budgets.
	Scope string
	Now   func() time.Time
}

// Service counts hits per identity in fixed windows stored behind the KV contract.
type Service interface {
	RecordHit(ctx context.Context, identity string) (domain.RateLimitDecision, error)
}

type service struct {
	store domain.KVStore
	opts  Options
}

func NewService(store domain.KVStore, opts Options) Service {
	if opts.Ceiling <= 0 {
		opts.Ceiling = DefaultCeiling
	}
	if opts.Window <= 0 {
		opts.Window = DefaultWindow
	}
	if opts.MaxRetries <= 0 {
		opts.MaxRetries = DefaultMaxRetries
	}
	if opts.RetryBackoff < 0 {
		opts.RetryBackoff = 0
	}
	if opts.Scope == "" {
		opts.Scope = "default"
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &service{store: store, opts: opts}
}

// Key returns the KV key holding the window for identity.
func Key(scope, identity string) string {
	identity = strings.ToLower(strings.TrimSpace(identity))
	if identity == "" {
		identity = "unknown"
	}
	return "ratelimit:" + scope + ":" + identity
}

func (s *service) RecordHit(ctx context.Context, identity string) (domain.RateLimitDecision, error) {
	key := Key(s.opts.Scope, identity)
	// Count in the store as last read; nothing of ours was committed on top.
	observed := 0
	for attempt := 0; attempt < s.opts.MaxRetries; attempt++ {
		entry, err := s.store.Get(ctx, key)
		if err != nil {
			return domain.RateLimitDecision{}, fmt.Errorf("%w: read %s: %w", domain.ErrRateLimitUnavailable, key, err)
		}

		now := s.opts.Now()
		win, active := s.decode(key, entry, now)
		observed = 0
		if active {
			observed = win.Count
		}
		if active && win.Count >= s.opts.Ceiling {
			return domain.RateLimitDecision{
				Allowed:    false,
				Count:      win.Count,
				Remaining:  0,
				RetryAfter: win.WindowStartedAt.Add(s.opts.Window).Sub(now),
			}, nil
		}

		next := domain.RateLimitWindow{Count: 1, WindowStartedAt: now}
		if active {
			next = domain.RateLimitWindow{Count: win.Count + 1, WindowStartedAt: win.WindowStartedAt}
		}

		payload, err := json.Marshal(next)
		if err != nil {
			return domain.RateLimitDecision{}, fmt.Errorf("encode window: %w", err)
		}
		ttl := next.WindowStartedAt.Add(s.opts.Window).Sub(now)
		if ttl < time.Second {
			ttl = time.Second
		}

		committed, err := s.store.AtomicCheckAndSet(ctx,
			[]domain.KVCheck{{Key: key, ExpectedVersion: entry.Version}},
			[]domain.KVWrite{{Key: key, Value: payload, TTL: ttl}},
		)
		if err != nil {
			return domain.RateLimitDecision{}, fmt.Errorf("%w: write %s: %w", domain.ErrRateLimitUnavailable, key, err)
		}
		if committed {
			return domain.RateLimitDecision{
				Allowed:   true,
				Count:     next.Count,
				Remaining: max(0, s.opts.Ceiling-next.Count),
			}, nil
		}

		if err := s.backoff(ctx, attempt); err != nil {
			return domain.RateLimitDecision{}, fmt.Errorf("%w: %w", domain.ErrRateLimitUnavailable, err)
		}
	}

	// Retry budget spent under contention: fail open, flagged as Degraded.
	slog.Warn("rate limit CAS retries exhausted, allowing request",
		"scope", s.opts.Scope, "key", key, "retries", s.opts.MaxRetries, "observed_count", observed)
	return domain.RateLimitDecision{
		Allowed:   true,
		Count:     observed,
		Remaining: max(0, s.opts.Ceiling-observed),
		Degraded:  true,
	}, nil
}

// decode returns the stored window and whether it is still running at now.
// Unreadable records are treated as absent and overwritten through the CAS.
func (s *service) decode(key string, entry domain.KVEntry, now time.Time) (domain.RateLimitWindow, bool) {
	if !entry.Exists() {
		return domain.RateLimitWindow{}, false
	}
	var win domain.RateLimitWindow
	if err := json.Unmarshal(entry.Value, &win); err != nil {
		slog.Warn("discarding unreadable rate limit window", "key", key, "err", err)
		return domain.RateLimitWindow{}, false
	}
	if !now.Before(win.WindowStartedAt.Add(s.opts.Window)) {
		return win, false
	}
	return win, true
}

// backoff sleeps for a full-jitter delay in [0, RetryBackoff*2^attempt).
func (s *service) backoff(ctx context.Context, attempt int) error {
	if err := ctx.Err(); err != nil || s.opts.RetryBackoff == 0 {
		return err
	}
	ceiling := s.opts.RetryBackoff << attempt
	d := time.Duration(rand.Int64N(int64(ceiling)))
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
