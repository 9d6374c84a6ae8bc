package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"math"
	"net/http"
	"strconv"

	"github.com/go-chi/render"
	"github.com/go-email-gate/internal/application/ratelimit"
	"github.com/go-email-gate/internal/domain"
	"github.com/go-email-gate/internal/pkg/validate"
	"github.com/go-email-gate/internal/transport/http/middleware"
)

const maxBodyBytes = 64 << 10

// requestMeta holds the optional correlation fields any payload may carry.
type requestMeta struct {
	AttemptID     string `json:"attemptId"`
	CorrelationID string `json:"correlationId"`
}

// gate runs the steps shared by the public POST endpoints in order: derive the
// correlation id, record the rate-limit hit, then decode and validate the body
// into dst. It returns false when a response has already been written.
func gate(w http.ResponseWriter, r *http.Request, limiter ratelimit.Service, dst interface{}) (string, bool) {
	body, readErr := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))

	var meta requestMeta
	_ = json.Unmarshal(body, &meta)
	correlationID := DeriveCorrelationID(r, meta.AttemptID, meta.CorrelationID)
	w.Header().Set(CorrelationHeader, correlationID)

	if !admit(w, r, limiter, correlationID) {
		return correlationID, false
	}

	if readErr != nil {
		writeError(w, r, http.StatusUnprocessableEntity, domain.CodeValidationFailed, correlationID, "request body too large")
		return correlationID, false
	}
	if err := render.DecodeJSON(bytes.NewReader(body), dst); err != nil {
		writeError(w, r, http.StatusUnprocessableEntity, domain.CodeValidationFailed, correlationID, "malformed JSON body")
		return correlationID, false
	}
	if err := validate.Struct(dst); err != nil {
		writeError(w, r, http.StatusUnprocessableEntity, domain.CodeValidationFailed, correlationID, validate.Details(err)...)
		return correlationID, false
	}
	return correlationID, true
}

// admit records one hit for the caller and writes the 429/503 response when
// the request must not proceed.
func admit(w http.ResponseWriter, r *http.Request, limiter ratelimit.Service, correlationID string) bool {
	ip := middleware.ClientIP(r)
	decision, err := limiter.RecordHit(r.Context(), ip)
	if err != nil {
		slog.Error("rate limit check failed", "correlation_id", correlationID, "err", err)
		if errors.Is(err, context.DeadlineExceeded) {
			writeError(w, r, http.StatusGatewayTimeout, domain.CodeRequestTimeout, correlationID)
			return false
		}
		writeError(w, r, http.StatusServiceUnavailable, domain.CodeRateLimitUnavailable, correlationID)
		return false
	}

	w.Header().Set("x-ratelimit-remaining", strconv.Itoa(decision.Remaining))
	if !decision.Allowed {
		slog.Info("rate limited", "correlation_id", correlationID, "client_ip", ip, "count", decision.Count)
		w.Header().Set("Retry-After", strconv.Itoa(retryAfterSeconds(decision)))
		writeError(w, r, http.StatusTooManyRequests, domain.CodeRateLimited, correlationID)
		return false
	}
	return true
}

func retryAfterSeconds(d domain.RateLimitDecision) int {
	return max(int(math.Ceil(d.RetryAfter.Seconds())), 1)
}
