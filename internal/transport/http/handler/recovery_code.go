package handler

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-email-gate/internal/application/ratelimit"
	"github.com/go-email-gate/internal/application/recovery"
	"github.com/go-email-gate/internal/domain"
)

// RecoveryCodeHandler serves POST /recovery-code/{action}.
type RecoveryCodeHandler struct {
	limiter ratelimit.Service
	svc     recovery.Service
}

func NewRecoveryCodeHandler(limiter ratelimit.Service, svc recovery.Service) *RecoveryCodeHandler {
	return &RecoveryCodeHandler{limiter: limiter, svc: svc}
}

func (h *RecoveryCodeHandler) Action(w http.ResponseWriter, r *http.Request) {
	switch chi.URLParam(r, "action") {
	case "request":
		var req recovery.IssueRequest
		correlationID, ok := gate(w, r, h.limiter, &req)
		if !ok {
			return
		}
		req.CorrelationID = correlationID
		issued, err := h.svc.Issue(r.Context(), req)
		if err != nil {
			recoveryError(w, r, correlationID, err)
			return
		}
		writeJSON(w, r, http.StatusOK, DataEnvelope{Data: issued})
	case "validate-code":
		var req recovery.VerifyRequest
		correlationID, ok := gate(w, r, h.limiter, &req)
		if !ok {
			return
		}
		req.CorrelationID = correlationID
		result, err := h.svc.Verify(r.Context(), req)
		if err != nil {
			recoveryError(w, r, correlationID, err)
			return
		}
		writeJSON(w, r, http.StatusOK, DataEnvelope{Data: result})
	default:
		correlationID := DeriveCorrelationID(r, "", "")
		w.Header().Set(CorrelationHeader, correlationID)
		recoveryError(w, r, correlationID, domain.ErrBadRequest)
	}
}

// recoveryError maps service errors to the stable error envelope.
func recoveryError(w http.ResponseWriter, r *http.Request, correlationID string, err error) {
	var ce *domain.ClassificationError
	var ve *domain.VerificationError
	switch {
	case errors.As(err, &ce):
		writeError(w, r, ce.HTTPStatus, ce.Code, correlationID)
	case errors.As(err, &ve):
		writeError(w, r, ve.HTTPStatus, ve.Code, correlationID)
	case errors.Is(err, domain.ErrBadRequest):
		writeError(w, r, http.StatusBadRequest, domain.CodeValidationFailed, correlationID, "unknown action")
	case errors.Is(err, context.DeadlineExceeded):
		slog.Error("recovery request timed out", "correlation_id", correlationID, "err", err)
		writeError(w, r, http.StatusGatewayTimeout, domain.CodeRequestTimeout, correlationID)
	case errors.Is(err, domain.ErrStoreUnavailable):
		slog.Error("recovery store unavailable", "correlation_id", correlationID, "err", err)
		writeError(w, r, http.StatusServiceUnavailable, domain.CodeStoreUnavailable, correlationID)
	default:
		slog.Error("recovery request failed", "correlation_id", correlationID, "err", err)
		writeError(w, r, http.StatusInternalServerError, domain.CodeInternal, correlationID)
	}
}
