package handler

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-email-gate/internal/application/classifier"
	"github.com/go-email-gate/internal/application/ratelimit"
	"github.com/go-email-gate/internal/domain"
)

type emailStatusRequest struct {
	Email string `json:"email" validate:"required,email"`
}

// EmailStatusHandler serves POST /check-email-status.
type EmailStatusHandler struct {
	limiter    ratelimit.Service
	classifier classifier.Service
}

func NewEmailStatusHandler(limiter ratelimit.Service, svc classifier.Service) *EmailStatusHandler {
	return &EmailStatusHandler{limiter: limiter, classifier: svc}
}

func (h *EmailStatusHandler) Check(w http.ResponseWriter, r *http.Request) {
	var req emailStatusRequest
	correlationID, ok := gate(w, r, h.limiter, &req)
	if !ok {
		return
	}

	result, err := h.classifier.Classify(r.Context(), req.Email, correlationID)
	if err != nil {
		var ce *domain.ClassificationError
		if errors.As(err, &ce) {
			writeError(w, r, ce.HTTPStatus, ce.Code, correlationID)
			return
		}
		slog.Error("classification failed", "correlation_id", correlationID, "err", err)
		writeError(w, r, http.StatusInternalServerError, domain.CodeInternal, correlationID)
		return
	}
	writeJSON(w, r, http.StatusOK, DataEnvelope{Data: result})
}
