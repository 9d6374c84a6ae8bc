package handler

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-email-gate/internal/domain"
)

const readinessKey = "health:ready"

// HealthHandler handles health-check endpoints.
type HealthHandler struct {
	store domain.KVStore
}

func NewHealthHandler(store domain.KVStore) *HealthHandler { return &HealthHandler{store: store} }

// Ping answers "ping" without touching dependencies and "ready" after a KV read.
func (h *HealthHandler) Ping(w http.ResponseWriter, r *http.Request) {
	correlationID := DeriveCorrelationID(r, "", "")
	w.Header().Set(CorrelationHeader, correlationID)

	switch chi.URLParam(r, "action") {
	case "ping":
		writeJSON(w, r, http.StatusOK, MessageEnvelope{Message: "pong"})
	case "ready":
		if h.store == nil {
			writeError(w, r, http.StatusServiceUnavailable, domain.CodeServerConfig, correlationID)
			return
		}
		if _, err := h.store.Get(r.Context(), readinessKey); err != nil {
			slog.Error("readiness check failed", "correlation_id", correlationID, "err", err)
			writeError(w, r, http.StatusServiceUnavailable, domain.CodeStoreUnavailable, correlationID)
			return
		}
		writeJSON(w, r, http.StatusOK, MessageEnvelope{Message: "ready"})
	default:
		writeError(w, r, http.StatusBadRequest, domain.CodeValidationFailed, correlationID, "unknown action")
	}
}
