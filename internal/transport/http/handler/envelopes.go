package handler

import (
	"net/http"

	"github.com/go-chi/render"
)

// DataEnvelope wraps every successful response.
type DataEnvelope struct {
	Data interface{} `json:"data"`
}

// ErrorBody carries a stable code and never upstream text.
type ErrorBody struct {
	Code          string   `json:"code"`
	CorrelationID string   `json:"correlationId"`
	Details       []string `json:"details,omitempty"`
}

// ErrorEnvelope wraps every failed response.
type ErrorEnvelope struct {
	Error ErrorBody `json:"error"`
}

// MessageEnvelope is used by the health endpoints.
type MessageEnvelope struct {
	Message string `json:"message"`
}

func writeJSON(w http.ResponseWriter, r *http.Request, status int, v interface{}) {
	render.Status(r, status)
	render.JSON(w, r, v)
}

func writeError(w http.ResponseWriter, r *http.Request, status int, code, correlationID string, details ...string) {
	writeJSON(w, r, status, ErrorEnvelope{Error: ErrorBody{
		Code:          code,
		CorrelationID: correlationID,
		Details:       details,
	}})
}
