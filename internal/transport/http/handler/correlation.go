package handler

import (
	"net/http"
	"strings"

	"github.com/google/uuid"
)

// CorrelationHeader is read from requests and echoed on every response.
const CorrelationHeader = "x-correlation-id"

// DeriveCorrelationID picks the inbound header, then the payload attemptId,
// then the payload correlationId, and mints a UUID when none is set.
func DeriveCorrelationID(r *http.Request, attemptID, correlationID string) string {
	for _, candidate := range []string{r.Header.Get(CorrelationHeader), attemptID, correlationID} {
		if c := strings.TrimSpace(candidate); c != "" {
			return c
		}
	}
	return uuid.NewString()
}
