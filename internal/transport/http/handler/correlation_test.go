package handler

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDeriveCorrelationID_Precedence(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "/", nil)
	req.Header.Set(CorrelationHeader, "  from-header ")
	assert.Equal(t, "from-header", DeriveCorrelationID(req, "attempt", "corr"))

	req = httptest.NewRequest(http.MethodPost, "/", nil)
	assert.Equal(t, "attempt", DeriveCorrelationID(req, "attempt", "corr"))
	assert.Equal(t, "corr", DeriveCorrelationID(req, "", "corr"))
}

func TestDeriveCorrelationID_BlankHeaderIgnored(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "/", nil)
	req.Header.Set(CorrelationHeader, "   ")
	assert.Equal(t, "attempt", DeriveCorrelationID(req, "attempt", ""))
}

func TestDeriveCorrelationID_MintsUUID(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "/", nil)
	id := DeriveCorrelationID(req, "", " ")
	_, err := uuid.Parse(id)
	require.NoError(t, err)
	assert.NotEqual(t, id, DeriveCorrelationID(req, "", ""))
}
