package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-email-gate/internal/application/recovery"
	"github.com/go-email-gate/internal/domain"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

// --- mocks ---

type mockLimiter struct{ mock.Mock }

func (m *mockLimiter) RecordHit(ctx context.Context, identity string) (domain.RateLimitDecision, error) {
	args := m.Called(ctx, identity)
	return args.Get(0).(domain.RateLimitDecision), args.Error(1)
}

type mockClassifier struct{ mock.Mock }

func (m *mockClassifier) Classify(ctx context.Context, email, correlationID string) (*domain.EmailClassificationResult, error) {
	args := m.Called(ctx, email, correlationID)
	if r, _ := args.Get(0).(*domain.EmailClassificationResult); r != nil {
		return r, args.Error(1)
	}
	return nil, args.Error(1)
}

type mockRecovery struct{ mock.Mock }

func (m *mockRecovery) Issue(ctx context.Context, req recovery.IssueRequest) (*domain.IssuedCode, error) {
	args := m.Called(ctx, req)
	if r, _ := args.Get(0).(*domain.IssuedCode); r != nil {
		return r, args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *mockRecovery) Verify(ctx context.Context, req recovery.VerifyRequest) (*domain.VerifyResult, error) {
	args := m.Called(ctx, req)
	if r, _ := args.Get(0).(*domain.VerifyResult); r != nil {
		return r, args.Error(1)
	}
	return nil, args.Error(1)
}

// --- helpers ---

var allowed = domain.RateLimitDecision{Allowed: true, Count: 1, Remaining: 9}

func postJSON(path, body string) *http.Request {
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Forwarded-For", "203.0.113.7")
	return req
}

func decodeError(t *testing.T, rr *httptest.ResponseRecorder) ErrorBody {
	t.Helper()
	var env ErrorEnvelope
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &env))
	return env.Error
}

func decodeData(t *testing.T, rr *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var env struct {
		Data map[string]interface{} `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &env))
	return env.Data
}
