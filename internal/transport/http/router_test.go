package http

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"regexp"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/go-email-gate/internal/config"
	"github.com/go-email-gate/internal/domain"
	"github.com/go-email-gate/internal/infrastructure/memory"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeDirectory struct {
	users []domain.DirectoryUser
	err   error
	calls int
}

func (d *fakeDirectory) ListUsers(_ context.Context, _ string, _ int) ([]domain.DirectoryUser, error) {
	d.calls++
	return d.users, d.err
}

type captureMailer struct {
	mu   sync.Mutex
	sent []string
}

func (m *captureMailer) SendEmail(_ context.Context, _, _, body string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sent = append(m.sent, body)
	return nil
}

func testConfig() *config.Config {
	return &config.Config{
		AllowedOrigins: []string{"*"},
		RequestTimeout: 5 * time.Second,
		RateLimit: config.RateLimit{
			MaxRequests: 10, Window: time.Minute, CASRetries: 5, CASBackoff: time.Millisecond,
		},
		RecoveryRateLimit: config.RateLimit{
			MaxRequests: 5, Window: time.Minute, CASRetries: 5, CASBackoff: time.Millisecond,
		},
	}
}

func post(h http.Handler, path, body string, headers map[string]string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Forwarded-For", "198.51.100.4")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	return rr
}

type envelope struct {
	Data  map[string]interface{} `json:"data"`
	Error struct {
		Code          string `json:"code"`
		CorrelationID string `json:"correlationId"`
	} `json:"error"`
}

func decode(t *testing.T, rr *httptest.ResponseRecorder) envelope {
	t.Helper()
	var env envelope
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &env))
	return env
}

func TestRouter_FreshEmailNotRegistered(t *testing.T) {
	router := NewRouter(testConfig(), &Deps{KVStore: memory.NewKVStore(nil), Directory: &fakeDirectory{}})

	rr := post(router, "/check-email-status", `{"email":"fresh@example.com"}`, nil)

	require.Equal(t, http.StatusOK, rr.Code)
	env := decode(t, rr)
	assert.Equal(t, "not_registered", env.Data["status"])
	assert.Nil(t, env.Data["verifiedAt"])
	assert.Nil(t, env.Data["lastSignInAt"])
	assert.Equal(t, rr.Header().Get("x-correlation-id"), env.Data["correlationId"])
}

func TestRouter_EleventhRequestIsLimited(t *testing.T) {
	dir := &fakeDirectory{}
	router := NewRouter(testConfig(), &Deps{KVStore: memory.NewKVStore(nil), Directory: dir})

	for i := 1; i <= 10; i++ {
		rr := post(router, "/check-email-status", fmt.Sprintf(`{"email":"user%d@example.com"}`, i), nil)
		require.Equal(t, http.StatusOK, rr.Code, "request %d", i)
	}
	rr := post(router, "/check-email-status", `{"email":"user11@example.com"}`, nil)

	assert.Equal(t, http.StatusTooManyRequests, rr.Code)
	assert.Equal(t, "rate_limited", decode(t, rr).Error.Code)
	assert.NotEmpty(t, rr.Header().Get("Retry-After"))
	assert.Equal(t, 10, dir.calls)

	other := post(router, "/check-email-status", `{"email":"a@example.com"}`, map[string]string{"X-Forwarded-For": "198.51.100.5"})
	assert.Equal(t, http.StatusOK, other.Code)
}

func TestRouter_DirectoryFailureEchoesCorrelation(t *testing.T) {
	dir := &fakeDirectory{err: &domain.DirectoryError{Status: 503, Code: "unavailable", Message: "upstream down"}}
	router := NewRouter(testConfig(), &Deps{KVStore: memory.NewKVStore(nil), Directory: dir})

	rr := post(router, "/check-email-status", `{"email":"a@example.com"}`, map[string]string{"x-correlation-id": "trace-77"})

	assert.Equal(t, http.StatusBadGateway, rr.Code)
	env := decode(t, rr)
	assert.Equal(t, "supabase_query_failed", env.Error.Code)
	assert.Equal(t, "trace-77", env.Error.CorrelationID)
	assert.Equal(t, "trace-77", rr.Header().Get("x-correlation-id"))
}

func TestRouter_MissingDirectoryIsServerConfig(t *testing.T) {
	router := NewRouter(testConfig(), &Deps{KVStore: memory.NewKVStore(nil)})

	rr := post(router, "/check-email-status", `{"email":"a@example.com"}`, nil)

	assert.Equal(t, http.StatusInternalServerError, rr.Code)
	assert.Equal(t, "server_config", decode(t, rr).Error.Code)
}

func TestRouter_CORSExposesCorrelationHeader(t *testing.T) {
	router := NewRouter(testConfig(), &Deps{KVStore: memory.NewKVStore(nil), Directory: &fakeDirectory{}})

	rr := post(router, "/check-email-status", `{"email":"a@example.com"}`, map[string]string{"Origin": "https://app.example.com"})

	assert.Equal(t, "*", rr.Header().Get("Access-Control-Allow-Origin"))
	assert.Contains(t, strings.ToLower(rr.Header().Get("Access-Control-Expose-Headers")), "x-correlation-id")
}

var displayCode = regexp.MustCompile(`[A-Z0-9]{4}-[A-Z0-9]{4}`)

func TestRouter_RecoveryRoundTrip(t *testing.T) {
	confirmed := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	dir := &fakeDirectory{users: []domain.DirectoryUser{{Email: "a@example.com", EmailConfirmedAt: &confirmed}}}
	mailer := &captureMailer{}
	router := NewRouter(testConfig(), &Deps{KVStore: memory.NewKVStore(nil), Directory: dir, Mailer: mailer})

	rr := post(router, "/recovery-code/request", `{"email":"A@example.com"}`, nil)
	require.Equal(t, http.StatusOK, rr.Code)
	require.Len(t, mailer.sent, 1)
	code := displayCode.FindString(mailer.sent[0])
	require.NotEmpty(t, code)

	rr = post(router, "/recovery-code/validate-code", `{"email":"a@example.com","code":"`+code+`"}`, nil)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "a@example.com", decode(t, rr).Data["email"])

	rr = post(router, "/recovery-code/validate-code", `{"email":"a@example.com","code":"`+code+`"}`, nil)
	assert.Equal(t, http.StatusUnauthorized, rr.Code)
	assert.Equal(t, "invalid_code", decode(t, rr).Error.Code)
}
