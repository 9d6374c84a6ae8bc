// Package supabase reads accounts from the GoTrue admin API.
package supabase

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/go-email-gate/internal/config"
	"github.com/go-email-gate/internal/domain"
	"github.com/go-email-gate/internal/pkg/validate"
)

const maxBodyBytes = 1 << 20

// Client lists users through /auth/v1/admin/users with the service-role key.
type Client struct {
	baseURL    string
	serviceKey string
	http       *http.Client
}

// NewClient fails when the URL or key is missing so callers can run without a directory.
func NewClient(cfg *config.Config) (*Client, error) {
	base := strings.TrimRight(strings.TrimSpace(cfg.SupabaseURL), "/")
	if base == "" || cfg.SupabaseServiceRoleKey == "" {
		return nil, errors.New("SUPABASE_URL and SUPABASE_SERVICE_ROLE_KEY are required")
	}
	if _, err := url.ParseRequestURI(base); err != nil {
		return nil, fmt.Errorf("parse SUPABASE_URL: %w", err)
	}
	return &Client{
		baseURL:    base,
		serviceKey: cfg.SupabaseServiceRoleKey,
		http:       &http.Client{Timeout: cfg.DirectoryTimeout},
	}, nil
}

// listUsersResponse is the only shape accepted from the admin API.
type listUsersResponse struct {
	Users *[]domain.DirectoryUser `json:"users" validate:"required"`
}

type errorResponse struct {
	Code             json.RawMessage `json:"code"`
	ErrorCode        string          `json:"error_code"`
	Msg              string          `json:"msg"`
	Message          string          `json:"message"`
	Error            string          `json:"error"`
	ErrorDescription string          `json:"error_description"`
}

func (c *Client) ListUsers(ctx context.Context, filter string, perPage int) ([]domain.DirectoryUser, error) {
	q := url.Values{}
	q.Set("page", "1")
	q.Set("per_page", strconv.Itoa(perPage))
	q.Set("filter", filter)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/auth/v1/admin/users?"+q.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("apikey", c.serviceKey)
	req.Header.Set("Authorization", "Bearer "+c.serviceKey)
	req.Header.Set("Accept", "application/json")

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("list users: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, fmt.Errorf("read list users body: %w", err)
	}
	slog.Debug("directory list users", "status", resp.StatusCode, "duration", time.Since(start))

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, decodeError(resp.StatusCode, body)
	}

	var out listUsersResponse
	if err := json.Unmarshal(body, &out); err != nil {
		return nil, &domain.DirectoryError{Status: resp.StatusCode, Code: "invalid_response", Message: err.Error()}
	}
	if err := validate.Struct(&out); err != nil {
		return nil, &domain.DirectoryError{Status: resp.StatusCode, Code: "invalid_response", Message: err.Error()}
	}

	users := make([]domain.DirectoryUser, 0, len(*out.Users))
	for i, u := range *out.Users {
		if err := validate.Struct(&u); err != nil {
			slog.Warn("skipping malformed directory user", "index", i, "err", err)
			continue
		}
		users = append(users, u)
	}
	return users, nil
}

func decodeError(status int, body []byte) *domain.DirectoryError {
	de := &domain.DirectoryError{Status: status, Code: http.StatusText(status)}
	var er errorResponse
	if err := json.Unmarshal(body, &er); err != nil {
		return de
	}
	for _, c := range []string{er.ErrorCode, er.Error, strings.Trim(string(er.Code), `"`)} {
		if c != "" {
			de.Code = c
			break
		}
	}
	for _, m := range []string{er.Msg, er.Message, er.ErrorDescription} {
		if m != "" {
			de.Message = m
			break
		}
	}
	return de
}
