package domain

import (
	"errors"
	"fmt"
	"net/http"
)

// Stable error codes returned to callers in the error envelope.
const (
	CodeServerConfig         = "server_config"
	CodeValidationFailed     = "validation_failed"
	CodeRateLimited          = "rate_limited"
	CodeRateLimitUnavailable = "rate_limit_unavailable"
	CodeDirectoryQueryFailed = "supabase_query_failed"
	CodeInvalidCode          = "invalid_code"
	CodeCodeExpired          = "code_expired"
	CodeAttemptsExhausted    = "attempts_exhausted"
	CodeStoreUnavailable     = "store_unavailable"
	CodeRequestTimeout       = "request_timeout"
	CodeInternal             = "internal_error"
)

// Sentinel errors for domain-level error discrimination.
// Services wrap these so handlers can map to HTTP status codes without leaking infrastructure details.
var (
	ErrBadRequest           = errors.New("bad request")
	ErrRateLimitUnavailable = errors.New("rate limit store unavailable")
	ErrStoreUnavailable     = errors.New("kv store unavailable")
)

// ClassificationError is the only error type EmailClassifier returns.
// UpstreamCode and UpstreamMessage are for logs and never reach the caller.
type ClassificationError struct {
	Code            string
	HTTPStatus      int
	UpstreamCode    string
	UpstreamMessage string
	Err             error
}

func (e *ClassificationError) Error() string {
	if e.UpstreamMessage != "" {
		return fmt.Sprintf("%s: %s", e.Code, e.UpstreamMessage)
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Code, e.Err)
	}
	return e.Code
}

func (e *ClassificationError) Unwrap() error { return e.Err }

// NewServerConfigError reports a missing or unusable dependency.
func NewServerConfigError(err error) *ClassificationError {
	return &ClassificationError{Code: CodeServerConfig, HTTPStatus: http.StatusInternalServerError, Err: err}
}

// NewDirectoryQueryError wraps a failed directory lookup. Upstream details are
// copied from a *DirectoryError when one is in the chain.
func NewDirectoryQueryError(err error) *ClassificationError {
	ce := &ClassificationError{Code: CodeDirectoryQueryFailed, HTTPStatus: http.StatusBadGateway, Err: err}
	var de *DirectoryError
	if errors.As(err, &de) {
		ce.UpstreamCode = de.Code
		ce.UpstreamMessage = de.Message
	}
	return ce
}

// DirectoryError is a non-success answer from the user directory.
type DirectoryError struct {
	Status  int
	Code    string
	Message string
}

func (e *DirectoryError) Error() string {
	return fmt.Sprintf("directory responded %d: %s %s", e.Status, e.Code, e.Message)
}

// VerificationError is a rejected recovery-code check.
type VerificationError struct {
	Code       string
	HTTPStatus int
}

func (e *VerificationError) Error() string { return "verification failed: " + e.Code }

var (
	ErrInvalidCode       = &VerificationError{Code: CodeInvalidCode, HTTPStatus: http.StatusUnauthorized}
	ErrCodeExpired       = &VerificationError{Code: CodeCodeExpired, HTTPStatus: http.StatusGone}
	ErrAttemptsExhausted = &VerificationError{Code: CodeAttemptsExhausted, HTTPStatus: http.StatusTooManyRequests}
)
