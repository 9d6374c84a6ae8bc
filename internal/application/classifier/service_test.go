package classifier

import (
	"context"
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/go-email-gate/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type mockDirectory struct{ mock.Mock }

func (m *mockDirectory) ListUsers(ctx context.Context, filter string, perPage int) ([]domain.DirectoryUser, error) {
	args := m.Called(ctx, filter, perPage)
	if u, _ := args.Get(0).([]domain.DirectoryUser); u != nil {
		return u, args.Error(1)
	}
	return nil, args.Error(1)
}

func ts(s string) *time.Time {
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		panic(err)
	}
	return &t
}

func TestClassify_NotRegistered(t *testing.T) {
	dir := &mockDirectory{}
	dir.On("ListUsers", mock.Anything, "fresh@example.com", 2).Return([]domain.DirectoryUser{}, nil)

	res, err := NewService(dir).Classify(context.Background(), "  Fresh@Example.COM ", "cid-1")
	require.NoError(t, err)
	assert.Equal(t, domain.StatusNotRegistered, res.Status)
	assert.Nil(t, res.VerifiedAt)
	assert.Nil(t, res.LastSignInAt)
	assert.Equal(t, "cid-1", res.CorrelationID)
	dir.AssertExpectations(t)
}

func TestClassify_Verified(t *testing.T) {
	confirmed := ts("2025-11-02T10:00:00Z")
	signIn := ts("2026-01-15T08:30:00Z")
	dir := &mockDirectory{}
	dir.On("ListUsers", mock.Anything, "a@b.com", 2).Return([]domain.DirectoryUser{
		{Email: "A@b.com", EmailConfirmedAt: confirmed, LastSignInAt: signIn},
	}, nil)

	res, err := NewService(dir).Classify(context.Background(), "a@b.com", "cid")
	require.NoError(t, err)
	assert.Equal(t, domain.StatusRegisteredVerified, res.Status)
	assert.Equal(t, confirmed, res.VerifiedAt)
	assert.Equal(t, signIn, res.LastSignInAt)
}

func TestClassify_Unverified(t *testing.T) {
	signIn := ts("2026-01-15T08:30:00Z")
	dir := &mockDirectory{}
	dir.On("ListUsers", mock.Anything, "a@b.com", 2).Return([]domain.DirectoryUser{
		{Email: "a@b.com", LastSignInAt: signIn},
	}, nil)

	res, err := NewService(dir).Classify(context.Background(), "a@b.com", "cid")
	require.NoError(t, err)
	assert.Equal(t, domain.StatusRegisteredUnverified, res.Status)
	assert.Nil(t, res.VerifiedAt)
	assert.Equal(t, signIn, res.LastSignInAt)
}

func TestClassify_AnyReturnedRecordCounts(t *testing.T) {
	confirmed := ts("2025-01-01T00:00:00Z")
	dir := &mockDirectory{}
	dir.On("ListUsers", mock.Anything, "bob@example.com", 2).Return([]domain.DirectoryUser{
		{Email: "abob@example.com", EmailConfirmedAt: confirmed},
		{Email: "cbob@example.com"},
	}, nil)

	res, err := NewService(dir).Classify(context.Background(), "bob@example.com", "cid")
	require.NoError(t, err)
	assert.Equal(t, domain.StatusRegisteredVerified, res.Status)
	assert.Equal(t, confirmed, res.VerifiedAt)
	assert.Nil(t, res.Account)
}

func TestClassify_UnconfirmedRecordsAreUnverified(t *testing.T) {
	signIn := ts("2026-02-02T02:02:02Z")
	dir := &mockDirectory{}
	dir.On("ListUsers", mock.Anything, "ann@b.com", 2).Return([]domain.DirectoryUser{
		{Email: "joann@b.com", LastSignInAt: signIn},
		{Email: "ann@b.com.au"},
	}, nil)

	res, err := NewService(dir).Classify(context.Background(), "ann@b.com", "cid")
	require.NoError(t, err)
	assert.Equal(t, domain.StatusRegisteredUnverified, res.Status)
	assert.Equal(t, signIn, res.LastSignInAt)
	assert.Nil(t, res.Account)
}

func TestClassify_ExactRecordIsTheAccount(t *testing.T) {
	dir := &mockDirectory{}
	dir.On("ListUsers", mock.Anything, "ann@b.com", 2).Return([]domain.DirectoryUser{
		{Email: "joann@b.com"},
		{Email: "Ann@B.com", Phone: "+15550001111"},
	}, nil)

	res, err := NewService(dir).Classify(context.Background(), "ann@b.com", "cid")
	require.NoError(t, err)
	require.NotNil(t, res.Account)
	assert.Equal(t, "+15550001111", res.Account.Phone)
}

func TestClassify_AmbiguousPrefersConfirmed(t *testing.T) {
	confirmed := ts("2025-05-05T05:05:05Z")
	dir := &mockDirectory{}
	dir.On("ListUsers", mock.Anything, "dup@b.com", 2).Return([]domain.DirectoryUser{
		{Email: "dup@b.com"},
		{Email: "DUP@b.com", EmailConfirmedAt: confirmed},
	}, nil)

	res, err := NewService(dir).Classify(context.Background(), "dup@b.com", "cid")
	require.NoError(t, err)
	assert.Equal(t, domain.StatusRegisteredVerified, res.Status)
	assert.Equal(t, confirmed, res.VerifiedAt)
}

func TestClassify_NoDirectory(t *testing.T) {
	_, err := NewService(nil).Classify(context.Background(), "a@b.com", "cid")
	var ce *domain.ClassificationError
	require.ErrorAs(t, err, &ce)
	assert.Equal(t, domain.CodeServerConfig, ce.Code)
	assert.Equal(t, http.StatusInternalServerError, ce.HTTPStatus)
}

func TestClassify_DirectoryErrorCarriesUpstreamDetails(t *testing.T) {
	dir := &mockDirectory{}
	dir.On("ListUsers", mock.Anything, "a@b.com", 2).
		Return(nil, &domain.DirectoryError{Status: 503, Code: "unexpected_failure", Message: "db down"})

	_, err := NewService(dir).Classify(context.Background(), "a@b.com", "cid")
	var ce *domain.ClassificationError
	require.ErrorAs(t, err, &ce)
	assert.Equal(t, domain.CodeDirectoryQueryFailed, ce.Code)
	assert.Equal(t, http.StatusBadGateway, ce.HTTPStatus)
	assert.Equal(t, "unexpected_failure", ce.UpstreamCode)
	assert.Equal(t, "db down", ce.UpstreamMessage)
}

func TestClassify_DeadlineIsQueryFailure(t *testing.T) {
	dir := &mockDirectory{}
	dir.On("ListUsers", mock.Anything, "a@b.com", 2).Return(nil, context.DeadlineExceeded)

	_, err := NewService(dir).Classify(context.Background(), "a@b.com", "cid")
	var ce *domain.ClassificationError
	require.ErrorAs(t, err, &ce)
	assert.Equal(t, domain.CodeDirectoryQueryFailed, ce.Code)
	assert.True(t, errors.Is(err, context.DeadlineExceeded))
}
