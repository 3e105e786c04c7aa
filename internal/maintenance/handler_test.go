package maintenance

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"channel-accounts/internal/observability"
	"channel-accounts/internal/user"
)

type scriptedSweeper struct {
	results []int64
	err     error
	calls   int
}

func (s *scriptedSweeper) ClearExpiredRefreshTokens(context.Context, time.Time, int) (int64, error) {
	if s.err != nil {
		return 0, s.err
	}
	if s.calls >= len(s.results) {
		return 0, nil
	}
	n := s.results[s.calls]
	s.calls++
	return n, nil
}

func serve(h *CleanupHandler, method, authorization string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, "/internal/maintenance/cleanup", nil)
	if authorization != "" {
		req.Header.Set("Authorization", authorization)
	}
	rec := httptest.NewRecorder()
	h.Handle(rec, req)
	return rec
}

func discard() *observability.Logger {
	return observability.NewLoggerTo(io.Discard, "info")
}

func TestCleanupHandler_Guards(t *testing.T) {
	sweeper := &scriptedSweeper{}

	rec := serve(NewCleanupHandler(sweeper, discard(), "", 10), http.MethodPost, "Bearer anything")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	h := NewCleanupHandler(sweeper, discard(), "cron-secret", 10)
	assert.Equal(t, http.StatusUnauthorized, serve(h, http.MethodPost, "").Code)
	assert.Equal(t, http.StatusUnauthorized, serve(h, http.MethodPost, "Bearer wrong").Code)
	assert.Equal(t, http.StatusUnauthorized, serve(h, http.MethodPost, "Basic cron-secret").Code)
	assert.Equal(t, http.StatusMethodNotAllowed, serve(h, http.MethodDelete, "Bearer cron-secret").Code)
	assert.Zero(t, sweeper.calls)
}

func TestCleanupHandler_SweepsUntilShortBatch(t *testing.T) {
	sweeper := &scriptedSweeper{results: []int64{10, 10, 3}}
	h := NewCleanupHandler(sweeper, discard(), "cron-secret", 10)

	rec := serve(h, http.MethodGet, "Bearer cron-secret")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok","result":{"cleared_refresh_tokens":23,"batches":3}}`, rec.Body.String())
}

func TestCleanupHandler_StopsAtMaxBatches(t *testing.T) {
	sweeper := &scriptedSweeper{results: []int64{5, 5, 5, 5}}
	h := NewCleanupHandler(sweeper, discard(), "cron-secret", 5)
	h.maxBatches = 2

	rec := serve(h, http.MethodPost, "Bearer cron-secret")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 2, sweeper.calls)
}

func TestCleanupHandler_StoreFailure(t *testing.T) {
	h := NewCleanupHandler(&scriptedSweeper{err: errors.New("db down")}, discard(), "cron-secret", 10)

	rec := serve(h, http.MethodPost, "Bearer cron-secret")
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.JSONEq(t, `{"error":"cleanup failed"}`, rec.Body.String())
}

func TestCleanupHandler_WithMemoryStore(t *testing.T) {
	store := user.NewMemoryStore()
	ctx := context.Background()
	u, err := store.CreateUser(ctx, user.NewUser{Username: "alice", Email: "alice@x.com", PasswordHash: "h"})
	require.NoError(t, err)
	require.NoError(t, store.SetRefreshToken(ctx, u.ID, "stale", time.Now().Add(-time.Hour)))

	h := NewCleanupHandler(store, discard(), "cron-secret", 10)
	rec := serve(h, http.MethodPost, "Bearer cron-secret")
	require.Equal(t, http.StatusOK, rec.Code)

	stored, err := store.FindUserByID(ctx, u.ID)
	require.NoError(t, err)
	assert.Empty(t, stored.RefreshToken)
}
