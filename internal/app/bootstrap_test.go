package app

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"channel-accounts/internal/config"
)

func newMemoryRuntime(t *testing.T) *Runtime {
	t.Helper()
	rt, err := New(context.Background(), config.Config{
		AppEnv:              "test",
		LogLevel:            "error",
		StoreDriver:         config.StoreDriverMemory,
		AccessTokenSecret:   "access-secret",
		RefreshTokenSecret:  "refresh-secret",
		AccessTokenTTL:      15 * time.Minute,
		RefreshTokenTTL:     time.Hour,
		TokenIssuer:         "test",
		BcryptCost:          bcrypt.MinCost,
		CronSecret:          "cron-secret",
		SessionCleanupBatch: 100,
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = rt.Close() })
	return rt
}

func call(t *testing.T, h http.Handler, method, path, body, bearer string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestNew_RejectsSharedSecret(t *testing.T) {
	_, err := New(context.Background(), config.Config{
		StoreDriver:        config.StoreDriverMemory,
		AccessTokenSecret:  "same",
		RefreshTokenSecret: "same",
		BcryptCost:         bcrypt.MinCost,
	})
	assert.Error(t, err)
}

func TestRuntime_Health(t *testing.T) {
	rt := newMemoryRuntime(t)

	rec := call(t, rt.Handler, http.MethodGet, "/health", "", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"status":"ok"`)
	assert.NotEmpty(t, rec.Header().Get("X-Request-ID"))
}

func TestRuntime_SessionFlow(t *testing.T) {
	rt := newMemoryRuntime(t)
	h := rt.Handler

	rec := call(t, h, http.MethodPost, "/users/register",
		`{"username":"alice","email":"alice@example.com","fullname":"Alice","password":"s3cret-pass"}`, "")
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	call(t, h, http.MethodPost, "/users/register",
		`{"username":"bob","email":"bob@example.com","fullname":"Bob","password":"bob-pass"}`, "")

	rec = call(t, h, http.MethodPost, "/users/login", `{"username":"alice","password":"s3cret-pass"}`, "")
	require.Equal(t, http.StatusOK, rec.Code)
	var session struct {
		AccessToken  string `json:"access_token"`
		RefreshToken string `json:"refresh_token"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &session))

	rec = call(t, h, http.MethodGet, "/users/me", "", session.AccessToken)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"username":"alice"`)

	rec = call(t, h, http.MethodPost, "/channels/bob/subscription", "", session.AccessToken)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = call(t, h, http.MethodGet, "/channels/bob", "", session.AccessToken)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"is_subscribed":true`)

	rec = call(t, h, http.MethodPost, "/users/refresh-token", `{"refresh_token":"`+session.RefreshToken+`"}`, "")
	require.Equal(t, http.StatusOK, rec.Code)

	rec = call(t, h, http.MethodPost, "/users/refresh-token", `{"refresh_token":"`+session.RefreshToken+`"}`, "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = call(t, h, http.MethodPost, "/users/logout", "", session.AccessToken)
	assert.Equal(t, http.StatusNoContent, rec.Code)

	rec = call(t, h, http.MethodPost, "/internal/maintenance/cleanup", "", "cron-secret")
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestRuntime_MeRequiresToken(t *testing.T) {
	rt := newMemoryRuntime(t)

	rec := call(t, rt.Handler, http.MethodPost, "/users/register",
		`{"username":"alice","email":"alice@example.com","fullname":"Alice","password":"pw"}`, "")
	require.Equal(t, http.StatusCreated, rec.Code)

	rec = call(t, rt.Handler, http.MethodGet, "/users/me", "", "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}
