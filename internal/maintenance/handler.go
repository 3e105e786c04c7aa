// Package maintenance exposes cron-triggered housekeeping over HTTP.
package maintenance

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"channel-accounts/internal/observability"
)

// SessionSweeper clears stored refresh tokens that expired before now.
type SessionSweeper interface {
	ClearExpiredRefreshTokens(ctx context.Context, now time.Time, batchSize int) (int64, error)
}

type CleanupResult struct {
	ClearedRefreshTokens int64 `json:"cleared_refresh_tokens"`
	Batches              int   `json:"batches"`
}

type CleanupHandler struct {
	sweeper    SessionSweeper
	logger     *observability.Logger
	cronSecret string
	batchSize  int
	maxBatches int
	now        func() time.Time
}

func NewCleanupHandler(sweeper SessionSweeper, logger *observability.Logger, cronSecret string, batchSize int) *CleanupHandler {
	if batchSize <= 0 {
		batchSize = 500
	}
	return &CleanupHandler{
		sweeper:    sweeper,
		logger:     logger,
		cronSecret: strings.TrimSpace(cronSecret),
		batchSize:  batchSize,
		maxBatches: 20,
		now:        func() time.Time { return time.Now().UTC() },
	}
}

func (h *CleanupHandler) Handle(w http.ResponseWriter, r *http.Request) {
	if h.cronSecret == "" {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "not found"})
		return
	}

	if r.Method != http.MethodGet && r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	scheme, secret, _ := strings.Cut(strings.TrimSpace(r.Header.Get("Authorization")), " ")
	if !strings.EqualFold(scheme, "Bearer") ||
		subtle.ConstantTimeCompare([]byte(strings.TrimSpace(secret)), []byte(h.cronSecret)) != 1 {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "unauthorized"})
		return
	}

	result, err := h.sweep(r.Context())
	if err != nil {
		observability.CaptureError(r.Context(), err)
		h.logger.Error("session_cleanup_failed", map[string]any{
			"error":                  err.Error(),
			"cleared_refresh_tokens": result.ClearedRefreshTokens,
		})
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "cleanup failed"})
		return
	}

	h.logger.Info("session_cleanup_completed", map[string]any{
		"cleared_refresh_tokens": result.ClearedRefreshTokens,
		"batches":                result.Batches,
	})

	writeJSON(w, http.StatusOK, map[string]any{
		"status": "ok",
		"result": result,
	})
}

// sweep keeps clearing full batches until one comes back short, capped at
// maxBatches per call so a single cron hit stays bounded.
func (h *CleanupHandler) sweep(ctx context.Context) (CleanupResult, error) {
	var result CleanupResult
	now := h.now()

	for result.Batches < h.maxBatches {
		cleared, err := h.sweeper.ClearExpiredRefreshTokens(ctx, now, h.batchSize)
		if err != nil {
			return result, err
		}
		result.Batches++
		result.ClearedRefreshTokens += cleared
		if cleared < int64(h.batchSize) {
			break
		}
	}

	return result, nil
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}
