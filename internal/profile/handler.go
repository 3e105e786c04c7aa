package profile

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"channel-accounts/internal/apperr"
	"channel-accounts/internal/auth"
	"channel-accounts/internal/media"
	"channel-accounts/internal/observability"
	"channel-accounts/internal/user"
)

const maxJSONBodyBytes = 1 << 20

type Handler struct {
	service *Service
	logger  *observability.Logger
}

func NewHandler(service *Service, logger *observability.Logger) *Handler {
	return &Handler{service: service, logger: logger}
}

func (h *Handler) ChannelProfile(w http.ResponseWriter, r *http.Request) {
	viewerID, _ := auth.UserIDFromContext(r.Context())

	p, err := h.service.ChannelProfile(r.Context(), r.PathValue("username"), viewerID)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, p)
}

func (h *Handler) UpdateAccount(w http.ResponseWriter, r *http.Request) {
	userID, ok := auth.UserIDFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized request")
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, maxJSONBodyBytes)
	var input UpdateAccountInput
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(&input); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json body")
		return
	}

	updated, err := h.service.UpdateAccount(r.Context(), userID, input)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, updated)
}

func (h *Handler) UpdateAvatar(w http.ResponseWriter, r *http.Request) {
	h.updateImage(w, r, h.service.UpdateAvatar)
}

func (h *Handler) UpdateCoverImage(w http.ResponseWriter, r *http.Request) {
	h.updateImage(w, r, h.service.UpdateCoverImage)
}

func (h *Handler) Subscribe(w http.ResponseWriter, r *http.Request) {
	h.subscription(w, r, h.service.Subscribe)
}

func (h *Handler) Unsubscribe(w http.ResponseWriter, r *http.Request) {
	h.subscription(w, r, h.service.Unsubscribe)
}

func (h *Handler) updateImage(
	w http.ResponseWriter,
	r *http.Request,
	update func(ctx context.Context, userID string, file *media.File) (user.SanitizedUser, error),
) {
	userID, ok := auth.UserIDFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized request")
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, media.MaxUploadSizeBytes+maxJSONBodyBytes)
	file, err := media.ReadFormFile(r, "file")
	if err != nil {
		switch {
		case errors.Is(err, media.ErrNoFile), errors.Is(err, media.ErrEmptyFile),
			errors.Is(err, media.ErrFileTooLarge), errors.Is(err, media.ErrNotImage):
			writeError(w, http.StatusBadRequest, err.Error())
		default:
			writeError(w, http.StatusBadRequest, "invalid multipart form")
		}
		return
	}

	updated, err := update(r.Context(), userID, file)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, updated)
}

func (h *Handler) subscription(
	w http.ResponseWriter,
	r *http.Request,
	apply func(ctx context.Context, subscriberID, channelUsername string) (user.ChannelProfile, error),
) {
	userID, ok := auth.UserIDFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized request")
		return
	}

	p, err := apply(r.Context(), userID, r.PathValue("username"))
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, p)
}

func (h *Handler) writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	if apperr.IsInternal(err) {
		observability.CaptureError(r.Context(), err)
		h.logger.Error("profile_request_failed", map[string]any{
			"path":  r.URL.Path,
			"error": err.Error(),
		})
	}
	writeError(w, apperr.HTTPStatus(err), apperr.PublicMessage(err))
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
