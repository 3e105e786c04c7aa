package auth

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"strings"
	"time"

	"channel-accounts/internal/apperr"
	"channel-accounts/internal/media"
	"channel-accounts/internal/observability"
)

const maxJSONBodyBytes = 1 << 20

type Handler struct {
	service      *Service
	logger       *observability.Logger
	cookieSecure bool
}

func NewHandler(service *Service, logger *observability.Logger, cookieSecure bool) *Handler {
	return &Handler{service: service, logger: logger, cookieSecure: cookieSecure}
}

type refreshRequest struct {
	RefreshToken string `json:"refresh_token"`
}

// Register accepts multipart/form-data with optional avatar and coverImage
// files, or a plain JSON body without files.
func (h *Handler) Register(w http.ResponseWriter, r *http.Request) {
	var input RegisterInput

	if isMultipart(r) {
		r.Body = http.MaxBytesReader(w, r.Body, 2*media.MaxUploadSizeBytes+maxJSONBodyBytes)
		if err := r.ParseMultipartForm(media.MaxUploadSizeBytes); err != nil {
			writeError(w, http.StatusBadRequest, "invalid multipart form")
			return
		}

		input = RegisterInput{
			Username: r.FormValue("username"),
			Email:    r.FormValue("email"),
			Fullname: r.FormValue("fullname"),
			Password: r.FormValue("password"),
		}

		var err error
		if input.Avatar, err = optionalFile(r, "avatar"); err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		if input.CoverImage, err = optionalFile(r, "coverImage"); err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
	} else if !decodeJSON(w, r, &input) {
		return
	}

	created, err := h.service.Register(r.Context(), input)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusCreated, created)
}

func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	var input LoginInput
	if !decodeJSON(w, r, &input) {
		return
	}

	result, err := h.service.Login(r.Context(), input)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}

	h.setSessionCookies(w, result.TokenPair)
	writeJSON(w, http.StatusOK, result)
}

// Refresh reads the refresh token from its cookie first and falls back to
// the JSON body.
func (h *Handler) Refresh(w http.ResponseWriter, r *http.Request) {
	var incoming string
	if cookie, err := r.Cookie(RefreshTokenCookie); err == nil {
		incoming = strings.TrimSpace(cookie.Value)
	}

	if incoming == "" && r.ContentLength != 0 {
		var body refreshRequest
		if !decodeJSON(w, r, &body) {
			return
		}
		incoming = body.RefreshToken
	}

	pair, err := h.service.Refresh(r.Context(), incoming)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}

	h.setSessionCookies(w, pair)
	writeJSON(w, http.StatusOK, pair)
}

func (h *Handler) Logout(w http.ResponseWriter, r *http.Request) {
	userID, ok := UserIDFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, msgUnauthorized)
		return
	}

	if err := h.service.Logout(r.Context(), userID); err != nil {
		h.writeServiceError(w, r, err)
		return
	}

	h.clearSessionCookies(w)
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) ChangePassword(w http.ResponseWriter, r *http.Request) {
	userID, ok := UserIDFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, msgUnauthorized)
		return
	}

	var input ChangePasswordInput
	if !decodeJSON(w, r, &input) {
		return
	}

	if err := h.service.ChangePassword(r.Context(), userID, input); err != nil {
		h.writeServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"message": "password changed"})
}

func (h *Handler) CurrentUser(w http.ResponseWriter, r *http.Request) {
	userID, ok := UserIDFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, msgUnauthorized)
		return
	}

	current, err := h.service.CurrentUser(r.Context(), userID)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, current)
}

func (h *Handler) setSessionCookies(w http.ResponseWriter, pair TokenPair) {
	http.SetCookie(w, h.cookie(AccessTokenCookie, pair.AccessToken, int(pair.ExpiresIn)))
	http.SetCookie(w, h.cookie(RefreshTokenCookie, pair.RefreshToken, int(time.Until(pair.RefreshExpiresAt).Seconds())))
}

func (h *Handler) clearSessionCookies(w http.ResponseWriter) {
	http.SetCookie(w, h.cookie(AccessTokenCookie, "", -1))
	http.SetCookie(w, h.cookie(RefreshTokenCookie, "", -1))
}

func (h *Handler) cookie(name, value string, maxAge int) *http.Cookie {
	return &http.Cookie{
		Name:     name,
		Value:    value,
		Path:     "/",
		MaxAge:   maxAge,
		HttpOnly: true,
		Secure:   h.cookieSecure,
		SameSite: http.SameSiteLaxMode,
	}
}

func (h *Handler) writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	if apperr.IsInternal(err) {
		observability.CaptureError(r.Context(), err)
		h.logger.Error("auth_request_failed", map[string]any{
			"path":  r.URL.Path,
			"error": err.Error(),
		})
	}
	writeError(w, apperr.HTTPStatus(err), apperr.PublicMessage(err))
}

func optionalFile(r *http.Request, field string) (*media.File, error) {
	file, err := media.ReadFormFile(r, field)
	if errors.Is(err, media.ErrNoFile) {
		return nil, nil
	}
	if err != nil {
		if errors.Is(err, media.ErrEmptyFile) || errors.Is(err, media.ErrFileTooLarge) || errors.Is(err, media.ErrNotImage) {
			return nil, fmt.Errorf("%s: %w", field, err)
		}
		return nil, fmt.Errorf("%s: invalid file", field)
	}
	return file, nil
}

func isMultipart(r *http.Request) bool {
	mediaType, _, err := mime.ParseMediaType(r.Header.Get("Content-Type"))
	return err == nil && mediaType == "multipart/form-data"
}

func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxJSONBodyBytes)

	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(dst); err != nil && !errors.Is(err, io.EOF) {
		writeError(w, http.StatusBadRequest, "invalid json body")
		return false
	}
	return true
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
