package auth

import (
	"context"
	"net/http"
	"strings"

	"channel-accounts/internal/apperr"
)

const (
	AccessTokenCookie  = "accessToken"
	RefreshTokenCookie = "refreshToken"
)

type userIDKey struct{}

// Authenticator turns a raw access token into a user ID.
type Authenticator interface {
	Authenticate(raw string) (string, error)
}

func WithUserID(ctx context.Context, userID string) context.Context {
	return context.WithValue(ctx, userIDKey{}, userID)
}

func UserIDFromContext(ctx context.Context) (string, bool) {
	userID, ok := ctx.Value(userIDKey{}).(string)
	return userID, ok && userID != ""
}

func Middleware(authn Authenticator, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw, err := accessToken(r)
		if err != nil {
			writeError(w, http.StatusUnauthorized, apperr.PublicMessage(err))
			return
		}

		userID, err := authn.Authenticate(raw)
		if err != nil {
			writeError(w, apperr.HTTPStatus(err), apperr.PublicMessage(err))
			return
		}

		next.ServeHTTP(w, r.WithContext(WithUserID(r.Context(), userID)))
	})
}

// OptionalMiddleware attaches the caller's identity when a valid access
// token is present and otherwise lets the request through anonymously.
func OptionalMiddleware(authn Authenticator, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw, err := accessToken(r)
		if err == nil && raw != "" {
			if userID, err := authn.Authenticate(raw); err == nil {
				r = r.WithContext(WithUserID(r.Context(), userID))
			}
		}

		next.ServeHTTP(w, r)
	})
}

// accessToken prefers the Authorization header over the cookie.
func accessToken(r *http.Request) (string, error) {
	header := strings.TrimSpace(r.Header.Get("Authorization"))
	if header != "" {
		scheme, value, found := strings.Cut(header, " ")
		if !found || !strings.EqualFold(scheme, "Bearer") {
			return "", apperr.Unauthorized("invalid authorization format")
		}
		return strings.TrimSpace(value), nil
	}

	if cookie, err := r.Cookie(AccessTokenCookie); err == nil {
		return strings.TrimSpace(cookie.Value), nil
	}

	return "", nil
}
