// Package auth owns the session lifecycle of an account: registration,
// credential login, refresh-token rotation, logout and password change.
//
// A user is Anonymous while its stored refresh token is empty and Active
// otherwise. Login and Refresh always replace the stored token; Refresh only
// succeeds for the exact token currently stored.
package auth

import (
	"context"
	"crypto/subtle"
	"errors"
	"strings"
	"time"

	"channel-accounts/internal/apperr"
	"channel-accounts/internal/media"
	"channel-accounts/internal/observability"
	"channel-accounts/internal/password"
	"channel-accounts/internal/token"
	"channel-accounts/internal/user"
)

const (
	msgIssueFailed     = "failed to issue tokens"
	msgInvalidRefresh  = "invalid refresh token"
	msgRefreshConsumed = "refresh token is expired or used"
	msgUnauthorized    = "unauthorized request"
)

// PasswordHasher is a password.Hasher that can also hand out a hash nobody
// knows the plaintext of.
type PasswordHasher interface {
	password.Hasher
	Dummy() string
}

type TokenPair struct {
	AccessToken      string    `json:"access_token"`
	RefreshToken     string    `json:"refresh_token"`
	TokenType        string    `json:"token_type"`
	ExpiresIn        int64     `json:"expires_in"`
	RefreshExpiresAt time.Time `json:"-"`
}

type LoginResult struct {
	TokenPair
	User user.SanitizedUser `json:"user"`
}

type Service struct {
	store    user.Store
	hasher   PasswordHasher
	tokens   *token.Issuer
	uploader media.Uploader
	logger   *observability.Logger
}

func NewService(store user.Store, hasher PasswordHasher, tokens *token.Issuer, uploader media.Uploader, logger *observability.Logger) *Service {
	if uploader == nil {
		uploader = media.Disabled{}
	}
	return &Service{
		store:    store,
		hasher:   hasher,
		tokens:   tokens,
		uploader: uploader,
		logger:   logger,
	}
}

func (s *Service) Register(ctx context.Context, in RegisterInput) (user.SanitizedUser, error) {
	in = in.normalize()
	if err := in.validate(); err != nil {
		return user.SanitizedUser{}, err
	}

	exists, err := s.store.ExistsByUsernameOrEmail(ctx, in.Username, in.Email)
	if err != nil {
		return user.SanitizedUser{}, apperr.Internal("failed to register user", err)
	}
	if exists {
		return user.SanitizedUser{}, apperr.Conflict("user with email or username already exists")
	}

	hash, err := s.hasher.Hash(in.Password)
	if err != nil {
		if errors.Is(err, password.ErrPasswordTooLong) {
			return user.SanitizedUser{}, apperr.Validation("password must be at most 72 bytes")
		}
		return user.SanitizedUser{}, apperr.Internal("failed to register user", err)
	}

	avatarURL, err := s.upload(ctx, in.Avatar)
	if err != nil {
		return user.SanitizedUser{}, apperr.Internal("failed to upload avatar", err)
	}
	coverURL, err := s.upload(ctx, in.CoverImage)
	if err != nil {
		return user.SanitizedUser{}, apperr.Internal("failed to upload cover image", err)
	}

	created, err := s.store.CreateUser(ctx, user.NewUser{
		Username:      in.Username,
		Email:         in.Email,
		Fullname:      in.Fullname,
		PasswordHash:  hash,
		AvatarURL:     avatarURL,
		CoverImageURL: coverURL,
	})
	if err != nil {
		if errors.Is(err, user.ErrDuplicate) {
			return user.SanitizedUser{}, apperr.Conflict("user with email or username already exists")
		}
		return user.SanitizedUser{}, apperr.Internal("failed to register user", err)
	}

	s.logger.Info("user_registered", map[string]any{"user_id": created.ID})
	return created.Sanitize(), nil
}

func (s *Service) Login(ctx context.Context, in LoginInput) (LoginResult, error) {
	if err := in.validate(); err != nil {
		return LoginResult{}, err
	}
	plaintext := strings.TrimSpace(in.Password)

	u, err := s.store.FindUserByUsernameOrEmail(ctx, in.identifier())
	if err != nil {
		if errors.Is(err, user.ErrNotFound) {
			_, _ = s.hasher.Verify(plaintext, s.hasher.Dummy())
			return LoginResult{}, apperr.NotFound("user does not exist")
		}
		return LoginResult{}, apperr.Internal("failed to login", err)
	}

	ok, err := s.hasher.Verify(plaintext, u.PasswordHash)
	if err != nil {
		return LoginResult{}, apperr.Internal("failed to login", err)
	}
	if !ok {
		s.logger.Debug("login_rejected", map[string]any{"user_id": u.ID})
		return LoginResult{}, apperr.Unauthorized("invalid user credentials")
	}

	pair, err := s.issuePair(u.ID)
	if err != nil {
		return LoginResult{}, apperr.Internal(msgIssueFailed, err)
	}
	if err := s.store.SetRefreshToken(ctx, u.ID, pair.RefreshToken, pair.RefreshExpiresAt); err != nil {
		return LoginResult{}, apperr.Internal(msgIssueFailed, err)
	}

	s.logger.Info("user_logged_in", map[string]any{"user_id": u.ID})
	return LoginResult{TokenPair: pair, User: u.Sanitize()}, nil
}

// Refresh exchanges the stored refresh token for a new pair. The swap is a
// compare-and-swap against incoming, so replaying a token that was already
// rotated fails even if both requests passed the equality check.
func (s *Service) Refresh(ctx context.Context, incoming string) (TokenPair, error) {
	incoming = strings.TrimSpace(incoming)
	if incoming == "" {
		return TokenPair{}, apperr.Unauthorized(msgUnauthorized)
	}

	claims, err := s.tokens.Verify(incoming, token.ClassRefresh)
	if err != nil {
		reason := "unknown"
		var verr *token.VerificationError
		if errors.As(err, &verr) {
			reason = verr.Reason.String()
		}
		s.logger.Debug("refresh_token_rejected", map[string]any{"reason": reason})
		return TokenPair{}, apperr.Unauthorized(msgInvalidRefresh)
	}

	u, err := s.store.FindUserByID(ctx, claims.Subject)
	if err != nil {
		if errors.Is(err, user.ErrNotFound) {
			return TokenPair{}, apperr.Unauthorized(msgInvalidRefresh)
		}
		return TokenPair{}, apperr.Internal(msgIssueFailed, err)
	}

	if subtle.ConstantTimeCompare([]byte(u.RefreshToken), []byte(incoming)) != 1 {
		s.logger.Warn("refresh_token_reuse", map[string]any{"user_id": u.ID})
		return TokenPair{}, apperr.Unauthorized(msgRefreshConsumed)
	}

	pair, err := s.issuePair(u.ID)
	if err != nil {
		return TokenPair{}, apperr.Internal(msgIssueFailed, err)
	}

	swapped, err := s.store.RotateRefreshToken(ctx, u.ID, incoming, pair.RefreshToken, pair.RefreshExpiresAt)
	if err != nil {
		return TokenPair{}, apperr.Internal(msgIssueFailed, err)
	}
	if !swapped {
		s.logger.Warn("refresh_token_race_lost", map[string]any{"user_id": u.ID})
		return TokenPair{}, apperr.Unauthorized(msgRefreshConsumed)
	}

	return pair, nil
}

func (s *Service) Logout(ctx context.Context, userID string) error {
	if err := s.store.ClearRefreshToken(ctx, userID); err != nil {
		return apperr.Internal("failed to logout", err)
	}

	s.logger.Info("user_logged_out", map[string]any{"user_id": userID})
	return nil
}

// ChangePassword leaves the stored refresh token alone, so existing sessions
// keep working.
func (s *Service) ChangePassword(ctx context.Context, userID string, in ChangePasswordInput) error {
	if err := in.validate(); err != nil {
		return err
	}

	u, err := s.store.FindUserByID(ctx, userID)
	if err != nil {
		if errors.Is(err, user.ErrNotFound) {
			return apperr.NotFound("user does not exist")
		}
		return apperr.Internal("failed to change password", err)
	}

	ok, err := s.hasher.Verify(strings.TrimSpace(in.OldPassword), u.PasswordHash)
	if err != nil {
		return apperr.Internal("failed to change password", err)
	}
	if !ok {
		return apperr.Unauthorized("invalid old password")
	}

	hash, err := s.hasher.Hash(strings.TrimSpace(in.NewPassword))
	if err != nil {
		if errors.Is(err, password.ErrPasswordTooLong) {
			return apperr.Validation("password must be at most 72 bytes")
		}
		return apperr.Internal("failed to change password", err)
	}

	if err := s.store.UpdatePasswordHash(ctx, u.ID, hash); err != nil {
		if errors.Is(err, user.ErrNotFound) {
			return apperr.NotFound("user does not exist")
		}
		return apperr.Internal("failed to change password", err)
	}

	s.logger.Info("password_changed", map[string]any{"user_id": u.ID})
	return nil
}

func (s *Service) CurrentUser(ctx context.Context, userID string) (user.SanitizedUser, error) {
	u, err := s.store.FindUserByID(ctx, userID)
	if err != nil {
		if errors.Is(err, user.ErrNotFound) {
			return user.SanitizedUser{}, apperr.NotFound("user does not exist")
		}
		return user.SanitizedUser{}, apperr.Internal("failed to fetch current user", err)
	}
	return u.Sanitize(), nil
}

// Authenticate verifies an access token and returns its subject. It does not
// touch the store.
func (s *Service) Authenticate(raw string) (string, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", apperr.Unauthorized(msgUnauthorized)
	}

	claims, err := s.tokens.Verify(raw, token.ClassAccess)
	if err != nil {
		if errors.Is(err, token.ErrExpired) {
			return "", apperr.Unauthorized("access token expired")
		}
		return "", apperr.Unauthorized("invalid access token")
	}
	return claims.Subject, nil
}

func (s *Service) issuePair(userID string) (TokenPair, error) {
	access, err := s.tokens.IssueAccessToken(userID)
	if err != nil {
		return TokenPair{}, err
	}
	refresh, refreshExp, err := s.tokens.IssueRefreshToken(userID)
	if err != nil {
		return TokenPair{}, err
	}

	return TokenPair{
		AccessToken:      access,
		RefreshToken:     refresh,
		TokenType:        "Bearer",
		ExpiresIn:        int64(s.tokens.AccessTTL().Seconds()),
		RefreshExpiresAt: refreshExp,
	}, nil
}

func (s *Service) upload(ctx context.Context, file *media.File) (string, error) {
	if file == nil {
		return "", nil
	}
	return s.uploader.UploadImage(ctx, file.DataURI())
}
