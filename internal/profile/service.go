// Package profile serves the public channel view of an account and the
// self-service updates of its non-credential attributes.
package profile

import (
	"context"
	"errors"
	"regexp"
	"strings"

	"channel-accounts/internal/apperr"
	"channel-accounts/internal/media"
	"channel-accounts/internal/observability"
	"channel-accounts/internal/user"
)

var emailRegex = regexp.MustCompile(`^[^\s@]+@[^\s@]+\.[^\s@]+$`)

type UpdateAccountInput struct {
	Fullname *string `json:"fullname"`
	Email    *string `json:"email"`
}

type Service struct {
	store    user.Store
	uploader media.Uploader
	logger   *observability.Logger
}

func NewService(store user.Store, uploader media.Uploader, logger *observability.Logger) *Service {
	if uploader == nil {
		uploader = media.Disabled{}
	}
	return &Service{store: store, uploader: uploader, logger: logger}
}

// ChannelProfile aggregates subscriber counts for username. viewerID may be
// empty, in which case IsSubscribed is always false.
func (s *Service) ChannelProfile(ctx context.Context, username, viewerID string) (user.ChannelProfile, error) {
	username = user.Normalize(username)
	if username == "" {
		return user.ChannelProfile{}, apperr.Validation("username is missing")
	}

	p, err := s.store.ChannelProfile(ctx, username, viewerID)
	if err != nil {
		if errors.Is(err, user.ErrNotFound) {
			return user.ChannelProfile{}, apperr.NotFound("channel not found")
		}
		return user.ChannelProfile{}, apperr.Internal("failed to fetch channel profile", err)
	}
	return p, nil
}

func (s *Service) UpdateAccount(ctx context.Context, userID string, in UpdateAccountInput) (user.SanitizedUser, error) {
	var update user.AccountUpdate
	if in.Fullname != nil {
		if fullname := strings.TrimSpace(*in.Fullname); fullname != "" {
			update.Fullname = &fullname
		}
	}
	if in.Email != nil {
		if email := user.Normalize(*in.Email); email != "" {
			if !emailRegex.MatchString(email) {
				return user.SanitizedUser{}, apperr.Validation("email format is invalid")
			}
			update.Email = &email
		}
	}
	if update.Fullname == nil && update.Email == nil {
		return user.SanitizedUser{}, apperr.Validation("fullname or email is required")
	}

	updated, err := s.store.UpdateAccount(ctx, userID, update)
	if err != nil {
		switch {
		case errors.Is(err, user.ErrDuplicate):
			return user.SanitizedUser{}, apperr.Conflict("email is already in use")
		case errors.Is(err, user.ErrNotFound):
			return user.SanitizedUser{}, apperr.NotFound("user does not exist")
		default:
			return user.SanitizedUser{}, apperr.Internal("failed to update account", err)
		}
	}

	s.logger.Info("account_updated", map[string]any{"user_id": userID})
	return updated.Sanitize(), nil
}

func (s *Service) UpdateAvatar(ctx context.Context, userID string, file *media.File) (user.SanitizedUser, error) {
	return s.replaceImage(ctx, userID, file, "avatar", s.store.UpdateAvatar)
}

func (s *Service) UpdateCoverImage(ctx context.Context, userID string, file *media.File) (user.SanitizedUser, error) {
	return s.replaceImage(ctx, userID, file, "cover image", s.store.UpdateCoverImage)
}

func (s *Service) replaceImage(
	ctx context.Context,
	userID string,
	file *media.File,
	label string,
	save func(ctx context.Context, id, url string) (user.User, error),
) (user.SanitizedUser, error) {
	if file == nil || len(file.Data) == 0 {
		return user.SanitizedUser{}, apperr.Validation(label + " file is missing")
	}

	url, err := s.uploader.UploadImage(ctx, file.DataURI())
	if err != nil {
		return user.SanitizedUser{}, apperr.Internal("failed to upload "+label, err)
	}

	updated, err := save(ctx, userID, url)
	if err != nil {
		if errors.Is(err, user.ErrNotFound) {
			return user.SanitizedUser{}, apperr.NotFound("user does not exist")
		}
		return user.SanitizedUser{}, apperr.Internal("failed to update "+label, err)
	}

	return updated.Sanitize(), nil
}

// Subscribe is idempotent: subscribing twice leaves one edge.
func (s *Service) Subscribe(ctx context.Context, subscriberID, channelUsername string) (user.ChannelProfile, error) {
	channel, err := s.resolveChannel(ctx, subscriberID, channelUsername)
	if err != nil {
		return user.ChannelProfile{}, err
	}

	if err := s.store.Subscribe(ctx, subscriberID, channel.ID); err != nil {
		if errors.Is(err, user.ErrNotFound) {
			return user.ChannelProfile{}, apperr.NotFound("user does not exist")
		}
		return user.ChannelProfile{}, apperr.Internal("failed to subscribe", err)
	}

	return s.ChannelProfile(ctx, channel.Username, subscriberID)
}

func (s *Service) Unsubscribe(ctx context.Context, subscriberID, channelUsername string) (user.ChannelProfile, error) {
	channel, err := s.resolveChannel(ctx, subscriberID, channelUsername)
	if err != nil {
		return user.ChannelProfile{}, err
	}

	if err := s.store.Unsubscribe(ctx, subscriberID, channel.ID); err != nil {
		return user.ChannelProfile{}, apperr.Internal("failed to unsubscribe", err)
	}

	return s.ChannelProfile(ctx, channel.Username, subscriberID)
}

func (s *Service) resolveChannel(ctx context.Context, subscriberID, channelUsername string) (user.User, error) {
	channelUsername = user.Normalize(channelUsername)
	if channelUsername == "" {
		return user.User{}, apperr.Validation("username is missing")
	}

	channel, err := s.store.FindUserByUsername(ctx, channelUsername)
	if err != nil {
		if errors.Is(err, user.ErrNotFound) {
			return user.User{}, apperr.NotFound("channel not found")
		}
		return user.User{}, apperr.Internal("failed to fetch channel", err)
	}
	if channel.ID == subscriberID {
		return user.User{}, apperr.Validation("cannot subscribe to your own channel")
	}
	return channel, nil
}
