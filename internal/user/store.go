// Package user persists account records and the social graph edges used by
// channel profiles.
//
// The refresh_token column is the single session slot of a user. Only the
// auth package writes it, and RotateRefreshToken is a compare-and-swap so two
// callers presenting the same token cannot both rotate it.
package user

import (
	"context"
	"errors"
	"time"
)

var (
	ErrNotFound  = errors.New("user not found")
	ErrDuplicate = errors.New("user already exists")
)

type Store interface {
	FindUserByUsernameOrEmail(ctx context.Context, identifier string) (User, error)
	FindUserByID(ctx context.Context, id string) (User, error)
	FindUserByUsername(ctx context.Context, username string) (User, error)
	ExistsByUsernameOrEmail(ctx context.Context, username, email string) (bool, error)
	CreateUser(ctx context.Context, input NewUser) (User, error)

	SetRefreshToken(ctx context.Context, id, value string, expiresAt time.Time) error
	RotateRefreshToken(ctx context.Context, id, expectedOld, newValue string, expiresAt time.Time) (bool, error)
	ClearRefreshToken(ctx context.Context, id string) error
	ClearExpiredRefreshTokens(ctx context.Context, now time.Time, batchSize int) (int64, error)

	UpdatePasswordHash(ctx context.Context, id, hash string) error
	UpdateAccount(ctx context.Context, id string, update AccountUpdate) (User, error)
	UpdateAvatar(ctx context.Context, id, url string) (User, error)
	UpdateCoverImage(ctx context.Context, id, url string) (User, error)

	ChannelProfile(ctx context.Context, username, viewerID string) (ChannelProfile, error)
	Subscribe(ctx context.Context, subscriberID, channelID string) error
	Unsubscribe(ctx context.Context, subscriberID, channelID string) error
}

var (
	_ Store = (*Repository)(nil)
	_ Store = (*MemoryStore)(nil)
)
