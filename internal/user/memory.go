package user

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
)

type edge struct {
	subscriberID string
	channelID    string
}

// MemoryStore is a Store backed by maps. Every method holds the lock for its
// whole read-compare-write, which gives RotateRefreshToken the same
// at-most-one-winner guarantee as the conditional UPDATE in Repository.
type MemoryStore struct {
	mu            sync.RWMutex
	users         map[string]User
	subscriptions map[edge]time.Time
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		users:         make(map[string]User),
		subscriptions: make(map[edge]time.Time),
	}
}

func (s *MemoryStore) FindUserByUsernameOrEmail(ctx context.Context, identifier string) (User, error) {
	if err := ctx.Err(); err != nil {
		return User{}, err
	}
	identifier = Normalize(identifier)

	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, u := range s.users {
		if u.Username == identifier || u.Email == identifier {
			return u, nil
		}
	}
	return User{}, ErrNotFound
}

func (s *MemoryStore) FindUserByID(ctx context.Context, id string) (User, error) {
	if err := ctx.Err(); err != nil {
		return User{}, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	u, ok := s.users[id]
	if !ok {
		return User{}, ErrNotFound
	}
	return u, nil
}

func (s *MemoryStore) FindUserByUsername(ctx context.Context, username string) (User, error) {
	if err := ctx.Err(); err != nil {
		return User{}, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	u, ok := s.byUsername(Normalize(username))
	if !ok {
		return User{}, ErrNotFound
	}
	return u, nil
}

func (s *MemoryStore) ExistsByUsernameOrEmail(ctx context.Context, username, email string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.taken(Normalize(username), Normalize(email), ""), nil
}

func (s *MemoryStore) CreateUser(ctx context.Context, input NewUser) (User, error) {
	if err := ctx.Err(); err != nil {
		return User{}, err
	}

	id, err := uuid.NewV7()
	if err != nil {
		return User{}, err
	}
	now := time.Now().UTC()
	u := User{
		ID:            id.String(),
		Username:      Normalize(input.Username),
		Email:         Normalize(input.Email),
		Fullname:      input.Fullname,
		AvatarURL:     input.AvatarURL,
		CoverImageURL: input.CoverImageURL,
		PasswordHash:  input.PasswordHash,
		CreatedAt:     now,
		UpdatedAt:     now,
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.taken(u.Username, u.Email, "") {
		return User{}, ErrDuplicate
	}
	s.users[u.ID] = u
	return u, nil
}

func (s *MemoryStore) SetRefreshToken(ctx context.Context, id, value string, expiresAt time.Time) error {
	return s.mutate(ctx, id, func(u *User) error {
		exp := expiresAt.UTC()
		u.RefreshToken = value
		u.RefreshTokenExpiresAt = &exp
		return nil
	})
}

func (s *MemoryStore) RotateRefreshToken(ctx context.Context, id, expectedOld, newValue string, expiresAt time.Time) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	if expectedOld == "" {
		return false, nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[id]
	if !ok || u.RefreshToken != expectedOld {
		return false, nil
	}
	exp := expiresAt.UTC()
	u.RefreshToken = newValue
	u.RefreshTokenExpiresAt = &exp
	u.UpdatedAt = time.Now().UTC()
	s.users[id] = u
	return true, nil
}

func (s *MemoryStore) ClearRefreshToken(ctx context.Context, id string) error {
	err := s.mutate(ctx, id, func(u *User) error {
		u.RefreshToken = ""
		u.RefreshTokenExpiresAt = nil
		return nil
	})
	if errors.Is(err, ErrNotFound) {
		return nil
	}
	return err
}

func (s *MemoryStore) ClearExpiredRefreshTokens(ctx context.Context, now time.Time, batchSize int) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	if batchSize <= 0 {
		batchSize = 500
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	var cleared int64
	for id, u := range s.users {
		if cleared >= int64(batchSize) {
			break
		}
		if u.RefreshToken == "" || u.RefreshTokenExpiresAt == nil || !u.RefreshTokenExpiresAt.Before(now) {
			continue
		}
		u.RefreshToken = ""
		u.RefreshTokenExpiresAt = nil
		s.users[id] = u
		cleared++
	}
	return cleared, nil
}

func (s *MemoryStore) UpdatePasswordHash(ctx context.Context, id, hash string) error {
	return s.mutate(ctx, id, func(u *User) error {
		u.PasswordHash = hash
		return nil
	})
}

func (s *MemoryStore) UpdateAccount(ctx context.Context, id string, update AccountUpdate) (User, error) {
	var out User
	err := s.mutate(ctx, id, func(u *User) error {
		if update.Email != nil {
			email := Normalize(*update.Email)
			if s.taken("", email, id) {
				return ErrDuplicate
			}
			u.Email = email
		}
		if update.Fullname != nil {
			u.Fullname = *update.Fullname
		}
		out = *u
		return nil
	})
	return out, err
}

func (s *MemoryStore) UpdateAvatar(ctx context.Context, id, url string) (User, error) {
	var out User
	err := s.mutate(ctx, id, func(u *User) error {
		u.AvatarURL = url
		out = *u
		return nil
	})
	return out, err
}

func (s *MemoryStore) UpdateCoverImage(ctx context.Context, id, url string) (User, error) {
	var out User
	err := s.mutate(ctx, id, func(u *User) error {
		u.CoverImageURL = url
		out = *u
		return nil
	})
	return out, err
}

func (s *MemoryStore) ChannelProfile(ctx context.Context, username, viewerID string) (ChannelProfile, error) {
	if err := ctx.Err(); err != nil {
		return ChannelProfile{}, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	u, ok := s.byUsername(Normalize(username))
	if !ok {
		return ChannelProfile{}, ErrNotFound
	}

	p := ChannelProfile{
		Username:      u.Username,
		Fullname:      u.Fullname,
		Email:         u.Email,
		AvatarURL:     u.AvatarURL,
		CoverImageURL: u.CoverImageURL,
	}
	for e := range s.subscriptions {
		if e.channelID == u.ID {
			p.SubscribersCount++
			if viewerID != "" && e.subscriberID == viewerID {
				p.IsSubscribed = true
			}
		}
		if e.subscriberID == u.ID {
			p.SubscribedToCount++
		}
	}
	return p, nil
}

func (s *MemoryStore) Subscribe(ctx context.Context, subscriberID, channelID string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.users[subscriberID]; !ok {
		return ErrNotFound
	}
	if _, ok := s.users[channelID]; !ok {
		return ErrNotFound
	}
	key := edge{subscriberID: subscriberID, channelID: channelID}
	if _, ok := s.subscriptions[key]; !ok {
		s.subscriptions[key] = time.Now().UTC()
	}
	return nil
}

func (s *MemoryStore) Unsubscribe(ctx context.Context, subscriberID, channelID string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.subscriptions, edge{subscriberID: subscriberID, channelID: channelID})
	return nil
}

func (s *MemoryStore) mutate(ctx context.Context, id string, fn func(u *User) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[id]
	if !ok {
		return ErrNotFound
	}
	if err := fn(&u); err != nil {
		return err
	}
	u.UpdatedAt = time.Now().UTC()
	s.users[id] = u
	return nil
}

// callers must hold s.mu.
func (s *MemoryStore) byUsername(username string) (User, bool) {
	for _, u := range s.users {
		if u.Username == username {
			return u, true
		}
	}
	return User{}, false
}

// callers must hold s.mu. Empty arguments never match; exceptID is skipped.
func (s *MemoryStore) taken(username, email, exceptID string) bool {
	for id, u := range s.users {
		if id == exceptID {
			continue
		}
		if (username != "" && u.Username == username) || (email != "" && u.Email == email) {
			return true
		}
	}
	return false
}
