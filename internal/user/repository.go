package user

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
)

const uniqueViolation = "23505"

const userColumns = `id, username, email, fullname, avatar_url, cover_image_url, password_hash,
	refresh_token, refresh_token_expires_at, created_at, updated_at`

type Repository struct {
	db *sql.DB
}

func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

func (r *Repository) FindUserByUsernameOrEmail(ctx context.Context, identifier string) (User, error) {
	identifier = Normalize(identifier)
	return r.queryUser(ctx, "query user by username or email", `
		SELECT `+userColumns+`
		FROM users
		WHERE LOWER(username) = $1 OR LOWER(email) = $1
		LIMIT 1
	`, identifier)
}

func (r *Repository) FindUserByID(ctx context.Context, id string) (User, error) {
	if _, err := uuid.Parse(id); err != nil {
		return User{}, ErrNotFound
	}
	return r.queryUser(ctx, "query user by id", `
		SELECT `+userColumns+`
		FROM users
		WHERE id = $1
	`, id)
}

func (r *Repository) FindUserByUsername(ctx context.Context, username string) (User, error) {
	return r.queryUser(ctx, "query user by username", `
		SELECT `+userColumns+`
		FROM users
		WHERE LOWER(username) = $1
	`, Normalize(username))
}

func (r *Repository) ExistsByUsernameOrEmail(ctx context.Context, username, email string) (bool, error) {
	var exists bool
	err := r.db.QueryRowContext(ctx, `
		SELECT EXISTS(
			SELECT 1 FROM users
			WHERE LOWER(username) = $1 OR LOWER(email) = $2
		)
	`, Normalize(username), Normalize(email)).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check user exists: %w", err)
	}

	return exists, nil
}

func (r *Repository) CreateUser(ctx context.Context, input NewUser) (User, error) {
	id, err := uuid.NewV7()
	if err != nil {
		return User{}, fmt.Errorf("generate uuid v7: %w", err)
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

	_, err = r.db.ExecContext(ctx, `
		INSERT INTO users (id, username, email, fullname, avatar_url, cover_image_url, password_hash, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $8)
	`, u.ID, u.Username, u.Email, u.Fullname, u.AvatarURL, u.CoverImageURL, u.PasswordHash, now)
	if err != nil {
		if isUniqueViolation(err) {
			return User{}, ErrDuplicate
		}
		return User{}, fmt.Errorf("insert user: %w", err)
	}

	return u, nil
}

func (r *Repository) SetRefreshToken(ctx context.Context, id, value string, expiresAt time.Time) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE users
		SET refresh_token = $2, refresh_token_expires_at = $3, updated_at = $4
		WHERE id = $1
	`, id, value, expiresAt.UTC(), time.Now().UTC())
	if err != nil {
		return fmt.Errorf("set refresh token: %w", err)
	}

	return expectOneRow(res, "set refresh token")
}

// RotateRefreshToken only writes when the stored token still equals
// expectedOld. Postgres serializes the row update, so for one presented token
// at most one caller sees true.
func (r *Repository) RotateRefreshToken(ctx context.Context, id, expectedOld, newValue string, expiresAt time.Time) (bool, error) {
	if expectedOld == "" {
		return false, nil
	}

	res, err := r.db.ExecContext(ctx, `
		UPDATE users
		SET refresh_token = $3, refresh_token_expires_at = $4, updated_at = $5
		WHERE id = $1 AND refresh_token = $2
	`, id, expectedOld, newValue, expiresAt.UTC(), time.Now().UTC())
	if err != nil {
		return false, fmt.Errorf("rotate refresh token: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("rotate refresh token rows affected: %w", err)
	}

	return affected == 1, nil
}

func (r *Repository) ClearRefreshToken(ctx context.Context, id string) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE users
		SET refresh_token = NULL, refresh_token_expires_at = NULL, updated_at = $2
		WHERE id = $1
	`, id, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("clear refresh token: %w", err)
	}

	return nil
}

func (r *Repository) ClearExpiredRefreshTokens(ctx context.Context, now time.Time, batchSize int) (int64, error) {
	if batchSize <= 0 {
		batchSize = 500
	}

	res, err := r.db.ExecContext(ctx, `
		WITH stale AS (
			SELECT id
			FROM users
			WHERE refresh_token IS NOT NULL AND refresh_token_expires_at < $1
			ORDER BY refresh_token_expires_at ASC
			LIMIT $2
		)
		UPDATE users u
		SET refresh_token = NULL, refresh_token_expires_at = NULL
		FROM stale
		WHERE u.id = stale.id AND u.refresh_token_expires_at < $1
	`, now.UTC(), batchSize)
	if err != nil {
		return 0, fmt.Errorf("clear expired refresh tokens: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("expired refresh tokens rows affected: %w", err)
	}

	return affected, nil
}

func (r *Repository) UpdatePasswordHash(ctx context.Context, id, hash string) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE users
		SET password_hash = $2, updated_at = $3
		WHERE id = $1
	`, id, hash, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("update password hash: %w", err)
	}

	return expectOneRow(res, "update password hash")
}

func (r *Repository) UpdateAccount(ctx context.Context, id string, update AccountUpdate) (User, error) {
	var email any
	if update.Email != nil {
		email = Normalize(*update.Email)
	}
	var fullname any
	if update.Fullname != nil {
		fullname = *update.Fullname
	}

	u, err := r.queryUser(ctx, "update account", `
		UPDATE users
		SET fullname = COALESCE($2, fullname), email = COALESCE($3, email), updated_at = $4
		WHERE id = $1
		RETURNING `+userColumns, id, fullname, email, time.Now().UTC())
	if isUniqueViolation(err) {
		return User{}, ErrDuplicate
	}
	return u, err
}

func (r *Repository) UpdateAvatar(ctx context.Context, id, url string) (User, error) {
	return r.queryUser(ctx, "update avatar", `
		UPDATE users
		SET avatar_url = $2, updated_at = $3
		WHERE id = $1
		RETURNING `+userColumns, id, url, time.Now().UTC())
}

func (r *Repository) UpdateCoverImage(ctx context.Context, id, url string) (User, error) {
	return r.queryUser(ctx, "update cover image", `
		UPDATE users
		SET cover_image_url = $2, updated_at = $3
		WHERE id = $1
		RETURNING `+userColumns, id, url, time.Now().UTC())
}

func (r *Repository) ChannelProfile(ctx context.Context, username, viewerID string) (ChannelProfile, error) {
	var p ChannelProfile
	err := r.db.QueryRowContext(ctx, `
		SELECT
			u.username,
			u.fullname,
			u.email,
			u.avatar_url,
			u.cover_image_url,
			(SELECT COUNT(*) FROM subscriptions s WHERE s.channel_id = u.id) AS subscribers_count,
			(SELECT COUNT(*) FROM subscriptions s WHERE s.subscriber_id = u.id) AS subscribed_to_count,
			EXISTS(
				SELECT 1 FROM subscriptions s
				WHERE s.channel_id = u.id AND s.subscriber_id::text = $2
			) AS is_subscribed
		FROM users u
		WHERE LOWER(u.username) = $1
	`, Normalize(username), viewerID).Scan(
		&p.Username, &p.Fullname, &p.Email, &p.AvatarURL, &p.CoverImageURL,
		&p.SubscribersCount, &p.SubscribedToCount, &p.IsSubscribed,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return ChannelProfile{}, ErrNotFound
		}
		return ChannelProfile{}, fmt.Errorf("query channel profile: %w", err)
	}

	return p, nil
}

func (r *Repository) Subscribe(ctx context.Context, subscriberID, channelID string) error {
	id, err := uuid.NewV7()
	if err != nil {
		return fmt.Errorf("generate subscription id: %w", err)
	}

	_, err = r.db.ExecContext(ctx, `
		INSERT INTO subscriptions (id, subscriber_id, channel_id, created_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (subscriber_id, channel_id) DO NOTHING
	`, id.String(), subscriberID, channelID, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("insert subscription: %w", err)
	}

	return nil
}

func (r *Repository) Unsubscribe(ctx context.Context, subscriberID, channelID string) error {
	_, err := r.db.ExecContext(ctx, `
		DELETE FROM subscriptions
		WHERE subscriber_id = $1 AND channel_id = $2
	`, subscriberID, channelID)
	if err != nil {
		return fmt.Errorf("delete subscription: %w", err)
	}

	return nil
}

func (r *Repository) queryUser(ctx context.Context, op, query string, args ...any) (User, error) {
	var (
		u         User
		refresh   sql.NullString
		refreshAt sql.NullTime
	)
	err := r.db.QueryRowContext(ctx, query, args...).Scan(
		&u.ID, &u.Username, &u.Email, &u.Fullname, &u.AvatarURL, &u.CoverImageURL, &u.PasswordHash,
		&refresh, &refreshAt, &u.CreatedAt, &u.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return User{}, ErrNotFound
		}
		return User{}, fmt.Errorf("%s: %w", op, err)
	}

	if refresh.Valid {
		u.RefreshToken = refresh.String
	}
	if refreshAt.Valid {
		value := refreshAt.Time.UTC()
		u.RefreshTokenExpiresAt = &value
	}

	return u, nil
}

func expectOneRow(res sql.Result, op string) error {
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("%s rows affected: %w", op, err)
	}
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == uniqueViolation
}
