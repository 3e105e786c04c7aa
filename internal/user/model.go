package user

import (
	"strings"
	"time"
)

type User struct {
	ID                    string     `json:"id"`
	Username              string     `json:"username"`
	Email                 string     `json:"email"`
	Fullname              string     `json:"fullname"`
	AvatarURL             string     `json:"avatar"`
	CoverImageURL         string     `json:"cover_image"`
	PasswordHash          string     `json:"-"`
	RefreshToken          string     `json:"-"`
	RefreshTokenExpiresAt *time.Time `json:"-"`
	CreatedAt             time.Time  `json:"created_at"`
	UpdatedAt             time.Time  `json:"updated_at"`
}

// SanitizedUser is the only user shape that leaves the service layer.
type SanitizedUser struct {
	ID            string    `json:"id"`
	Username      string    `json:"username"`
	Email         string    `json:"email"`
	Fullname      string    `json:"fullname"`
	AvatarURL     string    `json:"avatar"`
	CoverImageURL string    `json:"cover_image"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

func (u User) Sanitize() SanitizedUser {
	return SanitizedUser{
		ID:            u.ID,
		Username:      u.Username,
		Email:         u.Email,
		Fullname:      u.Fullname,
		AvatarURL:     u.AvatarURL,
		CoverImageURL: u.CoverImageURL,
		CreatedAt:     u.CreatedAt,
		UpdatedAt:     u.UpdatedAt,
	}
}

type NewUser struct {
	Username      string
	Email         string
	Fullname      string
	PasswordHash  string
	AvatarURL     string
	CoverImageURL string
}

type AccountUpdate struct {
	Fullname *string
	Email    *string
}

type ChannelProfile struct {
	Username          string `json:"username"`
	Fullname          string `json:"fullname"`
	Email             string `json:"email"`
	AvatarURL         string `json:"avatar"`
	CoverImageURL     string `json:"cover_image"`
	SubscribersCount  int64  `json:"subscribers_count"`
	SubscribedToCount int64  `json:"subscribed_to_count"`
	IsSubscribed      bool   `json:"is_subscribed"`
}

// Normalize lower-cases and trims identifiers the way they are stored.
func Normalize(identifier string) string {
	return strings.ToLower(strings.TrimSpace(identifier))
}
