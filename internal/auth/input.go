package auth

import (
	"regexp"
	"strings"

	"channel-accounts/internal/apperr"
	"channel-accounts/internal/media"
	"channel-accounts/internal/user"
)

var (
	usernameRegex = regexp.MustCompile(`^[a-z0-9_.-]{3,32}$`)
	emailRegex    = regexp.MustCompile(`^[^\s@]+@[^\s@]+\.[^\s@]+$`)
)

type RegisterInput struct {
	Username   string `json:"username"`
	Email      string `json:"email"`
	Fullname   string `json:"fullname"`
	Password   string `json:"password"`
	Avatar     *media.File `json:"-"`
	CoverImage *media.File `json:"-"`
}

func (in RegisterInput) normalize() RegisterInput {
	in.Username = user.Normalize(in.Username)
	in.Email = user.Normalize(in.Email)
	in.Fullname = strings.TrimSpace(in.Fullname)
	in.Password = strings.TrimSpace(in.Password)
	return in
}

func (in RegisterInput) validate() error {
	if in.Username == "" || in.Email == "" || in.Fullname == "" || in.Password == "" {
		return apperr.Validation("all fields are required")
	}
	if !usernameRegex.MatchString(in.Username) {
		return apperr.Validation("username format is invalid")
	}
	if !emailRegex.MatchString(in.Email) {
		return apperr.Validation("email format is invalid")
	}
	return nil
}

// LoginInput accepts either identifier; Username wins when both are set.
type LoginInput struct {
	Username string `json:"username"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

func (in LoginInput) identifier() string {
	if id := user.Normalize(in.Username); id != "" {
		return id
	}
	return user.Normalize(in.Email)
}

func (in LoginInput) validate() error {
	if in.identifier() == "" {
		return apperr.Validation("username or email is required")
	}
	if strings.TrimSpace(in.Password) == "" {
		return apperr.Validation("password is required")
	}
	return nil
}

type ChangePasswordInput struct {
	OldPassword string `json:"old_password"`
	NewPassword string `json:"new_password"`
}

func (in ChangePasswordInput) validate() error {
	if strings.TrimSpace(in.OldPassword) == "" || strings.TrimSpace(in.NewPassword) == "" {
		return apperr.Validation("old and new password are required")
	}
	return nil
}
