// Package token issues and verifies the signed access and refresh tokens.
// Each class has its own HS256 secret so a leak of one does not let an
// attacker mint the other.
package token

import (
	"bytes"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

type Class string

const (
	ClassAccess  Class = "access"
	ClassRefresh Class = "refresh"
)

const (
	defaultAccessTTL  = 15 * time.Minute
	defaultRefreshTTL = 10 * 24 * time.Hour
	defaultIssuer     = "channel-accounts"
)

type Config struct {
	AccessSecret  []byte
	RefreshSecret []byte
	AccessTTL     time.Duration
	RefreshTTL    time.Duration
	Issuer        string
}

type Claims struct {
	Type Class `json:"typ"`
	jwt.RegisteredClaims
}

type Issuer struct {
	accessSecret  []byte
	refreshSecret []byte
	accessTTL     time.Duration
	refreshTTL    time.Duration
	issuer        string
	now           func() time.Time
}

func NewIssuer(cfg Config) (*Issuer, error) {
	if len(cfg.AccessSecret) == 0 {
		return nil, fmt.Errorf("%w: access", ErrMissingSecret)
	}
	if len(cfg.RefreshSecret) == 0 {
		return nil, fmt.Errorf("%w: refresh", ErrMissingSecret)
	}
	if bytes.Equal(cfg.AccessSecret, cfg.RefreshSecret) {
		return nil, errors.New("access and refresh secrets must differ")
	}
	if cfg.AccessTTL <= 0 {
		cfg.AccessTTL = defaultAccessTTL
	}
	if cfg.RefreshTTL <= 0 {
		cfg.RefreshTTL = defaultRefreshTTL
	}
	if strings.TrimSpace(cfg.Issuer) == "" {
		cfg.Issuer = defaultIssuer
	}

	return &Issuer{
		accessSecret:  bytes.Clone(cfg.AccessSecret),
		refreshSecret: bytes.Clone(cfg.RefreshSecret),
		accessTTL:     cfg.AccessTTL,
		refreshTTL:    cfg.RefreshTTL,
		issuer:        cfg.Issuer,
		now:           func() time.Time { return time.Now().UTC() },
	}, nil
}

// WithClock replaces the time source for issuing and verifying.
func (i *Issuer) WithClock(now func() time.Time) *Issuer {
	i.now = now
	return i
}

func (i *Issuer) AccessTTL() time.Duration {
	return i.accessTTL
}

func (i *Issuer) IssueAccessToken(userID string) (string, error) {
	signed, _, err := i.issue(userID, ClassAccess)
	return signed, err
}

// IssueRefreshToken also returns the expiry so the caller can persist it
// alongside the token.
func (i *Issuer) IssueRefreshToken(userID string) (string, time.Time, error) {
	return i.issue(userID, ClassRefresh)
}

func (i *Issuer) issue(userID string, class Class) (string, time.Time, error) {
	if strings.TrimSpace(userID) == "" {
		return "", time.Time{}, errors.New("empty subject")
	}

	secret, ttl := i.secretFor(class)
	now := i.now()
	expiresAt := now.Add(ttl)

	claims := Claims{
		Type: class,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID,
			Issuer:    i.issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
			ID:        uuid.NewString(),
		},
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(secret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("sign %s token: %w", class, err)
	}

	return signed, expiresAt, nil
}

func (i *Issuer) Verify(raw string, class Class) (*Claims, error) {
	secret, _ := i.secretFor(class)

	claims := &Claims{}
	_, err := jwt.ParseWithClaims(raw, claims, func(t *jwt.Token) (any, error) {
		return secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(i.issuer),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(i.now),
	)
	if err != nil {
		return nil, classify(err)
	}

	if claims.Type != class {
		return nil, &VerificationError{Reason: ReasonMalformed, Err: fmt.Errorf("unexpected token type %q", claims.Type)}
	}
	if strings.TrimSpace(claims.Subject) == "" {
		return nil, &VerificationError{Reason: ReasonMalformed, Err: errors.New("missing subject")}
	}

	return claims, nil
}

func (i *Issuer) secretFor(class Class) ([]byte, time.Duration) {
	if class == ClassRefresh {
		return i.refreshSecret, i.refreshTTL
	}
	return i.accessSecret, i.accessTTL
}

// jwt/v5 checks the signature before the claims, so a forged expired token
// is reported as a signature mismatch.
func classify(err error) error {
	switch {
	case errors.Is(err, jwt.ErrTokenSignatureInvalid):
		return &VerificationError{Reason: ReasonSignatureMismatch, Err: err}
	case errors.Is(err, jwt.ErrTokenExpired):
		return &VerificationError{Reason: ReasonExpired, Err: err}
	default:
		return &VerificationError{Reason: ReasonMalformed, Err: err}
	}
}
