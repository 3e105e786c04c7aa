package token

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestIssuer(t *testing.T) *Issuer {
	t.Helper()
	issuer, err := NewIssuer(Config{
		AccessSecret:  []byte("access-secret"),
		RefreshSecret: []byte("refresh-secret"),
		AccessTTL:     time.Minute,
		RefreshTTL:    time.Hour,
		Issuer:        "test",
	})
	require.NoError(t, err)
	return issuer
}

func TestNewIssuer_Config(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		cfg     Config
		wantErr bool
	}{
		{"valid", Config{AccessSecret: []byte("a"), RefreshSecret: []byte("r")}, false},
		{"missing access", Config{RefreshSecret: []byte("r")}, true},
		{"missing refresh", Config{AccessSecret: []byte("a")}, true},
		{"shared secret", Config{AccessSecret: []byte("same"), RefreshSecret: []byte("same")}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewIssuer(tt.cfg)
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestIssueAndVerify(t *testing.T) {
	t.Parallel()
	issuer := newTestIssuer(t)

	access, err := issuer.IssueAccessToken("user-1")
	require.NoError(t, err)

	claims, err := issuer.Verify(access, ClassAccess)
	require.NoError(t, err)
	assert.Equal(t, "user-1", claims.Subject)
	assert.Equal(t, ClassAccess, claims.Type)
	assert.NotEmpty(t, claims.ID)
	assert.Equal(t, time.Minute, claims.ExpiresAt.Sub(claims.IssuedAt.Time))

	refresh, expiresAt, err := issuer.IssueRefreshToken("user-1")
	require.NoError(t, err)

	claims, err = issuer.Verify(refresh, ClassRefresh)
	require.NoError(t, err)
	assert.Equal(t, "user-1", claims.Subject)
	assert.WithinDuration(t, expiresAt, claims.ExpiresAt.Time, time.Second)
}

func TestRefreshTokensAreUnique(t *testing.T) {
	t.Parallel()
	fixed := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	issuer := newTestIssuer(t).WithClock(func() time.Time { return fixed })

	first, _, err := issuer.IssueRefreshToken("user-1")
	require.NoError(t, err)
	second, _, err := issuer.IssueRefreshToken("user-1")
	require.NoError(t, err)

	assert.NotEqual(t, first, second)
}

func TestVerify_Expired(t *testing.T) {
	t.Parallel()
	issuer := newTestIssuer(t)
	issuer.WithClock(func() time.Time { return time.Now().UTC().Add(-2 * time.Hour) })

	refresh, _, err := issuer.IssueRefreshToken("user-1")
	require.NoError(t, err)

	issuer.WithClock(func() time.Time { return time.Now().UTC() })
	_, err = issuer.Verify(refresh, ClassRefresh)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrExpired)

	var verr *VerificationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, ReasonExpired, verr.Reason)
}

func TestVerify_WrongClassIsSignatureMismatch(t *testing.T) {
	t.Parallel()
	issuer := newTestIssuer(t)

	access, err := issuer.IssueAccessToken("user-1")
	require.NoError(t, err)

	_, err = issuer.Verify(access, ClassRefresh)
	assert.ErrorIs(t, err, ErrSignatureMismatch)
}

func TestVerify_ForeignSecret(t *testing.T) {
	t.Parallel()
	issuer := newTestIssuer(t)
	other, err := NewIssuer(Config{
		AccessSecret:  []byte("other-access"),
		RefreshSecret: []byte("other-refresh"),
		Issuer:        "test",
	})
	require.NoError(t, err)

	refresh, _, err := other.IssueRefreshToken("user-1")
	require.NoError(t, err)

	_, err = issuer.Verify(refresh, ClassRefresh)
	assert.ErrorIs(t, err, ErrSignatureMismatch)
}

func TestVerify_Malformed(t *testing.T) {
	t.Parallel()
	issuer := newTestIssuer(t)

	for _, raw := range []string{"", "invalid", "not.a.jwt"} {
		_, err := issuer.Verify(raw, ClassAccess)
		assert.ErrorIs(t, err, ErrMalformed, raw)
		assert.NotErrorIs(t, err, ErrExpired, raw)
	}
}

func TestVerify_TypeClaimMismatch(t *testing.T) {
	t.Parallel()
	issuer := newTestIssuer(t)

	now := time.Now().UTC()
	forged := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{
		Type: ClassRefresh,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   "user-1",
			Issuer:    "test",
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(time.Minute)),
		},
	})
	raw, err := forged.SignedString([]byte("access-secret"))
	require.NoError(t, err)

	_, err = issuer.Verify(raw, ClassAccess)
	assert.ErrorIs(t, err, ErrMalformed)
}

func TestVerify_RejectsOtherAlgorithms(t *testing.T) {
	t.Parallel()
	issuer := newTestIssuer(t)

	now := time.Now().UTC()
	forged := jwt.NewWithClaims(jwt.SigningMethodHS512, Claims{
		Type: ClassAccess,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   "user-1",
			Issuer:    "test",
			ExpiresAt: jwt.NewNumericDate(now.Add(time.Minute)),
		},
	})
	raw, err := forged.SignedString([]byte("access-secret"))
	require.NoError(t, err)

	_, err = issuer.Verify(raw, ClassAccess)
	assert.ErrorIs(t, err, ErrSignatureMismatch)
}
