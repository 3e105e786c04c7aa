package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setRequired(t *testing.T) {
	t.Helper()
	t.Setenv("ACCESS_TOKEN_SECRET", "access-secret")
	t.Setenv("REFRESH_TOKEN_SECRET", "refresh-secret")
	t.Setenv("DATABASE_URL", "postgres://u:p@localhost:5432/accounts")
}

func TestLoad_Defaults(t *testing.T) {
	setRequired(t)

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "8000", cfg.Port)
	assert.Equal(t, StoreDriverPostgres, cfg.StoreDriver)
	assert.Equal(t, 15*time.Minute, cfg.AccessTokenTTL)
	assert.Equal(t, 240*time.Hour, cfg.RefreshTokenTTL)
	assert.Equal(t, 10, cfg.DBMaxOpenConns)
	assert.True(t, cfg.CookieSecure)
	assert.True(t, cfg.RunMigrations)
	assert.Equal(t, "access-secret", cfg.AccessTokenSecret)
}

func TestLoad_Overrides(t *testing.T) {
	setRequired(t)
	t.Setenv("ACCESS_TOKEN_TTL_MINUTES", "5")
	t.Setenv("REFRESH_TOKEN_TTL_HOURS", "48")
	t.Setenv("COOKIE_SECURE", "off")
	t.Setenv("DB_MAX_OPEN_CONNS", "-3")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 5*time.Minute, cfg.AccessTokenTTL)
	assert.Equal(t, 48*time.Hour, cfg.RefreshTokenTTL)
	assert.False(t, cfg.CookieSecure)
	assert.Equal(t, 10, cfg.DBMaxOpenConns, "non-positive values fall back")
}

func TestLoad_MissingSecret(t *testing.T) {
	setRequired(t)
	t.Setenv("REFRESH_TOKEN_SECRET", "  ")

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "REFRESH_TOKEN_SECRET")
}

func TestLoad_MemoryDriverSkipsDatabaseURL(t *testing.T) {
	setRequired(t)
	t.Setenv("DATABASE_URL", "")
	t.Setenv("STORE_DRIVER", "memory")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, StoreDriverMemory, cfg.StoreDriver)
	assert.Empty(t, cfg.DatabaseURL)
}

func TestLoad_UnknownDriver(t *testing.T) {
	setRequired(t)
	t.Setenv("STORE_DRIVER", "mongo")

	_, err := Load()
	require.Error(t, err)
}

func TestEnvBoolOrDefault(t *testing.T) {
	t.Setenv("FLAG_X", "yes")
	assert.True(t, EnvBoolOrDefault("FLAG_X", false))

	t.Setenv("FLAG_X", "maybe")
	assert.False(t, EnvBoolOrDefault("FLAG_X", false))

	t.Setenv("FLAG_X", "")
	assert.True(t, EnvBoolOrDefault("FLAG_X", true))
}
