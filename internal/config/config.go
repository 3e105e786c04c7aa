package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

const (
	StoreDriverPostgres = "postgres"
	StoreDriverMemory   = "memory"
)

// Config is loaded once at startup and passed by value; nothing reads the
// environment after Load returns.
type Config struct {
	Port        string
	AppEnv      string
	LogLevel    string
	StoreDriver string

	DatabaseURL       string
	DBMaxOpenConns    int
	DBMaxIdleConns    int
	DBConnMaxLifetime time.Duration
	DBConnMaxIdleTime time.Duration
	RunMigrations     bool

	AccessTokenSecret  string
	RefreshTokenSecret string
	AccessTokenTTL     time.Duration
	RefreshTokenTTL    time.Duration
	TokenIssuer        string
	BcryptCost         int
	CookieSecure       bool

	CloudinaryURL    string
	CloudinaryFolder string
	SentryDSN        string

	CronSecret          string
	SessionCleanupBatch int
}

func Load() (Config, error) {
	cfg := Config{
		Port:        envOrDefault("PORT", "8000"),
		AppEnv:      envOrDefault("APP_ENV", "development"),
		LogLevel:    envOrDefault("LOG_LEVEL", "info"),
		StoreDriver: strings.ToLower(envOrDefault("STORE_DRIVER", StoreDriverPostgres)),

		DBMaxOpenConns:    envIntOrDefault("DB_MAX_OPEN_CONNS", 10),
		DBMaxIdleConns:    envIntOrDefault("DB_MAX_IDLE_CONNS", 5),
		DBConnMaxLifetime: envMinutesOrDefault("DB_CONN_MAX_LIFETIME_MINUTES", 30),
		DBConnMaxIdleTime: envMinutesOrDefault("DB_CONN_MAX_IDLE_TIME_MINUTES", 10),
		RunMigrations:     EnvBoolOrDefault("RUN_MIGRATIONS_ON_STARTUP", true),

		AccessTokenTTL:  envMinutesOrDefault("ACCESS_TOKEN_TTL_MINUTES", 15),
		RefreshTokenTTL: envHoursOrDefault("REFRESH_TOKEN_TTL_HOURS", 240),
		TokenIssuer:     envOrDefault("TOKEN_ISSUER", "channel-accounts"),
		BcryptCost:      envIntOrDefault("PASSWORD_BCRYPT_COST", 0),
		CookieSecure:    EnvBoolOrDefault("COOKIE_SECURE", true),

		CloudinaryURL:    strings.TrimSpace(os.Getenv("CLOUDINARY_URL")),
		CloudinaryFolder: envOrDefault("CLOUDINARY_FOLDER", "channel-accounts"),
		SentryDSN:        strings.TrimSpace(os.Getenv("SENTRY_DSN")),

		CronSecret:          strings.TrimSpace(os.Getenv("CRON_SECRET")),
		SessionCleanupBatch: envIntOrDefault("SESSION_CLEANUP_BATCH_SIZE", 500),
	}

	var err error
	if cfg.AccessTokenSecret, err = mustEnv("ACCESS_TOKEN_SECRET"); err != nil {
		return Config{}, err
	}
	if cfg.RefreshTokenSecret, err = mustEnv("REFRESH_TOKEN_SECRET"); err != nil {
		return Config{}, err
	}

	switch cfg.StoreDriver {
	case StoreDriverPostgres:
		if cfg.DatabaseURL, err = mustEnv("DATABASE_URL"); err != nil {
			return Config{}, err
		}
	case StoreDriverMemory:
	default:
		return Config{}, fmt.Errorf("unsupported STORE_DRIVER: %s", cfg.StoreDriver)
	}

	return cfg, nil
}

func mustEnv(name string) (string, error) {
	value := strings.TrimSpace(os.Getenv(name))
	if value == "" {
		return "", fmt.Errorf("missing required env: %s", name)
	}
	return value, nil
}

func envOrDefault(name, fallback string) string {
	value := strings.TrimSpace(os.Getenv(name))
	if value == "" {
		return fallback
	}
	return value
}

func envIntOrDefault(name string, fallback int) int {
	value := strings.TrimSpace(os.Getenv(name))
	if value == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(value)
	if err != nil || parsed <= 0 {
		return fallback
	}
	return parsed
}

func envMinutesOrDefault(name string, fallback int) time.Duration {
	return time.Duration(envIntOrDefault(name, fallback)) * time.Minute
}

func envHoursOrDefault(name string, fallback int) time.Duration {
	return time.Duration(envIntOrDefault(name, fallback)) * time.Hour
}

func EnvBoolOrDefault(name string, fallback bool) bool {
	value := strings.TrimSpace(strings.ToLower(os.Getenv(name)))
	if value == "" {
		return fallback
	}

	switch value {
	case "1", "true", "yes", "on":
		return true
	case "0", "false", "no", "off":
		return false
	default:
		return fallback
	}
}
