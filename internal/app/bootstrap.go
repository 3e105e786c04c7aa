// Package app assembles the HTTP runtime from configuration. Both the
// long-running server in cmd/api and the serverless entrypoint in api build
// through it.
package app

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/joho/godotenv"

	"channel-accounts/internal/auth"
	"channel-accounts/internal/config"
	"channel-accounts/internal/db"
	"channel-accounts/internal/maintenance"
	"channel-accounts/internal/media"
	"channel-accounts/internal/observability"
	"channel-accounts/internal/password"
	"channel-accounts/internal/profile"
	"channel-accounts/internal/token"
	"channel-accounts/internal/user"
)

type Options struct {
	LoadDotEnv bool
}

type Runtime struct {
	Config  config.Config
	Logger  *observability.Logger
	Handler http.Handler
	Close   func() error
}

func Build(ctx context.Context, options Options) (*Runtime, error) {
	if options.LoadDotEnv {
		_ = godotenv.Load()
	}

	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	return New(ctx, cfg)
}

func New(ctx context.Context, cfg config.Config) (*Runtime, error) {
	logger := observability.NewLogger(cfg.LogLevel)

	if err := observability.InitSentry(cfg.SentryDSN, cfg.AppEnv); err != nil {
		logger.Error("init_sentry_failed", map[string]any{"error": err.Error()})
	}

	store, database, err := openStore(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}
	closeAll := func() error {
		observability.FlushSentry()
		if database != nil {
			return database.Close()
		}
		return nil
	}

	hasher, err := password.NewBcrypt(cfg.BcryptCost)
	if err != nil {
		_ = closeAll()
		return nil, fmt.Errorf("init password hasher: %w", err)
	}

	issuer, err := token.NewIssuer(token.Config{
		AccessSecret:  []byte(cfg.AccessTokenSecret),
		RefreshSecret: []byte(cfg.RefreshTokenSecret),
		AccessTTL:     cfg.AccessTokenTTL,
		RefreshTTL:    cfg.RefreshTokenTTL,
		Issuer:        cfg.TokenIssuer,
	})
	if err != nil {
		_ = closeAll()
		return nil, fmt.Errorf("init token issuer: %w", err)
	}

	uploader, err := newUploader(cfg, logger)
	if err != nil {
		_ = closeAll()
		return nil, err
	}

	authService := auth.NewService(store, hasher, issuer, uploader, logger)
	authHandler := auth.NewHandler(authService, logger, cfg.CookieSecure)
	profileHandler := profile.NewHandler(profile.NewService(store, uploader, logger), logger)
	cleanupHandler := maintenance.NewCleanupHandler(store, logger, cfg.CronSecret, cfg.SessionCleanupBatch)

	requireUser := func(h http.HandlerFunc) http.Handler { return auth.Middleware(authService, h) }
	optionalUser := func(h http.HandlerFunc) http.Handler { return auth.OptionalMiddleware(authService, h) }

	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", healthHandler(database))

	mux.HandleFunc("POST /users/register", authHandler.Register)
	mux.HandleFunc("POST /users/login", authHandler.Login)
	mux.HandleFunc("POST /users/refresh-token", authHandler.Refresh)
	mux.Handle("POST /users/logout", requireUser(authHandler.Logout))
	mux.Handle("POST /users/change-password", requireUser(authHandler.ChangePassword))
	mux.Handle("GET /users/me", requireUser(authHandler.CurrentUser))

	mux.Handle("PATCH /users/me", requireUser(profileHandler.UpdateAccount))
	mux.Handle("PATCH /users/me/avatar", requireUser(profileHandler.UpdateAvatar))
	mux.Handle("PATCH /users/me/cover-image", requireUser(profileHandler.UpdateCoverImage))
	mux.Handle("GET /channels/{username}", optionalUser(profileHandler.ChannelProfile))
	mux.Handle("POST /channels/{username}/subscription", requireUser(profileHandler.Subscribe))
	mux.Handle("DELETE /channels/{username}/subscription", requireUser(profileHandler.Unsubscribe))

	mux.HandleFunc("GET /internal/maintenance/cleanup", cleanupHandler.Handle)
	mux.HandleFunc("POST /internal/maintenance/cleanup", cleanupHandler.Handle)

	handler := observability.RecoverMiddleware(logger, observability.RequestLoggingMiddleware(logger, mux))

	return &Runtime{
		Config:  cfg,
		Logger:  logger,
		Handler: handler,
		Close:   closeAll,
	}, nil
}

func openStore(ctx context.Context, cfg config.Config, logger *observability.Logger) (user.Store, *sql.DB, error) {
	if cfg.StoreDriver == config.StoreDriverMemory {
		logger.Warn("memory_store_enabled", map[string]any{"app_env": cfg.AppEnv})
		return user.NewMemoryStore(), nil, nil
	}

	database, err := db.Open(ctx, cfg.DatabaseURL, db.PoolConfig{
		MaxOpenConns:    cfg.DBMaxOpenConns,
		MaxIdleConns:    cfg.DBMaxIdleConns,
		ConnMaxLifetime: cfg.DBConnMaxLifetime,
		ConnMaxIdleTime: cfg.DBConnMaxIdleTime,
	})
	if err != nil {
		return nil, nil, err
	}

	if cfg.RunMigrations {
		if err := db.RunMigrations(ctx, database); err != nil {
			_ = database.Close()
			return nil, nil, fmt.Errorf("run migrations: %w", err)
		}
	}

	return user.NewRepository(database), database, nil
}

func newUploader(cfg config.Config, logger *observability.Logger) (media.Uploader, error) {
	if cfg.CloudinaryURL == "" {
		logger.Warn("image_uploads_disabled", map[string]any{"reason": "CLOUDINARY_URL is not set"})
		return media.Disabled{}, nil
	}

	client, err := media.NewCloudinary(cfg.CloudinaryURL, cfg.CloudinaryFolder)
	if err != nil {
		return nil, fmt.Errorf("init cloudinary: %w", err)
	}
	return client, nil
}

func healthHandler(database *sql.DB) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		status := http.StatusOK
		body := map[string]any{"status": "ok", "time": time.Now().UTC().Format(time.RFC3339)}

		if database != nil {
			ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
			defer cancel()

			if err := database.PingContext(ctx); err != nil {
				status = http.StatusServiceUnavailable
				body["status"] = "degraded"
			}
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_ = json.NewEncoder(w).Encode(body)
	}
}
