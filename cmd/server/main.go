package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/dumpkod/sdominanta/internal/api"
	"github.com/dumpkod/sdominanta/internal/config"
	"github.com/dumpkod/sdominanta/internal/handlers"
	"github.com/dumpkod/sdominanta/internal/identity"
	"github.com/dumpkod/sdominanta/internal/store"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err == nil {
		err = cfg.ValidateGateway()
	}
	if err != nil {
		bootLogger := zerolog.New(os.Stderr)
		bootLogger.Fatal().Err(err).Msg("invalid configuration")
	}

	logger := newLogger(cfg)
	ctx := context.Background()

	opts := handlers.Options{
		Resolver:   identity.NewResolver(cfg.IdentitySecret, !cfg.IsDevelopment()),
		Logger:     logger,
		DefaultTTL: cfg.DefaultTTL,
	}
	if cfg.IdentitySecret == "" {
		logger.Warn().Msg("IDENTITY_SECRET not set, anonymous callers get random ids")
	}

	// Initialize Redis store
	var redisClient *redis.Client
	if cfg.RedisURL != "" {
		redisStore, err := store.NewRedisStore(ctx, cfg.RedisURL)
		if err != nil {
			logger.Fatal().Err(err).Msg("redis connection failed")
		}
		defer redisStore.Close()
		opts.Mailbox = redisStore
		redisClient = redisStore.Client()
		logger.Info().Msg("connected to Redis")
	} else {
		logger.Warn().Msg("REDIS_URL not set, mailbox routes will answer server_not_configured")
	}

	// Initialize the profile store, if any
	switch {
	case cfg.DatabaseURL != "":
		pgStore, err := store.NewPostgresStore(ctx, cfg.DatabaseURL)
		if err != nil {
			logger.Fatal().Err(err).Msg("postgres connection failed")
		}
		defer pgStore.Close()
		opts.Profiles = pgStore
		logger.Info().Msg("connected to PostgreSQL")
	case cfg.SQLitePath != "":
		sqliteStore, err := store.NewSQLiteStore(ctx, cfg.SQLitePath)
		if err != nil {
			logger.Fatal().Err(err).Msg("sqlite open failed")
		}
		defer sqliteStore.Close()
		opts.Profiles = sqliteStore
		logger.Info().Str("path", cfg.SQLitePath).Msg("opened SQLite profile store")
	}

	// Create router
	router := api.NewRouter(api.Options{
		Logger:           logger,
		Handler:          handlers.NewHandler(opts),
		Redis:            redisClient,
		APIKey:           cfg.APIKey,
		MaxBodyBytes:     cfg.MaxBodyBytes,
		RateLimitAllow:   cfg.RateLimitWhitelist,
		AutoBlockEnabled: cfg.AutoBlockEnabled,
	})

	// Create server
	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start server in goroutine
	go func() {
		logger.Info().
			Str("port", cfg.Port).
			Str("env", cfg.Env).
			Bool("api_key", cfg.APIKey != "").
			Msg("starting sdominanta gateway")

		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal().Err(err).Msg("server failed to start")
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info().Msg("shutting down server...")

	// Graceful shutdown with 30 second timeout
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("server forced to shutdown")
	}

	logger.Info().Msg("server stopped")
}

func newLogger(cfg *config.Config) zerolog.Logger {
	if cfg.IsDevelopment() {
		return zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339}).
			With().
			Timestamp().
			Logger()
	}
	return zerolog.New(os.Stdout).
		With().
		Timestamp().
		Logger()
}
