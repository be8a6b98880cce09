package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/dumpkod/sdominanta/internal/config"
	"github.com/dumpkod/sdominanta/internal/relay"
)

func main() {
	cfg, err := config.Load()
	if err == nil {
		err = cfg.ValidateRelay()
	}
	if err != nil {
		bootLogger := zerolog.New(os.Stderr)
		bootLogger.Fatal().Err(err).Msg("invalid configuration")
	}

	var logger zerolog.Logger
	if cfg.IsDevelopment() {
		logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339}).
			With().
			Timestamp().
			Str("component", "relay").
			Logger()
	} else {
		logger = zerolog.New(os.Stdout).
			With().
			Timestamp().
			Str("component", "relay").
			Logger()
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	hub := relay.NewHub(relay.HubOptions{
		PeerEviction: cfg.Relay.PeerEviction,
		SendBuffer:   cfg.Relay.SendBuffer,
		Logger:       logger,
	})
	hubDone := make(chan struct{})
	go func() {
		hub.Run(ctx)
		close(hubDone)
	}()

	server := relay.NewServer(hub, relay.ServerOptions{
		AllowedOrigins:  cfg.Relay.AllowedOrigins,
		MaxMessageBytes: cfg.Relay.MaxMessageBytes,
		Logger:          logger,
	})

	srv := &http.Server{
		Addr:              ":" + cfg.Relay.Port,
		Handler:           server.Router(),
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		logger.Info().
			Str("port", cfg.Relay.Port).
			Str("peer_eviction", cfg.Relay.PeerEviction).
			Msg("starting sdominanta relay")

		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal().Err(err).Msg("relay failed to start")
		}
	}()

	<-ctx.Done()
	logger.Info().Msg("shutting down relay...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("relay forced to shutdown")
	}
	<-hubDone

	logger.Info().Msg("relay stopped")
}
