// Command server runs the chat API: REST endpoints under API_BASE_PATH and
// the real-time websocket at /ws, over a single SQLite database.
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/shaurya4531/insta-chat-appv2/internal/config"
	httpapi "github.com/shaurya4531/insta-chat-appv2/internal/http"
	"github.com/shaurya4531/insta-chat-appv2/internal/observability"
	"github.com/shaurya4531/insta-chat-appv2/internal/repo"
	"github.com/shaurya4531/insta-chat-appv2/internal/services"
	"github.com/shaurya4531/insta-chat-appv2/internal/sysutil"
)

// version is overridden at build time with -ldflags "-X main.version=...".
var version = "dev"

const (
	shutdownGrace = 15 * time.Second
	purgeEvery    = time.Hour
)

func main() {
	// A missing .env is normal outside development.
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		log.Warn().Err(err).Msg(".env not loaded")
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("invalid configuration")
	}

	sysutil.SetLogLevel(cfg.LogLevel)
	log.Logger = sysutil.NewLogger(os.Stderr, cfg.LogPretty, cfg.OTEL.ServiceName)
	zerolog.DefaultContextLogger = &log.Logger
	gin.SetMode(cfg.GinMode)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	appVersion := sysutil.FirstNonEmpty(os.Getenv("APP_VERSION"), version)
	shutdownTracing, err := observability.SetupTracing(ctx, cfg.OTEL, appVersion)
	if err != nil {
		log.Fatal().Err(err).Msg("tracing setup failed")
	}

	db, err := repo.OpenSQLite(cfg.DBPath)
	if err != nil {
		log.Fatal().Err(err).Str("path", cfg.DBPath).Msg("open database")
	}
	if err := repo.AutoMigrate(db); err != nil {
		log.Fatal().Err(err).Msg("migrate database")
	}

	r := gin.New()
	hub := httpapi.RegisterRoutes(r, db, cfg)

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           r,
		ReadTimeout:       cfg.ReadTimeout,
		ReadHeaderTimeout: cfg.ReadHeaderTimeout,
		WriteTimeout:      cfg.WriteTimeout,
		IdleTimeout:       cfg.IdleTimeout,
		MaxHeaderBytes:    cfg.MaxHeaderBytes,
	}
	// Shutdown does not touch hijacked connections; the hub closes them.
	srv.RegisterOnShutdown(hub.Close)

	go purgeIdempotency(ctx, services.NewIdempotencyService(db, cfg.IdempotencyTTL))

	errCh := make(chan error, 1)
	go func() {
		log.Info().
			Str("addr", srv.Addr).
			Str("api", cfg.APIBasePath).
			Str("version", appVersion).
			Bool("strict_identity", cfg.Realtime.StrictIdentity).
			Msg("server listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		log.Info().Msg("shutting down")
	case err := <-errCh:
		log.Error().Err(err).Msg("server failed")
	}

	sctx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
	defer cancel()
	if err := srv.Shutdown(sctx); err != nil {
		log.Error().Err(err).Msg("forced shutdown")
	}
	hub.Close()
	if err := shutdownTracing(sctx); err != nil {
		log.Warn().Err(err).Msg("tracing shutdown")
	}
	if sqlDB, err := db.DB(); err == nil {
		_ = sqlDB.Close()
	}
	log.Info().Msg("server exited")
}

// purgeIdempotency deletes expired Idempotency-Key records every purgeEvery
// until ctx is done.
func purgeIdempotency(ctx context.Context, svc *services.IdempotencyService) {
	t := time.NewTicker(purgeEvery)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			n, err := svc.Purge(ctx)
			if err != nil {
				log.Warn().Err(err).Msg("idempotency purge failed")
				continue
			}
			if n > 0 {
				log.Debug().Int64("removed", n).Msg("idempotency records purged")
			}
		}
	}
}
