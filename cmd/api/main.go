// Copyright (c) 2026 Parley. All rights reserved.
// Author: tai.buivan.jp@gmail.com

// Command api is the entry point for the Parley identity HTTP server.
//
// # Startup Sequence
//
//  1. Initialize structured logger.
//  2. Load configuration from environment variables (.env in development).
//  3. Connect to PostgreSQL (pgxpool).
//  4. Connect to Redis.
//  5. Run database migrations (idempotent).
//  6. Wire the token codec, authority client, mailer and metrics.
//  7. Start HTTP server and the session sweeper with graceful shutdown.
//
// No business logic lives here. All wiring is explicit constructor injection.
package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/taibuivan/parley/internal/api"
	"github.com/taibuivan/parley/internal/identity"
	"github.com/taibuivan/parley/internal/identity/authority"
	"github.com/taibuivan/parley/internal/platform/config"
	"github.com/taibuivan/parley/internal/platform/constants"
	"github.com/taibuivan/parley/internal/platform/mail"
	"github.com/taibuivan/parley/internal/platform/metrics"
	"github.com/taibuivan/parley/internal/platform/migration"
	pgstore "github.com/taibuivan/parley/internal/platform/postgres"
	redisstore "github.com/taibuivan/parley/internal/platform/redis"
	"github.com/taibuivan/parley/internal/platform/sec"
)

func main() {
	// ── 1. Logger ──────────────────────────────────────────────────────────
	// Initialize first so that subsequent startup errors are structured JSON.
	rawLog := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))

	// Add global context to all log entries.
	log := rawLog.With(slog.String("app", constants.AppName))
	slog.SetDefault(log)

	log.Info("[Parley] service_initializing")

	// ── 2. Configuration ──────────────────────────────────────────────────
	// A .env file is a development convenience; its absence is not an error.
	if err := godotenv.Load(); err == nil {
		log.Info("loaded environment from .env file")
	}

	cfg, err := config.Load()
	must(log, err, "load configuration")

	if cfg.Debug {
		debugLog := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
			Level: slog.LevelDebug,
		}))
		log = debugLog.With(slog.String("app", constants.AppName))
		slog.SetDefault(log)
		log.Debug("debug_logging_enabled")
	}

	log.Info("configuration_loaded",
		slog.String("environment", cfg.Environment),
		slog.String("port", cfg.ServerPort),
		slog.Bool("delegated_auth", cfg.DelegatedAuth),
	)

	// Root context for startup. Use a 30s deadline so misconfiguration is
	// caught quickly rather than hanging indefinitely.
	startupCtx, startupCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer startupCancel()

	// ── 3. PostgreSQL ─────────────────────────────────────────────────────
	pool, err := pgstore.NewPool(startupCtx, cfg.DatabaseURL, log)
	must(log, err, "connect to postgres")
	defer func() {
		log.Info("closing postgres pool")
		pool.Close()
	}()

	// ── 4. Redis ──────────────────────────────────────────────────────────
	rdb, err := redisstore.NewClient(startupCtx, cfg.RedisURL, log)
	must(log, err, "connect to redis")
	defer func() {
		log.Info("closing redis client")
		if cerr := rdb.Close(); cerr != nil {
			log.Error("redis close error", slog.Any("error", cerr))
		}
	}()

	// ── 5. Migrations ─────────────────────────────────────────────────────
	must(log, migration.RunUp(cfg.DatabaseURL, cfg.MigrationPath, log), "run migrations")

	// ── 6. Token Codec ────────────────────────────────────────────────────
	codec, err := sec.NewTokenService(cfg.LocalTokenSecret, cfg.FederatedTokenSecret, constants.AuthIssuer, cfg.DelegatedAuth)
	must(log, err, "initialize token codec")

	// ── 7. Collaborators ──────────────────────────────────────────────────
	var remote identity.Authority
	if cfg.DelegatedAuth {
		remote = authority.NewClient(authority.Config{BaseURL: cfg.AuthorityURL})
	}

	var sender mail.Sender
	if cfg.MailEnabled {
		sender = mail.NewSMTPSender(mail.SMTPConfig{
			Host:     cfg.SMTPHost,
			Port:     cfg.SMTPPort,
			Username: cfg.SMTPUsername,
			Password: cfg.SMTPPassword,
			From:     cfg.MailFrom,
		}, log)
	} else {
		sender = mail.NewNoopSender(log)
	}

	registry := prometheus.NewRegistry()
	collector := metrics.NewCollector(registry)

	// ── 8. Health handlers (wired with real dependency checkers) ──────────
	liveness, readiness := api.NewHealthHandlers(api.HealthDependencies{
		CheckDatabase: func() error {
			return pgstore.Ping(context.Background(), pool)
		},
		CheckCache: func() error {
			return redisstore.Ping(context.Background(), rdb)
		},
	}, log)

	// ── 9. Domain Wiring ──────────────────────────────────────────────────
	identityRepository := identity.NewIdentityRepository(pool)
	sessionRepository := identity.NewSessionRepository(pool)
	tokenRepository := identity.NewOneTimeTokenRepository(rdb)

	identityService := identity.NewService(
		identityRepository,
		sessionRepository,
		tokenRepository,
		codec,
		remote,
		sender,
		collector,
		log,
		identity.Options{
			Delegated:                 cfg.DelegatedAuth,
			AllowUnverifiedLogin:      cfg.AllowUnverifiedLogin,
			FallbackOnRemoteRejection: cfg.FallbackOnRemoteRejection,
			ReuseFederatedTokens:      cfg.ReuseFederatedTokens,
			BlockedEmailDomains:       cfg.BlockedEmailDomains,
			PublicBaseURL:             cfg.PublicBaseURL,
		},
	)
	identityHandler := identity.NewHandler(identityService, cfg.IsProduction())

	// ── 10. Background Sweeper ────────────────────────────────────────────
	sweepCtx, sweepCancel := context.WithCancel(context.Background())
	defer sweepCancel()

	sweeper := identity.NewSweeper(sessionRepository, collector, log)
	go sweeper.Run(sweepCtx)

	// ── 11. HTTP Server ───────────────────────────────────────────────────
	handlers := api.Handlers{
		Liveness:  liveness,
		Readiness: readiness,
		Metrics:   metrics.Handler(registry),
		Identity:  identityHandler,
	}

	server := api.NewServer(sweepCtx, cfg, log, codec, handlers)

	// ── 12. Graceful Shutdown ─────────────────────────────────────────────
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGTERM, syscall.SIGINT)

	serverErr := make(chan error, 1)
	go func() {
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	// Block until OS signal or server error.
	select {
	case sig := <-quit:
		log.Info("shutdown signal received", slog.String("signal", sig.String()))
	case err := <-serverErr:
		log.Error("server startup error", slog.Any("error", err))
	}

	// Stop the sweeper before draining the server.
	sweepCancel()

	// Give in-flight requests enough time to complete.
	shutdownTimeout := constants.ShutdownTimeout
	log.Info("shutting down server", slog.Duration("timeout", shutdownTimeout))

	if err := server.Shutdown(shutdownTimeout); err != nil {
		log.Error("shutdown error", slog.Any("error", err))
		os.Exit(1)
	}

	log.Info("server stopped cleanly")
}

// must aborts startup on a wiring error. Runtime errors never pass through here.
func must(log *slog.Logger, err error, step string) {
	if err != nil {
		log.Error("startup failed", slog.String("step", step), slog.Any("error", err))
		os.Exit(1)
	}
}
