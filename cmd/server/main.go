// Package main is the contact backend entry point: it loads configuration,
// opens and migrates the SQLite store, wires the mail notifier and serves the
// API plus the site front-end until SIGINT/SIGTERM.
package main

import (
	"context"
	"errors"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"

	"github.com/tbourn/cis-contact/internal/config"
	httpapi "github.com/tbourn/cis-contact/internal/http"
	"github.com/tbourn/cis-contact/internal/notify"
	"github.com/tbourn/cis-contact/internal/observability"
	"github.com/tbourn/cis-contact/internal/repo"
	"github.com/tbourn/cis-contact/internal/sysutil"
)

// version is overridden at build time with -ldflags "-X main.version=...".
var version = "dev"

func main() {
	envErr := godotenv.Load()

	cfg := config.MustLoad()
	ver := sysutil.FirstNonEmpty(os.Getenv("APP_VERSION"), version)
	sysutil.SetupLogger(os.Stdout, cfg.LogPretty, cfg.OTEL.ServiceName, ver)
	sysutil.SetLogLevel(cfg.LogLevel)
	if envErr != nil && !errors.Is(envErr, os.ErrNotExist) {
		log.Warn().Err(envErr).Msg("could not read .env")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdownOTel, err := observability.SetupOTel(ctx, cfg.OTEL, ver)
	if err != nil {
		log.Fatal().Err(err).Msg("otel setup failed")
	}

	db, err := repo.OpenSQLite(cfg.DBPath)
	if err != nil {
		log.Fatal().Err(err).Str("path", cfg.DBPath).Msg("open database")
	}
	if cfg.OTEL.Enabled {
		if err := repo.EnableTracing(db); err != nil {
			log.Warn().Err(err).Msg("gorm tracing disabled")
		}
	}
	if err := repo.Migrate(ctx, db); err != nil {
		log.Fatal().Err(err).Msg("migrate database")
	}

	var notifier notify.Notifier = notify.Nop{}
	if cfg.Mail.Enabled() {
		smtp, err := notify.NewSMTP(cfg.Mail)
		if err != nil {
			log.Fatal().Err(err).Msg("mail transport")
		}
		notifier = smtp
		log.Info().Str("to", cfg.Mail.Receiver).Msg("email notifications enabled")
	} else {
		log.Warn().Msg("EMAIL_USER and EMAIL_SERVICE/SMTP_HOST not set; submissions will be stored without notification")
	}

	gin.SetMode(cfg.GinMode)
	r := gin.New()
	svc := httpapi.NewContactService(db, notifier, cfg)
	if err := httpapi.RegisterRoutes(r, svc, cfg); err != nil {
		log.Fatal().Err(err).Msg("register routes")
	}

	srv := &http.Server{
		Addr:              net.JoinHostPort("", cfg.Port),
		Handler:           r,
		ReadTimeout:       cfg.ReadTimeout,
		ReadHeaderTimeout: cfg.ReadHeaderTimeout,
		WriteTimeout:      cfg.WriteTimeout,
		IdleTimeout:       cfg.IdleTimeout,
		MaxHeaderBytes:    cfg.MaxHeaderBytes,
	}

	go func() {
		log.Info().Str("addr", srv.Addr).Str("static_dir", cfg.StaticDir).Msg("server listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("server error")
		}
	}()

	<-ctx.Done()
	log.Info().Msg("shutdown signal received")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("http shutdown")
	}

	// Pending notifications get the rest of the grace period.
	drained := make(chan struct{})
	go func() {
		svc.Wait()
		close(drained)
	}()
	select {
	case <-drained:
	case <-shutdownCtx.Done():
		log.Warn().Msg("shutdown timeout with notifications still in flight")
	}

	if err := shutdownOTel(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("otel shutdown")
	}
	if sqlDB, err := db.DB(); err == nil {
		_ = sqlDB.Close()
	}
	log.Info().Msg("server stopped")
}
