// Command server runs the peer-support coordination backend: presence,
// listener dispatch, session lifecycle, and realtime chat sync over one
// HTTP surface.
package main

import (
	"context"
	"errors"
	"io"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog"

	"github.com/quietline/go-support-backend/internal/config"
	httpapi "github.com/quietline/go-support-backend/internal/http"
	"github.com/quietline/go-support-backend/internal/notify"
	"github.com/quietline/go-support-backend/internal/observability"
	"github.com/quietline/go-support-backend/internal/realtime"
	"github.com/quietline/go-support-backend/internal/repo"
	"github.com/quietline/go-support-backend/internal/services"
)

var version = "dev" // set via -ldflags at build time

func main() {
	_ = godotenv.Load()

	cfg := config.MustLoad()
	log := newLogger(cfg)

	if err := run(cfg, log); err != nil {
		log.Fatal().Err(err).Msg("server exited")
	}
}

func run(cfg config.Config, log zerolog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Tracing first so the gorm plugin and HTTP middleware pick up the
	// global provider.
	otelShutdown, err := observability.SetupOTel(ctx, cfg.OTEL, version)
	if err != nil {
		return err
	}
	defer func() {
		shCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := otelShutdown(shCtx); err != nil {
			log.Warn().Err(err).Msg("otel shutdown")
		}
	}()

	db, err := repo.OpenSQLite(cfg.DBPath, cfg.OTEL.Enabled)
	if err != nil {
		return err
	}
	if err := repo.AutoMigrate(db); err != nil {
		return err
	}

	hub := realtime.NewHub(log)
	defer hub.Close()

	tracker := notify.NewTracker(
		cfg.Notify.RenotifyMinDelay,
		cfg.Notify.RenotifyMax,
		cfg.Notify.DispatchPerMinute,
		cfg.Notify.DispatchBurst,
	)
	push := notify.NewWebhookPushSender(cfg.Notify.PushDeliverTimeout, log)
	email := notify.NewLogEmailSender(log)
	dispatcher := notify.NewDispatcher(
		db, log, push, email,
		cfg.Presence.StaleThreshold,
		cfg.Notify.WaveDelay,
		cfg.Notify.PushDeliverTimeout,
		tracker,
	)

	sessions := services.NewSessionService(
		db, hub, dispatcher,
		cfg.Session.NoMessageThreshold,
		cfg.Session.InactiveThreshold,
		log,
	)
	presence := services.NewPresenceService(db, sessions, dispatcher, log)
	messages := services.NewMessageService(db, hub, cfg.MessageMaxRunes, log)
	social := services.NewSocialService(db, log)
	reaper := services.NewReaper(
		db, sessions,
		cfg.Presence.RequestingReapAfter,
		cfg.Session.ReaperInterval,
		log,
	)

	if cfg.Session.ReaperInterval > 0 {
		go reaper.Run(ctx)
	}

	gin.SetMode(cfg.GinMode)
	r := gin.New()
	httpapi.RegisterRoutes(r, httpapi.Deps{
		DB:       db,
		Presence: presence,
		Sessions: sessions,
		Messages: messages,
		Social:   social,
		Dispatch: dispatcher,
		Cleaner:  reaper,
		Hub:      hub,
	}, cfg)

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           r,
		ReadTimeout:       cfg.ReadTimeout,
		ReadHeaderTimeout: cfg.ReadHeaderTimeout,
		WriteTimeout:      cfg.WriteTimeout,
		IdleTimeout:       cfg.IdleTimeout,
		MaxHeaderBytes:    cfg.MaxHeaderBytes,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info().Str("port", cfg.Port).Str("version", version).Msg("server listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	log.Info().Msg("shutdown signal received")
	shCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shCtx); err != nil {
		return err
	}
	log.Info().Msg("server stopped cleanly")
	return nil
}

func newLogger(cfg config.Config) zerolog.Logger {
	level, err := zerolog.ParseLevel(strings.ToLower(cfg.LogLevel))
	if err != nil {
		level = zerolog.InfoLevel
	}

	var out io.Writer = os.Stdout
	if cfg.LogPretty {
		out = zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339}
	}

	return zerolog.New(out).Level(level).With().Timestamp().Str("service", "go-support-backend").Logger()
}
