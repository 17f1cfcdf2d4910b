package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/remindmail/remindmail/internal/config"
	"github.com/remindmail/remindmail/internal/database"
	"github.com/remindmail/remindmail/internal/handler"
	"github.com/remindmail/remindmail/internal/logger"
	"github.com/remindmail/remindmail/internal/metrics"
	"github.com/remindmail/remindmail/internal/middleware"
	"github.com/remindmail/remindmail/internal/poller"
	"github.com/remindmail/remindmail/internal/router"
	"github.com/remindmail/remindmail/internal/service"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	// Initialize logger
	log := logger.New(cfg.Log.Level, cfg.Log.Format)
	log.Info().Str("version", handler.Version).Msg("starting remindmail server")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Open the reminder store
	store, err := openStore(ctx, cfg.Database, log)
	if err != nil {
		log.Fatal().Err(err).Str("driver", cfg.Database.Driver).Msg("failed to open reminder store")
	}
	defer store.Close()
	checks := []handler.HealthChecker{store.health}

	// Redis only backs rate limiting
	var counter middleware.RateCounter
	if cfg.Security.RateLimiting.Enabled {
		rdb, err := database.NewRedis(cfg.Redis)
		if err != nil {
			log.Fatal().Err(err).Msg("failed to connect to Redis")
		}
		defer rdb.Close()
		log.Info().Str("addr", cfg.Redis.Addr()).Msg("connected to Redis")
		counter = rdb
		checks = append(checks, rdb)
	}

	m := metrics.New()

	// Mail sender
	sender := newSender(ctx, cfg.Email, log)

	// Initialize services
	reminderSvc := service.NewReminderService(store.reminders, m, log)

	p, err := poller.New(reminderSvc, sender, m, poller.Config{
		Schedule:    cfg.Poller.Schedule,
		SendTimeout: cfg.Poller.SendTimeout,
		RunOnStart:  cfg.Poller.RunOnStart,
		Subject:     cfg.Email.Subject,
	}, log)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to create poller")
	}

	// Initialize handlers
	h, err := handler.New(reminderSvc, log, checks...)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialize handlers")
	}

	// Initialize middleware
	mw := middleware.New(counter, log, cfg)

	// Create HTTP server
	srv := &http.Server{
		Addr:         cfg.Server.Addr(),
		Handler:      router.New(h, mw, m, cfg),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	// Stop cancels the poller; the signal context must not reach in-flight sends
	if err := p.Start(context.Background()); err != nil {
		log.Fatal().Err(err).Msg("failed to start poller")
	}

	// Start server in goroutine
	serverErr := make(chan error, 1)
	go func() {
		log.Info().Str("addr", srv.Addr).Msg("HTTP server listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	// Wait for interrupt signal or a listener failure
	select {
	case <-ctx.Done():
	case err := <-serverErr:
		log.Error().Err(err).Msg("HTTP server error")
	}

	log.Info().Msg("shutting down server...")

	// Graceful shutdown with timeout
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("server forced to shutdown")
	}
	if err := p.Stop(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("poller forced to stop")
	}

	log.Info().Msg("server stopped")
}
