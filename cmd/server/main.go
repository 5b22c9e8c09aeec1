package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/ndewijer/portfolio-valuation/internal/app"
	"github.com/ndewijer/portfolio-valuation/internal/config"
	"github.com/ndewijer/portfolio-valuation/internal/database"
	"github.com/ndewijer/portfolio-valuation/internal/logger"
	"github.com/ndewijer/portfolio-valuation/internal/scheduler"
	"github.com/ndewijer/portfolio-valuation/internal/version"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load configuration")
	}

	logr := logger.New(logger.Config{Level: cfg.Log.Level, Pretty: cfg.Log.Pretty})
	logger.SetGlobalLogger(logr)

	// Open database connection
	db, err := database.Open(cfg.Database.Path)
	if err != nil {
		logr.Fatal().Err(err).Msg("Failed to open database")
	}
	defer db.Close()

	if err := database.Migrate(db); err != nil {
		logr.Fatal().Err(err).Msg("Failed to migrate database")
	}
	logr.Info().Str("path", cfg.Database.Path).Str("version", version.Version).Msg("Connected to database")

	a, err := app.New(cfg, db, logr)
	if err != nil {
		logr.Fatal().Err(err).Msg("Failed to wire services")
	}
	defer a.Close()

	sched := scheduler.New(logr)
	if err := a.Schedule(sched); err != nil {
		logr.Fatal().Err(err).Msg("Failed to schedule jobs")
	}
	sched.Start()

	// Create HTTP server. The write timeout leaves room for an on-demand
	// snapshot run.
	server := &http.Server{
		Addr:         cfg.Server.Addr,
		Handler:      a.Router(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: cfg.Snapshot.Deadline + 30*time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start server in a goroutine
	go func() {
		logr.Info().Str("addr", cfg.Server.Addr).Msg("Starting server")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logr.Fatal().Err(err).Msg("Server failed to start")
		}
	}()

	// Wait for interrupt signal for graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logr.Info().Msg("Shutting down server...")
	sched.Stop()

	// Graceful shutdown with timeout
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		logr.Error().Err(err).Msg("Server forced to shutdown")
	}

	logr.Info().Msg("Server exited")
}
