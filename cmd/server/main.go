package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/easeldraw/easel/backend/internal/api"
	"github.com/easeldraw/easel/backend/internal/auth"
	"github.com/easeldraw/easel/backend/internal/cleanup"
	"github.com/easeldraw/easel/backend/internal/config"
	"github.com/easeldraw/easel/backend/internal/db"
	"github.com/easeldraw/easel/backend/internal/history"
	"github.com/easeldraw/easel/backend/internal/ws"
)

func main() {
	cfg := config.Load()

	var logger zerolog.Logger
	if cfg.IsDevelopment() {
		logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339}).
			With().
			Timestamp().
			Logger()
	} else {
		logger = zerolog.New(os.Stdout).
			With().
			Timestamp().
			Logger()
	}

	database, err := db.New(cfg.DBPath)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to initialize database")
	}
	defer database.Close()
	logger.Info().Str("path", cfg.DBPath).Msg("database initialized")

	logs := history.NewRegistry()
	hub := ws.NewHub(database, logs, logger)
	go hub.Run()

	sweeper := cleanup.New(database, hub, cleanup.Config{Interval: cfg.CleanupInterval}, logger)
	sweeper.Start()
	defer sweeper.Stop()

	tokens := auth.NewManager(cfg.Secret)
	handler := api.NewHandler(hub, database, tokens, logger)
	router := api.NewRouter(logger, handler, func(w http.ResponseWriter, r *http.Request) {
		ws.ServeWs(hub, w, r)
	})

	srv := &http.Server{
		Addr:        ":" + cfg.Port,
		Handler:     router,
		ReadTimeout: 15 * time.Second,
		IdleTimeout: 60 * time.Second,
	}

	go func() {
		logger.Info().
			Str("port", cfg.Port).
			Str("env", cfg.Env).
			Msg("starting easel server")

		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal().Err(err).Msg("server failed to start")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info().Msg("shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Fatal().Err(err).Msg("server forced to shutdown")
	}

	logger.Info().Msg("server stopped")
}
