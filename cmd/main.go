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

	"strangerchat/backend/internal/api/handler"
	"strangerchat/backend/internal/chathub"
	"strangerchat/backend/internal/config"
	"strangerchat/backend/internal/janitor"
	"strangerchat/backend/internal/pubsub"
	"strangerchat/backend/internal/storage"
	"strangerchat/backend/internal/telegram"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"gorm.io/gorm"
)

func setupDependencies(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*gorm.DB, pubsub.Broker) {
	db, err := storage.Open(cfg.DBDriver, cfg.DatabaseURL)
	if err != nil {
		logger.Error("failed to connect database", "driver", cfg.DBDriver, "error", err)
		os.Exit(1)
	}
	if err := storage.Migrate(db); err != nil {
		logger.Error("failed to run migrations", "error", err)
		os.Exit(1)
	}

	broker, err := pubsub.Open(ctx, cfg, db, logger.With("component", "pubsub"))
	if err != nil {
		logger.Error("failed to start pub/sub", "driver", cfg.PubSubDriver, "error", err)
		os.Exit(1)
	}

	logger.Info("dependencies ready", "db", cfg.DBDriver, "pubsub", cfg.PubSubDriver)
	return db, broker
}

func main() {
	logger := slog.New(slog.NewTextHandler(os.Stdout, nil))
	slog.SetDefault(logger)
	logger.Info("starting strangerchat backend")

	if err := godotenv.Load(); err != nil {
		logger.Warn("no .env file loaded", "error", err)
	}
	cfg, err := config.Load()
	if err == nil {
		err = cfg.Validate()
	}
	if err != nil {
		logger.Error("invalid configuration", "error", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// 1. Storage and push channel
	db, broker := setupDependencies(ctx, cfg, logger)
	defer broker.Close()
	s := storage.NewStorageService(db, logger.With("component", "storage"))

	// 2. Hub and background workers
	hub := chathub.NewManagerService(s, broker, logger.With("component", "hub"))
	hub.Matcher.Strategy = cfg.MatchStrategy
	hub.Matcher.PollInterval = cfg.MatchPollInterval

	sweeper := janitor.New(s, hub.Sessions, logger.With("component", "janitor"))
	sweeper.Interval = cfg.JanitorInterval
	sweeper.StaleAfter = cfg.StaleAfter
	sweeper.Retention = cfg.MessageRetention

	go hub.Run(ctx)
	go sweeper.Run(ctx)

	if cfg.TelegramBotToken != "" {
		botService, err := telegram.NewBotService(cfg.TelegramBotToken, hub, logger)
		if err != nil {
			logger.Error("failed to start telegram bot", "error", err)
			os.Exit(1)
		}
		botService.HeartbeatInterval = cfg.HeartbeatInterval
		go botService.Run(ctx)
	} else {
		logger.Info("TELEGRAM_BOT_TOKEN not set, telegram bridge disabled")
	}

	// 3. HTTP API
	r := gin.Default()
	h := handler.NewHandler(hub, handler.NewTokenIssuer(cfg.JWTSecret), logger.With("component", "api"))
	h.RegisterRoutes(r)

	server := &http.Server{
		Addr:           cfg.HTTPAddr,
		Handler:        r,
		ReadTimeout:    10 * time.Second,
		MaxHeaderBytes: 1 << 20,
	}

	go func() {
		logger.Info("http server listening", "addr", cfg.HTTPAddr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server failed", "error", err)
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("http shutdown failed", "error", err)
	}
}
