package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/alphabot-ai/storywall/internal/api"
	"github.com/alphabot-ai/storywall/internal/auth"
	"github.com/alphabot-ai/storywall/internal/config"
	"github.com/alphabot-ai/storywall/internal/feed"
	"github.com/alphabot-ai/storywall/internal/media"
	"github.com/alphabot-ai/storywall/internal/metrics"
	"github.com/alphabot-ai/storywall/internal/ratelimit"
	"github.com/alphabot-ai/storywall/internal/retry"
)

func main() {
	cfg := config.Load()
	logger := setupLogger(cfg.LogLevel, cfg.LogFormat)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	openCtx, cancel := context.WithTimeout(ctx, 15*time.Second)
	b, err := openBackends(openCtx, cfg, logger)
	cancel()
	if err != nil {
		logger.Error("failed to initialize storage", "error", err)
		os.Exit(1)
	}
	defer b.Close()

	m := metrics.New()

	// Initialize services
	manager := media.NewManager(b.objects, media.ManagerConfig{
		MaxSize: cfg.MaxMediaSize,
		Logger:  logger,
		Metrics: m,
	})

	retryCfg := retry.DefaultConfig()
	retryCfg.MaxAttempts = cfg.WriteMaxAttempts
	retryCfg.InitialDelay = cfg.WriteRetryDelay

	svc := feed.NewService(b.docs, manager, feed.NewPolicy(cfg.AdminSecret), feed.Config{
		Key:      cfg.DocumentKey,
		PageSize: cfg.PageSize,
		Retry:    retryCfg,
		Logger:   logger,
		Metrics:  m,
	})
	if cfg.AdminSecret == "" {
		logger.Warn("ADMIN_SECRET not set, moderation is disabled")
	}

	sessions, err := auth.NewSessions(auth.SessionConfig{
		Secret: cfg.SessionSecret,
		MaxAge: cfg.SessionMaxAge,
		Secure: cfg.CookieSecure,
		Logger: logger,
	})
	if err != nil {
		logger.Error("failed to initialize sessions", "error", err)
		os.Exit(1)
	}

	limiter, err := ratelimit.New(cfg.RateLimitMode)
	if err != nil {
		logger.Error("failed to initialize rate limiter", "error", err)
		os.Exit(1)
	}
	limiter.StartCleanup(ctx, 5*time.Minute)

	handler := api.NewHandler(svc, limiter, cfg, api.Options{
		Media:   b.reader,
		Logger:  logger,
		Metrics: m,
	})

	addr := fmt.Sprintf("%s:%d", cfg.Host, cfg.Port)
	server := &http.Server{
		Addr:         addr,
		Handler:      api.NewRouter(handler, sessions),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.Info("starting storywall", "addr", addr, "base_url", cfg.BaseURL)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server error", "error", err)
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down server")

	// Give outstanding requests 30 seconds to complete
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("server forced to shutdown", "error", err)
	}

	logger.Info("server stopped")
}
