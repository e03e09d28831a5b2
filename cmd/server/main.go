package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-telegram/bot"
	"github.com/reshetovitsme/tubefeed/internal/di"
	feedService "github.com/reshetovitsme/tubefeed/internal/modules/feed/service"
	"github.com/reshetovitsme/tubefeed/internal/shared/config"
	httpServer "github.com/reshetovitsme/tubefeed/internal/transport/http"
	"github.com/samber/do/v2"
	slogmulti "github.com/samber/slog-multi"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("Failed to load config", "error", err)
		os.Exit(1)
	}

	// Setup structured logging with multiple handlers using slog-multi
	textHandler := slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: cfg.Level(),
	})
	jsonHandler := slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.LevelError,
	})

	// Use Fanout to send logs to both handlers
	logger := slog.New(slogmulti.Fanout(textHandler, jsonHandler)).With("app_env", cfg.AppEnv)
	slog.SetDefault(logger)

	injector := di.SetupWith(cfg)
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := di.Shutdown(ctx, injector); err != nil {
			slog.Error("Error during shutdown", "error", err)
		}
	}()

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	// Get services from DI container
	feeds, err := do.Invoke[*feedService.Service](injector)
	if err != nil {
		slog.Error("Failed to initialize feed service", "error", err)
		return
	}
	server, err := do.Invoke[*httpServer.Server](injector)
	if err != nil {
		slog.Error("Failed to initialize HTTP server", "error", err)
		return
	}

	if cfg.TelegramEnabled() {
		b, err := do.Invoke[*bot.Bot](injector)
		if err != nil {
			slog.Error("Failed to initialize telegram bot", "error", err)
			return
		}
		go b.Start(ctx)
		slog.Info("Telegram bot started")
	} else {
		slog.Info("Telegram bot disabled, no token configured")
	}

	// Start periodic feed generation
	feeds.Start(ctx)

	// Start HTTP server
	go func() {
		if err := server.Start(); err != nil {
			slog.Error("HTTP server stopped", "error", err)
			cancel()
		}
	}()

	slog.Info("Application started", "port", cfg.HTTPPort, "update_interval", cfg.UpdateEvery())
	slog.Info("Press Ctrl+C to stop")

	<-ctx.Done()
	slog.Info("Shutting down...")
}
