package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/saturnino-fabrica-de-software/rollcall/internal/api"
	"github.com/saturnino-fabrica-de-software/rollcall/internal/config"
	"github.com/saturnino-fabrica-de-software/rollcall/internal/database"
	"github.com/saturnino-fabrica-de-software/rollcall/internal/face"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	// A missing .env is fine, the environment wins anyway
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	logger := config.NewLogger(cfg.Environment)
	slog.SetDefault(logger)

	logger.Info("starting Rollcall API",
		slog.String("environment", cfg.Environment),
		slog.Int("port", cfg.Port),
	)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	rt, err := face.Bootstrap(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer rt.Close()

	warmCtx, cancelWarm := context.WithTimeout(ctx, cfg.LayerTimeout)
	if err := rt.Engine.Warmup(warmCtx); err != nil {
		// Layers that stay down cast no votes; the server still starts
		logger.Warn("warmup incomplete", slog.Any("error", err))
	}
	cancelWarm()

	deps := &api.Dependencies{
		Service:       rt.Service,
		MaxUploadSize: int64(cfg.MaxUploadSize),
	}
	if rt.Pool != nil {
		deps.DB = database.Pinger(rt.Pool)
	}

	router := api.NewRouter(logger, deps)
	router.Setup()

	errChan := make(chan error, 1)
	go func() {
		addr := fmt.Sprintf(":%d", cfg.Port)
		logger.Info("server listening", slog.String("addr", addr))
		if err := router.Listen(addr); err != nil {
			errChan <- err
		}
	}()

	select {
	case <-ctx.Done():
		logger.Info("shutdown signal received")
	case err := <-errChan:
		return fmt.Errorf("server error: %w", err)
	}

	done := make(chan error, 1)
	go func() { done <- router.Shutdown() }()

	logger.Info("shutting down server...")
	select {
	case err := <-done:
		if err != nil {
			logger.Error("shutdown error", slog.Any("error", err))
		}
	case <-time.After(10 * time.Second):
		logger.Warn("shutdown timed out")
	}

	logger.Info("server stopped")
	return nil
}
