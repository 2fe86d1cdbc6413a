package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/aigoflow/classifier-service/internal/app"
	"github.com/aigoflow/classifier-service/internal/config"
	"github.com/aigoflow/classifier-service/internal/telemetry"
)

func main() {
	var envFile = flag.String("env", "", "Optional .env file to load")
	flag.Parse()

	// Load configuration
	cfg, err := config.Load(*envFile)
	if err != nil {
		slog.Error("Failed to load config", "error", err)
		os.Exit(1)
	}

	// Setup structured logging
	logger := telemetry.NewLogger(telemetry.LogConfig{
		Level:  cfg.LogLevel,
		Format: cfg.LogFormat,
		File:   cfg.LogFile,
	})

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// The model is loaded here; a missing or broken artifact stops startup.
	service, err := app.New(ctx, cfg, app.WithLogger(logger))
	if err != nil {
		logger.Error("Failed to start service", "error", err, "model_path", cfg.ModelPath)
		os.Exit(1)
	}

	logger.Info("Service ready",
		"http_addr", cfg.HTTPAddr,
		"model_name", cfg.ModelName,
		"nats_enabled", cfg.NATSEnabled(),
		"request_log", cfg.RequestLogEnabled())

	runErr := service.Run(ctx)

	logger.Info("Shutting down server")
	if err := service.Close(); err != nil {
		logger.Warn("Shutdown completed with errors", "error", err)
	}
	if runErr != nil {
		logger.Error("Server failed", "error", runErr)
		os.Exit(1)
	}
}
