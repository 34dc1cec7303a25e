package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/homeopathy-case-engine/internal/app"
	"github.com/homeopathy-case-engine/internal/config"
)

func main() {
	// Load configuration
	configManager, err := config.NewManager()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	// Validate configuration
	if err := configManager.Validate(); err != nil {
		log.Fatalf("Configuration validation failed: %v", err)
	}

	cfg := configManager.GetConfig()
	logger := config.NewLogger(cfg.Logging.Level, cfg.Logging.Format)
	logger.WithField("addr", cfg.Server.Host).WithField("port", cfg.Server.Port).Info("Starting homeopathy case engine")

	// Setup graceful shutdown
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	application, err := app.New(ctx, configManager, logger)
	if err != nil {
		logger.WithError(err).Fatal("Failed to assemble service")
	}
	defer application.Close()

	if err := application.Run(ctx); err != nil {
		logger.WithError(err).Error("Server stopped with error")
		return
	}

	logger.Info("Server stopped")
}
