package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"camcontrol/internal/app"
	"camcontrol/internal/config"
	"camcontrol/internal/logger"
)

func main() {
	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		log.Fatalf("Invalid configuration: %v", err)
	}

	appLogger, err := logger.NewLogger(cfg)
	if err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer appLogger.Close()

	application, err := app.NewApp(cfg, appLogger)
	if err != nil {
		appLogger.Error("Startup failed: %v", err)
		appLogger.Close()
		os.Exit(1)
	}
	defer application.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := application.Run(ctx); err != nil {
		appLogger.Error("Server stopped: %v", err)
		application.Close()
		appLogger.Close()
		os.Exit(1)
	}
}
