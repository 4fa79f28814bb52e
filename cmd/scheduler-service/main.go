package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/carelink/homecare-scheduler/internal/scheduling"
	"github.com/carelink/homecare-scheduler/pkg/config"
	"github.com/carelink/homecare-scheduler/pkg/logger"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	// Initialize logger
	logger := logger.New(cfg.LogLevel)

	// Initialize scheduler service
	service, err := scheduling.New(cfg, logger)
	if err != nil {
		logger.Fatalf("Failed to initialize scheduler service: %v", err)
	}

	// Start service in a goroutine
	go func() {
		if err := service.Start(); err != nil {
			logger.Fatalf("Failed to start scheduler service: %v", err)
		}
	}()

	// Wait for interrupt signal to gracefully shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down scheduler service...")
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := service.Stop(ctx); err != nil {
		logger.Errorf("Error during shutdown: %v", err)
	}
	logger.Info("Scheduler service stopped")
}
