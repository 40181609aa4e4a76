package main

import (
	"context"
	"errors"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/sirupsen/logrus"

	"github.com/medreportgen-server/internal/api"
	"github.com/medreportgen-server/internal/config"
	"github.com/medreportgen-server/internal/domain"
	"github.com/medreportgen-server/internal/generation"
	"github.com/medreportgen-server/internal/logging"
	"github.com/medreportgen-server/internal/metrics"
	"github.com/medreportgen-server/internal/service"
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

	logger, err := logging.New(cfg.Logging)
	if err != nil {
		log.Fatalf("Failed to configure logging: %v", err)
	}

	// Setup graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		<-sigChan
		logger.Info("Shutdown signal received, gracefully shutting down...")
		cancel()
	}()

	// The server must not accept requests without a usable model.
	logger.WithField("model", cfg.Generation.Model).Info("Initializing clinical note generator")
	engine, err := generation.Open(ctx, cfg.Generation, logger)
	if err != nil {
		var initErr *domain.InitializationError
		if errors.As(err, &initErr) {
			logger.WithError(initErr.Cause).WithField("component", initErr.Component).Fatal("Failed to initialize generator")
		}
		logger.WithError(err).Fatal("Failed to initialize generator")
	}
	logger.Info("Generator initialized successfully")

	assembler := service.NewReportAssembler(engine, cfg.Report.ConfidenceScore, cfg.Generation.Timeout, logger)

	var collector *metrics.Collector
	if cfg.Metrics.Enabled {
		collector = metrics.NewCollector()
		collector.RegisterBreakerState(func() int { return int(engine.BreakerState()) })
		assembler.WithObserver(collector)
	}

	server := api.NewServer(configManager, assembler, engine, collector, logger)

	logger.WithFields(logrus.Fields{
		"host": cfg.Server.Host,
		"port": cfg.Server.Port,
	}).Info("Starting MedReportGen server")

	if err := server.Start(ctx); err != nil {
		logger.WithError(err).Fatal("Server failed")
	}

	logger.Info("Server stopped")
}
