package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/medreportgen-server/internal/config"
	"github.com/medreportgen-server/internal/domain"
	"github.com/medreportgen-server/internal/generation"
	"github.com/medreportgen-server/internal/logging"
	"github.com/medreportgen-server/internal/mcp"
	"github.com/medreportgen-server/internal/service"
	"github.com/medreportgen-server/internal/setup"
)

func main() {
	if len(os.Args) > 1 && os.Args[1] == "setup" {
		if err := setup.NewCLI(os.Stdout).Run(os.Args[2:]); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		return
	}

	// stdout carries the MCP protocol
	log.SetOutput(os.Stderr)

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
	logCfg := cfg.Logging
	logCfg.Output = "stderr"

	logger, err := logging.New(logCfg)
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
		logger.Info("Shutdown signal received, gracefully shutting down MCP server...")
		cancel()
	}()

	engine, err := generation.Open(ctx, cfg.Generation, logger)
	if err != nil {
		var initErr *domain.InitializationError
		if errors.As(err, &initErr) {
			logger.WithError(initErr.Cause).WithField("component", initErr.Component).Fatal("Failed to initialize generator")
		}
		logger.WithError(err).Fatal("Failed to initialize generator")
	}

	assembler := service.NewReportAssembler(engine, cfg.Report.ConfidenceScore, cfg.Generation.Timeout, logger)

	// Create MCP server
	mcpServer, err := mcp.NewServer(configManager, assembler, logger)
	if err != nil {
		logger.WithError(err).Fatal("Failed to create MCP server")
	}

	// Start MCP server
	if err := mcpServer.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logger.WithError(err).Fatal("MCP server failed")
	}

	logger.Info("MedReportGen MCP server stopped")
}
