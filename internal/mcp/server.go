package mcp

import (
	"context"
	"fmt"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/sirupsen/logrus"

	"github.com/medreportgen-server/internal/domain"
)

// Server exposes the report synthesizer as MCP tools over stdio.
type Server struct {
	config      domain.ConfigManager
	mcpServer   *mcp.Server
	synthesizer domain.ReportSynthesizer
	logger      *logrus.Logger
}

// NewServer creates a new MCP server instance
func NewServer(configManager domain.ConfigManager, synthesizer domain.ReportSynthesizer, logger *logrus.Logger) (*Server, error) {
	if synthesizer == nil {
		return nil, fmt.Errorf("report synthesizer is required")
	}
	if logger == nil {
		logger = logrus.New()
	}

	mcpConfig := configManager.GetConfig().MCP
	serverInfo := &mcp.Implementation{
		Name:    mcpConfig.ServerName,
		Version: mcpConfig.ServerVersion,
	}

	server := &Server{
		config:      configManager,
		mcpServer:   mcp.NewServer(serverInfo, nil),
		synthesizer: synthesizer,
		logger:      logger,
	}

	server.registerTools()

	return server, nil
}

// Start runs the MCP session over stdio until ctx is cancelled or the client
// disconnects.
func (s *Server) Start(ctx context.Context) error {
	s.logger.Info("Starting MedReportGen MCP server on stdio")

	if err := s.mcpServer.Run(ctx, &mcp.StdioTransport{}); err != nil {
		return fmt.Errorf("MCP server failed: %w", err)
	}

	return nil
}

// registerTools registers every MCP tool
func (s *Server) registerTools() {
	s.mcpServer.AddTool(&mcp.Tool{
		Name:        ToolGenerateClinicalNote,
		Description: "Generate a free-text clinical note for a sickle cell patient summary, with rule-based clinical warnings and a fixed placeholder confidence score.",
		InputSchema: patientSummarySchema(),
	}, s.handleGenerateClinicalNote)

	s.mcpServer.AddTool(&mcp.Tool{
		Name:        ToolEvaluateWarnings,
		Description: "Evaluate the rule-based clinical warnings for a patient summary without generating a note.",
		InputSchema: patientSummarySchema(),
	}, s.handleEvaluateWarnings)

	s.mcpServer.AddTool(&mcp.Tool{
		Name:        ToolBuildNotePrompt,
		Description: "Render the exact prompt sent to the note generation model for a patient summary.",
		InputSchema: patientSummarySchema(),
	}, s.handleBuildNotePrompt)

	s.logger.WithField("tool_count", 3).Debug("Registered MCP tools")
}
