package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/google/jsonschema-go/jsonschema"
	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/sirupsen/logrus"

	"github.com/medreportgen-server/internal/domain"
	"github.com/medreportgen-server/internal/service"
)

// Tool names.
const (
	ToolGenerateClinicalNote = "generate_clinical_note"
	ToolEvaluateWarnings     = "evaluate_clinical_warnings"
	ToolBuildNotePrompt      = "build_note_prompt"
)

// patientSummarySchema describes PatientSummaryInput for MCP clients.
func patientSummarySchema() *jsonschema.Schema {
	prop := func(typ, description string) *jsonschema.Schema {
		return &jsonschema.Schema{Type: typ, Description: description}
	}

	return &jsonschema.Schema{
		Type: "object",
		Properties: map[string]*jsonschema.Schema{
			"pain_intensity":    prop("integer", "Numeric pain rating, expected 1 to 10"),
			"hemoglobin":        prop("number", "Hemoglobin lab result in g/dL"),
			"oxygen_saturation": prop("number", "Oxygen saturation in percent"),
			"pain_type":         prop("string", "Pain category, e.g. Legs, Chest, Abdomen"),
			"facility_type":     prop("string", "Facility, e.g. ER, Urgent Care, Outpatient"),
			"location":          prop("string", "Patient location, e.g. Bronx"),
			"admitted":          prop("string", "Whether the patient was admitted: Yes or No"),
			"age":               prop("integer", "Patient age, defaults to 30"),
			"gender":            prop("string", "Patient gender, defaults to Male"),
		},
		Required: []string{
			"pain_intensity", "hemoglobin", "oxygen_saturation",
			"pain_type", "facility_type", "location", "admitted",
		},
	}
}

// handleGenerateClinicalNote synthesizes a report from the tool arguments.
// Invalid arguments produce a tool error result rather than a protocol error.
func (s *Server) handleGenerateClinicalNote(ctx context.Context, req *mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	s.logger.WithField("tool", ToolGenerateClinicalNote).Info("Tool invoked")

	summary, err := decodeSummary(req)
	if err != nil {
		s.logger.WithError(err).WithField("tool", ToolGenerateClinicalNote).Warn("Rejected tool arguments")
		return toolError(fmt.Sprintf("invalid patient summary: %v", err)), nil
	}

	resp := s.synthesizer.Synthesize(ctx, summary)

	s.logger.WithFields(logrus.Fields{
		"tool":     ToolGenerateClinicalNote,
		"warnings": len(resp.Warnings),
		"degraded": resp.Degraded(),
	}).Info("Tool completed")

	return &mcp.CallToolResult{
		Content: []mcp.Content{
			&mcp.TextContent{Text: resp.GeneratedNote},
		},
		StructuredContent: resp,
	}, nil
}

// handleEvaluateWarnings returns only the rule-based warnings for a summary.
// No model call is made.
func (s *Server) handleEvaluateWarnings(ctx context.Context, req *mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	summary, err := decodeSummary(req)
	if err != nil {
		return toolError(fmt.Sprintf("invalid patient summary: %v", err)), nil
	}

	warnings := service.EvaluateWarnings(summary)
	text := "No warnings."
	if len(warnings) > 0 {
		text = strings.Join(warnings, "\n")
	}

	return &mcp.CallToolResult{
		Content:           []mcp.Content{&mcp.TextContent{Text: text}},
		StructuredContent: map[string]interface{}{"warnings": warnings},
	}, nil
}

// handleBuildNotePrompt returns the exact prompt the generator would receive.
func (s *Server) handleBuildNotePrompt(ctx context.Context, req *mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	summary, err := decodeSummary(req)
	if err != nil {
		return toolError(fmt.Sprintf("invalid patient summary: %v", err)), nil
	}

	return &mcp.CallToolResult{
		Content: []mcp.Content{&mcp.TextContent{Text: service.BuildPrompt(summary)}},
	}, nil
}

func decodeSummary(req *mcp.CallToolRequest) (domain.PatientSummary, error) {
	if req == nil || req.Params == nil {
		return domain.PatientSummary{}, errors.New("missing tool arguments")
	}

	raw, err := json.Marshal(req.Params.Arguments)
	if err != nil {
		return domain.PatientSummary{}, fmt.Errorf("unreadable tool arguments: %w", err)
	}

	// Same decoding as the HTTP body, so both transports accept the same input.
	var input domain.PatientSummaryInput
	if err := json.Unmarshal(raw, &input); err != nil {
		return domain.PatientSummary{}, err
	}

	return input.Resolve()
}

func toolError(message string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		IsError: true,
		Content: []mcp.Content{
			&mcp.TextContent{Text: message},
		},
	}
}
