// Package mcp exposes the suggestion engine as Model Context Protocol tools so
// MCP clients can run cases and record outcomes over stdio.
package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/sirupsen/logrus"

	"github.com/homeopathy-case-engine/internal/domain"
	"github.com/homeopathy-case-engine/internal/service"
)

const (
	serverName    = "homeopathy-case-engine"
	serverVersion = "v0.1.0"
)

// Server wraps an MCP server whose tools call the engine services directly.
type Server struct {
	mcpServer   *mcp.Server
	suggestions *service.SuggestionService
	learning    *service.LearningService
	logger      *logrus.Logger
}

// NewServer creates the MCP server and registers every tool.
func NewServer(suggestions *service.SuggestionService, learning *service.LearningService, logger *logrus.Logger) *Server {
	s := &Server{
		mcpServer: mcp.NewServer(&mcp.Implementation{
			Name:    serverName,
			Version: serverVersion,
		}, nil),
		suggestions: suggestions,
		learning:    learning,
		logger:      logger,
	}
	s.registerTools()
	return s
}

func (s *Server) registerTools() {
	mcp.AddTool(s.mcpServer, &mcp.Tool{
		Name:        "suggest_remedies",
		Description: "Run a structured case through the engine, record it and return the ranked remedies",
	}, s.handleSuggestRemedies)
	mcp.AddTool(s.mcpServer, &mcp.Tool{
		Name:        "normalize_symptoms",
		Description: "Resolve free-text symptoms to canonical symptom codes",
	}, s.handleNormalizeSymptoms)
	mcp.AddTool(s.mcpServer, &mcp.Tool{
		Name:        "suggest_rubrics",
		Description: "List the repertory rubrics linked to a symptom code",
	}, s.handleSuggestRubrics)
	mcp.AddTool(s.mcpServer, &mcp.Tool{
		Name:        "get_remedy",
		Description: "Return a remedy's reference profile",
	}, s.handleGetRemedy)
	mcp.AddTool(s.mcpServer, &mcp.Tool{
		Name:        "record_decision",
		Description: "Record the remedy the doctor prescribed for a case",
	}, s.handleRecordDecision)
	mcp.AddTool(s.mcpServer, &mcp.Tool{
		Name:        "record_outcome",
		Description: "Record the follow-up outcome of a case",
	}, s.handleRecordOutcome)
	mcp.AddTool(s.mcpServer, &mcp.Tool{
		Name:        "remedy_statistics",
		Description: "Outcome statistics for a prescribed remedy",
	}, s.handleRemedyStatistics)
	mcp.AddTool(s.mcpServer, &mcp.Tool{
		Name:        "symptom_patterns",
		Description: "Remedies that improved past cases sharing a mental symptom",
	}, s.handleSymptomPatterns)

	s.logger.WithField("tool_count", 8).Debug("Registered MCP tools")
}

// Start serves the tools over stdio until ctx is cancelled or the client disconnects.
func (s *Server) Start(ctx context.Context) error {
	s.logger.Info("Starting MCP tool server on stdio...")
	return s.Run(ctx, &mcp.StdioTransport{})
}

// Run serves the tools over the given transport.
func (s *Server) Run(ctx context.Context, transport mcp.Transport) error {
	if err := s.mcpServer.Run(ctx, transport); err != nil && !errors.Is(err, context.Canceled) {
		return fmt.Errorf("MCP server failed: %w", err)
	}
	return nil
}

// jsonResult renders a tool result as indented JSON text.
func (s *Server) jsonResult(v any) *mcp.CallToolResult {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return s.createErrorResult("failed to encode result", err)
	}
	return &mcp.CallToolResult{
		Content: []mcp.Content{&mcp.TextContent{Text: string(data)}},
	}
}

// createErrorResult creates a standardized error result for tool calls.
func (s *Server) createErrorResult(message string, err error) *mcp.CallToolResult {
	errorText := fmt.Sprintf("Error: %s", message)
	if err != nil {
		errorText += fmt.Sprintf(" - %v", err)
	}

	return &mcp.CallToolResult{
		Content: []mcp.Content{
			&mcp.TextContent{Text: errorText},
		},
		IsError: true,
	}
}

// toolError maps a service error to a tool error result. Internal failures
// are logged and masked the same way the HTTP API masks them.
func (s *Server) toolError(tool string, err error) *mcp.CallToolResult {
	var ve *domain.ValidationError
	switch {
	case errors.As(err, &ve):
		return s.createErrorResult("invalid input", fmt.Errorf("%s: %s", ve.Field, ve.Message))
	case errors.Is(err, domain.ErrNotFound),
		errors.Is(err, domain.ErrForbidden),
		errors.Is(err, domain.ErrUnauthorized),
		errors.Is(err, domain.ErrInvalidOutcomeStatus),
		errors.Is(err, domain.ErrInvalidCategory):
		return s.createErrorResult(tool+" failed", err)
	default:
		s.logger.WithError(err).WithField("tool", tool).Error("Tool call failed")
		return s.createErrorResult(tool+" failed", errors.New("internal error"))
	}
}
