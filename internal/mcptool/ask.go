// Package mcptool exposes the query pipeline as an MCP tool.
package mcptool

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"pkt.systems/querydesk/core"
	"pkt.systems/querydesk/schema"
)

// AskTool handles the ask MCP tool.
type AskTool struct {
	pipeline core.Pipeline
}

// NewAskTool creates an AskTool.
func NewAskTool(pipeline core.Pipeline) *AskTool {
	return &AskTool{pipeline: pipeline}
}

// Definition returns the MCP tool definition for ask.
func (t *AskTool) Definition() mcp.Tool {
	return mcp.NewTool("ask",
		mcp.WithDescription(
			"Route a question or request through the company assistant. It answers onboarding and policy "+
				"questions, files GitHub issues, explains the configured repository and generates donut images, "+
				"subject to the user's permissions.",
		),
		mcp.WithString("username",
			mcp.Required(),
			mcp.Description("Directory username the request is made on behalf of"),
		),
		mcp.WithString("query",
			mcp.Required(),
			mcp.Description("Natural language question or request"),
		),
	)
}

// Handle processes the ask tool call. Pipeline failures are reported as tool
// errors, never as Go errors.
func (t *AskTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	username := strings.TrimSpace(req.GetString("username", ""))
	if username == "" {
		return mcp.NewToolResultError("'username' is required"), nil
	}
	query := req.GetString("query", "")
	if strings.TrimSpace(query) == "" {
		return mcp.NewToolResultError("'query' is required"), nil
	}
	result := t.pipeline.Process(ctx, schema.UserID(username), query)
	if !result.OK() {
		if result.Action != "" {
			return mcp.NewToolResultError(fmt.Sprintf("%s (%s)", result.Message, result.Action)), nil
		}
		return mcp.NewToolResultError(result.Message), nil
	}
	if result.ResponseKind == schema.ResponseImage && len(result.Payload.Images) > 0 {
		return mcp.NewToolResultImage(result.Payload.Message, result.Payload.Images[0].Data, "image/png"), nil
	}
	return mcp.NewToolResultText(result.Payload.Message), nil
}

// NewServer builds an MCP server with the ask tool registered.
func NewServer(version string, pipeline core.Pipeline) *server.MCPServer {
	s := server.NewMCPServer(
		"querydesk",
		version,
		server.WithToolCapabilities(false),
		server.WithRecovery(),
	)
	ask := NewAskTool(pipeline)
	s.AddTool(ask.Definition(), ask.Handle)
	return s
}

// ServeStdio serves s over in/out until ctx is cancelled or in is closed.
func ServeStdio(ctx context.Context, s *server.MCPServer, in io.Reader, out io.Writer) error {
	return server.NewStdioServer(s).Listen(ctx, in, out)
}
