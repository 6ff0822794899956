package mcp

import (
	"context"
	"log/slog"
	"os"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"github.com/rendis/diagramflow/internal/coordinator"
	"github.com/rendis/diagramflow/internal/streaming"
	"github.com/rendis/diagramflow/internal/validation"
)

// DiagramServerDeps holds the dependencies for creating a DiagramServer.
type DiagramServerDeps struct {
	Registry  *coordinator.Registry
	Validator *validation.Validator
	Hub       streaming.EventHub
	Logger    *slog.Logger
	Version   string
}

// DiagramServer wraps an MCP server with diagram tool handlers.
type DiagramServer struct {
	registry  *coordinator.Registry
	validator *validation.Validator
	hub       streaming.EventHub
	logger    *slog.Logger
	sessions  *SessionRegistry
	notifier  *MCPNotifier
	mcpServer *server.MCPServer
}

// NewDiagramServer creates a new DiagramServer with all 4 tools registered.
func NewDiagramServer(deps DiagramServerDeps) *DiagramServer {
	logger := deps.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelInfo}))
	}
	version := deps.Version
	if version == "" {
		version = "dev"
	}

	s := &DiagramServer{
		registry:  deps.Registry,
		validator: deps.Validator,
		hub:       deps.Hub,
		logger:    logger,
		sessions:  NewSessionRegistry(),
	}

	mcpSrv := server.NewMCPServer(
		"diagramflow",
		version,
		server.WithToolCapabilities(false),
		server.WithRecovery(),
		server.WithInstructions("diagramflow checks and renders Mermaid diagram text. Use diagram.validate to check text and get a repaired version, diagram.render to render it to SVG in a named view, diagram.normalize to see which declaration would be added, and diagram.examples for canonical snippets."),
	)

	mcpSrv.AddTools(s.tools()...)
	s.mcpServer = mcpSrv
	s.notifier = NewMCPNotifier(mcpSrv, s.sessions)
	return s
}

// Serve starts the stdio transport and blocks until ctx is cancelled or
// stdin closes. View state events are forwarded to the sessions that
// rendered those views.
func (s *DiagramServer) Serve(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	if s.hub != nil {
		go func() {
			err := s.notifier.Forward(ctx, s.hub, func(viewID string, err error) {
				s.logger.Debug("state notification failed", "view_id", viewID, "error", err)
			})
			if err != nil && ctx.Err() == nil {
				s.logger.Warn("state event forwarding stopped", "error", err)
			}
		}()
	}

	stdio := server.NewStdioServer(s.mcpServer)
	return stdio.Listen(ctx, os.Stdin, os.Stdout)
}

// MCPServer returns the underlying MCPServer for testing or custom transports.
func (s *DiagramServer) MCPServer() *server.MCPServer {
	return s.mcpServer
}

// tools returns the 4 registered MCP tools as ServerTool entries.
func (s *DiagramServer) tools() []server.ServerTool {
	return []server.ServerTool{
		{Tool: renderTool(), Handler: s.handleRender},
		{Tool: validateTool(), Handler: s.handleValidate},
		{Tool: normalizeTool(), Handler: s.handleNormalize},
		{Tool: examplesTool(), Handler: s.handleExamples},
	}
}

// --- Tool definitions ---

func renderTool() mcp.Tool {
	return mcp.NewTool("diagram.render",
		mcp.WithDescription("Render Mermaid diagram text to SVG in a named view"),
		mcp.WithString("text", mcp.Required(), mcp.Description("Mermaid diagram text; a missing diagram type declaration is added automatically")),
		mcp.WithString("view_id", mcp.Description("View to render into (default: mcp)")),
		mcp.WithBoolean("wait", mcp.Description("Wait for the render to settle before returning (default: true)")),
	)
}

func validateTool() mcp.Tool {
	return mcp.NewTool("diagram.validate",
		mcp.WithDescription("Check Mermaid diagram text and return the repaired text with suggestions"),
		mcp.WithString("text", mcp.Required(), mcp.Description("Mermaid diagram text to check")),
	)
}

func normalizeTool() mcp.Tool {
	return mcp.NewTool("diagram.normalize",
		mcp.WithDescription("Show how diagram text would be normalized"),
		mcp.WithString("text", mcp.Required(), mcp.Description("Mermaid diagram text")),
	)
}

func examplesTool() mcp.Tool {
	return mcp.NewTool("diagram.examples",
		mcp.WithDescription("Get canonical example snippets per diagram type"),
		mcp.WithString("kind",
			mcp.Enum("flowchart", "sequence", "class", "state"),
			mcp.Description("Diagram type (default: all)"),
		),
	)
}
