package mcp

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"github.com/rendis/diagramflow/internal/diagram"
	"github.com/rendis/diagramflow/internal/logging"
	"github.com/rendis/diagramflow/pkg/schema"
)

// defaultViewID is used when diagram.render names no view.
const defaultViewID = "mcp"

// handleRender renders text into a view.
func (s *DiagramServer) handleRender(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	text, err := req.RequireString("text")
	if err != nil {
		return mcp.NewToolResultError("text is required"), nil
	}
	viewID := req.GetString("view_id", defaultViewID)
	wait := req.GetBool("wait", true)
	ctx = logging.WithViewID(logging.WithSurface(ctx, "mcp"), viewID)

	view, err := s.registry.Open(viewID)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("open view: %v", err)), nil
	}
	s.captureSession(ctx, viewID)

	token := view.RenderDiagram(ctx, text)
	state := view.State()
	if wait && token != "" {
		state, err = view.WaitSettled(ctx)
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("render did not settle: %v", err)), nil
		}
	}

	if state.Phase == schema.PhaseFailed {
		return mcp.NewToolResultError(failureText(state)), nil
	}
	return marshalResult(map[string]any{
		"view_id":      viewID,
		"render_token": token,
		"state":        state,
	})
}

// handleValidate checks text without rendering it.
func (s *DiagramServer) handleValidate(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	text, err := req.RequireString("text")
	if err != nil {
		return mcp.NewToolResultError("text is required"), nil
	}
	result := s.validator.Validate(logging.WithSurface(ctx, "mcp"), text)
	return marshalResult(result)
}

// handleNormalize reports the classification of text and its normalized form.
func (s *DiagramServer) handleNormalize(_ context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	text, err := req.RequireString("text")
	if err != nil {
		return mcp.NewToolResultError("text is required"), nil
	}
	n := s.validator.Normalizer()
	class := n.Classify(text)
	return marshalResult(map[string]any{
		"text":        n.Normalize(text),
		"declared":    class.Declared,
		"rule":        class.Rule,
		"declaration": class.Declaration,
		"rationale":   class.Rationale,
	})
}

// handleExamples returns canonical snippets.
func (s *DiagramServer) handleExamples(_ context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	kind := req.GetString("kind", "")
	if kind == "" {
		return marshalResult(diagram.Examples())
	}
	snippet, ok := diagram.Example(diagram.DiagramKind(kind))
	if !ok {
		return mcp.NewToolResultError(fmt.Sprintf("no example for %q", kind)), nil
	}
	return mcp.NewToolResultText(snippet), nil
}

// failureText formats a failed view state for an agent: the error, the
// repaired text and every suggestion.
func failureText(state schema.PipelineState) string {
	msg := state.Error
	if state.FixedText != "" {
		msg += "\n\nText submitted:\n" + state.FixedText
	}
	for _, s := range state.Suggestions {
		msg += "\n- " + s
	}
	return msg
}

// captureSession binds the calling MCP session to viewID for notifications.
func (s *DiagramServer) captureSession(ctx context.Context, viewID string) {
	if session := server.ClientSessionFromContext(ctx); session != nil {
		s.sessions.Register(viewID, session.SessionID())
	}
}

// marshalResult converts a value to a JSON text tool result.
func marshalResult(v any) (*mcp.CallToolResult, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to marshal result: %v", err)), nil
	}
	return mcp.NewToolResultJSON(json.RawMessage(data))
}
