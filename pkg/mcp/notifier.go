package mcp

import (
	"context"
	"errors"

	"github.com/mark3labs/mcp-go/server"
	"github.com/rendis/diagramflow/internal/streaming"
	"github.com/rendis/diagramflow/pkg/schema"
)

// notificationMethod is the MCP method used for state pushes.
const notificationMethod = "notifications/message"

// sender is the part of server.MCPServer the notifier uses.
type sender interface {
	SendNotificationToSpecificClient(sessionID string, method string, params map[string]any) error
}

// MCPNotifier pushes view state events to the session bound to the view.
type MCPNotifier struct {
	sender   sender
	sessions *SessionRegistry
}

// NewMCPNotifier creates a notifier that pushes via the MCP server.
func NewMCPNotifier(s sender, sessions *SessionRegistry) *MCPNotifier {
	return &MCPNotifier{sender: s, sessions: sessions}
}

// Notify sends a notification to the view's session.
// Best-effort: returns nil if no session is bound to the view.
func (n *MCPNotifier) Notify(_ context.Context, viewID string, payload map[string]any) error {
	sessionID, ok := n.sessions.SessionFor(viewID)
	if !ok {
		return nil // nobody listening, best-effort
	}
	err := n.sender.SendNotificationToSpecificClient(sessionID, notificationMethod, payload)
	if errors.Is(err, server.ErrSessionNotFound) {
		// Session expired between lookup and send; not an error.
		n.sessions.Remove(sessionID)
		return nil
	}
	return err
}

// Forward relays hub events to bound sessions until ctx is done. Failed
// sends are passed to onError, if set, and do not stop forwarding.
func (n *MCPNotifier) Forward(ctx context.Context, hub streaming.EventHub, onError func(viewID string, err error)) error {
	ch, cancel, err := hub.Subscribe(ctx, streaming.EventFilter{})
	if err != nil {
		return err
	}
	defer cancel()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev, ok := <-ch:
			if !ok {
				return nil
			}
			if err := n.Notify(ctx, ev.ViewID, statePayload(ev)); err != nil && onError != nil {
				onError(ev.ViewID, err)
			}
			if ev.EventType == schema.EventViewClosed {
				n.sessions.Forget(ev.ViewID)
			}
		}
	}
}

// statePayload formats an event as a logging message notification.
func statePayload(ev streaming.StateEvent) map[string]any {
	level := "info"
	if ev.State.Phase == schema.PhaseFailed {
		level = "warning"
	}
	return map[string]any{
		"level":  level,
		"logger": "diagramflow",
		"data": map[string]any{
			"view_id":      ev.ViewID,
			"event_type":   ev.EventType,
			"render_token": string(ev.Token),
			"phase":        string(ev.State.Phase),
			"is_loading":   ev.State.IsLoading,
			"error":        ev.State.Error,
			"output_bytes": len(ev.State.Output),
		},
	}
}
