package streaming

import (
	"context"

	"github.com/rendis/diagramflow/pkg/schema"
)

// StateEvent is emitted whenever a diagram view accepts a state change.
type StateEvent struct {
	ViewID    string               `json:"view_id"`
	Token     schema.RenderToken   `json:"render_token,omitempty"`
	EventType string               `json:"event_type"`
	State     schema.PipelineState `json:"state"`
}

// EventFilter specifies which events a subscriber wants to receive.
type EventFilter struct {
	ViewID     string   `json:"view_id,omitempty"`
	EventTypes []string `json:"event_types,omitempty"`
}

// EventHub provides pub/sub for view state events.
type EventHub interface {
	Publish(ctx context.Context, event StateEvent) error
	Subscribe(ctx context.Context, filter EventFilter) (<-chan StateEvent, func(), error)
}
