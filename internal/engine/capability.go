package engine

import (
	"context"

	"github.com/rendis/diagramflow/pkg/schema"
)

// Parser checks declared diagram text. It must be side-effect free.
type Parser interface {
	Parse(ctx context.Context, text string) error
}

// Renderer turns declared diagram text into markup. id is an opaque
// per-call identifier the renderer may use for its own bookkeeping.
type Renderer interface {
	Render(ctx context.Context, id, text string) (string, error)
}

// Initializer applies the static theme and layout configuration. It is
// called until it succeeds once.
type Initializer interface {
	Initialize(ctx context.Context, cfg schema.EngineConfig) error
}

// Backend bundles the three external capabilities the pipeline consumes.
type Backend interface {
	Parser
	Renderer
	Initializer
}
