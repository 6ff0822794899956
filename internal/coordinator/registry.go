package coordinator

import (
	"context"
	"log/slog"
	"os"
	"slices"
	"strings"
	"sync"

	"github.com/rendis/diagramflow/internal/engine"
	"github.com/rendis/diagramflow/internal/logging"
	"github.com/rendis/diagramflow/internal/streaming"
	"github.com/rendis/diagramflow/internal/validation"
	"github.com/rendis/diagramflow/pkg/schema"
)

// RegistryDeps holds the collaborators shared by every view.
type RegistryDeps struct {
	Engine    *engine.RenderEngine
	Validator *validation.Validator
	Pool      *engine.WorkerPool
	Hub       streaming.EventHub
	Logger    *slog.Logger
}

// Registry owns one Coordinator per open diagram view.
type Registry struct {
	deps RegistryDeps

	mu    sync.Mutex
	views map[string]*Coordinator
}

// NewRegistry creates an empty Registry.
func NewRegistry(deps RegistryDeps) *Registry {
	if deps.Logger == nil {
		deps.Logger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelInfo}))
	}
	return &Registry{deps: deps, views: make(map[string]*Coordinator)}
}

// Open returns the coordinator for viewID, creating it on first use.
func (r *Registry) Open(viewID string) (*Coordinator, error) {
	viewID = strings.TrimSpace(viewID)
	if viewID == "" {
		return nil, schema.NewError(schema.ErrCodeValidation, "view id is required")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if c, ok := r.views[viewID]; ok {
		return c, nil
	}
	c := NewCoordinator(CoordinatorDeps{
		ViewID:    viewID,
		Engine:    r.deps.Engine,
		Validator: r.deps.Validator,
		Pool:      r.deps.Pool,
		Hub:       r.deps.Hub,
		Logger:    r.deps.Logger,
	})
	r.views[viewID] = c
	r.deps.Logger.Debug("view opened", slog.String("view_id", viewID))
	return c, nil
}

// Get returns the coordinator of an open view.
func (r *Registry) Get(viewID string) (*Coordinator, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	c, ok := r.views[viewID]
	if !ok {
		return nil, schema.NewErrorf(schema.ErrCodeNotFound, "view %q not found", viewID)
	}
	return c, nil
}

// Close resets a view and forgets it. Completions that arrive afterwards
// are discarded.
func (r *Registry) Close(ctx context.Context, viewID string) error {
	r.mu.Lock()
	c, ok := r.views[viewID]
	delete(r.views, viewID)
	r.mu.Unlock()

	if !ok {
		return schema.NewErrorf(schema.ErrCodeNotFound, "view %q not found", viewID)
	}
	c.Reset(ctx)

	if r.deps.Hub != nil {
		_ = r.deps.Hub.Publish(context.WithoutCancel(ctx), streaming.StateEvent{
			ViewID:    viewID,
			EventType: schema.EventViewClosed,
			State:     schema.PipelineState{Phase: schema.PhaseIdle},
		})
	}
	logging.LogWith(logging.WithViewID(ctx, viewID), r.deps.Logger).Debug("view closed")
	return nil
}

// Views returns the ids of the open views in sorted order.
func (r *Registry) Views() []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	ids := make([]string, 0, len(r.views))
	for id := range r.views {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	return ids
}
