package coordinator

import (
	"context"
	"log/slog"
	"os"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/rendis/diagramflow/internal/diagram"
	"github.com/rendis/diagramflow/internal/engine"
	"github.com/rendis/diagramflow/internal/logging"
	"github.com/rendis/diagramflow/internal/streaming"
	"github.com/rendis/diagramflow/internal/validation"
	"github.com/rendis/diagramflow/pkg/schema"
)

// NewToken mints a render token.
func NewToken() schema.RenderToken {
	return schema.RenderToken("render-" + uuid.NewString())
}

// CoordinatorDeps holds the collaborators of a Coordinator. Pool and Hub
// are optional: without a pool each render runs on its own goroutine.
type CoordinatorDeps struct {
	ViewID    string
	Engine    *engine.RenderEngine
	Validator *validation.Validator
	Pool      *engine.WorkerPool
	Hub       streaming.EventHub
	Logger    *slog.Logger
}

// Coordinator drives one diagram view through normalize, validate and
// render, and publishes only the outcome of the most recent call.
type Coordinator struct {
	viewID    string
	engine    *engine.RenderEngine
	validator *validation.Validator
	pool      *engine.WorkerPool
	hub       streaming.EventHub
	logger    *slog.Logger

	mu      sync.Mutex
	state   schema.PipelineState
	settled chan struct{} // closed while the view is not loading
}

// NewCoordinator creates a Coordinator in the idle phase.
func NewCoordinator(deps CoordinatorDeps) *Coordinator {
	logger := deps.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelInfo}))
	}
	settled := make(chan struct{})
	close(settled)
	return &Coordinator{
		viewID:    deps.ViewID,
		engine:    deps.Engine,
		validator: deps.Validator,
		pool:      deps.Pool,
		hub:       deps.Hub,
		logger:    logger,
		state:     schema.PipelineState{Phase: schema.PhaseIdle},
		settled:   settled,
	}
}

// ViewID returns the id of the view this coordinator drives.
func (c *Coordinator) ViewID() string {
	return c.viewID
}

// State returns a snapshot of the view state.
func (c *Coordinator) State() schema.PipelineState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state.Clone()
}

// RenderDiagram starts a render of text and returns its token without
// waiting for the outcome. Blank text resets the view and returns "".
func (c *Coordinator) RenderDiagram(ctx context.Context, text string) schema.RenderToken {
	if strings.TrimSpace(text) == "" {
		c.Reset(ctx)
		return ""
	}

	token := NewToken()
	ctx = logging.WithToken(logging.WithViewID(ctx, c.viewID), token)

	c.mu.Lock()
	c.apply(ctx, schema.PipelineState{
		Phase:     schema.PhaseValidating,
		IsLoading: true,
		Token:     token,
	})
	c.mu.Unlock()

	logging.LogWith(ctx, c.logger).Debug("render requested", slog.Int("bytes", len(text)))

	// Superseded work still runs to completion; its result is discarded.
	work := context.WithoutCancel(ctx)
	job := func(ctx context.Context) error {
		c.run(ctx, token, text)
		return nil
	}
	if c.pool == nil {
		go job(work)
		return token
	}
	c.pool.Dispatch(work, job, func(err error) {
		msg := "render pipeline unavailable: " + err.Error()
		c.publish(work, token, schema.PipelineState{
			Phase:       schema.PhaseFailed,
			Error:       msg,
			Suggestions: []string{diagram.Advise(msg)},
		})
	})
	return token
}

// Reset clears the view state and invalidates the current token, so any
// outstanding completion is ignored.
func (c *Coordinator) Reset(ctx context.Context) {
	ctx = logging.WithViewID(ctx, c.viewID)
	c.mu.Lock()
	defer c.mu.Unlock()
	c.apply(ctx, schema.PipelineState{Phase: schema.PhaseIdle})
}

// WaitSettled blocks until the view is not loading and returns the state
// at that moment.
func (c *Coordinator) WaitSettled(ctx context.Context) (schema.PipelineState, error) {
	for {
		c.mu.Lock()
		if !c.state.IsLoading {
			s := c.state.Clone()
			c.mu.Unlock()
			return s, nil
		}
		ch := c.settled
		c.mu.Unlock()

		select {
		case <-ch:
		case <-ctx.Done():
			return c.State(), ctx.Err()
		}
	}
}

func (c *Coordinator) run(ctx context.Context, token schema.RenderToken, text string) {
	if err := c.engine.EnsureInitialized(ctx); err != nil {
		msg := engine.ErrorMessage(err)
		c.publish(ctx, token, schema.PipelineState{
			Phase:       schema.PhaseFailed,
			Error:       msg,
			Suggestions: []string{diagram.Advise(msg)},
		})
		return
	}

	result := c.validator.Validate(ctx, text)
	if !result.IsValid {
		c.publish(ctx, token, schema.PipelineState{
			Phase:       schema.PhaseFailed,
			Error:       result.Error,
			Suggestions: result.Suggestions,
			FixedText:   result.FixedText,
		})
		return
	}

	if !c.publish(ctx, token, schema.PipelineState{
		Phase:     schema.PhaseRendering,
		IsLoading: true,
		FixedText: result.FixedText,
	}) {
		return
	}

	out := c.engine.Render(ctx, token, result.FixedText)
	if out.Error != "" {
		c.publish(ctx, token, schema.PipelineState{
			Phase:       schema.PhaseFailed,
			Error:       out.Error,
			Suggestions: []string{diagram.Advise(out.Error)},
			FixedText:   result.FixedText,
		})
		return
	}
	c.publish(ctx, token, schema.PipelineState{
		Phase:     schema.PhaseSuccess,
		Output:    out.SVG,
		FixedText: result.FixedText,
	})
}

// publish applies next if token is still current. It reports whether the
// state was accepted.
func (c *Coordinator) publish(ctx context.Context, token schema.RenderToken, next schema.PipelineState) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if token == "" || token != c.state.Token {
		logging.LogWith(ctx, c.logger).Debug("discarding stale outcome",
			slog.String("phase", string(next.Phase)),
			slog.String("current_token", string(c.state.Token)),
		)
		return false
	}
	next.Token = token
	return c.apply(ctx, next) == nil
}

// apply replaces the state and emits the matching event. Callers hold c.mu.
func (c *Coordinator) apply(ctx context.Context, next schema.PipelineState) error {
	log := logging.LogWith(ctx, c.logger)
	if err := checkTransition(c.viewID, c.state.Phase, next.Phase); err != nil {
		log.Error("rejected state change", slog.String("error", err.Error()))
		return err
	}

	wasLoading := c.state.IsLoading
	c.state = next
	switch {
	case next.IsLoading && !wasLoading:
		c.settled = make(chan struct{})
	case !next.IsLoading && wasLoading:
		close(c.settled)
	}

	switch next.Phase {
	case schema.PhaseFailed:
		log.Warn("diagram failed", slog.String("error", next.Error))
	case schema.PhaseSuccess:
		log.Info("diagram rendered", slog.Int("bytes", len(next.Output)))
	}

	if c.hub != nil {
		event := streaming.StateEvent{
			ViewID:    c.viewID,
			Token:     next.Token,
			EventType: schema.PhaseEventType(next.Phase),
			State:     next.Clone(),
		}
		if err := c.hub.Publish(context.WithoutCancel(ctx), event); err != nil {
			log.Debug("state event not published", slog.String("error", err.Error()))
		}
	}
	return nil
}
