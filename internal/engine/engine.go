package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sync/atomic"

	"github.com/rendis/diagramflow/internal/logging"
	"github.com/rendis/diagramflow/pkg/schema"
	"golang.org/x/sync/singleflight"
)

const initKey = "init"

// fallbackRenderError is published when a render error carries no message.
const fallbackRenderError = "Failed to render diagram"

// EngineDeps holds the collaborators of a RenderEngine.
type EngineDeps struct {
	Backend Backend
	Config  schema.EngineConfig
	Logger  *slog.Logger
}

// RenderEngine wraps a Backend with one-time initialization and converts
// every failure into a RenderOutcome.
type RenderEngine struct {
	backend Backend
	cfg     schema.EngineConfig
	logger  *slog.Logger

	group    singleflight.Group
	ready    atomic.Bool
	attempts atomic.Int64
}

// NewRenderEngine creates a RenderEngine. Initialization is deferred to the
// first EnsureInitialized or Render call.
func NewRenderEngine(deps EngineDeps) *RenderEngine {
	logger := deps.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelInfo}))
	}
	return &RenderEngine{
		backend: deps.Backend,
		cfg:     deps.Config,
		logger:  logger,
	}
}

// Backend returns the wrapped backend.
func (e *RenderEngine) Backend() Backend {
	return e.backend
}

// Initialized reports whether initialization has succeeded.
func (e *RenderEngine) Initialized() bool {
	return e.ready.Load()
}

// InitAttempts returns how many times the backend initializer has run.
func (e *RenderEngine) InitAttempts() int64 {
	return e.attempts.Load()
}

// EnsureInitialized runs the backend initializer unless it already
// succeeded. Concurrent callers share one in-flight attempt. A failure is
// not remembered, so the next call tries again.
func (e *RenderEngine) EnsureInitialized(ctx context.Context) error {
	if e.ready.Load() {
		return nil
	}

	// The shared attempt must not die with whichever caller started it.
	initCtx := context.WithoutCancel(ctx)
	_, err, shared := e.group.Do(initKey, func() (any, error) {
		if e.ready.Load() {
			return nil, nil
		}
		e.attempts.Add(1)
		if err := e.initialize(initCtx); err != nil {
			return nil, schema.NewErrorf(schema.ErrCodeInit,
				"failed to initialize diagram renderer: %s", err.Error()).WithCause(err)
		}
		e.ready.Store(true)
		return nil, nil
	})

	if err != nil {
		logging.LogWith(ctx, e.logger).Error("renderer initialization failed",
			slog.Bool("shared", shared),
			slog.String("error", err.Error()),
		)
		return err
	}
	return nil
}

func (e *RenderEngine) initialize(ctx context.Context) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("initializer panicked: %v", r)
		}
	}()
	return e.backend.Initialize(ctx, e.cfg)
}

// Render ensures initialization and invokes the render capability with the
// token as render id. It never returns an error: failures are reported in
// the outcome.
func (e *RenderEngine) Render(ctx context.Context, token schema.RenderToken, text string) schema.RenderOutcome {
	out := schema.RenderOutcome{Token: token}
	log := logging.LogWith(logging.WithToken(ctx, token), e.logger)

	if err := e.EnsureInitialized(ctx); err != nil {
		out.Error = ErrorMessage(err)
		return out
	}

	log.Debug("rendering diagram", slog.Int("bytes", len(text)))
	svg, err := e.render(ctx, string(token), text)
	switch {
	case err != nil:
		log.Warn("render failed", slog.String("error", err.Error()))
		out.Error = ErrorMessage(err)
	case svg == "":
		out.Error = fallbackRenderError
	default:
		out.SVG = svg
	}
	return out
}

func (e *RenderEngine) render(ctx context.Context, id, text string) (svg string, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = schema.NewErrorf(schema.ErrCodeRender, "renderer panicked: %v", r)
		}
	}()
	return e.backend.Render(ctx, id, text)
}

// Parse invokes the parse capability, converting panics into errors.
func (e *RenderEngine) Parse(ctx context.Context, text string) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("parser panicked: %v", r)
		}
	}()
	return e.backend.Parse(ctx, text)
}

// ErrorMessage returns the user-facing message of err: the message of a
// PipelineError without its code, or the plain error text.
func ErrorMessage(err error) string {
	if err == nil {
		return ""
	}
	var pe *schema.PipelineError
	if errors.As(err, &pe) && pe.Message != "" {
		return pe.Message
	}
	if msg := err.Error(); msg != "" {
		return msg
	}
	return fallbackRenderError
}
