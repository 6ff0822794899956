package coordinator

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rendis/diagramflow/internal/engine"
	"github.com/rendis/diagramflow/internal/streaming"
	"github.com/rendis/diagramflow/internal/validation"
	"github.com/rendis/diagramflow/pkg/schema"
	"github.com/stretchr/testify/require"
)

const waitTimeout = 2 * time.Second

// gatedBackend is a Backend whose parse and render calls can be held open
// per input text, so tests decide the completion order.
type gatedBackend struct {
	initCalls atomic.Int64
	parses    atomic.Int64
	renders   atomic.Int64
	initErrs  []error

	mu          sync.Mutex
	parseGates  map[string]chan struct{}
	renderGates map[string]chan struct{}
	signals     map[string]chan struct{}
}

func newGatedBackend() *gatedBackend {
	return &gatedBackend{
		parseGates:  make(map[string]chan struct{}),
		renderGates: make(map[string]chan struct{}),
		signals:     make(map[string]chan struct{}),
	}
}

// holdParse blocks parsing of text until the returned channel is closed.
func (b *gatedBackend) holdParse(text string) chan struct{} {
	b.mu.Lock()
	defer b.mu.Unlock()
	ch := make(chan struct{})
	b.parseGates[text] = ch
	return ch
}

// holdRender blocks rendering of text until the returned channel is closed.
func (b *gatedBackend) holdRender(text string) chan struct{} {
	b.mu.Lock()
	defer b.mu.Unlock()
	ch := make(chan struct{})
	b.renderGates[text] = ch
	return ch
}

func (b *gatedBackend) signalLocked(key string) chan struct{} {
	ch, ok := b.signals[key]
	if !ok {
		ch = make(chan struct{})
		b.signals[key] = ch
	}
	return ch
}

func (b *gatedBackend) mark(key string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	ch := b.signalLocked(key)
	select {
	case <-ch:
	default:
		close(ch)
	}
}

// waitFor blocks until the backend reached key, e.g. "render:<text>".
func (b *gatedBackend) waitFor(t *testing.T, key string) {
	t.Helper()
	b.mu.Lock()
	ch := b.signalLocked(key)
	b.mu.Unlock()
	select {
	case <-ch:
	case <-time.After(waitTimeout):
		t.Fatalf("backend never reached %q", key)
	}
}

func (b *gatedBackend) gate(gates map[string]chan struct{}, text string) chan struct{} {
	b.mu.Lock()
	defer b.mu.Unlock()
	return gates[text]
}

func (b *gatedBackend) Initialize(context.Context, schema.EngineConfig) error {
	n := b.initCalls.Add(1)
	if int(n) <= len(b.initErrs) {
		return b.initErrs[n-1]
	}
	return nil
}

func (b *gatedBackend) Parse(_ context.Context, text string) error {
	b.parses.Add(1)
	b.mark("parse:" + text)
	if g := b.gate(b.parseGates, text); g != nil {
		<-g
	}
	if strings.Contains(text, "bad") {
		return errors.New("parse error on line 2: expecting a link")
	}
	return nil
}

func (b *gatedBackend) Render(_ context.Context, id, text string) (string, error) {
	b.renders.Add(1)
	b.mark("render:" + text)
	if g := b.gate(b.renderGates, text); g != nil {
		<-g
	}
	defer b.mark("rendered:" + text)
	if strings.Contains(text, "pie") {
		return "", schema.NewError(schema.ErrCodeUnsupported,
			"cannot render pie diagrams: no layout available for this diagram type")
	}
	return `<svg id="` + id + `">` + text + `</svg>`, nil
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type harness struct {
	c      *Coordinator
	pool   *engine.WorkerPool
	hub    *streaming.MemoryHub
	engine *engine.RenderEngine
	events <-chan streaming.StateEvent
}

func newHarness(t *testing.T, b engine.Backend) *harness {
	t.Helper()
	logger := quietLogger()
	eng := engine.NewRenderEngine(engine.EngineDeps{Backend: b, Config: schema.DefaultEngineConfig(), Logger: logger})
	val := validation.NewValidator(validation.ValidatorDeps{Parser: eng, Logger: logger})
	pool := engine.NewWorkerPool(4, engine.WithPoolLogger(logger))
	hub := streaming.NewMemoryHub()

	events, cancel, err := hub.Subscribe(context.Background(), streaming.EventFilter{ViewID: "view-1"})
	require.NoError(t, err)
	t.Cleanup(func() {
		pool.Shutdown()
		cancel()
	})

	c := NewCoordinator(CoordinatorDeps{
		ViewID:    "view-1",
		Engine:    eng,
		Validator: val,
		Pool:      pool,
		Hub:       hub,
		Logger:    logger,
	})
	return &harness{c: c, pool: pool, hub: hub, engine: eng, events: events}
}

// settle waits for the view to stop loading.
func (h *harness) settle(t *testing.T) schema.PipelineState {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), waitTimeout)
	defer cancel()
	s, err := h.c.WaitSettled(ctx)
	require.NoError(t, err)
	return s
}

// drain returns the events published so far.
func (h *harness) drain() []streaming.StateEvent {
	var out []streaming.StateEvent
	for {
		select {
		case ev, ok := <-h.events:
			if !ok {
				return out
			}
			out = append(out, ev)
		default:
			return out
		}
	}
}

func eventTypes(events []streaming.StateEvent) []string {
	types := make([]string, len(events))
	for i, ev := range events {
		types[i] = ev.EventType
	}
	return types
}

func svgFor(token schema.RenderToken, text string) string {
	return `<svg id="` + string(token) + `">` + text + `</svg>`
}
