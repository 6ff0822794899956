package diagram

import (
	"context"
	"html"
	"slices"
	"strings"
	"sync"

	"github.com/goccy/go-graphviz"
	"github.com/rendis/diagramflow/pkg/schema"
)

// GraphvizBackend parses with the built-in parser and lays out SVG with
// graphviz. It satisfies engine.Backend.
type GraphvizBackend struct {
	mu  sync.RWMutex
	cfg schema.EngineConfig
}

// NewGraphvizBackend creates a backend styled with the default theme until
// Initialize is called.
func NewGraphvizBackend() *GraphvizBackend {
	return &GraphvizBackend{cfg: schema.DefaultEngineConfig()}
}

// Initialize checks cfg and probes the graphviz runtime.
func (b *GraphvizBackend) Initialize(ctx context.Context, cfg schema.EngineConfig) error {
	if cfg.Theme != "" && !slices.Contains(schema.Themes, cfg.Theme) {
		return schema.NewErrorf(schema.ErrCodeValidation, "unknown theme %q", cfg.Theme)
	}
	if cfg.Direction != "" && !flowDirections[strings.ToUpper(cfg.Direction)] {
		return schema.NewErrorf(schema.ErrCodeValidation, "unknown direction %q", cfg.Direction)
	}

	gv, err := graphviz.New(ctx)
	if err != nil {
		return err
	}
	if err := gv.Close(); err != nil {
		return err
	}

	b.mu.Lock()
	b.cfg = cfg
	b.mu.Unlock()
	return nil
}

// Parse checks declared text with the built-in parser.
func (b *GraphvizBackend) Parse(_ context.Context, text string) error {
	_, err := Parse(text)
	return err
}

// Render parses text and returns an SVG document whose root element carries
// id.
func (b *GraphvizBackend) Render(ctx context.Context, id, text string) (string, error) {
	model, err := Parse(text)
	if err != nil {
		return "", err
	}

	b.mu.RLock()
	cfg := b.cfg
	b.mu.RUnlock()

	svg, err := RenderSVG(ctx, model, cfg)
	if err != nil {
		return "", err
	}
	return InjectSVGID(string(svg), id), nil
}

// InjectSVGID sets the id attribute on the root <svg> element. Documents
// without one are returned unchanged.
func InjectSVGID(svg, id string) string {
	if id == "" {
		return svg
	}
	i := strings.Index(svg, "<svg")
	if i < 0 {
		return svg
	}
	at := i + len("<svg")
	return svg[:at] + ` id="` + html.EscapeString(id) + `"` + svg[at:]
}
