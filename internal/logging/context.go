package logging

import (
	"context"
	"io"
	"log/slog"
	"strings"

	"github.com/rendis/diagramflow/pkg/schema"
)

type ctxKey int

const (
	viewIDKey ctxKey = iota
	tokenKey
	surfaceKey
)

// WithViewID returns a context with the diagram view ID set.
func WithViewID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, viewIDKey, id)
}

// WithToken returns a context with the render token set.
func WithToken(ctx context.Context, token schema.RenderToken) context.Context {
	return context.WithValue(ctx, tokenKey, token)
}

// WithSurface returns a context tagged with the entry point that issued the
// call ("panel", "mcp", "cli").
func WithSurface(ctx context.Context, surface string) context.Context {
	return context.WithValue(ctx, surfaceKey, surface)
}

// ViewID extracts the view ID from the context, or "" if absent.
func ViewID(ctx context.Context) string {
	v, _ := ctx.Value(viewIDKey).(string)
	return v
}

// Token extracts the render token from the context, or "" if absent.
func Token(ctx context.Context) schema.RenderToken {
	v, _ := ctx.Value(tokenKey).(schema.RenderToken)
	return v
}

// Surface extracts the surface tag from the context, or "" if absent.
func Surface(ctx context.Context) string {
	v, _ := ctx.Value(surfaceKey).(string)
	return v
}

// correlationAttrs returns the non-empty correlation IDs in ctx.
func correlationAttrs(ctx context.Context) []slog.Attr {
	var attrs []slog.Attr
	if v := ViewID(ctx); v != "" {
		attrs = append(attrs, slog.String("view_id", v))
	}
	if v := Token(ctx); v != "" {
		attrs = append(attrs, slog.String("render_token", string(v)))
	}
	if v := Surface(ctx); v != "" {
		attrs = append(attrs, slog.String("surface", v))
	}
	return attrs
}

// LogWith returns a logger enriched with correlation IDs from the context.
// Only non-empty values are added as attributes.
func LogWith(ctx context.Context, logger *slog.Logger) *slog.Logger {
	for _, a := range correlationAttrs(ctx) {
		logger = logger.With(a)
	}
	return logger
}

// CorrelationHandler wraps an slog.Handler, injecting correlation IDs from
// the context into every record. Use with logger.InfoContext(ctx, ...).
type CorrelationHandler struct {
	inner slog.Handler
}

// NewCorrelationHandler wraps the given handler with correlation ID injection.
func NewCorrelationHandler(inner slog.Handler) *CorrelationHandler {
	return &CorrelationHandler{inner: inner}
}

func (h *CorrelationHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return h.inner.Enabled(ctx, level)
}

func (h *CorrelationHandler) Handle(ctx context.Context, r slog.Record) error {
	r.AddAttrs(correlationAttrs(ctx)...)
	return h.inner.Handle(ctx, r)
}

func (h *CorrelationHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &CorrelationHandler{inner: h.inner.WithAttrs(attrs)}
}

func (h *CorrelationHandler) WithGroup(name string) slog.Handler {
	return &CorrelationHandler{inner: h.inner.WithGroup(name)}
}

// ParseLevel maps a config string to a level. Unknown values yield info.
func ParseLevel(s string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// New builds a text logger on w whose records carry correlation IDs.
func New(w io.Writer, level slog.Level) *slog.Logger {
	return slog.New(NewCorrelationHandler(slog.NewTextHandler(w, &slog.HandlerOptions{Level: level})))
}
