package coordinator

import (
	"context"
	"testing"

	"github.com/rendis/diagramflow/internal/diagram"
	"github.com/rendis/diagramflow/pkg/schema"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEndToEndWithGraphviz(t *testing.T) {
	tests := []struct {
		name      string
		text      string
		fixedText string
	}{
		{"declared", "flowchart TD\nA-->B", "flowchart TD\nA-->B"},
		{"undeclared connector", "A-->B", "flowchart TD\nA-->B"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t, diagram.NewGraphvizBackend())

			token := h.c.RenderDiagram(context.Background(), tt.text)
			got := h.settle(t)

			assert.Equal(t, schema.PhaseSuccess, got.Phase)
			assert.False(t, got.IsLoading)
			assert.Empty(t, got.Error)
			assert.Contains(t, got.Output, `<svg id="`+string(token)+`"`)
			assert.Equal(t, tt.fixedText, got.FixedText)

			events := h.drain()
			require.NotEmpty(t, events)
			assert.True(t, events[0].State.IsLoading)
			assert.Equal(t, schema.EventRenderSucceeded, events[len(events)-1].EventType)
		})
	}
}

func TestEndToEndInvalidText(t *testing.T) {
	h := newHarness(t, diagram.NewGraphvizBackend())

	h.c.RenderDiagram(context.Background(), "totally not a diagram !!")
	got := h.settle(t)

	assert.Equal(t, schema.PhaseFailed, got.Phase)
	assert.False(t, got.IsLoading)
	assert.Empty(t, got.Output)
	assert.Contains(t, got.Error, "Invalid Mermaid syntax")
	assert.Equal(t, "flowchart TD\ntotally not a diagram !!", got.FixedText)
	assert.NotEmpty(t, got.Suggestions)

	snippet, ok := diagram.Example(diagram.KindFlowchart)
	assert.True(t, ok)
	assert.NotEmpty(t, snippet)
}

func TestEndToEndUnsupportedKind(t *testing.T) {
	h := newHarness(t, diagram.NewGraphvizBackend())

	h.c.RenderDiagram(context.Background(), "pie title Pets\n    \"Dogs\" : 386")
	got := h.settle(t)

	assert.Equal(t, schema.PhaseFailed, got.Phase)
	assert.Contains(t, got.Error, "cannot render pie diagrams")
	assert.Equal(t, []string{diagram.Advise("render")}, got.Suggestions)
}
