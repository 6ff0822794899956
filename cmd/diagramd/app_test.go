package main

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"testing"

	"github.com/rendis/diagramflow/internal/diagram"
	"github.com/rendis/diagramflow/internal/panel"
	"github.com/rendis/diagramflow/pkg/schema"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestApp(t *testing.T, cfg Config, logOut io.Writer) *app {
	t.Helper()
	a, err := newApp(cfg, logOut)
	require.NoError(t, err)
	t.Cleanup(a.Close)
	return a
}

func TestNewAppRejectsBadRule(t *testing.T) {
	cfg := defaultConfig()
	cfg.Rules = []diagram.RuleConfig{{Name: "bad", When: "text +", Declaration: "pie"}}

	_, err := newApp(cfg, io.Discard)
	require.Error(t, err)
	assert.True(t, schema.HasCode(err, schema.ErrCodeValidation))
}

func TestAppRendersThroughRegistry(t *testing.T) {
	a := newTestApp(t, defaultConfig(), io.Discard)

	view, err := a.registry.Open("t")
	require.NoError(t, err)
	view.RenderDiagram(context.Background(), "A --> B")
	state, err := view.WaitSettled(context.Background())
	require.NoError(t, err)

	assert.Equal(t, schema.PhaseSuccess, state.Phase)
	assert.Contains(t, state.Output, "<svg")
	assert.Equal(t, "flowchart TD\nA --> B", state.FixedText)
}

func TestAppReloadLogLevel(t *testing.T) {
	var logs bytes.Buffer
	a := newTestApp(t, defaultConfig(), &logs)
	assert.False(t, a.logger.Enabled(context.Background(), slog.LevelDebug))

	next := defaultConfig()
	next.LogLevel = "debug"
	restart, err := a.reload(context.Background(), next, nil)
	require.NoError(t, err)

	assert.Empty(t, restart)
	assert.True(t, a.logger.Enabled(context.Background(), slog.LevelDebug))
	assert.Contains(t, logs.String(), "log level changed")
}

func TestAppReloadRulesSwapsPanelAndClosesViews(t *testing.T) {
	a := newTestApp(t, defaultConfig(), io.Discard)
	oldRegistry := a.registry

	view, err := oldRegistry.Open("t")
	require.NoError(t, err)
	view.RenderDiagram(context.Background(), "A --> B")
	_, err = view.WaitSettled(context.Background())
	require.NoError(t, err)

	next := defaultConfig()
	next.Rules = []diagram.RuleConfig{{
		Name:        "left-right",
		When:        `text contains "-->"`,
		Declaration: "graph LR",
	}}

	var swapped *panel.PanelServer
	restart, err := a.reload(context.Background(), next, func(p *panel.PanelServer) { swapped = p })
	require.NoError(t, err)

	assert.Empty(t, restart)
	assert.NotNil(t, swapped)
	assert.NotSame(t, oldRegistry, a.registry)
	assert.Empty(t, oldRegistry.Views())
	assert.Equal(t, "graph LR\nA --> B", a.validator.Normalizer().Normalize("A --> B"))
}

func TestAppReloadReportsRestartFields(t *testing.T) {
	a := newTestApp(t, defaultConfig(), io.Discard)

	next := defaultConfig()
	next.PoolSize = 16
	next.Engine.Theme = "forest"
	restart, err := a.reload(context.Background(), next, nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"pool_size", "engine"}, restart)
}

func TestAppReloadKeepsRegistryOnBadRule(t *testing.T) {
	a := newTestApp(t, defaultConfig(), io.Discard)
	reg := a.registry

	next := defaultConfig()
	next.Rules = []diagram.RuleConfig{{Name: "bad", When: "text +", Declaration: "pie"}}
	_, err := a.reload(context.Background(), next, nil)
	require.Error(t, err)
	assert.Same(t, reg, a.registry)
}
