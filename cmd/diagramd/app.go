package main

import (
	"context"
	"io"
	"log/slog"

	"github.com/rendis/diagramflow/internal/coordinator"
	"github.com/rendis/diagramflow/internal/diagram"
	"github.com/rendis/diagramflow/internal/engine"
	"github.com/rendis/diagramflow/internal/logging"
	"github.com/rendis/diagramflow/internal/panel"
	"github.com/rendis/diagramflow/internal/streaming"
	"github.com/rendis/diagramflow/internal/validation"
)

// app is the wired pipeline shared by every command.
type app struct {
	cfg    Config
	level  *slog.LevelVar
	logger *slog.Logger

	pool      *engine.WorkerPool
	hub       *streaming.MemoryHub
	engine    *engine.RenderEngine
	validator *validation.Validator
	registry  *coordinator.Registry
}

// newApp wires the pipeline for cfg. Logs go to logOut.
func newApp(cfg Config, logOut io.Writer) (*app, error) {
	level := new(slog.LevelVar)
	level.Set(logging.ParseLevel(cfg.LogLevel))
	logger := slog.New(logging.NewCorrelationHandler(
		slog.NewTextHandler(logOut, &slog.HandlerOptions{Level: level})))

	rules, err := diagram.CompileRules(cfg.Rules)
	if err != nil {
		return nil, err
	}

	a := &app{
		cfg:    cfg,
		level:  level,
		logger: logger,
		pool:   engine.NewWorkerPool(cfg.PoolSize, engine.WithPoolLogger(logger)),
		hub:    streaming.NewMemoryHub(),
		engine: engine.NewRenderEngine(engine.EngineDeps{
			Backend: cfg.newBackend(),
			Config:  cfg.Engine,
			Logger:  logger,
		}),
	}
	a.validator, a.registry = a.pipeline(rules)
	return a, nil
}

// pipeline builds a validator over rules and a registry that uses it.
func (a *app) pipeline(rules []diagram.Rule) (*validation.Validator, *coordinator.Registry) {
	v := validation.NewValidator(validation.ValidatorDeps{
		Parser:     a.engine,
		Normalizer: diagram.NewNormalizer(rules...),
		Logger:     a.logger,
	})
	r := coordinator.NewRegistry(coordinator.RegistryDeps{
		Engine:    a.engine,
		Validator: v,
		Pool:      a.pool,
		Hub:       a.hub,
		Logger:    a.logger,
	})
	return v, r
}

// panelHandler returns the preview API over the current registry.
func (a *app) panelHandler() *panel.PanelServer {
	return panel.NewPanelServer(panel.PanelDeps{
		Registry:  a.registry,
		Validator: a.validator,
		Hub:       a.hub,
		Logger:    a.logger,
	})
}

// reload applies the parts of next that can change without a restart and
// returns the fields that need one. swap receives the rebuilt panel when
// the rules change; it may be nil.
func (a *app) reload(ctx context.Context, next Config, swap func(*panel.PanelServer)) ([]string, error) {
	d := diffConfigs(a.cfg, next)

	if d.RulesChanged {
		rules, err := diagram.CompileRules(next.Rules)
		if err != nil {
			return nil, err
		}
		old := a.registry
		a.validator, a.registry = a.pipeline(rules)
		if swap != nil {
			swap(a.panelHandler())
		}
		for _, id := range old.Views() {
			_ = old.Close(ctx, id)
		}
		a.cfg.Rules = next.Rules
		a.logger.Info("classification rules reloaded", "rules", len(rules))
	}
	if d.LogLevelChanged {
		a.level.Set(logging.ParseLevel(next.LogLevel))
		a.cfg.LogLevel = next.LogLevel
		a.logger.Info("log level changed", "level", next.LogLevel)
	}
	return d.RestartNeeded, nil
}

// Close stops the worker pool after in-flight jobs finish.
func (a *app) Close() {
	a.pool.Shutdown()
}
