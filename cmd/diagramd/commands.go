package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/rendis/diagramflow/internal/diagram"
	"github.com/rendis/diagramflow/internal/panel"
	"github.com/rendis/diagramflow/internal/query"
	"github.com/rendis/diagramflow/pkg/mcp"
	"github.com/rendis/diagramflow/pkg/schema"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

const (
	cliViewID       = "cli"
	shutdownTimeout = 5 * time.Second
)

var (
	listenAddr       string
	renderOut        string
	renderQuery      string
	validateJSON     bool
	normalizeExplain bool
	fmtWrite         bool
)

// errRenderFailed is returned after the failure was already reported.
var errRenderFailed = errors.New("diagram did not render")

func settingsFile() string {
	if configPath != "" {
		return configPath
	}
	return settingsPath()
}

// loadAppConfig loads settings and applies the persistent flag overrides.
func loadAppConfig() (Config, error) {
	cfg, err := loadConfig(settingsFile())
	if err != nil {
		return Config{}, err
	}
	if logLevel != "" {
		cfg.LogLevel = logLevel
	}
	return cfg, nil
}

func commandContext(cmd *cobra.Command) context.Context {
	if ctx := cmd.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}

// readInput reads the named file, or stdin when there is no name or it is "-".
func readInput(cmd *cobra.Command, args []string) (string, error) {
	if len(args) == 0 || args[0] == "-" {
		data, err := io.ReadAll(cmd.InOrStdin())
		if err != nil {
			return "", fmt.Errorf("read stdin: %w", err)
		}
		return string(data), nil
	}
	data, err := os.ReadFile(args[0])
	if err != nil {
		return "", fmt.Errorf("read %s: %w", args[0], err)
	}
	return string(data), nil
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := loadAppConfig()
	if err != nil {
		return err
	}
	if listenAddr != "" {
		cfg.ListenAddr = listenAddr
	}

	a, err := newApp(cfg, cmd.ErrOrStderr())
	if err != nil {
		return err
	}
	defer a.Close()

	ctx, stop := signal.NotifyContext(commandContext(cmd), os.Interrupt, syscall.SIGTERM)
	defer stop()

	swapper := newHandlerSwapper(a.panelHandler().Handler())
	srv := &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           swapper,
		ReadHeaderTimeout: 10 * time.Second,
		// SSE streams end when ctx is cancelled.
		BaseContext: func(net.Listener) context.Context { return ctx },
	}

	hup := make(chan os.Signal, 1)
	signal.Notify(hup, syscall.SIGHUP)
	defer signal.Stop(hup)
	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case <-hup:
				reloadSettings(ctx, a, swapper)
			}
		}
	}()

	errCh := make(chan error, 1)
	go func() { errCh <- srv.ListenAndServe() }()
	a.logger.Info("preview api listening", "addr", cfg.ListenAddr, "backend", cfg.Backend, "version", version)

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("listen %s: %w", cfg.ListenAddr, err)
		}
		return nil
	case <-ctx.Done():
	}

	a.logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

// reloadSettings re-reads the settings file and applies what it can.
func reloadSettings(ctx context.Context, a *app, swapper *handlerSwapper) {
	next, err := loadAppConfig()
	if err != nil {
		a.logger.Error("settings reload failed", "error", err)
		return
	}
	restart, err := a.reload(ctx, next, func(p *panel.PanelServer) {
		gen := swapper.Swap(p.Handler())
		a.logger.Info("preview api handler swapped", "generation", gen)
	})
	if err != nil {
		a.logger.Error("settings reload failed", "error", err)
		return
	}
	if len(restart) > 0 {
		a.logger.Warn("settings changed that need a restart", "fields", restart)
	}
}

func runMCP(cmd *cobra.Command, args []string) error {
	cfg, err := loadAppConfig()
	if err != nil {
		return err
	}
	// stdout carries the protocol.
	a, err := newApp(cfg, cmd.ErrOrStderr())
	if err != nil {
		return err
	}
	defer a.Close()

	ctx, stop := signal.NotifyContext(commandContext(cmd), os.Interrupt, syscall.SIGTERM)
	defer stop()

	srv := mcp.NewDiagramServer(mcp.DiagramServerDeps{
		Registry:  a.registry,
		Validator: a.validator,
		Hub:       a.hub,
		Logger:    a.logger,
		Version:   version,
	})
	a.logger.Info("mcp server starting", "version", version)
	return srv.Serve(ctx)
}

func runRender(cmd *cobra.Command, args []string) error {
	text, err := readInput(cmd, args)
	if err != nil {
		return err
	}
	cfg, err := loadAppConfig()
	if err != nil {
		return err
	}
	a, err := newApp(cfg, cmd.ErrOrStderr())
	if err != nil {
		return err
	}
	defer a.Close()

	ctx := commandContext(cmd)
	view, err := a.registry.Open(cliViewID)
	if err != nil {
		return err
	}
	view.RenderDiagram(ctx, text)
	state, err := view.WaitSettled(ctx)
	if err != nil {
		return err
	}

	if renderQuery != "" {
		if err := printQuery(ctx, cmd.OutOrStdout(), renderQuery, state); err != nil {
			return err
		}
	}

	switch state.Phase {
	case schema.PhaseIdle:
		return schema.NewError(schema.ErrCodeEmptyInput, "no diagram text")
	case schema.PhaseFailed:
		if renderQuery == "" {
			printFailure(cmd.ErrOrStderr(), state.Error, state.Suggestions, state.FixedText)
		}
		return errRenderFailed
	}
	if renderQuery != "" {
		return nil
	}

	if renderOut != "" {
		if err := os.WriteFile(renderOut, []byte(state.Output), 0o644); err != nil {
			return fmt.Errorf("write %s: %w", renderOut, err)
		}
		return nil
	}
	_, err = fmt.Fprintln(cmd.OutOrStdout(), state.Output)
	return err
}

// printQuery writes each jq result on its own line. Strings are written
// raw, everything else as JSON.
func printQuery(ctx context.Context, w io.Writer, expression string, state schema.PipelineState) error {
	results, err := query.NewEngine().EvaluateAll(ctx, expression, state)
	if err != nil {
		return err
	}
	for _, r := range results {
		if s, ok := r.(string); ok {
			fmt.Fprintln(w, s)
			continue
		}
		data, err := json.Marshal(r)
		if err != nil {
			return fmt.Errorf("encode query result: %w", err)
		}
		fmt.Fprintln(w, string(data))
	}
	return nil
}

func printFailure(w io.Writer, msg string, suggestions []string, fixed string) {
	fmt.Fprintf(w, "error: %s\n", msg)
	for _, s := range suggestions {
		fmt.Fprintf(w, "  - %s\n", s)
	}
	if fixed != "" {
		fmt.Fprintf(w, "normalized text:\n%s\n", fixed)
	}
}

type fileResult struct {
	File   string                  `json:"file"`
	Result schema.ValidationResult `json:"result"`
}

func runValidate(cmd *cobra.Command, args []string) error {
	cfg, err := loadAppConfig()
	if err != nil {
		return err
	}
	a, err := newApp(cfg, cmd.ErrOrStderr())
	if err != nil {
		return err
	}
	defer a.Close()

	results := make([]fileResult, len(args))
	eg, egCtx := errgroup.WithContext(commandContext(cmd))
	eg.SetLimit(cfg.PoolSize)
	for i, name := range args {
		eg.Go(func() error {
			text, err := readInput(cmd, []string{name})
			if err != nil {
				return err
			}
			results[i] = fileResult{File: name, Result: a.validator.Validate(egCtx, text)}
			return nil
		})
	}
	if err := eg.Wait(); err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	invalid := 0
	for _, r := range results {
		if !r.Result.IsValid {
			invalid++
		}
	}

	if validateJSON {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		if err := enc.Encode(results); err != nil {
			return err
		}
	} else {
		for _, r := range results {
			if r.Result.IsValid {
				fmt.Fprintf(out, "%s: ok\n", r.File)
				if r.Result.AddedDeclaration != "" {
					fmt.Fprintf(out, "  added declaration: %s\n", r.Result.AddedDeclaration)
				}
				continue
			}
			fmt.Fprintf(out, "%s: %s\n", r.File, r.Result.Error)
			for _, s := range r.Result.Suggestions {
				fmt.Fprintf(out, "  - %s\n", s)
			}
		}
	}

	if invalid > 0 {
		return fmt.Errorf("%d of %d diagrams invalid", invalid, len(results))
	}
	return nil
}

func runNormalize(cmd *cobra.Command, args []string) error {
	text, err := readInput(cmd, args)
	if err != nil {
		return err
	}
	cfg, err := loadAppConfig()
	if err != nil {
		return err
	}
	rules, err := diagram.CompileRules(cfg.Rules)
	if err != nil {
		return err
	}

	n := diagram.NewNormalizer(rules...)
	if normalizeExplain {
		c := n.Classify(text)
		switch {
		case strings.TrimSpace(text) == "":
			fmt.Fprintln(cmd.ErrOrStderr(), "empty input")
		case c.Declared:
			fmt.Fprintf(cmd.ErrOrStderr(), "already declared: %s\n", c.Keyword)
		default:
			fmt.Fprintf(cmd.ErrOrStderr(), "rule %s: %s\n", c.Rule, c.Rationale)
		}
	}
	_, err = fmt.Fprintln(cmd.OutOrStdout(), n.Normalize(text))
	return err
}

func runFmt(cmd *cobra.Command, args []string) error {
	if fmtWrite && (len(args) == 0 || args[0] == "-") {
		return schema.NewError(schema.ErrCodeValidation, "--write needs a file argument")
	}
	text, err := readInput(cmd, args)
	if err != nil {
		return err
	}
	cfg, err := loadAppConfig()
	if err != nil {
		return err
	}
	rules, err := diagram.CompileRules(cfg.Rules)
	if err != nil {
		return err
	}

	normalized := diagram.NewNormalizer(rules...).Normalize(text)
	if normalized == "" {
		return schema.NewError(schema.ErrCodeEmptyInput, "no diagram text")
	}
	model, err := diagram.Parse(normalized)
	if err != nil {
		return schema.NewError(schema.ErrCodeSyntax, err.Error()).
			WithDetails(map[string]any{"advice": diagram.Advise(err.Error())})
	}

	out := diagram.RenderMermaid(model)
	if fmtWrite {
		if err := os.WriteFile(args[0], []byte(out), 0o644); err != nil {
			return fmt.Errorf("write %s: %w", args[0], err)
		}
		return nil
	}
	_, err = io.WriteString(cmd.OutOrStdout(), out)
	return err
}

func runExamples(cmd *cobra.Command, args []string) error {
	out := cmd.OutOrStdout()
	if len(args) == 1 {
		ex, ok := diagram.Example(diagram.DiagramKind(args[0]))
		if !ok {
			kinds := make([]string, len(diagram.ExampleKinds))
			for i, k := range diagram.ExampleKinds {
				kinds[i] = string(k)
			}
			return schema.NewErrorf(schema.ErrCodeNotFound, "no example for %q (have %s)", args[0], strings.Join(kinds, ", "))
		}
		_, err := fmt.Fprintln(out, ex)
		return err
	}
	for i, k := range diagram.ExampleKinds {
		ex, _ := diagram.Example(k)
		if i > 0 {
			fmt.Fprintln(out)
		}
		fmt.Fprintf(out, "%%%% %s\n%s\n", k, ex)
	}
	return nil
}
