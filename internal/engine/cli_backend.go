package engine

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strings"
	"sync"

	"github.com/rendis/diagramflow/internal/diagram"
	"github.com/rendis/diagramflow/pkg/schema"
)

// CLIBackend renders by piping diagram text through an external binary
// such as mmdc or mermaid-ascii. Parsing uses the built-in parser.
type CLIBackend struct {
	bin  string
	args []string

	mu      sync.RWMutex
	binPath string
	cfg     schema.EngineConfig
}

// NewCLIBackend creates a backend for bin. In args, "{theme}" is replaced
// with the configured theme at render time.
func NewCLIBackend(bin string, args ...string) *CLIBackend {
	return &CLIBackend{bin: bin, args: args}
}

// Initialize resolves the binary on PATH. A missing binary fails this
// attempt only; installing it later makes the next attempt succeed.
func (b *CLIBackend) Initialize(_ context.Context, cfg schema.EngineConfig) error {
	if strings.TrimSpace(b.bin) == "" {
		return schema.NewError(schema.ErrCodeValidation, "no renderer binary configured")
	}
	path, err := exec.LookPath(b.bin)
	if err != nil {
		return fmt.Errorf("renderer binary %q: %w", b.bin, err)
	}

	b.mu.Lock()
	b.binPath = path
	b.cfg = cfg
	b.mu.Unlock()
	return nil
}

// Parse checks declared text with the built-in parser.
func (b *CLIBackend) Parse(_ context.Context, text string) error {
	_, err := diagram.Parse(text)
	return err
}

// Render feeds text to the binary on stdin and returns its stdout. SVG
// output gets id on its root element.
func (b *CLIBackend) Render(ctx context.Context, id, text string) (string, error) {
	b.mu.RLock()
	path, cfg := b.binPath, b.cfg
	b.mu.RUnlock()
	if path == "" {
		return "", schema.NewError(schema.ErrCodeInit, "renderer binary not initialized")
	}

	args := make([]string, len(b.args))
	for i, a := range b.args {
		args[i] = strings.ReplaceAll(a, "{theme}", cfg.Theme)
	}

	cmd := exec.CommandContext(ctx, path, args...)
	cmd.Stdin = strings.NewReader(text)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		return "", schema.NewErrorf(schema.ErrCodeRender, "render with %s: %s: %s",
			b.bin, err.Error(), strings.TrimSpace(stderr.String())).WithCause(err)
	}

	out := stdout.String()
	if strings.Contains(out, "<svg") {
		out = diagram.InjectSVGID(out, id)
	}
	return out, nil
}
