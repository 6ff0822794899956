// gen-diagrams renders the canonical example diagrams for README documentation.
// Run: go run ./cmd/gen-diagrams
package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/rendis/diagramflow/internal/diagram"
	"github.com/rendis/diagramflow/pkg/schema"
)

func main() {
	outDir := filepath.Join("docs", "assets")
	if err := os.MkdirAll(outDir, 0o755); err != nil {
		fmt.Fprintf(os.Stderr, "mkdir error: %v\n", err)
		os.Exit(1)
	}

	cfg := schema.DefaultEngineConfig()
	failed := false
	for _, kind := range diagram.ExampleKinds {
		text, _ := diagram.Example(kind)
		model, err := diagram.Parse(text)
		if err != nil {
			fmt.Fprintf(os.Stderr, "%s: parse error: %v\n", kind, err)
			failed = true
			continue
		}

		// Mermaid
		mermaid := diagram.RenderMermaid(model)
		mdPath := filepath.Join(outDir, fmt.Sprintf("example-%s.md", kind))
		if err := os.WriteFile(mdPath, []byte("```mermaid\n"+mermaid+"```\n"), 0o644); err != nil {
			fmt.Fprintf(os.Stderr, "%s: write error: %v\n", kind, err)
			failed = true
			continue
		}
		fmt.Printf("=== %s (Mermaid) ===\n%s\n", kind, mermaid)

		// SVG, for the kinds the graphviz renderer lays out.
		if !diagram.SupportsSVG(kind) {
			continue
		}
		svg, err := diagram.RenderSVG(context.Background(), model, cfg)
		if err != nil {
			fmt.Fprintf(os.Stderr, "%s: svg error: %v\n", kind, err)
			failed = true
			continue
		}
		svgPath := filepath.Join(outDir, fmt.Sprintf("example-%s.svg", kind))
		if err := os.WriteFile(svgPath, svg, 0o644); err != nil {
			fmt.Fprintf(os.Stderr, "%s: write error: %v\n", kind, err)
			failed = true
			continue
		}
		fmt.Printf("=== %s (SVG) ===\nWritten: %s (%d bytes)\n", kind, svgPath, len(svg))
	}

	if failed {
		os.Exit(1)
	}
}
