package main

import (
	"os"

	"github.com/spf13/cobra"
)

var (
	configPath string
	logLevel   string
)

var rootCmd = &cobra.Command{
	Use:   "diagramd",
	Short: "Validate, repair and render Mermaid diagram text",
	Long: `diagramd checks Mermaid diagram text, injects a missing diagram
declaration, and renders the result to SVG.

Settings are read from ~/.diagramd/settings.yaml and DIAGRAMD_* environment
variables. Run "diagramd serve" for the live preview API or "diagramd mcp"
to expose the pipeline to MCP clients over stdio.`,
	SilenceUsage: true,
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the preview API with server-sent state events",
	Long: `Serves the JSON preview API and SSE state streams.

Send SIGHUP to reload settings: log level and classification rules apply
immediately, other changes are reported as needing a restart.`,
	Args: cobra.NoArgs,
	RunE: runServe,
}

var mcpCmd = &cobra.Command{
	Use:   "mcp",
	Short: "Serve the diagram tools over MCP stdio",
	Args:  cobra.NoArgs,
	RunE:  runMCP,
}

var renderCmd = &cobra.Command{
	Use:   "render [file]",
	Short: "Render diagram text to SVG",
	Long: `Runs the full pipeline (normalize, validate, render) on a file or
stdin and writes the SVG. With --query the final pipeline state is
filtered through a jq expression instead.

Example:
  diagramd render flow.mmd -o flow.svg
  echo 'A --> B' | diagramd render --query .suggestions`,
	Args: cobra.MaximumNArgs(1),
	RunE: runRender,
}

var validateCmd = &cobra.Command{
	Use:   "validate [file...]",
	Short: "Check one or more diagrams without rendering",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runValidate,
}

var normalizeCmd = &cobra.Command{
	Use:   "normalize [file]",
	Short: "Print the text with a diagram declaration injected if missing",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runNormalize,
}

var fmtCmd = &cobra.Command{
	Use:   "fmt [file]",
	Short: "Rewrite flowchart and sequence diagrams in canonical form",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runFmt,
}

var examplesCmd = &cobra.Command{
	Use:   "examples [kind]",
	Short: "Print canonical example diagrams",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runExamples,
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the diagramd version",
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		printVersion(cmd.OutOrStdout())
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "settings file (default ~/.diagramd/settings.yaml)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "override log level (debug, info, warn, error)")

	serveCmd.Flags().StringVar(&listenAddr, "addr", "", "listen address (overrides listen_addr)")

	renderCmd.Flags().StringVarP(&renderOut, "output", "o", "", "write output to file instead of stdout")
	renderCmd.Flags().StringVarP(&renderQuery, "query", "q", "", "jq expression applied to the final pipeline state")

	validateCmd.Flags().BoolVar(&validateJSON, "json", false, "print results as JSON")

	normalizeCmd.Flags().BoolVar(&normalizeExplain, "explain", false, "report the matching rule on stderr")

	fmtCmd.Flags().BoolVarP(&fmtWrite, "write", "w", false, "write result back to the file")

	rootCmd.AddCommand(serveCmd, mcpCmd, renderCmd, validateCmd, normalizeCmd, fmtCmd, examplesCmd, versionCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
