package main

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"strconv"

	"github.com/rendis/diagramflow/internal/diagram"
	"github.com/rendis/diagramflow/internal/engine"
	"github.com/rendis/diagramflow/internal/validation"
	"github.com/rendis/diagramflow/pkg/schema"
	"gopkg.in/yaml.v3"
)

// Backend names accepted in settings.
const (
	backendGraphviz = "graphviz"
	backendCLI      = "cli"
)

// CLIConfig configures the external renderer used by the cli backend.
type CLIConfig struct {
	Bin  string   `yaml:"bin" json:"bin"`
	Args []string `yaml:"args,omitempty" json:"args,omitempty"`
}

// Config holds all diagramd configuration.
// Priority: env vars > settings.yaml > defaults.
type Config struct {
	ListenAddr string               `yaml:"listen_addr" json:"listen_addr"`
	LogLevel   string               `yaml:"log_level" json:"log_level"`
	PoolSize   int                  `yaml:"pool_size" json:"pool_size"`
	Backend    string               `yaml:"backend" json:"backend"`
	CLI        CLIConfig            `yaml:"cli" json:"cli"`
	Engine     schema.EngineConfig  `yaml:"engine" json:"engine"`
	Rules      []diagram.RuleConfig `yaml:"rules,omitempty" json:"rules,omitempty"`
}

func defaultConfig() Config {
	return Config{
		ListenAddr: ":4200",
		LogLevel:   "info",
		PoolSize:   4,
		Backend:    backendGraphviz,
		CLI:        CLIConfig{Bin: "mmdc"},
		Engine:     schema.DefaultEngineConfig(),
	}
}

func diagramdDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".diagramd"
	}
	return filepath.Join(home, ".diagramd")
}

func settingsPath() string {
	return filepath.Join(diagramdDir(), "settings.yaml")
}

// loadConfig layers defaults, the settings file at path and DIAGRAMD_*
// env vars. A missing settings file is not an error.
func loadConfig(path string) (Config, error) {
	cfg := defaultConfig()

	// Layer 2: settings.yaml.
	data, err := os.ReadFile(path)
	switch {
	case errors.Is(err, fs.ErrNotExist):
	case err != nil:
		return Config{}, fmt.Errorf("read settings %s: %w", path, err)
	default:
		if err := decodeSettings(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("settings %s: %w", path, err)
		}
	}

	// Layer 3: env vars override.
	if v := os.Getenv("DIAGRAMD_LISTEN_ADDR"); v != "" {
		cfg.ListenAddr = v
	}
	if v := os.Getenv("DIAGRAMD_LOG_LEVEL"); v != "" {
		cfg.LogLevel = v
	}
	if v := os.Getenv("DIAGRAMD_POOL_SIZE"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return Config{}, schema.NewErrorf(schema.ErrCodeValidation, "DIAGRAMD_POOL_SIZE: %q is not a number", v)
		}
		cfg.PoolSize = n
	}
	if v := os.Getenv("DIAGRAMD_BACKEND"); v != "" {
		cfg.Backend = v
	}
	if v := os.Getenv("DIAGRAMD_CLI_BIN"); v != "" {
		cfg.CLI.Bin = v
	}
	if v := os.Getenv("DIAGRAMD_THEME"); v != "" {
		cfg.Engine.Theme = v
	}

	if err := cfg.check(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// decodeSettings validates the raw document against the settings schema
// before decoding it over cfg, so absent keys keep their defaults.
func decodeSettings(data []byte, cfg *Config) error {
	var doc map[string]any
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return fmt.Errorf("decode yaml: %w", err)
	}
	if doc == nil {
		return nil
	}
	if err := validation.ValidateConfig(doc); err != nil {
		return err
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("decode yaml: %w", err)
	}
	return nil
}

// check re-applies the schema constraints that env overrides can break.
func (c Config) check() error {
	if c.PoolSize < 1 {
		return schema.NewErrorf(schema.ErrCodeValidation, "pool_size must be at least 1, got %d", c.PoolSize)
	}
	switch c.Backend {
	case backendGraphviz:
	case backendCLI:
		if c.CLI.Bin == "" {
			return schema.NewError(schema.ErrCodeValidation, "backend cli requires cli.bin")
		}
	default:
		return schema.NewErrorf(schema.ErrCodeValidation, "unknown backend %q", c.Backend)
	}
	if !slices.Contains(schema.Themes, c.Engine.Theme) {
		return schema.NewErrorf(schema.ErrCodeValidation, "unknown theme %q", c.Engine.Theme)
	}
	return nil
}

// newBackend builds the render backend named by the config.
func (c Config) newBackend() engine.Backend {
	if c.Backend == backendCLI {
		return engine.NewCLIBackend(c.CLI.Bin, c.CLI.Args...)
	}
	return diagram.NewGraphvizBackend()
}

// configDiff describes what changed between two configurations.
type configDiff struct {
	LogLevelChanged bool
	RulesChanged    bool
	RestartNeeded   []string // fields that require a server restart
}

func diffConfigs(old, new Config) configDiff {
	var d configDiff
	if old.LogLevel != new.LogLevel {
		d.LogLevelChanged = true
	}
	if !slices.Equal(old.Rules, new.Rules) {
		d.RulesChanged = true
	}
	if old.ListenAddr != new.ListenAddr {
		d.RestartNeeded = append(d.RestartNeeded, "listen_addr")
	}
	if old.PoolSize != new.PoolSize {
		d.RestartNeeded = append(d.RestartNeeded, "pool_size")
	}
	if old.Backend != new.Backend {
		d.RestartNeeded = append(d.RestartNeeded, "backend")
	}
	if old.CLI.Bin != new.CLI.Bin || !slices.Equal(old.CLI.Args, new.CLI.Args) {
		d.RestartNeeded = append(d.RestartNeeded, "cli")
	}
	if old.Engine != new.Engine {
		d.RestartNeeded = append(d.RestartNeeded, "engine")
	}
	return d
}
