package config

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"

	"gopkg.in/yaml.v3"
)

// DefaultConfigFile is the project configuration file looked up by the CLI.
const DefaultConfigFile = "distbuilder.yaml"

// Config represents the project configuration
type Config struct {
	SourceDir        string          `yaml:"source_dir"`
	OutputDir        string          `yaml:"output_dir"`
	Pattern          string          `yaml:"pattern"`
	Format           Format          `yaml:"format"`
	Target           string          `yaml:"target"`
	Tsconfig         string          `yaml:"tsconfig"`
	UIRuntime        string          `yaml:"ui_runtime"`
	GlobalStylesheet string          `yaml:"global_stylesheet"`
	Concurrency      int             `yaml:"concurrency"`
	External         []string        `yaml:"external,omitempty"`
	Watch            WatchConfig     `yaml:"watch"`
	Toolchain        ToolchainConfig `yaml:"toolchain"`

	// BaseDir is the directory relative paths are resolved against (the
	// directory containing the config file, or the working directory).
	BaseDir string `yaml:"-"`
}

// WatchConfig tunes the development watch loop.
type WatchConfig struct {
	Ignore      []string `yaml:"ignore,omitempty"` // doublestar patterns relative to source_dir
	Concurrency int      `yaml:"concurrency"`      // max concurrent rebuilds of distinct paths
	MetricsAddr string   `yaml:"metrics_addr,omitempty"`
}

// ToolchainConfig holds command lines for the external collaborators.
// Placeholders: {in} {out} {src} {tsconfig} {mode}.
// An empty command disables the stage.
type ToolchainConfig struct {
	Styles       string `yaml:"styles,omitempty"`
	Declarations string `yaml:"declarations,omitempty"`
	Binary       string `yaml:"binary,omitempty"`
}

// Default returns the configuration used when no config file exists.
func Default() *Config {
	cfg := &Config{}
	applyDefaults(cfg)
	return cfg
}

// Load loads configuration from the specified file. A missing file yields
// the defaults so projects can build without a config file.
func Load(configPath string) (*Config, error) {
	loadEnvFiles()

	data, err := os.ReadFile(configPath)
	if os.IsNotExist(err) {
		slog.Debug("No configuration file, using defaults", slog.String("path", configPath))
		cfg := Default()
		cfg.BaseDir = absOrSelf(".")
		return cfg, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	// Expand environment variables in the YAML content
	expandedData := os.ExpandEnv(string(data))

	var cfg Config
	if err := yaml.Unmarshal([]byte(expandedData), &cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	applyDefaults(&cfg)
	cfg.BaseDir = absOrSelf(filepath.Dir(configPath))

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func applyDefaults(cfg *Config) {
	if cfg.SourceDir == "" {
		cfg.SourceDir = "src"
	}
	if cfg.OutputDir == "" {
		cfg.OutputDir = "dist"
	}
	if cfg.Pattern == "" {
		cfg.Pattern = "**/*"
	}
	if cfg.Format == "" {
		cfg.Format = FormatESM
	}
	if cfg.Target == "" {
		cfg.Target = "es2020"
	}
	if cfg.Tsconfig == "" {
		cfg.Tsconfig = "tsconfig.json"
	}
	if cfg.UIRuntime == "" {
		cfg.UIRuntime = "preact"
	}
	if cfg.GlobalStylesheet == "" {
		cfg.GlobalStylesheet = "styles/global.css"
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = runtime.NumCPU()
	}
	if cfg.Watch.Concurrency <= 0 {
		cfg.Watch.Concurrency = 4
	}
	if cfg.Toolchain.Declarations == "" {
		cfg.Toolchain.Declarations = "tsc --emitDeclarationOnly --declaration --outDir {out} -p {tsconfig}"
	}
}

// Abs resolves p against BaseDir unless it is already absolute.
func (c *Config) Abs(p string) string {
	if p == "" || filepath.IsAbs(p) {
		return p
	}
	base := c.BaseDir
	if base == "" {
		base = absOrSelf(".")
	}
	return filepath.Join(base, p)
}

// SourceRoot is the absolute source directory.
func (c *Config) SourceRoot() string { return c.Abs(c.SourceDir) }

// OutputRoot is the absolute output directory.
func (c *Config) OutputRoot() string { return c.Abs(c.OutputDir) }

func absOrSelf(p string) string {
	if abs, err := filepath.Abs(p); err == nil {
		return abs
	}
	return p
}
