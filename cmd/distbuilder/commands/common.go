package commands

import (
	"context"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/alecthomas/kong"

	"git.home.luguber.info/inful/distbuilder/internal/config"
	derrors "git.home.luguber.info/inful/distbuilder/internal/errors"
)

// LogLevelEnv overrides the log level when --verbose is not given.
const LogLevelEnv = "DISTBUILDER_LOG_LEVEL"

// Global carries process-wide state into subcommands.
type Global struct {
	Logger *slog.Logger
	Ctx    context.Context
	Stdin  io.Reader
	Stdout io.Writer
}

func (g *Global) context() context.Context {
	if g == nil || g.Ctx == nil {
		return context.Background()
	}
	return g.Ctx
}

func (g *Global) stdout() io.Writer {
	if g == nil || g.Stdout == nil {
		return os.Stdout
	}
	return g.Stdout
}

func (g *Global) stdin() io.Reader {
	if g == nil || g.Stdin == nil {
		return os.Stdin
	}
	return g.Stdin
}

// CLI definition & global flags.
type CLI struct {
	Config      string           `short:"c" help:"Configuration file path" default:"distbuilder.yaml"`
	SourceDir   string           `name:"source-dir" help:"Override source_dir from the configuration"`
	OutputDir   string           `name:"out-dir" short:"o" help:"Override output_dir from the configuration"`
	Concurrency int              `help:"Override the compile and copy concurrency"`
	Verbose     bool             `short:"v" help:"Enable verbose logging"`
	Version     kong.VersionFlag `name:"version" help:"Show version and exit"`

	Build      BuildCmd   `cmd:"" help:"Compile the source tree (or one file, or literal source) into the output tree"`
	Watch      WatchCmd   `cmd:"" help:"Build in development mode and rebuild changed files"`
	VersionCmd VersionCmd `cmd:"" name:"version" help:"Print version information"`
}

// AfterApply runs after flag parsing; setup logging once.
// nolint:unparam // AfterApply currently never returns an error.
func (c *CLI) AfterApply() error {
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: parseLogLevel(c.Verbose)}))
	slog.SetDefault(logger)
	return nil
}

// parseLogLevel picks debug for --verbose, otherwise the level named by
// DISTBUILDER_LOG_LEVEL, otherwise info.
func parseLogLevel(verbose bool) slog.Level {
	if verbose {
		return slog.LevelDebug
	}
	switch strings.ToLower(strings.TrimSpace(os.Getenv(LogLevelEnv))) {
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

// LoadConfig reads the configuration file and applies global flag overrides.
func (c *CLI) LoadConfig() (*config.Config, error) {
	cfg, err := config.Load(c.Config)
	if err != nil {
		if _, ok := derrors.As(err); ok {
			return nil, err
		}
		return nil, derrors.ConfigLoadError(c.Config, err)
	}
	if c.SourceDir != "" {
		cfg.SourceDir = c.SourceDir
	}
	if c.OutputDir != "" {
		cfg.OutputDir = c.OutputDir
	}
	if c.Concurrency > 0 {
		cfg.Concurrency = c.Concurrency
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// formatOrDefault returns the flag value or the configured format.
func formatOrDefault(flag string, cfg *config.Config) config.Format {
	if flag != "" {
		return config.Format(flag)
	}
	return cfg.Format
}
