package commands

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"

	"git.home.luguber.info/inful/distbuilder/internal/build"
	"git.home.luguber.info/inful/distbuilder/internal/config"
	"git.home.luguber.info/inful/distbuilder/internal/logfields"
)

// stdinMarker selects standard input as literal source.
const stdinMarker = "-"

// BuildCmd implements the 'build' command.
type BuildCmd struct {
	Input string `arg:"" optional:"" help:"Inclusion pattern relative to the source directory, a file path for a single-file build, or '-' for stdin"`

	Format      string   `short:"f" help:"Module format of the output (esm|cjs). Defaults to the configured format."`
	Dev         bool     `help:"Development mode: unminified output and runtime artifacts only"`
	Bundle      bool     `help:"Inline imported modules into each entry"`
	Standalone  bool     `help:"Bundle without externals (implies --bundle)"`
	Binary      bool     `help:"Package the output into a self-contained executable"`
	RuntimeOnly bool     `name:"runtime-only" help:"Skip styles, binaries and declarations"`
	JSOnly      bool     `name:"js-only" help:"Skip asset copying and stylesheet compilation"`
	NoWrite     bool     `name:"no-write" help:"Print compiled literal source to stdout instead of writing it"`
	External    []string `help:"Module names kept as runtime imports when bundling"`
	Source      string   `help:"Literal source text to compile; '-' reads stdin"`
	Loader      string   `help:"Loader for literal source (ts|tsx|js|jsx)"`
	Outfile     string   `help:"Output file for literal source"`
}

func (b *BuildCmd) Run(g *Global, root *CLI) error {
	cfg, err := root.LoadConfig()
	if err != nil {
		return err
	}
	req, err := b.Request(cfg, g.stdin())
	if err != nil {
		return err
	}
	return RunBuild(g.context(), build.NewOrchestrator(cfg), req, g.stdout())
}

// Request converts flags into a build request. Literal companions are
// checked before stdin is read.
func (b *BuildCmd) Request(cfg *config.Config, stdin io.Reader) (build.Request, error) {
	req := build.Request{
		Input:       resolveInput(b.Input, cfg),
		Format:      formatOrDefault(b.Format, cfg),
		Mode:        config.ModeProduction,
		Bundle:      b.Bundle,
		Standalone:  b.Standalone,
		Binary:      b.Binary,
		RuntimeOnly: b.RuntimeOnly,
		JSOnly:      b.JSOnly,
		NoWrite:     b.NoWrite,
		External:    b.External,
	}
	if b.Dev {
		req.Mode = config.ModeDevelopment
	}

	source := b.Source
	if b.Input == stdinMarker {
		source = stdinMarker
		req.Input = ""
	}
	if source == "" {
		return req, nil
	}

	req.Literal = &build.Literal{Loader: b.Loader, OutFile: b.Outfile}
	if req.Literal.OutFile != "" {
		if abs, err := filepath.Abs(req.Literal.OutFile); err == nil {
			req.Literal.OutFile = abs
		}
	}
	if _, err := req.Normalize(); err != nil {
		return req, err
	}
	if source == stdinMarker {
		data, err := io.ReadAll(stdin)
		if err != nil {
			return req, fmt.Errorf("read stdin: %w", err)
		}
		source = string(data)
	}
	req.Literal.Contents = source
	return req, nil
}

// resolveInput turns a file path (relative to the working directory or the
// source directory) into an absolute path so the build runs single-path.
// Anything else is passed through as an inclusion pattern.
func resolveInput(input string, cfg *config.Config) string {
	if input == "" || input == stdinMarker || filepath.IsAbs(input) {
		return input
	}
	for _, candidate := range []string{input, filepath.Join(cfg.SourceRoot(), input)} {
		info, err := os.Stat(candidate)
		if err != nil || !info.Mode().IsRegular() {
			continue
		}
		if abs, err := filepath.Abs(candidate); err == nil {
			return abs
		}
	}
	return input
}

// RunBuild executes one build and prints write-suppressed output to stdout.
func RunBuild(ctx context.Context, svc build.BuildService, req build.Request, stdout io.Writer) error {
	res, err := svc.Run(ctx, req)
	if res != nil {
		if req.NoWrite && len(res.Output) > 0 {
			if _, werr := stdout.Write(res.Output); werr != nil {
				return fmt.Errorf("write output: %w", werr)
			}
		}
		if res.Report != nil {
			slog.Info("Build finished",
				slog.String("status", string(res.Status)),
				logfields.BuildID(res.Report.BuildID),
				logfields.DurationMS(float64(res.Duration.Milliseconds())),
				slog.String("summary", res.Report.Summary()))
		}
	}
	return err
}
