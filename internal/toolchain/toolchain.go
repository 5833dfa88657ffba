// Package toolchain runs the auxiliary build tools (stylesheet compiler,
// declaration emitter, binary packager) as configured external commands.
//
// Commands are templates split with shell quoting rules. Placeholders are
// substituted per argument after splitting, so expanded paths never need
// quoting: {in}, {out}, {src}, {tsconfig}, {mode}.
package toolchain

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/mattn/go-shellwords"

	"git.home.luguber.info/inful/distbuilder/internal/classify"
	"git.home.luguber.info/inful/distbuilder/internal/logfields"
)

// ErrNotConfigured is returned when a tool has no command template.
var ErrNotConfigured = errors.New("toolchain command not configured")

// StyleCompiler compiles one stylesheet entry to an output path.
type StyleCompiler interface {
	CompileStyle(ctx context.Context, entry, out string, development bool) error
}

// DeclarationEmitter writes declaration files for the source root into the
// output root and reports how many declaration files the output holds.
type DeclarationEmitter interface {
	EmitDeclarations(ctx context.Context, srcRoot, outRoot, tsconfig string) (int, error)
}

// BinaryPackager produces platform executables from the output tree.
type BinaryPackager interface {
	Package(ctx context.Context, outRoot string) error
}

// Process runs each tool as an external process from Dir.
type Process struct {
	Dir          string
	Styles       string
	Declarations string
	Binary       string
}

var (
	_ StyleCompiler      = (*Process)(nil)
	_ DeclarationEmitter = (*Process)(nil)
	_ BinaryPackager     = (*Process)(nil)
)

// CompileStyle implements StyleCompiler.
func (p *Process) CompileStyle(ctx context.Context, entry, out string, development bool) error {
	mode := "production"
	if development {
		mode = "development"
	}
	return p.run(ctx, "styles", p.Styles, map[string]string{"in": entry, "out": out, "mode": mode})
}

// EmitDeclarations implements DeclarationEmitter.
func (p *Process) EmitDeclarations(ctx context.Context, srcRoot, outRoot, tsconfig string) (int, error) {
	vars := map[string]string{"src": srcRoot, "out": outRoot, "tsconfig": tsconfig}
	if err := p.run(ctx, "declarations", p.Declarations, vars); err != nil {
		return 0, err
	}
	return CountDeclarations(outRoot)
}

// Package implements BinaryPackager.
func (p *Process) Package(ctx context.Context, outRoot string) error {
	return p.run(ctx, "binary", p.Binary, map[string]string{"out": outRoot})
}

func (p *Process) run(ctx context.Context, tool, template string, vars map[string]string) error {
	args, err := Expand(template, vars)
	if err != nil {
		return fmt.Errorf("%s: %w", tool, err)
	}

	start := time.Now()
	// #nosec G204 -- command comes from the project's own build configuration
	cmd := exec.CommandContext(ctx, args[0], args[1:]...)
	cmd.Dir = p.Dir
	var output bytes.Buffer
	cmd.Stdout = &output
	cmd.Stderr = &output

	slog.Debug("Running toolchain command", logfields.Stage(tool), slog.String("command", strings.Join(args, " ")))
	if err := cmd.Run(); err != nil {
		msg := strings.TrimSpace(output.String())
		if msg != "" {
			return fmt.Errorf("%s command failed: %w: %s", tool, err, msg)
		}
		return fmt.Errorf("%s command failed: %w", tool, err)
	}
	slog.Debug("Toolchain command finished", logfields.Stage(tool), logfields.DurationMS(float64(time.Since(start).Milliseconds())))
	return nil
}

// Expand splits template with shell quoting rules and substitutes
// placeholders in every argument.
func Expand(template string, vars map[string]string) ([]string, error) {
	if strings.TrimSpace(template) == "" {
		return nil, ErrNotConfigured
	}
	args, err := shellwords.Parse(template)
	if err != nil {
		return nil, fmt.Errorf("parse command %q: %w", template, err)
	}
	if len(args) == 0 {
		return nil, ErrNotConfigured
	}
	pairs := make([]string, 0, len(vars)*2)
	for k, v := range vars {
		pairs = append(pairs, "{"+k+"}", v)
	}
	r := strings.NewReplacer(pairs...)
	for i, a := range args {
		args[i] = r.Replace(a)
	}
	return args, nil
}

// CountDeclarations counts declaration files under root.
func CountDeclarations(root string) (int, error) {
	n := 0
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() && classify.DialectOf(path) == classify.DialectDeclaration {
			n++
		}
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("count declarations in %s: %w", root, err)
	}
	return n, nil
}
