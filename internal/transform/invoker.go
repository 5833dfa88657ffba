package transform

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"

	"golang.org/x/sync/errgroup"

	"git.home.luguber.info/inful/distbuilder/internal/classify"
	derrors "git.home.luguber.info/inful/distbuilder/internal/errors"
	"git.home.luguber.info/inful/distbuilder/internal/logfields"
)

// Artifact is one emitted file awaiting normalization and write. Source is
// the zero value for engine-generated files such as shared chunks.
type Artifact struct {
	Source     classify.SourceFile
	OutputPath string
	Contents   []byte
}

// Invoker drives the engine with a fixed option set.
type Invoker struct {
	engine      Engine
	opts        Options
	concurrency int
}

// NewInvoker creates an invoker. concurrency bounds per-file templated-UI
// builds; values below one mean runtime.NumCPU().
func NewInvoker(engine Engine, opts Options, concurrency int) *Invoker {
	if concurrency < 1 {
		concurrency = runtime.NumCPU()
	}
	return &Invoker{engine: engine, opts: opts, concurrency: concurrency}
}

// Options returns the invoker's option set.
func (i *Invoker) Options() Options { return i.opts }

// BuildEntries compiles plain sources in one glob-seeded invocation. A single
// entry is emitted straight to its destination; several entries keep the
// source tree layout under outRoot.
func (i *Invoker) BuildEntries(ctx context.Context, srcRoot, outRoot string, files []classify.SourceFile) ([]Artifact, error) {
	if len(files) == 0 {
		return nil, nil
	}

	inv := Invocation{Options: i.opts.WithEntries(len(files))}
	bySource := make(map[string]classify.SourceFile, len(files))
	for _, f := range files {
		inv.EntryPoints = append(inv.EntryPoints, f.Path)
		bySource[f.Destination] = f
	}
	if len(files) == 1 {
		inv.Outfile = files[0].Destination
	} else {
		inv.Outdir = outRoot
		inv.Outbase = srcRoot
	}

	out, err := i.engine.Build(ctx, inv)
	if err != nil {
		entry := srcRoot
		if len(files) == 1 {
			entry = files[0].Path
		}
		return nil, derrors.CompileError(entry, err).WithContext("entries", len(files))
	}
	i.logWarnings(out.Warnings)
	return i.artifacts(out, bySource), nil
}

// BuildTemplated compiles templated-UI sources one invocation per file, each
// fed through an in-memory buffer carrying the runtime preamble. Files run
// concurrently; the first failure cancels files not yet started.
func (i *Invoker) BuildTemplated(ctx context.Context, files []classify.SourceFile) ([]Artifact, error) {
	if len(files) == 0 {
		return nil, nil
	}

	results := make([][]Artifact, len(files))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(i.concurrency)
	for idx, f := range files {
		g.Go(func() error {
			src, err := os.ReadFile(f.Path)
			if err != nil {
				return derrors.FilesystemError("read_source", err).WithContext("path", f.Path)
			}
			inv := Invocation{
				Stdin: &Stdin{
					Contents:   WithPreamble(string(src), i.opts.UIRuntime),
					ResolveDir: filepath.Dir(f.Path),
					Sourcefile: f.Path,
					Loader:     LoaderFor(filepath.Ext(f.Path)),
				},
				Outfile: f.Destination,
				Options: i.opts.WithEntries(1),
			}
			out, err := i.engine.Build(gctx, inv)
			if err != nil {
				return derrors.CompileError(f.Path, err)
			}
			i.logWarnings(out.Warnings)
			results[idx] = i.artifacts(out, map[string]classify.SourceFile{f.Destination: f})
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	var all []Artifact
	for _, r := range results {
		all = append(all, r...)
	}
	return all, nil
}

// BuildBuffer compiles literal contents and returns the emitted text.
// outfile only names the result for the engine; nothing is written.
func (i *Invoker) BuildBuffer(ctx context.Context, contents, loader, resolveDir, outfile string) ([]byte, error) {
	if loader == "tsx" || loader == "jsx" {
		contents = WithPreamble(contents, i.opts.UIRuntime)
	}
	if resolveDir == "" {
		resolveDir, _ = os.Getwd()
	}
	inv := Invocation{
		Stdin: &Stdin{
			Contents:   contents,
			ResolveDir: resolveDir,
			Sourcefile: "<stdin>",
			Loader:     loader,
		},
		Outfile: outfile,
		Options: i.opts.WithEntries(1),
	}
	out, err := i.engine.Build(ctx, inv)
	if err != nil {
		return nil, derrors.CompileError("<stdin>", err)
	}
	i.logWarnings(out.Warnings)
	if len(out.Files) == 0 {
		return nil, nil
	}
	for _, f := range out.Files {
		if outfile == "" || f.Path == outfile {
			return f.Contents, nil
		}
	}
	return out.Files[0].Contents, nil
}

func (i *Invoker) artifacts(out Output, bySource map[string]classify.SourceFile) []Artifact {
	arts := make([]Artifact, 0, len(out.Files))
	for _, f := range out.Files {
		arts = append(arts, Artifact{
			Source:     bySource[f.Path],
			OutputPath: f.Path,
			Contents:   f.Contents,
		})
	}
	return arts
}

func (i *Invoker) logWarnings(warnings []string) {
	for _, w := range warnings {
		slog.Warn("Transform engine warning", logfields.Format(string(i.opts.Format)), slog.String("message", w))
	}
}
