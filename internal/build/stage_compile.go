package build

import (
	"context"
	"log/slog"
	"path/filepath"

	"golang.org/x/sync/errgroup"

	"git.home.luguber.info/inful/distbuilder/internal/logfields"
	"git.home.luguber.info/inful/distbuilder/internal/output"
	"git.home.luguber.info/inful/distbuilder/internal/transform"
)

// stageCompile runs the templated-UI and plain branches concurrently; both
// must finish before the next stage starts. Declaration files are never
// handed to the engine.
func stageCompile(ctx context.Context, bs *BuildState) error {
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return compileTemplated(gctx, bs) })
	g.Go(func() error { return compilePlain(gctx, bs) })
	return g.Wait()
}

func compileTemplated(ctx context.Context, bs *BuildState) error {
	files := bs.Groups.TemplatedUI
	if len(files) == 0 {
		return nil
	}

	opts := bs.Invoker.Options()
	path, release, err := output.DerivedConfig(bs.Config.Abs(bs.Config.Tsconfig), jsxOverrides(opts))
	if err != nil {
		return err
	}
	bs.onEnd(release)
	opts.Tsconfig = path

	arts, err := transform.NewInvoker(bs.engine, opts, bs.Config.Concurrency).BuildTemplated(ctx, files)
	if err != nil {
		return err
	}
	return writeArtifacts(ctx, bs, arts)
}

func compilePlain(ctx context.Context, bs *BuildState) error {
	arts, err := bs.Invoker.BuildEntries(ctx, bs.SrcRoot, bs.OutRoot, bs.Groups.Plain)
	if err != nil {
		return err
	}
	return writeArtifacts(ctx, bs, arts)
}

// writeArtifacts hands emitted files to the output lifecycle. Paths are
// disjoint so writes run concurrently.
func writeArtifacts(ctx context.Context, bs *BuildState, arts []transform.Artifact) error {
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(bs.Config.Concurrency)
	for _, a := range arts {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			return bs.Out.WriteArtifact(a.OutputPath, a.Contents)
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	paths := make([]string, 0, len(arts))
	compiled, chunks := 0, 0
	for _, a := range arts {
		paths = append(paths, a.OutputPath)
		if a.Source.Path != "" {
			compiled++
		} else {
			chunks++
		}
	}
	bs.addEmitted(paths...)

	bs.mu.Lock()
	bs.Report.Compiled += compiled
	bs.Report.Chunks += chunks
	bs.mu.Unlock()

	slog.Debug("Wrote compiled artifacts", logfields.BuildID(bs.Report.BuildID), logfields.Count(len(arts)))
	return nil
}

// jsxOverrides are the UI-related compiler options of the derived config.
func jsxOverrides(opts transform.Options) map[string]any {
	return map[string]any{
		"jsx":                "react",
		"jsxFactory":         opts.JSXFactory,
		"jsxFragmentFactory": opts.JSXFragment,
	}
}

func stageCompileLiteral(ctx context.Context, bs *BuildState) error {
	lit := bs.Request.Literal
	outfile := ""
	if lit.OutFile != "" {
		outfile = bs.Config.Abs(lit.OutFile)
	}
	text, err := bs.Invoker.BuildBuffer(ctx, lit.Contents, lit.Loader, bs.Config.BaseDir, outfile)
	if err != nil {
		return err
	}
	bs.Literal = text
	bs.Report.Compiled = 1
	return nil
}

// stageWriteOrReturn writes literal output to its outfile, or keeps it for
// the caller when writes are suppressed.
func stageWriteOrReturn(_ context.Context, bs *BuildState) error {
	if bs.Request.NoWrite {
		return nil
	}
	dest := bs.Config.Abs(bs.Request.Literal.OutFile)
	if err := output.NewManager(filepath.Dir(dest)).WriteArtifact(dest, bs.Literal); err != nil {
		return err
	}
	slog.Info("Wrote literal output", logfields.BuildID(bs.Report.BuildID), logfields.Path(dest))
	bs.Literal = nil
	return nil
}
