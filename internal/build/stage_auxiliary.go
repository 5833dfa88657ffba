package build

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"sort"

	"git.home.luguber.info/inful/distbuilder/internal/classify"
	derrors "git.home.luguber.info/inful/distbuilder/internal/errors"
	"git.home.luguber.info/inful/distbuilder/internal/logfields"
	"git.home.luguber.info/inful/distbuilder/internal/toolchain"
)

// stageStyles compiles the global stylesheet (full builds) and, in bundle
// mode, every stylesheet the asset stage copied.
func stageStyles(ctx context.Context, bs *BuildState) error {
	dev := bs.Request.Mode.IsDevelopment()
	attempted := 0
	var errs []error

	compile := func(entry, dest string) bool {
		attempted++
		err := bs.styles.CompileStyle(ctx, entry, dest, dev)
		if errors.Is(err, toolchain.ErrNotConfigured) {
			return false
		}
		if err != nil {
			errs = append(errs, err)
			return true
		}
		bs.Report.StylesCompiled++
		return true
	}

	globalDest := ""
	if bs.Single == "" && bs.Config.GlobalStylesheet != "" {
		global := filepath.Join(bs.SrcRoot, filepath.FromSlash(bs.Config.GlobalStylesheet))
		if info, err := os.Stat(global); err == nil && info.Mode().IsRegular() {
			globalDest = classify.Destination(bs.SrcRoot, bs.OutRoot, global)
			if !compile(global, globalDest) {
				return errStageSkipped
			}
		}
	}

	if bs.Request.Bundle {
		bs.mu.Lock()
		styled := append([]string(nil), bs.styled...)
		bs.mu.Unlock()
		sort.Strings(styled)
		for _, dest := range styled {
			if dest == globalDest {
				continue
			}
			if !compile(dest, dest) {
				return errStageSkipped
			}
		}
	}

	if attempted == 0 {
		return errStageSkipped
	}
	if len(errs) > 0 {
		return derrors.AuxiliaryStageError(string(StageStyles), errors.Join(errs...))
	}
	slog.Info("Compiled stylesheets", logfields.BuildID(bs.Report.BuildID), logfields.Count(bs.Report.StylesCompiled))
	return nil
}

// stageBinaries runs the packager. Its failure never reverts compiled output.
func stageBinaries(ctx context.Context, bs *BuildState) error {
	if err := bs.binary.Package(ctx, bs.OutRoot); err != nil {
		return derrors.AuxiliaryStageError(string(StageBinaries), err)
	}
	slog.Info("Packaged binaries", logfields.BuildID(bs.Report.BuildID), logfields.Path(bs.OutRoot))
	return nil
}

// stageDeclarations runs the declaration emitter once over the source root
// and records how many declaration files the output tree holds.
func stageDeclarations(ctx context.Context, bs *BuildState) error {
	n, err := bs.declarations.EmitDeclarations(ctx, bs.SrcRoot, bs.OutRoot, bs.Config.Abs(bs.Config.Tsconfig))
	if errors.Is(err, toolchain.ErrNotConfigured) {
		return errStageSkipped
	}
	if err != nil {
		return derrors.AuxiliaryStageError(string(StageEmittingDeclarations), err)
	}
	bs.Report.DeclarationsEmitted = n
	slog.Info("Emitted declarations", logfields.BuildID(bs.Report.BuildID), logfields.Count(n))
	return nil
}
