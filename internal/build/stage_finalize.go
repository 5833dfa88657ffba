package build

import (
	"context"
	"log/slog"
	"path/filepath"

	"git.home.luguber.info/inful/distbuilder/internal/logfields"
)

var scriptExts = map[string]bool{".js": true, ".mjs": true, ".cjs": true}

// stageNormalize rewrites specifiers of the files emitted by this run only.
// Unresolved specifiers are warnings.
func stageNormalize(_ context.Context, bs *BuildState) error {
	rewritten := 0
	for _, path := range bs.Emitted() {
		if !scriptExts[filepath.Ext(path)] {
			continue
		}
		res, err := bs.Normalizer.NormalizeFile(path)
		if err != nil {
			return err
		}
		rewritten += res.Rewritten
		for _, w := range res.Warnings() {
			bs.Report.AddWarning(w)
		}
	}
	bs.Report.SpecifiersRewritten = rewritten
	slog.Debug("Normalized specifiers", logfields.BuildID(bs.Report.BuildID), logfields.Count(rewritten))
	return nil
}

// stagePatchMetadata is the last required write of a build.
func stagePatchMetadata(_ context.Context, bs *BuildState) error {
	_, err := bs.Out.PatchPackageType(bs.Request.Format.PackageType())
	return err
}
