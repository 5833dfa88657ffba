package build

import (
	"context"
	"log/slog"
	"path/filepath"

	"git.home.luguber.info/inful/distbuilder/internal/classify"
	derrors "git.home.luguber.info/inful/distbuilder/internal/errors"
	"git.home.luguber.info/inful/distbuilder/internal/logfields"
)

// stageClear applies the invalidation policy: a full clear for pattern
// builds, removal of exactly one destination for single-path builds.
func stageClear(_ context.Context, bs *BuildState) error {
	if bs.Single != "" {
		return bs.Out.Invalidate(classify.Destination(bs.SrcRoot, bs.OutRoot, bs.Single))
	}
	return bs.Out.Clear()
}

func stageClassify(_ context.Context, bs *BuildState) error {
	pattern := bs.Request.Input
	if pattern == "" || filepath.IsAbs(pattern) {
		pattern = bs.Config.Pattern
	}

	files, err := bs.Classifier.Classify(pattern, bs.Single)
	if err != nil {
		return derrors.FilesystemError("classify", err).WithContext("pattern", pattern)
	}
	bs.Files = files
	bs.Groups = classify.Group(files)

	r := bs.Report
	r.Classified[classify.DialectTemplatedUI] = len(bs.Groups.TemplatedUI)
	r.Classified[classify.DialectPlain] = len(bs.Groups.Plain)
	r.Classified[classify.DialectAsset] = len(bs.Groups.Assets)
	r.Classified[classify.DialectDeclaration] = len(bs.Groups.Declarations)
	r.Declarations = len(bs.Groups.Declarations)

	slog.Info("Classified sources",
		logfields.BuildID(r.BuildID),
		logfields.Count(len(files)),
		slog.Int("templated_ui", len(bs.Groups.TemplatedUI)),
		slog.Int("plain", len(bs.Groups.Plain)),
		slog.Int("assets", len(bs.Groups.Assets)),
		slog.Int("declarations", len(bs.Groups.Declarations)))
	return nil
}
