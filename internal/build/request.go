package build

import (
	"os"
	"path/filepath"

	"git.home.luguber.info/inful/distbuilder/internal/config"
	derrors "git.home.luguber.info/inful/distbuilder/internal/errors"
)

// Kind is the invocation shape of a build.
type Kind string

const (
	KindFull       Kind = "full"
	KindSinglePath Kind = "single_path"
	KindLiteral    Kind = "literal"
)

// Normalize resolves interdependent flags once, before any stage reads the
// request: development implies runtime-only and standalone implies bundle.
// It also rejects invalid values and missing literal companions.
func (r Request) Normalize() (Request, error) {
	if r.Format == "" {
		r.Format = config.FormatESM
	}
	f, err := config.ParseFormat(string(r.Format))
	if err != nil {
		return r, derrors.ConfigurationError("format", err.Error())
	}
	r.Format = f

	switch r.Mode {
	case "":
		r.Mode = config.ModeProduction
	case config.ModeDevelopment, config.ModeProduction:
	default:
		return r, derrors.ConfigurationError("mode", "unknown mode "+string(r.Mode))
	}

	if r.Mode.IsDevelopment() {
		r.RuntimeOnly = true
	}
	if r.Standalone {
		r.Bundle = true
	}

	if r.Literal != nil {
		if r.Literal.Loader == "" {
			return r, derrors.MissingCompanionFlag("--loader", "literal input")
		}
		if r.Literal.OutFile == "" && !r.NoWrite {
			return r, derrors.MissingCompanionFlag("--outfile or --no-write", "literal input")
		}
		return r, nil
	}
	if r.NoWrite {
		return r, derrors.ConfigurationError("no_write", "write suppression requires literal input")
	}
	return r, nil
}

// Kind reports the invocation shape. An absolute input naming a regular file
// is a single-path build.
func (r Request) Kind() Kind {
	if r.Literal != nil {
		return KindLiteral
	}
	if filepath.IsAbs(r.Input) {
		if info, err := os.Stat(r.Input); err == nil && info.Mode().IsRegular() {
			return KindSinglePath
		}
	}
	return KindFull
}
