package config

import (
	"path/filepath"
	"strings"

	"github.com/bmatcuk/doublestar/v4"

	derrors "git.home.luguber.info/inful/distbuilder/internal/errors"
)

// Validate checks field values that would otherwise fail deep inside a stage.
func (c *Config) Validate() error {
	format, err := ParseFormat(string(c.Format))
	if err != nil {
		return derrors.ConfigurationError("format", err.Error())
	}
	if err := CheckTarget(c.Target, format); err != nil {
		return derrors.ConfigurationError("target", err.Error())
	}
	if !doublestar.ValidatePattern(c.Pattern) {
		return derrors.ConfigurationError("pattern", "invalid glob pattern "+c.Pattern)
	}
	for _, p := range c.Watch.Ignore {
		if !doublestar.ValidatePattern(p) {
			return derrors.ConfigurationError("watch.ignore", "invalid glob pattern "+p)
		}
	}
	src := filepath.Clean(c.SourceRoot())
	out := filepath.Clean(c.OutputRoot())
	if src == out {
		return derrors.ConfigurationError("output_dir", "output directory must differ from source directory")
	}
	// Full builds clear the output tree; it must never contain the sources.
	if rel, err := filepath.Rel(out, src); err == nil && rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return derrors.ConfigurationError("output_dir", "output directory must not contain the source directory")
	}
	// Output nested in the source tree would be watched and classified as source.
	if rel, err := filepath.Rel(src, out); err == nil && rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return derrors.ConfigurationError("output_dir", "output directory must not be inside the source directory")
	}
	return nil
}
