package transform

import (
	"fmt"
	"strings"

	"git.home.luguber.info/inful/distbuilder/internal/config"
)

// Defaults for the templated-UI syntax.
const (
	DefaultJSXFactory  = RuntimeNamespace + ".h"
	DefaultJSXFragment = RuntimeNamespace + ".Fragment"
	DefaultUIRuntime   = "preact"
	DefaultTarget      = "es2020"
)

// Options is the normalized option set shared by every invocation of a build.
type Options struct {
	Format     config.Format
	Mode       config.Mode
	Target     string
	Platform   string
	Minify     bool
	Bundle     bool
	Standalone bool
	Splitting  bool
	Charset    string
	Define     map[string]string
	External   []string
	Tsconfig   string

	JSXFactory  string
	JSXFragment string
	UIRuntime   string

	// Banner is prepended to every emitted JavaScript file.
	Banner string
	// RelativeExternal installs the resolve hook keeping same-package
	// relative imports out of bundles.
	RelativeExternal bool
}

// NewOptions derives the option set for a format and mode. Minification is
// the inverse of development mode and NODE_ENV is substituted literally.
func NewOptions(format config.Format, mode config.Mode, bundle, standalone bool) Options {
	o := Options{
		Format:      format,
		Mode:        mode,
		Target:      DefaultTarget,
		Platform:    "node",
		Minify:      !mode.IsDevelopment(),
		Bundle:      bundle || standalone,
		Standalone:  standalone,
		Charset:     "utf8",
		Define:      map[string]string{"process.env.NODE_ENV": fmt.Sprintf("%q", string(mode))},
		JSXFactory:  DefaultJSXFactory,
		JSXFragment: DefaultJSXFragment,
		UIRuntime:   DefaultUIRuntime,
	}
	o.RelativeExternal = o.Bundle && !o.Standalone
	if o.Format == config.FormatESM && o.Bundle {
		o.Banner = CreateRequireBanner
	}
	return o
}

// WithEntries returns a copy with chunk splitting decided for the given
// number of entry points: only async-linked, non-standalone builds with more
// than one entry split.
func (o Options) WithEntries(n int) Options {
	o.Splitting = o.Format == config.FormatESM && o.Bundle && !o.Standalone && n > 1
	return o
}

// CreateRequireBanner gives async-linked bundles a working require for
// bundled sync-linked dependencies.
const CreateRequireBanner = `import { createRequire as __distbuilderCreateRequire } from "module";
const require = __distbuilderCreateRequire(import.meta.url);`

// LoaderFor maps a file extension to the engine loader name.
func LoaderFor(ext string) string {
	switch strings.ToLower(strings.TrimPrefix(ext, ".")) {
	case "ts", "mts", "cts":
		return "ts"
	case "tsx":
		return "tsx"
	case "jsx":
		return "jsx"
	case "css":
		return "css"
	case "json":
		return "json"
	default:
		return "js"
	}
}
