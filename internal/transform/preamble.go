package transform

import (
	"fmt"
	"regexp"
)

// RuntimeNamespace is the binding the preamble gives the UI runtime module.
// JSX compiles to RuntimeNamespace.h and RuntimeNamespace.Fragment so the
// factory resolves whatever the source itself imports.
const RuntimeNamespace = "__distbuilder_ui"

// Preamble returns the import line binding the UI runtime module under
// RuntimeNamespace.
func Preamble(runtime string) string {
	return fmt.Sprintf("import * as %s from %q;\n", RuntimeNamespace, runtime)
}

// namedPreamble binds the factory, fragment and root-mount function for
// sources that do not import the runtime themselves.
func namedPreamble(runtime string) string {
	return fmt.Sprintf("import { h, Fragment, render } from %q;\n", runtime)
}

// WithPreamble prepends the runtime preamble to templated-UI source. The
// namespace import is always added; the named bindings only when the source
// has no import of its own from the runtime package.
func WithPreamble(src, runtime string) string {
	re := regexp.MustCompile(`\b(?:from|import)\s*["']` + regexp.QuoteMeta(runtime) + `["']`)
	if re.MatchString(src) {
		return Preamble(runtime) + src
	}
	return Preamble(runtime) + namedPreamble(runtime) + src
}
