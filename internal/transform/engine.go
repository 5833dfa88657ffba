// Package transform wraps the external syntax-transform engine behind a
// normalized option set. It synthesizes the UI runtime preamble for
// templated-UI sources and offers two invocation shapes: glob-seeded builds
// over many entry points and single-buffer builds for literal input.
package transform

import "context"

// Stdin is an in-memory entry point.
type Stdin struct {
	Contents   string
	ResolveDir string
	Sourcefile string
	Loader     string
}

// Invocation is one engine call.
type Invocation struct {
	EntryPoints []string
	Stdin       *Stdin
	Outdir      string
	Outbase     string
	Outfile     string
	Options     Options
}

// OutputFile is one file produced by the engine. Nothing is written to disk
// by the engine; the output lifecycle owns every write.
type OutputFile struct {
	Path     string
	Contents []byte
}

// Output is the result of a successful invocation.
type Output struct {
	Files    []OutputFile
	Warnings []string
}

// Engine performs a single transform invocation.
type Engine interface {
	Build(ctx context.Context, inv Invocation) (Output, error)
}
