// Package specifier rewrites relative module specifiers in freshly emitted
// output so every one of them names a concrete file.
//
// The scan is lexical and shallow: only declarative clauses are considered
// (import ... from, export ... from, side-effect imports and, for sync-linked
// output, literal require calls). Dynamic or computed specifiers are left
// alone. Source files are never touched; callers pass emitted paths only.
package specifier

import (
	"bytes"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"slices"
	"strings"

	"git.home.luguber.info/inful/distbuilder/internal/classify"
	derrors "git.home.luguber.info/inful/distbuilder/internal/errors"
	"git.home.luguber.info/inful/distbuilder/internal/logfields"
)

// CanonicalExt is appended to extensionless relative specifiers and replaces
// source extensions the compile stage renamed.
const CanonicalExt = classify.CompiledExt

const indexFile = "index" + CanonicalExt

var (
	declarativeRe = regexp.MustCompile(`(\bfrom\s*|\bimport\s*)("[^"\n]*"|'[^'\n]*')`)
	requireRe     = regexp.MustCompile(`(\brequire\s*\(\s*)("[^"\n]*"|'[^'\n]*')(\s*\))`)
)

// Result summarizes one normalized file.
type Result struct {
	Path       string
	Specifiers []string // every specifier seen, before rewriting
	Rewritten  int
	Unresolved []string
	Changed    bool
}

// Warnings converts unresolved specifiers into warning errors.
func (r Result) Warnings() []error {
	out := make([]error, 0, len(r.Unresolved))
	for _, s := range r.Unresolved {
		out = append(out, derrors.UnresolvedSpecifier(r.Path, s))
	}
	return out
}

// Normalizer rewrites relative specifiers of emitted files.
type Normalizer struct {
	// ScanRequire enables rewriting of literal require("...") calls.
	ScanRequire bool
}

// New returns a normalizer; scanRequire should be set for sync-linked output.
func New(scanRequire bool) *Normalizer {
	return &Normalizer{ScanRequire: scanRequire}
}

// NormalizeFile rewrites path in place. The file is only written when its
// contents change, so running it on normalized output is a no-op.
func (n *Normalizer) NormalizeFile(path string) (Result, error) {
	data, err := os.ReadFile(filepath.Clean(path))
	if err != nil {
		return Result{Path: path}, derrors.FilesystemError("normalize_read", err).WithContext("path", path)
	}

	out, res := n.Normalize(path, data)
	if !res.Changed {
		return res, nil
	}

	info, err := os.Stat(path)
	if err != nil {
		return res, derrors.FilesystemError("normalize_stat", err).WithContext("path", path)
	}
	if err := os.WriteFile(path, out, info.Mode().Perm()); err != nil {
		return res, derrors.FilesystemError("normalize_write", err).WithContext("path", path)
	}
	slog.Debug("Normalized specifiers", logfields.File(path), logfields.Count(res.Rewritten))
	return res, nil
}

// Normalize rewrites the contents of an emitted file located at path.
// Relative specifiers are resolved against the directory of path.
func (n *Normalizer) Normalize(path string, data []byte) ([]byte, Result) {
	res := Result{Path: path}
	if specs := Scan(data, n.ScanRequire); !slices.ContainsFunc(specs, IsRelative) {
		res.Specifiers = specs
		return data, res
	}
	dir := filepath.Dir(path)

	rewrite := func(quoted []byte) []byte {
		quote := quoted[0]
		spec := string(quoted[1 : len(quoted)-1])
		res.Specifiers = append(res.Specifiers, spec)

		resolved, ok := resolve(dir, spec)
		if !ok {
			res.Unresolved = append(res.Unresolved, spec)
			slog.Warn("Unresolved relative specifier", logfields.File(path), logfields.Specifier(spec))
			return quoted
		}
		if resolved == spec {
			return quoted
		}
		res.Rewritten++
		return []byte(fmt.Sprintf("%c%s%c", quote, resolved, quote))
	}

	out := replaceClause(declarativeRe, data, rewrite)
	if n.ScanRequire {
		out = replaceClause(requireRe, out, rewrite)
	}
	res.Changed = !bytes.Equal(out, data)
	return out, res
}

// Scan lists every specifier found in declarative clauses of src.
func Scan(src []byte, includeRequire bool) []string {
	var specs []string
	collect := func(re *regexp.Regexp) {
		for _, m := range re.FindAllSubmatch(src, -1) {
			specs = append(specs, string(m[2][1:len(m[2])-1]))
		}
	}
	collect(declarativeRe)
	if includeRequire {
		collect(requireRe)
	}
	return specs
}

// replaceClause applies fn to the quoted specifier (submatch 2) of every
// match, keeping the surrounding clause text.
func replaceClause(re *regexp.Regexp, src []byte, fn func([]byte) []byte) []byte {
	return re.ReplaceAllFunc(src, func(m []byte) []byte {
		idx := re.FindSubmatchIndex(m)
		if len(idx) < 6 {
			return m
		}
		var buf bytes.Buffer
		buf.Write(m[:idx[4]])
		buf.Write(fn(m[idx[4]:idx[5]]))
		buf.Write(m[idx[5]:])
		return buf.Bytes()
	})
}

// IsRelative reports whether spec is a same-package relative specifier.
func IsRelative(spec string) bool {
	return spec == "." || spec == ".." || strings.HasPrefix(spec, "./") || strings.HasPrefix(spec, "../")
}

// resolve returns the unambiguous form of spec. Non-relative specifiers and
// specifiers that already resolve are returned unchanged. A source extension
// is swapped for CanonicalExt when only the compiled file exists. ok is false when a
// relative specifier names nothing on disk.
func resolve(dir, spec string) (string, bool) {
	if !IsRelative(spec) || strings.HasSuffix(spec, CanonicalExt) {
		return spec, true
	}
	target := filepath.Join(dir, filepath.FromSlash(spec))
	if isFile(target) {
		return spec, true
	}
	if ext := filepath.Ext(spec); ext != "" && compiledSource(spec) {
		swapped := strings.TrimSuffix(spec, ext) + CanonicalExt
		if isFile(filepath.Join(dir, filepath.FromSlash(swapped))) {
			return swapped, true
		}
	}
	if isFile(target + CanonicalExt) {
		return spec + CanonicalExt, true
	}
	if isFile(filepath.Join(target, indexFile)) {
		return strings.TrimSuffix(spec, "/") + "/" + indexFile, true
	}
	return spec, false
}

// compiledSource reports whether spec names a source file the compile stage
// emits under CanonicalExt, e.g. "./util.mjs" or "./view.tsx".
func compiledSource(spec string) bool {
	d := classify.DialectOf(spec)
	return d == classify.DialectPlain || d == classify.DialectTemplatedUI
}

func isFile(p string) bool {
	info, err := os.Stat(p)
	return err == nil && info.Mode().IsRegular()
}
