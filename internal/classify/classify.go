// Package classify discovers source files under a source root and sorts them
// into dialects, computing each file's destination in the output tree.
package classify

import (
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/bmatcuk/doublestar/v4"

	"git.home.luguber.info/inful/distbuilder/internal/logfields"
	"git.home.luguber.info/inful/distbuilder/internal/util/sets"
)

// Dialect is the syntactic category of a source file.
type Dialect string

const (
	DialectTemplatedUI Dialect = "templated-ui"
	DialectPlain       Dialect = "plain"
	DialectAsset       Dialect = "asset"
	DialectDeclaration Dialect = "declaration"
)

// CompiledExt is the canonical extension of every compiled artifact.
const CompiledExt = ".js"

var (
	declarationSuffixes = []string{".d.ts", ".d.mts", ".d.cts"}
	templatedExts       = sets.New(".jsx", ".tsx")
	plainExts           = sets.New(".js", ".mjs", ".cjs", ".ts", ".mts", ".cts")
	skippedDirs         = sets.New("node_modules", ".git")
)

// SourceFile is an immutable snapshot of one classified path.
type SourceFile struct {
	Path         string  // absolute source path
	RelativePath string  // slash-separated, relative to the source root
	Dialect      Dialect // classification
	Destination  string  // absolute output path
}

// Compiled reports whether the file is handed to the transform engine.
func (f SourceFile) Compiled() bool {
	return f.Dialect == DialectTemplatedUI || f.Dialect == DialectPlain
}

// DialectOf classifies a single path by name. Declaration suffixes are
// checked first since ".d.ts" also ends in ".ts".
func DialectOf(path string) Dialect {
	lower := strings.ToLower(filepath.Base(path))
	for _, suffix := range declarationSuffixes {
		if strings.HasSuffix(lower, suffix) {
			return DialectDeclaration
		}
	}
	ext := filepath.Ext(lower)
	switch {
	case templatedExts.Has(ext):
		return DialectTemplatedUI
	case plainExts.Has(ext):
		return DialectPlain
	default:
		return DialectAsset
	}
}

// Destination maps a source path to its output path: the source root prefix
// is replaced with the output root and code extensions become CompiledExt.
// Paths outside the source root are placed at the output root by base name.
func Destination(srcRoot, outRoot, path string) string {
	rel, err := filepath.Rel(srcRoot, path)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		rel = filepath.Base(path)
	}
	switch DialectOf(path) {
	case DialectTemplatedUI, DialectPlain:
		rel = strings.TrimSuffix(rel, filepath.Ext(rel)) + CompiledExt
	}
	return filepath.Join(outRoot, rel)
}

// Classifier expands an inclusion pattern under a source root.
type Classifier struct {
	srcRoot string
	outRoot string
}

// New creates a classifier for the given absolute roots.
func New(srcRoot, outRoot string) *Classifier {
	if outRoot != "" {
		outRoot = filepath.Clean(outRoot)
	}
	return &Classifier{srcRoot: srcRoot, outRoot: outRoot}
}

// Classify returns the deduplicated, sorted files matching pattern under the
// source root. When input is an absolute file path it is returned as a
// single-element result whether or not the pattern matches it. An empty
// result is not an error.
func (c *Classifier) Classify(pattern, input string) ([]SourceFile, error) {
	if input != "" && filepath.IsAbs(input) {
		info, err := os.Stat(input)
		if err != nil {
			return nil, fmt.Errorf("stat input %s: %w", input, err)
		}
		if !info.IsDir() {
			return []SourceFile{c.newSourceFile(input)}, nil
		}
	}

	if pattern == "" {
		pattern = "**/*"
	}
	if !doublestar.ValidatePattern(pattern) {
		return nil, fmt.Errorf("invalid inclusion pattern %q", pattern)
	}

	seen := sets.New[string]()
	var files []SourceFile
	err := filepath.WalkDir(c.srcRoot, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		name := d.Name()
		if d.IsDir() {
			if path != c.srcRoot && (strings.HasPrefix(name, ".") || skippedDirs.Has(name) || path == c.outRoot) {
				return filepath.SkipDir
			}
			return nil
		}
		if strings.HasPrefix(name, ".") || !d.Type().IsRegular() {
			return nil
		}
		rel, err := filepath.Rel(c.srcRoot, path)
		if err != nil {
			return fmt.Errorf("relative path for %s: %w", path, err)
		}
		if ok, _ := doublestar.Match(pattern, filepath.ToSlash(rel)); !ok {
			return nil
		}
		if !seen.Add(path) {
			return nil
		}

		sf := c.newSourceFile(path)
		files = append(files, sf)
		slog.Debug("Classified file", logfields.File(sf.RelativePath), logfields.Dialect(string(sf.Dialect)))
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("walk source root %s: %w", c.srcRoot, err)
	}

	sort.Slice(files, func(i, j int) bool { return files[i].RelativePath < files[j].RelativePath })
	return files, nil
}

func (c *Classifier) newSourceFile(path string) SourceFile {
	rel, err := filepath.Rel(c.srcRoot, path)
	if err != nil || strings.HasPrefix(rel, "..") {
		rel = filepath.Base(path)
	}
	return SourceFile{
		Path:         path,
		RelativePath: filepath.ToSlash(rel),
		Dialect:      DialectOf(path),
		Destination:  Destination(c.srcRoot, c.outRoot, path),
	}
}

// Groups splits files by dialect, preserving order.
type Groups struct {
	TemplatedUI  []SourceFile
	Plain        []SourceFile
	Assets       []SourceFile
	Declarations []SourceFile
}

// Group partitions files by dialect.
func Group(files []SourceFile) Groups {
	var g Groups
	for _, f := range files {
		switch f.Dialect {
		case DialectTemplatedUI:
			g.TemplatedUI = append(g.TemplatedUI, f)
		case DialectPlain:
			g.Plain = append(g.Plain, f)
		case DialectDeclaration:
			g.Declarations = append(g.Declarations, f)
		default:
			g.Assets = append(g.Assets, f)
		}
	}
	return g
}
