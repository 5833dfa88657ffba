package transform

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"git.home.luguber.info/inful/distbuilder/internal/classify"
	"git.home.luguber.info/inful/distbuilder/internal/config"
	derrors "git.home.luguber.info/inful/distbuilder/internal/errors"
	"git.home.luguber.info/inful/distbuilder/internal/logfields"
)

// recordingEngine echoes stdin contents (or the entry path) as output.
type recordingEngine struct {
	mu       sync.Mutex
	calls    []Invocation
	fail     error
	warnings []string
}

func (e *recordingEngine) Build(_ context.Context, inv Invocation) (Output, error) {
	e.mu.Lock()
	e.calls = append(e.calls, inv)
	e.mu.Unlock()
	if e.fail != nil {
		return Output{}, e.fail
	}
	if inv.Stdin != nil {
		return Output{Files: []OutputFile{{Path: inv.Outfile, Contents: []byte(inv.Stdin.Contents)}}}, nil
	}
	out := Output{Warnings: e.warnings}
	for _, ep := range inv.EntryPoints {
		rel, _ := filepath.Rel(inv.Outbase, ep)
		path := inv.Outfile
		if path == "" {
			path = filepath.Join(inv.Outdir, strings.TrimSuffix(rel, filepath.Ext(rel))+".js")
		}
		out.Files = append(out.Files, OutputFile{Path: path, Contents: []byte(`import x from "./x";`)})
	}
	return out, nil
}

func TestNewOptions(t *testing.T) {
	dev := NewOptions(config.FormatESM, config.ModeDevelopment, false, false)
	assert.False(t, dev.Minify)
	assert.Equal(t, `"development"`, dev.Define["process.env.NODE_ENV"])
	assert.Empty(t, dev.Banner)
	assert.False(t, dev.RelativeExternal)

	prod := NewOptions(config.FormatESM, config.ModeProduction, true, false)
	assert.True(t, prod.Minify)
	assert.Equal(t, `"production"`, prod.Define["process.env.NODE_ENV"])
	assert.Equal(t, CreateRequireBanner, prod.Banner)
	assert.True(t, prod.RelativeExternal)

	standalone := NewOptions(config.FormatCJS, config.ModeProduction, false, true)
	assert.True(t, standalone.Bundle)
	assert.False(t, standalone.RelativeExternal)
	assert.Empty(t, standalone.Banner)
}

func TestOptions_WithEntriesSplitting(t *testing.T) {
	esmBundle := NewOptions(config.FormatESM, config.ModeProduction, true, false)
	assert.True(t, esmBundle.WithEntries(2).Splitting)
	assert.False(t, esmBundle.WithEntries(1).Splitting)

	standalone := NewOptions(config.FormatESM, config.ModeProduction, true, true)
	assert.False(t, standalone.WithEntries(3).Splitting)

	cjs := NewOptions(config.FormatCJS, config.ModeProduction, true, false)
	assert.False(t, cjs.WithEntries(3).Splitting)
}

func TestWithPreamble(t *testing.T) {
	src := "export const App = () => <div/>;"
	got := WithPreamble(src, "preact")
	assert.Equal(t, `import * as __distbuilder_ui from "preact";`+"\n"+
		`import { h, Fragment, render } from "preact";`+"\n"+src, got)

	already := `import { Component } from "preact";` + src
	assert.Equal(t, `import * as __distbuilder_ui from "preact";`+"\n"+already, WithPreamble(already, "preact"))
}

func TestESBuildEngine_TemplatedSourceImportingRuntime(t *testing.T) {
	dir := t.TempDir()
	src := "import { Component } from \"preact\";\nexport class Box extends Component {}\nexport const C = () => <div><span/></div>;\n"
	inv := NewInvoker(NewESBuildEngine(), NewOptions(config.FormatESM, config.ModeDevelopment, false, false), 1)

	out, err := inv.BuildBuffer(context.Background(), src, "tsx", dir, "")
	require.NoError(t, err)
	text := string(out)
	assert.Contains(t, text, "__distbuilder_ui.h(\"div\"")
	assert.Contains(t, text, "import * as __distbuilder_ui from \"preact\"")
	assert.NotContains(t, text, " h(\"div\"")
}

func TestLoaderFor(t *testing.T) {
	assert.Equal(t, "ts", LoaderFor(".mts"))
	assert.Equal(t, "tsx", LoaderFor(".tsx"))
	assert.Equal(t, "jsx", LoaderFor("jsx"))
	assert.Equal(t, "js", LoaderFor(".cjs"))
}

func TestBuildTemplated_UsesInMemoryPreamble(t *testing.T) {
	root := t.TempDir()
	srcPath := filepath.Join(root, "src", "App.tsx")
	require.NoError(t, os.MkdirAll(filepath.Dir(srcPath), 0o755))
	original := "export const App = () => <div/>;"
	require.NoError(t, os.WriteFile(srcPath, []byte(original), 0o644))

	sf := classify.SourceFile{
		Path:         srcPath,
		RelativePath: "App.tsx",
		Dialect:      classify.DialectTemplatedUI,
		Destination:  filepath.Join(root, "dist", "App.js"),
	}
	engine := &recordingEngine{}
	inv := NewInvoker(engine, NewOptions(config.FormatESM, config.ModeDevelopment, false, false), 2)

	arts, err := inv.BuildTemplated(context.Background(), []classify.SourceFile{sf})
	require.NoError(t, err)
	require.Len(t, arts, 1)
	assert.Equal(t, sf, arts[0].Source)
	assert.Equal(t, sf.Destination, arts[0].OutputPath)
	assert.Contains(t, string(arts[0].Contents), `from "preact"`)

	require.Len(t, engine.calls, 1)
	call := engine.calls[0]
	require.NotNil(t, call.Stdin)
	assert.Equal(t, filepath.Dir(srcPath), call.Stdin.ResolveDir)
	assert.Equal(t, srcPath, call.Stdin.Sourcefile)
	assert.Equal(t, "tsx", call.Stdin.Loader)

	onDisk, err := os.ReadFile(srcPath)
	require.NoError(t, err)
	assert.Equal(t, original, string(onDisk))
}

func TestBuildEntries_MapsOutputsToSources(t *testing.T) {
	src, out := "/p/src", "/p/dist"
	files := []classify.SourceFile{
		{Path: "/p/src/a.ts", RelativePath: "a.ts", Dialect: classify.DialectPlain, Destination: "/p/dist/a.js"},
		{Path: "/p/src/lib/b.ts", RelativePath: "lib/b.ts", Dialect: classify.DialectPlain, Destination: "/p/dist/lib/b.js"},
	}
	engine := &recordingEngine{}
	inv := NewInvoker(engine, NewOptions(config.FormatESM, config.ModeProduction, true, false), 1)

	arts, err := inv.BuildEntries(context.Background(), src, out, files)
	require.NoError(t, err)
	require.Len(t, arts, 2)
	assert.Equal(t, files[0], arts[0].Source)
	assert.Equal(t, files[1], arts[1].Source)

	require.Len(t, engine.calls, 1)
	assert.Equal(t, out, engine.calls[0].Outdir)
	assert.Equal(t, src, engine.calls[0].Outbase)
	assert.True(t, engine.calls[0].Options.Splitting)
}

func TestBuildEntries_SingleEntryUsesOutfile(t *testing.T) {
	f := classify.SourceFile{Path: "/elsewhere/a.ts", Dialect: classify.DialectPlain, Destination: "/p/dist/a.js"}
	engine := &recordingEngine{}
	_, err := NewInvoker(engine, NewOptions(config.FormatESM, config.ModeProduction, false, false), 1).
		BuildEntries(context.Background(), "/p/src", "/p/dist", []classify.SourceFile{f})
	require.NoError(t, err)
	require.Len(t, engine.calls, 1)
	assert.Equal(t, f.Destination, engine.calls[0].Outfile)
	assert.Empty(t, engine.calls[0].Outdir)
}

func TestBuildEntries_EngineFailureIsCompileError(t *testing.T) {
	engine := &recordingEngine{fail: errors.New("syntax error")}
	files := []classify.SourceFile{{Path: "/p/src/a.ts", Destination: "/p/dist/a.js"}}
	_, err := NewInvoker(engine, NewOptions(config.FormatESM, config.ModeProduction, false, false), 1).
		BuildEntries(context.Background(), "/p/src", "/p/dist", files)
	require.Error(t, err)
	assert.True(t, derrors.IsCategory(err, derrors.CategoryCompile))
	assert.Contains(t, err.Error(), "syntax error")
}

func TestBuildEntries_Empty(t *testing.T) {
	engine := &recordingEngine{}
	arts, err := NewInvoker(engine, Options{}, 1).BuildEntries(context.Background(), "/s", "/o", nil)
	require.NoError(t, err)
	assert.Empty(t, arts)
	assert.Empty(t, engine.calls)
}

func TestESBuildEngine_BuildBuffer(t *testing.T) {
	inv := NewInvoker(NewESBuildEngine(), NewOptions(config.FormatESM, config.ModeDevelopment, false, false), 1)
	out, err := inv.BuildBuffer(context.Background(), "const n: number = 1;\nexport const mode = process.env.NODE_ENV;\nexport default n;\n", "ts", t.TempDir(), "")
	require.NoError(t, err)
	text := string(out)
	assert.NotContains(t, text, ": number")
	assert.Contains(t, text, `"development"`)
	assert.Contains(t, text, "export")
}

func TestESBuildEngine_CommonJSOutput(t *testing.T) {
	inv := NewInvoker(NewESBuildEngine(), NewOptions(config.FormatCJS, config.ModeDevelopment, false, false), 1)
	out, err := inv.BuildBuffer(context.Background(), "export const x = 1;\n", "js", t.TempDir(), "")
	require.NoError(t, err)
	assert.Contains(t, string(out), "module.exports")
}

func TestESBuildEngine_SyntaxError(t *testing.T) {
	inv := NewInvoker(NewESBuildEngine(), NewOptions(config.FormatESM, config.ModeDevelopment, false, false), 1)
	_, err := inv.BuildBuffer(context.Background(), "export const = ;", "ts", t.TempDir(), "")
	require.Error(t, err)
	assert.True(t, derrors.IsCategory(err, derrors.CategoryCompile))
}

func TestESBuildEngine_BundleKeepsRelativeImportsExternal(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "b.ts"), []byte("export const b = 41;\n"), 0o600))
	src := "import { b } from \"./b\";\nexport const a = b + 1;\n"

	bundled := NewInvoker(NewESBuildEngine(), NewOptions(config.FormatESM, config.ModeDevelopment, true, false), 1)
	out, err := bundled.BuildBuffer(context.Background(), src, "ts", dir, "")
	require.NoError(t, err)
	assert.Contains(t, string(out), `"./b"`)
	assert.NotContains(t, string(out), "41")
	assert.Contains(t, string(out), "createRequire")

	standalone := NewInvoker(NewESBuildEngine(), NewOptions(config.FormatESM, config.ModeDevelopment, true, true), 1)
	out, err = standalone.BuildBuffer(context.Background(), src, "ts", dir, "")
	require.NoError(t, err)
	assert.NotContains(t, string(out), `"./b"`)
	assert.Contains(t, string(out), "41")
}

func TestBuildEntries_LogsEngineWarningsWithFormat(t *testing.T) {
	var buf bytes.Buffer
	prev := slog.Default()
	slog.SetDefault(slog.New(slog.NewTextHandler(&buf, nil)))
	t.Cleanup(func() { slog.SetDefault(prev) })

	engine := &recordingEngine{warnings: []string{"a.ts:1:1: unused label"}}
	files := []classify.SourceFile{{Path: "/p/src/a.ts", Dialect: classify.DialectPlain, Destination: "/p/dist/a.js"}}
	_, err := NewInvoker(engine, NewOptions(config.FormatCJS, config.ModeProduction, false, false), 1).
		BuildEntries(context.Background(), "/p/src", "/p/dist", files)
	require.NoError(t, err)

	logged := buf.String()
	assert.Contains(t, logged, "Transform engine warning")
	assert.Contains(t, logged, logfields.KeyFormat+"=cjs")
	assert.Contains(t, logged, "unused label")
}
