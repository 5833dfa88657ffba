package build

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"git.home.luguber.info/inful/distbuilder/internal/classify"
	"git.home.luguber.info/inful/distbuilder/internal/config"
	derrors "git.home.luguber.info/inful/distbuilder/internal/errors"
)

func TestRun_FullBuild(t *testing.T) {
	p := newProject(t, map[string]string{
		"src/a.ts":         `import { b } from "./b";` + "\nexport const a = b;\n",
		"src/b.ts":         "export const b = 1;\n",
		"src/ui/App.tsx":   `import { a } from "../a";` + "\nexport const App = () => <div>{a}</div>;\n",
		"src/types.d.ts":   "export type T = string;\n",
		"src/img/logo.png": "png",
		"dist/stale.js":    "left over from an earlier build",
	})
	p.decls.count = 3

	res, err := p.orch.Run(context.Background(), Request{Format: config.FormatESM, Mode: config.ModeProduction})
	require.NoError(t, err)
	require.Equal(t, BuildStatusSuccess, res.Status)

	assert.ElementsMatch(t, []string{"a.js", "b.js", "ui/App.js", "img/logo.png", "package.json"}, p.outputFiles(t))
	assert.Contains(t, p.read(t, "dist/a.js"), `from "./b.js"`)
	assert.Contains(t, p.read(t, "dist/ui/App.js"), `from "../a.js"`)
	assert.Contains(t, p.read(t, "dist/ui/App.js"), `import * as __distbuilder_ui from "preact";`)
	assert.Contains(t, p.read(t, "dist/ui/App.js"), `import { h, Fragment, render } from "preact";`)
	assert.JSONEq(t, `{"type":"module"}`, p.read(t, "dist/package.json"))

	r := res.Report
	assert.NotEmpty(t, r.BuildID)
	assert.Equal(t, 3, r.Compiled)
	assert.Equal(t, 1, r.AssetsCopied)
	assert.Equal(t, 1, r.Declarations)
	assert.Equal(t, 3, r.DeclarationsEmitted)
	assert.Equal(t, 2, r.SpecifiersRewritten)
	assert.Equal(t, OutcomeSuccess, r.Outcome)
	assert.Equal(t, []State{
		StateIdle,
		stateOf(StageClearing),
		stateOf(StageClassifying),
		stateOf(StageCompiling),
		stateOf(StageCopyingAssets),
		stateOf(StageNormalizingSpecifiers),
		stateOf(StagePatchingMetadata),
		stateOf(StageStyles),
		stateOf(StageEmittingDeclarations),
		StateDone,
	}, r.States)
	assert.Equal(t, StageResultSkipped, r.StageResults[StageStyles], "no stylesheet and no bundle")
	assert.Empty(t, p.styles.calls)
	assert.Equal(t, StageResultSkipped, r.StageResults[StageBinaries])
	assert.Equal(t, 1, p.decls.called)
}

func TestRun_DeclarationsNeverCompiled(t *testing.T) {
	p := newProject(t, map[string]string{
		"src/index.ts":   "export {};\n",
		"src/types.d.ts": "export type T = string;\n",
	})

	res, err := p.orch.Run(context.Background(), Request{Format: config.FormatESM})
	require.NoError(t, err)

	for _, ep := range p.engine.entryPoints() {
		assert.NotEqual(t, classify.DialectDeclaration, classify.DialectOf(ep), ep)
	}
	assert.Equal(t, 1, res.Report.Declarations)
	assert.Equal(t, 1, res.Report.Classified[classify.DialectDeclaration])
	assert.NoFileExists(t, p.path("dist/types.d.ts"))
}

func TestRun_EmptyClassificationIsNotAnError(t *testing.T) {
	p := newProject(t, map[string]string{"src/readme.md": "hi"})

	res, err := p.orch.Run(context.Background(), Request{Input: "**/*.ts", Format: config.FormatCJS, RuntimeOnly: true})
	require.NoError(t, err)
	assert.Equal(t, 0, res.Report.Compiled)
	assert.Empty(t, p.engine.calls)
	assert.JSONEq(t, `{"type":"commonjs"}`, p.read(t, "dist/package.json"))
}

func TestRun_SinglePathInvalidatesOnlyItsDestination(t *testing.T) {
	p := newProject(t, map[string]string{
		"src/a.ts":      "export const a = 1;\n",
		"dist/a.js":     "old",
		"dist/other.js": "keep me",
		"dist/nested/x": "keep me too",
	})

	res, err := p.orch.Run(context.Background(), Request{Input: p.path("src/a.ts"), Mode: config.ModeDevelopment})
	require.NoError(t, err)
	assert.Equal(t, KindSinglePath, res.Report.Kind)

	assert.Equal(t, "export const a = 1;\n", p.read(t, "dist/a.js"))
	assert.Equal(t, "keep me", p.read(t, "dist/other.js"))
	assert.Equal(t, "keep me too", p.read(t, "dist/nested/x"))
	require.Len(t, p.engine.calls, 1)
	assert.Equal(t, p.path("dist/a.js"), p.engine.calls[0].Outfile)
}

func TestRun_SinglePathMissingFile(t *testing.T) {
	p := newProject(t, map[string]string{"src/a.ts": ""})
	_, err := p.orch.Run(context.Background(), Request{Input: p.path("src/gone.ts")})
	require.Error(t, err)
	assert.True(t, derrors.IsCategory(err, derrors.CategoryFileSystem))
	assert.NoDirExists(t, p.path("dist"))
}

func TestRun_RuntimeOnlySkipsAuxiliaryStages(t *testing.T) {
	p := newProject(t, map[string]string{
		"src/a.ts":              "export {};\n",
		"src/styles/global.css": "body{}",
	})

	res, err := p.orch.Run(context.Background(), Request{Mode: config.ModeDevelopment, Binary: true})
	require.NoError(t, err)
	assert.True(t, res.Report.States[len(res.Report.States)-2] == stateOf(StagePatchingMetadata))
	assert.Empty(t, p.styles.calls)
	assert.Zero(t, p.decls.called)
	assert.Zero(t, p.binary.called)
	for _, st := range []StageName{StageStyles, StageBinaries, StageEmittingDeclarations} {
		assert.Equal(t, StageResultSkipped, res.Report.StageResults[st], st)
	}
}

func TestRun_OptionalFailuresAreWarnings(t *testing.T) {
	p := newProject(t, map[string]string{
		"src/a.ts":              "export {};\n",
		"src/styles/global.css": "body{}",
		"src/theme.css":         "a{}",
	})
	p.styles.err = errors.New("sass exploded")
	p.binary.err = errors.New("no packager")
	p.decls.count = 1

	res, err := p.orch.Run(context.Background(), Request{Bundle: true, Binary: true})
	require.NoError(t, err)
	assert.Equal(t, BuildStatusPartial, res.Status)
	assert.Equal(t, StageResultWarning, res.Report.StageResults[StageStyles])
	assert.Equal(t, StageResultWarning, res.Report.StageResults[StageBinaries])
	assert.Equal(t, StageResultSuccess, res.Report.StageResults[StageEmittingDeclarations])
	assert.Len(t, res.Report.Warnings, 2)

	// global stylesheet once, plus the other copied stylesheet in bundle mode
	require.Len(t, p.styles.calls, 2)
	assert.Equal(t, p.path("src/styles/global.css"), p.styles.calls[0][0])
	assert.Equal(t, p.path("dist/theme.css"), p.styles.calls[1][0])

	assert.FileExists(t, p.path("dist/a.js"))
}

func TestRun_JSOnlySkipsAssetsAndStyles(t *testing.T) {
	p := newProject(t, map[string]string{
		"src/a.ts":      "export {};\n",
		"src/logo.png":  "png",
		"src/theme.css": "a{}",
	})

	res, err := p.orch.Run(context.Background(), Request{JSOnly: true, Bundle: true})
	require.NoError(t, err)
	assert.NoFileExists(t, p.path("dist/logo.png"))
	assert.Empty(t, p.styles.calls)
	assert.Equal(t, StageResultSkipped, res.Report.StageResults[StageCopyingAssets])
	assert.Equal(t, StageResultSkipped, res.Report.StageResults[StageStyles])
}

func TestRun_CompileErrorIsFatalWithoutRollback(t *testing.T) {
	p := newProject(t, map[string]string{
		"src/a.ts":  "export {};\n",
		"src/b.tsx": "export const B = () => <b/>;\n",
	})
	p.engine.fail = errors.New("unexpected token")

	res, err := p.orch.Run(context.Background(), Request{})
	require.Error(t, err)
	assert.True(t, derrors.IsCategory(err, derrors.CategoryCompile))
	assert.Equal(t, BuildStatusFailed, res.Status)
	assert.Equal(t, StateFailed, res.Report.States[len(res.Report.States)-1])
	assert.Equal(t, StageResultFatal, res.Report.StageResults[StageCompiling])
	assert.Zero(t, p.decls.called)

	matches, globErr := filepath.Glob(p.path("tsconfig.distbuilder-*.json"))
	require.NoError(t, globErr)
	assert.Empty(t, matches, "derived config must be released on failure")
}

func TestRun_DerivedConfigReleasedAfterSuccess(t *testing.T) {
	p := newProject(t, map[string]string{
		"tsconfig.json": `{"compilerOptions":{"strict":true}}`,
		"src/App.tsx":   "export const App = () => <div/>;\n",
	})

	_, err := p.orch.Run(context.Background(), Request{})
	require.NoError(t, err)

	require.Len(t, p.engine.calls, 1)
	derived := p.engine.calls[0].Options.Tsconfig
	assert.Contains(t, filepath.Base(derived), "tsconfig.distbuilder-")
	assert.NoFileExists(t, derived)
	assert.FileExists(t, p.path("tsconfig.json"))
}

func TestRun_LiteralNoWriteReturnsTextWithoutWrites(t *testing.T) {
	p := newProject(t, nil)

	res, err := p.orch.Run(context.Background(), Request{
		Literal: &Literal{Contents: "export const x = 1;", Loader: "ts"},
		NoWrite: true,
	})
	require.NoError(t, err)
	assert.Equal(t, "export const x = 1;", string(res.Output))
	assert.Equal(t, KindLiteral, res.Report.Kind)
	assert.Equal(t, []State{StateIdle, stateOf(StageCompiling), stateOf(StageWriteOrReturn), StateDone}, res.Report.States)

	entries, err := os.ReadDir(p.root)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestRun_LiteralWritesOutfile(t *testing.T) {
	p := newProject(t, nil)

	res, err := p.orch.Run(context.Background(), Request{
		Literal: &Literal{Contents: "export const x = 1;", Loader: "js", OutFile: "out/x.js"},
	})
	require.NoError(t, err)
	assert.Nil(t, res.Output)
	assert.Equal(t, "export const x = 1;", p.read(t, "out/x.js"))
}

func TestRun_LiteralMissingCompanionFlags(t *testing.T) {
	p := newProject(t, nil)

	_, err := p.orch.Run(context.Background(), Request{Literal: &Literal{Contents: "x", OutFile: "x.js"}})
	require.Error(t, err)
	assert.True(t, derrors.IsCategory(err, derrors.CategoryConfig))

	_, err = p.orch.Run(context.Background(), Request{Literal: &Literal{Contents: "x", Loader: "js"}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "--outfile or --no-write")

	assert.Empty(t, p.engine.calls)
	entries, readErr := os.ReadDir(p.root)
	require.NoError(t, readErr)
	assert.Empty(t, entries)
}

func TestRun_CanceledContext(t *testing.T) {
	p := newProject(t, map[string]string{"src/a.ts": ""})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	res, err := p.orch.Run(ctx, Request{})
	require.Error(t, err)
	assert.Equal(t, BuildStatusCancelled, res.Status)
	assert.NoDirExists(t, p.path("dist"))
}

func TestRun_ESBuildScenario(t *testing.T) {
	p := newProject(t, map[string]string{
		"src/a.ts": `import {b} from "./b";` + "\nexport const a = b + 1;\n",
		"src/b.ts": "export const b = 1;\n",
	})
	orch := NewOrchestrator(p.cfg).
		WithDeclarationEmitter(p.decls).
		WithStyleCompiler(p.styles)

	res, err := orch.Run(context.Background(), Request{Format: config.FormatESM, Mode: config.ModeDevelopment})
	require.NoError(t, err)
	assert.Equal(t, 2, res.Report.Compiled)
	assert.Contains(t, p.read(t, "dist/a.js"), `"./b.js"`)
	assert.NotContains(t, p.read(t, "dist/a.js"), `"./b"`)
	assert.FileExists(t, p.path("dist/b.js"))

	// a single-path rebuild of b leaves a untouched
	before := p.read(t, "dist/a.js")
	res2, err := NewOrchestrator(p.cfg).Run(context.Background(), Request{Input: p.path("src/b.ts"), Mode: config.ModeDevelopment})
	require.NoError(t, err)
	assert.Equal(t, 1, res2.Report.Compiled)
	assert.Equal(t, before, p.read(t, "dist/a.js"))
}

func TestRun_TargetFormatPairingRejectedBeforeMutation(t *testing.T) {
	p := newProject(t, map[string]string{
		"src/a.ts":      "export const a = 1;\n",
		"dist/stale.js": "left over",
	})
	p.cfg.Target = "es5"

	res, err := p.orch.Run(context.Background(), Request{Format: config.FormatESM})
	require.Error(t, err)
	assert.True(t, derrors.IsCategory(err, derrors.CategoryConfig))
	assert.Equal(t, BuildStatusFailed, res.Status)
	assert.Equal(t, "left over", p.read(t, "dist/stale.js"))
	assert.Empty(t, p.engine.entryPoints())

	res, err = p.orch.Run(context.Background(), Request{Format: config.FormatCJS})
	require.NoError(t, err)
	assert.True(t, res.Status.IsSuccess())
}
