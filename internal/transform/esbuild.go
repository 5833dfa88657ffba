package transform

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/evanw/esbuild/pkg/api"

	"git.home.luguber.info/inful/distbuilder/internal/config"
)

// maxDiagnostics caps the engine messages copied into an error.
const maxDiagnostics = 5

// ESBuildEngine runs invocations through esbuild's Go API.
type ESBuildEngine struct{}

// NewESBuildEngine returns the esbuild-backed engine.
func NewESBuildEngine() *ESBuildEngine { return &ESBuildEngine{} }

// Build implements Engine. esbuild calls are not interruptible, so the
// context is only checked before the call starts.
func (e *ESBuildEngine) Build(ctx context.Context, inv Invocation) (Output, error) {
	if err := ctx.Err(); err != nil {
		return Output{}, err
	}

	result := api.Build(buildOptions(inv))
	if len(result.Errors) > 0 {
		return Output{}, errors.New(formatMessages(result.Errors))
	}

	out := Output{Files: make([]OutputFile, 0, len(result.OutputFiles))}
	for _, f := range result.OutputFiles {
		out.Files = append(out.Files, OutputFile{Path: f.Path, Contents: f.Contents})
	}
	for _, w := range result.Warnings {
		out.Warnings = append(out.Warnings, formatMessage(w))
	}
	return out, nil
}

func buildOptions(inv Invocation) api.BuildOptions {
	o := inv.Options
	opts := api.BuildOptions{
		EntryPoints:       inv.EntryPoints,
		Outdir:            inv.Outdir,
		Outbase:           inv.Outbase,
		Outfile:           inv.Outfile,
		Bundle:            o.Bundle,
		Splitting:         o.Splitting,
		Format:            engineFormat(o.Format),
		Platform:          enginePlatform(o.Platform),
		Target:            engineTarget(o.Target),
		MinifyWhitespace:  o.Minify,
		MinifyIdentifiers: o.Minify,
		MinifySyntax:      o.Minify,
		Charset:           api.CharsetUTF8,
		Define:            o.Define,
		JSX:               api.JSXTransform,
		JSXFactory:        o.JSXFactory,
		JSXFragment:       o.JSXFragment,
		Tsconfig:          o.Tsconfig,
		LogLevel:          api.LogLevelSilent,
		Write:             false,
	}
	if o.Bundle {
		opts.External = o.External
	}
	if o.Banner != "" {
		opts.Banner = map[string]string{"js": o.Banner}
	}
	if o.RelativeExternal {
		opts.Plugins = append(opts.Plugins, relativeExternalPlugin())
	}
	if inv.Stdin != nil {
		opts.Stdin = &api.StdinOptions{
			Contents:   inv.Stdin.Contents,
			ResolveDir: inv.Stdin.ResolveDir,
			Sourcefile: inv.Stdin.Sourcefile,
			Loader:     engineLoader(inv.Stdin.Loader),
		}
	}
	return opts
}

// relativeExternalPlugin marks same-package relative imports external so
// bundles keep importing their siblings instead of inlining them.
func relativeExternalPlugin() api.Plugin {
	return api.Plugin{
		Name: "relative-external",
		Setup: func(build api.PluginBuild) {
			build.OnResolve(api.OnResolveOptions{Filter: `^\.\.?/`}, func(args api.OnResolveArgs) (api.OnResolveResult, error) {
				if args.Kind == api.ResolveEntryPoint {
					return api.OnResolveResult{}, nil
				}
				return api.OnResolveResult{Path: args.Path, External: true}, nil
			})
		},
	}
}

func engineFormat(f config.Format) api.Format {
	if f == config.FormatCJS {
		return api.FormatCommonJS
	}
	return api.FormatESModule
}

func enginePlatform(p string) api.Platform {
	switch p {
	case "browser":
		return api.PlatformBrowser
	case "neutral":
		return api.PlatformNeutral
	default:
		return api.PlatformNode
	}
}

func engineTarget(t string) api.Target {
	switch strings.ToLower(strings.TrimSpace(t)) {
	case "es5":
		return api.ES5
	case "es2015", "es6":
		return api.ES2015
	case "es2016":
		return api.ES2016
	case "es2017":
		return api.ES2017
	case "es2018":
		return api.ES2018
	case "es2019":
		return api.ES2019
	case "es2021":
		return api.ES2021
	case "es2022":
		return api.ES2022
	case "esnext":
		return api.ESNext
	default:
		return api.ES2020
	}
}

func engineLoader(l string) api.Loader {
	switch l {
	case "ts":
		return api.LoaderTS
	case "tsx":
		return api.LoaderTSX
	case "jsx":
		return api.LoaderJSX
	case "css":
		return api.LoaderCSS
	case "json":
		return api.LoaderJSON
	case "text":
		return api.LoaderText
	default:
		return api.LoaderJS
	}
}

func formatMessages(msgs []api.Message) string {
	parts := make([]string, 0, maxDiagnostics)
	for i, m := range msgs {
		if i == maxDiagnostics {
			parts = append(parts, fmt.Sprintf("... and %d more", len(msgs)-maxDiagnostics))
			break
		}
		parts = append(parts, formatMessage(m))
	}
	return strings.Join(parts, "; ")
}

func formatMessage(m api.Message) string {
	if m.Location == nil {
		return m.Text
	}
	return fmt.Sprintf("%s:%d:%d: %s", m.Location.File, m.Location.Line, m.Location.Column, m.Text)
}
