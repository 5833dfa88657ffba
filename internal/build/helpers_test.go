package build

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"git.home.luguber.info/inful/distbuilder/internal/config"
	"git.home.luguber.info/inful/distbuilder/internal/transform"
)

// identityEngine emits sources unchanged at the paths the real engine would
// choose.
type identityEngine struct {
	mu    sync.Mutex
	calls []transform.Invocation
	fail  error
}

func (e *identityEngine) Build(_ context.Context, inv transform.Invocation) (transform.Output, error) {
	e.mu.Lock()
	e.calls = append(e.calls, inv)
	e.mu.Unlock()
	if e.fail != nil {
		return transform.Output{}, e.fail
	}
	if inv.Stdin != nil {
		path := inv.Outfile
		if path == "" {
			path = "<stdout>"
		}
		return transform.Output{Files: []transform.OutputFile{{Path: path, Contents: []byte(inv.Stdin.Contents)}}}, nil
	}
	var out transform.Output
	for _, ep := range inv.EntryPoints {
		data, err := os.ReadFile(ep)
		if err != nil {
			return transform.Output{}, err
		}
		path := inv.Outfile
		if path == "" {
			rel, _ := filepath.Rel(inv.Outbase, ep)
			path = filepath.Join(inv.Outdir, strings.TrimSuffix(rel, filepath.Ext(rel))+".js")
		}
		out.Files = append(out.Files, transform.OutputFile{Path: path, Contents: data})
	}
	return out, nil
}

func (e *identityEngine) entryPoints() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	var eps []string
	for _, c := range e.calls {
		eps = append(eps, c.EntryPoints...)
		if c.Stdin != nil {
			eps = append(eps, c.Stdin.Sourcefile)
		}
	}
	return eps
}

type fakeStyles struct {
	mu    sync.Mutex
	calls [][2]string
	err   error
}

func (f *fakeStyles) CompileStyle(_ context.Context, entry, out string, _ bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, [2]string{entry, out})
	return f.err
}

type fakeDeclarations struct {
	called int
	count  int
	err    error
}

func (f *fakeDeclarations) EmitDeclarations(context.Context, string, string, string) (int, error) {
	f.called++
	return f.count, f.err
}

type fakePackager struct {
	called int
	err    error
}

func (f *fakePackager) Package(context.Context, string) error {
	f.called++
	return f.err
}

type project struct {
	root   string
	cfg    *config.Config
	engine *identityEngine
	styles *fakeStyles
	decls  *fakeDeclarations
	binary *fakePackager
	orch   *Orchestrator
}

func newProject(t *testing.T, files map[string]string) *project {
	t.Helper()
	root := t.TempDir()
	for rel, content := range files {
		p := filepath.Join(root, filepath.FromSlash(rel))
		require.NoError(t, os.MkdirAll(filepath.Dir(p), 0o755))
		require.NoError(t, os.WriteFile(p, []byte(content), 0o644))
	}
	cfg := config.Default()
	cfg.BaseDir = root
	cfg.Concurrency = 2

	p := &project{
		root:   root,
		cfg:    cfg,
		engine: &identityEngine{},
		styles: &fakeStyles{},
		decls:  &fakeDeclarations{},
		binary: &fakePackager{},
	}
	p.orch = NewOrchestrator(cfg).
		WithEngine(p.engine).
		WithStyleCompiler(p.styles).
		WithDeclarationEmitter(p.decls).
		WithBinaryPackager(p.binary)
	return p
}

func (p *project) path(rel string) string {
	return filepath.Join(p.root, filepath.FromSlash(rel))
}

func (p *project) read(t *testing.T, rel string) string {
	t.Helper()
	data, err := os.ReadFile(p.path(rel))
	require.NoError(t, err)
	return string(data)
}

// outputFiles lists every file under dist, slash separated and relative.
func (p *project) outputFiles(t *testing.T) []string {
	t.Helper()
	var files []string
	root := p.path("dist")
	err := filepath.WalkDir(root, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() {
			rel, _ := filepath.Rel(root, path)
			files = append(files, filepath.ToSlash(rel))
		}
		return nil
	})
	require.NoError(t, err)
	return files
}
