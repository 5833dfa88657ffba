package build

import (
	"sync"

	"git.home.luguber.info/inful/distbuilder/internal/classify"
	"git.home.luguber.info/inful/distbuilder/internal/config"
	"git.home.luguber.info/inful/distbuilder/internal/metrics"
	"git.home.luguber.info/inful/distbuilder/internal/output"
	"git.home.luguber.info/inful/distbuilder/internal/specifier"
	"git.home.luguber.info/inful/distbuilder/internal/toolchain"
	"git.home.luguber.info/inful/distbuilder/internal/transform"
	"git.home.luguber.info/inful/distbuilder/internal/util/sets"
)

// BuildState carries everything one run needs. It is created per Run and
// discarded afterwards.
type BuildState struct {
	Request Request
	Config  *config.Config
	Report  *Report

	SrcRoot string
	OutRoot string
	// Single is the absolute source path of a single-path build.
	Single string

	Out        *output.Manager
	Classifier *classify.Classifier
	Invoker    *transform.Invoker
	Normalizer *specifier.Normalizer

	Files  []classify.SourceFile
	Groups classify.Groups

	// Literal holds compiled text of a literal build.
	Literal []byte

	engine       transform.Engine
	styles       toolchain.StyleCompiler
	declarations toolchain.DeclarationEmitter
	binary       toolchain.BinaryPackager
	recorder     metrics.Recorder
	machine      *machine

	mu       sync.Mutex
	emitted  sets.Set[string]
	styled   []string // copied stylesheet destinations
	cleanups []func()
}

func (bs *BuildState) addEmitted(paths ...string) {
	bs.mu.Lock()
	defer bs.mu.Unlock()
	if bs.emitted == nil {
		bs.emitted = sets.New[string]()
	}
	for _, p := range paths {
		bs.emitted.Add(p)
	}
}

// Emitted returns the output paths written by the compile stage, sorted.
func (bs *BuildState) Emitted() []string {
	bs.mu.Lock()
	defer bs.mu.Unlock()
	return sets.Sorted(bs.emitted)
}

func (bs *BuildState) addStylesheet(dest string) {
	bs.mu.Lock()
	bs.styled = append(bs.styled, dest)
	bs.mu.Unlock()
}

// onEnd registers fn to run when the build ends, whatever the outcome.
func (bs *BuildState) onEnd(fn func()) {
	bs.mu.Lock()
	bs.cleanups = append(bs.cleanups, fn)
	bs.mu.Unlock()
}

func (bs *BuildState) runCleanups() {
	bs.mu.Lock()
	fns := bs.cleanups
	bs.cleanups = nil
	bs.mu.Unlock()
	for i := len(fns) - 1; i >= 0; i-- {
		fns[i]()
	}
}
