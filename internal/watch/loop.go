package watch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"golang.org/x/sync/errgroup"

	"git.home.luguber.info/inful/distbuilder/internal/build"
	"git.home.luguber.info/inful/distbuilder/internal/classify"
	derrors "git.home.luguber.info/inful/distbuilder/internal/errors"
	"git.home.luguber.info/inful/distbuilder/internal/logfields"
	"git.home.luguber.info/inful/distbuilder/internal/metrics"
	"git.home.luguber.info/inful/distbuilder/internal/output"
)

const (
	defaultConcurrency = 4
	queueSize          = 256
)

// Options configures a Loop.
type Options struct {
	SourceRoot  string
	OutputRoot  string
	Ignore      []string // doublestar patterns relative to SourceRoot
	Concurrency int      // max concurrent rebuilds of distinct paths
	Recorder    metrics.Recorder
}

// gate tracks one in-flight path. pending holds the kind of the follow-up
// rebuild, latest event wins.
type gate struct {
	pending *Kind
}

// Loop supervises the watch primitive and maps events to rebuild or removal
// actions.
type Loop struct {
	svc         build.BuildService
	base        build.Request
	srcRoot     string
	out         *output.Manager
	filter      filter
	concurrency int
	recorder    metrics.Recorder

	mu       sync.Mutex
	inflight map[string]*gate
}

// New creates a watch loop. base is the request template: the initial build
// runs it unchanged and incremental rebuilds set its Input to the changed
// path.
func New(svc build.BuildService, base build.Request, opts Options) *Loop {
	if opts.Concurrency < 1 {
		opts.Concurrency = defaultConcurrency
	}
	if opts.Recorder == nil {
		opts.Recorder = metrics.NoopRecorder{}
	}
	return &Loop{
		svc:         svc,
		base:        base,
		srcRoot:     opts.SourceRoot,
		out:         output.NewManager(opts.OutputRoot),
		filter:      filter{root: opts.SourceRoot, out: opts.OutputRoot, ignore: opts.Ignore},
		concurrency: opts.Concurrency,
		recorder:    opts.Recorder,
		inflight:    make(map[string]*gate),
	}
}

// Run performs the initial full build and then processes events until ctx is
// cancelled. In-flight rebuilds finish before Run returns. Only an invalid
// request or a broken watcher end the loop with an error; build failures are
// logged and the loop keeps watching.
func (l *Loop) Run(ctx context.Context) error {
	initial := l.base
	initial.Input = ""
	if _, err := l.svc.Run(ctx, initial); err != nil {
		if derrors.IsCategory(err, derrors.CategoryConfig) {
			return err
		}
		slog.Error("Initial build failed; watching for changes", logfields.Error(err))
	}

	w, err := fsnotify.NewWatcher()
	if err != nil {
		return derrors.WatchError("create watcher", err)
	}
	defer func() { _ = w.Close() }()

	if err := addDirsRecursive(w, l.srcRoot, l.out.Root()); err != nil {
		return derrors.WatchError("watch source root", err).WithContext("path", l.srcRoot)
	}
	slog.Info("Watching for changes", logfields.Path(l.srcRoot), slog.Int("concurrency", l.concurrency))

	queue := make(chan Event, queueSize)
	fatal := make(chan error, 1)
	go l.forward(ctx, w, queue, fatal)
	return l.consume(ctx, queue, fatal)
}

// forward translates watcher notifications into queued Events.
func (l *Loop) forward(ctx context.Context, w *fsnotify.Watcher, queue chan<- Event, fatal chan<- error) {
	enqueue := func(ev Event) bool {
		select {
		case queue <- ev:
			return true
		case <-ctx.Done():
			return false
		}
	}
	for {
		select {
		case <-ctx.Done():
			return
		case nev, ok := <-w.Events:
			if !ok {
				fatal <- errors.New("watcher event channel closed")
				return
			}
			if l.filter.ignored(nev.Name) {
				continue
			}
			ev, ok := translate(nev)
			if !ok {
				continue
			}
			if ev.Kind == KindAdded {
				if fi, err := os.Stat(ev.Path); err == nil && fi.IsDir() {
					// a directory moved in: watch it and build what it holds
					_ = addDirsRecursive(w, ev.Path, l.out.Root())
					for _, f := range l.filesUnder(ev.Path) {
						if !enqueue(Event{Path: f, Kind: KindAdded}) {
							return
						}
					}
					continue
				}
			}
			if !enqueue(ev) {
				return
			}
		case err, ok := <-w.Errors:
			if !ok {
				fatal <- errors.New("watcher error channel closed")
				return
			}
			slog.Warn("Watcher error", logfields.Error(err))
		}
	}
}

// consume is the coordinator: it drains the queue and dispatches events.
func (l *Loop) consume(ctx context.Context, queue <-chan Event, fatal <-chan error) error {
	var g errgroup.Group
	g.SetLimit(l.concurrency)
	for {
		select {
		case <-ctx.Done():
			_ = g.Wait()
			slog.Info("Watch loop stopped")
			return nil
		case err := <-fatal:
			_ = g.Wait()
			return derrors.WatchError("watcher failed", err)
		case ev, ok := <-queue:
			if !ok {
				_ = g.Wait()
				return nil
			}
			l.dispatch(ctx, &g, ev)
		}
	}
}

// dispatch starts a rebuild for ev unless its path is already in flight, in
// which case the event becomes the path's pending follow-up.
func (l *Loop) dispatch(ctx context.Context, g *errgroup.Group, ev Event) {
	l.recorder.IncWatchEvent(string(ev.Kind))

	l.mu.Lock()
	if gt, busy := l.inflight[ev.Path]; busy {
		kind := ev.Kind
		gt.pending = &kind
		l.mu.Unlock()
		slog.Debug("Path busy; coalescing event", logfields.Path(ev.Path), logfields.Event(string(ev.Kind)))
		return
	}
	l.inflight[ev.Path] = &gate{}
	l.mu.Unlock()

	g.Go(func() error {
		// rebuilds are never cancelled midway; shutdown waits for them
		runCtx := context.WithoutCancel(ctx)
		for {
			l.process(runCtx, ev)

			l.mu.Lock()
			gt := l.inflight[ev.Path]
			if gt.pending == nil || ctx.Err() != nil {
				delete(l.inflight, ev.Path)
				l.mu.Unlock()
				return nil
			}
			ev = Event{Path: ev.Path, Kind: *gt.pending}
			gt.pending = nil
			l.mu.Unlock()
		}
	})
}

// process performs the action for one event.
func (l *Loop) process(ctx context.Context, ev Event) {
	start := time.Now()
	logger := slog.With(logfields.Path(ev.Path), logfields.Event(string(ev.Kind)))

	if ev.Kind == KindRemoved {
		if _, err := os.Stat(ev.Path); err == nil {
			// replaced in place (rename-over); treat as a modification
			ev.Kind = KindModified
		}
	}

	var err error
	switch ev.Kind {
	case KindRemoved:
		err = l.remove(ev.Path)
	default:
		if fi, statErr := os.Stat(ev.Path); statErr == nil && fi.IsDir() {
			return
		}
		req := l.base
		req.Input = ev.Path
		_, err = l.svc.Run(ctx, req)
	}

	dur := time.Since(start)
	l.recorder.ObserveRebuildDuration(dur, err == nil)
	if err != nil {
		logger.Error("Rebuild failed", logfields.Error(err), logfields.DurationMS(float64(dur.Milliseconds())))
		return
	}
	logger.Info("Rebuilt", logfields.DurationMS(float64(dur.Milliseconds())))
}

// remove deletes the destination of a removed source directly, bypassing
// the orchestrator. A removed directory takes its mirrored output directory
// with it.
func (l *Loop) remove(path string) error {
	rel, err := filepath.Rel(l.srcRoot, path)
	if err != nil {
		return derrors.WatchError("resolve removed path", err).WithContext("path", path)
	}
	mirrored := filepath.Join(l.out.Root(), rel)
	if fi, err := os.Stat(mirrored); err == nil && fi.IsDir() {
		return l.out.RemoveArtifact(mirrored)
	}
	return l.out.RemoveArtifact(classify.Destination(l.srcRoot, l.out.Root(), path))
}

func (l *Loop) filesUnder(dir string) []string {
	var files []string
	_ = filepath.WalkDir(dir, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if l.filter.ignored(path) {
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if d.Type().IsRegular() {
			files = append(files, path)
		}
		return nil
	})
	return files
}

// addDirsRecursive watches root and its subdirectories, leaving out skip.
func addDirsRecursive(w *fsnotify.Watcher, root, skip string) error {
	info, err := os.Stat(root)
	if err != nil {
		return err
	}
	if !info.IsDir() {
		return fmt.Errorf("%s is not a directory", root)
	}
	return filepath.WalkDir(root, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if d.IsDir() {
			if path != root && (d.Name() == "node_modules" || d.Name()[0] == '.' || path == skip) {
				return filepath.SkipDir
			}
			if err := w.Add(path); err != nil {
				slog.Warn("Watch add failed", logfields.Path(path), logfields.Error(err))
			}
		}
		return nil
	})
}
