package build

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"git.home.luguber.info/inful/distbuilder/internal/classify"
	"git.home.luguber.info/inful/distbuilder/internal/config"
	derrors "git.home.luguber.info/inful/distbuilder/internal/errors"
	"git.home.luguber.info/inful/distbuilder/internal/logfields"
	"git.home.luguber.info/inful/distbuilder/internal/metrics"
	"git.home.luguber.info/inful/distbuilder/internal/output"
	"git.home.luguber.info/inful/distbuilder/internal/specifier"
	"git.home.luguber.info/inful/distbuilder/internal/toolchain"
	"git.home.luguber.info/inful/distbuilder/internal/transform"
)

// Orchestrator is the default BuildService. Collaborators default to the
// esbuild engine and process-backed toolchain configured in cfg.
type Orchestrator struct {
	cfg          *config.Config
	engine       transform.Engine
	styles       toolchain.StyleCompiler
	declarations toolchain.DeclarationEmitter
	binary       toolchain.BinaryPackager
	recorder     metrics.Recorder
}

var _ BuildService = (*Orchestrator)(nil)

// NewOrchestrator creates an orchestrator with default collaborators.
func NewOrchestrator(cfg *config.Config) *Orchestrator {
	proc := &toolchain.Process{
		Dir:          cfg.BaseDir,
		Styles:       cfg.Toolchain.Styles,
		Declarations: cfg.Toolchain.Declarations,
		Binary:       cfg.Toolchain.Binary,
	}
	return &Orchestrator{
		cfg:          cfg,
		engine:       transform.NewESBuildEngine(),
		styles:       proc,
		declarations: proc,
		binary:       proc,
		recorder:     metrics.NoopRecorder{},
	}
}

// WithEngine replaces the transform engine.
func (o *Orchestrator) WithEngine(e transform.Engine) *Orchestrator {
	o.engine = e
	return o
}

// WithStyleCompiler replaces the stylesheet toolchain.
func (o *Orchestrator) WithStyleCompiler(s toolchain.StyleCompiler) *Orchestrator {
	o.styles = s
	return o
}

// WithDeclarationEmitter replaces the declaration emitter.
func (o *Orchestrator) WithDeclarationEmitter(d toolchain.DeclarationEmitter) *Orchestrator {
	o.declarations = d
	return o
}

// WithBinaryPackager replaces the binary packager.
func (o *Orchestrator) WithBinaryPackager(b toolchain.BinaryPackager) *Orchestrator {
	o.binary = b
	return o
}

// WithRecorder sets the metrics recorder.
func (o *Orchestrator) WithRecorder(r metrics.Recorder) *Orchestrator {
	if r == nil {
		r = metrics.NoopRecorder{}
	}
	o.recorder = r
	return o
}

// Config returns the orchestrator's configuration.
func (o *Orchestrator) Config() *config.Config { return o.cfg }

// Run executes one build.
func (o *Orchestrator) Run(ctx context.Context, req Request) (*Result, error) {
	start := time.Now()
	buildID := uuid.NewString()

	req, err := req.Normalize()
	if err == nil {
		if terr := config.CheckTarget(o.cfg.Target, req.Format); terr != nil {
			err = derrors.ConfigurationError("target", terr.Error())
		}
	}
	if err != nil {
		o.recorder.IncBuildOutcome(string(OutcomeFailed))
		return &Result{Status: BuildStatusFailed, Duration: time.Since(start)}, err
	}

	kind := req.Kind()
	if kind == KindFull && filepath.IsAbs(req.Input) && filepath.Clean(req.Input) != o.cfg.SourceRoot() {
		o.recorder.IncBuildOutcome(string(OutcomeFailed))
		return &Result{Status: BuildStatusFailed, Duration: time.Since(start)},
			derrors.FilesystemError("resolve_input", fmt.Errorf("input %s is not a regular file", req.Input))
	}

	bs := o.newState(req, buildID, kind)
	defer bs.runCleanups()

	logger := slog.With(logfields.BuildID(buildID))
	logger.Info("Build started",
		slog.String("kind", string(kind)),
		logfields.Format(string(req.Format)),
		logfields.Mode(string(req.Mode)))

	runErr := RunStages(ctx, bs, o.pipeline(bs).Build())

	bs.Report.States = append([]State(nil), bs.machine.history...)
	bs.Report.Finish()
	bs.Report.DeriveOutcome()

	result := &Result{
		Status:   bs.Report.Status(),
		Report:   bs.Report,
		Output:   bs.Literal,
		Duration: time.Since(start),
	}
	o.recorder.IncBuildOutcome(string(bs.Report.Outcome))
	o.recorder.ObserveBuildDuration(result.Duration)

	if runErr != nil {
		logger.Error("Build failed", slog.String("summary", bs.Report.Summary()), logfields.Error(runErr))
		return result, runErr
	}
	logger.Info("Build finished", slog.String("summary", bs.Report.Summary()))
	return result, nil
}

func (o *Orchestrator) newState(req Request, buildID string, kind Kind) *BuildState {
	srcRoot, outRoot := o.cfg.SourceRoot(), o.cfg.OutputRoot()

	opts := transform.NewOptions(req.Format, req.Mode, req.Bundle, req.Standalone)
	if o.cfg.Target != "" {
		opts.Target = o.cfg.Target
	}
	if o.cfg.UIRuntime != "" {
		opts.UIRuntime = o.cfg.UIRuntime
	}
	opts.External = append(append([]string(nil), o.cfg.External...), req.External...)

	bs := &BuildState{
		Request:      req,
		Config:       o.cfg,
		Report:       newReport(buildID, kind),
		SrcRoot:      srcRoot,
		OutRoot:      outRoot,
		Out:          output.NewManager(outRoot),
		Classifier:   classify.New(srcRoot, outRoot),
		Invoker:      transform.NewInvoker(o.engine, opts, o.cfg.Concurrency),
		Normalizer:   specifier.New(req.Format == config.FormatCJS),
		engine:       o.engine,
		styles:       o.styles,
		declarations: o.declarations,
		binary:       o.binary,
		recorder:     o.recorder,
		machine:      newMachine(),
	}
	if kind == KindSinglePath {
		bs.Single = filepath.Clean(req.Input)
	}
	return bs
}

// pipeline assembles the stage list for the request's kind and flags.
func (o *Orchestrator) pipeline(bs *BuildState) *Pipeline {
	req := bs.Request
	p := NewPipeline()

	if bs.Report.Kind == KindLiteral {
		return p.Add(StageCompiling, stageCompileLiteral).
			Add(StageWriteOrReturn, stageWriteOrReturn)
	}

	full := bs.Report.Kind == KindFull
	auxiliary := !req.RuntimeOnly

	p.Add(StageClearing, stageClear).
		Add(StageClassifying, stageClassify).
		Add(StageCompiling, stageCompile).
		AddIf(!req.JSOnly, StageCopyingAssets, stageCopyAssets).
		Add(StageNormalizingSpecifiers, stageNormalize).
		Add(StagePatchingMetadata, stagePatchMetadata).
		AddIf(auxiliary && !req.JSOnly, StageStyles, stageStyles).
		AddIf(auxiliary && full && req.Binary, StageBinaries, stageBinaries).
		AddIf(auxiliary && full, StageEmittingDeclarations, stageDeclarations)

	for _, name := range p.Skipped {
		bs.Report.RecordStageResult(name, StageResultSkipped, nil)
	}
	return p
}
