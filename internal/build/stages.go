package build

import (
	"context"
	"fmt"
)

// Stage is a discrete unit of work in a build.
type Stage func(ctx context.Context, bs *BuildState) error

// StageName is a strongly-typed identifier for a build stage. Stage names
// double as orchestrator states.
type StageName string

// Canonical stage names.
const (
	StageClearing              StageName = "clearing"
	StageClassifying           StageName = "classifying"
	StageCompiling             StageName = "compiling"
	StageCopyingAssets         StageName = "copying_assets"
	StageNormalizingSpecifiers StageName = "normalizing_specifiers"
	StagePatchingMetadata      StageName = "patching_metadata"
	StageStyles                StageName = "styles"
	StageBinaries              StageName = "binaries"
	StageEmittingDeclarations  StageName = "emitting_declarations"
	StageWriteOrReturn         StageName = "write_or_return"
)

// Optional reports whether failures of the stage are recorded as warnings
// instead of aborting the build.
func (n StageName) Optional() bool {
	switch n {
	case StageStyles, StageBinaries, StageEmittingDeclarations:
		return true
	default:
		return false
	}
}

// StageErrorKind classifies the outcome of a stage.
type StageErrorKind string

const (
	StageErrorFatal    StageErrorKind = "fatal"    // Build must abort.
	StageErrorWarning  StageErrorKind = "warning"  // Non-fatal; record and continue.
	StageErrorCanceled StageErrorKind = "canceled" // Context cancellation.
)

// StageError is a structured error carrying kind and underlying cause.
type StageError struct {
	Kind  StageErrorKind
	Stage StageName
	Err   error
}

func (e *StageError) Error() string { return fmt.Sprintf("%s stage %s: %v", e.Kind, e.Stage, e.Err) }
func (e *StageError) Unwrap() error { return e.Err }

// StageResult captures the high-level outcome of a stage.
type StageResult string

const (
	StageResultSuccess  StageResult = "success"
	StageResultWarning  StageResult = "warning"
	StageResultFatal    StageResult = "fatal"
	StageResultCanceled StageResult = "canceled"
	StageResultSkipped  StageResult = "skipped"
)

// NewFatalStageError creates a new fatal stage error.
func NewFatalStageError(stage StageName, err error) *StageError {
	return &StageError{Kind: StageErrorFatal, Stage: stage, Err: err}
}

func NewWarnStageError(stage StageName, err error) *StageError {
	return &StageError{Kind: StageErrorWarning, Stage: stage, Err: err}
}

func NewCanceledStageError(stage StageName, err error) *StageError {
	return &StageError{Kind: StageErrorCanceled, Stage: stage, Err: err}
}

// StageDef pairs a stage name with its executing function.
type StageDef struct {
	Name StageName
	Fn   Stage
}

// Pipeline is a fluent builder for ordered stage definitions. Stages left out
// through AddIf are remembered so the report can mark them skipped.
type Pipeline struct {
	Defs    []StageDef
	Skipped []StageName
}

// NewPipeline creates an empty pipeline.
func NewPipeline() *Pipeline { return &Pipeline{Defs: make([]StageDef, 0, 10)} }

// Add appends a stage unconditionally.
func (p *Pipeline) Add(name StageName, fn Stage) *Pipeline {
	p.Defs = append(p.Defs, StageDef{Name: name, Fn: fn})
	return p
}

// AddIf appends a stage only if cond is true.
func (p *Pipeline) AddIf(cond bool, name StageName, fn Stage) *Pipeline {
	if cond {
		return p.Add(name, fn)
	}
	p.Skipped = append(p.Skipped, name)
	return p
}

// Build returns a copy of the stage definitions slice.
func (p *Pipeline) Build() []StageDef {
	out := make([]StageDef, len(p.Defs))
	copy(out, p.Defs)
	return out
}
