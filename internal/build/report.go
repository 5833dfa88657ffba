package build

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"git.home.luguber.info/inful/distbuilder/internal/classify"
	"git.home.luguber.info/inful/distbuilder/internal/metrics"
)

// Outcome is the typed enumeration of final build result states.
type Outcome string

const (
	OutcomeSuccess  Outcome = "success"
	OutcomeWarning  Outcome = "warning"
	OutcomeFailed   Outcome = "failed"
	OutcomeCanceled Outcome = "canceled"
)

// Report captures counters, stage results and issues of one build.
type Report struct {
	BuildID string
	Kind    Kind
	Start   time.Time
	End     time.Time

	Classified          map[classify.Dialect]int
	Compiled            int // emitted artifacts with a source file
	Chunks              int // engine-generated shared chunks
	AssetsCopied        int
	SpecifiersRewritten int
	StylesCompiled      int
	Declarations        int // declaration files classified (never compiled)
	DeclarationsEmitted int // declaration files present after the emitter ran

	Errors   []error // fatal errors causing build abortion
	Warnings []error // non-fatal issues

	StageDurations map[StageName]time.Duration
	StageResults   map[StageName]StageResult
	States         []State
	Outcome        Outcome

	mu sync.Mutex
}

func newReport(id string, kind Kind) *Report {
	return &Report{
		BuildID:        id,
		Kind:           kind,
		Start:          time.Now(),
		Classified:     make(map[classify.Dialect]int),
		StageDurations: make(map[StageName]time.Duration),
		StageResults:   make(map[StageName]StageResult),
	}
}

// AddWarning records a non-fatal issue. Safe for concurrent use.
func (r *Report) AddWarning(err error) {
	if err == nil {
		return
	}
	r.mu.Lock()
	r.Warnings = append(r.Warnings, err)
	r.mu.Unlock()
}

// AddError records a fatal issue.
func (r *Report) AddError(err error) {
	if err == nil {
		return
	}
	r.mu.Lock()
	r.Errors = append(r.Errors, err)
	r.mu.Unlock()
}

// RecordStageResult stores the stage result and emits it to the recorder.
func (r *Report) RecordStageResult(stage StageName, res StageResult, recorder metrics.Recorder) {
	r.mu.Lock()
	r.StageResults[stage] = res
	r.mu.Unlock()
	if recorder == nil {
		return
	}
	switch res {
	case StageResultSuccess:
		recorder.IncStageResult(string(stage), metrics.ResultSuccess)
	case StageResultWarning:
		recorder.IncStageResult(string(stage), metrics.ResultWarning)
	case StageResultFatal:
		recorder.IncStageResult(string(stage), metrics.ResultFatal)
	case StageResultCanceled:
		recorder.IncStageResult(string(stage), metrics.ResultCanceled)
	case StageResultSkipped:
		recorder.IncStageResult(string(stage), metrics.ResultSkipped)
	}
}

// Finish sets the end time of the report.
func (r *Report) Finish() { r.End = time.Now() }

// DeriveOutcome sets Outcome from the recorded errors and warnings.
func (r *Report) DeriveOutcome() {
	if len(r.Errors) > 0 {
		for _, e := range r.Errors {
			var se *StageError
			if errors.As(e, &se) && se.Kind == StageErrorCanceled {
				r.Outcome = OutcomeCanceled
				return
			}
		}
		r.Outcome = OutcomeFailed
		return
	}
	if len(r.Warnings) > 0 {
		r.Outcome = OutcomeWarning
		return
	}
	r.Outcome = OutcomeSuccess
}

// Status maps the outcome onto a BuildStatus.
func (r *Report) Status() BuildStatus {
	switch r.Outcome {
	case OutcomeSuccess:
		return BuildStatusSuccess
	case OutcomeWarning:
		return BuildStatusPartial
	case OutcomeCanceled:
		return BuildStatusCancelled
	default:
		return BuildStatusFailed
	}
}

// Summary returns a human-readable single-line summary.
func (r *Report) Summary() string {
	dur := r.End.Sub(r.Start)
	return fmt.Sprintf("kind=%s compiled=%d assets=%d rewritten=%d declarations=%d/%d duration=%s warnings=%d errors=%d outcome=%s",
		r.Kind, r.Compiled, r.AssetsCopied, r.SpecifiersRewritten, r.Declarations, r.DeclarationsEmitted,
		dur.Truncate(time.Millisecond), len(r.Warnings), len(r.Errors), r.Outcome)
}
