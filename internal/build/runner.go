package build

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"git.home.luguber.info/inful/distbuilder/internal/logfields"
)

// errStageSkipped lets a stage report at runtime that it had nothing to do.
var errStageSkipped = errors.New("stage skipped")

// StageOutcome normalized result of stage execution.
type StageOutcome struct {
	Stage  StageName
	Error  *StageError
	Result StageResult
	Abort  bool
}

// ClassifyStageResult converts a raw error from a stage into a StageOutcome.
// Errors of optional stages become warnings, everything else is fatal.
func ClassifyStageResult(stage StageName, err error) StageOutcome {
	if err == nil {
		return StageOutcome{Stage: stage, Result: StageResultSuccess}
	}
	if errors.Is(err, errStageSkipped) {
		return StageOutcome{Stage: stage, Result: StageResultSkipped}
	}

	var se *StageError
	if !errors.As(err, &se) {
		switch {
		case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
			se = NewCanceledStageError(stage, err)
		case stage.Optional():
			se = NewWarnStageError(stage, err)
		default:
			se = NewFatalStageError(stage, err)
		}
	}

	switch se.Kind {
	case StageErrorWarning:
		return StageOutcome{Stage: stage, Error: se, Result: StageResultWarning}
	case StageErrorCanceled:
		return StageOutcome{Stage: stage, Error: se, Result: StageResultCanceled, Abort: true}
	default:
		return StageOutcome{Stage: stage, Error: se, Result: StageResultFatal, Abort: true}
	}
}

// RunStages executes stages in order, driving the state machine, recording
// timing and stopping on the first fatal error.
func RunStages(ctx context.Context, bs *BuildState, stages []StageDef) error {
	for _, st := range stages {
		select {
		case <-ctx.Done():
			se := NewCanceledStageError(st.Name, ctx.Err())
			bs.Report.AddError(se)
			bs.Report.RecordStageResult(st.Name, StageResultCanceled, bs.recorder)
			_ = bs.machine.transition(StateFailed)
			return se
		default:
		}

		if err := bs.machine.transition(stateOf(st.Name)); err != nil {
			bs.Report.AddError(err)
			_ = bs.machine.transition(StateFailed)
			return err
		}

		logger := slog.With(logfields.BuildID(bs.Report.BuildID), logfields.Stage(string(st.Name)))
		logger.Debug("Stage started")

		t0 := time.Now()
		err := st.Fn(ctx, bs)
		dur := time.Since(t0)

		bs.Report.StageDurations[st.Name] = dur
		bs.recorder.ObserveStageDuration(string(st.Name), dur)

		out := ClassifyStageResult(st.Name, err)
		bs.Report.RecordStageResult(st.Name, out.Result, bs.recorder)

		switch out.Result {
		case StageResultSuccess:
			logger.Debug("Stage succeeded", logfields.DurationMS(float64(dur.Milliseconds())))
		case StageResultSkipped:
			logger.Debug("Stage skipped")
		case StageResultWarning:
			bs.Report.AddWarning(out.Error)
			logger.Warn("Stage failed; continuing", logfields.Error(out.Error.Err))
		default:
			bs.Report.AddError(out.Error)
			logger.Error("Stage failed", logfields.Error(out.Error.Err), logfields.DurationMS(float64(dur.Milliseconds())))
		}

		if out.Abort {
			_ = bs.machine.transition(StateFailed)
			return out.Error
		}
	}

	return bs.machine.transition(StateDone)
}
