package build

import (
	"fmt"
	"log/slog"

	derrors "git.home.luguber.info/inful/distbuilder/internal/errors"
	"git.home.luguber.info/inful/distbuilder/internal/logfields"
)

// State is a node of the orchestrator state machine.
type State string

const (
	StateIdle   State = "idle"
	StateDone   State = "done"
	StateFailed State = "failed"
)

// stateOf maps a stage to the state the machine is in while it runs.
func stateOf(n StageName) State { return State(n) }

// transitions lists legal successors per state. Failed is reachable from
// every state and is not listed.
var transitions = map[State][]State{
	StateIdle: {
		stateOf(StageClearing),
		stateOf(StageCompiling),
	},
	stateOf(StageClearing): {
		stateOf(StageClassifying),
	},
	stateOf(StageClassifying): {
		stateOf(StageCompiling),
	},
	stateOf(StageCompiling): {
		stateOf(StageCopyingAssets),
		stateOf(StageNormalizingSpecifiers),
		stateOf(StageWriteOrReturn),
	},
	stateOf(StageCopyingAssets): {
		stateOf(StageNormalizingSpecifiers),
	},
	stateOf(StageNormalizingSpecifiers): {
		stateOf(StagePatchingMetadata),
	},
	stateOf(StagePatchingMetadata): {
		stateOf(StageStyles),
		stateOf(StageBinaries),
		stateOf(StageEmittingDeclarations),
		StateDone,
	},
	stateOf(StageStyles): {
		stateOf(StageBinaries),
		stateOf(StageEmittingDeclarations),
		StateDone,
	},
	stateOf(StageBinaries): {
		stateOf(StageEmittingDeclarations),
		StateDone,
	},
	stateOf(StageEmittingDeclarations): {
		StateDone,
	},
	stateOf(StageWriteOrReturn): {
		StateDone,
	},
}

// machine tracks the current state and the path taken through it.
type machine struct {
	current State
	history []State
}

func newMachine() *machine {
	return &machine{current: StateIdle, history: []State{StateIdle}}
}

// transition moves to next, rejecting edges the machine does not define.
func (m *machine) transition(next State) error {
	if next != StateFailed && !m.allowed(next) {
		return derrors.InternalError("illegal state transition", fmt.Errorf("%s -> %s", m.current, next))
	}
	slog.Debug("Build state transition", logfields.State(string(next)), slog.String("from", string(m.current)))
	m.current = next
	m.history = append(m.history, next)
	return nil
}

func (m *machine) allowed(next State) bool {
	for _, s := range transitions[m.current] {
		if s == next {
			return true
		}
	}
	return false
}
