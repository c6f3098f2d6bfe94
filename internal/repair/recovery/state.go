package recovery

import (
	"errors"
	"fmt"
	"time"
)

// State is a stage of a recovery run.
type State string

const (
	StateInit               State = "init"
	StateNormalParse        State = "normal_parse"
	StateRecoveryInProgress State = "recovery_in_progress"
	StatePipelineApplied    State = "pipeline_applied"
	StateFinalParse         State = "final_parse"
	StateFallback           State = "fallback"
	StateDiagnosticsRun     State = "diagnostics_run"
	StateDone               State = "done"
)

// ErrInvalidTransition is returned when an invalid state transition is attempted.
var ErrInvalidTransition = errors.New("invalid state transition")

// ValidTransitions defines allowed state transitions.
// Key is the current state, value is the list of valid next states.
var ValidTransitions = map[State][]State{
	StateInit:               {StateNormalParse},
	StateNormalParse:        {StateDiagnosticsRun, StateRecoveryInProgress, StateFallback},
	StateRecoveryInProgress: {StatePipelineApplied},
	StatePipelineApplied:    {StateFinalParse},
	StateFinalParse:         {StateDiagnosticsRun, StateFallback},
	StateFallback:           {StateDiagnosticsRun},
	StateDiagnosticsRun:     {StateDone},
}

// CanTransition checks if a transition from one state to another is valid.
func CanTransition(from, to State) bool {
	for _, target := range ValidTransitions[from] {
		if target == to {
			return true
		}
	}
	return false
}

// Transition represents a state change with metadata.
type Transition struct {
	From      State     `json:"from"`
	To        State     `json:"to"`
	Reason    string    `json:"reason"`
	Timestamp time.Time `json:"timestamp"`
}

// StateDescription returns a human-readable description of a state.
func StateDescription(s State) string {
	switch s {
	case StateInit:
		return "Initializing - run created, nothing parsed"
	case StateNormalParse:
		return "Normal parse - strict parse of the input"
	case StateRecoveryInProgress:
		return "Recovering - applying repair strategies"
	case StatePipelineApplied:
		return "Pipeline applied - all strategies ran"
	case StateFinalParse:
		return "Final parse - strict parse of the repaired buffer"
	case StateFallback:
		return "Fallback - rebuilding from fragments"
	case StateDiagnosticsRun:
		return "Diagnostics - scoring document health"
	case StateDone:
		return "Done - report assembled"
	default:
		return "Unknown state"
	}
}

// machine tracks the current state of one run and records every move.
type machine struct {
	state State
	trace []Transition
}

func newMachine() *machine {
	return &machine{state: StateInit}
}

func (m *machine) transition(to State, reason string) error {
	if !CanTransition(m.state, to) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, m.state, to)
	}
	m.trace = append(m.trace, Transition{From: m.state, To: to, Reason: reason, Timestamp: time.Now()})
	m.state = to
	return nil
}
