package process

import "fmt"

// Phase is the lifecycle position of a Handle.
type Phase int

const (
	// PhaseStarting indicates the child has not been started yet.
	PhaseStarting Phase = iota
	// PhaseRunning indicates the child is alive and accepting input.
	PhaseRunning
	// PhaseExited indicates the child exited on its own with an exit code.
	PhaseExited
	// PhaseCrashed indicates the child died from a signal or could not be waited on.
	PhaseCrashed
)

// String returns a human-readable string representation of the phase.
func (p Phase) String() string {
	switch p {
	case PhaseStarting:
		return "starting"
	case PhaseRunning:
		return "running"
	case PhaseExited:
		return "exited"
	case PhaseCrashed:
		return "crashed"
	default:
		return "unknown"
	}
}

// State is a Phase plus the outcome details of a terminal phase.
type State struct {
	Phase    Phase
	ExitCode int   // valid when Phase == PhaseExited
	Err      error // set when Phase == PhaseCrashed
}

// Running is the state of a live child.
func Running() State { return State{Phase: PhaseRunning} }

// Exited is the state of a child that exited with code.
func Exited(code int) State { return State{Phase: PhaseExited, ExitCode: code} }

// Crashed is the state of a child that ended abnormally.
func Crashed(err error) State { return State{Phase: PhaseCrashed, Err: err} }

// IsTerminal returns true for Exited and Crashed.
func (s State) IsTerminal() bool {
	return s.Phase == PhaseExited || s.Phase == PhaseCrashed
}

// String returns a human-readable string representation of the state.
func (s State) String() string {
	switch s.Phase {
	case PhaseExited:
		return fmt.Sprintf("exited(%d)", s.ExitCode)
	case PhaseCrashed:
		return fmt.Sprintf("crashed(%v)", s.Err)
	default:
		return s.Phase.String()
	}
}
