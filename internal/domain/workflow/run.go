// Package workflow models workflow code, sandbox runs, and the
// revisioned results they produce.
package workflow

import (
	"fmt"

	"github.com/reglet-dev/flowgate/internal/domain/capability"
	"github.com/reglet-dev/flowgate/internal/domain/permissions"
)

// State is the lifecycle state of a run.
type State string

const (
	// StateConstructed is a run that has not been given an engine yet.
	StateConstructed State = "constructed"
	// StatePrimed is a run whose fresh engine has capabilities and grants injected.
	StatePrimed State = "primed"
	// StateExecuting is a run whose script is being evaluated.
	StateExecuting State = "executing"
	// StateCompleted is a run that finished successfully.
	StateCompleted State = "completed"
	// StateFailed is a run that ended with an error.
	StateFailed State = "failed"
)

var transitions = map[State][]State{
	StateConstructed: {StatePrimed, StateFailed},
	StatePrimed:      {StateExecuting, StateFailed},
	StateExecuting:   {StateCompleted, StateFailed},
}

// IsTerminal reports whether no further transition is possible.
func (s State) IsTerminal() bool {
	return s == StateCompleted || s == StateFailed
}

// CanTransitionTo reports whether next is a legal successor of s.
func (s State) CanTransitionTo(next State) bool {
	for _, allowed := range transitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// Run is one sandboxed execution of a workflow's code.
type Run struct {
	WorkflowID   string
	CodeID       string
	CodeText     string
	CodeRevision int
	Grants       permissions.Grants
	// Packages are the external packages selected for this run. Internal
	// packages come from the registry.
	Packages []capability.Package

	state State
}

// NewRun creates a run in the Constructed state.
func NewRun(code *Code, grants permissions.Grants, packages []capability.Package) *Run {
	return &Run{
		WorkflowID:   code.WorkflowID,
		CodeID:       code.ID,
		CodeText:     code.Text,
		CodeRevision: code.Revision,
		Grants:       grants,
		Packages:     packages,
		state:        StateConstructed,
	}
}

// State returns the current lifecycle state.
func (r *Run) State() State {
	if r.state == "" {
		return StateConstructed
	}
	return r.state
}

// Transition moves the run to next, rejecting illegal transitions.
func (r *Run) Transition(next State) error {
	current := r.State()
	if !current.CanTransitionTo(next) {
		return fmt.Errorf("invalid run state transition %s -> %s", current, next)
	}
	r.state = next
	return nil
}
