// Package sandbox executes workflow scripts in an isolated runtime per
// run, routing every host call through permission checks.
package sandbox

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	apperrors "github.com/reglet-dev/flowgate/internal/application/errors"
	"github.com/reglet-dev/flowgate/internal/domain/capability"
	"github.com/reglet-dev/flowgate/internal/domain/values"
	"github.com/reglet-dev/flowgate/internal/domain/workflow"
	"github.com/reglet-dev/flowgate/internal/infrastructure/bridge"
	"github.com/reglet-dev/flowgate/internal/infrastructure/jsvm"
)

// Outcome is how one run ended.
type Outcome struct {
	RunID  string
	State  workflow.State
	Output string
	Err    error
}

// Cancelled reports whether the run was stopped by its context.
func (o Outcome) Cancelled() bool {
	return errors.Is(o.Err, context.Canceled) || errors.Is(o.Err, context.DeadlineExceeded)
}

// ExitCode is 0 on success, the code carried by the error if any, else 1.
func (o Outcome) ExitCode() int {
	if o.Err == nil {
		return 0
	}
	if code, ok := apperrors.ExitCodeOf(o.Err); ok {
		return code
	}
	return 1
}

// Result converts the outcome into the record persisted for codeID.
func (o Outcome) Result(codeID string, ranAt time.Time) *workflow.Result {
	res := &workflow.Result{
		ID:       values.NewResultID(),
		CodeID:   codeID,
		RanAt:    ranAt,
		Text:     o.Output,
		ExitCode: o.ExitCode(),
		Type:     workflow.ResultSuccess,
	}
	if o.Err != nil {
		res.Type = workflow.ResultFailure
		if o.Cancelled() {
			res.Type = workflow.ResultCancelled
		}
		res.Text = o.Output + "Error: " + o.Err.Error()
	}
	return res
}

// Runtime executes runs against a capability registry.
type Runtime struct {
	registry *capability.Registry
	executor *Executor
}

// NewRuntime creates a runtime. A nil executor runs async host calls
// inline.
func NewRuntime(registry *capability.Registry, executor *Executor) *Runtime {
	return &Runtime{registry: registry, executor: executor}
}

// Registry returns the registry of internal packages.
func (r *Runtime) Registry() *capability.Registry { return r.registry }

// Execute drives run from Constructed to Completed or Failed. Script
// failures are reported in the Outcome; the returned error is reserved for
// illegal state transitions.
func (r *Runtime) Execute(ctx context.Context, run *workflow.Run) (Outcome, error) {
	rc := newRunContext(run.WorkflowID, run.Grants)
	outcome := Outcome{RunID: rc.RunID()}

	logger := slog.With("run_id", rc.RunID(), "workflow_id", run.WorkflowID, "code_id", run.CodeID)
	logger.Debug("starting workflow run", "revision", run.CodeRevision)

	loop, pool, err := r.prime(run, rc)
	if err != nil {
		return r.fail(run, outcome, "", err)
	}
	defer loop.Close()
	defer pool.Close()

	if err := run.Transition(workflow.StatePrimed); err != nil {
		return outcome, err
	}
	if err := run.Transition(workflow.StateExecuting); err != nil {
		return outcome, err
	}

	runErr := r.evaluate(ctx, loop, run.CodeText)
	output := loop.Console().String()

	if runErr != nil {
		logger.Info("workflow run failed", "error", runErr)
		return r.fail(run, outcome, output, runErr)
	}

	if err := run.Transition(workflow.StateCompleted); err != nil {
		return outcome, err
	}
	outcome.State = workflow.StateCompleted
	outcome.Output = output
	logger.Debug("workflow run completed")
	return outcome, nil
}

func (r *Runtime) prime(run *workflow.Run, rc *runContext) (*jsvm.Loop, *bridge.Pool, error) {
	set, err := r.registry.Resolve(run.Packages...)
	if err != nil {
		return nil, nil, err
	}

	loop, err := jsvm.New()
	if err != nil {
		return nil, nil, err
	}
	pool := bridge.NewPool(run.Packages)

	b := &binder{
		loop:       loop,
		dispatcher: NewDispatcher(set, rc, pool),
		executor:   r.executor,
	}
	if err := b.bindAll(set.Packages()); err != nil {
		loop.Close()
		pool.Close()
		return nil, nil, err
	}
	return loop, pool, nil
}

// evaluate runs the script, awaits its completion value when it is a
// promise, then drains outstanding timers and host calls. The script
// invokes its own entry point; nothing is called on its behalf.
func (r *Runtime) evaluate(ctx context.Context, loop *jsvm.Loop, code string) error {
	v, err := loop.Run(ctx, "workflow.js", code)
	if err != nil {
		return err
	}
	if _, err := loop.Await(ctx, v); err != nil {
		return err
	}
	return loop.Drain(ctx)
}

func (r *Runtime) fail(run *workflow.Run, outcome Outcome, output string, cause error) (Outcome, error) {
	if err := run.Transition(workflow.StateFailed); err != nil {
		return outcome, err
	}
	if output != "" && !strings.HasSuffix(output, "\n") {
		output += "\n"
	}
	outcome.State = workflow.StateFailed
	outcome.Output = output
	outcome.Err = cause
	return outcome, nil
}

// String implements fmt.Stringer.
func (o Outcome) String() string {
	if o.Err != nil {
		return fmt.Sprintf("%s: %v", o.State, o.Err)
	}
	return string(o.State)
}
