package workflow

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRun_Transitions(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		steps []State
		ok    bool
	}{
		{name: "happy path", steps: []State{StatePrimed, StateExecuting, StateCompleted}, ok: true},
		{name: "fails while executing", steps: []State{StatePrimed, StateExecuting, StateFailed}, ok: true},
		{name: "fails while priming", steps: []State{StateFailed}, ok: true},
		{name: "cannot skip priming", steps: []State{StateExecuting}},
		{name: "cannot complete before executing", steps: []State{StatePrimed, StateCompleted}},
		{name: "terminal is final", steps: []State{StatePrimed, StateExecuting, StateCompleted, StateFailed}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			run := NewRun(&Code{ID: "c1", WorkflowID: "w1", Text: "1"}, nil, nil)
			require.Equal(t, StateConstructed, run.State())

			var err error
			for _, s := range tt.steps {
				if err = run.Transition(s); err != nil {
					break
				}
			}
			if tt.ok {
				assert.NoError(t, err)
				assert.Equal(t, tt.steps[len(tt.steps)-1], run.State())
			} else {
				assert.Error(t, err)
			}
		})
	}
}

func TestState_IsTerminal(t *testing.T) {
	t.Parallel()

	assert.True(t, StateCompleted.IsTerminal())
	assert.True(t, StateFailed.IsTerminal())
	assert.False(t, StateExecuting.IsTerminal())
}

func TestParseResultType(t *testing.T) {
	t.Parallel()

	rt, err := ParseResultType("failure")
	require.NoError(t, err)
	assert.Equal(t, ResultFailure, rt)

	rt, err = ParseResultType("canceled")
	require.NoError(t, err)
	assert.Equal(t, ResultCancelled, rt)

	_, err = ParseResultType("meh")
	assert.Error(t, err)
}
