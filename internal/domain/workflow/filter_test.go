package workflow

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResultFilter(t *testing.T) {
	t.Parallel()

	results := []*Result{
		{CodeID: "c1", Revision: 1, Type: ResultSuccess, Text: "ok"},
		{CodeID: "c1", Revision: 2, Type: ResultFailure, ExitCode: 3, Text: "Error: boom"},
		{CodeID: "c1", Revision: 3, Type: ResultCancelled, ExitCode: 1},
	}

	tests := []struct {
		name   string
		source string
		want   []int
	}{
		{name: "empty matches all", source: "", want: []int{1, 2, 3}},
		{name: "by type", source: `result_type == "Failure"`, want: []int{2}},
		{name: "by revision", source: "revision >= 2", want: []int{2, 3}},
		{name: "text contains", source: `text contains "boom"`, want: []int{2}},
		{name: "exit code", source: "exit_code != 0 && result_type != \"Cancelled\"", want: []int{2}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f, err := CompileResultFilter(tt.source)
			require.NoError(t, err)

			kept, err := f.Apply(results)
			require.NoError(t, err)

			revs := make([]int, len(kept))
			for i, r := range kept {
				revs[i] = r.Revision
			}
			assert.Equal(t, tt.want, revs)
		})
	}
}

func TestCompileResultFilter_Invalid(t *testing.T) {
	t.Parallel()

	_, err := CompileResultFilter("revision +")
	assert.Error(t, err)

	_, err = CompileResultFilter(`"not a bool"`)
	assert.Error(t, err)

	_, err = CompileResultFilter("unknown_field == 1")
	assert.Error(t, err)
}
