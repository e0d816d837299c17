package workflow

import (
	"fmt"
	"time"

	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"
)

// ResultEnv defines the variables available during result filter evaluation.
type ResultEnv struct {
	ID         string    `expr:"id"`
	CodeID     string    `expr:"code_id"`
	Revision   int       `expr:"revision"`
	ResultType string    `expr:"result_type"`
	ExitCode   int       `expr:"exit_code"`
	Text       string    `expr:"text"`
	RanAt      time.Time `expr:"ran_at"`
}

// NewResultEnv builds the filter environment for r.
func NewResultEnv(r *Result) ResultEnv {
	return ResultEnv{
		ID:         r.ID.String(),
		CodeID:     r.CodeID,
		Revision:   r.Revision,
		ResultType: string(r.Type),
		ExitCode:   r.ExitCode,
		Text:       r.Text,
		RanAt:      r.RanAt,
	}
}

// ResultFilter selects results with a compiled boolean expression, e.g.
// `result_type == "Failure" && revision > 3`.
type ResultFilter struct {
	program *vm.Program
}

// CompileResultFilter compiles source once. An empty source matches everything.
func CompileResultFilter(source string) (*ResultFilter, error) {
	if source == "" {
		return &ResultFilter{}, nil
	}
	program, err := expr.Compile(source, expr.Env(ResultEnv{}), expr.AsBool())
	if err != nil {
		return nil, fmt.Errorf("invalid filter expression: %w", err)
	}
	return &ResultFilter{program: program}, nil
}

// Matches reports whether r satisfies the filter.
func (f *ResultFilter) Matches(r *Result) (bool, error) {
	if f == nil || f.program == nil {
		return true, nil
	}
	out, err := expr.Run(f.program, NewResultEnv(r))
	if err != nil {
		return false, fmt.Errorf("evaluate filter for revision %d: %w", r.Revision, err)
	}
	matched, ok := out.(bool)
	return ok && matched, nil
}

// Apply returns the results that satisfy the filter, preserving order.
func (f *ResultFilter) Apply(results []*Result) ([]*Result, error) {
	if f == nil || f.program == nil {
		return results, nil
	}
	kept := make([]*Result, 0, len(results))
	for _, r := range results {
		ok, err := f.Matches(r)
		if err != nil {
			return nil, err
		}
		if ok {
			kept = append(kept, r)
		}
	}
	return kept, nil
}
