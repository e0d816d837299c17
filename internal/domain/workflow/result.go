package workflow

import (
	"fmt"
	"strings"
	"time"

	"github.com/reglet-dev/flowgate/internal/domain/permissions"
	"github.com/reglet-dev/flowgate/internal/domain/values"
)

// ResultType classifies how a run ended.
type ResultType string

const (
	// ResultSuccess is a completed run.
	ResultSuccess ResultType = "Success"
	// ResultFailure is a run that ended with an uncaught error.
	ResultFailure ResultType = "Failure"
	// ResultCancelled is a run interrupted by its caller's context.
	ResultCancelled ResultType = "Cancelled"
)

// ParseResultType parses a result type name (case-insensitive).
func ParseResultType(s string) (ResultType, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "success":
		return ResultSuccess, nil
	case "failure":
		return ResultFailure, nil
	case "cancelled", "canceled":
		return ResultCancelled, nil
	default:
		return "", fmt.Errorf("unknown result type %q", s)
	}
}

// Result is the single record every run produces. Results are append-only
// and their revision strictly increases per code id.
type Result struct {
	ID       values.ResultID `json:"id" yaml:"id"`
	CodeID   string          `json:"code_id" yaml:"code_id"`
	Text     string          `json:"text" yaml:"text"`
	RanAt    time.Time       `json:"ran_at" yaml:"ran_at"`
	Type     ResultType      `json:"result_type" yaml:"result_type"`
	ExitCode int             `json:"exit_code" yaml:"exit_code"`
	Revision int             `json:"revision" yaml:"revision"`
}

// Succeeded reports whether the run completed.
func (r *Result) Succeeded() bool {
	return r.Type == ResultSuccess
}

// Code is one stored revision of a workflow script together with the
// grants and external packages it runs with.
type Code struct {
	ID         string             `json:"code_id" yaml:"code_id"`
	WorkflowID string             `json:"workflow_id" yaml:"workflow_id"`
	Text       string             `json:"code" yaml:"code"`
	Revision   int                `json:"code_revision" yaml:"code_revision"`
	Grants     permissions.Grants `json:"grants,omitempty" yaml:"grants,omitempty"`
	// Plugins selects external packages by namespace ("acme.tools") or
	// plugin package id ("acme/tools/1.0.0"). "*" selects all.
	Plugins   []string  `json:"plugins,omitempty" yaml:"plugins,omitempty"`
	CreatedAt time.Time `json:"created_at" yaml:"created_at"`
}
