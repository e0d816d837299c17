package repositories

import (
	"context"

	"github.com/reglet-dev/flowgate/internal/domain/workflow"
)

// WorkflowRepository persists workflow code and its append-only results.
type WorkflowRepository interface {
	// SaveCode stores or replaces a code record.
	SaveCode(ctx context.Context, code *workflow.Code) error

	// GetCode loads workflow code by id. Returns ErrNotFound if absent.
	GetCode(ctx context.Context, codeID string) (*workflow.Code, error)

	// ListCodes returns every stored code record ordered by creation time.
	ListCodes(ctx context.Context) ([]*workflow.Code, error)

	// AppendResult assigns result.Revision = max(existing revisions for the
	// code) + 1 and stores the result atomically. The assigned revision is
	// returned and also written into result.
	AppendResult(ctx context.Context, result *workflow.Result) (int, error)

	// ListResults returns the results of a code ordered by revision.
	ListResults(ctx context.Context, codeID string) ([]*workflow.Result, error)
}
