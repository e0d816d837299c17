package sandbox

import (
	apperrors "github.com/reglet-dev/flowgate/internal/application/errors"
	"github.com/reglet-dev/flowgate/internal/domain/capability"
	"github.com/reglet-dev/flowgate/internal/domain/permissions"
	"github.com/reglet-dev/flowgate/internal/domain/values"
)

// runContext is the capability.RunContext of one run. It is read-only
// after construction.
type runContext struct {
	runID      values.RunID
	workflowID string
	grants     permissions.Grants
}

var _ capability.RunContext = (*runContext)(nil)

func newRunContext(workflowID string, grants permissions.Grants) *runContext {
	return &runContext{
		runID:      values.NewRunID(),
		workflowID: workflowID,
		grants:     grants,
	}
}

func (rc *runContext) RunID() string      { return rc.runID.String() }
func (rc *runContext) WorkflowID() string { return rc.workflowID }

// Authorize checks required against the grant for functionID and reports
// a failure as *apperrors.PermissionDeniedError.
func (rc *runContext) Authorize(functionID string, required permissions.Set) error {
	if err := rc.grants.Authorize(functionID, required); err != nil {
		return apperrors.NewPermissionDeniedError(functionID, err)
	}
	return nil
}
