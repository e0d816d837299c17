package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/reglet-dev/flowgate/internal/domain/permissions"
	"github.com/reglet-dev/flowgate/internal/domain/repositories"
	"github.com/reglet-dev/flowgate/internal/domain/values"
	"github.com/reglet-dev/flowgate/internal/domain/workflow"
)

// Ensure interface compliance
var _ repositories.WorkflowRepository = (*WorkflowRepository)(nil)

// WorkflowRepository stores workflow code and results in SQLite.
type WorkflowRepository struct {
	db *sql.DB
}

// NewWorkflowRepository creates a repository over an opened database.
func NewWorkflowRepository(db *sql.DB) *WorkflowRepository {
	return &WorkflowRepository{db: db}
}

// SaveCode stores or replaces a code record.
func (r *WorkflowRepository) SaveCode(ctx context.Context, code *workflow.Code) error {
	if code.ID == "" {
		return fmt.Errorf("code id is required")
	}

	grants, err := json.Marshal(code.Grants)
	if err != nil {
		return fmt.Errorf("failed to encode grants: %w", err)
	}
	plugins, err := json.Marshal(code.Plugins)
	if err != nil {
		return fmt.Errorf("failed to encode plugins: %w", err)
	}

	_, err = r.db.ExecContext(ctx, `
		INSERT INTO workflow_codes (code_id, workflow_id, code_text, code_revision, grants_json, plugins_json, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(code_id) DO UPDATE SET
			workflow_id = excluded.workflow_id,
			code_text = excluded.code_text,
			code_revision = excluded.code_revision,
			grants_json = excluded.grants_json,
			plugins_json = excluded.plugins_json`,
		code.ID, code.WorkflowID, code.Text, code.Revision, string(grants), string(plugins), formatTime(code.CreatedAt))
	if err != nil {
		return fmt.Errorf("failed to save workflow code %s: %w", code.ID, err)
	}
	return nil
}

// GetCode loads workflow code by id.
func (r *WorkflowRepository) GetCode(ctx context.Context, codeID string) (*workflow.Code, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT code_id, workflow_id, code_text, code_revision, grants_json, plugins_json, created_at
		FROM workflow_codes WHERE code_id = ?`, codeID)

	code, err := scanCode(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("workflow code %s: %w", codeID, repositories.ErrNotFound)
	}
	return code, err
}

// ListCodes returns every stored code ordered by creation time.
func (r *WorkflowRepository) ListCodes(ctx context.Context) ([]*workflow.Code, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT code_id, workflow_id, code_text, code_revision, grants_json, plugins_json, created_at
		FROM workflow_codes ORDER BY created_at, code_id`)
	if err != nil {
		return nil, fmt.Errorf("failed to list workflow codes: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var codes []*workflow.Code
	for rows.Next() {
		code, err := scanCode(rows)
		if err != nil {
			return nil, err
		}
		codes = append(codes, code)
	}
	return codes, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanCode(s scanner) (*workflow.Code, error) {
	var (
		code               workflow.Code
		grantsJSON, plugin string
		createdAt          string
	)
	if err := s.Scan(&code.ID, &code.WorkflowID, &code.Text, &code.Revision, &grantsJSON, &plugin, &createdAt); err != nil {
		return nil, err
	}

	var grants permissions.Grants
	if err := json.Unmarshal([]byte(grantsJSON), &grants); err != nil {
		return nil, fmt.Errorf("failed to decode grants of %s: %w", code.ID, err)
	}
	if err := json.Unmarshal([]byte(plugin), &code.Plugins); err != nil {
		return nil, fmt.Errorf("failed to decode plugins of %s: %w", code.ID, err)
	}
	code.Grants = grants
	code.CreatedAt = parseTime(createdAt)
	return &code, nil
}

// AppendResult inserts result with revision max+1 in a single statement,
// so concurrent appends can never reuse a revision.
func (r *WorkflowRepository) AppendResult(ctx context.Context, result *workflow.Result) (int, error) {
	if result.ID.IsZero() {
		result.ID = values.NewResultID()
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO workflow_results (id, code_id, revision, result_text, result_type, exit_code, ran_at)
		SELECT ?, ?, COALESCE(MAX(revision), 0) + 1, ?, ?, ?, ?
		FROM workflow_results WHERE code_id = ?`,
		result.ID.String(), result.CodeID, result.Text, string(result.Type), result.ExitCode,
		formatTime(result.RanAt), result.CodeID)
	if err != nil {
		return 0, fmt.Errorf("failed to append result for %s: %w", result.CodeID, err)
	}

	var revision int
	if err := tx.QueryRowContext(ctx, `SELECT revision FROM workflow_results WHERE id = ?`,
		result.ID.String()).Scan(&revision); err != nil {
		return 0, fmt.Errorf("failed to read assigned revision: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit result: %w", err)
	}

	result.Revision = revision
	return revision, nil
}

// ListResults returns the results of a code ordered by revision.
func (r *WorkflowRepository) ListResults(ctx context.Context, codeID string) ([]*workflow.Result, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, code_id, revision, result_text, result_type, exit_code, ran_at
		FROM workflow_results WHERE code_id = ? ORDER BY revision`, codeID)
	if err != nil {
		return nil, fmt.Errorf("failed to list results: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var results []*workflow.Result
	for rows.Next() {
		var (
			res         workflow.Result
			id, rt, ran string
		)
		if err := rows.Scan(&id, &res.CodeID, &res.Revision, &res.Text, &rt, &res.ExitCode, &ran); err != nil {
			return nil, err
		}
		parsed, err := values.ParseResultID(id)
		if err != nil {
			return nil, err
		}
		res.ID = parsed
		res.Type = workflow.ResultType(rt)
		res.RanAt = parseTime(ran)
		results = append(results, &res)
	}
	return results, rows.Err()
}
