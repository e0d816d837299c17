// Package memory provides in-memory implementations of domain repositories.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/reglet-dev/flowgate/internal/domain/repositories"
	"github.com/reglet-dev/flowgate/internal/domain/workflow"
)

// Ensure interface compliance
var _ repositories.WorkflowRepository = (*WorkflowRepository)(nil)

// WorkflowRepository is an in-memory implementation of WorkflowRepository.
// Useful for testing and ephemeral runs.
type WorkflowRepository struct {
	codes   map[string]*workflow.Code
	results map[string][]*workflow.Result
	mu      sync.RWMutex
}

// NewWorkflowRepository creates a new in-memory repository.
func NewWorkflowRepository() *WorkflowRepository {
	return &WorkflowRepository{
		codes:   make(map[string]*workflow.Code),
		results: make(map[string][]*workflow.Result),
	}
}

// SaveCode stores or replaces a code record.
func (r *WorkflowRepository) SaveCode(_ context.Context, code *workflow.Code) error {
	if code.ID == "" {
		return fmt.Errorf("code id is required")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	stored := *code
	r.codes[code.ID] = &stored
	return nil
}

// GetCode loads workflow code by id.
func (r *WorkflowRepository) GetCode(_ context.Context, codeID string) (*workflow.Code, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	code, ok := r.codes[codeID]
	if !ok {
		return nil, fmt.Errorf("workflow code %s: %w", codeID, repositories.ErrNotFound)
	}
	c := *code
	return &c, nil
}

// ListCodes returns every stored code ordered by creation time.
func (r *WorkflowRepository) ListCodes(_ context.Context) ([]*workflow.Code, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	codes := make([]*workflow.Code, 0, len(r.codes))
	for _, code := range r.codes {
		c := *code
		codes = append(codes, &c)
	}
	sort.Slice(codes, func(i, j int) bool {
		if codes[i].CreatedAt.Equal(codes[j].CreatedAt) {
			return codes[i].ID < codes[j].ID
		}
		return codes[i].CreatedAt.Before(codes[j].CreatedAt)
	})
	return codes, nil
}

// AppendResult stores result with the next revision for its code.
// The write lock makes the max+1 computation and the insert atomic.
func (r *WorkflowRepository) AppendResult(_ context.Context, result *workflow.Result) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	existing := r.results[result.CodeID]
	next := 1
	for _, prev := range existing {
		if prev.Revision >= next {
			next = prev.Revision + 1
		}
	}

	result.Revision = next
	stored := *result
	r.results[result.CodeID] = append(existing, &stored)
	return next, nil
}

// ListResults returns the results of a code ordered by revision.
func (r *WorkflowRepository) ListResults(_ context.Context, codeID string) ([]*workflow.Result, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	src := r.results[codeID]
	out := make([]*workflow.Result, 0, len(src))
	for _, res := range src {
		c := *res
		out = append(out, &c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Revision < out[j].Revision })
	return out, nil
}
