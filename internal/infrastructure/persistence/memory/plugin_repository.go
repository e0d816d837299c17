package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/reglet-dev/flowgate/internal/domain/repositories"
	"github.com/reglet-dev/flowgate/internal/domain/values"
)

// Ensure interface compliance
var _ repositories.PluginRepository = (*PluginRepository)(nil)

// PluginRepository is an in-memory implementation of PluginRepository.
type PluginRepository struct {
	rows map[values.PluginPackageID]*repositories.InstalledPlugin
	mu   sync.RWMutex
}

// NewPluginRepository creates a new in-memory plugin repository.
func NewPluginRepository() *PluginRepository {
	return &PluginRepository{
		rows: make(map[values.PluginPackageID]*repositories.InstalledPlugin),
	}
}

// Create inserts a row, failing if the id is already present.
func (r *PluginRepository) Create(_ context.Context, plugin *repositories.InstalledPlugin) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.rows[plugin.ID]; ok {
		return fmt.Errorf("plugin %s: %w", plugin.ID, repositories.ErrAlreadyExists)
	}
	row := *plugin
	r.rows[plugin.ID] = &row
	return nil
}

// Get loads a row by id.
func (r *PluginRepository) Get(_ context.Context, id values.PluginPackageID) (*repositories.InstalledPlugin, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	row, ok := r.rows[id]
	if !ok {
		return nil, fmt.Errorf("plugin %s: %w", id, repositories.ErrNotFound)
	}
	c := *row
	return &c, nil
}

// List returns all rows ordered by id.
func (r *PluginRepository) List(_ context.Context) ([]*repositories.InstalledPlugin, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]*repositories.InstalledPlugin, 0, len(r.rows))
	for _, row := range r.rows {
		c := *row
		out = append(out, &c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID.String() < out[j].ID.String() })
	return out, nil
}

// SetStatus updates the install status of a row.
func (r *PluginRepository) SetStatus(_ context.Context, id values.PluginPackageID, status repositories.PluginStatus) error {
	return r.update(id, func(row *repositories.InstalledPlugin) { row.Status = status })
}

// SetMissing sets the reconciliation flag of a row.
func (r *PluginRepository) SetMissing(_ context.Context, id values.PluginPackageID, missing bool) error {
	return r.update(id, func(row *repositories.InstalledPlugin) { row.Missing = missing })
}

// Delete removes a row.
func (r *PluginRepository) Delete(_ context.Context, id values.PluginPackageID) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.rows[id]; !ok {
		return fmt.Errorf("plugin %s: %w", id, repositories.ErrNotFound)
	}
	delete(r.rows, id)
	return nil
}

func (r *PluginRepository) update(id values.PluginPackageID, fn func(*repositories.InstalledPlugin)) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	row, ok := r.rows[id]
	if !ok {
		return fmt.Errorf("plugin %s: %w", id, repositories.ErrNotFound)
	}
	fn(row)
	return nil
}
