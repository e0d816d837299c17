package repositories

import (
	"context"
	"time"

	"github.com/reglet-dev/flowgate/internal/domain/values"
)

// PluginStatus is the install state of an external plugin row.
type PluginStatus string

const (
	// PluginStatusPending marks a row whose files are still being written.
	PluginStatusPending PluginStatus = "pending"
	// PluginStatusInstalled marks a fully installed plugin.
	PluginStatusInstalled PluginStatus = "installed"
)

// InstalledPlugin mirrors one installed bundle directory.
type InstalledPlugin struct {
	ID          values.PluginPackageID `json:"plugin_package_id" yaml:"plugin_package_id"`
	InstallDir  string                 `json:"install_dir" yaml:"install_dir"`
	Status      PluginStatus           `json:"status" yaml:"status"`
	Missing     bool                   `json:"missing" yaml:"missing"`
	InstalledAt time.Time              `json:"installed_at" yaml:"installed_at"`
}

// Loadable reports whether the plugin should be exposed to runs.
func (p *InstalledPlugin) Loadable() bool {
	return p.Status == PluginStatusInstalled && !p.Missing
}

// PluginRepository persists installed external plugin rows keyed by
// plugin package id.
type PluginRepository interface {
	// Create inserts a row. Returns ErrAlreadyExists if the id is taken.
	Create(ctx context.Context, plugin *InstalledPlugin) error

	// Get loads a row. Returns ErrNotFound if absent.
	Get(ctx context.Context, id values.PluginPackageID) (*InstalledPlugin, error)

	// List returns all rows ordered by id.
	List(ctx context.Context) ([]*InstalledPlugin, error)

	// SetStatus updates the install status of a row.
	SetStatus(ctx context.Context, id values.PluginPackageID, status PluginStatus) error

	// SetMissing sets the reconciliation flag of a row.
	SetMissing(ctx context.Context, id values.PluginPackageID, missing bool) error

	// Delete removes a row. Returns ErrNotFound if absent.
	Delete(ctx context.Context, id values.PluginPackageID) error
}
