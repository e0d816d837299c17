package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/reglet-dev/flowgate/internal/domain/repositories"
	"github.com/reglet-dev/flowgate/internal/domain/values"
)

// Ensure interface compliance
var _ repositories.PluginRepository = (*PluginRepository)(nil)

// PluginRepository stores installed external plugin rows in SQLite.
type PluginRepository struct {
	db *sql.DB
}

// NewPluginRepository creates a repository over an opened database.
func NewPluginRepository(db *sql.DB) *PluginRepository {
	return &PluginRepository{db: db}
}

// Create inserts a row; the primary key rejects a second row for an id.
func (r *PluginRepository) Create(ctx context.Context, plugin *repositories.InstalledPlugin) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO ext_plugin_packages (plugin_package_id, install_dir, status, missing, installed_at)
		VALUES (?, ?, ?, ?, ?)`,
		plugin.ID.String(), plugin.InstallDir, string(plugin.Status), boolToInt(plugin.Missing),
		formatTime(plugin.InstalledAt))
	if isUniqueViolation(err) {
		return fmt.Errorf("plugin %s: %w", plugin.ID, repositories.ErrAlreadyExists)
	}
	if err != nil {
		return fmt.Errorf("failed to insert plugin %s: %w", plugin.ID, err)
	}
	return nil
}

// Get loads a row by id.
func (r *PluginRepository) Get(ctx context.Context, id values.PluginPackageID) (*repositories.InstalledPlugin, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT plugin_package_id, install_dir, status, missing, installed_at
		FROM ext_plugin_packages WHERE plugin_package_id = ?`, id.String())

	plugin, err := scanPlugin(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("plugin %s: %w", id, repositories.ErrNotFound)
	}
	return plugin, err
}

// List returns all rows ordered by id.
func (r *PluginRepository) List(ctx context.Context) ([]*repositories.InstalledPlugin, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT plugin_package_id, install_dir, status, missing, installed_at
		FROM ext_plugin_packages ORDER BY plugin_package_id`)
	if err != nil {
		return nil, fmt.Errorf("failed to list plugins: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var plugins []*repositories.InstalledPlugin
	for rows.Next() {
		p, err := scanPlugin(rows)
		if err != nil {
			return nil, err
		}
		plugins = append(plugins, p)
	}
	return plugins, rows.Err()
}

// SetStatus updates the install status of a row.
func (r *PluginRepository) SetStatus(ctx context.Context, id values.PluginPackageID, status repositories.PluginStatus) error {
	return r.exec(ctx, id, `UPDATE ext_plugin_packages SET status = ? WHERE plugin_package_id = ?`,
		string(status), id.String())
}

// SetMissing sets the reconciliation flag of a row.
func (r *PluginRepository) SetMissing(ctx context.Context, id values.PluginPackageID, missing bool) error {
	return r.exec(ctx, id, `UPDATE ext_plugin_packages SET missing = ? WHERE plugin_package_id = ?`,
		boolToInt(missing), id.String())
}

// Delete removes a row.
func (r *PluginRepository) Delete(ctx context.Context, id values.PluginPackageID) error {
	return r.exec(ctx, id, `DELETE FROM ext_plugin_packages WHERE plugin_package_id = ?`, id.String())
}

func (r *PluginRepository) exec(ctx context.Context, id values.PluginPackageID, query string, args ...any) error {
	res, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("failed to update plugin %s: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("plugin %s: %w", id, repositories.ErrNotFound)
	}
	return nil
}

func scanPlugin(s scanner) (*repositories.InstalledPlugin, error) {
	var (
		rawID, dir, status, installedAt string
		missing                         int
	)
	if err := s.Scan(&rawID, &dir, &status, &missing, &installedAt); err != nil {
		return nil, err
	}
	id, err := values.ParsePluginPackageID(rawID)
	if err != nil {
		return nil, fmt.Errorf("corrupt plugin row %q: %w", rawID, err)
	}
	return &repositories.InstalledPlugin{
		ID:          id,
		InstallDir:  dir,
		Status:      repositories.PluginStatus(status),
		Missing:     missing != 0,
		InstalledAt: parseTime(installedAt),
	}, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
