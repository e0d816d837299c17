package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/Masterminds/semver/v3"
	"github.com/reglet-dev/flowgate/internal/application/dto"
	apperrors "github.com/reglet-dev/flowgate/internal/application/errors"
	"github.com/reglet-dev/flowgate/internal/application/ports"
	"github.com/reglet-dev/flowgate/internal/domain/capability"
	"github.com/reglet-dev/flowgate/internal/domain/repositories"
	"github.com/reglet-dev/flowgate/internal/domain/values"
	"github.com/reglet-dev/flowgate/internal/infrastructure/bridge"
)

// PluginService orchestrates external plugin management use cases:
// install, uninstall, scan, reconcile and load.
type PluginService struct {
	repository repositories.PluginRepository
	store      ports.BundleStore
	logger     *slog.Logger
	now        func() time.Time
}

var _ ports.PackageSource = (*PluginService)(nil)

// NewPluginService creates a plugin service.
func NewPluginService(
	repository repositories.PluginRepository,
	store ports.BundleStore,
	logger *slog.Logger,
) *PluginService {
	if logger == nil {
		logger = slog.Default()
	}
	return &PluginService{
		repository: repository,
		store:      store,
		logger:     logger,
		now:        time.Now,
	}
}

// Install registers and writes one bundle version.
//
// The row is created first in pending state so that the primary key
// serializes concurrent installs of the same id; the loser gets
// AlreadyInstalledError and never touches the filesystem. The row is
// marked installed once the files are written.
func (s *PluginService) Install(ctx context.Context, req dto.InstallPluginRequest) (*dto.InstallPluginResponse, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	id, err := req.PackageID()
	if err != nil {
		return nil, apperrors.NewValidationError("plugin", err.Error())
	}

	var manifest *bridge.Manifest
	var rawManifest []byte
	if len(req.Metadata) > 0 {
		if manifest, err = bridge.ParseManifest(req.Metadata); err != nil {
			return nil, apperrors.NewValidationError("metadata", err.Error())
		}
		rawManifest = req.Metadata
	}

	dir := s.store.Dir(id)
	pkg, err := bridge.BuildPackage(id, dir, req.Bundle, manifest)
	if err != nil {
		return nil, apperrors.NewValidationError("bundle", err.Error())
	}

	row := &repositories.InstalledPlugin{
		ID:          id,
		InstallDir:  dir,
		Status:      repositories.PluginStatusPending,
		InstalledAt: s.now().UTC(),
	}
	if err := s.repository.Create(ctx, row); err != nil {
		if errors.Is(err, repositories.ErrAlreadyExists) {
			return nil, &apperrors.AlreadyInstalledError{ID: id.String()}
		}
		return nil, fmt.Errorf("failed to record plugin %s: %w", id, err)
	}

	if _, err := s.store.Write(ctx, id, []byte(req.Bundle), rawManifest); err != nil {
		s.rollback(ctx, id)
		return nil, err
	}

	if err := s.repository.SetStatus(ctx, id, repositories.PluginStatusInstalled); err != nil {
		_ = s.store.Remove(ctx, id)
		s.rollback(ctx, id)
		return nil, fmt.Errorf("failed to mark plugin %s installed: %w", id, err)
	}

	functions := make([]string, len(pkg.Functions))
	for i, fn := range pkg.Functions {
		functions[i] = fn.ID
	}

	s.logger.InfoContext(ctx, "installed external plugin",
		"plugin_id", id.String(),
		"dir", dir,
		"functions", len(functions))

	return &dto.InstallPluginResponse{ID: id.String(), InstallDir: dir, Functions: functions}, nil
}

// rollback removes the pending row of a failed install.
func (s *PluginService) rollback(ctx context.Context, id values.PluginPackageID) {
	if err := s.repository.Delete(ctx, id); err != nil && !errors.Is(err, repositories.ErrNotFound) {
		s.logger.ErrorContext(ctx, "failed to roll back plugin row", "plugin_id", id.String(), "error", err)
	}
}

// Uninstall removes the bundle directory and the row of id.
// If the row cannot be deleted after the directory is gone, the row is
// marked missing so that a later reconcile or uninstall can finish.
func (s *PluginService) Uninstall(ctx context.Context, id values.PluginPackageID) error {
	if _, err := s.repository.Get(ctx, id); err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			return apperrors.NewNotFoundError("plugin", id.String())
		}
		return fmt.Errorf("failed to load plugin %s: %w", id, err)
	}

	if err := s.store.Remove(ctx, id); err != nil {
		return err
	}

	if err := s.repository.Delete(ctx, id); err != nil {
		if markErr := s.repository.SetMissing(ctx, id, true); markErr != nil {
			s.logger.ErrorContext(ctx, "failed to mark plugin missing", "plugin_id", id.String(), "error", markErr)
		}
		s.logger.ErrorContext(ctx, "plugin directory removed but row remains", "plugin_id", id.String(), "error", err)
		return fmt.Errorf("failed to delete plugin row %s: %w", id, err)
	}

	s.logger.InfoContext(ctx, "uninstalled external plugin", "plugin_id", id.String())
	return nil
}

// Scan returns the ids of every bundle directory on disk, sorted.
func (s *PluginService) Scan(ctx context.Context) ([]values.PluginPackageID, error) {
	return s.store.Scan(ctx)
}

// Reconcile compares the bundle directories on disk with the rows in the
// repository and repairs the rows. Directories without a row are reported
// as orphans and left alone.
func (s *PluginService) Reconcile(ctx context.Context) (*dto.ReconcileReport, error) {
	rows, err := s.repository.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list plugins: %w", err)
	}
	onDisk, err := s.store.Scan(ctx)
	if err != nil {
		return nil, err
	}

	present := make(map[values.PluginPackageID]bool, len(onDisk))
	for _, id := range onDisk {
		present[id] = true
	}

	report := &dto.ReconcileReport{}
	for _, row := range rows {
		found := present[row.ID]
		delete(present, row.ID)

		switch {
		case row.Status == repositories.PluginStatusPending && !found:
			if err := s.repository.Delete(ctx, row.ID); err != nil {
				return report, fmt.Errorf("failed to delete stale plugin row %s: %w", row.ID, err)
			}
			report.RemovedPending = append(report.RemovedPending, row.ID.String())
		case !found && !row.Missing:
			if err := s.repository.SetMissing(ctx, row.ID, true); err != nil {
				return report, fmt.Errorf("failed to mark plugin %s missing: %w", row.ID, err)
			}
			report.MarkedMissing = append(report.MarkedMissing, row.ID.String())
		case found && row.Missing:
			if err := s.repository.SetMissing(ctx, row.ID, false); err != nil {
				return report, fmt.Errorf("failed to restore plugin %s: %w", row.ID, err)
			}
			report.Restored = append(report.Restored, row.ID.String())
		}
	}

	for id := range present {
		report.Orphans = append(report.Orphans, id.String())
	}
	sort.Strings(report.Orphans)

	if report.Changed() || len(report.Orphans) > 0 {
		s.logger.InfoContext(ctx, "reconciled plugins",
			"marked_missing", len(report.MarkedMissing),
			"restored", len(report.Restored),
			"removed_pending", len(report.RemovedPending),
			"orphans", len(report.Orphans))
	}
	return report, nil
}

// Load builds a capability package for every loadable row. Rows whose
// bundle file has disappeared are marked missing and skipped.
func (s *PluginService) Load(ctx context.Context) ([]capability.Package, error) {
	rows, err := s.repository.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list plugins: %w", err)
	}

	packages := make([]capability.Package, 0, len(rows))
	for _, row := range rows {
		if !row.Loadable() {
			continue
		}

		bundle, err := s.store.ReadBundle(row.ID)
		if err != nil {
			s.logger.WarnContext(ctx, "plugin bundle unreadable, marking missing", "plugin_id", row.ID.String(), "error", err)
			if markErr := s.repository.SetMissing(ctx, row.ID, true); markErr != nil {
				s.logger.ErrorContext(ctx, "failed to mark plugin missing", "plugin_id", row.ID.String(), "error", markErr)
			}
			continue
		}

		manifest := s.loadManifest(ctx, row.ID)

		pkg, err := bridge.BuildPackage(row.ID, row.InstallDir, bundle, manifest)
		if err != nil {
			s.logger.WarnContext(ctx, "skipping plugin", "plugin_id", row.ID.String(), "error", err)
			continue
		}
		packages = append(packages, pkg)
	}
	return packages, nil
}

// loadManifest returns the parsed manifest of id, or nil when absent or
// invalid; function names then come from bundle extraction.
func (s *PluginService) loadManifest(ctx context.Context, id values.PluginPackageID) *bridge.Manifest {
	raw, err := s.store.ReadManifest(id)
	if err != nil || raw == nil {
		if err != nil {
			s.logger.WarnContext(ctx, "plugin manifest unreadable", "plugin_id", id.String(), "error", err)
		}
		return nil
	}
	manifest, err := bridge.ParseManifest(raw)
	if err != nil {
		s.logger.WarnContext(ctx, "ignoring invalid plugin manifest", "plugin_id", id.String(), "error", err)
		return nil
	}
	return manifest
}

// List returns every row ordered by author, package and semantic version.
func (s *PluginService) List(ctx context.Context) ([]dto.PluginSummary, error) {
	rows, err := s.repository.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list plugins: %w", err)
	}

	sort.SliceStable(rows, func(i, j int) bool {
		a, b := rows[i].ID, rows[j].ID
		if a.Author() != b.Author() {
			return a.Author() < b.Author()
		}
		if a.Package() != b.Package() {
			return a.Package() < b.Package()
		}
		return versionLess(a.Version(), b.Version())
	})

	summaries := make([]dto.PluginSummary, len(rows))
	for i, row := range rows {
		summaries[i] = dto.PluginSummary{
			ID:          row.ID.String(),
			Namespace:   row.ID.Namespace(),
			Status:      string(row.Status),
			Missing:     row.Missing,
			InstallDir:  row.InstallDir,
			InstalledAt: row.InstalledAt,
		}
	}
	return summaries, nil
}

// versionLess orders semantic versions, falling back to string order for
// versions that do not parse.
func versionLess(a, b string) bool {
	va, errA := semver.NewVersion(a)
	vb, errB := semver.NewVersion(b)
	if errA != nil || errB != nil {
		return a < b
	}
	return va.LessThan(vb)
}
