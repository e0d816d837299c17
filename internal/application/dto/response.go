package dto

import (
	"time"

	"github.com/reglet-dev/flowgate/internal/domain/workflow"
)

// ResponseMetadata contains metadata about a response.
type ResponseMetadata struct {
	// ProcessedAt is when the request was processed
	ProcessedAt time.Time `json:"processed_at" yaml:"processed_at"`

	// Duration is how long the request took
	Duration time.Duration `json:"duration" yaml:"duration"`
}

// InstallPluginResponse describes a completed install.
type InstallPluginResponse struct {
	ID         string   `json:"plugin_package_id" yaml:"plugin_package_id"`
	InstallDir string   `json:"install_dir" yaml:"install_dir"`
	Functions  []string `json:"functions" yaml:"functions"`
}

// PluginSummary is one row of the installed plugin listing.
type PluginSummary struct {
	ID          string    `json:"plugin_package_id" yaml:"plugin_package_id"`
	Namespace   string    `json:"namespace" yaml:"namespace"`
	Status      string    `json:"status" yaml:"status"`
	Missing     bool      `json:"missing" yaml:"missing"`
	InstallDir  string    `json:"install_dir" yaml:"install_dir"`
	InstalledAt time.Time `json:"installed_at" yaml:"installed_at"`
}

// ReconcileReport lists what a reconciliation between the plugin
// directory and the database changed or found.
type ReconcileReport struct {
	// MarkedMissing are rows whose directory is gone.
	MarkedMissing []string `json:"marked_missing" yaml:"marked_missing"`
	// Restored are rows whose directory reappeared.
	Restored []string `json:"restored" yaml:"restored"`
	// RemovedPending are stale pending rows that were deleted.
	RemovedPending []string `json:"removed_pending" yaml:"removed_pending"`
	// Orphans are directories without a row. They are never deleted.
	Orphans []string `json:"orphans" yaml:"orphans"`
}

// Changed reports whether reconciliation modified any row.
func (r *ReconcileReport) Changed() bool {
	return len(r.MarkedMissing)+len(r.Restored)+len(r.RemovedPending) > 0
}

// RunWorkflowResponse contains the stored result of a run.
type RunWorkflowResponse struct {
	Result   *workflow.Result `json:"result" yaml:"result"`
	RunID    string           `json:"run_id" yaml:"run_id"`
	Metadata ResponseMetadata `json:"metadata" yaml:"metadata"`
}

// ListResultsResponse contains the matching results of a code id.
type ListResultsResponse struct {
	CodeID  string             `json:"code_id" yaml:"code_id"`
	Results []*workflow.Result `json:"results" yaml:"results"`
}
