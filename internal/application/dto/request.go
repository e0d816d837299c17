// Package dto contains request and response types for application use cases.
package dto

import (
	"time"

	"github.com/reglet-dev/flowgate/internal/domain/permissions"
	"github.com/reglet-dev/flowgate/internal/domain/values"
)

// InstallPluginRequest installs one external bundle version.
type InstallPluginRequest struct {
	Author  string `validate:"required,plugin_name"`
	Package string `validate:"required,plugin_name"`
	Version string `validate:"required,plugin_segment,semantic_version"`
	// Bundle is the JavaScript text of package.js.
	Bundle string `validate:"required"`
	// Metadata is the optional raw metadata.json.
	Metadata []byte
}

// Validate checks the request fields.
func (r *InstallPluginRequest) Validate() error {
	return validateStruct("install request", r)
}

// PackageID builds the plugin package id of the request.
func (r *InstallPluginRequest) PackageID() (values.PluginPackageID, error) {
	return values.NewPluginPackageID(r.Author, r.Package, r.Version)
}

// PluginRefRequest names an installed plugin by "author/package/version".
type PluginRefRequest struct {
	Ref string `validate:"required"`
}

// ToPackageID converts the reference to a domain value object.
func (r *PluginRefRequest) ToPackageID() (values.PluginPackageID, error) {
	if err := validateStruct("plugin reference", r); err != nil {
		return values.PluginPackageID{}, err
	}
	return values.ParsePluginPackageID(r.Ref)
}

// SaveCodeRequest stores a new revision of a workflow's code.
type SaveCodeRequest struct {
	// CodeID is generated when empty.
	CodeID     string `validate:"omitempty,max=128"`
	WorkflowID string `validate:"required,max=128"`
	Code       string `validate:"required"`
	Grants     permissions.Grants
	// Plugins selects external packages by namespace, plugin id, or "*".
	Plugins []string `validate:"dive,required"`
}

// Validate checks the request fields.
func (r *SaveCodeRequest) Validate() error {
	return validateStruct("save code request", r)
}

// RunWorkflowRequest runs stored workflow code.
type RunWorkflowRequest struct {
	CodeID string `validate:"required"`
	// Grants are merged over the code's stored grants for this run only.
	Grants permissions.Grants
	// Plugins, when set, replaces the code's stored plugin selection.
	Plugins []string `validate:"dive,required"`
	// Timeout overrides the configured default. Zero keeps the default.
	Timeout time.Duration `validate:"gte=0"`
	// Interactive allows the gatekeeper to prompt for missing grants.
	Interactive bool
}

// Validate checks the request fields.
func (r *RunWorkflowRequest) Validate() error {
	return validateStruct("run request", r)
}

// RunScriptRequest saves and runs ad-hoc script text in one step.
type RunScriptRequest struct {
	Name    string `validate:"required,max=128"`
	Code    string `validate:"required"`
	Grants  permissions.Grants
	Plugins []string      `validate:"dive,required"`
	Timeout time.Duration `validate:"gte=0"`
	// AllPermissions grants every permission to every function. Debug only.
	AllPermissions bool
	Interactive    bool
}

// Validate checks the request fields.
func (r *RunScriptRequest) Validate() error {
	return validateStruct("run script request", r)
}

// ListResultsRequest lists the results of one code id.
type ListResultsRequest struct {
	CodeID string `validate:"required"`
	// Filter is an optional boolean expression over result fields.
	Filter string
	// Limit keeps only the newest Limit results when positive.
	Limit int `validate:"gte=0"`
}

// Validate checks the request fields.
func (r *ListResultsRequest) Validate() error {
	return validateStruct("list results request", r)
}
