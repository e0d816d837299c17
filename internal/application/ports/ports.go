// Package ports defines interfaces for infrastructure dependencies.
// These are the "ports" in hexagonal architecture - abstractions that
// the application layer depends on but doesn't implement.
package ports

import (
	"context"

	"github.com/reglet-dev/flowgate/internal/domain/capability"
	"github.com/reglet-dev/flowgate/internal/domain/permissions"
	"github.com/reglet-dev/flowgate/internal/domain/values"
	"github.com/reglet-dev/flowgate/internal/domain/workflow"
	"github.com/reglet-dev/flowgate/internal/infrastructure/sandbox"
	"github.com/reglet-dev/flowgate/internal/infrastructure/system"
)

// BundleStore owns the on-disk layout of installed external bundles:
// {root}/{author}/{package}/{version}/package.js [+ metadata.json].
type BundleStore interface {
	// Dir returns the install directory of id.
	Dir(id values.PluginPackageID) string

	// Write creates the install directory and writes the bundle files.
	Write(ctx context.Context, id values.PluginPackageID, bundle, manifest []byte) (string, error)

	// Remove deletes the install directory and prunes empty parents.
	Remove(ctx context.Context, id values.PluginPackageID) error

	// Exists reports whether the install directory holds a bundle.
	Exists(id values.PluginPackageID) bool

	// ReadBundle returns the bundle text.
	ReadBundle(id values.PluginPackageID) (string, error)

	// ReadManifest returns the raw manifest, or nil when none was installed.
	ReadManifest(id values.PluginPackageID) ([]byte, error)

	// Scan returns the ids of every installed bundle directory, sorted.
	Scan(ctx context.Context) ([]values.PluginPackageID, error)
}

// PackageSource loads the external packages available to runs.
type PackageSource interface {
	Load(ctx context.Context) ([]capability.Package, error)
}

// WorkflowRuntime executes one run in a fresh sandbox.
type WorkflowRuntime interface {
	Execute(ctx context.Context, run *workflow.Run) (sandbox.Outcome, error)
	Registry() *capability.Registry
}

// GrantStore persists grants the user chose to keep.
type GrantStore interface {
	Load() (permissions.Grants, error)
	Save(grants permissions.Grants) error
	Path() string
}

// GrantPrompter asks the user to approve missing grants.
type GrantPrompter interface {
	IsInteractive() bool
	PromptForGrant(functionID string, required permissions.Set) (granted bool, always bool, err error)
	FormatNonInteractiveError(missing permissions.Grants, grantsFile string) error
}

// GrantGatekeeperPort extends the grants of a run with decisions for the
// functions its code references.
// Named with "Port" suffix to avoid collision with the concrete GrantGatekeeper type.
type GrantGatekeeperPort interface {
	Resolve(ctx context.Context, code string, set *capability.Set, given permissions.Grants, interactive bool) (permissions.Grants, error)
}

// SystemConfigProvider loads system configuration.
type SystemConfigProvider interface {
	Load(path string) (*system.Config, error)
}

// OutputFormatter renders a command's response value.
type OutputFormatter interface {
	Format(v any) error
}

// FormatterOptions tunes formatter construction.
type FormatterOptions struct {
	// Indent pretty-prints JSON.
	Indent bool
	// NoColor disables styling in table output.
	NoColor bool
}
