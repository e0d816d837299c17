package capability

import "strings"

// Provenance records where a package came from.
type Provenance interface {
	isProvenance()
	// Kind returns "internal" or "external".
	Kind() string
}

// Internal marks a package compiled into the host.
type Internal struct{}

func (Internal) isProvenance() {}

// Kind implements Provenance.
func (Internal) Kind() string { return "internal" }

// ExternalSource marks a package built from an installed bundle.
type ExternalSource struct {
	InstallPath string
	AuthorID    string
	Version     string
	BundleText  string
}

func (ExternalSource) isProvenance() {}

// Kind implements Provenance.
func (ExternalSource) Kind() string { return "external" }

// Provider is the contract every capability package satisfies.
type Provider interface {
	PackageID() string
	Metadata() CatalogEntry
	FunctionList() []Function
	Resolve(functionID string) (Function, bool)
}

// Package is a named group of capability functions. Values are built once
// and treated as immutable afterwards.
type Package struct {
	ID          string
	DisplayName string
	Description string
	// Namespace is the dotted path the functions are bound under in the
	// script global scope. Empty binds them as globals.
	Namespace  string
	Functions  []Function
	Provenance Provenance
}

var _ Provider = Package{}

// PackageID implements Provider.
func (p Package) PackageID() string { return p.ID }

// Metadata implements Provider.
func (p Package) Metadata() CatalogEntry {
	entry := CatalogEntry{
		PackageID:   p.ID,
		DisplayName: p.DisplayName,
		Description: p.Description,
		Namespace:   p.Namespace,
		Functions:   make([]Function, len(p.Functions)),
	}
	if p.Provenance != nil {
		entry.Provenance = p.Provenance.Kind()
	}
	for i, fn := range p.Functions {
		fn.Invocation = nil
		entry.Functions[i] = fn
	}
	return entry
}

// FunctionList implements Provider. The returned slice is a copy.
func (p Package) FunctionList() []Function {
	out := make([]Function, len(p.Functions))
	copy(out, p.Functions)
	return out
}

// Resolve implements Provider.
func (p Package) Resolve(functionID string) (Function, bool) {
	for _, fn := range p.Functions {
		if fn.ID == functionID {
			return fn, true
		}
	}
	return Function{}, false
}

// NamespacePath splits Namespace into its segments.
func (p Package) NamespacePath() []string {
	if p.Namespace == "" {
		return nil
	}
	return strings.Split(p.Namespace, ".")
}

// IsExternal reports whether the package was built from a bundle.
func (p Package) IsExternal() bool {
	_, ok := p.Provenance.(ExternalSource)
	return ok
}

// CatalogEntry is the pure-data description of a package used for
// discovery and listing. Function invocations are stripped.
type CatalogEntry struct {
	PackageID   string     `json:"package_id" yaml:"package_id"`
	DisplayName string     `json:"display_name" yaml:"display_name"`
	Description string     `json:"description,omitempty" yaml:"description,omitempty"`
	Namespace   string     `json:"namespace,omitempty" yaml:"namespace,omitempty"`
	Provenance  string     `json:"provenance" yaml:"provenance"`
	Functions   []Function `json:"functions" yaml:"functions"`
}
