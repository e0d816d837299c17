package capability

import (
	"fmt"
	"sort"
)

// DuplicateFunctionError is returned when two packages declare the same
// function id.
type DuplicateFunctionError struct {
	FunctionID string
	First      string
	Second     string
}

func (e *DuplicateFunctionError) Error() string {
	return fmt.Sprintf("duplicate function id %q: declared by package %q and package %q",
		e.FunctionID, e.First, e.Second)
}

// Registry holds the internal packages registered at startup. It is
// constructed once and passed by reference into every run; it is never
// mutated after construction, so concurrent readers need no locking.
type Registry struct {
	internal []Package
	index    map[string]string // function id -> package id
}

// NewRegistry builds a registry from the internal packages. A function id
// declared twice is a build-time error.
func NewRegistry(packages ...Package) (*Registry, error) {
	r := &Registry{
		internal: make([]Package, 0, len(packages)),
		index:    make(map[string]string),
	}
	for _, pkg := range packages {
		if err := indexPackage(r.index, pkg); err != nil {
			return nil, err
		}
		r.internal = append(r.internal, pkg)
	}
	return r, nil
}

// MustNewRegistry builds a registry or panics (for tests only)
func MustNewRegistry(packages ...Package) *Registry {
	r, err := NewRegistry(packages...)
	if err != nil {
		panic(err)
	}
	return r
}

// Packages returns the internal packages in registration order.
func (r *Registry) Packages() []Package {
	out := make([]Package, len(r.internal))
	copy(out, r.internal)
	return out
}

// Resolve builds the capability set for one run: every internal package
// plus the selected external packages.
func (r *Registry) Resolve(external ...Package) (*Set, error) {
	index := make(map[string]string, len(r.index))
	for id, pkg := range r.index {
		index[id] = pkg
	}

	packages := make([]Package, 0, len(r.internal)+len(external))
	packages = append(packages, r.internal...)

	for _, pkg := range external {
		if err := indexPackage(index, pkg); err != nil {
			return nil, err
		}
		packages = append(packages, pkg)
	}

	functions := make(map[string]Function, len(index))
	for _, pkg := range packages {
		for _, fn := range pkg.Functions {
			functions[fn.ID] = fn
		}
	}

	return &Set{packages: packages, functions: functions}, nil
}

func indexPackage(index map[string]string, pkg Package) error {
	local := make(map[string]bool, len(pkg.Functions))
	for _, fn := range pkg.Functions {
		if fn.ID == "" {
			return fmt.Errorf("package %q declares a function without id", pkg.ID)
		}
		if owner, ok := index[fn.ID]; ok {
			return &DuplicateFunctionError{FunctionID: fn.ID, First: owner, Second: pkg.ID}
		}
		if local[fn.ID] {
			return &DuplicateFunctionError{FunctionID: fn.ID, First: pkg.ID, Second: pkg.ID}
		}
		local[fn.ID] = true
	}
	for id := range local {
		index[id] = pkg.ID
	}
	return nil
}

// Set is the resolved, read-only capability set of one run.
type Set struct {
	packages  []Package
	functions map[string]Function
}

// Lookup finds a function by id.
func (s *Set) Lookup(functionID string) (Function, bool) {
	fn, ok := s.functions[functionID]
	return fn, ok
}

// Packages returns the packages in resolution order.
func (s *Set) Packages() []Package {
	out := make([]Package, len(s.packages))
	copy(out, s.packages)
	return out
}

// Len returns the number of functions in the set.
func (s *Set) Len() int {
	return len(s.functions)
}

// FunctionIDs returns every function id, sorted.
func (s *Set) FunctionIDs() []string {
	ids := make([]string, 0, len(s.functions))
	for id := range s.functions {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Catalog returns the pure-data description of every package.
func (s *Set) Catalog() []CatalogEntry {
	entries := make([]CatalogEntry, len(s.packages))
	for i, pkg := range s.packages {
		entries[i] = pkg.Metadata()
	}
	return entries
}
