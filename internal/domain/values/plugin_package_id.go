package values

import (
	"fmt"
	"regexp"
	"strings"
)

var (
	// namePattern restricts author and package to script identifiers. They
	// are joined with "." into the namespace and with "-" into function
	// ids, so neither separator may appear inside them.
	namePattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

	// versionPattern keeps the version a single path component.
	versionPattern = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9._+-]*$`)
)

// PluginPackageID identifies one installed external bundle version:
// "{author}/{package}/{version}".
type PluginPackageID struct {
	author  string
	pkg     string
	version string
}

// NewPluginPackageID creates an id from its three segments.
func NewPluginPackageID(author, pkg, version string) (PluginPackageID, error) {
	author = strings.TrimSpace(author)
	pkg = strings.TrimSpace(pkg)
	version = strings.TrimSpace(version)

	for _, seg := range []struct {
		name, value string
		pattern     *regexp.Regexp
	}{
		{"author", author, namePattern},
		{"package", pkg, namePattern},
		{"version", version, versionPattern},
	} {
		if seg.value == "" {
			return PluginPackageID{}, fmt.Errorf("plugin %s cannot be empty", seg.name)
		}
		if seg.value == "." || seg.value == ".." || !seg.pattern.MatchString(seg.value) {
			return PluginPackageID{}, fmt.Errorf("invalid plugin %s %q", seg.name, seg.value)
		}
	}

	return PluginPackageID{author: author, pkg: pkg, version: version}, nil
}

// ParsePluginPackageID parses "{author}/{package}/{version}".
func ParsePluginPackageID(s string) (PluginPackageID, error) {
	parts := strings.Split(strings.TrimSpace(s), "/")
	if len(parts) != 3 {
		return PluginPackageID{}, fmt.Errorf("invalid plugin package id %q: expected author/package/version", s)
	}
	return NewPluginPackageID(parts[0], parts[1], parts[2])
}

// MustParsePluginPackageID parses an id or panics (for tests only)
func MustParsePluginPackageID(s string) PluginPackageID {
	id, err := ParsePluginPackageID(s)
	if err != nil {
		panic(err)
	}
	return id
}

// Author returns the author segment.
func (p PluginPackageID) Author() string { return p.author }

// Package returns the package segment.
func (p PluginPackageID) Package() string { return p.pkg }

// Version returns the version segment.
func (p PluginPackageID) Version() string { return p.version }

// String returns "{author}/{package}/{version}".
func (p PluginPackageID) String() string {
	if p.IsZero() {
		return ""
	}
	return p.author + "/" + p.pkg + "/" + p.version
}

// Namespace returns the dotted script namespace "{author}.{package}".
func (p PluginPackageID) Namespace() string {
	return p.author + "." + p.pkg
}

// FunctionID returns the globally unique id of a bundle function:
// "{author}-{package}-{version}-{func}".
func (p PluginPackageID) FunctionID(funcName string) string {
	return p.author + "-" + p.pkg + "-" + p.version + "-" + funcName
}

// IsZero returns true if this is the zero value
func (p PluginPackageID) IsZero() bool {
	return p.author == "" && p.pkg == "" && p.version == ""
}

// Equals checks if two ids are equal
func (p PluginPackageID) Equals(other PluginPackageID) bool {
	return p == other
}

// MarshalText implements encoding.TextMarshaler
func (p PluginPackageID) MarshalText() ([]byte, error) {
	return []byte(p.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler
func (p *PluginPackageID) UnmarshalText(data []byte) error {
	id, err := ParsePluginPackageID(string(data))
	if err != nil {
		return err
	}
	*p = id
	return nil
}
