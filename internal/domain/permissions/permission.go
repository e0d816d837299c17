// Package permissions defines the permission and grant model used to gate
// every capability invocation made from a workflow.
package permissions

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// Kind identifies the class of privileged effect a permission covers.
type Kind int

const (
	// KindUnspecified is the zero kind.
	KindUnspecified Kind = iota
	// KindFilesystemRead covers reading files and listing directories.
	KindFilesystemRead
	// KindFilesystemWrite covers creating and modifying files.
	KindFilesystemWrite
	// KindExecute covers spawning processes and invoking external bundles.
	KindExecute
	// KindNetAccess covers outbound requests to specific hosts.
	KindNetAccess
	// KindNetworkAccess covers unrestricted network use.
	KindNetworkAccess
	// KindWindowManagement covers inspecting and driving desktop windows.
	KindWindowManagement
	// KindSearch covers indexed file search.
	KindSearch
)

var kindNames = map[Kind]string{
	KindUnspecified:      "Unspecified",
	KindFilesystemRead:   "FilesystemRead",
	KindFilesystemWrite:  "FilesystemWrite",
	KindExecute:          "Execute",
	KindNetAccess:        "NetAccess",
	KindNetworkAccess:    "NetworkAccess",
	KindWindowManagement: "WindowManagement",
	KindSearch:           "Search",
}

// Kinds returns every concrete (non-Unspecified) kind in ordinal order.
func Kinds() []Kind {
	return []Kind{
		KindFilesystemRead,
		KindFilesystemWrite,
		KindExecute,
		KindNetAccess,
		KindNetworkAccess,
		KindWindowManagement,
		KindSearch,
	}
}

// String returns the canonical name of the kind.
func (k Kind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return fmt.Sprintf("Kind(%d)", int(k))
}

// ParseKind parses a kind name (case-insensitive) or its ordinal.
func ParseKind(s string) (Kind, error) {
	s = strings.TrimSpace(s)
	if n, err := strconv.Atoi(s); err == nil {
		k := Kind(n)
		if _, ok := kindNames[k]; !ok {
			return KindUnspecified, fmt.Errorf("unknown permission kind ordinal %d", n)
		}
		return k, nil
	}
	normalized := strings.ToLower(strings.ReplaceAll(s, "_", ""))
	for k, name := range kindNames {
		if strings.ToLower(name) == normalized {
			return k, nil
		}
	}
	return KindUnspecified, fmt.Errorf("unknown permission kind %q", s)
}

// MarshalText implements encoding.TextMarshaler.
func (k Kind) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (k *Kind) UnmarshalText(text []byte) error {
	parsed, err := ParseKind(string(text))
	if err != nil {
		return err
	}
	*k = parsed
	return nil
}

// UnmarshalJSON accepts both names and ordinals, since bundle metadata
// written against the protobuf enum uses numbers.
func (k *Kind) UnmarshalJSON(data []byte) error {
	return unmarshalEnumJSON(data, k.UnmarshalText)
}

// Level is the ordinal strength of a permission.
type Level int

const (
	// LevelUnspecified imposes no level constraint.
	LevelUnspecified Level = iota
	// LevelMedium is the default elevated level.
	LevelMedium
	// LevelHigh is the strongest level.
	LevelHigh
)

// String returns the canonical name of the level.
func (l Level) String() string {
	switch l {
	case LevelUnspecified:
		return "Unspecified"
	case LevelMedium:
		return "Medium"
	case LevelHigh:
		return "High"
	default:
		return fmt.Sprintf("Level(%d)", int(l))
	}
}

// ParseLevel parses a level name (case-insensitive) or its ordinal.
func ParseLevel(s string) (Level, error) {
	s = strings.TrimSpace(s)
	if n, err := strconv.Atoi(s); err == nil {
		if n < int(LevelUnspecified) || n > int(LevelHigh) {
			return LevelUnspecified, fmt.Errorf("unknown permission level ordinal %d", n)
		}
		return Level(n), nil
	}
	switch strings.ToLower(s) {
	case "", "unspecified":
		return LevelUnspecified, nil
	case "medium":
		return LevelMedium, nil
	case "high":
		return LevelHigh, nil
	default:
		return LevelUnspecified, fmt.Errorf("unknown permission level %q", s)
	}
}

// MarshalText implements encoding.TextMarshaler.
func (l Level) MarshalText() ([]byte, error) {
	return []byte(l.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (l *Level) UnmarshalText(text []byte) error {
	parsed, err := ParseLevel(string(text))
	if err != nil {
		return err
	}
	*l = parsed
	return nil
}

// UnmarshalJSON accepts both names and ordinals.
func (l *Level) UnmarshalJSON(data []byte) error {
	return unmarshalEnumJSON(data, l.UnmarshalText)
}

// satisfies reports whether a granted level covers a required level.
// Unspecified on either side is no constraint.
func (l Level) satisfies(required Level) bool {
	if l == LevelUnspecified || required == LevelUnspecified {
		return true
	}
	return l >= required
}

func unmarshalEnumJSON(data []byte, fromText func([]byte) error) error {
	var raw interface{}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	switch v := raw.(type) {
	case string:
		return fromText([]byte(v))
	case float64:
		return fromText([]byte(strconv.Itoa(int(v))))
	case nil:
		return fromText(nil)
	default:
		return fmt.Errorf("unsupported enum value %s", string(data))
	}
}

// Permission is a single kind+level+resource requirement or grant.
// It is an immutable value once constructed.
type Permission struct {
	DisplayName string   `json:"display_name,omitempty" yaml:"display_name,omitempty"`
	Description string   `json:"description,omitempty" yaml:"description,omitempty"`
	Kind        Kind     `json:"kind" yaml:"kind"`
	Level       Level    `json:"level,omitempty" yaml:"level,omitempty"`
	Resource    []string `json:"resource,omitempty" yaml:"resource,omitempty"`
}

// New creates a permission of the given kind scoped to resources.
func New(kind Kind, resources ...string) Permission {
	return Permission{
		DisplayName: kind.String(),
		Kind:        kind,
		Resource:    resources,
	}
}

// WithLevel returns a copy of p at the given level.
func (p Permission) WithLevel(level Level) Permission {
	p.Level = level
	return p
}

// String returns a compact human-readable form, e.g. "Execute[High](ls -la)".
func (p Permission) String() string {
	var b strings.Builder
	b.WriteString(p.Kind.String())
	if p.Level != LevelUnspecified {
		b.WriteString("[" + p.Level.String() + "]")
	}
	if len(p.Resource) > 0 {
		b.WriteString("(" + strings.Join(p.Resource, ", ") + ")")
	}
	return b.String()
}

// label is the name used in denial messages.
func (p Permission) label() string {
	if p.DisplayName != "" && p.DisplayName != p.Kind.String() {
		return fmt.Sprintf("%s permission (%s)", p.Kind, p.DisplayName)
	}
	return p.Kind.String() + " permission"
}

// Set is an ordered list of permissions; all entries must hold.
type Set []Permission

// NewSet creates a set from the given permissions.
func NewSet(perms ...Permission) Set {
	return Set(perms)
}

// Kinds returns the distinct kinds in the set, in first-seen order.
func (s Set) Kinds() []Kind {
	seen := make(map[Kind]bool, len(s))
	kinds := make([]Kind, 0, len(s))
	for _, p := range s {
		if !seen[p.Kind] {
			seen[p.Kind] = true
			kinds = append(kinds, p.Kind)
		}
	}
	return kinds
}

// String joins the permissions for display.
func (s Set) String() string {
	parts := make([]string, len(s))
	for i, p := range s {
		parts[i] = p.String()
	}
	return strings.Join(parts, ", ")
}
