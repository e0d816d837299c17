package bridge

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/invopop/jsonschema"
	"github.com/reglet-dev/flowgate/internal/domain/permissions"
	validator "github.com/santhosh-tekuri/jsonschema/v5"
)

// ManifestFileName is the optional metadata file stored next to a bundle.
const ManifestFileName = "metadata.json"

// Manifest is the optional metadata accompanying a bundle. When it lists
// functions it replaces name extraction.
type Manifest struct {
	Name        string             `json:"name" jsonschema:"minLength=1"`
	Description string             `json:"description,omitempty"`
	Version     string             `json:"version,omitempty"`
	AuthorID    string             `json:"author_id,omitempty"`
	PackageID   string             `json:"package_id,omitempty"`
	Functions   []ManifestFunction `json:"functions,omitempty"`
}

// ManifestFunction declares one callable function.
type ManifestFunction struct {
	Name        string               `json:"name" jsonschema:"pattern=^[A-Za-z_$][A-Za-z0-9_$]*$"`
	DisplayName string               `json:"display_name,omitempty"`
	Description string               `json:"description,omitempty"`
	Permissions []ManifestPermission `json:"permissions,omitempty"`
	Parameters  []ManifestParameter  `json:"parameters,omitempty"`
	Returns     []ManifestParameter  `json:"returns,omitempty"`
}

// ManifestPermission is a permission a function requires in addition to
// the implicit Execute permission.
type ManifestPermission struct {
	DisplayName string   `json:"display_name,omitempty"`
	Description string   `json:"description,omitempty"`
	Kind        string   `json:"kind" jsonschema:"enum=FilesystemRead,enum=FilesystemWrite,enum=Execute,enum=NetAccess,enum=NetworkAccess,enum=WindowManagement,enum=Search"`
	Level       string   `json:"level,omitempty" jsonschema:"enum=Unspecified,enum=Medium,enum=High"`
	Resource    []string `json:"resource,omitempty"`
}

// ManifestParameter documents one positional parameter or return value.
type ManifestParameter struct {
	Idx         int    `json:"idx" jsonschema:"minimum=0"`
	Name        string `json:"name,omitempty"`
	Type        string `json:"type,omitempty"`
	Description string `json:"description,omitempty"`
}

// Function looks up a declared function by name.
func (m *Manifest) Function(name string) (ManifestFunction, bool) {
	for _, fn := range m.Functions {
		if fn.Name == name {
			return fn, true
		}
	}
	return ManifestFunction{}, false
}

// ParameterNames returns the parameter names ordered by idx.
func (f ManifestFunction) ParameterNames() []string {
	params := make([]ManifestParameter, len(f.Parameters))
	copy(params, f.Parameters)
	sort.SliceStable(params, func(i, j int) bool { return params[i].Idx < params[j].Idx })

	names := make([]string, len(params))
	for i, p := range params {
		names[i] = p.Name
		if names[i] == "" {
			names[i] = fmt.Sprintf("arg%d", p.Idx)
		}
	}
	return names
}

// RequiredPermissions converts the declared permissions.
func (f ManifestFunction) RequiredPermissions() (permissions.Set, error) {
	set := make(permissions.Set, 0, len(f.Permissions))
	for _, p := range f.Permissions {
		kind, err := permissions.ParseKind(p.Kind)
		if err != nil {
			return nil, fmt.Errorf("function %s: %w", f.Name, err)
		}
		level, err := permissions.ParseLevel(p.Level)
		if err != nil {
			return nil, fmt.Errorf("function %s: %w", f.Name, err)
		}
		perm := permissions.New(kind, p.Resource...).WithLevel(level)
		if p.DisplayName != "" {
			perm.DisplayName = p.DisplayName
		}
		perm.Description = p.Description
		set = append(set, perm)
	}
	return set, nil
}

var (
	manifestSchemaOnce sync.Once
	manifestSchema     *validator.Schema
	manifestSchemaErr  error
)

// ManifestSchema returns the JSON Schema of Manifest.
func ManifestSchema() ([]byte, error) {
	reflector := jsonschema.Reflector{
		DoNotReference: true,
		Anonymous:      true,
	}
	schema := reflector.Reflect(&Manifest{})

	out, err := json.MarshalIndent(schema, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to marshal manifest schema: %w", err)
	}
	return out, nil
}

func compiledManifestSchema() (*validator.Schema, error) {
	manifestSchemaOnce.Do(func() {
		raw, err := ManifestSchema()
		if err != nil {
			manifestSchemaErr = err
			return
		}

		compiler := validator.NewCompiler()
		compiler.Draft = validator.Draft2020
		if err := compiler.AddResource("manifest.json", bytes.NewReader(raw)); err != nil {
			manifestSchemaErr = fmt.Errorf("failed to add manifest schema: %w", err)
			return
		}
		manifestSchema, manifestSchemaErr = compiler.Compile("manifest.json")
	})
	return manifestSchema, manifestSchemaErr
}

// ParseManifest validates raw against the manifest schema and decodes it.
func ParseManifest(raw []byte) (*Manifest, error) {
	schema, err := compiledManifestSchema()
	if err != nil {
		return nil, err
	}

	var doc any
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("manifest is not valid JSON: %w", err)
	}
	if err := schema.Validate(doc); err != nil {
		if ve, ok := err.(*validator.ValidationError); ok {
			return nil, formatSchemaValidationError(ve)
		}
		return nil, fmt.Errorf("manifest validation failed: %w", err)
	}

	var m Manifest
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil, fmt.Errorf("failed to decode manifest: %w", err)
	}
	for _, fn := range m.Functions {
		if _, err := fn.RequiredPermissions(); err != nil {
			return nil, err
		}
	}
	return &m, nil
}

// formatSchemaValidationError flattens a validation error tree into one
// message listing every failing location.
func formatSchemaValidationError(err *validator.ValidationError) error {
	var messages []string

	var collect func(*validator.ValidationError)
	collect = func(e *validator.ValidationError) {
		if e.Message != "" && len(e.Causes) == 0 {
			location := e.InstanceLocation
			if location == "" {
				location = "(root)"
			}
			messages = append(messages, fmt.Sprintf("%s: %s", location, e.Message))
		}
		for _, cause := range e.Causes {
			collect(cause)
		}
	}
	collect(err)

	if len(messages) == 0 {
		return fmt.Errorf("manifest validation failed")
	}
	return fmt.Errorf("manifest validation failed:\n    - %s", strings.Join(messages, "\n    - "))
}
