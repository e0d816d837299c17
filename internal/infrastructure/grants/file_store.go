// Package grants persists and prompts for function grants.
package grants

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/goccy/go-yaml"
	"github.com/reglet-dev/flowgate/internal/domain/permissions"
	"github.com/reglet-dev/flowgate/internal/infrastructure/system"
)

// FileStore provides file-based persistence for function grants.
type FileStore struct {
	path string
}

// NewFileStore creates a new FileStore.
func NewFileStore(path string) *FileStore {
	return &FileStore{
		path: path,
	}
}

// Path returns the path to the grants file.
func (s *FileStore) Path() string {
	return s.path
}

// grantsFile represents the YAML structure of ~/.flowgate/grants.yaml
type grantsFile struct {
	Grants []system.GrantConfig `yaml:"grants"`
}

// Load loads grants from the grants file.
// If the file does not exist, it returns empty grants without error.
func (s *FileStore) Load() (permissions.Grants, error) {
	if _, err := os.Stat(s.path); os.IsNotExist(err) {
		return permissions.Grants{}, nil
	}

	//nolint:gosec // G304: path comes from system config
	data, err := os.ReadFile(s.path)
	if err != nil {
		return nil, fmt.Errorf("failed to read grants file: %w", err)
	}

	var file grantsFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("failed to parse grants file: %w", err)
	}

	grants, err := system.ToGrants(file.Grants)
	if err != nil {
		return nil, fmt.Errorf("invalid grants file %s: %w", s.path, err)
	}
	return grants, nil
}

// Save writes grants to the grants file, replacing its contents.
func (s *FileStore) Save(grants permissions.Grants) error {
	//nolint:gosec // G301: 0o755 is standard for user config directories (~/.flowgate)
	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return fmt.Errorf("failed to create grants directory: %w", err)
	}

	data, err := yaml.MarshalWithOptions(grantsFile{Grants: system.FromGrants(grants)}, yaml.IndentSequence(true))
	if err != nil {
		return fmt.Errorf("failed to marshal grants to YAML: %w", err)
	}

	return os.WriteFile(s.path, data, 0o600)
}
