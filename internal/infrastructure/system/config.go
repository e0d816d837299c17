// Package system provides infrastructure for system-level configuration.
// This includes loading the system config file (~/.flowgate/config.yaml)
// and the grants applied to every run.
package system

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/goccy/go-yaml"
	"github.com/reglet-dev/flowgate/internal/domain/permissions"
)

// Database drivers understood by the container.
const (
	DriverMemory = "memory"
	DriverSQLite = "sqlite"
)

// Config represents the global configuration file (~/.flowgate/config.yaml).
type Config struct {
	DataDir    string          `yaml:"data_dir"`
	PluginsDir string          `yaml:"plugins_dir"`
	Database   DatabaseConfig  `yaml:"database"`
	Runtime    RuntimeConfig   `yaml:"runtime"`
	Providers  ProvidersConfig `yaml:"providers"`
	Redaction  RedactionConfig `yaml:"redaction"`
	Security   SecurityConfig  `yaml:"security"`
	Watch      WatchConfig     `yaml:"watch"`
	Grants     []GrantConfig   `yaml:"grants"`
}

// DatabaseConfig selects the repository backend.
type DatabaseConfig struct {
	// Driver is "memory" or "sqlite".
	Driver string `yaml:"driver"`
	// Path is the sqlite database file. Relative paths resolve against DataDir.
	Path string `yaml:"path"`
}

// RuntimeConfig tunes the workflow sandbox.
type RuntimeConfig struct {
	// DefaultTimeout bounds a run when the caller sets no deadline. Zero disables it.
	DefaultTimeout time.Duration `yaml:"default_timeout"`
	// MaxAsyncTasks limits concurrently executing async host calls. Zero is unlimited.
	MaxAsyncTasks int `yaml:"max_async_tasks"`
	// MaxConcurrentRuns limits runs executed by a batch or the watcher.
	MaxConcurrentRuns int `yaml:"max_concurrent_runs"`
}

// ProvidersConfig tunes the internal capability providers.
type ProvidersConfig struct {
	ExecTimeout    time.Duration `yaml:"exec_timeout"`
	FetchTimeout   time.Duration `yaml:"fetch_timeout"`
	MaxOutputBytes int           `yaml:"max_output_bytes"`
}

// RedactionConfig configures how result text is sanitized.
type RedactionConfig struct {
	HashMode        HashModeConfig `yaml:"hash_mode"`
	Patterns        []string       `yaml:"patterns"`
	Env             []string       `yaml:"env"`
	DisableGitleaks bool           `yaml:"disable_gitleaks"`
}

// HashModeConfig controls hash-based redaction.
type HashModeConfig struct {
	Salt    string `yaml:"salt"`
	Enabled bool   `yaml:"enabled"`
}

// SecurityConfig configures the interactive grant policy.
type SecurityConfig struct {
	// Level defines the security policy: "strict", "standard", or "permissive"
	// - strict: never prompt, deny anything not granted
	// - standard: prompt for missing grants (default)
	// - permissive: grant whatever a function requires without prompting
	Level string `yaml:"level"`

	// GrantsFile stores grants the user chose to keep ("always").
	GrantsFile string `yaml:"grants_file"`
}

// WatchConfig configures the debug workflow watcher.
type WatchConfig struct {
	Dir            string        `yaml:"dir"`
	Pattern        string        `yaml:"pattern"`
	Debounce       time.Duration `yaml:"debounce"`
	AllPermissions bool          `yaml:"all_permissions"`
}

// SecurityLevel represents the security enforcement level.
type SecurityLevel string

const (
	// SecurityLevelStrict denies anything not already granted
	SecurityLevelStrict SecurityLevel = "strict"

	// SecurityLevelStandard prompts for missing grants (default)
	SecurityLevelStandard SecurityLevel = "standard"

	// SecurityLevelPermissive grants missing permissions without prompting
	SecurityLevelPermissive SecurityLevel = "permissive"
)

// GetSecurityLevel returns the configured security level, defaulting to Standard.
func (c *SecurityConfig) GetSecurityLevel() SecurityLevel {
	switch c.Level {
	case "strict":
		return SecurityLevelStrict
	case "permissive":
		return SecurityLevelPermissive
	default:
		return SecurityLevelStandard
	}
}

// PermissionConfig is the YAML form of a permission.
type PermissionConfig struct {
	Kind     string   `yaml:"kind"`
	Level    string   `yaml:"level,omitempty"`
	Resource []string `yaml:"resource,omitempty"`
}

// GrantConfig is the YAML form of a function grant.
type GrantConfig struct {
	Function    string             `yaml:"function"`
	Permissions []PermissionConfig `yaml:"permissions"`
}

// ToGrants converts YAML grant entries into domain grants.
func ToGrants(entries []GrantConfig) (permissions.Grants, error) {
	grants := make(permissions.Grants, 0, len(entries))
	for _, entry := range entries {
		if entry.Function == "" {
			return nil, fmt.Errorf("grant entry is missing a function id")
		}
		set := make(permissions.Set, 0, len(entry.Permissions))
		for _, pc := range entry.Permissions {
			kind, err := permissions.ParseKind(pc.Kind)
			if err != nil {
				return nil, fmt.Errorf("grant %s: %w", entry.Function, err)
			}
			level := permissions.LevelUnspecified
			if pc.Level != "" {
				if level, err = permissions.ParseLevel(pc.Level); err != nil {
					return nil, fmt.Errorf("grant %s: %w", entry.Function, err)
				}
			}
			set = append(set, permissions.New(kind, pc.Resource...).WithLevel(level))
		}
		grants = append(grants, permissions.FunctionGrant{FunctionID: entry.Function, Granted: set})
	}
	return grants, nil
}

// FromGrants converts domain grants into YAML grant entries.
func FromGrants(grants permissions.Grants) []GrantConfig {
	entries := make([]GrantConfig, 0, len(grants))
	for _, g := range grants {
		entry := GrantConfig{Function: g.FunctionID, Permissions: make([]PermissionConfig, 0, len(g.Granted))}
		for _, p := range g.Granted {
			pc := PermissionConfig{Kind: p.Kind.String(), Resource: p.Resource}
			if p.Level != permissions.LevelUnspecified {
				pc.Level = p.Level.String()
			}
			entry.Permissions = append(entry.Permissions, pc)
		}
		entries = append(entries, entry)
	}
	return entries
}

// DefaultConfigPath returns ~/.flowgate/config.yaml, or a relative
// .flowgate/config.yaml when the home directory is unknown.
func DefaultConfigPath() string {
	return filepath.Join(defaultHome(), "config.yaml")
}

func defaultHome() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".flowgate"
	}
	return filepath.Join(home, ".flowgate")
}

// ConfigLoader loads system configuration from disk.
type ConfigLoader struct{}

// NewConfigLoader creates a new system config loader.
func NewConfigLoader() *ConfigLoader {
	return &ConfigLoader{}
}

// DefaultConfig returns a Config with safe defaults for all fields.
// This is used when no system config file exists.
func DefaultConfig() *Config {
	home := defaultHome()
	return &Config{
		DataDir:    home,
		PluginsDir: filepath.Join(home, "plugins"),
		Database: DatabaseConfig{
			Driver: DriverSQLite,
			Path:   "flowgate.db",
		},
		Runtime: RuntimeConfig{
			DefaultTimeout:    5 * time.Minute,
			MaxAsyncTasks:     8,
			MaxConcurrentRuns: 4,
		},
		Providers: ProvidersConfig{
			ExecTimeout:    time.Minute,
			FetchTimeout:   30 * time.Second,
			MaxOutputBytes: 10 * 1024 * 1024,
		},
		Redaction: RedactionConfig{
			Patterns: []string{},
			Env:      []string{},
		},
		Security: SecurityConfig{
			Level:      string(SecurityLevelStandard),
			GrantsFile: filepath.Join(home, "grants.yaml"),
		},
		Watch: WatchConfig{
			Dir:      "debug_workflow",
			Pattern:  "**/*.js",
			Debounce: 300 * time.Millisecond,
		},
		Grants: []GrantConfig{},
	}
}

// Load loads the system configuration from the specified path.
// If the file does not exist, returns DefaultConfig() with safe defaults.
// Fields absent from the file keep their default values.
func (l *ConfigLoader) Load(path string) (*Config, error) {
	config := DefaultConfig()

	if _, err := os.Stat(path); os.IsNotExist(err) {
		return config, nil
	}

	//nolint:gosec // G304: path is user-provided config file, validated to exist above
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read system config: %w", err)
	}

	if err := yaml.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("failed to parse system config: %w", err)
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}
	return config, nil
}

// Validate checks values that cannot be defaulted.
func (c *Config) Validate() error {
	switch c.Database.Driver {
	case DriverMemory, DriverSQLite:
	default:
		return fmt.Errorf("unsupported database driver %q", c.Database.Driver)
	}
	if c.Runtime.DefaultTimeout < 0 {
		return fmt.Errorf("runtime.default_timeout must not be negative")
	}
	if _, err := ToGrants(c.Grants); err != nil {
		return fmt.Errorf("invalid grants: %w", err)
	}
	return nil
}

// DatabasePath resolves the sqlite path against DataDir.
func (c *Config) DatabasePath() string {
	if c.Database.Path == ":memory:" || filepath.IsAbs(c.Database.Path) {
		return c.Database.Path
	}
	return filepath.Join(c.DataDir, c.Database.Path)
}

// RunGrants returns the configured grants as domain grants.
func (c *Config) RunGrants() permissions.Grants {
	grants, err := ToGrants(c.Grants)
	if err != nil {
		return nil
	}
	return grants
}
