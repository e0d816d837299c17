package system

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/reglet-dev/flowgate/internal/domain/permissions"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConfigLoader_Load_FileNotExists(t *testing.T) {
	loader := NewConfigLoader()
	cfg, err := loader.Load("/nonexistent/config.yaml")

	require.NoError(t, err)
	assert.NotNil(t, cfg)
	assert.Empty(t, cfg.Grants)
	assert.Equal(t, DriverSQLite, cfg.Database.Driver)
	assert.Equal(t, SecurityLevelStandard, cfg.Security.GetSecurityLevel())
}

func TestConfigLoader_Load_ValidConfig(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")

	yaml := `
data_dir: /var/lib/flowgate
database:
  driver: memory
runtime:
  default_timeout: 30s
  max_async_tasks: 2
grants:
  - function: app.flowgate.core.exec.exec
    permissions:
      - kind: Execute
        resource: ["ls -la"]
  - function: "*"
    permissions:
      - kind: FilesystemRead
        level: High

redaction:
  patterns:
    - "password\\s*=\\s*\\S+"
  env:
    - GITHUB_TOKEN
  hash_mode:
    enabled: true
    salt: "test-salt"
`
	err := os.WriteFile(configPath, []byte(yaml), 0o600)
	require.NoError(t, err)

	loader := NewConfigLoader()
	cfg, err := loader.Load(configPath)

	require.NoError(t, err)
	assert.Equal(t, "/var/lib/flowgate", cfg.DataDir)
	assert.Equal(t, DriverMemory, cfg.Database.Driver)
	assert.Equal(t, 30*time.Second, cfg.Runtime.DefaultTimeout)
	assert.Equal(t, 2, cfg.Runtime.MaxAsyncTasks)
	// untouched sections keep defaults
	assert.Equal(t, 4, cfg.Runtime.MaxConcurrentRuns)
	assert.Equal(t, "**/*.js", cfg.Watch.Pattern)

	assert.Len(t, cfg.Redaction.Patterns, 1)
	assert.Equal(t, []string{"GITHUB_TOKEN"}, cfg.Redaction.Env)
	assert.True(t, cfg.Redaction.HashMode.Enabled)
	assert.Equal(t, "test-salt", cfg.Redaction.HashMode.Salt)

	grants := cfg.RunGrants()
	require.Len(t, grants, 2)
	assert.Equal(t, "app.flowgate.core.exec.exec", grants[0].FunctionID)
	assert.Equal(t, permissions.KindExecute, grants[0].Granted[0].Kind)
	assert.Equal(t, []string{"ls -la"}, grants[0].Granted[0].Resource)
	assert.True(t, grants[1].IsWildcard())
	assert.Equal(t, permissions.LevelHigh, grants[1].Granted[0].Level)
}

func TestConfigLoader_Load_Invalid(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{name: "unknown driver", body: "database:\n  driver: postgres\n"},
		{name: "unknown kind", body: "grants:\n  - function: x\n    permissions:\n      - kind: Teleport\n"},
		{name: "missing function", body: "grants:\n  - permissions:\n      - kind: Execute\n"},
		{name: "bad yaml", body: "runtime: [\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "config.yaml")
			require.NoError(t, os.WriteFile(path, []byte(tt.body), 0o600))

			_, err := NewConfigLoader().Load(path)
			assert.Error(t, err)
		})
	}
}

func TestGrantsRoundTrip(t *testing.T) {
	t.Parallel()

	grants := permissions.Grants{
		{FunctionID: "acme-tools-1.0.0-ping", Granted: permissions.Set{
			permissions.New(permissions.KindExecute),
			permissions.New(permissions.KindNetAccess, "example.com").WithLevel(permissions.LevelMedium),
		}},
	}

	back, err := ToGrants(FromGrants(grants))
	require.NoError(t, err)
	require.Len(t, back, 1)
	assert.Equal(t, grants[0].FunctionID, back[0].FunctionID)
	assert.Equal(t, permissions.KindNetAccess, back[0].Granted[1].Kind)
	assert.Equal(t, permissions.LevelMedium, back[0].Granted[1].Level)
	assert.Equal(t, []string{"example.com"}, back[0].Granted[1].Resource)
}

func TestConfig_DatabasePath(t *testing.T) {
	t.Parallel()

	cfg := &Config{DataDir: "/data", Database: DatabaseConfig{Path: "flowgate.db"}}
	assert.Equal(t, filepath.Join("/data", "flowgate.db"), cfg.DatabasePath())

	cfg.Database.Path = "/abs/x.db"
	assert.Equal(t, "/abs/x.db", cfg.DatabasePath())

	cfg.Database.Path = ":memory:"
	assert.Equal(t, ":memory:", cfg.DatabasePath())
}
