// Package container provides dependency injection for the application.
package container

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"

	"github.com/reglet-dev/flowgate/internal/application/ports"
	"github.com/reglet-dev/flowgate/internal/application/services"
	"github.com/reglet-dev/flowgate/internal/domain/capability"
	"github.com/reglet-dev/flowgate/internal/domain/repositories"
	"github.com/reglet-dev/flowgate/internal/infrastructure/grants"
	"github.com/reglet-dev/flowgate/internal/infrastructure/persistence/memory"
	"github.com/reglet-dev/flowgate/internal/infrastructure/persistence/sqlite"
	"github.com/reglet-dev/flowgate/internal/infrastructure/plugins/repository"
	"github.com/reglet-dev/flowgate/internal/infrastructure/providers"
	"github.com/reglet-dev/flowgate/internal/infrastructure/redaction"
	"github.com/reglet-dev/flowgate/internal/infrastructure/sandbox"
	"github.com/reglet-dev/flowgate/internal/infrastructure/system"
)

// Container holds all application dependencies.
type Container struct {
	systemCfg       *system.Config
	db              *sql.DB
	executor        *sandbox.Executor
	redactor        *redaction.Redactor
	pluginService   *services.PluginService
	workflowService *services.WorkflowService
	logger          *slog.Logger
}

// Options configure the container.
type Options struct {
	Logger *slog.Logger
	// SecurityLevel overrides security.level from the config file.
	SecurityLevel    string
	SystemConfigPath string
	// DataDir overrides data_dir from the config file.
	DataDir string
	// Database overrides database.driver from the config file.
	Database string
	// ConfigLoader reads the system config. Defaults to the YAML loader.
	ConfigLoader ports.SystemConfigProvider
}

// New creates a new dependency injection container.
func New(ctx context.Context, opts Options) (*Container, error) {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}

	configPath := opts.SystemConfigPath
	if configPath == "" {
		configPath = system.DefaultConfigPath()
	}
	if opts.ConfigLoader == nil {
		opts.ConfigLoader = system.NewConfigLoader()
	}
	systemCfg, err := opts.ConfigLoader.Load(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load system config %s: %w", configPath, err)
	}
	if opts.DataDir != "" {
		if systemCfg.Security.GrantsFile == system.DefaultConfig().Security.GrantsFile {
			systemCfg.Security.GrantsFile = filepath.Join(opts.DataDir, "grants.yaml")
		}
		systemCfg.DataDir = opts.DataDir
		systemCfg.PluginsDir = ""
	}
	if systemCfg.PluginsDir == "" {
		systemCfg.PluginsDir = filepath.Join(systemCfg.DataDir, "plugins")
	}
	if opts.Database != "" {
		systemCfg.Database.Driver = opts.Database
		if err := systemCfg.Validate(); err != nil {
			return nil, err
		}
	}

	// Resolve secrets named in the config so they are scrubbed by value
	var literals []string
	for _, name := range systemCfg.Redaction.Env {
		if v := os.Getenv(name); v != "" {
			literals = append(literals, v)
		}
	}
	redactor, err := redaction.New(redaction.Config{
		Patterns:        systemCfg.Redaction.Patterns,
		Literals:        literals,
		HashMode:        systemCfg.Redaction.HashMode.Enabled,
		Salt:            systemCfg.Redaction.HashMode.Salt,
		DisableGitleaks: systemCfg.Redaction.DisableGitleaks,
	})
	if err != nil {
		return nil, err
	}

	c := &Container{
		systemCfg: systemCfg,
		redactor:  redactor,
		logger:    opts.Logger,
	}

	var (
		pluginRepo   repositories.PluginRepository
		workflowRepo repositories.WorkflowRepository
	)
	switch systemCfg.Database.Driver {
	case system.DriverMemory:
		pluginRepo = memory.NewPluginRepository()
		workflowRepo = memory.NewWorkflowRepository()
	default:
		db, err := sqlite.Open(ctx, systemCfg.DatabasePath())
		if err != nil {
			return nil, err
		}
		c.db = db
		pluginRepo = sqlite.NewPluginRepository(db)
		workflowRepo = sqlite.NewWorkflowRepository(db)
	}

	store := repository.NewFSBundleStore(systemCfg.PluginsDir)
	c.pluginService = services.NewPluginService(pluginRepo, store, opts.Logger)

	registry, err := capability.NewRegistry(providers.Internal(providers.Options{
		ExecTimeout:    systemCfg.Providers.ExecTimeout,
		HTTPClient:     &http.Client{Timeout: systemCfg.Providers.FetchTimeout},
		MaxOutputBytes: systemCfg.Providers.MaxOutputBytes,
	})...)
	if err != nil {
		_ = c.Close()
		return nil, err
	}
	c.executor = sandbox.NewExecutor(systemCfg.Runtime.MaxAsyncTasks)
	runtime := sandbox.NewRuntime(registry, c.executor)

	// Determine security level (command-line flag takes precedence over config file)
	securityLevel := systemCfg.Security.GetSecurityLevel()
	if opts.SecurityLevel != "" {
		securityLevel = (&system.SecurityConfig{Level: opts.SecurityLevel}).GetSecurityLevel()
	}
	gatekeeper := services.NewGrantGatekeeper(
		grants.NewFileStore(systemCfg.Security.GrantsFile),
		grants.NewTerminalPrompter(),
		securityLevel,
		opts.Logger,
	)

	c.workflowService = services.NewWorkflowService(
		workflowRepo,
		runtime,
		c.pluginService,
		gatekeeper,
		redactor,
		services.WorkflowConfig{
			DefaultTimeout:    systemCfg.Runtime.DefaultTimeout,
			MaxConcurrentRuns: systemCfg.Runtime.MaxConcurrentRuns,
			BaseGrants:        systemCfg.RunGrants(),
		},
		opts.Logger,
	)

	opts.Logger.Debug("container ready",
		"data_dir", systemCfg.DataDir,
		"database", systemCfg.Database.Driver,
		"security_level", string(securityLevel))
	return c, nil
}

// Close waits for outstanding async calls and closes the database.
func (c *Container) Close() error {
	if c.executor != nil {
		c.executor.Wait()
	}
	if c.db != nil {
		return c.db.Close()
	}
	return nil
}

// PluginService returns the plugin management use cases.
func (c *Container) PluginService() *services.PluginService {
	return c.pluginService
}

// WorkflowService returns the workflow use cases.
func (c *Container) WorkflowService() *services.WorkflowService {
	return c.workflowService
}

// Redactor returns the output redactor.
func (c *Container) Redactor() *redaction.Redactor {
	return c.redactor
}

// SystemConfig returns the system configuration.
func (c *Container) SystemConfig() *system.Config {
	return c.systemCfg
}

// Logger returns the configured logger.
func (c *Container) Logger() *slog.Logger {
	return c.logger
}
