package grants

import (
	"testing"

	"github.com/reglet-dev/flowgate/internal/domain/permissions"
	"github.com/stretchr/testify/assert"
)

func TestTerminalPrompter_IsInteractive(t *testing.T) {
	// Not t.Parallel() because it inspects os.Stdin
	prompter := NewTerminalPrompter()
	assert.IsType(t, true, prompter.IsInteractive())
}

func TestDescribePermission(t *testing.T) {
	t.Parallel()

	tests := []struct {
		perm     permissions.Permission
		expected string
	}{
		{permissions.New(permissions.KindFilesystemRead, "/var/log"), "Read files: /var/log"},
		{permissions.New(permissions.KindFilesystemWrite), "Write files: anything"},
		{permissions.New(permissions.KindExecute), "Execute (invoke the function)"},
		{permissions.New(permissions.KindExecute, "ls -la"), "Execute commands: ls -la"},
		{permissions.New(permissions.KindNetAccess, "example.com", "api.example.com"), "Network access to: example.com, api.example.com"},
		{permissions.New(permissions.KindNetworkAccess), "Unrestricted network access"},
		{permissions.New(permissions.KindSearch, "/src").WithLevel(permissions.LevelHigh), "Search files under: /src [High]"},
	}

	for _, tt := range tests {
		t.Run(tt.expected, func(t *testing.T) {
			assert.Equal(t, tt.expected, describePermission(tt.perm))
		})
	}
}

func TestTerminalPrompter_FormatNonInteractiveError(t *testing.T) {
	t.Parallel()

	prompter := NewTerminalPrompter()
	missing := permissions.Grants{
		{FunctionID: "app.flowgate.core.filesystem.read", Granted: permissions.Set{
			permissions.New(permissions.KindFilesystemRead, "/etc/shadow"),
		}},
		{FunctionID: "app.flowgate.core.exec.exec", Granted: permissions.Set{
			permissions.New(permissions.KindExecute, "/usr/bin/sudo"),
		}},
	}

	err := prompter.FormatNonInteractiveError(missing, "/home/u/.flowgate/grants.yaml")
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "requires additional permissions")
	assert.Contains(t, err.Error(), "  - app.flowgate.core.filesystem.read: Read files: /etc/shadow")
	assert.Contains(t, err.Error(), "  - app.flowgate.core.exec.exec: Execute commands: /usr/bin/sudo")
	assert.Contains(t, err.Error(), "2. Pass --grant")
	assert.Contains(t, err.Error(), "/home/u/.flowgate/grants.yaml")
}
