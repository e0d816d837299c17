package grants

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/charmbracelet/huh"
	"github.com/reglet-dev/flowgate/internal/domain/permissions"
)

// Prompt choices.
const (
	choiceOnce   = "once"
	choiceAlways = "always"
	choiceDeny   = "deny"
)

// TerminalPrompter asks the user to approve grants interactively.
type TerminalPrompter struct{}

// NewTerminalPrompter creates a new TerminalPrompter.
func NewTerminalPrompter() *TerminalPrompter {
	return &TerminalPrompter{}
}

// IsInteractive checks if stdin is a terminal.
func (p *TerminalPrompter) IsInteractive() bool {
	fileInfo, err := os.Stdin.Stat()
	if err != nil {
		return false
	}
	return (fileInfo.Mode() & os.ModeCharDevice) != 0
}

// PromptForGrant asks whether functionID may use the required permissions.
// always reports that the decision should be saved.
func (p *TerminalPrompter) PromptForGrant(functionID string, required permissions.Set) (granted bool, always bool, err error) {
	lines := make([]string, 0, len(required))
	for _, perm := range required {
		lines = append(lines, "• "+describePermission(perm))
	}

	choice := choiceDeny
	err = huh.NewSelect[string]().
		Title(fmt.Sprintf("%s requires permission", functionID)).
		Description(strings.Join(lines, "\n")).
		Options(
			huh.NewOption("Allow for this run", choiceOnce),
			huh.NewOption("Always allow (save to grants file)", choiceAlways),
			huh.NewOption("Deny", choiceDeny),
		).
		Value(&choice).
		Run()
	if err != nil {
		if errors.Is(err, huh.ErrUserAborted) {
			return false, false, nil
		}
		return false, false, err
	}

	switch choice {
	case choiceOnce:
		return true, false, nil
	case choiceAlways:
		return true, true, nil
	default:
		return false, false, nil
	}
}

// describePermission returns a human-readable description of a permission.
func describePermission(perm permissions.Permission) string {
	scope := "anything"
	if len(perm.Resource) > 0 {
		scope = strings.Join(perm.Resource, ", ")
	}

	var desc string
	switch perm.Kind {
	case permissions.KindFilesystemRead:
		desc = "Read files: " + scope
	case permissions.KindFilesystemWrite:
		desc = "Write files: " + scope
	case permissions.KindExecute:
		if len(perm.Resource) == 0 {
			desc = "Execute (invoke the function)"
		} else {
			desc = "Execute commands: " + scope
		}
	case permissions.KindNetAccess:
		desc = "Network access to: " + scope
	case permissions.KindNetworkAccess:
		desc = "Unrestricted network access"
	case permissions.KindWindowManagement:
		desc = "Window management: " + scope
	case permissions.KindSearch:
		desc = "Search files under: " + scope
	default:
		desc = fmt.Sprintf("%s: %s", perm.Kind, scope)
	}

	if perm.Level != permissions.LevelUnspecified {
		desc += fmt.Sprintf(" [%s]", perm.Level)
	}
	return desc
}

// FormatNonInteractiveError creates a helpful error message for non-interactive mode.
func (p *TerminalPrompter) FormatNonInteractiveError(missing permissions.Grants, grantsFile string) error {
	var msg strings.Builder
	msg.WriteString("workflow requires additional permissions (running in non-interactive mode)\n\n")
	msg.WriteString("Required permissions:\n")

	for _, g := range missing {
		for _, perm := range g.Granted {
			fmt.Fprintf(&msg, "  - %s: %s\n", g.FunctionID, describePermission(perm))
		}
	}

	msg.WriteString("\nTo grant these permissions:\n")
	msg.WriteString("  1. Run interactively and approve when prompted\n")
	msg.WriteString("  2. Pass --grant function_id=Kind[:resource] flags\n")
	fmt.Fprintf(&msg, "  3. Manually edit: %s\n", grantsFile)

	return fmt.Errorf("%s", msg.String())
}
