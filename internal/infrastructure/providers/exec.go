package providers

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os/exec"
	"strings"
	"time"

	apperrors "github.com/reglet-dev/flowgate/internal/application/errors"
	"github.com/reglet-dev/flowgate/internal/domain/capability"
	"github.com/reglet-dev/flowgate/internal/domain/permissions"
)

// ExecPackageID is the id of the process execution package.
const ExecPackageID = "app.flowgate.core.exec"

var execFunctionID = functionID(ExecPackageID, "exec")

// ExecPackage exposes exec(command) as a global.
func ExecPackage(opts Options) capability.Package {
	required := permissions.NewSet(permissions.Permission{
		DisplayName: "Command Access",
		Description: "Allows the workflow to execute shell commands.",
		Kind:        permissions.KindExecute,
	})

	return capability.Package{
		ID:          ExecPackageID,
		DisplayName: "Exec",
		Description: "Execute shell commands.",
		Provenance:  capability.Internal{},
		Functions: []capability.Function{{
			ID:          execFunctionID,
			Name:        "exec",
			DisplayName: "Exec",
			Description: "Executes a command in the default shell and returns its output.",
			Required:    required,
			ArgumentDoc: "command: string",
			ReturnDoc:   "string: standard output",
			Invocation: capability.Native{
				Async:    true,
				Callback: execCallback(opts),
			},
		}},
	}
}

func execCallback(opts Options) capability.NativeFunc {
	return func(ctx context.Context, rc capability.RunContext, args []string) (string, error) {
		command := arg(args, 0)
		if strings.TrimSpace(command) == "" {
			return "", apperrors.NewValidationError("command", "command is required")
		}

		required := permissions.NewSet(permissions.New(permissions.KindExecute, command))
		if err := rc.Authorize(execFunctionID, required); err != nil {
			return "", err
		}

		if opts.ExecTimeout > 0 {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, opts.ExecTimeout)
			defer cancel()
		}
		return runShell(ctx, command, opts.maxOutput())
	}
}

func runShell(ctx context.Context, command string, limit int) (string, error) {
	//nolint:gosec // G204: the command is authorized against the run's grants
	cmd := exec.CommandContext(ctx, "sh", "-c", command)

	stdout := newBoundedBuffer(limit)
	stderr := newBoundedBuffer(limit)
	cmd.Stdout = stdout
	cmd.Stderr = stderr

	start := time.Now()
	err := cmd.Run()
	duration := time.Since(start)

	if stdout.truncated || stderr.truncated {
		slog.WarnContext(ctx, "command output truncated", "command", command)
	}
	slog.DebugContext(ctx, "executed command", "command", command, "duration", duration, "error", err)

	if err == nil {
		return stdout.String(), nil
	}

	if ctxErr := ctx.Err(); ctxErr != nil {
		return "", ctxErr
	}

	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return "", &apperrors.CommandFailedError{
			Command: command,
			Stderr:  strings.TrimSpace(stderr.String()),
			Code:    exitErr.ExitCode(),
		}
	}
	return "", fmt.Errorf("failed to run command %q: %w", command, err)
}

// boundedBuffer drops writes past its limit instead of failing them.
type boundedBuffer struct {
	buffer    bytes.Buffer
	limit     int
	truncated bool
}

func newBoundedBuffer(limit int) *boundedBuffer {
	return &boundedBuffer{limit: limit}
}

func (b *boundedBuffer) Write(p []byte) (int, error) {
	remaining := b.limit - b.buffer.Len()
	if remaining <= 0 {
		b.truncated = true
		return len(p), nil
	}
	if len(p) > remaining {
		b.truncated = true
		_, _ = b.buffer.Write(p[:remaining])
		return len(p), nil
	}
	return b.buffer.Write(p)
}

func (b *boundedBuffer) String() string {
	return b.buffer.String()
}
