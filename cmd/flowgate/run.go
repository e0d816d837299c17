package main

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/reglet-dev/flowgate/internal/application/dto"
	"github.com/spf13/cobra"
)

// runOptions holds the flags of the run command.
type runOptions struct {
	name           string
	format         string
	grants         []string
	plugins        []string
	timeout        time.Duration
	allPermissions bool
	interactive    bool
}

func init() {
	rootCmd.AddCommand(newRunCmd())
}

func newRunCmd() *cobra.Command {
	opts := &runOptions{}

	cmd := &cobra.Command{
		Use:   "run <script.js|->",
		Short: "Run a workflow script",
		Long: `Run a JavaScript workflow script in the sandbox and store its result.

The script is saved under its file name (or --name), so repeated runs of the
same script build up one result history. Functions are only callable when
their permissions are granted, either in the system config, with --grant, or
interactively at the standard security level.

Grant syntax:
  --grant app.flowgate.core.exec.exec=Execute
  --grant app.flowgate.core.fetch.fetch=NetAccess:api.example.com
  --grant '*=FilesystemRead@High:/tmp,/var/log'`,
		Example: `  flowgate run hello.js
  flowgate run deploy.js --plugins acme.tools --grant acme-tools-1.0.0-deploy=Execute
  cat probe.js | flowgate run - --name probe --format json`,
		Args: cobra.ExactArgs(1),
		RunE: withContainer(func(ctx *CommandContext, cmd *cobra.Command, args []string) error {
			return runScript(ctx, cmd, args[0], opts)
		}),
	}

	cmd.Flags().StringVar(&opts.name, "name", "", "Code id to store the script under (default: file name)")
	cmd.Flags().StringArrayVar(&opts.grants, "grant", nil, "Grant a permission: function_id=Kind[@Level][:resources] (repeatable)")
	cmd.Flags().StringSliceVar(&opts.plugins, "plugins", nil, "External packages to load: namespace, author/package/version, or *")
	cmd.Flags().DurationVar(&opts.timeout, "timeout", 0, "Run timeout (default from system config)")
	cmd.Flags().BoolVar(&opts.allPermissions, "all-permissions", false, "Grant every permission to every function (debug only)")
	cmd.Flags().BoolVarP(&opts.interactive, "interactive", "i", true, "Prompt for missing grants when the security level allows it")
	addFormatFlag(cmd, &opts.format)

	return cmd
}

func runScript(ctx *CommandContext, cmd *cobra.Command, path string, opts *runOptions) error {
	code, err := readScript(cmd.InOrStdin(), path)
	if err != nil {
		return err
	}

	name := opts.name
	if name == "" {
		if path == "-" {
			return fmt.Errorf("--name is required when reading the script from stdin")
		}
		name = strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	}

	grants, err := parseGrantFlags(opts.grants)
	if err != nil {
		return err
	}

	resp, err := ctx.Container.WorkflowService().RunScript(ctx.Context, dto.RunScriptRequest{
		Name:           name,
		Code:           code,
		Grants:         grants,
		Plugins:        opts.plugins,
		Timeout:        opts.timeout,
		AllPermissions: opts.allPermissions,
		Interactive:    opts.interactive,
	})
	if err != nil {
		return err
	}

	if err := render(ctx, cmd, opts.format, resp); err != nil {
		return err
	}
	if !resp.Result.Succeeded() {
		return fmt.Errorf("workflow %s ended with %s", name, resp.Result.Type)
	}
	return nil
}

func readScript(stdin io.Reader, path string) (string, error) {
	var (
		data []byte
		err  error
	)
	if path == "-" {
		data, err = io.ReadAll(stdin)
	} else {
		data, err = os.ReadFile(path)
	}
	if err != nil {
		return "", fmt.Errorf("failed to read script %s: %w", path, err)
	}
	return string(data), nil
}
