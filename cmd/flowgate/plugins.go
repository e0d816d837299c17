package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/charmbracelet/huh"
	"github.com/reglet-dev/flowgate/internal/application/dto"
	"github.com/reglet-dev/flowgate/internal/domain/values"
	"github.com/reglet-dev/flowgate/internal/infrastructure/grants"
	"github.com/spf13/cobra"
)

// pluginsCmd represents the plugins command
var pluginsCmd = &cobra.Command{
	Use:   "plugins",
	Short: "Manage external plugin packages",
	Long: `Manage external plugin packages. A package is a JavaScript bundle installed
as author/package/version into the plugin directory and tracked in the database.`,
}

func init() {
	pluginsCmd.AddCommand(
		newPluginsInstallCmd(),
		newPluginsUninstallCmd(),
		newPluginsListCmd(),
		newPluginsScanCmd(),
		newPluginsReconcileCmd(),
	)
	rootCmd.AddCommand(pluginsCmd)
}

func newPluginsInstallCmd() *cobra.Command {
	var (
		format       string
		metadataPath string
	)

	cmd := &cobra.Command{
		Use:   "install <author/package/version> <package.js>",
		Short: "Install a plugin bundle",
		Example: `  flowgate plugins install acme/tools/1.0.0 ./dist/package.js
  flowgate plugins install acme/tools/1.1.0 ./dist/package.js --metadata ./metadata.json`,
		Args: cobra.ExactArgs(2),
		RunE: withContainer(func(ctx *CommandContext, cmd *cobra.Command, args []string) error {
			id, err := values.ParsePluginPackageID(args[0])
			if err != nil {
				return err
			}
			bundle, err := os.ReadFile(args[1])
			if err != nil {
				return fmt.Errorf("failed to read bundle: %w", err)
			}

			req := dto.InstallPluginRequest{
				Author:  id.Author(),
				Package: id.Package(),
				Version: id.Version(),
				Bundle:  string(bundle),
			}
			if metadataPath != "" {
				if req.Metadata, err = os.ReadFile(metadataPath); err != nil {
					return fmt.Errorf("failed to read metadata: %w", err)
				}
			}

			resp, err := ctx.Container.PluginService().Install(ctx.Context, req)
			if err != nil {
				return err
			}
			return render(ctx, cmd, format, resp)
		}),
	}

	cmd.Flags().StringVar(&metadataPath, "metadata", "", "Path to metadata.json describing the package permissions")
	addFormatFlag(cmd, &format)
	return cmd
}

func newPluginsUninstallCmd() *cobra.Command {
	var yes bool

	cmd := &cobra.Command{
		Use:   "uninstall <author/package/version>",
		Short: "Remove an installed plugin",
		Args:  cobra.ExactArgs(1),
		RunE: withContainer(func(ctx *CommandContext, cmd *cobra.Command, args []string) error {
			id, err := (&dto.PluginRefRequest{Ref: args[0]}).ToPackageID()
			if err != nil {
				return err
			}

			if !yes && grants.NewTerminalPrompter().IsInteractive() {
				confirmed := false
				err := huh.NewConfirm().
					Title(fmt.Sprintf("Uninstall %s?", id)).
					Description("The bundle directory is deleted.").
					Value(&confirmed).
					Run()
				if err != nil && !errors.Is(err, huh.ErrUserAborted) {
					return err
				}
				if !confirmed {
					fmt.Fprintln(cmd.OutOrStdout(), "Aborted.")
					return nil
				}
			}

			if err := ctx.Container.PluginService().Uninstall(ctx.Context, id); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Uninstalled %s\n", id)
			return nil
		}),
	}

	cmd.Flags().BoolVarP(&yes, "yes", "y", false, "Skip the confirmation prompt")
	return cmd
}

func newPluginsListCmd() *cobra.Command {
	var format string

	cmd := &cobra.Command{
		Use:     "list",
		Short:   "List installed plugins",
		Example: `  flowgate plugins list --format json`,
		Args:    cobra.NoArgs,
		RunE: withContainer(func(ctx *CommandContext, cmd *cobra.Command, _ []string) error {
			plugins, err := ctx.Container.PluginService().List(ctx.Context)
			if err != nil {
				return fmt.Errorf("failed to list plugins: %w", err)
			}
			return render(ctx, cmd, format, plugins)
		}),
	}

	addFormatFlag(cmd, &format)
	return cmd
}

func newPluginsScanCmd() *cobra.Command {
	var format string

	cmd := &cobra.Command{
		Use:   "scan",
		Short: "List the bundle directories found on disk",
		Args:  cobra.NoArgs,
		RunE: withContainer(func(ctx *CommandContext, cmd *cobra.Command, _ []string) error {
			ids, err := ctx.Container.PluginService().Scan(ctx.Context)
			if err != nil {
				return err
			}

			refs := make([]string, 0, len(ids))
			for _, id := range ids {
				refs = append(refs, id.String())
			}
			if format != "table" {
				return render(ctx, cmd, format, refs)
			}
			for _, ref := range refs {
				fmt.Fprintln(cmd.OutOrStdout(), ref)
			}
			return nil
		}),
	}

	addFormatFlag(cmd, &format)
	return cmd
}

func newPluginsReconcileCmd() *cobra.Command {
	var format string

	cmd := &cobra.Command{
		Use:   "reconcile",
		Short: "Repair plugin rows against the bundle directories on disk",
		Long: `Compare the plugin directory with the database. Rows whose directory is gone
are marked missing, rows whose directory came back are restored, and stale
pending installs are removed. Directories without a row are only reported.`,
		Args: cobra.NoArgs,
		RunE: withContainer(func(ctx *CommandContext, cmd *cobra.Command, _ []string) error {
			report, err := ctx.Container.PluginService().Reconcile(ctx.Context)
			if err != nil {
				return err
			}
			return render(ctx, cmd, format, report)
		}),
	}

	addFormatFlag(cmd, &format)
	return cmd
}
