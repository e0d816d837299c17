package main

import (
	"github.com/spf13/cobra"
)

func init() {
	capabilitiesCmd := &cobra.Command{
		Use:     "capabilities",
		Aliases: []string{"caps"},
		Short:   "Inspect the functions available to workflow scripts",
	}
	capabilitiesCmd.AddCommand(newCapabilitiesListCmd())
	rootCmd.AddCommand(capabilitiesCmd)
}

func newCapabilitiesListCmd() *cobra.Command {
	var (
		format  string
		plugins []string
	)

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List callable functions and the permissions they require",
		Example: `  flowgate capabilities list
  flowgate capabilities list --plugins '*' --format yaml`,
		Args: cobra.NoArgs,
		RunE: withContainer(func(ctx *CommandContext, cmd *cobra.Command, _ []string) error {
			catalog, err := ctx.Container.WorkflowService().Catalog(ctx.Context, plugins)
			if err != nil {
				return err
			}
			return render(ctx, cmd, format, catalog)
		}),
	}

	cmd.Flags().StringSliceVar(&plugins, "plugins", nil, "Include external packages: namespace, author/package/version, or *")
	addFormatFlag(cmd, &format)
	return cmd
}
