package main

import (
	"github.com/reglet-dev/flowgate/internal/application/dto"
	"github.com/spf13/cobra"
)

func init() {
	resultsCmd := &cobra.Command{
		Use:   "results",
		Short: "Inspect stored workflow results",
	}
	resultsCmd.AddCommand(newResultsListCmd())
	rootCmd.AddCommand(resultsCmd)
}

func newResultsListCmd() *cobra.Command {
	var (
		format string
		filter string
		limit  int
	)

	cmd := &cobra.Command{
		Use:   "list <code-id>",
		Short: "List the results of a code id",
		Long: `List the stored results of a code id in revision order.

--filter takes a boolean expression over the fields revision, exit_code,
result_type, text and ran_at.`,
		Example: `  flowgate results list hello
  flowgate results list deploy --filter 'result_type == "Failure"' --limit 5`,
		Args: cobra.ExactArgs(1),
		RunE: withContainer(func(ctx *CommandContext, cmd *cobra.Command, args []string) error {
			resp, err := ctx.Container.WorkflowService().ListResults(ctx.Context, dto.ListResultsRequest{
				CodeID: args[0],
				Filter: filter,
				Limit:  limit,
			})
			if err != nil {
				return err
			}
			return render(ctx, cmd, format, resp)
		}),
	}

	cmd.Flags().StringVar(&filter, "filter", "", "Filter expression")
	cmd.Flags().IntVar(&limit, "limit", 0, "Show only the newest N results")
	addFormatFlag(cmd, &format)
	return cmd
}
