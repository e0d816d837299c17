package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path"
	"strings"
	"sync"
	"syscall"

	"github.com/reglet-dev/flowgate/internal/application/dto"
	"github.com/reglet-dev/flowgate/internal/infrastructure/watch"
	"github.com/spf13/cobra"
)

func init() {
	rootCmd.AddCommand(newWatchCmd())
}

func newWatchCmd() *cobra.Command {
	var (
		format      string
		plugins     []string
		runExisting bool
	)

	cmd := &cobra.Command{
		Use:   "watch [dir]",
		Short: "Run workflow scripts as they are saved into a directory",
		Long: `Watch a directory tree and run every matching script when it is created or
modified. Each script is stored under its relative path without extension.
The directory, pattern and debounce default to the watch section of the
system config.`,
		Args: cobra.MaximumNArgs(1),
		RunE: withContainer(func(ctx *CommandContext, cmd *cobra.Command, args []string) error {
			cfg := ctx.Container.SystemConfig()
			dir := cfg.Watch.Dir
			if len(args) == 1 {
				dir = args[0]
			}

			var mu sync.Mutex
			handler := func(runCtx context.Context, file, rel string) {
				data, err := os.ReadFile(file)
				if err != nil {
					ctx.Logger.Error("failed to read script", "path", file, "error", err)
					return
				}
				resp, err := ctx.Container.WorkflowService().RunScript(runCtx, dto.RunScriptRequest{
					Name:           strings.TrimSuffix(rel, path.Ext(rel)),
					Code:           string(data),
					Plugins:        plugins,
					AllPermissions: cfg.Watch.AllPermissions,
				})
				if err != nil {
					ctx.Logger.Error("workflow run failed", "path", rel, "error", err)
					return
				}

				mu.Lock()
				defer mu.Unlock()
				if err := render(ctx, cmd, format, resp); err != nil {
					ctx.Logger.Error("failed to render result", "path", rel, "error", err)
				}
			}

			w, err := watch.New(watch.Config{
				Dir:      dir,
				Pattern:  cfg.Watch.Pattern,
				Debounce: cfg.Watch.Debounce,
				Workers:  cfg.Runtime.MaxConcurrentRuns,
			}, handler, ctx.Logger)
			if err != nil {
				return err
			}

			runCtx, stop := signal.NotifyContext(ctx.Context, os.Interrupt, syscall.SIGTERM)
			defer stop()

			if runExisting {
				existing, err := w.Existing()
				if err != nil {
					return err
				}
				for _, file := range existing {
					if rel, ok := w.Match(file); ok {
						handler(runCtx, file, rel)
					}
				}
			}

			fmt.Fprintf(cmd.ErrOrStderr(), "Watching %s (Ctrl+C to stop)\n", dir)
			return w.Run(runCtx)
		}),
	}

	cmd.Flags().StringSliceVar(&plugins, "plugins", nil, "External packages to load for every run")
	cmd.Flags().BoolVar(&runExisting, "run-existing", false, "Run matching scripts already present before watching")
	addFormatFlag(cmd, &format)
	return cmd
}
