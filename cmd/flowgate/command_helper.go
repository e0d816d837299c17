package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/reglet-dev/flowgate/internal/application/ports"
	"github.com/reglet-dev/flowgate/internal/infrastructure/container"
	"github.com/reglet-dev/flowgate/internal/infrastructure/output"
	"github.com/reglet-dev/flowgate/internal/infrastructure/redaction"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// CommandContext provides common command dependencies.
type CommandContext struct {
	Container *container.Container
	Logger    *slog.Logger
	Context   context.Context
}

// CommandHandler is a function that executes with initialized dependencies.
type CommandHandler func(*CommandContext, *cobra.Command, []string) error

// withContainer wraps a command handler with container initialization.
// The container is closed when the handler returns.
func withContainer(handler CommandHandler) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) (err error) {
		logger := slog.Default()

		c, err := container.New(cmd.Context(), container.Options{
			Logger:           logger,
			SystemConfigPath: cfgFile,
			DataDir:          viper.GetString("data-dir"),
			Database:         viper.GetString("database"),
			SecurityLevel:    viper.GetString("security-level"),
		})
		if err != nil {
			return fmt.Errorf("failed to initialize application: %w", err)
		}
		defer func() {
			if cerr := c.Close(); cerr != nil && err == nil {
				err = fmt.Errorf("failed to close application: %w", cerr)
			}
		}()

		ctx := &CommandContext{
			Container: c,
			Logger:    logger,
			Context:   cmd.Context(),
		}
		return handler(ctx, cmd, args)
	}
}

// addFormatFlag adds the --format flag shared by commands that print results.
func addFormatFlag(cmd *cobra.Command, target *string) {
	cmd.Flags().StringVar(target, "format", "table", "Output format: table, json, yaml")
}

// render writes v to the command's output in the given format. Output
// passes through the container's redactor.
func render(ctx *CommandContext, cmd *cobra.Command, format string, v any) error {
	w := redaction.NewWriter(cmd.OutOrStdout(), ctx.Container.Redactor())
	formatter, err := output.NewFormatterFactory().Create(format, w, ports.FormatterOptions{
		Indent:  true,
		NoColor: os.Getenv("NO_COLOR") != "",
	})
	if err != nil {
		return err
	}
	return formatter.Format(v)
}
