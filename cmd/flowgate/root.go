package main

import (
	"log/slog"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var (
	cfgFile string
	verbose bool
)

// rootCmd is the application entry point.
var rootCmd = &cobra.Command{
	Use:   "flowgate",
	Short: "Permission-gated JavaScript workflow runner",
	Long: `Flowgate runs JavaScript workflow scripts in a sandbox. Scripts reach the
host only through registered functions, and every call is checked against the
permissions granted to that function. External plugin packages extend the
function set and are installed into a local plugin directory.`,
	PersistentPreRun: func(_ *cobra.Command, _ []string) {
		setupLogging()
	},
	SilenceUsage: true,
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initConfig)

	// Global flags
	flags := rootCmd.PersistentFlags()
	flags.StringVar(&cfgFile, "config", "", "system config file (default is $HOME/.flowgate/config.yaml)")
	flags.BoolVarP(&verbose, "verbose", "v", false, "enable verbose output")
	flags.String("data-dir", "", "override the data directory")
	flags.String("database", "", "override the database driver: memory, sqlite")
	flags.String("security-level", "", "override the grant policy: strict, standard, permissive")

	for _, name := range []string{"data-dir", "database", "security-level"} {
		_ = viper.BindPFlag(name, flags.Lookup(name))
	}
}

// initConfig loads CLI preferences from $HOME/.flowgate.yaml and the
// FLOWGATE_* environment.
func initConfig() {
	home, err := os.UserHomeDir()
	if err == nil {
		viper.AddConfigPath(home)
	}
	viper.SetConfigType("yaml")
	viper.SetConfigName(".flowgate")

	viper.SetEnvPrefix("flowgate")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err == nil {
		slog.Debug("using config file", "file", viper.ConfigFileUsed())
	}
}

func setupLogging() {
	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	}

	// Using TextHandler for CLI friendliness
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: level,
	}))
	slog.SetDefault(logger)
}
