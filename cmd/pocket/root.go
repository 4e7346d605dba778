package main

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/artpar/pocket/bootstrap"
	"github.com/artpar/pocket/config"
	"github.com/spf13/cobra"
)

var (
	// Global flags
	cfgFile string
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "pocket",
	Short: "Schema-driven resource server with users and sessions",
	Long: `Pocket serves YAML-declared resources over a JSON API.

Each resource is a collection of documents with typed fields, group
permissions and named hooks. Users sign in for a bearer token that
carries their groups.

Quick start:
  pocket serve            # Start the server
  pocket validate         # Check config and resource definitions

Management:
  pocket users create     # Create a user
  pocket users token      # Issue a session token`,
	SilenceUsage: true,
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "pocket.yaml", "config file path")
}

// openApp wires the application without serving it. Log output goes to
// stderr so command output stays parseable.
func openApp(ctx context.Context, stderr io.Writer) (*bootstrap.App, error) {
	cfg, err := config.LoadWithFallback(cfgFile)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	cfg.Logging.Level = "warn"
	logger := bootstrap.NewLogger(cfg.Logging, stderr)

	app, err := bootstrap.New(ctx, cfg, logger)
	if err != nil {
		return nil, fmt.Errorf("init: %w", err)
	}
	if cfg.Storage.Driver == config.DriverMemory {
		logger.Warn().Msg("storage driver is memory, changes are lost when the command exits")
	}
	return app, nil
}
