package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/artpar/pocket/bootstrap"
	"github.com/artpar/pocket/config"
	"github.com/spf13/cobra"
)

var (
	hotReload bool
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP server",
	Long: `Start the pocket server.

The server will:
  - Load configuration from pocket.yaml (or --config)
  - Or load configuration from POCKET_* environment variables
  - Open the storage backend and wait until it is ready
  - Load every resource definition in resources.dir
  - Serve the JSON API until SIGINT or SIGTERM

With a config file and --hot-reload, the file is watched and SIGHUP
forces a reload. Only logging.level applies without a restart.

Examples:
  pocket serve
  pocket serve --config /etc/pocket/pocket.yaml
  POCKET_STORAGE_DRIVER=sqlite POCKET_STORAGE_DSN=/data/pocket.db pocket serve`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().BoolVar(&hotReload, "hot-reload", true, "reload configuration when the file changes")
}

func runServe(cmd *cobra.Command, args []string) error {
	hasConfigFile := false
	if _, err := os.Stat(cfgFile); err == nil {
		hasConfigFile = true
	}

	cfg, err := config.LoadWithFallback(cfgFile)
	if err != nil {
		return fmt.Errorf("error loading config: %w", err)
	}
	logger := bootstrap.NewLogger(cfg.Logging, os.Stdout)
	if !hasConfigFile {
		logger.Info().Msg("running with environment variables (no config file)")
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	app, err := bootstrap.New(ctx, cfg, logger)
	if err != nil {
		return fmt.Errorf("error initializing: %w", err)
	}

	if hasConfigFile && hotReload {
		holder, err := config.NewHolder(cfgFile, logger)
		if err != nil {
			return fmt.Errorf("error loading config: %w", err)
		}
		defer holder.Stop()

		if err := holder.WatchFile(); err != nil {
			logger.Warn().Err(err).Msg("config file watch disabled")
		}
		holder.WatchSignals()
		app.Watch(holder)
	}

	// Run (blocks until shutdown)
	return app.Run(ctx)
}
