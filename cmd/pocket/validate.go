package main

import (
	"fmt"
	"os"

	"github.com/artpar/pocket/config"
	"github.com/artpar/pocket/core/schema"
	"github.com/spf13/cobra"
)

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate configuration and resource definitions",
	Long: `Validate the pocket configuration and every resource definition.

Checks:
  - Config YAML syntax is valid and settings are in range
  - Every definition in resources.dir parses
  - Field types, permissions and resource names are valid

Hook names are resolved at startup, not here.

Examples:
  pocket validate
  pocket validate --config /etc/pocket/pocket.yaml`,
	RunE: runValidate,
}

func init() {
	rootCmd.AddCommand(validateCmd)
}

func runValidate(cmd *cobra.Command, args []string) error {
	out := cmd.OutOrStdout()

	cfg, err := config.LoadWithFallback(cfgFile)
	if err != nil {
		fmt.Fprintf(out, "  %s Config valid\n", crossMark)
		return fmt.Errorf("config error: %w", err)
	}
	if _, err := os.Stat(cfgFile); err == nil {
		fmt.Fprintf(out, "  %s Config valid (%s)\n", checkMark, cfgFile)
	} else {
		fmt.Fprintf(out, "  %s Config valid (environment)\n", checkMark)
	}
	fmt.Fprintf(out, "  %s Storage: %s\n", checkMark, cfg.Storage.Driver)

	if cfg.Resources.Dir == "" {
		fmt.Fprintf(out, "  %s No resources.dir configured\n", checkMark)
		return nil
	}

	defs, err := schema.ParseDir(cfg.Resources.Dir)
	if err != nil {
		fmt.Fprintf(out, "  %s Resource definitions\n", crossMark)
		return fmt.Errorf("resource error: %w", err)
	}
	for _, def := range defs {
		if _, err := def.Schema(); err != nil {
			fmt.Fprintf(out, "  %s %s\n", crossMark, def.Resource)
			return fmt.Errorf("resource %s (%s): %w", def.Resource, def.Source, err)
		}
		fmt.Fprintf(out, "  %s %s: %d fields\n", checkMark, def.Resource, len(def.Fields))
	}

	fmt.Fprintln(out)
	fmt.Fprintln(out, "Configuration is valid.")
	return nil
}

const (
	checkMark = "\033[32m✓\033[0m"
	crossMark = "\033[31m✗\033[0m"
)
