package main

import (
	"fmt"
	"os"

	"github.com/fatih/color"
	"github.com/joho/godotenv"
	"github.com/lychee-technology/dynaform"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var configPath string

// loadedConfig is populated by the root command before any subcommand runs.
var loadedConfig *dynaform.Config

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "dynaform-tools",
		Short: "Operator tooling for dynaform collections",
		Long: `dynaform-tools manages the metadata tables and inspects collections.

Examples:

  dynaform-tools migrate up
  dynaform-tools ddl collections/posts.yaml
  dynaform-tools describe posts
`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			// .env is optional
			_ = godotenv.Load()
			cfg, err := dynaform.LoadConfig(configPath)
			if err != nil {
				return err
			}
			loadedConfig = cfg
			return nil
		},
	}
	root.PersistentFlags().StringVar(&configPath, "config", os.Getenv("DYNAFORM_CONFIG"), "path to a YAML config file")

	root.AddCommand(newMigrateCmd())
	root.AddCommand(newDDLCmd())
	root.AddCommand(newDescribeCmd())
	return root
}

func main() {
	logger, err := zap.NewProduction()
	if err != nil {
		panic(fmt.Errorf("failed to set up logger: %w", err))
	}
	defer logger.Sync()
	zap.ReplaceGlobals(logger)

	if err := newRootCmd().Execute(); err != nil {
		color.Red("✗ %v", err)
		os.Exit(1)
	}
}
