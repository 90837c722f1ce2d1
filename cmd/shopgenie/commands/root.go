// Package commands defines all Cobra CLI commands for the shopgenie binary.
package commands

import (
	"github.com/spf13/cobra"

	"github.com/54b3r/shopgenie-go/internal/audit"
	"github.com/54b3r/shopgenie-go/internal/config"
	"github.com/54b3r/shopgenie-go/internal/logging"
)

// configPath holds the --config flag value for YAML config file override.
var configPath string

// loadedConfigPath stores the resolved config file path for audit logging.
var loadedConfigPath string

// NewRootCmd constructs the root Cobra command that all subcommands attach to.
func NewRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "shopgenie",
		Short: "ShopGenie — a conversational shopping assistant backend",
		Long: `ShopGenie is a conversational shopping assistant backed by dual-modality
catalog search.

It embeds product descriptions and images into a Qdrant vector store,
answers text and image searches with rank-fused results, and drives a
chat agent that can search the catalog and manage per-user shopping carts.

Model provider is selected via the MODEL_PROVIDER environment variable
or a YAML config file (~/.shopgenie/config.yaml).
See 'shopgenie --help' for available commands.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			log := logging.New()

			// Load YAML config (env vars always override YAML values).
			path, err := config.Load(configPath, log)
			if err != nil {
				return err
			}
			loadedConfigPath = path

			// Emit structured audit log for every command invocation.
			audit.LogCommandStart(log, cmd.Name(), loadedConfigPath)

			return nil
		},
	}

	root.PersistentFlags().StringVar(&configPath, "config", "", "Path to YAML config file (default: ~/.shopgenie/config.yaml)")

	root.AddCommand(
		NewAskCmd(),
		NewServeCmd(),
		NewIngestCmd(),
		NewVersionCmd(),
	)

	return root
}
