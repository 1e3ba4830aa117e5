package app

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/stacklok/envector-mcp/pkg/logger"
)

// newValidateCmd creates the validate command for checking configuration
func newValidateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "validate",
		Short: "Validate the configuration",
		Long: `Resolve the configuration from flags, environment variables and the
--config file, and report every problem found. The engine is not contacted.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return fmt.Errorf("validation failed: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Configuration is valid (transport %s, backend %s, embedding %s/%s)\n",
				cfg.Server.Transport, cfg.Backend.Type, cfg.Embedding.Mode, cfg.Embedding.Model)
			return nil
		},
	}
	addConfigFlags(cmd)
	return cmd
}

// newConfigCmd creates the config command group
func newConfigCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Inspect the configuration",
		Run: func(cmd *cobra.Command, _ []string) {
			if err := cmd.Help(); err != nil {
				logger.Errorf("Error displaying help: %v", err)
			}
		},
	}

	show := &cobra.Command{
		Use:   "show",
		Short: "Print the resolved configuration as YAML",
		Long:  `Print the configuration after applying defaults, the --config file, environment variables and flags. Secrets are masked.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			return cfg.Redacted().WriteYAML(cmd.OutOrStdout())
		},
	}
	addConfigFlags(show)
	cmd.AddCommand(show)

	return cmd
}
