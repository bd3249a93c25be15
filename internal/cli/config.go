package cli

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/mystiatech/conductor/internal/config"
)

func init() {
	configCmd.AddCommand(configValidateCmd)
	configValidateCmd.Flags().StringVar(&configValidatePath, "config", "", "Path to a YAML config file to validate")
	rootCmd.AddCommand(configCmd)
}

var configValidatePath string

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Inspect and validate Conductor configuration",
}

var configValidateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Load configuration, apply defaults, and print the resolved values",
	Long: `validate loads the optional YAML file and environment overrides,
fills in every closed-set default documented in the spec's external
interface table, and prints the fully-resolved configuration as JSON. It
never fails on a missing key: every field has a default, so this command
exits non-zero only on an unreadable or malformed file or an invalid
YAML/env value.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(configValidatePath)
		if err != nil {
			return fmt.Errorf("config validate: %w", err)
		}
		out, err := json.MarshalIndent(cfg, "", "  ")
		if err != nil {
			return fmt.Errorf("config validate: encode resolved config: %w", err)
		}
		fmt.Fprintln(cmd.OutOrStdout(), string(out))
		return nil
	},
}
