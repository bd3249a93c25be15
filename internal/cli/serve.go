package cli

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/mystiatech/conductor/internal/daemon"
)

func init() {
	serveCmd.Flags().StringVar(&serveConfigPath, "config", "", "Path to a YAML config file (env vars always take precedence)")
	serveCmd.Flags().StringVar(&serveAdminAddr, "admin-addr", "", "Admin HTTP listen address (overrides config)")
	rootCmd.AddCommand(serveCmd)
}

var (
	serveConfigPath string
	serveAdminAddr  string
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the Conductor complex",
	Long:  `Start the resource monitor, predictive scaler, plugin manager, isolated runner, router, autonomy coordinator, and admin HTTP surface.`,
	RunE:  runServe,
}

func runServe(cmd *cobra.Command, args []string) error {
	d, err := daemon.New(serveConfigPath)
	if err != nil {
		return err
	}

	if serveAdminAddr != "" {
		d.Config.Admin.Addr = serveAdminAddr
	}

	return d.Serve(context.Background())
}
