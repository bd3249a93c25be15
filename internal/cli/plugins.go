package cli

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/mystiatech/conductor/internal/daemon"
)

func init() {
	pluginsCmd.AddCommand(pluginsListCmd)
	pluginsListCmd.Flags().StringVar(&pluginsConfigPath, "config", "", "Path to a YAML config file (env vars always take precedence)")
	rootCmd.AddCommand(pluginsCmd)
}

var pluginsConfigPath string

var pluginsCmd = &cobra.Command{
	Use:   "plugins",
	Short: "Inspect registered plugins",
}

var pluginsListCmd = &cobra.Command{
	Use:   "list",
	Short: "Discover and list every registered plugin and its lifecycle state",
	Long: `list wires a Conductor instance from configuration (without
serving), runs discovery, and prints each plugin's name, lifecycle state,
and health status. It does not start the request router or any
background loop, so it is safe to run against a live config file without
competing with a running instance for the isolation runner's child
processes.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		d, err := daemon.New(pluginsConfigPath)
		if err != nil {
			return fmt.Errorf("plugins list: %w", err)
		}

		metas := d.Plugins.ListPlugins()
		w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "NAME\tSTATE\tHEALTH")
		for _, m := range metas {
			health := m.HealthStatus
			if health == "" {
				health = "unknown"
			}
			fmt.Fprintf(w, "%s\t%s\t%s\n", m.Name, m.State, health)
		}
		return w.Flush()
	},
}
