// Package cli implements the Conductor's command-line interface using Cobra.
package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "conductor",
	Short: "conductor — the AI companion platform's request/resource core",
	Long: `conductor runs the Conductor complex: resource monitoring, predictive
load shedding, plugin lifecycle management, isolated request execution,
routing with dead-letter retry, autonomous action firing, and refusal
screening.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute runs the root command. Called from main.go.
func Execute(version string) {
	rootCmd.Version = version

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
