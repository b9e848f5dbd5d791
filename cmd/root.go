// Package cmd defines and implements the CLI commands for the harvester
// executable.
package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var cfgFile string

// newRootCmd creates and configures the root command.
func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "harvester",
		Short: "A single-session URL harvester producing a merged markdown export.",
		Long: `harvester fetches a pasted set of URLs, extracts the primary content of
each page, converts it to markdown, and merges everything into one
deterministic export document plus a manifest.

Run "harvester serve" for the HTTP service or "harvester run" for a
one-shot harvest from the command line.`,
	}

	cmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default search is environment only)")

	cmd.AddCommand(newServeCmd())
	cmd.AddCommand(newRunCmd())

	return cmd
}

// Execute is the main entry point for the CLI.
func Execute() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}
