package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"obelus/internal/logging"
)

// version is set at build time via -ldflags.
var version = "dev"

var rootFlags struct {
	logLevel  string
	logFormat string
}

var rootCmd = &cobra.Command{
	Use:          "obelus",
	Short:        "Two-stage sharded test workflow runner",
	Long:         "Obelus runs a project's accelerator test suite as a reusable two-stage\nworkflow: a filter stage narrows the test matrix, then one job per matrix\nentry executes the shard and uploads its reports and logs.",
	SilenceUsage: true,
	CompletionOptions: cobra.CompletionOptions{
		HiddenDefaultCmd: true,
	},
	PersistentPreRunE: func(_ *cobra.Command, _ []string) error {
		level, err := logging.ParseLevel(rootFlags.logLevel)
		if err != nil {
			return err
		}
		logging.Init(level, rootFlags.logFormat)
		return nil
	},
}

func init() {
	pf := rootCmd.PersistentFlags()
	pf.StringVar(&rootFlags.logLevel, "log-level", "info", "Log level (debug, info, warn, error)")
	pf.StringVar(&rootFlags.logFormat, "log-format", "text", "Log format (text, json)")

	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(filterCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(reportCmd)
	rootCmd.AddCommand(workflowsCmd)
	rootCmd.AddCommand(artifactsCmd)
	rootCmd.AddCommand(serveCmd)
	rootCmd.Version = version
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
