package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"obelus/internal/format"
	"obelus/internal/workflow/examples"
)

var workflowsCmd = &cobra.Command{
	Use:   "workflows",
	Short: "List the embedded workflow definitions",
	RunE:  runWorkflows,
}

func runWorkflows(cmd *cobra.Command, _ []string) error {
	tb := format.NewTable(format.ASCII)
	tb.Header("Name", "Repo", "Script")
	for _, name := range examples.List() {
		def, err := examples.Load(name)
		if err != nil {
			return err
		}
		tb.Row(name, def.Test.Repo, strings.Join(def.Test.Script, " "))
	}
	fmt.Fprintln(cmd.OutOrStdout(), tb.String())
	return nil
}
