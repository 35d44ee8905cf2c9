package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"obelus/internal/artifacts"
	"obelus/internal/format"
)

var artifactsFlags struct {
	root string
}

var artifactsCmd = &cobra.Command{
	Use:   "artifacts",
	Short: "List the artifact store: build environments, test reports, logs",
	RunE:  runArtifacts,
}

func init() {
	f := artifactsCmd.Flags()
	f.StringVar(&artifactsFlags.root, "artifacts", artifacts.DefaultRoot, "Artifact store root")
}

func runArtifacts(cmd *cobra.Command, _ []string) error {
	st, err := artifacts.NewFS(artifactsFlags.root)
	if err != nil {
		return fmt.Errorf("open artifact store: %w", err)
	}
	records, err := st.List(cmd.Context())
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()
	if len(records) == 0 {
		fmt.Fprintln(out, "No artifacts stored.")
		return nil
	}

	var total int64
	tb := format.NewTable(format.ASCII)
	tb.Header("Name", "Size", "Created")
	tb.Columns(
		format.ColumnConfig{Number: 1, MaxWidth: 60},
		format.ColumnConfig{Number: 2, Align: format.AlignRight},
	)
	for _, rec := range records {
		total += rec.SizeBytes
		tb.Row(rec.Name, format.FmtBytes(rec.SizeBytes), rec.CreatedAt)
	}
	tb.Footer(fmt.Sprintf("%d artifacts", len(records)), format.FmtBytes(total), "")
	fmt.Fprintln(out, tb.String())
	return nil
}
