package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"obelus/internal/display"
	"obelus/internal/format"
	"obelus/internal/launch"
	"obelus/internal/logging"
	"obelus/internal/workflow"
	"obelus/internal/workflow/examples"
)

var runFlags struct {
	workflow string
	inputs   []string
	cfg      launch.Config
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Invoke a workflow: filter the matrix, then run one job per entry",
	Long: `Invokes a workflow end to end. The filter stage decides which matrix
entries run; the test stage expands the filtered matrix into parallel jobs,
each executing the fixed step plan against a build-environment artifact.

The workflow argument is a definition file path or an embedded workflow name
(see 'obelus workflows'). Run context (repository, commit, PR body) is read
from the OBELUS_* environment variables.`,
	RunE: runRun,
}

func init() {
	f := runCmd.Flags()
	f.StringVarP(&runFlags.workflow, "workflow", "w", "", "Workflow definition path or embedded name (required)")
	f.StringArrayVarP(&runFlags.inputs, "input", "i", nil, "Workflow input as name=value (repeatable)")
	addLaunchFlags(runCmd, &runFlags.cfg)

	_ = runCmd.MarkFlagRequired("workflow")
}

func runRun(cmd *cobra.Command, _ []string) error {
	def, err := examples.Resolve(runFlags.workflow)
	if err != nil {
		return err
	}
	provided, err := parseInputs(runFlags.inputs)
	if err != nil {
		return err
	}

	r, err := launch.Build(def, runFlags.cfg, logging.New("launch"))
	if err != nil {
		return err
	}
	defer r.Store.Close()

	res, err := r.Run(cmd.Context(), provided, workflow.RunContextFromEnv())
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Launch:  %s\n", res.LaunchID)
	fmt.Fprintf(out, "Status:  %s\n", display.StatusWithIcon(res.Status))
	if res.SkipReason != "" {
		fmt.Fprintf(out, "Skipped: %s\n", res.SkipReason)
	}
	if len(res.Jobs) > 0 {
		tb := format.NewTable(format.ASCII)
		tb.Header("Job", "Status", "Steps", "Error")
		for _, j := range res.Jobs {
			label := display.EntryLabel(j.Entry.Config, j.Entry.Shard, j.Entry.NumShards, j.Entry.Runner)
			tb.Row(label, display.StatusWithIcon(j.Status), len(j.Records), format.Truncate(j.Err, 60))
		}
		fmt.Fprintln(out, tb.String())
	}

	if res.Failed() {
		return fmt.Errorf("launch %s failed", res.LaunchID)
	}
	return nil
}
