package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"obelus/internal/display"
	"obelus/internal/format"
	"obelus/internal/store"
)

var statusFlags struct {
	db       string
	launchID string
	mode     string
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "List launches, or show one launch's jobs and steps",
	RunE:  runStatus,
}

func init() {
	f := statusCmd.Flags()
	f.StringVar(&statusFlags.db, "db", store.DefaultDBPath, "Launch store path")
	f.StringVarP(&statusFlags.launchID, "launch", "l", "", "Launch id (or unique prefix); empty lists all launches")
	f.StringVar(&statusFlags.mode, "format", "ascii", "Table format (ascii, markdown)")
}

func runStatus(cmd *cobra.Command, _ []string) error {
	mode, err := tableMode(statusFlags.mode)
	if err != nil {
		return err
	}
	st, err := store.Open(statusFlags.db)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer st.Close()

	if statusFlags.launchID == "" {
		return listLaunches(cmd, st, mode)
	}
	return showLaunch(cmd, st, mode)
}

func listLaunches(cmd *cobra.Command, st store.Store, mode format.Mode) error {
	launches, err := st.ListLaunches()
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()
	if len(launches) == 0 {
		fmt.Fprintln(out, "No launches recorded.")
		return nil
	}
	tb := format.NewTable(mode)
	tb.Header("Launch", "Workflow", "Build Env", "Status", "Started")
	for _, l := range launches {
		tb.Row(shortID(l.ID), l.Workflow, l.BuildEnvironment, display.StatusWithIcon(l.Status), l.StartedAt)
	}
	fmt.Fprintln(out, tb.String())
	return nil
}

func showLaunch(cmd *cobra.Command, st store.Store, mode format.Mode) error {
	l, err := resolveLaunch(st, statusFlags.launchID)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Launch:     %s\n", l.ID)
	fmt.Fprintf(out, "Workflow:   %s\n", l.Workflow)
	fmt.Fprintf(out, "Build env:  %s\n", l.BuildEnvironment)
	fmt.Fprintf(out, "Status:     %s\n", display.StatusWithIcon(l.Status))
	if l.SkipReason != "" {
		fmt.Fprintf(out, "Skipped:    %s\n", l.SkipReason)
	}
	fmt.Fprintf(out, "Keep going: %s\n", format.BoolMark(l.KeepGoing))
	if len(l.ReenabledIssues) > 0 {
		fmt.Fprintf(out, "Reenabled:  %s\n", strings.Join(l.ReenabledIssues, ", "))
	}

	jobs, err := st.ListJobsByLaunch(l.ID)
	if err != nil {
		return err
	}
	for _, j := range jobs {
		results, err := st.ListStepResultsByJob(j.ID)
		if err != nil {
			return err
		}
		label := display.EntryLabel(j.Config, j.Shard, j.NumShards, j.Runner)
		fmt.Fprintf(out, "\nJob %s (%s)\n", label, display.StatusWithIcon(j.Status))
		tb := format.NewTable(mode)
		tb.Header("Step", "Policy", "Status", "Duration", "Error")
		for _, r := range results {
			tb.Row(display.StepWithCode(r.Name), display.Policy(r.Policy),
				display.StatusWithIcon(r.Status),
				format.FmtDuration(time.Duration(r.DurationMS)*time.Millisecond),
				format.Truncate(r.Error, 50))
		}
		fmt.Fprintln(out, tb.String())
	}
	return nil
}

// resolveLaunch accepts a full launch id or a unique prefix of one.
func resolveLaunch(st store.Store, id string) (*store.Launch, error) {
	l, err := st.GetLaunch(id)
	if err == nil {
		return l, nil
	}
	launches, lerr := st.ListLaunches()
	if lerr != nil {
		return nil, lerr
	}
	var match *store.Launch
	for _, cand := range launches {
		if strings.HasPrefix(cand.ID, id) {
			if match != nil {
				return nil, fmt.Errorf("launch prefix %q is ambiguous", id)
			}
			match = cand
		}
	}
	if match == nil {
		return nil, fmt.Errorf("launch %q not found", id)
	}
	return match, nil
}

func tableMode(s string) (format.Mode, error) {
	switch s {
	case "ascii":
		return format.ASCII, nil
	case "markdown":
		return format.Markdown, nil
	default:
		return format.ASCII, fmt.Errorf("unknown format %q (want ascii or markdown)", s)
	}
}
