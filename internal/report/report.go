// Package report renders launch records for humans: a markdown report for
// the CLI and MCP surface, and an HTML page served by obelus report --serve.
package report

import (
	"fmt"
	"strings"
	"time"

	"obelus/internal/display"
	"obelus/internal/format"
	"obelus/internal/store"
)

// JobData is one job with its step results.
type JobData struct {
	Job   *store.Job
	Steps []*store.StepResult
}

// Data is everything a launch report is rendered from.
type Data struct {
	Launch *store.Launch
	Jobs   []JobData
}

// Assemble loads the launch and its jobs/steps from the store.
func Assemble(st store.Store, launchID string) (*Data, error) {
	launch, err := st.GetLaunch(launchID)
	if err != nil {
		return nil, err
	}
	jobs, err := st.ListJobsByLaunch(launchID)
	if err != nil {
		return nil, fmt.Errorf("load jobs: %w", err)
	}
	d := &Data{Launch: launch}
	for _, j := range jobs {
		steps, err := st.ListStepResultsByJob(j.ID)
		if err != nil {
			return nil, fmt.Errorf("load steps for job %s: %w", j.JobKey, err)
		}
		d.Jobs = append(d.Jobs, JobData{Job: j, Steps: steps})
	}
	return d, nil
}

// Markdown renders the full launch report.
func (d *Data) Markdown() string {
	l := d.Launch
	var b strings.Builder

	fmt.Fprintf(&b, "# Launch %s\n\n", l.ID)
	fmt.Fprintf(&b, "- Workflow: %s\n", l.Workflow)
	fmt.Fprintf(&b, "- Status: %s\n", display.Status(l.Status))
	if l.SkipReason != "" {
		fmt.Fprintf(&b, "- Skip reason: %s\n", l.SkipReason)
	}
	fmt.Fprintf(&b, "- Build environment: %s\n", l.BuildEnvironment)
	fmt.Fprintf(&b, "- Python version: %s\n", l.PythonVersion)
	if l.Repository != "" {
		fmt.Fprintf(&b, "- Repository: %s\n", l.Repository)
	}
	if l.Commit != "" {
		fmt.Fprintf(&b, "- Commit: %s\n", l.Commit)
	}
	fmt.Fprintf(&b, "- Keep going: %s\n", format.BoolMark(l.KeepGoing))
	if len(l.ReenabledIssues) > 0 {
		fmt.Fprintf(&b, "- Re-enabled issues: %s\n", strings.Join(l.ReenabledIssues, ", "))
	}
	fmt.Fprintf(&b, "- Started: %s\n", l.StartedAt)
	if l.EndedAt != "" {
		fmt.Fprintf(&b, "- Ended: %s\n", l.EndedAt)
	}

	if len(d.Jobs) > 0 {
		b.WriteString("\n## Jobs\n\n")
		tb := format.NewTable(format.Markdown)
		tb.Header("Job", "Runner", "Status", "Steps")
		for _, jd := range d.Jobs {
			j := jd.Job
			tb.Row(
				display.EntryLabel(j.Config, j.Shard, j.NumShards, j.Runner),
				j.Runner,
				display.Status(j.Status),
				stepSummary(jd.Steps),
			)
		}
		b.WriteString(tb.String())
		b.WriteString("\n")
	}

	for _, jd := range d.Jobs {
		j := jd.Job
		fmt.Fprintf(&b, "\n### %s\n\n", display.EntryLabel(j.Config, j.Shard, j.NumShards, j.Runner))
		tb := format.NewTable(format.Markdown)
		tb.Header("Step", "Status", "Duration", "Detail")
		for _, s := range jd.Steps {
			tb.Row(
				display.StepName(s.Name),
				display.StatusWithIcon(s.Status),
				format.FmtDuration(time.Duration(s.DurationMS)*time.Millisecond),
				format.Truncate(s.Error, 80),
			)
		}
		b.WriteString(tb.String())
		b.WriteString("\n")
	}
	return b.String()
}

// stepSummary compresses a job's step outcomes into "11 ok / 1 failed" form.
func stepSummary(steps []*store.StepResult) string {
	counts := map[string]int{}
	for _, s := range steps {
		counts[s.Status]++
	}
	var parts []string
	for _, status := range []string{"ok", "failed", "tolerated", "skipped"} {
		if n := counts[status]; n > 0 {
			parts = append(parts, fmt.Sprintf("%d %s", n, status))
		}
	}
	if len(parts) == 0 {
		return "-"
	}
	return strings.Join(parts, " / ")
}
