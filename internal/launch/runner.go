package launch

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"golang.org/x/sync/errgroup"

	"obelus/internal/artifacts"
	"obelus/internal/filter"
	"obelus/internal/logging"
	"obelus/internal/matrix"
	"obelus/internal/runner"
	"obelus/internal/steps"
	"obelus/internal/store"
	"obelus/internal/workflow"
)

// RepoDataDir is the in-tree directory the filter stage reads its data files
// from after a filter-stage checkout.
const RepoDataDir = ".obelus"

// JobResult is the outcome of one matrix job.
type JobResult struct {
	Entry   matrix.Entry
	JobID   int64
	Status  string // store.StatusSucceeded or store.StatusFailed
	Records []steps.Record
	Err     string // job failure; empty on success
}

// Result is the outcome of one workflow invocation.
type Result struct {
	LaunchID   string
	Status     string // succeeded / failed / skipped
	SkipReason string // set when the test stage was gated off
	Outputs    filter.Outputs
	Jobs       []JobResult
}

// Failed reports whether any job in the result failed.
func (r *Result) Failed() bool {
	return r.Status == store.StatusFailed
}

// Runner executes workflow invocations. All collaborators are injectable;
// Build wires the production set.
type Runner struct {
	Def       *workflow.Definition
	Store     store.Store
	Artifacts artifacts.Store
	Filterer  filter.Filterer
	Commands  runner.Runner
	// Plan overrides the step sequence; nil means steps.DefaultPlan().
	Plan []steps.Step
	// LaunchID pre-assigns the launch record id; empty means a fresh UUID.
	// The MCP session sets it so a launch is pollable while it runs.
	LaunchID string
	Config   Config
	Log      *slog.Logger
}

// Run executes one invocation: resolve inputs, filter, gate, then the matrix
// jobs in parallel. Job failures are data on the returned Result; the error
// return is reserved for infrastructure faults (store writes, bad inputs,
// a failed filter stage).
func (r *Runner) Run(ctx context.Context, provided map[string]string, runCtx workflow.RunContext) (*Result, error) {
	if r.Log == nil {
		r.Log = logging.Discard()
	}
	if err := r.Def.Validate(); err != nil {
		return nil, fmt.Errorf("workflow %s: %w", r.Def.Name, err)
	}
	inputs, err := r.Def.Resolve(provided)
	if err != nil {
		return nil, fmt.Errorf("resolve inputs: %w", err)
	}
	if runCtx.Token == "" && r.Config.TokenFile != "" {
		if token, err := workflow.ReadToken(r.Config.TokenFile); err == nil {
			runCtx.Token = token
		}
	}

	launchID := r.LaunchID
	if launchID == "" {
		launchID = newLaunchID()
	}
	launch := &store.Launch{
		ID:               launchID,
		Workflow:         r.Def.Name,
		BuildEnvironment: inputs.BuildEnvironment,
		SyncTag:          inputs.SyncTag,
		PythonVersion:    inputs.PythonVersion,
		RawMatrix:        inputs.TestMatrix,
		Repository:       runCtx.Repository,
		Commit:           runCtx.Commit,
		Status:           store.StatusRunning,
		StartedAt:        now(),
	}
	if err := r.Store.CreateLaunch(launch); err != nil {
		return nil, fmt.Errorf("create launch record: %w", err)
	}
	log := r.Log.With("launch", launch.ID)
	log.Info("launch started", "workflow", r.Def.Name, "build_environment", inputs.BuildEnvironment)

	outputs, err := r.filterStage(ctx, launch, inputs, runCtx)
	if err != nil {
		r.finish(launch, store.StatusFailed, "")
		return nil, fmt.Errorf("filter stage: %w", err)
	}
	launch.FilteredMatrix = outputs.TestMatrix
	launch.KeepGoing = outputs.KeepGoing
	launch.ReenabledIssues = outputs.ReenabledIssues
	if err := r.Store.UpdateLaunch(launch); err != nil {
		return nil, fmt.Errorf("record filter outputs: %w", err)
	}

	result := &Result{LaunchID: launch.ID, Outputs: *outputs}

	if run, reason := Gate(runCtx, *outputs, r.Config.CanonicalRepo); !run {
		log.Info("test stage skipped", "reason", reason)
		result.Status = store.StatusSkipped
		result.SkipReason = reason
		r.finish(launch, store.StatusSkipped, reason)
		return result, nil
	}

	m, err := matrix.Parse(outputs.TestMatrix)
	if err != nil {
		r.finish(launch, store.StatusFailed, "")
		return nil, fmt.Errorf("filtered matrix: %w", err)
	}

	result.Jobs, err = r.testStage(ctx, launch, inputs, runCtx, *outputs, m)
	if err != nil {
		r.finish(launch, store.StatusFailed, "")
		return nil, err
	}

	result.Status = store.StatusSucceeded
	for _, jr := range result.Jobs {
		if jr.Status == store.StatusFailed {
			result.Status = store.StatusFailed
			break
		}
	}
	r.finish(launch, result.Status, "")
	log.Info("launch finished", "status", result.Status, "jobs", len(result.Jobs))
	return result, ctx.Err()
}

// filterStage optionally checks out the project source, then invokes the
// filterer and republishes its outputs unchanged.
func (r *Runner) filterStage(ctx context.Context, launch *store.Launch, inputs workflow.Inputs, runCtx workflow.RunContext) (*filter.Outputs, error) {
	if local, ok := r.Filterer.(*filter.Local); ok && local.DataDir == "" && r.Config.FilterCheckout {
		dataDir, err := r.checkoutFilterData(ctx, launch.ID)
		if err != nil {
			return nil, err
		}
		local.DataDir = dataDir
	}
	return r.Filterer.Filter(ctx, filter.Request{
		Workflow:   r.Def.Name,
		TestMatrix: inputs.TestMatrix,
		PRBody:     runCtx.PRBody,
		Token:      runCtx.Token,
	})
}

// checkoutFilterData clones the project repo (depth 1, no submodules) and
// returns its in-tree filter data directory.
func (r *Runner) checkoutFilterData(ctx context.Context, launchID string) (string, error) {
	dest := filepath.Join(r.workRoot(), launchID, "filter-src")
	if err := os.MkdirAll(filepath.Dir(dest), 0755); err != nil {
		return "", fmt.Errorf("create filter checkout dir: %w", err)
	}
	_, err := runner.Checked(ctx, r.Commands, runner.Command{
		Argv: []string{"git", "clone", "--depth", "1", "--no-recurse-submodules", r.Def.Test.Repo, dest},
	})
	if err != nil {
		return "", fmt.Errorf("filter checkout: %w", err)
	}
	return filepath.Join(dest, RepoDataDir), nil
}

// testStage expands the matrix and runs one job per entry. Workers always
// return nil so one job's failure never cancels siblings; outcomes land in
// per-index result slots.
func (r *Runner) testStage(ctx context.Context, launch *store.Launch, inputs workflow.Inputs,
	runCtx workflow.RunContext, outputs filter.Outputs, m matrix.Matrix) ([]JobResult, error) {

	parallel := r.Config.Parallel
	if parallel <= 0 {
		parallel = len(m.Include)
	}
	log := r.Log.With("launch", launch.ID)
	log.Info("test stage", "jobs", len(m.Include), "workers", parallel)

	results := make([]JobResult, len(m.Include))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(parallel)
	for i, entry := range m.Include {
		i, entry := i, entry
		g.Go(func() error {
			results[i] = r.runJob(gctx, launch, inputs, runCtx, outputs, entry)
			return nil
		})
	}
	_ = g.Wait() // job failures are captured in the result slots

	for i := range results {
		if results[i].Err != "" {
			log.Warn("job failed", "job", results[i].Entry.Key(), "error", results[i].Err)
		}
	}
	return results, nil
}

func (r *Runner) runJob(ctx context.Context, launch *store.Launch, inputs workflow.Inputs,
	runCtx workflow.RunContext, outputs filter.Outputs, entry matrix.Entry) JobResult {

	res := JobResult{Entry: entry, Status: store.StatusFailed}

	job := &store.Job{
		LaunchID:  launch.ID,
		Runner:    entry.Runner,
		Config:    entry.Config,
		Shard:     entry.Shard,
		NumShards: entry.NumShards,
		JobKey:    entry.Key(),
		Status:    store.StatusRunning,
		StartedAt: now(),
	}
	jobID, err := r.Store.CreateJob(job)
	if err != nil {
		res.Err = fmt.Sprintf("create job record: %v", err)
		return res
	}
	res.JobID = jobID

	workspace := filepath.Join(r.workRoot(), launch.ID, entry.Key())
	if err := os.MkdirAll(workspace, 0755); err != nil {
		res.Err = fmt.Sprintf("create workspace: %v", err)
		r.finishJob(job, store.StatusFailed, entry.Key())
		return res
	}

	env := &steps.Env{
		Workspace: workspace,
		Entry:     entry,
		Inputs:    inputs,
		Run:       runCtx,
		Test:      r.Def.Test,
		Filter:    outputs,
		Artifacts: r.Artifacts,
		Runner:    r.Commands,
		Log:       r.Log.With("launch", launch.ID, "job", entry.Key()),
		JobKey:    entry.Key(),
	}
	if runCtx.RunID != "" {
		env.JobID = fmt.Sprintf("%s-%d", runCtx.RunID, jobID)
	}

	plan := r.Plan
	if plan == nil {
		plan = steps.DefaultPlan()
	}
	records, jobErr := steps.Execute(ctx, env, plan)
	res.Records = records

	for _, rec := range records {
		if _, err := r.Store.CreateStepResult(&store.StepResult{
			JobID:      jobID,
			Name:       rec.Name,
			Policy:     string(rec.Policy),
			Status:     string(rec.Status),
			ExitCode:   rec.ExitCode,
			Error:      rec.Error,
			DurationMS: rec.Duration.Milliseconds(),
		}); err != nil {
			env.Log.Error("record step result", "step", rec.Name, "error", err)
		}
	}

	if jobErr != nil {
		res.Err = jobErr.Error()
		r.finishJob(job, store.StatusFailed, env.JobID)
		return res
	}
	res.Status = store.StatusSucceeded
	r.finishJob(job, store.StatusSucceeded, env.JobID)
	return res
}

func (r *Runner) workRoot() string {
	if r.Config.WorkRoot != "" {
		return r.Config.WorkRoot
	}
	return DefaultWorkRoot
}

func (r *Runner) finish(launch *store.Launch, status, skipReason string) {
	launch.Status = status
	launch.SkipReason = skipReason
	launch.EndedAt = now()
	if err := r.Store.UpdateLaunch(launch); err != nil {
		r.Log.Error("record launch status", "launch", launch.ID, "error", err)
	}
}

func (r *Runner) finishJob(job *store.Job, status, orchJobID string) {
	job.Status = status
	job.OrchJobID = orchJobID
	job.EndedAt = now()
	if err := r.Store.UpdateJob(job); err != nil {
		r.Log.Error("record job status", "job", job.JobKey, "error", err)
	}
}

func now() string {
	return time.Now().UTC().Format(time.RFC3339)
}
