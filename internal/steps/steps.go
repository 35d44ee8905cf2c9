// Package steps implements the per-job step sequence of the test stage. Each
// matrix entry runs the same fixed plan; steps are small collaborators behind
// one interface and their failure semantics are carried by a policy, not by
// step-specific control flow in the driver.
package steps

import (
	"context"
	"log/slog"
	"path/filepath"
	"time"

	"obelus/internal/artifacts"
	"obelus/internal/filter"
	"obelus/internal/matrix"
	"obelus/internal/runner"
	"obelus/internal/workflow"
)

// Policy says how the plan reacts to a step failure.
type Policy string

const (
	// Fatal stops the job on failure. The default for pipeline steps.
	Fatal Policy = "fatal"
	// ContinueOnError records the failure and moves on.
	ContinueOnError Policy = "continue-on-error"
	// AlwaysRun executes even after an earlier fatal failure.
	AlwaysRun Policy = "always-run"
)

// Status of one executed step.
type Status string

const (
	StatusOK        Status = "ok"
	StatusFailed    Status = "failed"
	StatusTolerated Status = "tolerated"
	StatusSkipped   Status = "skipped"
)

// Step is one unit of the per-job plan.
type Step interface {
	Name() string
	Policy() Policy
	Run(ctx context.Context, env *Env) error
}

// Record is the outcome of one plan step.
type Record struct {
	Name     string
	Policy   Policy
	Status   Status
	ExitCode int
	Error    string
	Duration time.Duration
}

// Workspace subdirectories. The checkout and the step logs survive the clean
// step; everything else is scrubbed.
const (
	srcDirName   = "src"
	buildDirName = "build"
	envDirName   = "env"
	logDirName   = "logs"
)

// Defaults applied when the recipe leaves a field empty.
const (
	DefaultOutputDir = "test-reports"
	DefaultJobName   = "test"
	DefaultMinFreeGB = 5
)

// Artifact name prefixes for per-job uploads.
const (
	TestReportPrefix = "test-reports-"
	LogPrefix        = "logs-"
)

// Env is the execution context shared by the steps of one job. The driver
// builds one Env per matrix entry; nothing here is shared between jobs.
type Env struct {
	Workspace string // job root; src/, build/, env/, logs/ live under it
	Entry     matrix.Entry
	Inputs    workflow.Inputs
	Run       workflow.RunContext
	Test      workflow.Test
	Filter    filter.Outputs
	Artifacts artifacts.Store
	Runner    runner.Runner
	Log       *slog.Logger
	JobKey    string // local job identity, the matrix entry key
	JobID     string // orchestrator job id; the job-id step fills the fallback
}

func (e *Env) SrcDir() string   { return filepath.Join(e.Workspace, srcDirName) }
func (e *Env) BuildDir() string { return filepath.Join(e.Workspace, buildDirName) }
func (e *Env) EnvDir() string   { return filepath.Join(e.Workspace, envDirName) }
func (e *Env) LogDir() string   { return filepath.Join(e.Workspace, logDirName) }

// OutputDir is where the test runner leaves its reports, inside the checkout.
func (e *Env) OutputDir() string {
	out := e.Test.OutputDir
	if out == "" {
		out = DefaultOutputDir
	}
	return filepath.Join(e.SrcDir(), out)
}

// Suffix returns this job's artifact name discriminator.
func (e *Env) Suffix() string {
	job := e.Run.JobName
	if job == "" {
		job = DefaultJobName
	}
	return e.Entry.ArtifactSuffix(job)
}
