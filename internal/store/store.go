// Package store persists launch records: one row per workflow invocation,
// its expanded matrix jobs, and the step results each job produced. Domain
// and CLI code use only the Store interface; the implementation is SQLite
// or in-memory.
package store

import "errors"

// DefaultDBPath is the default relative path for the SQLite DB (per-workspace).
// Resolve against cwd or workspace root; Open() creates the parent dir (e.g. .obelus).
const DefaultDBPath = ".obelus/obelus.db"

// ErrNotFound is returned by lookups that match no row.
var ErrNotFound = errors.New("not found")

// Launch statuses.
const (
	StatusRunning   = "running"
	StatusSucceeded = "succeeded"
	StatusFailed    = "failed"
	StatusSkipped   = "skipped"
)

// Launch is one workflow invocation: the resolved inputs it was called with,
// the filter stage's decision, and the aggregate outcome.
type Launch struct {
	ID               string // UUID, assigned by the driver
	Workflow         string
	BuildEnvironment string
	SyncTag          string
	PythonVersion    string
	RawMatrix        string // matrix JSON as provided by the caller
	FilteredMatrix   string // matrix JSON after the filter stage
	KeepGoing        bool
	ReenabledIssues  []string
	Repository       string // full name, owner/project
	Commit           string
	Status           string // running / succeeded / failed / skipped
	SkipReason       string // set when status is skipped
	StartedAt        string // ISO 8601
	EndedAt          string // ISO 8601; empty while running
}

// Job is one expanded matrix entry within a launch.
type Job struct {
	ID        int64
	LaunchID  string // FK → launches.id
	Runner    string
	Config    string
	Shard     int
	NumShards int
	JobKey    string // local identity, the matrix entry key
	OrchJobID string // orchestrator-assigned id; may equal JobKey
	Status    string // running / succeeded / failed
	StartedAt string // ISO 8601
	EndedAt   string // ISO 8601
}

// StepResult is the outcome of one plan step within a job.
type StepResult struct {
	ID         int64
	JobID      int64 // FK → jobs.id
	Name       string
	Policy     string
	Status     string // ok / failed / tolerated / skipped
	ExitCode   int
	Error      string
	DurationMS int64
}

// Store is the persistence facade for launch records.
type Store interface {
	// CreateLaunch inserts a launch; l.ID must be set by the caller.
	CreateLaunch(l *Launch) error
	// GetLaunch returns the launch by id, or ErrNotFound.
	GetLaunch(id string) (*Launch, error)
	// ListLaunches returns all launches, newest first.
	ListLaunches() ([]*Launch, error)
	// UpdateLaunch replaces the stored row for l.ID.
	UpdateLaunch(l *Launch) error

	// CreateJob inserts a job and returns its id.
	CreateJob(j *Job) (int64, error)
	// GetJob returns the job by id, or ErrNotFound.
	GetJob(id int64) (*Job, error)
	// ListJobsByLaunch returns the launch's jobs in insertion order.
	ListJobsByLaunch(launchID string) ([]*Job, error)
	// UpdateJob replaces the stored row for j.ID.
	UpdateJob(j *Job) error

	// CreateStepResult inserts a step result and returns its id.
	CreateStepResult(r *StepResult) (int64, error)
	// ListStepResultsByJob returns the job's step results in plan order.
	ListStepResultsByJob(jobID int64) ([]*StepResult, error)

	Close() error
}
