package store

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite"
)

const schemaVersion = 1

const schemaDDL = `
CREATE TABLE IF NOT EXISTS schema_version (version INTEGER NOT NULL);

CREATE TABLE IF NOT EXISTS launches (
	id TEXT PRIMARY KEY,
	workflow TEXT NOT NULL,
	build_environment TEXT NOT NULL,
	sync_tag TEXT NOT NULL DEFAULT '',
	python_version TEXT NOT NULL DEFAULT '',
	raw_matrix TEXT NOT NULL DEFAULT '',
	filtered_matrix TEXT NOT NULL DEFAULT '',
	keep_going INTEGER NOT NULL DEFAULT 0,
	reenabled_issues TEXT NOT NULL DEFAULT '[]',
	repository TEXT NOT NULL DEFAULT '',
	commit_sha TEXT NOT NULL DEFAULT '',
	status TEXT NOT NULL,
	skip_reason TEXT NOT NULL DEFAULT '',
	started_at TEXT NOT NULL,
	ended_at TEXT NOT NULL DEFAULT '',
	seq INTEGER
);

CREATE TABLE IF NOT EXISTS jobs (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	launch_id TEXT NOT NULL,
	runner TEXT NOT NULL,
	config TEXT NOT NULL,
	shard INTEGER NOT NULL,
	num_shards INTEGER NOT NULL,
	job_key TEXT NOT NULL,
	orch_job_id TEXT NOT NULL DEFAULT '',
	status TEXT NOT NULL,
	started_at TEXT NOT NULL DEFAULT '',
	ended_at TEXT NOT NULL DEFAULT '',
	FOREIGN KEY (launch_id) REFERENCES launches(id)
);
CREATE INDEX IF NOT EXISTS idx_jobs_launch ON jobs(launch_id);

CREATE TABLE IF NOT EXISTS step_results (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	job_id INTEGER NOT NULL,
	name TEXT NOT NULL,
	policy TEXT NOT NULL,
	status TEXT NOT NULL,
	exit_code INTEGER NOT NULL DEFAULT 0,
	error TEXT NOT NULL DEFAULT '',
	duration_ms INTEGER NOT NULL DEFAULT 0,
	FOREIGN KEY (job_id) REFERENCES jobs(id)
);
CREATE INDEX IF NOT EXISTS idx_steps_job ON step_results(job_id);
`

// SqlStore is the SQLite-backed Store.
type SqlStore struct {
	db   *sql.DB
	path string
}

// Open opens (or creates) the SQLite store at path, creating the parent
// directory. WAL mode and a busy timeout are applied so a reporting reader
// can coexist with a running driver.
func Open(path string) (*SqlStore, error) {
	if dir := filepath.Dir(path); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("create db dir: %w", err)
		}
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA foreign_keys=ON",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("%s: %w", pragma, err)
		}
	}
	s := &SqlStore{db: db, path: path}
	if err := s.initSchema(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// Path returns the database file path.
func (s *SqlStore) Path() string { return s.path }

// Close implements Store.
func (s *SqlStore) Close() error { return s.db.Close() }

func (s *SqlStore) initSchema() error {
	if _, err := s.db.Exec(schemaDDL); err != nil {
		return fmt.Errorf("init schema: %w", err)
	}
	var version int
	err := s.db.QueryRow("SELECT version FROM schema_version LIMIT 1").Scan(&version)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		if _, err := s.db.Exec("INSERT INTO schema_version (version) VALUES (?)", schemaVersion); err != nil {
			return fmt.Errorf("record schema version: %w", err)
		}
	case err != nil:
		return fmt.Errorf("read schema version: %w", err)
	case version > schemaVersion:
		return fmt.Errorf("db schema version %d is newer than this binary supports (%d)", version, schemaVersion)
	}
	return nil
}

// CreateLaunch implements Store.
func (s *SqlStore) CreateLaunch(l *Launch) error {
	if l.ID == "" {
		return fmt.Errorf("launch id is empty")
	}
	issues, err := json.Marshal(issuesOrEmpty(l.ReenabledIssues))
	if err != nil {
		return fmt.Errorf("marshal reenabled issues: %w", err)
	}
	_, err = s.db.Exec(`INSERT INTO launches
		(id, workflow, build_environment, sync_tag, python_version, raw_matrix,
		 filtered_matrix, keep_going, reenabled_issues, repository, commit_sha,
		 status, skip_reason, started_at, ended_at, seq)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?,
		 (SELECT COALESCE(MAX(seq), 0) + 1 FROM launches))`,
		l.ID, l.Workflow, l.BuildEnvironment, l.SyncTag, l.PythonVersion, l.RawMatrix,
		l.FilteredMatrix, boolToInt(l.KeepGoing), string(issues), l.Repository, l.Commit,
		l.Status, l.SkipReason, l.StartedAt, l.EndedAt)
	if err != nil {
		return fmt.Errorf("insert launch: %w", err)
	}
	return nil
}

const launchColumns = `id, workflow, build_environment, sync_tag, python_version,
	raw_matrix, filtered_matrix, keep_going, reenabled_issues, repository,
	commit_sha, status, skip_reason, started_at, ended_at`

func scanLaunch(row interface{ Scan(...any) error }) (*Launch, error) {
	var l Launch
	var keepGoing int
	var issues string
	err := row.Scan(&l.ID, &l.Workflow, &l.BuildEnvironment, &l.SyncTag, &l.PythonVersion,
		&l.RawMatrix, &l.FilteredMatrix, &keepGoing, &issues, &l.Repository,
		&l.Commit, &l.Status, &l.SkipReason, &l.StartedAt, &l.EndedAt)
	if err != nil {
		return nil, err
	}
	l.KeepGoing = keepGoing != 0
	if err := json.Unmarshal([]byte(issues), &l.ReenabledIssues); err != nil {
		return nil, fmt.Errorf("parse reenabled issues: %w", err)
	}
	if len(l.ReenabledIssues) == 0 {
		l.ReenabledIssues = nil
	}
	return &l, nil
}

// GetLaunch implements Store.
func (s *SqlStore) GetLaunch(id string) (*Launch, error) {
	row := s.db.QueryRow("SELECT "+launchColumns+" FROM launches WHERE id = ?", id)
	l, err := scanLaunch(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("launch %q: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get launch: %w", err)
	}
	return l, nil
}

// ListLaunches implements Store. Newest first.
func (s *SqlStore) ListLaunches() ([]*Launch, error) {
	rows, err := s.db.Query("SELECT " + launchColumns + " FROM launches ORDER BY seq DESC")
	if err != nil {
		return nil, fmt.Errorf("list launches: %w", err)
	}
	defer rows.Close()
	var out []*Launch
	for rows.Next() {
		l, err := scanLaunch(rows)
		if err != nil {
			return nil, fmt.Errorf("scan launch: %w", err)
		}
		out = append(out, l)
	}
	return out, rows.Err()
}

// UpdateLaunch implements Store.
func (s *SqlStore) UpdateLaunch(l *Launch) error {
	issues, err := json.Marshal(issuesOrEmpty(l.ReenabledIssues))
	if err != nil {
		return fmt.Errorf("marshal reenabled issues: %w", err)
	}
	res, err := s.db.Exec(`UPDATE launches SET
		workflow = ?, build_environment = ?, sync_tag = ?, python_version = ?,
		raw_matrix = ?, filtered_matrix = ?, keep_going = ?, reenabled_issues = ?,
		repository = ?, commit_sha = ?, status = ?, skip_reason = ?,
		started_at = ?, ended_at = ?
		WHERE id = ?`,
		l.Workflow, l.BuildEnvironment, l.SyncTag, l.PythonVersion,
		l.RawMatrix, l.FilteredMatrix, boolToInt(l.KeepGoing), string(issues),
		l.Repository, l.Commit, l.Status, l.SkipReason,
		l.StartedAt, l.EndedAt, l.ID)
	if err != nil {
		return fmt.Errorf("update launch: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update launch: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("launch %q: %w", l.ID, ErrNotFound)
	}
	return nil
}

// CreateJob implements Store.
func (s *SqlStore) CreateJob(j *Job) (int64, error) {
	res, err := s.db.Exec(`INSERT INTO jobs
		(launch_id, runner, config, shard, num_shards, job_key, orch_job_id,
		 status, started_at, ended_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		j.LaunchID, j.Runner, j.Config, j.Shard, j.NumShards, j.JobKey, j.OrchJobID,
		j.Status, j.StartedAt, j.EndedAt)
	if err != nil {
		return 0, fmt.Errorf("insert job: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("insert job: %w", err)
	}
	j.ID = id
	return id, nil
}

const jobColumns = `id, launch_id, runner, config, shard, num_shards, job_key,
	orch_job_id, status, started_at, ended_at`

func scanJob(row interface{ Scan(...any) error }) (*Job, error) {
	var j Job
	err := row.Scan(&j.ID, &j.LaunchID, &j.Runner, &j.Config, &j.Shard, &j.NumShards,
		&j.JobKey, &j.OrchJobID, &j.Status, &j.StartedAt, &j.EndedAt)
	if err != nil {
		return nil, err
	}
	return &j, nil
}

// GetJob implements Store.
func (s *SqlStore) GetJob(id int64) (*Job, error) {
	row := s.db.QueryRow("SELECT "+jobColumns+" FROM jobs WHERE id = ?", id)
	j, err := scanJob(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("job %d: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get job: %w", err)
	}
	return j, nil
}

// ListJobsByLaunch implements Store.
func (s *SqlStore) ListJobsByLaunch(launchID string) ([]*Job, error) {
	rows, err := s.db.Query("SELECT "+jobColumns+" FROM jobs WHERE launch_id = ? ORDER BY id", launchID)
	if err != nil {
		return nil, fmt.Errorf("list jobs: %w", err)
	}
	defer rows.Close()
	var out []*Job
	for rows.Next() {
		j, err := scanJob(rows)
		if err != nil {
			return nil, fmt.Errorf("scan job: %w", err)
		}
		out = append(out, j)
	}
	return out, rows.Err()
}

// UpdateJob implements Store.
func (s *SqlStore) UpdateJob(j *Job) error {
	res, err := s.db.Exec(`UPDATE jobs SET
		launch_id = ?, runner = ?, config = ?, shard = ?, num_shards = ?,
		job_key = ?, orch_job_id = ?, status = ?, started_at = ?, ended_at = ?
		WHERE id = ?`,
		j.LaunchID, j.Runner, j.Config, j.Shard, j.NumShards,
		j.JobKey, j.OrchJobID, j.Status, j.StartedAt, j.EndedAt, j.ID)
	if err != nil {
		return fmt.Errorf("update job: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update job: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("job %d: %w", j.ID, ErrNotFound)
	}
	return nil
}

// CreateStepResult implements Store.
func (s *SqlStore) CreateStepResult(r *StepResult) (int64, error) {
	res, err := s.db.Exec(`INSERT INTO step_results
		(job_id, name, policy, status, exit_code, error, duration_ms)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		r.JobID, r.Name, r.Policy, r.Status, r.ExitCode, r.Error, r.DurationMS)
	if err != nil {
		return 0, fmt.Errorf("insert step result: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("insert step result: %w", err)
	}
	r.ID = id
	return id, nil
}

// ListStepResultsByJob implements Store.
func (s *SqlStore) ListStepResultsByJob(jobID int64) ([]*StepResult, error) {
	rows, err := s.db.Query(`SELECT id, job_id, name, policy, status, exit_code, error, duration_ms
		FROM step_results WHERE job_id = ? ORDER BY id`, jobID)
	if err != nil {
		return nil, fmt.Errorf("list step results: %w", err)
	}
	defer rows.Close()
	var out []*StepResult
	for rows.Next() {
		var r StepResult
		if err := rows.Scan(&r.ID, &r.JobID, &r.Name, &r.Policy, &r.Status,
			&r.ExitCode, &r.Error, &r.DurationMS); err != nil {
			return nil, fmt.Errorf("scan step result: %w", err)
		}
		out = append(out, &r)
	}
	return out, rows.Err()
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func issuesOrEmpty(issues []string) []string {
	if issues == nil {
		return []string{}
	}
	return issues
}
