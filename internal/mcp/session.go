// Package mcp exposes the launch driver to agents over the Model Context
// Protocol: start a workflow run, poll its jobs, and fetch the final report.
package mcp

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"

	"obelus/internal/launch"
	"obelus/internal/logging"
	"obelus/internal/store"
	"obelus/internal/workflow"
)

// SessionState tracks the lifecycle of a launch session.
type SessionState string

const (
	StateRunning SessionState = "running"
	StateDone    SessionState = "done"
	StateError   SessionState = "error"
)

// Session owns one background launch: the goroutine driving it, its result,
// and the store handle used for status polls while it runs.
type Session struct {
	ID       string
	LaunchID string
	Workflow string

	runner *launch.Runner
	cancel context.CancelFunc
	done   chan struct{}

	mu     sync.Mutex
	result *launch.Result
	err    error
}

// NewSession starts the runner in a background goroutine. The launch id is
// pre-assigned so callers can poll the store before the run finishes.
func NewSession(ctx context.Context, r *launch.Runner, provided map[string]string) *Session {
	runCtx := workflow.RunContextFromEnv()
	s := &Session{
		ID:       uuid.New().String(),
		LaunchID: uuid.New().String(),
		Workflow: r.Def.Name,
		runner:   r,
		done:     make(chan struct{}),
	}
	r.LaunchID = s.LaunchID

	runCtxDetached, cancel := context.WithCancel(context.WithoutCancel(ctx))
	s.cancel = cancel

	log := logging.New("mcp-session")
	go func() {
		defer close(s.done)
		result, err := r.Run(runCtxDetached, provided, runCtx)
		s.mu.Lock()
		s.result = result
		s.err = err
		s.mu.Unlock()
		if err != nil {
			log.Error("launch failed", "session", s.ID, "launch", s.LaunchID, "error", err)
			return
		}
		log.Info("launch finished", "session", s.ID, "launch", s.LaunchID, "status", result.Status)
	}()
	return s
}

// Done returns a channel closed when the launch goroutine exits.
func (s *Session) Done() <-chan struct{} { return s.done }

// Cancel stops the running launch and releases its goroutine.
func (s *Session) Cancel() {
	if s.cancel != nil {
		s.cancel()
	}
}

// Close cancels the launch, waits for its goroutine to exit, and closes the
// runner's store. A session must be closed before it is discarded or its
// store handle leaks.
func (s *Session) Close() {
	s.Cancel()
	<-s.done
	if err := s.runner.Store.Close(); err != nil {
		logging.New("mcp-session").Warn("close session store", "session", s.ID, "error", err)
	}
}

// State reports the session lifecycle state.
func (s *Session) State() SessionState {
	select {
	case <-s.done:
	default:
		return StateRunning
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return StateError
	}
	return StateDone
}

// Result returns the finished result and error; both nil/zero while running.
func (s *Session) Result() (*launch.Result, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.result, s.err
}

// JobStatuses reads the launch's per-job statuses from the store. Valid at
// any point in the session's life; before the matrix expands it is empty.
func (s *Session) JobStatuses() ([]*store.Job, error) {
	jobs, err := s.runner.Store.ListJobsByLaunch(s.LaunchID)
	if err != nil {
		return nil, fmt.Errorf("list jobs: %w", err)
	}
	return jobs, nil
}

// Stage names the part of the pipeline the launch is currently in, derived
// from what the store has seen so far.
func (s *Session) Stage() string {
	if s.State() != StateRunning {
		return "finished"
	}
	l, err := s.runner.Store.GetLaunch(s.LaunchID)
	if err != nil {
		return "starting"
	}
	if l.FilteredMatrix == "" {
		return "filter"
	}
	return "test"
}
