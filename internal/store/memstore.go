package store

import (
	"fmt"
	"sync"
)

// MemStore is an in-memory Store for tests and in-process drivers.
type MemStore struct {
	mu       sync.Mutex
	launches []*Launch
	jobs     map[int64]*Job
	steps    map[int64]*StepResult
	nextJob  int64
	nextStep int64
}

// NewMemStore returns a new in-memory Store.
func NewMemStore() *MemStore {
	return &MemStore{
		jobs:  make(map[int64]*Job),
		steps: make(map[int64]*StepResult),
	}
}

// CreateLaunch implements Store.
func (s *MemStore) CreateLaunch(l *Launch) error {
	if l.ID == "" {
		return fmt.Errorf("launch id is empty")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, have := range s.launches {
		if have.ID == l.ID {
			return fmt.Errorf("launch %s already exists", l.ID)
		}
	}
	cp := cloneLaunch(l)
	s.launches = append(s.launches, cp)
	return nil
}

// GetLaunch implements Store.
func (s *MemStore) GetLaunch(id string) (*Launch, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, l := range s.launches {
		if l.ID == id {
			return cloneLaunch(l), nil
		}
	}
	return nil, fmt.Errorf("launch %q: %w", id, ErrNotFound)
}

// ListLaunches implements Store. Newest first (reverse insertion order).
func (s *MemStore) ListLaunches() ([]*Launch, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*Launch, 0, len(s.launches))
	for i := len(s.launches) - 1; i >= 0; i-- {
		out = append(out, cloneLaunch(s.launches[i]))
	}
	return out, nil
}

// UpdateLaunch implements Store.
func (s *MemStore) UpdateLaunch(l *Launch) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, have := range s.launches {
		if have.ID == l.ID {
			s.launches[i] = cloneLaunch(l)
			return nil
		}
	}
	return fmt.Errorf("launch %q: %w", l.ID, ErrNotFound)
}

// CreateJob implements Store.
func (s *MemStore) CreateJob(j *Job) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextJob++
	cp := *j
	cp.ID = s.nextJob
	s.jobs[cp.ID] = &cp
	j.ID = cp.ID
	return cp.ID, nil
}

// GetJob implements Store.
func (s *MemStore) GetJob(id int64) (*Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	j, ok := s.jobs[id]
	if !ok {
		return nil, fmt.Errorf("job %d: %w", id, ErrNotFound)
	}
	cp := *j
	return &cp, nil
}

// ListJobsByLaunch implements Store.
func (s *MemStore) ListJobsByLaunch(launchID string) ([]*Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*Job
	for id := int64(1); id <= s.nextJob; id++ {
		j, ok := s.jobs[id]
		if !ok || j.LaunchID != launchID {
			continue
		}
		cp := *j
		out = append(out, &cp)
	}
	return out, nil
}

// UpdateJob implements Store.
func (s *MemStore) UpdateJob(j *Job) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.jobs[j.ID]; !ok {
		return fmt.Errorf("job %d: %w", j.ID, ErrNotFound)
	}
	cp := *j
	s.jobs[j.ID] = &cp
	return nil
}

// CreateStepResult implements Store.
func (s *MemStore) CreateStepResult(r *StepResult) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextStep++
	cp := *r
	cp.ID = s.nextStep
	s.steps[cp.ID] = &cp
	r.ID = cp.ID
	return cp.ID, nil
}

// ListStepResultsByJob implements Store.
func (s *MemStore) ListStepResultsByJob(jobID int64) ([]*StepResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*StepResult
	for id := int64(1); id <= s.nextStep; id++ {
		r, ok := s.steps[id]
		if !ok || r.JobID != jobID {
			continue
		}
		cp := *r
		out = append(out, &cp)
	}
	return out, nil
}

// Close implements Store.
func (s *MemStore) Close() error { return nil }

func cloneLaunch(l *Launch) *Launch {
	cp := *l
	if l.ReenabledIssues != nil {
		cp.ReenabledIssues = append([]string(nil), l.ReenabledIssues...)
	}
	return &cp
}
