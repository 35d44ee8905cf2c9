package runner

import (
	"context"
	"strings"
	"sync"
)

// FakeResponse scripts the outcome for commands whose joined argv contains
// Match. The first matching response wins. Times limits how many calls the
// response consumes; 0 means unlimited.
type FakeResponse struct {
	Match  string
	Result ExecResult
	Err    error
	Times  int
}

// Fake is a scripted Runner for tests. Commands with no matching response
// succeed with empty output. Calls are recorded in order.
type Fake struct {
	mu        sync.Mutex
	Responses []FakeResponse
	Calls     []Command
}

func (f *Fake) Run(_ context.Context, cmd Command) (*ExecResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Calls = append(f.Calls, cmd)
	joined := strings.Join(cmd.Argv, " ")
	for i := range f.Responses {
		r := &f.Responses[i]
		if r.Times < 0 || !strings.Contains(joined, r.Match) {
			continue
		}
		if r.Times > 0 {
			r.Times--
			if r.Times == 0 {
				r.Times = -1 // exhausted
			}
		}
		if r.Err != nil {
			return nil, r.Err
		}
		res := r.Result
		return &res, nil
	}
	return &ExecResult{}, nil
}

// CallLines returns each recorded call's argv joined with spaces.
func (f *Fake) CallLines() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	lines := make([]string, len(f.Calls))
	for i, c := range f.Calls {
		lines[i] = strings.Join(c.Argv, " ")
	}
	return lines
}
