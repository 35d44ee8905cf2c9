package mcp

import (
	"context"
	"fmt"
	"sync"
	"time"

	sdkmcp "github.com/modelcontextprotocol/go-sdk/mcp"

	"obelus/internal/launch"
	"obelus/internal/logging"
	"obelus/internal/report"
	"obelus/internal/store"
	"obelus/internal/workflow"
	"obelus/internal/workflow/examples"
)

// Server wraps the MCP SDK server and manages one launch session at a time.
type Server struct {
	MCPServer *sdkmcp.Server
	Config    launch.Config

	// NewRunner builds the launch runner for a workflow definition. The
	// default wires the production collaborators; tests inject fakes.
	NewRunner func(def *workflow.Definition) (*launch.Runner, error)

	mu      sync.Mutex
	session *Session
}

// NewServer creates an MCP server exposing the launch tools.
func NewServer(cfg launch.Config) *Server {
	s := &Server{Config: cfg}
	s.NewRunner = func(def *workflow.Definition) (*launch.Runner, error) {
		return launch.Build(def, s.Config, logging.New("launch"))
	}
	s.MCPServer = sdkmcp.NewServer(
		&sdkmcp.Implementation{Name: "obelus", Version: "dev"},
		nil,
	)
	s.registerTools()
	return s
}

func (s *Server) registerTools() {
	sdkmcp.AddTool(s.MCPServer, &sdkmcp.Tool{
		Name:        "run_workflow",
		Description: "Start a workflow launch in the background and return its session and launch IDs.",
	}, s.handleRunWorkflow)

	sdkmcp.AddTool(s.MCPServer, &sdkmcp.Tool{
		Name:        "get_launch_status",
		Description: "Poll a running launch: pipeline stage, per-job statuses, and a done flag.",
	}, s.handleGetLaunchStatus)

	sdkmcp.AddTool(s.MCPServer, &sdkmcp.Tool{
		Name:        "get_launch_report",
		Description: "Wait for a launch to finish and return its markdown report.",
	}, s.handleGetLaunchReport)

	sdkmcp.AddTool(s.MCPServer, &sdkmcp.Tool{
		Name:        "list_launches",
		Description: "List recorded launches, newest first.",
	}, s.handleListLaunches)
}

// --- Tool input/output types ---

type runWorkflowInput struct {
	Workflow string            `json:"workflow" jsonschema:"embedded workflow name or path to a definition file"`
	Inputs   map[string]string `json:"inputs" jsonschema:"workflow input values (build-environment, test-matrix, ...)"`
	Parallel int               `json:"parallel,omitempty" jsonschema:"number of parallel jobs (0 = one per matrix entry)"`
	Force    bool              `json:"force,omitempty" jsonschema:"cancel any running session and start fresh"`
}

type runWorkflowOutput struct {
	SessionID string `json:"session_id"`
	LaunchID  string `json:"launch_id"`
	Workflow  string `json:"workflow"`
	Status    string `json:"status"`
}

type getLaunchStatusInput struct {
	SessionID string `json:"session_id" jsonschema:"session ID from run_workflow"`
}

type jobStatus struct {
	JobKey string `json:"job_key"`
	Status string `json:"status"`
}

type getLaunchStatusOutput struct {
	State  string      `json:"state"`
	Stage  string      `json:"stage"`
	Done   bool        `json:"done"`
	Status string      `json:"status,omitempty"` // final launch status once done
	Jobs   []jobStatus `json:"jobs,omitempty"`
	Error  string      `json:"error,omitempty"`
}

type getLaunchReportInput struct {
	SessionID string `json:"session_id" jsonschema:"session ID from run_workflow"`
}

type getLaunchReportOutput struct {
	Status string `json:"status"`
	Report string `json:"report,omitempty"`
	Error  string `json:"error,omitempty"`
}

type listLaunchesInput struct {
	Limit int `json:"limit,omitempty" jsonschema:"max launches to return (0 = all)"`
}

type launchSummary struct {
	ID               string `json:"id"`
	Workflow         string `json:"workflow"`
	BuildEnvironment string `json:"build_environment"`
	Status           string `json:"status"`
	StartedAt        string `json:"started_at"`
	EndedAt          string `json:"ended_at,omitempty"`
}

type listLaunchesOutput struct {
	Launches []launchSummary `json:"launches"`
	Total    int             `json:"total"`
}

// --- Tool handlers ---

func (s *Server) handleRunWorkflow(ctx context.Context, _ *sdkmcp.CallToolRequest, input runWorkflowInput) (*sdkmcp.CallToolResult, runWorkflowOutput, error) {
	logger := logging.New("mcp-session")
	s.mu.Lock()
	if s.session != nil {
		select {
		case <-s.session.Done():
		default:
			if !input.Force {
				s.mu.Unlock()
				return nil, runWorkflowOutput{}, fmt.Errorf("a launch session is already running (id=%s)", s.session.ID)
			}
			logger.Warn("force-replacing active session", "old_id", s.session.ID)
		}
		s.session.Close()
	}
	s.session = nil
	s.mu.Unlock()

	def, err := LoadDefinition(input.Workflow)
	if err != nil {
		return nil, runWorkflowOutput{}, err
	}
	runner, err := s.NewRunner(def)
	if err != nil {
		return nil, runWorkflowOutput{}, fmt.Errorf("build runner: %w", err)
	}
	if input.Parallel > 0 {
		runner.Config.Parallel = input.Parallel
	}

	sess := NewSession(ctx, runner, input.Inputs)

	s.mu.Lock()
	s.session = sess
	s.mu.Unlock()

	logger.Info("launch session started", "session", sess.ID, "launch", sess.LaunchID, "workflow", def.Name)
	return nil, runWorkflowOutput{
		SessionID: sess.ID,
		LaunchID:  sess.LaunchID,
		Workflow:  def.Name,
		Status:    string(StateRunning),
	}, nil
}

func (s *Server) handleGetLaunchStatus(_ context.Context, _ *sdkmcp.CallToolRequest, input getLaunchStatusInput) (*sdkmcp.CallToolResult, getLaunchStatusOutput, error) {
	sess, err := s.getSession(input.SessionID)
	if err != nil {
		return nil, getLaunchStatusOutput{}, err
	}

	out := getLaunchStatusOutput{
		State: string(sess.State()),
		Stage: sess.Stage(),
		Done:  sess.State() != StateRunning,
	}
	if jobs, err := sess.JobStatuses(); err == nil {
		for _, j := range jobs {
			out.Jobs = append(out.Jobs, jobStatus{JobKey: j.JobKey, Status: j.Status})
		}
	}
	if out.Done {
		result, runErr := sess.Result()
		if runErr != nil {
			out.Error = runErr.Error()
		} else if result != nil {
			out.Status = result.Status
		}
	}
	return nil, out, nil
}

func (s *Server) handleGetLaunchReport(ctx context.Context, _ *sdkmcp.CallToolRequest, input getLaunchReportInput) (*sdkmcp.CallToolResult, getLaunchReportOutput, error) {
	sess, err := s.getSession(input.SessionID)
	if err != nil {
		return nil, getLaunchReportOutput{}, err
	}

	select {
	case <-sess.Done():
	case <-ctx.Done():
		return nil, getLaunchReportOutput{}, ctx.Err()
	}

	if _, runErr := sess.Result(); runErr != nil {
		return nil, getLaunchReportOutput{
			Status: string(StateError),
			Error:  runErr.Error(),
		}, nil
	}

	data, err := report.Assemble(sess.runner.Store, sess.LaunchID)
	if err != nil {
		return nil, getLaunchReportOutput{}, fmt.Errorf("assemble report: %w", err)
	}
	return nil, getLaunchReportOutput{
		Status: string(StateDone),
		Report: data.Markdown(),
	}, nil
}

func (s *Server) handleListLaunches(_ context.Context, _ *sdkmcp.CallToolRequest, input listLaunchesInput) (*sdkmcp.CallToolResult, listLaunchesOutput, error) {
	st, closeStore, err := s.launchStore()
	if err != nil {
		return nil, listLaunchesOutput{}, err
	}
	defer closeStore()

	launches, err := st.ListLaunches()
	if err != nil {
		return nil, listLaunchesOutput{}, fmt.Errorf("list launches: %w", err)
	}
	out := listLaunchesOutput{Total: len(launches)}
	for i, l := range launches {
		if input.Limit > 0 && i >= input.Limit {
			break
		}
		out.Launches = append(out.Launches, launchSummary{
			ID:               l.ID,
			Workflow:         l.Workflow,
			BuildEnvironment: l.BuildEnvironment,
			Status:           l.Status,
			StartedAt:        l.StartedAt,
			EndedAt:          l.EndedAt,
		})
	}
	return nil, out, nil
}

// launchStore returns the active session's store, or opens the configured DB
// for a one-shot read.
func (s *Server) launchStore() (store.Store, func(), error) {
	s.mu.Lock()
	sess := s.session
	s.mu.Unlock()
	if sess != nil {
		return sess.runner.Store, func() {}, nil
	}
	dbPath := s.Config.DBPath
	if dbPath == "" {
		dbPath = store.DefaultDBPath
	}
	st, err := store.Open(dbPath)
	if err != nil {
		return nil, nil, fmt.Errorf("open store: %w", err)
	}
	return st, func() { st.Close() }, nil
}

// SessionID returns the current session's ID, or empty string if none.
func (s *Server) SessionID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.session != nil {
		return s.session.ID
	}
	return ""
}

// Shutdown cancels any active session, releasing the launch goroutine and
// its store handle.
func (s *Server) Shutdown() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.session != nil {
		s.session.Close()
		s.session = nil
	}
}

func (s *Server) getSession(id string) (*Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.session == nil {
		return nil, fmt.Errorf("no active session (call run_workflow first)")
	}
	if s.session.ID != id {
		return nil, fmt.Errorf("session_id mismatch: have %s, got %s", s.session.ID, id)
	}
	return s.session, nil
}

// WaitSession blocks until the current session finishes or timeout elapses.
// For tests.
func (s *Server) WaitSession(timeout time.Duration) error {
	s.mu.Lock()
	sess := s.session
	s.mu.Unlock()
	if sess == nil {
		return fmt.Errorf("no active session")
	}
	select {
	case <-sess.Done():
		return nil
	case <-time.After(timeout):
		return fmt.Errorf("session %s still running after %s", sess.ID, timeout)
	}
}

// LoadDefinition resolves a workflow argument: a path to a definition file
// when one exists on disk, otherwise an embedded workflow name.
func LoadDefinition(arg string) (*workflow.Definition, error) {
	return examples.Resolve(arg)
}
