package steps

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"

	"obelus/internal/logging"
	"obelus/internal/runner"
)

type scriptedStep struct {
	name   string
	policy Policy
	err    error
	ran    *[]string
}

func (s scriptedStep) Name() string   { return s.name }
func (s scriptedStep) Policy() Policy { return s.policy }
func (s scriptedStep) Run(_ context.Context, _ *Env) error {
	*s.ran = append(*s.ran, s.name)
	return s.err
}

func execEnv(t *testing.T) *Env {
	t.Helper()
	ws := filepath.Join(t.TempDir(), "job")
	if err := os.MkdirAll(ws, 0755); err != nil {
		t.Fatal(err)
	}
	return &Env{
		Workspace: ws,
		Runner:    &runner.Fake{},
		Log:       logging.Discard(),
	}
}

func statuses(records []Record) []Status {
	out := make([]Status, len(records))
	for i, r := range records {
		out[i] = r.Status
	}
	return out
}

func TestExecute_AllOK(t *testing.T) {
	var ran []string
	plan := []Step{
		scriptedStep{name: "a", policy: Fatal, ran: &ran},
		scriptedStep{name: "b", policy: Fatal, ran: &ran},
	}
	records, err := Execute(context.Background(), execEnv(t), plan)
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if diff := cmp.Diff([]Status{StatusOK, StatusOK}, statuses(records)); diff != "" {
		t.Errorf("statuses (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]string{"a", "b"}, ran); diff != "" {
		t.Errorf("ran (-want +got):\n%s", diff)
	}
}

func TestExecute_FatalSkipsLaterButRunsAlwaysRun(t *testing.T) {
	var ran []string
	plan := []Step{
		scriptedStep{name: "a", policy: Fatal, err: errors.New("boom"), ran: &ran},
		scriptedStep{name: "b", policy: Fatal, ran: &ran},
		scriptedStep{name: "c", policy: AlwaysRun, ran: &ran},
	}
	records, err := Execute(context.Background(), execEnv(t), plan)
	if err == nil || !strings.Contains(err.Error(), "step a") {
		t.Fatalf("want job failure from a, got %v", err)
	}
	if diff := cmp.Diff([]Status{StatusFailed, StatusSkipped, StatusOK}, statuses(records)); diff != "" {
		t.Errorf("statuses (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]string{"a", "c"}, ran); diff != "" {
		t.Errorf("ran (-want +got):\n%s", diff)
	}
}

func TestExecute_ContinueOnErrorTolerated(t *testing.T) {
	var ran []string
	plan := []Step{
		scriptedStep{name: "a", policy: ContinueOnError, err: errors.New("meh"), ran: &ran},
		scriptedStep{name: "b", policy: Fatal, ran: &ran},
	}
	records, err := Execute(context.Background(), execEnv(t), plan)
	if err != nil {
		t.Fatalf("tolerated failure must not fail the job: %v", err)
	}
	if diff := cmp.Diff([]Status{StatusTolerated, StatusOK}, statuses(records)); diff != "" {
		t.Errorf("statuses (-want +got):\n%s", diff)
	}
	if records[0].Error != "meh" {
		t.Errorf("error text: %q", records[0].Error)
	}
}

func TestExecute_AlwaysRunFailureFailsJob(t *testing.T) {
	var ran []string
	plan := []Step{
		scriptedStep{name: "a", policy: Fatal, ran: &ran},
		scriptedStep{name: "b", policy: AlwaysRun, err: errors.New("upload refused"), ran: &ran},
	}
	_, err := Execute(context.Background(), execEnv(t), plan)
	if err == nil || !strings.Contains(err.Error(), "step b") {
		t.Fatalf("want job failure from b, got %v", err)
	}
}

func TestExecute_FirstFatalWins(t *testing.T) {
	var ran []string
	plan := []Step{
		scriptedStep{name: "a", policy: Fatal, err: errors.New("first"), ran: &ran},
		scriptedStep{name: "b", policy: AlwaysRun, err: errors.New("second"), ran: &ran},
	}
	records, err := Execute(context.Background(), execEnv(t), plan)
	if err == nil || !strings.Contains(err.Error(), "first") {
		t.Fatalf("first failure should be the job error, got %v", err)
	}
	if records[1].Status != StatusFailed {
		t.Errorf("always-run failure still recorded: %+v", records[1])
	}
}

func TestExecute_ExitCodeExtracted(t *testing.T) {
	var ran []string
	cmdErr := &runner.CommandError{Argv: []string{"run_tests"}, ExitCode: 4, Stderr: "2 failed"}
	plan := []Step{scriptedStep{name: "run-tests", policy: Fatal, err: cmdErr, ran: &ran}}
	records, _ := Execute(context.Background(), execEnv(t), plan)
	if records[0].ExitCode != 4 {
		t.Errorf("exit code: got %d", records[0].ExitCode)
	}
}

func TestExecute_CanceledContextSkipsEverything(t *testing.T) {
	var ran []string
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	plan := []Step{
		scriptedStep{name: "a", policy: Fatal, ran: &ran},
		scriptedStep{name: "b", policy: AlwaysRun, ran: &ran},
	}
	records, err := Execute(ctx, execEnv(t), plan)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("want context.Canceled, got %v", err)
	}
	if diff := cmp.Diff([]Status{StatusSkipped, StatusSkipped}, statuses(records)); diff != "" {
		t.Errorf("statuses (-want +got):\n%s", diff)
	}
	if len(ran) != 0 {
		t.Errorf("nothing should run: %v", ran)
	}
}

func TestExecute_WritesCommandTranscript(t *testing.T) {
	env := execEnv(t)
	fake := &runner.Fake{Responses: []runner.FakeResponse{
		{Match: "sensor", Result: runner.ExecResult{Stdout: "sensor output\n"}},
	}}
	env.Runner = fake

	step := commandStep{}
	if _, err := Execute(context.Background(), env, []Step{step}); err != nil {
		t.Fatalf("Execute: %v", err)
	}
	data, err := os.ReadFile(filepath.Join(env.LogDir(), "sensor-step.log"))
	if err != nil {
		t.Fatalf("read transcript: %v", err)
	}
	text := string(data)
	if !strings.Contains(text, "$ sensor --once") || !strings.Contains(text, "sensor output") {
		t.Errorf("transcript: %q", text)
	}
}

type commandStep struct{}

func (commandStep) Name() string   { return "sensor-step" }
func (commandStep) Policy() Policy { return Fatal }
func (commandStep) Run(ctx context.Context, env *Env) error {
	_, err := env.Runner.Run(ctx, runner.Command{Argv: []string{"sensor", "--once"}})
	return err
}
