package runner

import (
	"context"
	"errors"
	"strings"
	"testing"
)

func TestExec_CapturesOutput(t *testing.T) {
	res, err := Exec{}.Run(context.Background(), Command{
		Argv: []string{"sh", "-c", "echo out; echo err >&2"},
	})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if res.ExitCode != 0 {
		t.Errorf("exit code: got %d", res.ExitCode)
	}
	if strings.TrimSpace(res.Stdout) != "out" {
		t.Errorf("stdout: got %q", res.Stdout)
	}
	if strings.TrimSpace(res.Stderr) != "err" {
		t.Errorf("stderr: got %q", res.Stderr)
	}
}

func TestExec_NonZeroExitIsData(t *testing.T) {
	res, err := Exec{}.Run(context.Background(), Command{Argv: []string{"sh", "-c", "exit 3"}})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if res.ExitCode != 3 {
		t.Errorf("exit code: got %d", res.ExitCode)
	}
}

func TestExec_MissingCommandIsError(t *testing.T) {
	_, err := Exec{}.Run(context.Background(), Command{Argv: []string{"obelus-no-such-binary"}})
	if err == nil {
		t.Fatal("expected error")
	}
}

func TestExec_EmptyCommand(t *testing.T) {
	_, err := Exec{}.Run(context.Background(), Command{})
	if err == nil {
		t.Fatal("expected error")
	}
}

func TestExec_Env(t *testing.T) {
	res, err := Exec{}.Run(context.Background(), Command{
		Argv: []string{"sh", "-c", "echo $OBELUS_RUNNER_ECHO"},
		Env:  []string{"OBELUS_RUNNER_ECHO=42"},
	})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if strings.TrimSpace(res.Stdout) != "42" {
		t.Errorf("stdout: got %q", res.Stdout)
	}
}

func TestChecked(t *testing.T) {
	fake := &Fake{Responses: []FakeResponse{
		{Match: "failing", Result: ExecResult{ExitCode: 2, Stderr: "boom"}},
	}}

	if _, err := Checked(context.Background(), fake, Command{Argv: []string{"ok-cmd"}}); err != nil {
		t.Fatalf("Checked ok: %v", err)
	}

	_, err := Checked(context.Background(), fake, Command{Argv: []string{"failing-cmd"}})
	var cmdErr *CommandError
	if !errors.As(err, &cmdErr) {
		t.Fatalf("want CommandError, got %v", err)
	}
	if cmdErr.ExitCode != 2 || !strings.Contains(cmdErr.Error(), "boom") {
		t.Errorf("command error: %v", cmdErr)
	}
}

func TestFake_FirstMatchWinsAndRecords(t *testing.T) {
	fake := &Fake{Responses: []FakeResponse{
		{Match: "rev-parse", Result: ExecResult{Stdout: "abc123\n"}},
		{Match: "git", Result: ExecResult{ExitCode: 1}},
	}}
	res, err := fake.Run(context.Background(), Command{Argv: []string{"git", "-C", "/tmp/x", "rev-parse", "HEAD"}})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if res.Stdout != "abc123\n" || res.ExitCode != 0 {
		t.Errorf("first match should win: %+v", res)
	}
	lines := fake.CallLines()
	if len(lines) != 1 || !strings.Contains(lines[0], "rev-parse HEAD") {
		t.Errorf("calls: %v", lines)
	}
}

func TestFake_TimesLimitsMatches(t *testing.T) {
	fake := &Fake{Responses: []FakeResponse{
		{Match: "import", Result: ExecResult{ExitCode: 1}, Times: 1},
	}}
	cmd := Command{Argv: []string{"python", "-c", "import accelkit"}}

	res, _ := fake.Run(context.Background(), cmd)
	if res.ExitCode != 1 {
		t.Errorf("first call: got exit %d, want 1", res.ExitCode)
	}
	res, _ = fake.Run(context.Background(), cmd)
	if res.ExitCode != 0 {
		t.Errorf("second call: got exit %d, want 0", res.ExitCode)
	}
}
