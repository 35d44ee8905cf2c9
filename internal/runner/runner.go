// Package runner executes external commands with captured output. Step and
// provisioning logic depend on the Runner interface, so tests run against a
// scripted fake instead of real git and python.
package runner

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"strings"
)

// Command describes one external command invocation.
type Command struct {
	Argv []string
	Dir  string
	Env  []string // appended to the process environment
}

// ExecResult captures a finished command. A non-zero exit code is data here,
// not an error; callers decide what it means.
type ExecResult struct {
	ExitCode int
	Stdout   string
	Stderr   string
}

// Runner executes commands.
type Runner interface {
	Run(ctx context.Context, cmd Command) (*ExecResult, error)
}

// Exec is the real Runner over os/exec.
type Exec struct{}

func (Exec) Run(ctx context.Context, c Command) (*ExecResult, error) {
	if len(c.Argv) == 0 {
		return nil, fmt.Errorf("command is empty")
	}
	execCmd := exec.CommandContext(ctx, c.Argv[0], c.Argv[1:]...)
	execCmd.Dir = c.Dir
	if len(c.Env) > 0 {
		execCmd.Env = append(os.Environ(), c.Env...)
	}
	var stdout, stderr bytes.Buffer
	execCmd.Stdout = &stdout
	execCmd.Stderr = &stderr
	err := execCmd.Run()
	exitCode := 0
	if err != nil {
		exitErr, ok := err.(*exec.ExitError)
		if !ok {
			// Not a command outcome: command missing, context canceled, etc.
			return nil, fmt.Errorf("run %s: %w", c.Argv[0], err)
		}
		exitCode = exitErr.ExitCode()
	}
	return &ExecResult{
		ExitCode: exitCode,
		Stdout:   stdout.String(),
		Stderr:   stderr.String(),
	}, nil
}

// CommandError reports a command that finished with a non-zero exit code.
type CommandError struct {
	Argv     []string
	ExitCode int
	Stderr   string
}

func (e *CommandError) Error() string {
	msg := strings.TrimSpace(e.Stderr)
	if msg == "" {
		msg = "(no stderr)"
	}
	return fmt.Sprintf("%s: exit %d: %s", strings.Join(e.Argv, " "), e.ExitCode, msg)
}

// Checked runs cmd and converts a non-zero exit into a *CommandError.
func Checked(ctx context.Context, r Runner, cmd Command) (*ExecResult, error) {
	res, err := r.Run(ctx, cmd)
	if err != nil {
		return nil, err
	}
	if res.ExitCode != 0 {
		return res, &CommandError{Argv: cmd.Argv, ExitCode: res.ExitCode, Stderr: res.Stderr}
	}
	return res, nil
}
