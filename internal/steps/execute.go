package steps

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"obelus/internal/logging"
	"obelus/internal/runner"
)

// Execute runs the plan in order. A fatal failure stops normal steps while
// always-run steps still execute; continue-on-error failures are recorded as
// tolerated. Context cancellation skips every remaining step, always-run
// included. The returned error is the job's failure; nil means the job passed.
func Execute(ctx context.Context, env *Env, plan []Step) ([]Record, error) {
	if env.Log == nil {
		env.Log = logging.Discard()
	}
	if err := os.MkdirAll(env.LogDir(), 0755); err != nil {
		return nil, fmt.Errorf("create log dir: %w", err)
	}
	lr := &logRunner{inner: env.Runner, dir: env.LogDir()}
	env.Runner = lr

	records := make([]Record, 0, len(plan))
	var jobErr error
	for _, step := range plan {
		rec := Record{Name: step.Name(), Policy: step.Policy()}
		if ctx.Err() != nil || (jobErr != nil && step.Policy() != AlwaysRun) {
			rec.Status = StatusSkipped
			records = append(records, rec)
			continue
		}
		lr.step = step.Name()
		start := time.Now()
		err := step.Run(ctx, env)
		rec.Duration = time.Since(start)
		switch {
		case err == nil:
			rec.Status = StatusOK
		case step.Policy() == ContinueOnError:
			rec.Status = StatusTolerated
			rec.Error = err.Error()
			rec.ExitCode = exitCodeOf(err)
			env.Log.Warn("step failed (tolerated)", "step", step.Name(), "error", err)
		default:
			rec.Status = StatusFailed
			rec.Error = err.Error()
			rec.ExitCode = exitCodeOf(err)
			env.Log.Error("step failed", "step", step.Name(), "error", err)
			if jobErr == nil {
				jobErr = fmt.Errorf("step %s: %w", step.Name(), err)
			}
		}
		records = append(records, rec)
	}
	if jobErr == nil && ctx.Err() != nil {
		jobErr = ctx.Err()
	}
	return records, jobErr
}

func exitCodeOf(err error) int {
	var cmdErr *runner.CommandError
	if errors.As(err, &cmdErr) {
		return cmdErr.ExitCode
	}
	return 0
}

// logRunner tees every command through to a per-step log file, so the
// upload-logs step has the full command transcript to archive.
type logRunner struct {
	inner runner.Runner
	dir   string
	step  string
}

func (l *logRunner) Run(ctx context.Context, cmd runner.Command) (*runner.ExecResult, error) {
	res, err := l.inner.Run(ctx, cmd)
	l.append(cmd, res, err)
	return res, err
}

func (l *logRunner) append(cmd runner.Command, res *runner.ExecResult, runErr error) {
	name := l.step
	if name == "" {
		name = "plan"
	}
	f, err := os.OpenFile(filepath.Join(l.dir, name+".log"), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return
	}
	defer f.Close()
	fmt.Fprintf(f, "$ %s\n", strings.Join(cmd.Argv, " "))
	if runErr != nil {
		fmt.Fprintf(f, "error: %v\n", runErr)
		return
	}
	if res.Stdout != "" {
		fmt.Fprintln(f, strings.TrimRight(res.Stdout, "\n"))
	}
	if res.Stderr != "" {
		fmt.Fprintln(f, strings.TrimRight(res.Stderr, "\n"))
	}
	fmt.Fprintf(f, "exit %d\n", res.ExitCode)
}
