package steps

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"obelus/internal/runner"
)

// JobID resolves the orchestrator-assigned job identifier used in run
// records. The driver fills it in when a store row exists; otherwise this
// step falls back to the local job key and reports the miss.
type JobID struct{}

func (JobID) Name() string   { return "job-id" }
func (JobID) Policy() Policy { return ContinueOnError }

func (JobID) Run(_ context.Context, env *Env) error {
	if env.JobID != "" {
		return nil
	}
	env.JobID = env.JobKey
	return fmt.Errorf("job id unavailable, falling back to %s", env.JobKey)
}

// RunTests invokes the external test runner inside the checkout with the
// job's sharding and filter context in the environment.
type RunTests struct{}

func (RunTests) Name() string   { return "run-tests" }
func (RunTests) Policy() Policy { return Fatal }

func (RunTests) Run(ctx context.Context, env *Env) error {
	cmdEnv := []string{
		"TEST_CONFIG=" + env.Entry.Config,
		fmt.Sprintf("SHARD_NUMBER=%d", env.Entry.Shard),
		fmt.Sprintf("NUM_TEST_SHARDS=%d", env.Entry.NumShards),
		"BUILD_ENVIRONMENT=" + env.Inputs.BuildEnvironment,
		"PYTHON_VERSION=" + env.Inputs.PythonVersion,
		fmt.Sprintf("CONTINUE_THROUGH_ERROR=%t", env.Filter.KeepGoing),
		"REENABLED_ISSUES=" + strings.Join(env.Filter.ReenabledIssues, ","),
		"PR_BODY=" + env.Run.PRBody,
		"JOB_ID=" + env.JobID,
		// The provisioned env's interpreter must win over the system one.
		"PATH=" + filepath.Join(env.EnvDir(), "bin") + string(os.PathListSeparator) + os.Getenv("PATH"),
	}
	extra := make([]string, 0, len(env.Test.Env))
	for k := range env.Test.Env {
		extra = append(extra, k)
	}
	sort.Strings(extra)
	for _, k := range extra {
		cmdEnv = append(cmdEnv, k+"="+env.Test.Env[k])
	}
	_, err := runner.Checked(ctx, env.Runner, runner.Command{
		Argv: env.Test.Script,
		Dir:  env.SrcDir(),
		Env:  cmdEnv,
	})
	if err != nil {
		return fmt.Errorf("test runner: %w", err)
	}
	return nil
}
