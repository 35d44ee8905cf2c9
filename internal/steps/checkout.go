package steps

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"golang.org/x/sys/unix"

	"obelus/internal/runner"
)

// Checkout clones the project repo, shallow and without submodules, at the
// run's resolved commit. When only a ref is known, the commit is resolved
// with rev-parse after the fetch and written back to the run context so
// downstream records always carry a concrete commit.
type Checkout struct{}

func (Checkout) Name() string   { return "checkout" }
func (Checkout) Policy() Policy { return Fatal }

func (Checkout) Run(ctx context.Context, env *Env) error {
	src := env.SrcDir()
	if err := os.RemoveAll(src); err != nil {
		return fmt.Errorf("clear src dir: %w", err)
	}
	if _, err := runner.Checked(ctx, env.Runner, runner.Command{
		Argv: []string{"git", "clone", "--depth", "1", "--no-recurse-submodules", env.Test.Repo, src},
	}); err != nil {
		return fmt.Errorf("clone: %w", err)
	}
	target := env.Run.Commit
	if target == "" {
		target = env.Run.Ref
	}
	if target != "" {
		if _, err := runner.Checked(ctx, env.Runner, runner.Command{
			Argv: []string{"git", "-C", src, "fetch", "--depth", "1", "origin", target},
		}); err != nil {
			return fmt.Errorf("fetch %s: %w", target, err)
		}
		if _, err := runner.Checked(ctx, env.Runner, runner.Command{
			Argv: []string{"git", "-C", src, "checkout", "--detach", "FETCH_HEAD"},
		}); err != nil {
			return fmt.Errorf("checkout %s: %w", target, err)
		}
	}
	res, err := runner.Checked(ctx, env.Runner, runner.Command{
		Argv: []string{"git", "-C", src, "rev-parse", "HEAD"},
	})
	if err != nil {
		return fmt.Errorf("resolve commit: %w", err)
	}
	env.Run.Commit = strings.TrimSpace(res.Stdout)
	return nil
}

// Clean scrubs the job workspace between runs. The fresh checkout and the
// step logs survive; previous build downloads, envs, and stray files go.
type Clean struct{}

func (Clean) Name() string   { return "clean" }
func (Clean) Policy() Policy { return Fatal }

func (Clean) Run(_ context.Context, env *Env) error {
	entries, err := os.ReadDir(env.Workspace)
	if err != nil {
		return fmt.Errorf("read workspace: %w", err)
	}
	for _, e := range entries {
		if e.Name() == srcDirName || e.Name() == logDirName {
			continue
		}
		if err := os.RemoveAll(filepath.Join(env.Workspace, e.Name())); err != nil {
			return fmt.Errorf("remove %s: %w", e.Name(), err)
		}
	}
	return nil
}

// DiskCheck verifies minimum free space on the workspace volume before any
// large download happens.
type DiskCheck struct{}

func (DiskCheck) Name() string   { return "disk-check" }
func (DiskCheck) Policy() Policy { return Fatal }

func (DiskCheck) Run(_ context.Context, env *Env) error {
	min := env.Test.MinFreeGB
	if min == 0 {
		min = DefaultMinFreeGB
	}
	free, err := freeDiskGiB(env.Workspace)
	if err != nil {
		return fmt.Errorf("disk check: %w", err)
	}
	if free < float64(min) {
		return fmt.Errorf("only %.1f GiB free on workspace volume, need %d", free, min)
	}
	env.Log.Debug("disk check", "free_gib", free, "min_gib", min)
	return nil
}

func freeDiskGiB(path string) (float64, error) {
	var st unix.Statfs_t
	if err := unix.Statfs(path, &st); err != nil {
		return 0, err
	}
	return float64(st.Bavail) * float64(st.Bsize) / (1 << 30), nil
}
