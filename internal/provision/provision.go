package provision

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"obelus/internal/runner"
)

// Provisioner manages one job's isolated environment through the injectable
// command runner.
type Provisioner struct {
	Runner runner.Runner
	Log    *slog.Logger
}

// PythonBinary returns the interpreter name for a requested version,
// e.g. "3.8" → python3.8. An empty version means the platform python3.
func PythonBinary(version string) string {
	if version == "" {
		return "python3"
	}
	return "python" + version
}

// EnvPython returns the interpreter inside a provisioned environment.
func EnvPython(envDir string) string {
	return filepath.Join(envDir, "bin", "python")
}

// CreateEnv creates a fresh virtual environment at envDir for the requested
// python version, replacing any previous one.
func (p *Provisioner) CreateEnv(ctx context.Context, envDir, pythonVersion string) error {
	if err := os.RemoveAll(envDir); err != nil {
		return fmt.Errorf("clear env dir: %w", err)
	}
	_, err := runner.Checked(ctx, p.Runner, runner.Command{
		Argv: []string{PythonBinary(pythonVersion), "-m", "venv", envDir},
	})
	if err != nil {
		return fmt.Errorf("create env: %w", err)
	}
	return nil
}

// InstallRequirements installs the manifest's entries into the environment.
func (p *Provisioner) InstallRequirements(ctx context.Context, envDir, manifestPath string) error {
	_, err := runner.Checked(ctx, p.Runner, runner.Command{
		Argv: []string{EnvPython(envDir), "-m", "pip", "install", "-r", manifestPath},
	})
	if err != nil {
		return fmt.Errorf("install requirements: %w", err)
	}
	return nil
}

// FindPackage returns the newest file matching glob under buildDir.
func FindPackage(buildDir, glob string) (string, error) {
	matches, err := filepath.Glob(filepath.Join(buildDir, glob))
	if err != nil {
		return "", fmt.Errorf("bad package glob %q: %w", glob, err)
	}
	if len(matches) == 0 {
		return "", fmt.Errorf("no package matches %q under %s", glob, buildDir)
	}
	newest := ""
	var newestMod time.Time
	for _, m := range matches {
		info, err := os.Stat(m)
		if err != nil {
			return "", fmt.Errorf("stat %s: %w", m, err)
		}
		if newest == "" || info.ModTime().After(newestMod) {
			newest = m
			newestMod = info.ModTime()
		}
	}
	return newest, nil
}

// InstallPackage installs a built package file into the environment.
func (p *Provisioner) InstallPackage(ctx context.Context, envDir, pkgPath string) error {
	_, err := runner.Checked(ctx, p.Runner, runner.Command{
		Argv: []string{EnvPython(envDir), "-m", "pip", "install", pkgPath},
	})
	if err != nil {
		return fmt.Errorf("install package: %w", err)
	}
	return nil
}

// SmokeImport imports the package inside the environment. A failed import
// surfaces as *runner.CommandError so callers can take the fallback path.
func (p *Provisioner) SmokeImport(ctx context.Context, envDir, importName string) error {
	_, err := runner.Checked(ctx, p.Runner, runner.Command{
		Argv: []string{EnvPython(envDir), "-c", "import " + importName},
	})
	return err
}

// EnsureDeps runs the smoke import; on a failed import it reinstalls the
// manifest once and re-checks. This is the pipeline's only compensating
// action; a second failure is final.
func (p *Provisioner) EnsureDeps(ctx context.Context, envDir, importName, manifestPath string) error {
	err := p.SmokeImport(ctx, envDir, importName)
	if err == nil {
		return nil
	}
	var cmdErr *runner.CommandError
	if !errors.As(err, &cmdErr) || manifestPath == "" {
		return err
	}
	if p.Log != nil {
		p.Log.Warn("smoke import failed, reinstalling dependencies",
			"import", importName, "exit", cmdErr.ExitCode)
	}
	if err := p.InstallRequirements(ctx, envDir, manifestPath); err != nil {
		return fmt.Errorf("fallback reinstall: %w", err)
	}
	if err := p.SmokeImport(ctx, envDir, importName); err != nil {
		return fmt.Errorf("smoke import after reinstall: %w", err)
	}
	return nil
}
