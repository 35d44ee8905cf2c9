package steps

import (
	"context"
	"fmt"
	"path/filepath"

	"obelus/internal/provision"
)

// DownloadBuild fetches the named build artifact into the workspace. The
// name is exactly the build-environment input; there is no fallback.
type DownloadBuild struct{}

func (DownloadBuild) Name() string   { return "download-build" }
func (DownloadBuild) Policy() Policy { return Fatal }

func (DownloadBuild) Run(ctx context.Context, env *Env) error {
	name := env.Inputs.BuildEnvironment
	if err := env.Artifacts.Fetch(ctx, name, env.BuildDir()); err != nil {
		return fmt.Errorf("download build %s: %w", name, err)
	}
	return nil
}

// ProvisionEnv creates the job environment for the requested python version
// and installs the requirements manifest from the checkout.
type ProvisionEnv struct{}

func (ProvisionEnv) Name() string   { return "provision-env" }
func (ProvisionEnv) Policy() Policy { return Fatal }

func (ProvisionEnv) Run(ctx context.Context, env *Env) error {
	p := &provision.Provisioner{Runner: env.Runner, Log: env.Log}
	if err := p.CreateEnv(ctx, env.EnvDir(), env.Inputs.PythonVersion); err != nil {
		return err
	}
	if env.Test.Requirements == "" {
		env.Log.Debug("no requirements manifest declared")
		return nil
	}
	manifestPath := filepath.Join(env.SrcDir(), env.Test.Requirements)
	m, err := provision.LoadManifest(manifestPath)
	if err != nil {
		return err
	}
	env.Log.Debug("installing requirements", "pins", len(m.Pins))
	return p.InstallRequirements(ctx, env.EnvDir(), manifestPath)
}

// InstallPackage installs the pre-built package found in the build artifact.
type InstallPackage struct{}

func (InstallPackage) Name() string   { return "install-package" }
func (InstallPackage) Policy() Policy { return Fatal }

func (InstallPackage) Run(ctx context.Context, env *Env) error {
	pkg, err := provision.FindPackage(env.BuildDir(), env.Test.PackageGlob)
	if err != nil {
		return err
	}
	p := &provision.Provisioner{Runner: env.Runner, Log: env.Log}
	return p.InstallPackage(ctx, env.EnvDir(), pkg)
}

// DepsCheck smoke-imports the installed package; a failed import triggers the
// one-shot requirements reinstall before the re-check.
type DepsCheck struct{}

func (DepsCheck) Name() string   { return "deps-check" }
func (DepsCheck) Policy() Policy { return Fatal }

func (DepsCheck) Run(ctx context.Context, env *Env) error {
	manifestPath := ""
	if env.Test.Requirements != "" {
		manifestPath = filepath.Join(env.SrcDir(), env.Test.Requirements)
	}
	p := &provision.Provisioner{Runner: env.Runner, Log: env.Log}
	return p.EnsureDeps(ctx, env.EnvDir(), env.Test.ImportName, manifestPath)
}
