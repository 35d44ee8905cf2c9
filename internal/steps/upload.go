package steps

import (
	"context"
	"fmt"
	"os"
)

// UploadArtifacts archives the runner's declared outputs under the job's
// unique artifact name. It runs even after earlier failures so partial
// results are preserved; a missing output directory means nothing to upload.
type UploadArtifacts struct{}

func (UploadArtifacts) Name() string   { return "upload-artifacts" }
func (UploadArtifacts) Policy() Policy { return AlwaysRun }

func (UploadArtifacts) Run(ctx context.Context, env *Env) error {
	dir := env.OutputDir()
	if _, err := os.Stat(dir); os.IsNotExist(err) {
		env.Log.Info("no test outputs to upload", "dir", dir)
		return nil
	}
	name := TestReportPrefix + env.Suffix()
	rec, err := env.Artifacts.Put(ctx, name, dir)
	if err != nil {
		return fmt.Errorf("upload artifacts: %w", err)
	}
	env.Log.Info("uploaded test artifacts", "name", name, "bytes", rec.SizeBytes)
	return nil
}

// UploadLogs archives the captured step transcripts under the job's unique
// log name.
type UploadLogs struct{}

func (UploadLogs) Name() string   { return "upload-logs" }
func (UploadLogs) Policy() Policy { return AlwaysRun }

func (UploadLogs) Run(ctx context.Context, env *Env) error {
	dir := env.LogDir()
	if _, err := os.Stat(dir); os.IsNotExist(err) {
		return nil
	}
	name := LogPrefix + env.Suffix()
	if _, err := env.Artifacts.Put(ctx, name, dir); err != nil {
		return fmt.Errorf("upload logs: %w", err)
	}
	return nil
}

// Teardown removes the heavyweight reproducible parts of the workspace, the
// build download and the provisioned env. Failures are logged, never
// surfaced; this step cannot fail the job.
type Teardown struct{}

func (Teardown) Name() string   { return "teardown" }
func (Teardown) Policy() Policy { return AlwaysRun }

func (Teardown) Run(_ context.Context, env *Env) error {
	for _, dir := range []string{env.BuildDir(), env.EnvDir()} {
		if err := os.RemoveAll(dir); err != nil {
			env.Log.Warn("teardown", "dir", dir, "error", err)
		}
	}
	return nil
}
