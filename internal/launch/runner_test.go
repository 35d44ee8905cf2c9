package launch

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"

	"obelus/internal/artifacts"
	"obelus/internal/filter"
	"obelus/internal/runner"
	"obelus/internal/steps"
	"obelus/internal/store"
	"obelus/internal/workflow"
)

func testDef() *workflow.Definition {
	return &workflow.Definition{
		Name: "linux-gpu-test",
		Call: workflow.Call{Inputs: map[string]workflow.InputSpec{
			workflow.InputBuildEnvironment: {Type: workflow.TypeString, Required: true},
			workflow.InputSyncTag:          {Type: workflow.TypeString},
			workflow.InputPythonVersion:    {Type: workflow.TypeString, Default: "3.8"},
			workflow.InputTestMatrix:       {Type: workflow.TypeString, Required: true},
		}},
		Test: workflow.Test{
			Repo:        "https://github.com/ecosystem-qe/accelkit",
			Script:      []string{"python", "tools/run_tests.py", "--accel"},
			PackageGlob: "dist/*.whl",
			ImportName:  "accelkit",
			MinFreeGB:   1,
		},
	}
}

const twoEntryMatrix = `{"include":[` +
	`{"runner":"gpu-a","config":"default","shard":1,"num_shards":2},` +
	`{"runner":"gpu-a","config":"default","shard":2,"num_shards":2}]}`

// newTestRunner wires a Runner over fakes: in-memory store, temp artifact
// root seeded with the build artifact, scripted commands, local filterer.
func newTestRunner(t *testing.T, fake *runner.Fake) (*Runner, *store.MemStore, *artifacts.FS) {
	t.Helper()
	art, err := artifacts.NewFS(filepath.Join(t.TempDir(), "artifacts"))
	if err != nil {
		t.Fatalf("NewFS: %v", err)
	}
	buildDir := filepath.Join(t.TempDir(), "build")
	if err := os.MkdirAll(filepath.Join(buildDir, "dist"), 0755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(buildDir, "dist", "accelkit-0.1.whl"), []byte("whl"), 0644); err != nil {
		t.Fatal(err)
	}
	if _, err := art.Put(context.Background(), "linux-build", buildDir); err != nil {
		t.Fatalf("seed build artifact: %v", err)
	}

	st := store.NewMemStore()
	r := &Runner{
		Def:       testDef(),
		Store:     st,
		Artifacts: art,
		Filterer:  &filter.Local{},
		Commands:  fake,
		Config: Config{
			CanonicalRepo: "ecosystem-qe/accelkit",
			WorkRoot:      filepath.Join(t.TempDir(), "work"),
		},
	}
	return r, st, art
}

func testRunContext() workflow.RunContext {
	return workflow.RunContext{
		Repository: "ecosystem-qe/accelkit",
		Ref:        "refs/heads/main",
		RunID:      "900",
		JobName:    "gpu-test",
	}
}

func provided() map[string]string {
	return map[string]string{
		workflow.InputBuildEnvironment: "linux-build",
		workflow.InputTestMatrix:       twoEntryMatrix,
	}
}

func TestRunAllJobsSucceed(t *testing.T) {
	fake := &runner.Fake{}
	r, st, art := newTestRunner(t, fake)

	res, err := r.Run(context.Background(), provided(), testRunContext())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if res.Status != store.StatusSucceeded {
		t.Fatalf("status = %s, want succeeded", res.Status)
	}
	if len(res.Jobs) != 2 {
		t.Fatalf("jobs = %d, want 2", len(res.Jobs))
	}

	launch, err := st.GetLaunch(res.LaunchID)
	if err != nil {
		t.Fatalf("GetLaunch: %v", err)
	}
	if launch.Status != store.StatusSucceeded || launch.EndedAt == "" {
		t.Errorf("launch record: %+v", launch)
	}
	if launch.FilteredMatrix == "" {
		t.Error("filtered matrix not recorded")
	}

	jobs, err := st.ListJobsByLaunch(res.LaunchID)
	if err != nil {
		t.Fatalf("ListJobsByLaunch: %v", err)
	}
	for _, j := range jobs {
		if j.Status != store.StatusSucceeded {
			t.Errorf("job %s status = %s", j.JobKey, j.Status)
		}
		recs, err := st.ListStepResultsByJob(j.ID)
		if err != nil {
			t.Fatalf("ListStepResultsByJob: %v", err)
		}
		var names []string
		for _, rec := range recs {
			names = append(names, rec.Name)
		}
		want := []string{"checkout", "clean", "disk-check", "download-build", "provision-env",
			"install-package", "deps-check", "job-id", "run-tests",
			"upload-artifacts", "upload-logs", "teardown"}
		if diff := cmp.Diff(want, names); diff != "" {
			t.Errorf("job %s step order (-want +got):\n%s", j.JobKey, diff)
		}
	}

	// Each shard uploads its logs under a name unique to the (job, entry) pair.
	for _, suffix := range []string{
		"gpu-test-default-1-2-gpu-a",
		"gpu-test-default-2-2-gpu-a",
	} {
		if _, err := art.Stat(context.Background(), steps.LogPrefix+suffix); err != nil {
			t.Errorf("log artifact %s: %v", suffix, err)
		}
	}

	// The test runner saw the shard context.
	var sawShard bool
	for _, call := range fake.Calls {
		if len(call.Argv) > 1 && strings.Contains(strings.Join(call.Argv, " "), "run_tests.py") {
			joined := strings.Join(call.Env, " ")
			if strings.Contains(joined, "TEST_CONFIG=default") && strings.Contains(joined, "NUM_TEST_SHARDS=2") {
				sawShard = true
			}
		}
	}
	if !sawShard {
		t.Error("test runner was not invoked with shard environment")
	}
}

func TestRunOneJobFailsSiblingStillRuns(t *testing.T) {
	fake := &runner.Fake{Responses: []runner.FakeResponse{{
		Match:  "run_tests.py",
		Result: runner.ExecResult{ExitCode: 1, Stderr: "2 tests failed"},
		Times:  1,
	}}}
	r, st, _ := newTestRunner(t, fake)
	r.Config.Parallel = 1 // deterministic entry order for the scripted failure

	res, err := r.Run(context.Background(), provided(), testRunContext())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if !res.Failed() {
		t.Fatalf("status = %s, want failed", res.Status)
	}

	jobs, err := st.ListJobsByLaunch(res.LaunchID)
	if err != nil {
		t.Fatalf("ListJobsByLaunch: %v", err)
	}
	if len(jobs) != 2 {
		t.Fatalf("jobs = %d, want 2", len(jobs))
	}
	if jobs[0].Status != store.StatusFailed {
		t.Errorf("first job status = %s, want failed", jobs[0].Status)
	}
	if jobs[1].Status != store.StatusSucceeded {
		t.Errorf("second job status = %s, want succeeded (fail-fast must be off)", jobs[1].Status)
	}

	// Upload and teardown still ran after the fatal test failure.
	recs, err := st.ListStepResultsByJob(jobs[0].ID)
	if err != nil {
		t.Fatalf("ListStepResultsByJob: %v", err)
	}
	byName := map[string]string{}
	for _, rec := range recs {
		byName[rec.Name] = rec.Status
	}
	if byName["run-tests"] != string(steps.StatusFailed) {
		t.Errorf("run-tests status = %s", byName["run-tests"])
	}
	for _, always := range []string{"upload-artifacts", "upload-logs", "teardown"} {
		if byName[always] != string(steps.StatusOK) {
			t.Errorf("%s status = %s, want ok after failure", always, byName[always])
		}
	}
}

func TestRunSkipsForkRepository(t *testing.T) {
	r, st, _ := newTestRunner(t, &runner.Fake{})
	runCtx := testRunContext()
	runCtx.Repository = "somebody/accelkit-fork"

	res, err := r.Run(context.Background(), provided(), runCtx)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if res.Status != store.StatusSkipped {
		t.Fatalf("status = %s, want skipped", res.Status)
	}
	if res.SkipReason == "" || len(res.Jobs) != 0 {
		t.Errorf("skip result: %+v", res)
	}
	launch, err := st.GetLaunch(res.LaunchID)
	if err != nil {
		t.Fatalf("GetLaunch: %v", err)
	}
	if launch.Status != store.StatusSkipped || launch.SkipReason == "" {
		t.Errorf("launch record: %+v", launch)
	}
}

func TestRunSkipsEmptyFilteredMatrix(t *testing.T) {
	r, _, _ := newTestRunner(t, &runner.Fake{})
	runCtx := testRunContext()
	// The directive matches no config, so the filterer narrows to nothing.
	runCtx.PRBody = "test-config: no-such-config"

	res, err := r.Run(context.Background(), provided(), runCtx)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if res.Status != store.StatusSkipped {
		t.Fatalf("status = %s, want skipped", res.Status)
	}
	if !res.Outputs.IsTestMatrixEmpty {
		t.Error("filter outputs should report the empty matrix")
	}
}

func TestRunNarrowedMatrix(t *testing.T) {
	r, st, _ := newTestRunner(t, &runner.Fake{})
	r.Def.Test.Requirements = "" // keep the fake plan minimal
	runCtx := testRunContext()
	runCtx.PRBody = "test-config: special"

	p := provided()
	p[workflow.InputTestMatrix] = `{"include":[` +
		`{"runner":"gpu-a","config":"default","shard":1,"num_shards":1},` +
		`{"runner":"gpu-b","config":"special","shard":1,"num_shards":1}]}`

	res, err := r.Run(context.Background(), p, runCtx)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(res.Jobs) != 1 {
		t.Fatalf("jobs = %d, want 1 after narrowing", len(res.Jobs))
	}
	if res.Jobs[0].Entry.Config != "special" {
		t.Errorf("kept config = %s", res.Jobs[0].Entry.Config)
	}
	launch, err := st.GetLaunch(res.LaunchID)
	if err != nil {
		t.Fatalf("GetLaunch: %v", err)
	}
	if !strings.Contains(launch.FilteredMatrix, "special") || strings.Contains(launch.FilteredMatrix, "default") {
		t.Errorf("filtered matrix not narrowed: %s", launch.FilteredMatrix)
	}
}

type failingFilterer struct{}

func (failingFilterer) Filter(context.Context, filter.Request) (*filter.Outputs, error) {
	return nil, errors.New("decision service unavailable")
}

func TestRunFilterFailurePropagates(t *testing.T) {
	r, st, _ := newTestRunner(t, &runner.Fake{})
	r.Filterer = failingFilterer{}

	_, err := r.Run(context.Background(), provided(), testRunContext())
	if err == nil || !strings.Contains(err.Error(), "filter stage") {
		t.Fatalf("Run err = %v, want filter stage error", err)
	}
	launches, err := st.ListLaunches()
	if err != nil {
		t.Fatalf("ListLaunches: %v", err)
	}
	if len(launches) != 1 || launches[0].Status != store.StatusFailed {
		t.Errorf("launch record after filter failure: %+v", launches)
	}
}

func TestRunRejectsUnknownInput(t *testing.T) {
	r, _, _ := newTestRunner(t, &runner.Fake{})
	p := provided()
	p["bogus"] = "1"
	if _, err := r.Run(context.Background(), p, testRunContext()); err == nil {
		t.Fatal("Run accepted an undeclared input")
	}
}

func TestGate(t *testing.T) {
	tests := []struct {
		name      string
		repo      string
		canonical string
		empty     bool
		wantRun   bool
	}{
		{"canonical non-empty", "org/proj", "org/proj", false, true},
		{"fork", "fork/proj", "org/proj", false, false},
		{"empty matrix", "org/proj", "org/proj", true, false},
		{"no canonical configured", "anyone/proj", "", false, true},
		{"no canonical but empty", "anyone/proj", "", true, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			run, reason := Gate(
				workflow.RunContext{Repository: tt.repo},
				filter.Outputs{IsTestMatrixEmpty: tt.empty},
				tt.canonical,
			)
			if run != tt.wantRun {
				t.Errorf("run = %t, want %t (reason %q)", run, tt.wantRun, reason)
			}
			if !run && reason == "" {
				t.Error("skip must carry a reason")
			}
		})
	}
}
