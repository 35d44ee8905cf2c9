package filter

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"

	"obelus/internal/matrix"
)

const localMatrix = `{"include":[
  {"runner":"linux.gpu.2","config":"default","shard":1,"num_shards":2},
  {"runner":"linux.gpu.2","config":"default","shard":2,"num_shards":2},
  {"runner":"linux.gpu.4","config":"distributed","shard":1,"num_shards":1},
  {"runner":"linux.gpu.2","config":"slow","shard":1,"num_shards":1}
]}`

func writeDataFile(t *testing.T, dir, name, content string) {
	t.Helper()
	if err := os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
}

func localFilter(t *testing.T, l *Local, prBody string) *Outputs {
	t.Helper()
	out, err := l.Filter(context.Background(), Request{
		Workflow:   "linux-gpu-test",
		TestMatrix: localMatrix,
		PRBody:     prBody,
	})
	if err != nil {
		t.Fatalf("Filter: %v", err)
	}
	return out
}

func configsOf(t *testing.T, matrixJSON string) []string {
	t.Helper()
	m, err := matrix.Parse(matrixJSON)
	if err != nil {
		t.Fatalf("parse output matrix: %v", err)
	}
	var configs []string
	for _, e := range m.Include {
		configs = append(configs, e.Config)
	}
	return configs
}

func TestLocal_Passthrough(t *testing.T) {
	out := localFilter(t, &Local{}, "")
	// Nothing dropped: the caller's JSON must pass through unmodified.
	if out.TestMatrix != localMatrix {
		t.Errorf("matrix was rewritten: %q", out.TestMatrix)
	}
	if out.IsTestMatrixEmpty || out.KeepGoing || len(out.ReenabledIssues) != 0 {
		t.Errorf("unexpected outputs: %+v", out)
	}
}

func TestLocal_Directives(t *testing.T) {
	out := localFilter(t, &Local{}, "Touches dist code only.\n\ntest-config: distributed\n")
	want := []string{"distributed"}
	if diff := cmp.Diff(want, configsOf(t, out.TestMatrix)); diff != "" {
		t.Errorf("configs mismatch (-want +got):\n%s", diff)
	}
	if out.IsTestMatrixEmpty {
		t.Error("matrix should not be empty")
	}
}

func TestLocal_DirectivesCommaList(t *testing.T) {
	out := localFilter(t, &Local{}, "test-config: default, slow\n")
	want := []string{"default", "default", "slow"}
	if diff := cmp.Diff(want, configsOf(t, out.TestMatrix)); diff != "" {
		t.Errorf("configs mismatch (-want +got):\n%s", diff)
	}
}

func TestLocal_DirectiveUnknownConfig_EmptiesMatrix(t *testing.T) {
	out := localFilter(t, &Local{}, "test-config: nosuchconfig\n")
	if !out.IsTestMatrixEmpty {
		t.Errorf("want empty matrix, got %q", out.TestMatrix)
	}
}

func TestLocal_DisabledConfig(t *testing.T) {
	dir := t.TempDir()
	writeDataFile(t, dir, DisabledConfigsFile, `{"101": "distributed"}`)
	out := localFilter(t, &Local{DataDir: dir}, "")
	for _, c := range configsOf(t, out.TestMatrix) {
		if c == "distributed" {
			t.Error("disabled config survived the filter")
		}
	}
	if len(out.ReenabledIssues) != 0 {
		t.Errorf("reenabled: %+v", out.ReenabledIssues)
	}
}

func TestLocal_FixesReenablesConfig(t *testing.T) {
	dir := t.TempDir()
	writeDataFile(t, dir, DisabledConfigsFile, `{"101": "distributed", "207": "slow"}`)
	out := localFilter(t, &Local{DataDir: dir}, "Fixes #101 by pinning the collective timeout.")
	configs := configsOf(t, out.TestMatrix)
	foundDistributed := false
	for _, c := range configs {
		if c == "distributed" {
			foundDistributed = true
		}
		if c == "slow" {
			t.Error("still-disabled config survived")
		}
	}
	if !foundDistributed {
		t.Error("reenabled config was dropped")
	}
	if diff := cmp.Diff([]string{"101"}, out.ReenabledIssues); diff != "" {
		t.Errorf("reenabled mismatch (-want +got):\n%s", diff)
	}
}

func TestLocal_Correlations(t *testing.T) {
	dir := t.TempDir()
	writeDataFile(t, dir, ConfigCorrelationsFile, `{"slow": 0.05, "default": 0.9}`)
	out := localFilter(t, &Local{DataDir: dir, MinCorrelation: 0.2}, "")
	// slow scores below threshold; distributed is absent from the file and kept.
	want := []string{"default", "default", "distributed"}
	if diff := cmp.Diff(want, configsOf(t, out.TestMatrix)); diff != "" {
		t.Errorf("configs mismatch (-want +got):\n%s", diff)
	}
}

func TestLocal_CorrelationsDisabledByDefault(t *testing.T) {
	dir := t.TempDir()
	writeDataFile(t, dir, ConfigCorrelationsFile, `{"slow": 0.05}`)
	out := localFilter(t, &Local{DataDir: dir}, "")
	if out.TestMatrix != localMatrix {
		t.Errorf("zero threshold must not drop entries: %q", out.TestMatrix)
	}
}

func TestLocal_DirectiveWinsOverCorrelation(t *testing.T) {
	dir := t.TempDir()
	writeDataFile(t, dir, ConfigCorrelationsFile, `{"slow": 0.05}`)
	out := localFilter(t, &Local{DataDir: dir, MinCorrelation: 0.2}, "test-config: slow\n")
	want := []string{"slow"}
	if diff := cmp.Diff(want, configsOf(t, out.TestMatrix)); diff != "" {
		t.Errorf("configs mismatch (-want +got):\n%s", diff)
	}
}

func TestLocal_KeepGoing(t *testing.T) {
	out := localFilter(t, &Local{}, "Large refactor, please run everything.\n[keep-going]")
	if !out.KeepGoing {
		t.Error("keep-going tag not honored")
	}
}

func TestLocal_BadMatrix(t *testing.T) {
	_, err := (&Local{}).Filter(context.Background(), Request{TestMatrix: "{broken"})
	if err == nil {
		t.Fatal("expected error")
	}
}

func TestLocal_BadDataFile(t *testing.T) {
	dir := t.TempDir()
	writeDataFile(t, dir, DisabledConfigsFile, "not json")
	_, err := (&Local{DataDir: dir}).Filter(context.Background(), Request{TestMatrix: localMatrix})
	if err == nil {
		t.Fatal("expected error")
	}
}
