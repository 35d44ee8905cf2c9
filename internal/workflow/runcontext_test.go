package workflow

import (
	"os"
	"path/filepath"
	"testing"
)

func TestRunContextFromEnv(t *testing.T) {
	t.Setenv(EnvRepository, "ecosystem-qe/accelkit")
	t.Setenv(EnvDefaultBranch, "main")
	t.Setenv(EnvRef, "refs/pull/42/merge")
	t.Setenv(EnvCommit, "abc123")
	t.Setenv(EnvRunID, "98765")
	t.Setenv(EnvRunAttempt, "2")
	t.Setenv(EnvJobName, "test (default, 1, 2, linux.gpu.2)")
	t.Setenv(EnvPRBody, "Fixes #101")
	t.Setenv(EnvToken, "tok")

	rc := RunContextFromEnv()
	if rc.Repository != "ecosystem-qe/accelkit" {
		t.Errorf("repository: got %q", rc.Repository)
	}
	if rc.RunID != "98765" || rc.RunAttempt != "2" {
		t.Errorf("run id/attempt: got %q/%q", rc.RunID, rc.RunAttempt)
	}
	if rc.PRBody != "Fixes #101" {
		t.Errorf("pr body: got %q", rc.PRBody)
	}
	if rc.Token != "tok" {
		t.Errorf("token: got %q", rc.Token)
	}
}

func TestReadToken(t *testing.T) {
	path := filepath.Join(t.TempDir(), ".obelus-token")
	if err := os.WriteFile(path, []byte("  secret-uuid \nsecond line ignored\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	tok, err := ReadToken(path)
	if err != nil {
		t.Fatalf("ReadToken: %v", err)
	}
	if tok != "secret-uuid" {
		t.Errorf("got %q", tok)
	}
}

func TestReadToken_Missing(t *testing.T) {
	if _, err := ReadToken(filepath.Join(t.TempDir(), "nope")); err == nil {
		t.Error("expected error for missing file")
	}
}
