// Package launch drives one workflow invocation end to end: resolve inputs,
// run the filter stage, gate the test stage, expand the filtered matrix into
// parallel jobs, and record everything in the store.
package launch

import (
	"obelus/internal/artifacts"
	"obelus/internal/filter"
	"obelus/internal/store"
	"obelus/internal/workflow"
)

// DefaultWorkRoot is where per-job workspaces live (per-workspace).
const DefaultWorkRoot = ".obelus/work"

// Config holds launch driver settings, normally filled from CLI flags.
type Config struct {
	// CanonicalRepo is the full name of the repository the test stage is
	// allowed to run for. Empty disables the fork check.
	CanonicalRepo string
	// Parallel bounds concurrent test jobs; 0 means one worker per entry.
	Parallel int
	// WorkRoot is the parent directory for per-job workspaces.
	WorkRoot string
	// ArtifactRoot is the artifact store root.
	ArtifactRoot string
	// DBPath is the SQLite store path.
	DBPath string
	// FilterURL selects the remote filter service; empty means the local
	// filterer.
	FilterURL string
	// FilterProject is the service-side project name.
	FilterProject string
	// TokenFile is read when the run context carries no token.
	TokenFile string
	// FilterDataDir holds the local filterer's data files.
	FilterDataDir string
	// FilterCheckout makes the filter stage clone the project repo first
	// (shallow, no submodules) and read filter data from its .obelus/
	// directory. Ignored when FilterDataDir is set.
	FilterCheckout bool
	// MinCorrelation is the local filterer's relevance cutoff; <= 0 disables.
	MinCorrelation float64
}

// DefaultConfig returns the per-workspace defaults.
func DefaultConfig() Config {
	return Config{
		WorkRoot:     DefaultWorkRoot,
		ArtifactRoot: artifacts.DefaultRoot,
		DBPath:       store.DefaultDBPath,
		TokenFile:    workflow.DefaultTokenFile,
	}
}

// Gate decides whether the test stage runs: only in the canonical repository
// context and only when the filtered matrix is non-empty. A skipped stage is
// an outcome, not an error; the reason is recorded on the launch.
func Gate(runCtx workflow.RunContext, out filter.Outputs, canonicalRepo string) (run bool, reason string) {
	if canonicalRepo != "" && runCtx.Repository != canonicalRepo {
		return false, "repository " + runCtx.Repository + " is not the canonical " + canonicalRepo
	}
	if out.IsTestMatrixEmpty {
		return false, "filtered test matrix is empty"
	}
	return true, ""
}
