package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"obelus/internal/artifacts"
	"obelus/internal/launch"
	"obelus/internal/store"
	"obelus/internal/workflow"
)

// addLaunchFlags registers the launch driver's configuration flags on cmd.
// Shared by run and serve so both surfaces take the same knobs.
func addLaunchFlags(cmd *cobra.Command, cfg *launch.Config) {
	f := cmd.Flags()
	f.StringVar(&cfg.DBPath, "db", store.DefaultDBPath, "Launch store path")
	f.StringVar(&cfg.ArtifactRoot, "artifacts", artifacts.DefaultRoot, "Artifact store root")
	f.StringVar(&cfg.WorkRoot, "work-root", launch.DefaultWorkRoot, "Parent directory for per-job workspaces")
	f.IntVar(&cfg.Parallel, "parallel", 0, "Max concurrent test jobs (0 = one worker per matrix entry)")
	f.StringVar(&cfg.CanonicalRepo, "canonical-repo", "", "Only run the test stage for this repository (owner/project); empty disables the fork check")
	f.StringVar(&cfg.TokenFile, "token-file", workflow.DefaultTokenFile, "Token file read when the environment carries no token")
	addFilterFlags(cmd, cfg)
}

// addFilterFlags registers only the filter stage's flags.
func addFilterFlags(cmd *cobra.Command, cfg *launch.Config) {
	f := cmd.Flags()
	f.StringVar(&cfg.FilterURL, "filter-url", "", "Remote filter service base URL; empty uses the local filterer")
	f.StringVar(&cfg.FilterProject, "filter-project", "", "Filter service project name")
	f.StringVar(&cfg.FilterDataDir, "filter-data", "", "Local filterer data directory")
	f.BoolVar(&cfg.FilterCheckout, "filter-checkout", false, "Clone the project repo and read filter data from its checkout")
	f.Float64Var(&cfg.MinCorrelation, "min-correlation", 0, "Local filterer relevance cutoff (<= 0 disables)")
}

// parseInputs turns repeated --input name=value flags into a map.
func parseInputs(pairs []string) (map[string]string, error) {
	inputs := make(map[string]string, len(pairs))
	for _, p := range pairs {
		name, value, ok := strings.Cut(p, "=")
		if !ok || name == "" {
			return nil, fmt.Errorf("invalid --input %q: want name=value", p)
		}
		inputs[name] = value
	}
	return inputs, nil
}

// shortID trims a UUID to its first segment for table display.
func shortID(id string) string {
	if i := strings.IndexByte(id, '-'); i > 0 {
		return id[:i]
	}
	return id
}
