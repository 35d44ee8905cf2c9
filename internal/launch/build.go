package launch

import (
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"obelus/internal/artifacts"
	"obelus/internal/filter"
	"obelus/internal/runner"
	"obelus/internal/store"
	"obelus/internal/workflow"
)

func newLaunchID() string {
	return uuid.New().String()
}

// Build wires a Runner with the production collaborators: the SQLite store,
// the filesystem artifact store, the remote or local filterer, and the real
// command runner. Callers own the returned runner's Store and must Close it.
func Build(def *workflow.Definition, cfg Config, log *slog.Logger) (*Runner, error) {
	st, err := store.Open(orDefault(cfg.DBPath, store.DefaultDBPath))
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}
	art, err := artifacts.NewFS(orDefault(cfg.ArtifactRoot, artifacts.DefaultRoot))
	if err != nil {
		st.Close()
		return nil, fmt.Errorf("open artifact store: %w", err)
	}

	var filterer filter.Filterer
	if cfg.FilterURL != "" {
		filterer = filter.NewClient(filter.Config{
			BaseURL: cfg.FilterURL,
			Project: cfg.FilterProject,
		})
	} else {
		filterer = &filter.Local{
			DataDir:        cfg.FilterDataDir,
			MinCorrelation: cfg.MinCorrelation,
		}
	}

	return &Runner{
		Def:       def,
		Store:     st,
		Artifacts: art,
		Filterer:  filterer,
		Commands:  runner.Exec{},
		Config:    cfg,
		Log:       log,
	}, nil
}

func orDefault(v, def string) string {
	if v != "" {
		return v
	}
	return def
}
