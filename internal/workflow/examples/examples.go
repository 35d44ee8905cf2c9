// Package examples embeds ready-to-run workflow definitions.
package examples

import (
	"embed"
	"fmt"
	"os"
	"sort"
	"strings"

	"obelus/internal/workflow"
)

//go:embed *.yaml
var workflowFS embed.FS

// Load reads an embedded workflow definition by name.
func Load(name string) (*workflow.Definition, error) {
	data, err := workflowFS.ReadFile(name + ".yaml")
	if err != nil {
		return nil, fmt.Errorf("workflow %q not found (available: %s): %w",
			name, strings.Join(List(), ", "), err)
	}
	d, err := workflow.Parse(data, ".yaml")
	if err != nil {
		return nil, fmt.Errorf("parse workflow %q: %w", name, err)
	}
	return d, nil
}

// Resolve loads a workflow argument: a path to a definition file when one
// exists on disk, otherwise an embedded workflow name.
func Resolve(arg string) (*workflow.Definition, error) {
	if arg == "" {
		return nil, fmt.Errorf("workflow is required")
	}
	if _, err := os.Stat(arg); err == nil {
		return workflow.LoadFromPath(arg)
	}
	return Load(arg)
}

// List returns the names of all embedded workflows, sorted.
func List() []string {
	entries, _ := workflowFS.ReadDir(".")
	var names []string
	for _, e := range entries {
		if strings.HasSuffix(e.Name(), ".yaml") {
			names = append(names, strings.TrimSuffix(e.Name(), ".yaml"))
		}
	}
	sort.Strings(names)
	return names
}
