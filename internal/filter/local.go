package filter

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"

	"obelus/internal/logging"
	"obelus/internal/matrix"
)

// Data files the local filterer consults under DataDir. Both are optional;
// a missing file switches the corresponding heuristic off.
const (
	DisabledConfigsFile    = "disabled-configs.json"    // issue number → config name
	ConfigCorrelationsFile = "config-correlations.json" // config name → relevance score
)

// Local is the in-process decision procedure used when no filter service is
// configured. It narrows the matrix from three signals: test-config directives
// in the PR body, configs disabled by open issues, and profiling-derived
// config relevance scores. With no DataDir and no directives it is a
// passthrough.
type Local struct {
	DataDir        string  // directory holding the data files; empty = none
	MinCorrelation float64 // configs scoring below this are dropped; <= 0 disables
}

var (
	directiveRe = regexp.MustCompile(`(?im)^\s*test-config:\s*(.+)$`)
	issueRefRe  = regexp.MustCompile(`(?i)\b(?:fixes|resolves|closes)\s+#(\d+)`)
)

// Filter narrows the matrix and reports the stage outputs. The returned
// TestMatrix is re-encoded only when entries were actually dropped; otherwise
// the caller's JSON is passed through byte for byte.
func (l *Local) Filter(_ context.Context, req Request) (*Outputs, error) {
	log := logging.New("filter")

	m, err := matrix.Parse(req.TestMatrix)
	if err != nil {
		return nil, err
	}

	wanted := parseDirectives(req.PRBody)
	fixed := parseIssueRefs(req.PRBody)

	disabled, err := l.loadDisabled()
	if err != nil {
		return nil, err
	}
	correlations, err := l.loadCorrelations()
	if err != nil {
		return nil, err
	}

	var reenabled []string
	disabledConfigs := map[string]bool{}
	for issue, config := range disabled {
		if fixed[issue] {
			reenabled = append(reenabled, issue)
			continue
		}
		disabledConfigs[config] = true
	}
	sort.Strings(reenabled)

	narrowed := m.Filter(func(e matrix.Entry) bool {
		if len(wanted) > 0 {
			return wanted[e.Config]
		}
		if disabledConfigs[e.Config] {
			return false
		}
		if l.MinCorrelation > 0 {
			if score, ok := correlations[e.Config]; ok && score < l.MinCorrelation {
				return false
			}
		}
		return true
	})

	out := &Outputs{
		TestMatrix:        req.TestMatrix,
		IsTestMatrixEmpty: narrowed.IsEmpty(),
		KeepGoing:         strings.Contains(strings.ToLower(req.PRBody), "[keep-going]"),
		ReenabledIssues:   reenabled,
	}
	if len(narrowed.Include) != len(m.Include) {
		encoded, err := narrowed.Encode()
		if err != nil {
			return nil, err
		}
		out.TestMatrix = encoded
		log.Debug("narrowed matrix",
			"workflow", req.Workflow,
			"kept", len(narrowed.Include),
			"dropped", len(m.Include)-len(narrowed.Include))
	}
	return out, nil
}

func (l *Local) loadDisabled() (map[string]string, error) {
	var m map[string]string
	if err := l.loadJSON(DisabledConfigsFile, &m); err != nil {
		return nil, err
	}
	return m, nil
}

func (l *Local) loadCorrelations() (map[string]float64, error) {
	var m map[string]float64
	if err := l.loadJSON(ConfigCorrelationsFile, &m); err != nil {
		return nil, err
	}
	return m, nil
}

func (l *Local) loadJSON(name string, v any) error {
	if l.DataDir == "" {
		return nil
	}
	data, err := os.ReadFile(filepath.Join(l.DataDir, name))
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("read %s: %w", name, err)
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("parse %s: %w", name, err)
	}
	return nil
}

// parseDirectives collects config names from "test-config:" lines in the PR
// body. Values may be comma-separated; matching is exact on config name.
func parseDirectives(body string) map[string]bool {
	wanted := map[string]bool{}
	for _, m := range directiveRe.FindAllStringSubmatch(body, -1) {
		for _, name := range strings.Split(m[1], ",") {
			name = strings.TrimSpace(name)
			if name != "" {
				wanted[name] = true
			}
		}
	}
	return wanted
}

// parseIssueRefs collects issue numbers the PR claims to fix.
func parseIssueRefs(body string) map[string]bool {
	fixed := map[string]bool{}
	for _, m := range issueRefRe.FindAllStringSubmatch(body, -1) {
		fixed[m[1]] = true
	}
	return fixed
}
