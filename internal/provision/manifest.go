// Package provision creates per-job Python environments: venv creation,
// manifest installs, built-package install, and the smoke-import check with
// its single reinstall fallback.
package provision

import (
	"fmt"
	"os"
	"strings"
)

// Pin is one requirement entry, typically name==version.
type Pin struct {
	Name    string
	Version string // empty for unpinned entries
}

// Manifest is a parsed requirements manifest.
type Manifest struct {
	Pins []Pin
}

// ParseManifest parses requirements text: one entry per line, '#' comments and
// blank lines skipped, option lines (-r includes, --flags) ignored,
// environment markers stripped. Accepts name==version pins and bare names.
func ParseManifest(data []byte) (*Manifest, error) {
	m := &Manifest{}
	for i, line := range strings.Split(string(data), "\n") {
		if idx := strings.Index(line, "#"); idx >= 0 {
			line = line[:idx]
		}
		if idx := strings.Index(line, ";"); idx >= 0 {
			line = line[:idx]
		}
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "-") {
			continue
		}
		name, version := line, ""
		if idx := strings.Index(line, "=="); idx >= 0 {
			name = strings.TrimSpace(line[:idx])
			version = strings.TrimSpace(line[idx+2:])
		}
		if name == "" || strings.ContainsAny(name, " \t") || strings.ContainsAny(version, " \t") {
			return nil, fmt.Errorf("manifest line %d: malformed requirement %q", i+1, line)
		}
		m.Pins = append(m.Pins, Pin{Name: name, Version: version})
	}
	return m, nil
}

// LoadManifest reads and parses the manifest at path.
func LoadManifest(path string) (*Manifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read manifest: %w", err)
	}
	return ParseManifest(data)
}
