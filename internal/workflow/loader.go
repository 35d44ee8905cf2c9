package workflow

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// LoadFromPath reads a workflow definition (YAML or JSON) and returns the parsed Definition.
// Format is detected by extension (.yaml/.yml → YAML, .json → JSON) or by content.
func LoadFromPath(path string) (*Definition, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read workflow: %w", err)
	}
	return Parse(data, filepath.Ext(path))
}

// Parse parses a definition from bytes. ext is the file extension (e.g. ".json",
// ".yaml") for format hint; empty = detect from content.
func Parse(data []byte, ext string) (*Definition, error) {
	ext = strings.ToLower(ext)
	if ext == ".yml" {
		ext = ".yaml"
	}
	if ext == ".yaml" {
		var d Definition
		if err := yaml.Unmarshal(data, &d); err != nil {
			return nil, fmt.Errorf("parse workflow yaml: %w", err)
		}
		return &d, nil
	}
	if ext == ".json" {
		var d Definition
		if err := json.Unmarshal(data, &d); err != nil {
			return nil, fmt.Errorf("parse workflow json: %w", err)
		}
		return &d, nil
	}
	// Detect: JSON starts with {, anything else is YAML.
	trimmed := strings.TrimSpace(string(data))
	if strings.HasPrefix(trimmed, "{") {
		var d Definition
		if err := json.Unmarshal(data, &d); err != nil {
			return nil, fmt.Errorf("parse workflow json: %w", err)
		}
		return &d, nil
	}
	var d Definition
	if err := yaml.Unmarshal(data, &d); err != nil {
		return nil, fmt.Errorf("parse workflow yaml: %w", err)
	}
	return &d, nil
}
