// Package display provides human-readable names for machine codes.
//
// Rule: code is for machines, words are for humans.
// Use these functions in CLI output, markdown reports, logs, and docs.
// Keep raw codes for JSON fields, map keys, and equality comparisons.
package display

import (
	"strconv"
	"strings"
)

// --- Plan steps ---

var stepNames = map[string]string{
	"checkout":         "Checkout source",
	"clean":            "Clean workspace",
	"disk-check":       "Disk space check",
	"download-build":   "Download build artifact",
	"provision-env":    "Provision environment",
	"install-package":  "Install built package",
	"deps-check":       "Dependency smoke check",
	"job-id":           "Resolve job id",
	"run-tests":        "Run test shard",
	"upload-artifacts": "Upload test artifacts",
	"upload-logs":      "Upload step logs",
	"teardown":         "Teardown",
}

// StepName returns the human-readable name for a plan step code.
// Unknown codes are returned as-is.
func StepName(code string) string {
	if name, ok := stepNames[code]; ok {
		return name
	}
	return code
}

// StepWithCode returns "Checkout source (checkout)" format for dual-audience
// contexts such as reports.
func StepWithCode(code string) string {
	if name, ok := stepNames[code]; ok {
		return name + " (" + code + ")"
	}
	return code
}

// --- Statuses ---

var statusNames = map[string]string{
	"running":   "Running",
	"succeeded": "Succeeded",
	"failed":    "Failed",
	"skipped":   "Skipped",
	"ok":        "OK",
	"tolerated": "Tolerated",
}

var statusIcons = map[string]string{
	"running":   "…",
	"succeeded": "✓",
	"failed":    "✗",
	"skipped":   "-",
	"ok":        "✓",
	"tolerated": "!",
}

// Status returns the human-readable name for a launch, job, or step status.
func Status(code string) string {
	if name, ok := statusNames[strings.ToLower(code)]; ok {
		return name
	}
	return code
}

// StatusWithIcon returns "✓ Succeeded" format for terminal summaries.
func StatusWithIcon(code string) string {
	name := Status(code)
	if icon, ok := statusIcons[strings.ToLower(code)]; ok {
		return icon + " " + name
	}
	return name
}

// --- Failure policies ---

var policyNames = map[string]string{
	"fatal":             "Fatal",
	"continue-on-error": "Continue on error",
	"always-run":        "Always run",
}

// Policy returns the human-readable name for a step failure policy.
func Policy(code string) string {
	if name, ok := policyNames[code]; ok {
		return name
	}
	return code
}

// --- Matrix entries ---

// EntryLabel formats a matrix entry for humans: "default 1/2 on gpu-a".
func EntryLabel(config string, shard, numShards int, runner string) string {
	var b strings.Builder
	b.WriteString(config)
	if numShards > 1 {
		b.WriteString(" ")
		b.WriteString(strconv.Itoa(shard))
		b.WriteString("/")
		b.WriteString(strconv.Itoa(numShards))
	}
	b.WriteString(" on ")
	b.WriteString(runner)
	return b.String()
}
