// Package filter implements the filter stage: an opaque decision procedure
// that may narrow the test matrix before any test job runs. The stage
// republishes the procedure's outputs unchanged; it never edits them.
package filter

import "context"

// Outputs are the four values the filter stage republishes to the test stage.
type Outputs struct {
	TestMatrix        string   `json:"test-matrix"`
	IsTestMatrixEmpty bool     `json:"is-test-matrix-empty"`
	KeepGoing         bool     `json:"keep-going"`
	ReenabledIssues   []string `json:"reenabled-issues,omitempty"`
}

// Request is what the decision procedure sees for one invocation.
type Request struct {
	Workflow   string // workflow name
	TestMatrix string // raw matrix JSON from the caller
	PRBody     string
	Token      string // API token, when a remote procedure needs one
}

// Filterer decides which matrix entries run. Implementations must not assume
// anything about the caller beyond the Request; failures propagate as errors
// with no retry.
type Filterer interface {
	Filter(ctx context.Context, req Request) (*Outputs, error)
}
