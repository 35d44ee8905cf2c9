package workflow

import (
	"os"
	"strings"
)

// Environment variables carrying run identity, set by the invoking orchestrator.
const (
	EnvRepository    = "OBELUS_REPOSITORY"
	EnvDefaultBranch = "OBELUS_DEFAULT_BRANCH"
	EnvRef           = "OBELUS_REF"
	EnvCommit        = "OBELUS_COMMIT"
	EnvRunID         = "OBELUS_RUN_ID"
	EnvRunAttempt    = "OBELUS_RUN_ATTEMPT"
	EnvJobName       = "OBELUS_JOB_NAME"
	EnvPRBody        = "OBELUS_PR_BODY"
	EnvToken         = "OBELUS_TOKEN"
)

// DefaultTokenFile is consulted when the environment carries no token.
const DefaultTokenFile = ".obelus-token"

// RunContext is the identity of one workflow invocation: which repository and
// commit is being tested and under which orchestrator run.
type RunContext struct {
	Repository    string // full name, owner/project
	DefaultBranch string
	Ref           string
	Commit        string
	RunID         string
	RunAttempt    string
	JobName       string
	PRBody        string
	Token         string
}

// RunContextFromEnv builds a RunContext from OBELUS_* variables. Missing
// variables yield empty fields; callers override via flags where needed.
func RunContextFromEnv() RunContext {
	return RunContext{
		Repository:    os.Getenv(EnvRepository),
		DefaultBranch: os.Getenv(EnvDefaultBranch),
		Ref:           os.Getenv(EnvRef),
		Commit:        os.Getenv(EnvCommit),
		RunID:         os.Getenv(EnvRunID),
		RunAttempt:    os.Getenv(EnvRunAttempt),
		JobName:       os.Getenv(EnvJobName),
		PRBody:        os.Getenv(EnvPRBody),
		Token:         os.Getenv(EnvToken),
	}
}

// ReadToken returns the first line of the token file, trimmed.
func ReadToken(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	line := strings.TrimSpace(strings.Split(string(data), "\n")[0])
	return line, nil
}
