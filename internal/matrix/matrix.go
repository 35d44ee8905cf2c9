// Package matrix models the test matrix: the set of runner/config/shard
// entries a launch expands into. The matrix is defined by the caller, narrowed
// once by the filter stage, and consumed read-only by the test stage.
package matrix

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Entry is one test job: a named config sliced into shards, placed on a runner.
type Entry struct {
	Runner    string `json:"runner"`
	Config    string `json:"config"`
	Shard     int    `json:"shard"`
	NumShards int    `json:"num_shards"`
}

// Matrix is the include-list of entries, as carried in the test-matrix input.
type Matrix struct {
	Include []Entry `json:"include"`
}

// Parse decodes a matrix from the JSON string form. Unknown entry fields are
// tolerated; the named axes are what the engine consumes.
func Parse(jsonStr string) (Matrix, error) {
	if strings.TrimSpace(jsonStr) == "" {
		return Matrix{}, fmt.Errorf("empty test matrix")
	}
	var m Matrix
	if err := json.Unmarshal([]byte(jsonStr), &m); err != nil {
		return Matrix{}, fmt.Errorf("parse test matrix: %w", err)
	}
	return m, nil
}

// Encode returns the JSON string form of the matrix.
func (m Matrix) Encode() (string, error) {
	data, err := json.Marshal(m)
	if err != nil {
		return "", fmt.Errorf("encode test matrix: %w", err)
	}
	return string(data), nil
}

// IsEmpty reports whether the matrix expands to zero jobs.
func (m Matrix) IsEmpty() bool {
	return len(m.Include) == 0
}

// Filter returns a new matrix holding the entries keep accepts, in order.
func (m Matrix) Filter(keep func(Entry) bool) Matrix {
	var out Matrix
	for _, e := range m.Include {
		if keep(e) {
			out.Include = append(out.Include, e)
		}
	}
	return out
}

// Validate checks shard sanity: shard indices in 1..num_shards, one num_shards
// per config, no duplicate (runner, config, shard) triples. The engine does not
// apply this to filtered matrices; it is for callers defining a matrix by hand.
func (m Matrix) Validate() error {
	shardsPerConfig := map[string]int{}
	seen := map[string]bool{}
	for i, e := range m.Include {
		if e.Config == "" {
			return fmt.Errorf("entry %d: config is empty", i)
		}
		if e.Runner == "" {
			return fmt.Errorf("entry %d (%s): runner is empty", i, e.Config)
		}
		if e.NumShards < 1 {
			return fmt.Errorf("entry %d (%s): num_shards %d < 1", i, e.Config, e.NumShards)
		}
		if e.Shard < 1 || e.Shard > e.NumShards {
			return fmt.Errorf("entry %d (%s): shard %d outside 1..%d", i, e.Config, e.Shard, e.NumShards)
		}
		if n, ok := shardsPerConfig[e.Config]; ok && n != e.NumShards {
			return fmt.Errorf("config %s: conflicting num_shards %d and %d", e.Config, n, e.NumShards)
		}
		shardsPerConfig[e.Config] = e.NumShards
		key := e.Key()
		if seen[key] {
			return fmt.Errorf("duplicate entry %s", key)
		}
		seen[key] = true
	}
	return nil
}

// Key identifies the entry within a launch: <config>-<shard>-<num_shards>-<runner>.
func (e Entry) Key() string {
	return fmt.Sprintf("%s-%d-%d-%s", e.Config, e.Shard, e.NumShards, e.Runner)
}

// ArtifactSuffix returns the artifact name discriminator for this entry under
// the given job name. Distinct entries always yield distinct suffixes, so
// concurrent jobs of one launch never collide on artifact names.
func (e Entry) ArtifactSuffix(jobName string) string {
	return jobName + "-" + e.Key()
}
