// Package artifacts stores named build and test artifacts as zip archives
// with JSON sidecar records. Build artifacts are fetched by exact name; test
// and log artifacts are stored under names embedding the per-job suffix, so
// concurrent jobs of one launch never collide.
package artifacts

import (
	"context"
	"errors"
)

// ErrNotFound is returned when no artifact exists under the requested name.
var ErrNotFound = errors.New("artifact not found")

// Record describes one stored artifact.
type Record struct {
	Name      string `json:"name"`
	SizeBytes int64  `json:"size_bytes"`
	SHA256    string `json:"sha256"`
	CreatedAt string `json:"created_at"` // RFC3339 UTC
}

// Store is the artifact persistence facade. Pipeline and CLI code use only
// this interface; the implementation is the local filesystem. Put and Fetch
// honor ctx cancellation mid-archive.
type Store interface {
	// Put archives the contents of srcDir under name and returns the record.
	Put(ctx context.Context, name, srcDir string) (*Record, error)
	// Fetch extracts the named artifact into destDir.
	Fetch(ctx context.Context, name, destDir string) error
	// Stat returns the record for name, or ErrNotFound.
	Stat(ctx context.Context, name string) (*Record, error)
	// List returns all records, sorted by name.
	List(ctx context.Context) ([]Record, error)
}
