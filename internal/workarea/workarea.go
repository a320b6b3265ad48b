// Package workarea manages per-job scratch directories under the daemon's
// work root. Every job gets an isolated directory that is removed once the
// job reaches a terminal state.
package workarea

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"montage/internal/textutil"
)

// Dir is a job-scoped scratch directory.
type Dir struct {
	root string
}

// Allocate creates (or reuses) the scratch directory for jobID under baseDir.
func Allocate(baseDir, jobID string) (*Dir, error) {
	baseDir = strings.TrimSpace(baseDir)
	jobID = strings.TrimSpace(jobID)
	if baseDir == "" {
		return nil, fmt.Errorf("work base directory not configured")
	}
	if jobID == "" {
		return nil, fmt.Errorf("job id required for work directory")
	}

	// Job ids are uuids, but the directory name must never escape the work
	// root even if an id arrives malformed.
	root := filepath.Join(baseDir, textutil.SanitizeToken(jobID))
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("create work directory %s: %w", root, err)
	}
	return &Dir{root: root}, nil
}

// Root returns the directory path.
func (d *Dir) Root() string {
	return d.root
}

// Path joins name onto the work directory.
func (d *Dir) Path(name string) string {
	return filepath.Join(d.root, name)
}

// Cleanup removes the directory and everything inside it.
func (d *Dir) Cleanup() error {
	if d == nil || d.root == "" {
		return nil
	}
	return os.RemoveAll(d.root)
}
