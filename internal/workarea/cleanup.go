package workarea

import (
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"montage/internal/logging"
)

// CleanStaleResult contains the outcome of a stale work directory sweep.
type CleanStaleResult struct {
	Removed []string
	Errors  []CleanupError
}

// CleanupError pairs a directory path with its cleanup error.
type CleanupError struct {
	Path  string
	Error error
}

// CleanStale removes job work directories older than maxAge. Directories for
// jobs that finished normally are already gone; this catches leftovers from
// crashed workers.
func CleanStale(baseDir string, maxAge time.Duration, logger *slog.Logger) CleanStaleResult {
	result := CleanStaleResult{}

	baseDir = strings.TrimSpace(baseDir)
	if baseDir == "" {
		return result
	}

	entries, err := os.ReadDir(baseDir)
	if err != nil {
		if !os.IsNotExist(err) {
			result.Errors = append(result.Errors, CleanupError{Path: baseDir, Error: err})
		}
		return result
	}

	cutoff := time.Now().Add(-maxAge)

	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}

		dirPath := filepath.Join(baseDir, entry.Name())
		info, err := entry.Info()
		if err != nil {
			result.Errors = append(result.Errors, CleanupError{Path: dirPath, Error: err})
			continue
		}
		if !info.ModTime().Before(cutoff) {
			continue
		}

		if err := os.RemoveAll(dirPath); err != nil {
			result.Errors = append(result.Errors, CleanupError{Path: dirPath, Error: err})
			if logger != nil {
				logger.Warn("failed to remove stale work directory",
					logging.String("path", dirPath),
					logging.Error(err))
			}
			continue
		}
		result.Removed = append(result.Removed, dirPath)
		if logger != nil {
			logger.Info("removed stale work directory",
				logging.String("path", dirPath),
				logging.Duration("age", time.Since(info.ModTime())))
		}
	}
	return result
}
