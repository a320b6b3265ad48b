package jobs

import (
	"context"
	"fmt"
	"time"
)

// SweepExpired removes records whose TTL has elapsed. This is the only
// automatic removal path.
func (s *Store) SweepExpired(ctx context.Context, now time.Time) (int64, error) {
	res, err := s.execWithRetry(
		ctx,
		`DELETE FROM jobs WHERE expires_at <= ?`,
		now.UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return 0, fmt.Errorf("sweep expired jobs: %w", err)
	}
	return res.RowsAffected()
}

// MarkStaleProcessing fails processing records untouched since cutoff. A job
// only gets here when the worker that owned it died; recovery of the work
// itself is out of scope, but callers should not see it processing forever.
func (s *Store) MarkStaleProcessing(ctx context.Context, cutoff time.Time) (int64, error) {
	now := time.Now().UTC()
	res, err := s.execWithRetry(
		ctx,
		`UPDATE jobs
         SET status = ?, error_message = ?, completed_at = ?, updated_at = ?
         WHERE status = ? AND updated_at < ?`,
		string(StatusFailed),
		"worker lost before job completed",
		now.Format(time.RFC3339Nano),
		now.Format(time.RFC3339Nano),
		string(StatusProcessing),
		cutoff.UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return 0, fmt.Errorf("mark stale processing: %w", err)
	}
	return res.RowsAffected()
}

// Stats returns a count of records grouped by status.
func (s *Store) Stats(ctx context.Context) (map[Status]int, error) {
	rows, err := s.db.QueryContext(ensureContext(ctx),
		`SELECT status, COUNT(1) FROM jobs GROUP BY status`)
	if err != nil {
		return nil, fmt.Errorf("job stats: %w", err)
	}
	defer rows.Close()

	stats := make(map[Status]int)
	for rows.Next() {
		var status Status
		var count int
		if err := rows.Scan(&status, &count); err != nil {
			return nil, err
		}
		stats[status] = count
	}
	return stats, rows.Err()
}
