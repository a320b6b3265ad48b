package jobs

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"
)

const recordColumns = `id, kind, status, progress, created_at, completed_at,
    error_message, result_locator, thumbnail_locator, external_job_id`

// Put inserts a new record with the supplied TTL. Re-putting an existing id
// replaces the record wholesale; that path exists for tests and manual
// resubmission only; live updates go through Merge and Finalize.
func (s *Store) Put(ctx context.Context, record Record, ttl time.Duration) error {
	if strings.TrimSpace(record.ID) == "" {
		return errors.New("record id required")
	}
	now := time.Now().UTC()
	if record.CreatedAt.IsZero() {
		record.CreatedAt = now
	}
	if record.Status == "" {
		record.Status = StatusProcessing
	}
	_, err := s.execWithRetry(
		ctx,
		`INSERT OR REPLACE INTO jobs (
            id, kind, status, progress, created_at, updated_at, completed_at,
            error_message, result_locator, thumbnail_locator, external_job_id, expires_at
        ) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		record.ID,
		string(record.Kind),
		string(record.Status),
		record.Progress,
		record.CreatedAt.Format(time.RFC3339Nano),
		now.Format(time.RFC3339Nano),
		nullableTime(record.CompletedAt),
		nullableString(record.ErrorMessage),
		nullableString(record.ResultLocator),
		nullableString(record.ThumbnailLocator),
		nullableString(record.ExternalJobID),
		now.Add(ttl).Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("put job %s: %w", record.ID, err)
	}
	return nil
}

// Get fetches a record by id. The second return value reports presence.
func (s *Store) Get(ctx context.Context, id string) (Record, bool, error) {
	row := s.db.QueryRowContext(ensureContext(ctx),
		`SELECT `+recordColumns+` FROM jobs WHERE id = ?`, id)
	record, err := scanRecord(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Record{}, false, nil
	}
	if err != nil {
		return Record{}, false, fmt.Errorf("get job %s: %w", id, err)
	}
	return record, true, nil
}

// FindByExternalID returns the record whose external_job_id matches, used by
// the webhook correlator.
func (s *Store) FindByExternalID(ctx context.Context, externalID string) (Record, bool, error) {
	row := s.db.QueryRowContext(ensureContext(ctx),
		`SELECT `+recordColumns+` FROM jobs WHERE external_job_id = ? ORDER BY created_at LIMIT 1`,
		externalID)
	record, err := scanRecord(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Record{}, false, nil
	}
	if err != nil {
		return Record{}, false, fmt.Errorf("find by external id %s: %w", externalID, err)
	}
	return record, true, nil
}

// Merge applies a field-wise update; nil patch fields leave stored values
// untouched. Progress can only move forward. Merge refuses to touch terminal
// records' status; use Finalize for terminal transitions.
func (s *Store) Merge(ctx context.Context, id string, patch Patch) error {
	sets := make([]string, 0, 8)
	args := make([]any, 0, 9)

	if patch.Status != nil {
		if patch.Status.Terminal() {
			return fmt.Errorf("merge cannot set terminal status %s; use Finalize", *patch.Status)
		}
		sets = append(sets, "status = ?")
		args = append(args, string(*patch.Status))
	}
	if patch.Progress != nil {
		sets = append(sets, "progress = MAX(progress, ?)")
		args = append(args, *patch.Progress)
	}
	if patch.CompletedAt != nil {
		sets = append(sets, "completed_at = ?")
		args = append(args, patch.CompletedAt.UTC().Format(time.RFC3339Nano))
	}
	if patch.ErrorMessage != nil {
		sets = append(sets, "error_message = ?")
		args = append(args, nullableString(*patch.ErrorMessage))
	}
	if patch.ResultLocator != nil {
		sets = append(sets, "result_locator = ?")
		args = append(args, nullableString(*patch.ResultLocator))
	}
	if patch.ThumbnailLocator != nil {
		sets = append(sets, "thumbnail_locator = ?")
		args = append(args, nullableString(*patch.ThumbnailLocator))
	}
	if patch.ExternalJobID != nil {
		sets = append(sets, "external_job_id = ?")
		args = append(args, nullableString(*patch.ExternalJobID))
	}
	if len(sets) == 0 {
		return nil
	}
	sets = append(sets, "updated_at = ?")
	args = append(args, time.Now().UTC().Format(time.RFC3339Nano))
	args = append(args, id)

	query := "UPDATE jobs SET " + strings.Join(sets, ", ") + " WHERE id = ?"
	if _, err := s.execWithRetry(ctx, query, args...); err != nil {
		return fmt.Errorf("merge job %s: %w", id, err)
	}
	return nil
}

// Finalize performs the guarded terminal transition: the update applies only
// when the record is not already terminal. The returned bool reports whether
// this call won the transition; false means another finalizer got there
// first (or the record is gone) and the stored state was left untouched.
func (s *Store) Finalize(ctx context.Context, id string, patch Patch) (bool, error) {
	if patch.Status == nil || !patch.Status.Terminal() {
		return false, errors.New("finalize requires a terminal status")
	}

	completedAt := time.Now().UTC()
	if patch.CompletedAt != nil {
		completedAt = patch.CompletedAt.UTC()
	}

	sets := []string{"status = ?", "completed_at = ?", "updated_at = ?"}
	args := []any{
		string(*patch.Status),
		completedAt.Format(time.RFC3339Nano),
		time.Now().UTC().Format(time.RFC3339Nano),
	}
	if patch.Progress != nil {
		sets = append(sets, "progress = MAX(progress, ?)")
		args = append(args, *patch.Progress)
	}
	if patch.ErrorMessage != nil {
		sets = append(sets, "error_message = ?")
		args = append(args, nullableString(*patch.ErrorMessage))
	}
	if patch.ResultLocator != nil {
		sets = append(sets, "result_locator = ?")
		args = append(args, nullableString(*patch.ResultLocator))
	}
	if patch.ThumbnailLocator != nil {
		sets = append(sets, "thumbnail_locator = ?")
		args = append(args, nullableString(*patch.ThumbnailLocator))
	}
	args = append(args, id, string(StatusCompleted), string(StatusFailed))

	query := "UPDATE jobs SET " + strings.Join(sets, ", ") +
		" WHERE id = ? AND status NOT IN (?, ?)"
	res, err := s.execWithRetry(ctx, query, args...)
	if err != nil {
		return false, fmt.Errorf("finalize job %s: %w", id, err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("finalize job %s: %w", id, err)
	}
	return affected > 0, nil
}

// Delete removes a record explicitly, ahead of TTL expiry.
func (s *Store) Delete(ctx context.Context, id string) error {
	if _, err := s.execWithRetry(ctx, `DELETE FROM jobs WHERE id = ?`, id); err != nil {
		return fmt.Errorf("delete job %s: %w", id, err)
	}
	return nil
}

// List returns records ordered newest first, capped at limit (0 = no cap).
func (s *Store) List(ctx context.Context, limit int) ([]Record, error) {
	query := `SELECT ` + recordColumns + ` FROM jobs ORDER BY created_at DESC`
	args := []any{}
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}
	rows, err := s.db.QueryContext(ensureContext(ctx), query, args...)
	if err != nil {
		return nil, fmt.Errorf("list jobs: %w", err)
	}
	defer rows.Close()

	var records []Record
	for rows.Next() {
		record, err := scanRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("scan job: %w", err)
		}
		records = append(records, record)
	}
	return records, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRecord(row rowScanner) (Record, error) {
	var (
		record           Record
		kind, status     string
		createdAt        string
		completedAt      sql.NullString
		errorMessage     sql.NullString
		resultLocator    sql.NullString
		thumbnailLocator sql.NullString
		externalJobID    sql.NullString
	)
	if err := row.Scan(
		&record.ID, &kind, &status, &record.Progress, &createdAt, &completedAt,
		&errorMessage, &resultLocator, &thumbnailLocator, &externalJobID,
	); err != nil {
		return Record{}, err
	}
	record.Kind = Kind(kind)
	record.Status = Status(status)
	created, err := time.Parse(time.RFC3339Nano, createdAt)
	if err != nil {
		return Record{}, fmt.Errorf("parse created_at: %w", err)
	}
	record.CreatedAt = created
	if completedAt.Valid {
		done, err := time.Parse(time.RFC3339Nano, completedAt.String)
		if err != nil {
			return Record{}, fmt.Errorf("parse completed_at: %w", err)
		}
		record.CompletedAt = &done
	}
	record.ErrorMessage = errorMessage.String
	record.ResultLocator = resultLocator.String
	record.ThumbnailLocator = thumbnailLocator.String
	record.ExternalJobID = externalJobID.String
	return record, nil
}

func nullableString(value string) any {
	if strings.TrimSpace(value) == "" {
		return nil
	}
	return value
}

func nullableTime(value *time.Time) any {
	if value == nil {
		return nil
	}
	return value.UTC().Format(time.RFC3339Nano)
}
