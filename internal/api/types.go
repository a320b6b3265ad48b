package api

import (
	"time"

	"montage/internal/jobs"
)

// JobAccepted is returned when a submission has been persisted and queued.
type JobAccepted struct {
	JobID  string `json:"job_id"`
	Status string `json:"status"`
}

// JobStatus is the wire representation of a job record.
type JobStatus struct {
	JobID         string     `json:"job_id"`
	Kind          string     `json:"kind"`
	Status        string     `json:"status"`
	Progress      float64    `json:"progress"`
	CreatedAt     time.Time  `json:"created_at"`
	CompletedAt   *time.Time `json:"completed_at,omitempty"`
	Error         string     `json:"error,omitempty"`
	VideoURL      string     `json:"video_url,omitempty"`
	ThumbnailURL  string     `json:"thumbnail_url,omitempty"`
	ExternalJobID string     `json:"external_job_id,omitempty"`
}

// JobListResponse wraps the job listing endpoint payload.
type JobListResponse struct {
	Jobs []JobStatus `json:"jobs"`
}

// FromRecord converts a persisted record into its wire form.
func FromRecord(record jobs.Record) JobStatus {
	return JobStatus{
		JobID:         record.ID,
		Kind:          string(record.Kind),
		Status:        string(record.Status),
		Progress:      record.Progress,
		CreatedAt:     record.CreatedAt,
		CompletedAt:   record.CompletedAt,
		Error:         record.ErrorMessage,
		VideoURL:      record.ResultLocator,
		ThumbnailURL:  record.ThumbnailLocator,
		ExternalJobID: record.ExternalJobID,
	}
}
