package jobs

import (
	"strings"
	"time"
)

// Status represents the lifecycle of a job. A job is processing from the
// moment it exists in the store; there is no externally observable queued
// state.
type Status string

const (
	StatusProcessing Status = "processing"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
)

var allStatuses = []Status{StatusProcessing, StatusCompleted, StatusFailed}

// Terminal reports whether the status permits no further transition.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// ParseStatus converts a string into a known Status.
func ParseStatus(value string) (Status, bool) {
	normalized := Status(strings.ToLower(strings.TrimSpace(value)))
	for _, status := range allStatuses {
		if status == normalized {
			return status, true
		}
	}
	return "", false
}

// Kind identifies which stage sequence a job runs.
type Kind string

const (
	KindMerge         Kind = "merge"
	KindCircleOverlay Kind = "circle-overlay"
	KindOverlay       Kind = "overlay"
	KindRemoteMotion  Kind = "remote-motion"
)

var allKinds = []Kind{KindMerge, KindCircleOverlay, KindOverlay, KindRemoteMotion}

// ParseKind converts a string into a known Kind.
func ParseKind(value string) (Kind, bool) {
	normalized := Kind(strings.ToLower(strings.TrimSpace(value)))
	for _, kind := range allKinds {
		if kind == normalized {
			return kind, true
		}
	}
	return "", false
}

// Record is the persisted status entry for one job.
type Record struct {
	ID               string
	Kind             Kind
	Status           Status
	Progress         float64
	CreatedAt        time.Time
	CompletedAt      *time.Time
	ErrorMessage     string
	ResultLocator    string
	ThumbnailLocator string
	ExternalJobID    string
}

// Patch is a field-wise update to a record. Nil fields are left untouched;
// writers never overwrite whole records.
type Patch struct {
	Status           *Status
	Progress         *float64
	CompletedAt      *time.Time
	ErrorMessage     *string
	ResultLocator    *string
	ThumbnailLocator *string
	ExternalJobID    *string
}

// StatusPatch is shorthand for a patch that only moves status.
func StatusPatch(status Status) Patch {
	return Patch{Status: &status}
}

// ProgressPatch is shorthand for a patch that only advances progress.
func ProgressPatch(percent float64) Patch {
	return Patch{Progress: &percent}
}

func strPtr(s string) *string { return &s }

// ExternalIDPatch records the remote provider's task id for later webhook
// correlation.
func ExternalIDPatch(externalID string) Patch {
	return Patch{ExternalJobID: strPtr(externalID)}
}

// CompletedPatch builds the patch applied when a job finishes successfully.
func CompletedPatch(resultLocator string, at time.Time) Patch {
	status := StatusCompleted
	progress := 100.0
	return Patch{
		Status:        &status,
		Progress:      &progress,
		CompletedAt:   &at,
		ResultLocator: strPtr(resultLocator),
	}
}

// FailedPatch builds the patch applied when a job fails.
func FailedPatch(message string, at time.Time) Patch {
	status := StatusFailed
	return Patch{
		Status:       &status,
		CompletedAt:  &at,
		ErrorMessage: strPtr(message),
	}
}
