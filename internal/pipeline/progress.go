package pipeline

import (
	"context"
	"log/slog"

	"montage/internal/jobs"
	"montage/internal/logging"
)

// Fixed checkpoint percentages published as a job moves through its stages.
const (
	ProgressFetched      = 10
	ProgressConcatenated = 40
	ProgressSubtitled    = 60
	ProgressMixed        = 85
	ProgressFinalizing   = 95
	ProgressDone         = 100
)

// ProgressStore is the slice of the job store the reporter writes to.
type ProgressStore interface {
	Merge(ctx context.Context, id string, patch jobs.Patch) error
}

// Reporter publishes monotonic progress for one job. Store failures are
// logged and swallowed: progress is best-effort and must never fail a stage.
type Reporter struct {
	store  ProgressStore
	jobID  string
	logger *slog.Logger
	last   float64
}

// NewReporter returns a reporter for jobID. store may be nil, in which case
// reports are dropped.
func NewReporter(store ProgressStore, jobID string, logger *slog.Logger) *Reporter {
	return &Reporter{store: store, jobID: jobID, logger: logger}
}

// Report publishes percent if it advances the job's progress.
func (r *Reporter) Report(ctx context.Context, percent float64) {
	if r == nil || percent <= r.last {
		return
	}
	r.last = percent
	if r.store == nil {
		return
	}
	if err := r.store.Merge(ctx, r.jobID, jobs.ProgressPatch(percent)); err != nil && r.logger != nil {
		r.logger.Warn("progress update failed",
			logging.String(logging.FieldJobID, r.jobID),
			logging.Float64("percent", percent),
			logging.Error(err))
	}
}

// Last returns the highest percentage reported so far.
func (r *Reporter) Last() float64 {
	if r == nil {
		return 0
	}
	return r.last
}
