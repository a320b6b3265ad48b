package montagesvc

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"montage/internal/jobs"
	"montage/internal/logging"
	"montage/internal/services"
	"montage/internal/storage"
)

// Monitor submits delegated composite jobs and polls them to a terminal
// state. Finalization is guarded: a job another path already resolved is
// left untouched.
type Monitor struct {
	client      *Client
	store       *jobs.Store
	objects     storage.ObjectStore
	workDir     string
	interval    time.Duration
	maxAttempts int
	logger      *slog.Logger
	wg          sync.WaitGroup
}

// MonitorOptions configures a Monitor.
type MonitorOptions struct {
	Client       *Client
	Store        *jobs.Store
	Objects      storage.ObjectStore
	WorkDir      string
	PollInterval time.Duration
	MaxAttempts  int
	Logger       *slog.Logger
}

// NewMonitor constructs a monitor.
func NewMonitor(opts MonitorOptions) *Monitor {
	logger := opts.Logger
	if logger == nil {
		logger = logging.NewNop()
	}
	interval := opts.PollInterval
	if interval <= 0 {
		interval = 30 * time.Second
	}
	attempts := opts.MaxAttempts
	if attempts <= 0 {
		attempts = 20
	}
	return &Monitor{
		client:      opts.Client,
		store:       opts.Store,
		objects:     opts.Objects,
		workDir:     opts.WorkDir,
		interval:    interval,
		maxAttempts: attempts,
		logger:      logging.NewComponentLogger(logger, "montage-monitor"),
	}
}

// Delegate submits the composite request remotely and starts a bounded poll
// loop that owns the job's completion.
func (m *Monitor) Delegate(ctx context.Context, jobID string, kind jobs.Kind, req jobs.CompositeRequest) error {
	videoID, err := m.client.Submit(ctx, kind, req)
	if err != nil {
		return err
	}
	if err := m.store.Merge(ctx, jobID, jobs.ExternalIDPatch(videoID)); err != nil {
		m.logger.Warn("failed to persist remote video id",
			logging.String(logging.FieldJobID, jobID),
			logging.Error(err))
	}
	m.logger.Info("composite delegated",
		logging.String(logging.FieldJobID, jobID),
		logging.String(logging.FieldExternalID, videoID))

	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		m.watch(ctx, jobID, videoID)
	}()
	return nil
}

// Wait blocks until all in-flight watch loops have finished.
func (m *Monitor) Wait() {
	m.wg.Wait()
}

// watch polls the remote status up to maxAttempts times, one interval apart.
// Exhausting the budget finalizes the job as failed by timeout.
func (m *Monitor) watch(ctx context.Context, jobID, videoID string) {
	logger := m.logger.With(
		logging.String(logging.FieldJobID, jobID),
		logging.String(logging.FieldExternalID, videoID))

	timer := time.NewTimer(m.interval)
	defer timer.Stop()

	for attempt := 1; attempt <= m.maxAttempts; attempt++ {
		select {
		case <-ctx.Done():
			logger.Warn("monitor stopped before job resolved")
			return
		case <-timer.C:
		}
		timer.Reset(m.interval)

		status, err := m.client.Status(ctx, videoID)
		if err != nil {
			if !services.IsRetryable(err) {
				m.finalize(ctx, jobID, jobs.FailedPatch(err.Error(), time.Now().UTC()), logger)
				return
			}
			logger.Warn("remote status check failed",
				logging.Int("attempt", attempt),
				logging.Error(err))
			continue
		}

		switch status.Status {
		case RemoteStatusCompleted:
			m.collectResult(ctx, jobID, videoID, logger)
			return
		case RemoteStatusFailed:
			message := status.ErrorMessage
			if message == "" {
				message = "remote montage service reported failure"
			}
			m.finalize(ctx, jobID, jobs.FailedPatch(message, time.Now().UTC()), logger)
			return
		}
	}

	err := services.Wrap(services.ErrTimeout, "monitor", "",
		fmt.Sprintf("remote montage did not resolve after %d attempts", m.maxAttempts), nil)
	m.finalize(ctx, jobID, jobs.FailedPatch(err.Error(), time.Now().UTC()), logger)
}

// collectResult downloads the finished video, persists it, and finalizes the
// job as completed.
func (m *Monitor) collectResult(ctx context.Context, jobID, videoID string, logger *slog.Logger) {
	dest := filepath.Join(m.workDir, jobID+"-remote.mp4")
	if err := m.client.Download(ctx, videoID, dest); err != nil {
		m.finalize(ctx, jobID, jobs.FailedPatch(err.Error(), time.Now().UTC()), logger)
		return
	}
	defer os.Remove(dest)

	key := jobID + "/montage_result.mp4"
	if err := m.objects.PutFile(ctx, dest, key); err != nil {
		m.finalize(ctx, jobID, jobs.FailedPatch(err.Error(), time.Now().UTC()), logger)
		return
	}
	m.finalize(ctx, jobID, jobs.CompletedPatch(key, time.Now().UTC()), logger)
}

func (m *Monitor) finalize(ctx context.Context, jobID string, patch jobs.Patch, logger *slog.Logger) {
	won, err := m.store.Finalize(ctx, jobID, patch)
	if err != nil {
		logger.Error("failed to finalize delegated job", logging.Error(err))
		return
	}
	if !won {
		logger.Info("job already terminal, poll result discarded")
		return
	}
	logger.Info("delegated job finalized", logging.String("status", string(*patch.Status)))
}
