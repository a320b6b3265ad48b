package daemon

import (
	"context"
	"time"

	"log/slog"

	"montage/internal/logging"
	"montage/internal/workarea"
)

// runMaintenance drops expired records, fails processing records nothing is
// working on anymore, and clears abandoned work directories.
func (d *Daemon) runMaintenance(ctx context.Context) {
	logger := logging.NewComponentLogger(d.logger, "maintenance")
	now := time.Now().UTC()

	removed, err := d.store.SweepExpired(ctx, now)
	if err != nil {
		logger.Warn("expired sweep failed", logging.Error(err))
	} else if removed > 0 {
		logger.Info("expired records removed", slog.Int64("count", removed))
	}

	staleAfter := time.Duration(d.cfg.Store.StaleProcessingMinutes) * time.Minute
	if staleAfter > 0 {
		failed, err := d.store.MarkStaleProcessing(ctx, now.Add(-staleAfter))
		if err != nil {
			logger.Warn("stale processing sweep failed", logging.Error(err))
		} else if failed > 0 {
			logger.Warn("stale processing jobs failed", slog.Int64("count", failed))
		}

		result := workarea.CleanStale(d.cfg.Paths.WorkDir, staleAfter, logger)
		if len(result.Removed) > 0 || len(result.Errors) > 0 {
			logger.Info("work directories cleaned",
				slog.Int("removed", len(result.Removed)),
				slog.Int("errors", len(result.Errors)))
		}
	}
}
