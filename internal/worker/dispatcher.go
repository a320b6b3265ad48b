package worker

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"montage/internal/command"
	"montage/internal/config"
	"montage/internal/jobs"
	"montage/internal/logging"
	"montage/internal/media"
	"montage/internal/pipeline"
	"montage/internal/services"
	"montage/internal/storage"
	"montage/internal/textutil"
	"montage/internal/workarea"
)

// Fetcher is the slice of the fetch client the worker uses.
type Fetcher interface {
	Fetch(ctx context.Context, url, destPath string) (string, error)
}

// Delegator hands a composite job to the remote montage service. The
// implementation owns completion: it must finalize the job when the remote
// side resolves.
type Delegator interface {
	Delegate(ctx context.Context, jobID string, kind jobs.Kind, req jobs.CompositeRequest) error
}

// MotionDispatcher submits a motion job to the remote AI provider and
// returns the provider's task id for webhook correlation.
type MotionDispatcher interface {
	Dispatch(ctx context.Context, jobID string, req jobs.MotionRequest) (string, error)
}

// Deps wires the dispatcher's collaborators.
type Deps struct {
	Config   *config.Config
	Store    *jobs.Store
	Queue    Queue
	Runner   command.Runner
	Fetcher  Fetcher
	Objects  storage.ObjectStore
	Delegate Delegator
	Motion   MotionDispatcher
	Logger   *slog.Logger
}

// Dispatcher accepts job requests, persists their status records, and runs a
// worker pool over the queue.
type Dispatcher struct {
	cfg      *config.Config
	store    *jobs.Store
	queue    Queue
	runner   command.Runner
	fetcher  Fetcher
	objects  storage.ObjectStore
	delegate Delegator
	motion   MotionDispatcher
	logger   *slog.Logger
	wg       sync.WaitGroup
}

// NewDispatcher constructs a dispatcher from its dependencies.
func NewDispatcher(deps Deps) *Dispatcher {
	logger := deps.Logger
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Dispatcher{
		cfg:      deps.Config,
		store:    deps.Store,
		queue:    deps.Queue,
		runner:   deps.Runner,
		fetcher:  deps.Fetcher,
		objects:  deps.Objects,
		delegate: deps.Delegate,
		motion:   deps.Motion,
		logger:   logging.NewComponentLogger(logger, "dispatcher"),
	}
}

// Enqueue validates the request, persists a processing record, and queues the
// job. It returns the new job id immediately; execution is asynchronous.
func (d *Dispatcher) Enqueue(ctx context.Context, req jobs.Request) (string, error) {
	if err := req.Validate(); err != nil {
		return "", err
	}

	id := uuid.NewString()
	record := jobs.Record{
		ID:        id,
		Kind:      req.Kind,
		Status:    jobs.StatusProcessing,
		CreatedAt: time.Now().UTC(),
	}
	if err := d.store.Put(ctx, record, d.ttl()); err != nil {
		return "", services.Wrap(services.ErrConfiguration, "dispatch", "store", "persist job record", err)
	}
	if err := d.queue.Enqueue(ctx, Task{JobID: id, Request: req}); err != nil {
		d.finalizeFailed(ctx, id, fmt.Errorf("enqueue: %w", err))
		return "", err
	}

	d.logger.Info("job queued",
		logging.String(logging.FieldJobID, id),
		logging.String(logging.FieldKind, string(req.Kind)))
	return id, nil
}

// Start launches the worker pool. Workers exit when the queue's task channel
// closes or ctx is cancelled; Wait blocks until they are done.
func (d *Dispatcher) Start(ctx context.Context) error {
	tasks, err := d.queue.Consume(ctx)
	if err != nil {
		return err
	}
	workers := d.cfg.Queue.Workers
	if workers <= 0 {
		workers = 1
	}
	for i := 0; i < workers; i++ {
		d.wg.Add(1)
		go func() {
			defer d.wg.Done()
			for {
				select {
				case <-ctx.Done():
					return
				case task, ok := <-tasks:
					if !ok {
						return
					}
					d.runJob(ctx, task)
				}
			}
		}()
	}
	return nil
}

// Wait blocks until all workers have returned.
func (d *Dispatcher) Wait() {
	d.wg.Wait()
}

func (d *Dispatcher) ttl() time.Duration {
	hours := d.cfg.Store.TTLHours
	if hours <= 0 {
		hours = 24
	}
	return time.Duration(hours) * time.Hour
}

// runJob executes one task to a terminal state. A local job is never left in
// processing: every exit path either finalizes the record or hands ownership
// to a remote completion path that will.
func (d *Dispatcher) runJob(ctx context.Context, task Task) {
	ctx = services.WithJobID(ctx, task.JobID)
	logger := logging.WithContext(ctx, d.logger).With(
		logging.String(logging.FieldKind, string(task.Request.Kind)))

	defer func() {
		if r := recover(); r != nil {
			logger.Error("worker panic", logging.Any("panic", r))
			d.finalizeFailed(ctx, task.JobID, fmt.Errorf("internal error: %v", r))
		}
	}()

	wa, err := workarea.Allocate(d.cfg.Paths.WorkDir, task.JobID)
	if err != nil {
		d.finalizeFailed(ctx, task.JobID, err)
		return
	}
	defer func() {
		if err := wa.Cleanup(); err != nil {
			logger.Warn("work directory cleanup failed", logging.Error(err))
		}
	}()

	logger.Info("job started")
	start := time.Now()

	switch task.Request.Kind {
	case jobs.KindMerge:
		err = d.runMerge(ctx, task.JobID, task.Request.Merge, wa, logger)
	case jobs.KindCircleOverlay, jobs.KindOverlay:
		err = d.runComposite(ctx, task.JobID, task.Request.Kind, task.Request.Composite, wa, logger)
	case jobs.KindRemoteMotion:
		err = d.runMotion(ctx, task.JobID, task.Request.Motion, logger)
	default:
		err = services.Wrap(services.ErrValidation, "dispatch", "", fmt.Sprintf("unknown kind %q", task.Request.Kind), nil)
	}

	if err != nil {
		logger.Error("job failed", logging.Error(err), logging.Duration("elapsed", time.Since(start)))
		d.finalizeFailed(ctx, task.JobID, err)
		return
	}
	logger.Info("job finished", logging.Duration("elapsed", time.Since(start)))
}

func (d *Dispatcher) runMerge(ctx context.Context, jobID string, req *jobs.MergeRequest, wa *workarea.Dir, logger *slog.Logger) error {
	reporter := pipeline.NewReporter(d.store, jobID, logger)

	sources := d.fetchSources(ctx, req.SourceURLs, wa, logger)
	if len(sources) == 0 {
		return services.Wrap(services.ErrNoSources, "fetch", "", "no sources were downloaded successfully", nil)
	}

	var musicPath string
	if req.MusicURL != "" {
		path, err := d.fetcher.Fetch(ctx, req.MusicURL, wa.Path("music.mp3"))
		if err != nil {
			return err
		}
		musicPath = path
	}
	reporter.Report(ctx, pipeline.ProgressFetched)

	concat := &pipeline.Concatenator{Runner: d.runner, FFmpeg: d.cfg.Pipeline.FFmpegBinary, Logger: logger}
	current := wa.Path("merged.mp4")
	if err := concat.Concatenate(ctx, sources, wa.Path("concat_list.txt"), current); err != nil {
		return err
	}
	reporter.Report(ctx, pipeline.ProgressConcatenated)

	if len(req.Subtitles) > 0 {
		renderer := &pipeline.Renderer{
			Runner: d.runner,
			FFmpeg: d.cfg.Pipeline.FFmpegBinary,
			Policy: d.cfg.Pipeline.SubtitleFailurePolicy,
			Logger: logger,
		}
		style := jobs.DefaultSubtitleStyle()
		if req.SubtitleStyle != nil {
			style = *req.SubtitleStyle
		}
		track := "subtitles.srt"
		if req.KaraokeMode {
			track = "subtitles.ass"
		}
		result, err := renderer.Burn(ctx, pipeline.BurnRequest{
			VideoPath:  current,
			TrackPath:  wa.Path(track),
			OutputPath: wa.Path("subtitled.mp4"),
			Cues:       req.Subtitles,
			Style:      style,
			Karaoke:    req.KaraokeMode,
		})
		if err != nil {
			return err
		}
		current = result
	}
	reporter.Report(ctx, pipeline.ProgressSubtitled)

	outputName := textutil.SanitizeFileName(req.OutputName)
	if outputName == "" {
		outputName = "merged_video.mp4"
	}
	final := wa.Path(outputName)

	mixer := &pipeline.Mixer{
		Runner:  d.runner,
		FFmpeg:  d.cfg.Pipeline.FFmpegBinary,
		Bitrate: d.cfg.Pipeline.MusicBitrate,
		Logger:  logger,
	}
	if musicPath != "" {
		info, err := media.Probe(ctx, d.runner, d.cfg.Pipeline.FFprobeBinary, current)
		if err != nil {
			return err
		}
		prepared := wa.Path("prepared_audio.mp3")
		if err := mixer.PrepareMusic(ctx, musicPath, info.Duration, prepared); err != nil {
			return err
		}
		if err := mixer.Mux(ctx, current, prepared, final); err != nil {
			return err
		}
	} else {
		if err := mixer.PassThrough(current, final); err != nil {
			return err
		}
	}
	reporter.Report(ctx, pipeline.ProgressMixed)

	return d.uploadAndFinalize(ctx, jobID, final, reporter, logger)
}

func (d *Dispatcher) runComposite(ctx context.Context, jobID string, kind jobs.Kind, req *jobs.CompositeRequest, wa *workarea.Dir, logger *slog.Logger) error {
	if d.cfg.Montage.Delegate && d.delegate != nil {
		return d.delegate.Delegate(ctx, jobID, kind, *req)
	}

	reporter := pipeline.NewReporter(d.store, jobID, logger)

	background, err := d.fetcher.Fetch(ctx, req.BackgroundURL, wa.Path("background.mp4"))
	if err != nil {
		return err
	}
	overlay, err := d.fetcher.Fetch(ctx, req.OverlayURL, wa.Path("overlay.mp4"))
	if err != nil {
		return err
	}
	reporter.Report(ctx, pipeline.ProgressFetched)

	comp := &pipeline.Compositor{
		Runner:  d.runner,
		FFmpeg:  d.cfg.Pipeline.FFmpegBinary,
		FFprobe: d.cfg.Pipeline.FFprobeBinary,
		Scale:   d.cfg.Pipeline.CircleScale,
		Margin:  d.cfg.Pipeline.OverlayMargin,
		Logger:  logger,
	}
	job := pipeline.CompositeJob{
		BackgroundPath:   background,
		OverlayPath:      overlay,
		BackgroundVolume: req.BackgroundVolume,
		OverlayVolume:    req.OverlayVolume,
		Position:         req.Position,
		OutputPath:       wa.Path("composite.mp4"),
	}
	if kind == jobs.KindCircleOverlay {
		err = comp.Circle(ctx, job)
	} else {
		err = comp.Stack(ctx, job)
	}
	if err != nil {
		return err
	}
	reporter.Report(ctx, pipeline.ProgressMixed)

	return d.uploadAndFinalize(ctx, jobID, job.OutputPath, reporter, logger)
}

// runMotion submits the job to the remote provider and records the external
// task id. The job stays in processing until the webhook correlator (or an
// operator) resolves it.
func (d *Dispatcher) runMotion(ctx context.Context, jobID string, req *jobs.MotionRequest, logger *slog.Logger) error {
	if d.motion == nil {
		return services.Wrap(services.ErrConfiguration, "dispatch", "motion", "motion provider not configured", nil)
	}
	externalID, err := d.motion.Dispatch(ctx, jobID, *req)
	if err != nil {
		return err
	}
	if err := d.store.Merge(ctx, jobID, jobs.ExternalIDPatch(externalID)); err != nil {
		logger.Warn("failed to persist external task id", logging.Error(err))
	}
	logger.Info("motion task dispatched", logging.String(logging.FieldExternalID, externalID))
	return nil
}

// fetchSources downloads all source clips concurrently, tolerating individual
// failures. The returned list preserves the caller's order.
func (d *Dispatcher) fetchSources(ctx context.Context, urls []string, wa *workarea.Dir, logger *slog.Logger) []string {
	results := make([]string, len(urls))
	g, gctx := errgroup.WithContext(ctx)
	for i, url := range urls {
		g.Go(func() error {
			dest := wa.Path(fmt.Sprintf("video_%d.mp4", i+1))
			path, err := d.fetcher.Fetch(gctx, url, dest)
			if err != nil {
				logger.Warn("source fetch failed",
					logging.String("url", url),
					logging.Error(err))
				return nil
			}
			results[i] = path
			return nil
		})
	}
	// Workers never return errors; Wait only synchronizes.
	_ = g.Wait()

	sources := make([]string, 0, len(results))
	for _, path := range results {
		if path != "" {
			sources = append(sources, path)
		}
	}
	return sources
}

// uploadAndFinalize persists the artifact, then applies the guarded terminal
// transition.
func (d *Dispatcher) uploadAndFinalize(ctx context.Context, jobID, artifactPath string, reporter *pipeline.Reporter, logger *slog.Logger) error {
	reporter.Report(ctx, pipeline.ProgressFinalizing)

	key := jobID + "/" + filepath.Base(artifactPath)
	if err := d.objects.PutFile(ctx, artifactPath, key); err != nil {
		return services.Wrap(services.ErrRemoteService, "upload", "object store", key, err)
	}

	// The record keeps the object key; download URLs are presigned on read
	// so they cannot outlive their signature.
	won, err := d.store.Finalize(ctx, jobID, jobs.CompletedPatch(key, time.Now().UTC()))
	if err != nil {
		return err
	}
	if !won {
		logger.Warn("job was already terminal, result discarded")
	}
	return nil
}

// finalizeFailed applies the guarded failed transition, logging when the job
// was already terminal.
func (d *Dispatcher) finalizeFailed(ctx context.Context, jobID string, cause error) {
	won, err := d.store.Finalize(ctx, jobID, jobs.FailedPatch(cause.Error(), time.Now().UTC()))
	if err != nil {
		d.logger.Error("failed to record job failure",
			logging.String(logging.FieldJobID, jobID),
			logging.Error(err))
		return
	}
	if !won {
		d.logger.Warn("job already terminal, failure not recorded",
			logging.String(logging.FieldJobID, jobID))
	}
}
