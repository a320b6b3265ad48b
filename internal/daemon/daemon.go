package daemon

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sync/atomic"
	"time"

	"log/slog"

	"github.com/gofrs/flock"
	"github.com/robfig/cron/v3"

	"montage/internal/api"
	"montage/internal/command"
	"montage/internal/config"
	"montage/internal/deps"
	"montage/internal/fetch"
	"montage/internal/jobs"
	"montage/internal/logging"
	"montage/internal/remote/montagesvc"
	"montage/internal/remote/motion"
	"montage/internal/storage"
	"montage/internal/worker"
)

const motionCallbackPath = "/api/callbacks/motion"

// Daemon owns the background services and enforces single-instance execution.
type Daemon struct {
	cfg        *config.Config
	logger     *slog.Logger
	store      *jobs.Store
	queue      worker.Queue
	dispatcher *worker.Dispatcher
	monitor    *montagesvc.Monitor
	correlator *motion.Correlator
	apiServer  *api.Server
	cron       *cron.Cron

	lockPath string
	lock     *flock.Flock

	running atomic.Bool
	ctx     context.Context
	cancel  context.CancelFunc
}

// Status is a point-in-time snapshot of the daemon for diagnostics.
type Status struct {
	Running      bool
	StorePath    string
	LockFilePath string
	QueueDriver  string
	Jobs         map[jobs.Status]int
}

// New constructs a daemon and all its collaborators from configuration.
func New(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Daemon, error) {
	if cfg == nil || logger == nil {
		return nil, errors.New("daemon requires config and logger")
	}
	if err := cfg.EnsureDirectories(); err != nil {
		return nil, err
	}

	store, err := jobs.Open(cfg.DatabasePath())
	if err != nil {
		return nil, fmt.Errorf("open job store: %w", err)
	}

	queue, err := buildQueue(cfg, logger)
	if err != nil {
		_ = store.Close()
		return nil, err
	}

	objects, err := storage.NewS3Store(ctx, cfg.Storage)
	if err != nil {
		_ = store.Close()
		queue.Close()
		return nil, fmt.Errorf("object store: %w", err)
	}

	fetcher := fetch.New(fetch.Options{
		MaxBytes:            int64(cfg.Fetch.MaxSizeMiB) * 1024 * 1024,
		Timeout:             time.Duration(cfg.Fetch.TimeoutSeconds) * time.Second,
		AllowedContentTypes: cfg.Fetch.AllowedContentTypes,
	})
	runner := command.NewRunner()
	presignTTL := time.Duration(cfg.Storage.PresignTTLMinutes) * time.Minute

	d := &Daemon{
		cfg:      cfg,
		logger:   logger,
		store:    store,
		queue:    queue,
		lockPath: filepath.Join(cfg.Paths.LogDir, "montaged.lock"),
	}
	d.lock = flock.New(d.lockPath)

	var delegate worker.Delegator
	if cfg.Montage.Delegate && cfg.Montage.BaseURL != "" {
		d.monitor = montagesvc.NewMonitor(montagesvc.MonitorOptions{
			Client:       montagesvc.NewClient(cfg.Montage.BaseURL),
			Store:        store,
			Objects:      objects,
			WorkDir:      cfg.Paths.WorkDir,
			PollInterval: time.Duration(cfg.Montage.PollIntervalSeconds) * time.Second,
			MaxAttempts:  cfg.Montage.MaxAttempts,
			Logger:       logger,
		})
		delegate = d.monitor
	}

	var motionClient worker.MotionDispatcher
	var notices api.NoticeHandler
	if cfg.Motion.BaseURL != "" {
		motionClient = motion.NewClient(motion.ClientOptions{
			BaseURL:     cfg.Motion.BaseURL,
			APIKey:      cfg.Motion.APIKey,
			Model:       cfg.Motion.Model,
			CallbackURL: cfg.Motion.CallbackBaseURL + motionCallbackPath,
		})
		d.correlator = motion.NewCorrelator(motion.CorrelatorOptions{
			Store:   store,
			Objects: objects,
			Fetcher: fetcher,
			Thumbs: &motion.ThumbnailGenerator{
				Runner: runner,
				FFmpeg: cfg.Pipeline.FFmpegBinary,
			},
			WorkDir: cfg.Paths.WorkDir,
			Logger:  logger,
		})
		notices = d.correlator
	}

	d.dispatcher = worker.NewDispatcher(worker.Deps{
		Config:   cfg,
		Store:    store,
		Queue:    queue,
		Runner:   runner,
		Fetcher:  fetcher,
		Objects:  objects,
		Delegate: delegate,
		Motion:   motionClient,
		Logger:   logger,
	})

	d.apiServer = api.NewServer(api.Options{
		Bind:       cfg.Paths.APIBind,
		Token:      cfg.Paths.APIToken,
		Store:      store,
		Service:    d.dispatcher,
		Notices:    notices,
		Objects:    objects,
		PresignTTL: presignTTL,
		Tools:      func() []deps.Status { return deps.CheckBinaries(deps.Required(cfg)) },
		Logger:     logger,
	})
	return d, nil
}

func buildQueue(cfg *config.Config, logger *slog.Logger) (worker.Queue, error) {
	switch cfg.Queue.Driver {
	case "", "memory":
		return worker.NewMemoryQueue(0), nil
	case "amqp":
		queue, err := worker.NewAMQPQueue(cfg.Queue.AMQPURL, cfg.Queue.Name, logger)
		if err != nil {
			return nil, fmt.Errorf("amqp queue: %w", err)
		}
		return queue, nil
	default:
		return nil, fmt.Errorf("unknown queue driver %q", cfg.Queue.Driver)
	}
}

// Start acquires the daemon lock and launches the worker pool, the API
// server, and the maintenance schedule.
func (d *Daemon) Start(ctx context.Context) error {
	if d.running.Load() {
		return errors.New("daemon already running")
	}

	ok, err := d.lock.TryLock()
	if err != nil {
		return fmt.Errorf("acquire lock: %w", err)
	}
	if !ok {
		return errors.New("another montage daemon instance is already running")
	}

	for _, status := range deps.CheckBinaries(deps.Required(d.cfg)) {
		if !status.Available {
			d.log().Warn("external tool unavailable",
				slog.String("tool", status.Name),
				slog.String("detail", status.Detail))
		}
	}

	d.ctx, d.cancel = context.WithCancel(ctx)
	if err := d.dispatcher.Start(d.ctx); err != nil {
		d.releaseStart()
		return fmt.Errorf("start workers: %w", err)
	}
	if err := d.apiServer.Start(d.ctx); err != nil {
		d.releaseStart()
		return fmt.Errorf("start api: %w", err)
	}
	d.startMaintenance()

	d.running.Store(true)
	d.log().Info("montage daemon started", slog.String("lock", d.lockPath))
	return nil
}

func (d *Daemon) releaseStart() {
	if d.cancel != nil {
		d.cancel()
		d.cancel = nil
	}
	d.ctx = nil
	_ = d.lock.Unlock()
}

func (d *Daemon) startMaintenance() {
	interval := time.Duration(d.cfg.Store.SweepIntervalMinutes) * time.Minute
	if interval <= 0 {
		return
	}
	d.cron = cron.New()
	d.cron.Schedule(cron.Every(interval), cron.FuncJob(func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
		defer cancel()
		d.runMaintenance(ctx)
	}))
	d.cron.Start()
}

// Stop shuts down background processing and releases the daemon lock.
func (d *Daemon) Stop() {
	if !d.running.Load() {
		return
	}

	d.apiServer.Stop()
	if d.cancel != nil {
		d.cancel()
		d.cancel = nil
	}
	if d.cron != nil {
		d.cron.Stop()
		d.cron = nil
	}
	d.queue.Close()
	d.dispatcher.Wait()
	if d.monitor != nil {
		d.monitor.Wait()
	}
	if err := d.lock.Unlock(); err != nil {
		d.log().Warn("failed to release daemon lock", logging.Error(err))
	}
	d.ctx = nil
	d.running.Store(false)
	d.log().Info("montage daemon stopped")
}

// Close stops the daemon and releases held resources.
func (d *Daemon) Close() error {
	d.Stop()
	if d.store != nil {
		return d.store.Close()
	}
	return nil
}

// APIAddr reports the bound API address, empty when the API is disabled or
// not started.
func (d *Daemon) APIAddr() string {
	return d.apiServer.Addr()
}

// Status reports daemon runtime information.
func (d *Daemon) Status(ctx context.Context) Status {
	status := Status{
		Running:      d.running.Load(),
		StorePath:    d.cfg.DatabasePath(),
		LockFilePath: d.lockPath,
		QueueDriver:  d.cfg.Queue.Driver,
	}
	if counts, err := d.store.Stats(ctx); err == nil {
		status.Jobs = counts
	}
	return status
}

func (d *Daemon) log() *slog.Logger {
	return logging.NewComponentLogger(d.logger, "daemon")
}
