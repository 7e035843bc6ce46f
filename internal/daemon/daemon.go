package daemon

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"sync/atomic"

	"github.com/gofrs/flock"

	"mediapress/internal/admission"
	"mediapress/internal/config"
	"mediapress/internal/events"
	"mediapress/internal/logging"
	"mediapress/internal/maintenance"
	"mediapress/internal/objectstore"
	"mediapress/internal/pipeline"
	"mediapress/internal/stages"
	"mediapress/internal/status"
	"mediapress/internal/statuscache"
	"mediapress/internal/tasks"
)

// Daemon coordinates the background services and enforces single-instance
// execution.
type Daemon struct {
	cfg    *config.Config
	logger *slog.Logger

	store      *tasks.Store
	registry   *pipeline.Registry
	dispatcher *pipeline.Dispatcher
	controller *admission.Controller
	publisher  *status.Publisher
	sweeper    *maintenance.Sweeper
	reporter   *maintenance.Reporter
	broker     events.Publisher
	cache      *statuscache.Cache
	api        *apiServer

	lockPath string
	lock     *flock.Flock

	running atomic.Bool
	cancel  context.CancelFunc
}

// Status reports daemon runtime information.
type Status struct {
	Running      bool
	TaskDBPath   string
	LockFilePath string
	Tasks        map[tasks.Status]int
}

// New builds the daemon and all its collaborators from configuration.
func New(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Daemon, error) {
	if cfg == nil {
		return nil, errors.New("daemon requires config")
	}
	if logger == nil {
		logger = logging.NewNop()
	}
	if err := cfg.EnsureDirectories(); err != nil {
		return nil, err
	}

	store, err := tasks.Open(cfg)
	if err != nil {
		return nil, fmt.Errorf("open task store: %w", err)
	}

	cache, err := statuscache.New(ctx, cfg)
	if err != nil {
		store.Close()
		return nil, err
	}
	broker, err := events.New(cfg, logging.NewComponentLogger(logger, "events"))
	if err != nil {
		cache.Close()
		store.Close()
		return nil, err
	}
	uploader, err := objectstore.New(ctx, cfg)
	if err != nil {
		broker.Close()
		cache.Close()
		store.Close()
		return nil, err
	}

	// Keep the interface nil when storage is disabled so publish falls back
	// to local paths without logging upload failures.
	var stageUploader objectstore.Uploader
	if uploader != nil {
		stageUploader = uploader
	}

	registry := pipeline.NewRegistry(cache, logging.NewComponentLogger(logger, "registry"))
	library := stages.NewLibrary(cfg, stageUploader, logging.NewComponentLogger(logger, "stages"))
	runner := pipeline.NewRunner(cfg, store, library, registry, broker,
		logging.NewComponentLogger(logger, "runner"))
	dispatcher := pipeline.NewDispatcher(cfg, store, runner,
		logging.NewComponentLogger(logger, "dispatcher"))
	controller := admission.NewController(cfg, store, dispatcher, broker,
		logging.NewComponentLogger(logger, "admission"))
	publisher := status.NewPublisher(cfg, store, registry,
		logging.NewComponentLogger(logger, "status"))

	lockPath := filepath.Join(cfg.Paths.LogDir, "mediapressd.lock")
	d := &Daemon{
		cfg:        cfg,
		logger:     logger,
		store:      store,
		registry:   registry,
		dispatcher: dispatcher,
		controller: controller,
		publisher:  publisher,
		sweeper:    maintenance.NewSweeper(cfg, logging.NewComponentLogger(logger, "sweeper")),
		reporter:   maintenance.NewReporter(cfg, store, logging.NewComponentLogger(logger, "reporter")),
		broker:     broker,
		cache:      cache,
		lockPath:   lockPath,
		lock:       flock.New(lockPath),
	}
	d.api = newAPIServer(cfg, d, logging.NewComponentLogger(logger, "api"))
	return d, nil
}

// Start acquires the lock, recovers interrupted work, and launches the
// worker pool, maintenance jobs, and HTTP API.
func (d *Daemon) Start(ctx context.Context) error {
	if d.running.Load() {
		return errors.New("daemon already running")
	}

	ok, err := d.lock.TryLock()
	if err != nil {
		return fmt.Errorf("acquire lock: %w", err)
	}
	if !ok {
		return errors.New("another mediapress daemon instance is already running")
	}

	runCtx, cancel := context.WithCancel(ctx)
	d.cancel = cancel

	d.dispatcher.Start(runCtx)
	if err := d.dispatcher.Recover(runCtx); err != nil {
		d.logger.Error("startup recovery failed", "error", err)
	}
	go d.sweeper.Run(runCtx)
	go d.reporter.Run(runCtx)

	if err := d.api.start(runCtx); err != nil {
		cancel()
		d.cancel = nil
		_ = d.lock.Unlock()
		return err
	}

	d.running.Store(true)
	d.logger.Info("mediapress daemon started", "lock", d.lockPath)
	return nil
}

// Stop halts background processing and releases the lock.
func (d *Daemon) Stop() {
	if !d.running.Load() {
		return
	}

	if d.cancel != nil {
		d.cancel()
		d.cancel = nil
	}
	d.api.stop()
	d.dispatcher.Stop()
	if err := d.lock.Unlock(); err != nil {
		d.logger.Warn("failed to release daemon lock", "error", err)
	}
	d.running.Store(false)
	d.logger.Info("mediapress daemon stopped")
}

// Close releases all resources held by the daemon.
func (d *Daemon) Close() error {
	d.Stop()
	if err := d.broker.Close(); err != nil {
		d.logger.Warn("event broker close failed", "error", err)
	}
	if err := d.cache.Close(); err != nil {
		d.logger.Warn("status cache close failed", "error", err)
	}
	return d.store.Close()
}

// Status summarizes the daemon runtime state.
func (d *Daemon) Status(ctx context.Context) Status {
	counts, err := d.store.Stats(ctx)
	if err != nil {
		d.logger.Warn("task stats unavailable", "error", err)
	}
	return Status{
		Running:      d.running.Load(),
		TaskDBPath:   d.store.Path(),
		LockFilePath: d.lockPath,
		Tasks:        counts,
	}
}

// APIAddr returns the bound API address, empty until Start.
func (d *Daemon) APIAddr() string {
	return d.api.addr()
}
