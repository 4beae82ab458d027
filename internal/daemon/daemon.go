package daemon

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"sync"
	"sync/atomic"

	"github.com/gofrs/flock"

	"scribeq/internal/api"
	"scribeq/internal/config"
	"scribeq/internal/events"
	"scribeq/internal/lease"
	"scribeq/internal/logging"
	"scribeq/internal/queue"
	"scribeq/internal/worker"
)

// Daemon coordinates the API server, lease sweeper, and optional embedded
// worker, and enforces single-instance execution.
type Daemon struct {
	cfg     *config.Config
	logger  *slog.Logger
	store   *queue.Store
	events  events.Publisher
	service *api.QueueService
	sweeper *lease.Sweeper
	worker  *worker.Loop
	api     *apiServer

	processor  worker.Processor
	workerOpts []worker.Option
	logPath    string

	lockPath string
	lock     *flock.Flock

	running atomic.Bool
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

// Status represents daemon runtime information.
type Status struct {
	Running      bool
	PID          int
	Driver       string
	LockFilePath string
	LogPath      string
	APIAddress   string
	LeaseTimeout string
	Worker       *worker.Status
	QueueStats   map[string]int
	LastError    string
}

// Option customizes a Daemon.
type Option func(*Daemon)

// WithPublisher sets the lifecycle event publisher. The daemon closes it.
func WithPublisher(publisher events.Publisher) Option {
	return func(d *Daemon) {
		if publisher != nil {
			d.events = publisher
		}
	}
}

// WithWorker runs an embedded worker loop with processor alongside the API.
func WithWorker(processor worker.Processor, opts ...worker.Option) Option {
	return func(d *Daemon) {
		d.processor = processor
		d.workerOpts = opts
	}
}

// WithLogPath records the session log file reported by Status.
func WithLogPath(path string) Option {
	return func(d *Daemon) {
		d.logPath = path
	}
}

// New constructs a daemon with initialized dependencies.
func New(cfg *config.Config, store *queue.Store, logger *slog.Logger, opts ...Option) (*Daemon, error) {
	if cfg == nil || store == nil || logger == nil {
		return nil, errors.New("daemon requires config, store, and logger")
	}

	lockPath := cfg.LockPath()
	d := &Daemon{
		cfg:      cfg,
		logger:   logging.NewComponentLogger(logger, "daemon"),
		store:    store,
		events:   events.Nop{},
		lockPath: lockPath,
		lock:     flock.New(lockPath),
	}
	for _, opt := range opts {
		opt(d)
	}
	d.service = api.NewQueueService(store, api.WithPublisher(d.events), api.WithLogger(logger))
	d.sweeper = lease.NewSweeper(cfg, store, logger, lease.WithPublisher(d.events))
	if d.processor != nil {
		d.worker = worker.NewLoop(cfg, d.service, d.processor, logger, d.workerOpts...)
	}
	d.api = newAPIServer(cfg, d, logger)
	return d, nil
}

// Handler returns the HTTP handler serving the API.
func (d *Daemon) Handler() http.Handler {
	return d.api.engine
}

// Start acquires the daemon lock and launches the background services.
func (d *Daemon) Start(ctx context.Context) error {
	if d.running.Load() {
		return errors.New("daemon already running")
	}

	ok, err := d.lock.TryLock()
	if err != nil {
		return fmt.Errorf("acquire lock: %w", err)
	}
	if !ok {
		return errors.New("another scribeqd instance is already running")
	}

	runCtx, cancel := context.WithCancel(ctx)
	if err := d.api.start(runCtx); err != nil {
		cancel()
		_ = d.lock.Unlock()
		return err
	}
	if d.worker != nil {
		if err := d.worker.Start(runCtx); err != nil {
			cancel()
			d.api.stop()
			_ = d.lock.Unlock()
			return fmt.Errorf("start worker: %w", err)
		}
	}

	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		d.sweeper.Run(runCtx)
	}()

	d.cancel = cancel
	d.running.Store(true)
	d.logger.Info("scribeq daemon started",
		logging.String("lock", d.lockPath),
		logging.String("api", d.api.addr()),
		logging.String("driver", d.store.Driver()),
		logging.Bool("embedded_worker", d.worker != nil),
	)
	return nil
}

// Stop stops background processing and releases the daemon lock.
func (d *Daemon) Stop() {
	if !d.running.Load() {
		return
	}

	if d.cancel != nil {
		d.cancel()
		d.cancel = nil
	}
	if d.worker != nil {
		d.worker.Stop()
	}
	d.api.stop()
	d.wg.Wait()
	if err := d.lock.Unlock(); err != nil {
		d.logger.Warn("failed to release daemon lock", logging.Error(err))
	}
	d.running.Store(false)
	d.logger.Info("scribeq daemon stopped")
}

// Close releases resources held by the daemon.
func (d *Daemon) Close() error {
	d.Stop()
	var errs []error
	if d.events != nil {
		if err := d.events.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close events: %w", err))
		}
	}
	if d.store != nil {
		if err := d.store.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close store: %w", err))
		}
	}
	return errors.Join(errs...)
}

// Status returns the current daemon status.
func (d *Daemon) Status(ctx context.Context) Status {
	status := Status{
		Running:      d.running.Load(),
		PID:          os.Getpid(),
		Driver:       d.store.Driver(),
		LockFilePath: d.lockPath,
		LogPath:      d.logPath,
		APIAddress:   d.api.addr(),
	}
	if d.sweeper.Enabled() {
		status.LeaseTimeout = d.sweeper.Timeout().String()
	}
	if d.worker != nil {
		ws := d.worker.Status()
		status.Worker = &ws
	}
	stats, err := d.service.Stats(ctx)
	if err != nil {
		d.logger.Warn("failed to read queue stats", logging.Error(err))
		status.LastError = err.Error()
	}
	status.QueueStats = stats
	return status
}
