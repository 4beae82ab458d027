package worker

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"time"

	"scribeq/internal/api"
	"scribeq/internal/config"
	"scribeq/internal/logging"
	"scribeq/internal/queue"
)

// shutdownGrace bounds the store writes made after the loop context ends.
const shutdownGrace = 10 * time.Second

// JobService is the subset of api.QueueService the loop drives.
type JobService interface {
	Claim(ctx context.Context, workerID string, limit int) ([]*queue.Job, error)
	Finalize(ctx context.Context, id string, req api.FinalizeRequest) error
	Requeue(ctx context.Context, id, workerID string) (queue.Status, error)
}

// Loop claims and processes jobs until stopped.
type Loop struct {
	id            string
	service       JobService
	processor     Processor
	logger        *slog.Logger
	batchSize     int
	pollInterval  time.Duration
	retryInterval time.Duration
	jobTimeout    time.Duration
	wakeups       <-chan struct{}

	mu        sync.RWMutex
	running   bool
	cancel    context.CancelFunc
	wg        sync.WaitGroup
	lastErr   error
	lastJobID string
	succeeded int
	failed    int
}

// Option customizes a Loop.
type Option func(*Loop)

// WithWakeups lets the loop stop waiting as soon as work may be available.
func WithWakeups(ch <-chan struct{}) Option {
	return func(l *Loop) {
		l.wakeups = ch
	}
}

// WithID overrides the configured worker identity.
func WithID(id string) Option {
	return func(l *Loop) {
		if strings.TrimSpace(id) != "" {
			l.id = strings.TrimSpace(id)
		}
	}
}

// NewLoop constructs a worker loop from the worker section of cfg.
func NewLoop(cfg *config.Config, service JobService, processor Processor, logger *slog.Logger, opts ...Option) *Loop {
	if logger == nil {
		logger = logging.NewNop()
	}
	l := &Loop{
		id:            ResolveID(cfg.Worker.ID),
		service:       service,
		processor:     processor,
		batchSize:     cfg.Worker.BatchSize,
		pollInterval:  time.Duration(cfg.Worker.PollInterval) * time.Second,
		retryInterval: time.Duration(cfg.Worker.ErrorRetryInterval) * time.Second,
		jobTimeout:    time.Duration(cfg.Worker.JobTimeout) * time.Second,
	}
	for _, opt := range opts {
		opt(l)
	}
	if l.batchSize <= 0 {
		l.batchSize = 1
	}
	l.logger = logging.NewComponentLogger(logger, "worker").With(logging.WorkerID(l.id))
	return l
}

// ID returns the identity the loop claims jobs under.
func (l *Loop) ID() string {
	return l.id
}

// Start begins background processing.
func (l *Loop) Start(ctx context.Context) error {
	l.mu.Lock()
	if l.running {
		l.mu.Unlock()
		return errors.New("worker already running")
	}
	if l.service == nil || l.processor == nil {
		l.mu.Unlock()
		return errors.New("worker requires a job service and a processor")
	}
	runCtx, cancel := context.WithCancel(ctx)
	l.cancel = cancel
	l.running = true
	l.wg.Add(1)
	l.mu.Unlock()

	go func() {
		defer l.wg.Done()
		l.run(runCtx)
	}()
	return nil
}

// Stop terminates processing and waits for claimed jobs to be handed back.
func (l *Loop) Stop() {
	l.mu.Lock()
	if !l.running {
		l.mu.Unlock()
		return
	}
	cancel := l.cancel
	l.running = false
	l.cancel = nil
	l.mu.Unlock()

	cancel()
	l.wg.Wait()
}

// Run processes jobs until ctx is cancelled.
func (l *Loop) Run(ctx context.Context) error {
	if err := l.Start(ctx); err != nil {
		return err
	}
	<-ctx.Done()
	l.Stop()
	return nil
}

func (l *Loop) run(ctx context.Context) {
	l.logger.Info("worker started",
		logging.Int("batch_size", l.batchSize),
		logging.Duration("poll_interval", l.pollInterval),
		logging.Duration("job_timeout", l.jobTimeout),
	)
	defer l.logger.Info("worker stopped")

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		jobs, err := l.service.Claim(ctx, l.id, l.batchSize)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			l.handleClaimError(ctx, err)
			continue
		}
		if len(jobs) == 0 {
			l.waitForWork(ctx)
			continue
		}

		for i, job := range jobs {
			if ctx.Err() != nil {
				l.requeueUnstarted(jobs[i:])
				return
			}
			l.processJob(ctx, job)
		}
	}
}

func (l *Loop) processJob(ctx context.Context, job *queue.Job) {
	logger := l.logger.With(logging.JobID(job.ID))
	jobCtx := logging.WithJobID(logging.WithWorkerID(ctx, l.id), job.ID)
	var cancel context.CancelFunc
	if l.jobTimeout > 0 {
		jobCtx, cancel = context.WithTimeout(jobCtx, l.jobTimeout)
	} else {
		jobCtx, cancel = context.WithCancel(jobCtx)
	}
	defer cancel()

	started := time.Now()
	logger.Info("job started",
		logging.String(logging.FieldEventType, "job_started"),
		logging.String("source_url", job.SourceURL),
		logging.Int("attempt", job.Attempts),
		logging.Int("max_attempts", job.MaxAttempts),
	)
	result, procErr := l.processor.Process(jobCtx, job)

	// Finalize and requeue must land even while shutting down.
	writeCtx, writeCancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownGrace)
	defer writeCancel()

	if procErr != nil && ctx.Err() != nil {
		logger.Info("job interrupted by shutdown, requeueing", logging.Error(procErr))
		l.requeue(writeCtx, logger, job)
		return
	}

	req := api.FinalizeRequest{Status: string(queue.StatusSucceeded)}
	if procErr != nil {
		req = api.FinalizeRequest{Status: string(queue.StatusFailed), Error: procErr.Error()}
		logging.WarnWithContext(logger, "job processing failed", "job_process_failed",
			logging.Error(procErr),
			logging.Duration("elapsed", time.Since(started)),
			logging.String(logging.FieldErrorHint, "check the worker command output for this source"),
			logging.String(logging.FieldImpact, "job marked failed"),
		)
	} else {
		req.Transcript = result.Transcript
		req.TranscriptFormat = result.Format
		req.DurationSeconds = result.DurationSeconds
		req.SizeBytes = result.SizeBytes
		logger.Info("job processed",
			logging.String(logging.FieldEventType, "job_processed"),
			logging.Duration("elapsed", time.Since(started)),
			logging.Int("transcript_bytes", len(result.Transcript)),
		)
	}

	if err := l.service.Finalize(writeCtx, job.ID, req); err != nil {
		l.setLastError(err)
		logging.ErrorWithContext(logger, "failed to finalize job", "job_finalize_failed",
			logging.Error(err),
			logging.String(logging.FieldErrorKind, string(queue.KindOf(err))),
			logging.String(logging.FieldErrorHint, "check queue database access"),
			logging.String(logging.FieldImpact, "the lease sweeper will reclaim the job"),
		)
		return
	}
	l.recordOutcome(job.ID, procErr)
}

func (l *Loop) requeueUnstarted(jobs []*queue.Job) {
	if len(jobs) == 0 {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
	defer cancel()
	for _, job := range jobs {
		l.requeue(ctx, l.logger.With(logging.JobID(job.ID)), job)
	}
}

func (l *Loop) requeue(ctx context.Context, logger *slog.Logger, job *queue.Job) {
	status, err := l.service.Requeue(ctx, job.ID, l.id)
	if err != nil {
		logging.WarnWithContext(logger, "failed to requeue job on shutdown", "job_requeue_failed",
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "the lease sweeper will reclaim the job"),
		)
		return
	}
	logger.Info("job handed back", logging.String("status", string(status)))
}

func (l *Loop) handleClaimError(ctx context.Context, err error) {
	l.setLastError(err)
	logging.ErrorWithContext(l.logger, "failed to claim jobs", "queue_claim_failed",
		logging.Error(err),
		logging.String(logging.FieldErrorKind, string(queue.KindOf(err))),
		logging.String(logging.FieldErrorHint, "check queue database access"),
	)
	select {
	case <-ctx.Done():
	case <-time.After(l.retryInterval):
	}
}

func (l *Loop) waitForWork(ctx context.Context) {
	timer := time.NewTimer(l.pollInterval)
	defer timer.Stop()
	select {
	case <-ctx.Done():
	case <-timer.C:
	case <-l.wakeups:
		l.logger.Debug("woken by queue event")
	}
}

// Status reports the loop's recent activity.
type Status struct {
	WorkerID  string
	Running   bool
	LastError string
	LastJobID string
	Succeeded int
	Failed    int
}

// Status returns the latest loop information.
func (l *Loop) Status() Status {
	l.mu.RLock()
	defer l.mu.RUnlock()
	status := Status{
		WorkerID:  l.id,
		Running:   l.running,
		LastJobID: l.lastJobID,
		Succeeded: l.succeeded,
		Failed:    l.failed,
	}
	if l.lastErr != nil {
		status.LastError = l.lastErr.Error()
	}
	return status
}

func (l *Loop) setLastError(err error) {
	l.mu.Lock()
	l.lastErr = err
	l.mu.Unlock()
}

func (l *Loop) recordOutcome(jobID string, procErr error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.lastJobID = jobID
	if procErr != nil {
		l.failed++
		l.lastErr = procErr
		return
	}
	l.succeeded++
}
