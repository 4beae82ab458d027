package api

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"time"

	"scribeq/internal/events"
	"scribeq/internal/logging"
	"scribeq/internal/queue"
)

// JobStore abstracts the queue persistence operations the service needs.
type JobStore interface {
	Insert(ctx context.Context, job queue.NewJob) (string, error)
	Get(ctx context.Context, id string) (*queue.Job, error)
	List(ctx context.Context, filter queue.ListFilter) ([]*queue.Job, error)
	Claim(ctx context.Context, workerID string, limit int) ([]*queue.Job, error)
	Finalize(ctx context.Context, id string, outcome queue.Outcome) error
	Requeue(ctx context.Context, id, workerID string) (queue.Status, error)
	Stats(ctx context.Context) (map[queue.Status]int, error)
	CheckHealth(ctx context.Context) (queue.DatabaseHealth, error)
}

// QueueService exposes the job lifecycle operations.
type QueueService struct {
	store  JobStore
	events events.Publisher
	logger *slog.Logger
	now    func() time.Time
}

// ServiceOption customizes a QueueService.
type ServiceOption func(*QueueService)

// WithPublisher sets the lifecycle event publisher.
func WithPublisher(publisher events.Publisher) ServiceOption {
	return func(s *QueueService) {
		if publisher != nil {
			s.events = publisher
		}
	}
}

// WithLogger sets the service logger.
func WithLogger(logger *slog.Logger) ServiceOption {
	return func(s *QueueService) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithClock replaces the clock used to stamp events.
func WithClock(now func() time.Time) ServiceOption {
	return func(s *QueueService) {
		if now != nil {
			s.now = now
		}
	}
}

// NewQueueService constructs a QueueService around the provided store.
func NewQueueService(store JobStore, opts ...ServiceOption) *QueueService {
	if store == nil {
		return nil
	}
	svc := &QueueService{
		store:  store,
		events: events.Nop{},
		logger: logging.NewNop(),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(svc)
	}
	svc.logger = logging.NewComponentLogger(svc.logger, "queue")
	return svc
}

// Enqueue validates req and inserts a new enqueued job.
func (s *QueueService) Enqueue(ctx context.Context, req EnqueueRequest) (string, error) {
	const op = "enqueue job"

	sourceURL := strings.TrimSpace(req.SourceURL)
	if sourceURL == "" {
		return "", invalid(op, "source url is required")
	}
	parsed, err := url.Parse(sourceURL)
	if err != nil {
		return "", invalid(op, "source url: %v", err)
	}
	if !parsed.IsAbs() || (parsed.Host == "" && parsed.Opaque == "" && parsed.Path == "") {
		return "", invalid(op, "source url %q must be absolute", sourceURL)
	}
	if req.Priority < 1 {
		return "", invalid(op, "priority must be at least 1, got %d", req.Priority)
	}
	if req.MaxAttempts < 0 {
		return "", invalid(op, "max attempts must not be negative, got %d", req.MaxAttempts)
	}

	id, err := s.store.Insert(ctx, queue.NewJob{
		SubmitterID: strings.TrimSpace(req.SubmitterID),
		SourceURL:   sourceURL,
		Priority:    req.Priority,
		MaxAttempts: req.MaxAttempts,
	})
	if err != nil {
		return "", err
	}

	s.logger.Info("job enqueued",
		logging.String(logging.FieldEventType, "job_enqueued"),
		logging.JobID(id),
		logging.String(logging.FieldSubmitterID, req.SubmitterID),
		logging.Int("priority", req.Priority),
		logging.String("source_url", sourceURL),
	)
	s.publish(ctx, events.Event{
		Type:     events.JobEnqueued,
		JobID:    id,
		Status:   string(queue.StatusEnqueued),
		Priority: req.Priority,
	})
	return id, nil
}

// Get fetches one job.
func (s *QueueService) Get(ctx context.Context, id string) (*queue.Job, error) {
	if err := requireID("get job", id); err != nil {
		return nil, err
	}
	return s.store.Get(ctx, strings.TrimSpace(id))
}

// Claim moves up to limit enqueued jobs to processing for workerID.
func (s *QueueService) Claim(ctx context.Context, workerID string, limit int) ([]*queue.Job, error) {
	workerID = strings.TrimSpace(workerID)
	jobs, err := s.store.Claim(ctx, workerID, limit)
	if err != nil {
		return nil, err
	}
	if len(jobs) == 0 {
		s.logger.Debug("no jobs to claim",
			logging.WorkerID(workerID),
			logging.Int("limit", limit),
		)
		return jobs, nil
	}

	for _, job := range jobs {
		s.logger.Info("job claimed",
			logging.String(logging.FieldEventType, "job_claimed"),
			logging.JobID(job.ID),
			logging.WorkerID(workerID),
			logging.Int("priority", job.Priority),
			logging.Int("attempt", job.Attempts),
			logging.Int("max_attempts", job.MaxAttempts),
		)
		s.publish(ctx, events.Event{
			Type:     events.JobClaimed,
			JobID:    job.ID,
			WorkerID: workerID,
			Status:   string(job.Status),
			Priority: job.Priority,
			Attempts: job.Attempts,
		})
	}
	return jobs, nil
}

// Finalize records the terminal outcome of a job.
func (s *QueueService) Finalize(ctx context.Context, id string, req FinalizeRequest) error {
	const op = "finalize job"

	if err := requireID(op, id); err != nil {
		return err
	}
	id = strings.TrimSpace(id)
	status, ok := queue.ParseStatus(req.Status)
	if !ok || !status.IsTerminal() {
		return invalid(op, "status must be %s or %s, got %q", queue.StatusSucceeded, queue.StatusFailed, req.Status)
	}
	if req.DurationSeconds != nil && *req.DurationSeconds < 0 {
		return invalid(op, "duration seconds must not be negative")
	}
	if req.SizeBytes != nil && *req.SizeBytes < 0 {
		return invalid(op, "size bytes must not be negative")
	}

	outcome := queue.Outcome{
		Status:          status,
		DurationSeconds: req.DurationSeconds,
		SizeBytes:       req.SizeBytes,
	}
	if status == queue.StatusSucceeded {
		outcome.Transcript = req.Transcript
		outcome.TranscriptFormat = strings.TrimSpace(req.TranscriptFormat)
	} else {
		outcome.Error = req.Error
	}
	if err := s.store.Finalize(ctx, id, outcome); err != nil {
		return err
	}

	attrs := []logging.Attr{
		logging.String(logging.FieldEventType, "job_finalized"),
		logging.JobID(id),
		logging.String("status", string(status)),
	}
	if status == queue.StatusFailed {
		attrs = append(attrs, logging.String("last_error", req.Error))
		s.logger.Warn("job failed", logging.Args(attrs...)...)
	} else {
		attrs = append(attrs, logging.Int("transcript_bytes", len(req.Transcript)))
		s.logger.Info("job succeeded", logging.Args(attrs...)...)
	}
	s.publish(ctx, events.Event{
		Type:   events.JobFinalized,
		JobID:  id,
		Status: string(status),
		Error:  outcome.Error,
	})
	return nil
}

// Requeue hands a processing job held by workerID back to the queue, or
// fails it when it has no attempts left. The resulting status is returned.
func (s *QueueService) Requeue(ctx context.Context, id, workerID string) (queue.Status, error) {
	if err := requireID("requeue job", id); err != nil {
		return "", err
	}
	id = strings.TrimSpace(id)
	workerID = strings.TrimSpace(workerID)
	status, err := s.store.Requeue(ctx, id, workerID)
	if err != nil {
		return "", err
	}

	if status == queue.StatusFailed {
		s.logger.Warn("job failed on requeue",
			logging.String(logging.FieldEventType, "job_attempts_exhausted"),
			logging.JobID(id),
			logging.WorkerID(workerID),
			logging.String("last_error", queue.AttemptsExhaustedReason),
		)
		s.publish(ctx, events.Event{
			Type:     events.JobFinalized,
			JobID:    id,
			WorkerID: workerID,
			Status:   string(status),
			Error:    queue.AttemptsExhaustedReason,
		})
		return status, nil
	}

	s.logger.Info("job requeued",
		logging.String(logging.FieldEventType, "job_requeued"),
		logging.JobID(id),
		logging.WorkerID(workerID),
	)
	s.publish(ctx, events.Event{
		Type:     events.JobRequeued,
		JobID:    id,
		WorkerID: workerID,
		Status:   string(status),
	})
	return status, nil
}

// List returns jobs filtered by status.
func (s *QueueService) List(ctx context.Context, filter queue.ListFilter) ([]*queue.Job, error) {
	if filter.Limit < 0 {
		return nil, invalid("list jobs", "limit must not be negative, got %d", filter.Limit)
	}
	return s.store.List(ctx, filter)
}

// Stats returns queue counts keyed by status string.
func (s *QueueService) Stats(ctx context.Context) (map[string]int, error) {
	stats, err := s.store.Stats(ctx)
	if err != nil {
		return nil, err
	}
	return MergeQueueStats(stats), nil
}

// Health reports database diagnostics and queue counts. The report is
// populated as far as the checks got even when an error is returned.
func (s *QueueService) Health(ctx context.Context) (HealthReport, error) {
	dbHealth, err := s.store.CheckHealth(ctx)
	report := HealthReport{Database: FromDatabaseHealth(dbHealth)}
	if err != nil {
		return report, err
	}
	counts, err := s.Stats(ctx)
	if err != nil {
		return report, err
	}
	report.Counts = counts
	report.Healthy = dbHealth.Reachable && dbHealth.TableExists && dbHealth.IntegrityCheck && dbHealth.Error == ""
	return report, nil
}

func (s *QueueService) publish(ctx context.Context, evt events.Event) {
	if evt.OccurredAt.IsZero() {
		evt.OccurredAt = s.now().UTC()
	}
	if err := s.events.Publish(ctx, evt); err != nil {
		logging.WarnWithContext(s.logger, "event publish failed", "event_publish_failed",
			logging.String("event", string(evt.Type)),
			logging.JobID(evt.JobID),
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "check the events transports"),
			logging.String(logging.FieldImpact, "subscribers miss this transition; the queue is unaffected"),
		)
	}
}

func requireID(op, id string) error {
	if strings.TrimSpace(id) == "" {
		return invalid(op, "job id is required")
	}
	return nil
}

func invalid(op, format string, args ...any) error {
	return &queue.Error{Op: op, Kind: queue.KindInvalidArgument, Err: fmt.Errorf(format, args...)}
}
