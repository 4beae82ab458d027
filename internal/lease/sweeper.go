package lease

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"scribeq/internal/config"
	"scribeq/internal/events"
	"scribeq/internal/logging"
	"scribeq/internal/queue"
)

// Reclaimer is the store operation the sweeper drives.
type Reclaimer interface {
	ReclaimExpired(ctx context.Context, cutoff time.Time) (queue.ReclaimResult, error)
}

// Sweeper periodically reclaims jobs whose lease expired.
type Sweeper struct {
	store    Reclaimer
	events   events.Publisher
	logger   *slog.Logger
	timeout  time.Duration
	interval time.Duration
	now      func() time.Time
}

// Option customizes a Sweeper.
type Option func(*Sweeper)

// WithClock replaces the clock used to compute the lease cutoff.
func WithClock(now func() time.Time) Option {
	return func(s *Sweeper) {
		if now != nil {
			s.now = now
		}
	}
}

// WithPublisher sets the publisher notified after a sweep moves jobs.
func WithPublisher(publisher events.Publisher) Option {
	return func(s *Sweeper) {
		if publisher != nil {
			s.events = publisher
		}
	}
}

// NewSweeper creates a sweeper from the lease section of cfg.
func NewSweeper(cfg *config.Config, store Reclaimer, logger *slog.Logger, opts ...Option) *Sweeper {
	if logger == nil {
		logger = logging.NewNop()
	}
	s := &Sweeper{
		store:    store,
		events:   events.Nop{},
		logger:   logging.NewComponentLogger(logger, "lease-sweeper"),
		timeout:  time.Duration(cfg.Lease.Timeout) * time.Second,
		interval: time.Duration(cfg.Lease.SweepInterval) * time.Second,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Enabled reports whether a lease timeout is configured.
func (s *Sweeper) Enabled() bool {
	return s != nil && s.timeout > 0 && s.interval > 0
}

// Timeout returns the configured lease duration.
func (s *Sweeper) Timeout() time.Duration {
	return s.timeout
}

// SweepOnce reclaims every job whose lease started before now minus the
// lease timeout.
func (s *Sweeper) SweepOnce(ctx context.Context) (queue.ReclaimResult, error) {
	if s.timeout <= 0 {
		return queue.ReclaimResult{}, nil
	}
	now := s.now().UTC()
	cutoff := now.Add(-s.timeout)
	result, err := s.store.ReclaimExpired(ctx, cutoff)
	if err != nil {
		return queue.ReclaimResult{}, err
	}
	if result.Total() == 0 {
		return result, nil
	}

	s.logger.Info("reclaimed expired leases",
		logging.String(logging.FieldEventType, "lease_reclaimed"),
		logging.Int64("requeued", result.Requeued),
		logging.Int64("failed", result.Failed),
		logging.Duration("lease_timeout", s.timeout),
	)
	if result.Failed > 0 {
		logging.WarnWithContext(s.logger, "leases expired with no attempts left", "lease_exhausted",
			logging.Int64("count", result.Failed),
			logging.Alert("jobs_failed"),
			logging.String(logging.FieldErrorHint, "check worker logs for crashes or raise lease.timeout"),
			logging.String(logging.FieldImpact, "jobs marked failed with \""+queue.LeaseExpiredReason+"\""),
		)
	}
	evt := events.Event{
		Type:       events.JobReclaimed,
		Count:      result.Total(),
		OccurredAt: now,
	}
	if err := s.events.Publish(ctx, evt); err != nil {
		s.logger.Warn("reclaim event publish failed", logging.Error(err))
	}
	return result, nil
}

// Run sweeps on every interval until ctx is cancelled. Sweep errors are
// logged and the loop continues.
func (s *Sweeper) Run(ctx context.Context) {
	if !s.Enabled() {
		s.logger.Info("lease sweeper disabled")
		return
	}
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	s.logger.Info("lease sweeper started",
		logging.Duration("lease_timeout", s.timeout),
		logging.Duration("sweep_interval", s.interval),
	)
	s.sweep(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.sweep(ctx)
		}
	}
}

func (s *Sweeper) sweep(ctx context.Context) {
	if _, err := s.SweepOnce(ctx); err != nil {
		if errors.Is(err, context.Canceled) {
			s.logger.Info("daemon shutting down, lease sweep cancelled")
			return
		}
		logging.WarnWithContext(s.logger, "lease sweep failed", "lease_sweep_failed",
			logging.Error(err),
			logging.String(logging.FieldErrorKind, string(queue.KindOf(err))),
			logging.String(logging.FieldErrorHint, "check database connectivity"),
		)
	}
}
