package events

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"scribeq/internal/config"
	"scribeq/internal/logging"
)

// Type names a lifecycle event. Values double as AMQP routing keys.
type Type string

const (
	JobEnqueued  Type = "job.enqueued"
	JobClaimed   Type = "job.claimed"
	JobFinalized Type = "job.finalized"
	JobRequeued  Type = "job.requeued"
	JobReclaimed Type = "job.reclaimed"
)

// Event describes one job state change.
type Event struct {
	Type       Type      `json:"type"`
	JobID      string    `json:"job_id,omitempty"`
	WorkerID   string    `json:"worker_id,omitempty"`
	Status     string    `json:"status,omitempty"`
	Priority   int       `json:"priority,omitempty"`
	Attempts   int       `json:"attempts,omitempty"`
	Error      string    `json:"error,omitempty"`
	Count      int64     `json:"count,omitempty"`
	OccurredAt time.Time `json:"occurred_at"`
}

// WakesWorkers reports whether the event makes new work claimable.
func (e Event) WakesWorkers() bool {
	switch e.Type {
	case JobEnqueued, JobRequeued, JobReclaimed:
		return true
	default:
		return false
	}
}

// Publisher delivers events to a transport.
type Publisher interface {
	Publish(ctx context.Context, evt Event) error
	Close() error
}

// Nop discards every event.
type Nop struct{}

func (Nop) Publish(context.Context, Event) error { return nil }

func (Nop) Close() error { return nil }

// Fanout publishes each event to every publisher and joins their errors.
type Fanout []Publisher

func (f Fanout) Publish(ctx context.Context, evt Event) error {
	if evt.OccurredAt.IsZero() {
		evt.OccurredAt = time.Now().UTC()
	}
	var errs []error
	for _, p := range f {
		if err := p.Publish(ctx, evt); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (f Fanout) Close() error {
	var errs []error
	for _, p := range f {
		if err := p.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// New builds the publisher set described by cfg.Events. Transports that
// fail to connect are logged and skipped so the queue stays usable.
func New(ctx context.Context, cfg *config.Config, logger *slog.Logger) Publisher {
	if cfg == nil {
		return Nop{}
	}
	logger = logging.NewComponentLogger(logger, "events")

	var publishers Fanout
	if cfg.Events.RedisAddr != "" {
		pub, err := NewRedisPublisher(ctx, cfg.Events)
		if err != nil {
			logging.WarnWithContext(logger, "redis publisher unavailable", "events_redis_unavailable",
				logging.String("addr", cfg.Events.RedisAddr),
				logging.Error(err),
				logging.String(logging.FieldErrorHint, "check events.redis_addr and that redis is running"),
				logging.String(logging.FieldImpact, "workers fall back to polling"),
			)
		} else {
			publishers = append(publishers, pub)
		}
	}
	if cfg.Events.AMQPURL != "" {
		pub, err := NewAMQPPublisher(cfg.Events)
		if err != nil {
			logging.WarnWithContext(logger, "amqp publisher unavailable", "events_amqp_unavailable",
				logging.String("exchange", cfg.Events.AMQPExchange),
				logging.Error(err),
				logging.String(logging.FieldErrorHint, "check events.amqp_url and broker credentials"),
				logging.String(logging.FieldImpact, "lifecycle events are not delivered to rabbitmq"),
			)
		} else {
			publishers = append(publishers, pub)
		}
	}

	switch len(publishers) {
	case 0:
		return Nop{}
	case 1:
		return publishers[0]
	default:
		return publishers
	}
}

func publishError(transport string, evt Event, err error) error {
	return fmt.Errorf("publish %s to %s: %w", evt.Type, transport, err)
}
