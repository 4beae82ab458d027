package events

import (
	"context"
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
)

type fakeAMQPChannel struct {
	mu        sync.Mutex
	published []string
	notify    chan *amqp.Error
	closed    bool
	failWith  error
}

func (c *fakeAMQPChannel) PublishWithContext(_ context.Context, _, key string, _, _ bool, _ amqp.Publishing) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.failWith != nil {
		return c.failWith
	}
	c.published = append(c.published, key)
	return nil
}

func (c *fakeAMQPChannel) NotifyClose(receiver chan *amqp.Error) chan *amqp.Error {
	c.notify = receiver
	return receiver
}

func (c *fakeAMQPChannel) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	return nil
}

// brokerDrop simulates the server closing the channel.
func (c *fakeAMQPChannel) brokerDrop() {
	c.notify <- &amqp.Error{Code: amqp.ConnectionForced, Reason: "broker restarted"}
	close(c.notify)
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }

type fakeBroker struct {
	channels []*fakeAMQPChannel
	down     bool
	dials    int
}

func (b *fakeBroker) dial() (amqpChannel, io.Closer, error) {
	b.dials++
	if b.down {
		return nil, nil, errors.New("connection refused")
	}
	ch := &fakeAMQPChannel{}
	b.channels = append(b.channels, ch)
	return ch, nopCloser{}, nil
}

func TestAMQPPublisherRedialsAfterChannelClose(t *testing.T) {
	broker := &fakeBroker{}
	pub := newAMQPPublisher("scribeq.jobs", broker.dial)
	ctx := context.Background()

	if err := pub.Publish(ctx, Event{Type: JobEnqueued, JobID: "a"}); err != nil {
		t.Fatalf("first publish: %v", err)
	}
	broker.channels[0].brokerDrop()

	if err := pub.Publish(ctx, Event{Type: JobClaimed, JobID: "a"}); err != nil {
		t.Fatalf("publish after drop: %v", err)
	}
	if broker.dials != 2 || len(broker.channels) != 2 {
		t.Fatalf("expected a re-dial, got %d dials", broker.dials)
	}
	if got := broker.channels[1].published; len(got) != 1 || got[0] != string(JobClaimed) {
		t.Fatalf("expected claim on new channel, got %v", got)
	}
	if !broker.channels[0].closed {
		t.Fatal("expected dropped channel to be closed")
	}
}

func TestAMQPPublisherBacksOffWhileBrokerDown(t *testing.T) {
	broker := &fakeBroker{}
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	pub := newAMQPPublisher("scribeq.jobs", broker.dial)
	pub.now = func() time.Time { return now }
	ctx := context.Background()

	if err := pub.Publish(ctx, Event{Type: JobEnqueued}); err != nil {
		t.Fatalf("first publish: %v", err)
	}
	broker.down = true
	broker.channels[0].brokerDrop()

	if err := pub.Publish(ctx, Event{Type: JobClaimed}); err == nil {
		t.Fatal("expected publish to fail while broker is down")
	}
	if err := pub.Publish(ctx, Event{Type: JobClaimed}); err == nil {
		t.Fatal("expected publish to fail during backoff")
	}
	if broker.dials != 2 {
		t.Fatalf("expected no re-dial inside the backoff window, got %d dials", broker.dials)
	}

	broker.down = false
	now = now.Add(amqpRedialDelay)
	if err := pub.Publish(ctx, Event{Type: JobFinalized}); err != nil {
		t.Fatalf("publish after recovery: %v", err)
	}
	if broker.dials != 3 {
		t.Fatalf("expected re-dial after backoff, got %d dials", broker.dials)
	}
}

func TestAMQPPublisherDropsClosedChannelOnPublishError(t *testing.T) {
	broker := &fakeBroker{}
	pub := newAMQPPublisher("scribeq.jobs", broker.dial)
	ctx := context.Background()

	if err := pub.Publish(ctx, Event{Type: JobEnqueued}); err != nil {
		t.Fatalf("first publish: %v", err)
	}
	broker.channels[0].failWith = amqp.ErrClosed
	if err := pub.Publish(ctx, Event{Type: JobClaimed}); !errors.Is(err, amqp.ErrClosed) {
		t.Fatalf("expected ErrClosed, got %v", err)
	}
	if err := pub.Publish(ctx, Event{Type: JobClaimed}); err != nil {
		t.Fatalf("publish after re-dial: %v", err)
	}
	if broker.dials != 2 {
		t.Fatalf("expected one re-dial, got %d", broker.dials)
	}
	if err := pub.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
}
