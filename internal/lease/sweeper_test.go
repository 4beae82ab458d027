package lease_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"scribeq/internal/events"
	"scribeq/internal/lease"
	"scribeq/internal/queue"
	"scribeq/internal/testsupport"
)

func TestSweepOnceReclaimsExpiredLeases(t *testing.T) {
	cfg := testsupport.NewConfig(t, testsupport.WithMaxAttempts(2))
	cfg.Lease.Timeout = 60
	clock := testsupport.NewClock()
	store := testsupport.MustOpenStore(t, cfg, queue.WithClock(clock.Now))
	recorder := &testsupport.EventRecorder{}
	sweeper := lease.NewSweeper(cfg, store, nil, lease.WithClock(clock.Now), lease.WithPublisher(recorder))
	ctx := context.Background()

	retryID := testsupport.MustEnqueue(t, store, "https://example.com/retry", 2)
	doneID := testsupport.MustEnqueue(t, store, "https://example.com/done", 1)
	if _, err := store.Claim(ctx, "w1", 2); err != nil {
		t.Fatalf("Claim: %v", err)
	}
	if _, err := store.Requeue(ctx, doneID, "w1"); err != nil {
		t.Fatalf("Requeue: %v", err)
	}
	if _, err := store.Requeue(ctx, retryID, "w1"); err != nil {
		t.Fatalf("Requeue: %v", err)
	}
	if _, err := store.Claim(ctx, "w1", 1); err != nil {
		t.Fatalf("Claim: %v", err)
	}
	clock.Advance(10 * time.Second)
	if _, err := store.Claim(ctx, "w1", 1); err != nil {
		t.Fatalf("Claim: %v", err)
	}

	clock.Advance(30 * time.Second)
	result, err := sweeper.SweepOnce(ctx)
	if err != nil {
		t.Fatalf("SweepOnce: %v", err)
	}
	if result.Total() != 0 {
		t.Fatalf("expected no reclaim inside the lease, got %+v", result)
	}

	clock.Advance(time.Minute)
	result, err = sweeper.SweepOnce(ctx)
	if err != nil {
		t.Fatalf("SweepOnce: %v", err)
	}
	if result.Failed != 2 || result.Requeued != 0 {
		t.Fatalf("unexpected sweep result %+v", result)
	}
	for _, id := range []string{retryID, doneID} {
		job, err := store.Get(ctx, id)
		if err != nil {
			t.Fatalf("Get: %v", err)
		}
		if job.Status != queue.StatusFailed || job.LastError != queue.LeaseExpiredReason {
			t.Fatalf("unexpected job after sweep: %+v", job)
		}
	}

	got := recorder.Events()
	if len(got) != 1 || got[0].Type != events.JobReclaimed || got[0].Count != 2 {
		t.Fatalf("unexpected events: %+v", got)
	}
}

func TestSweepOnceRequeuesJobsWithAttemptsLeft(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	cfg.Lease.Timeout = 60
	clock := testsupport.NewClock()
	store := testsupport.MustOpenStore(t, cfg, queue.WithClock(clock.Now))
	sweeper := lease.NewSweeper(cfg, store, nil, lease.WithClock(clock.Now))
	ctx := context.Background()

	id := testsupport.MustEnqueue(t, store, "https://example.com/a", 1)
	if _, err := store.Claim(ctx, "w1", 1); err != nil {
		t.Fatalf("Claim: %v", err)
	}
	clock.Advance(2 * time.Minute)

	result, err := sweeper.SweepOnce(ctx)
	if err != nil {
		t.Fatalf("SweepOnce: %v", err)
	}
	if result.Requeued != 1 {
		t.Fatalf("expected one requeued job, got %+v", result)
	}
	job, err := store.Get(ctx, id)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if job.Status != queue.StatusEnqueued || job.Attempts != 1 || job.WorkerID != "w1" {
		t.Fatalf("unexpected job after sweep: %+v", job)
	}
}

func TestSweeperDisabledWithZeroTimeout(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	cfg.Lease.Timeout = 0
	stub := &stubReclaimer{}
	sweeper := lease.NewSweeper(cfg, stub, nil)
	if sweeper.Enabled() {
		t.Fatal("expected sweeper disabled")
	}
	if _, err := sweeper.SweepOnce(context.Background()); err != nil {
		t.Fatalf("SweepOnce: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	sweeper.Run(ctx)
	if stub.calls != 0 {
		t.Fatalf("expected no reclaim calls, got %d", stub.calls)
	}
}

func TestRunSweepsUntilCancelled(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	cfg.Lease.Timeout = 30
	cfg.Lease.SweepInterval = 1
	stub := &stubReclaimer{err: errors.New("database is locked"), called: make(chan struct{}, 8)}
	sweeper := lease.NewSweeper(cfg, stub, nil)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		sweeper.Run(ctx)
		close(done)
	}()

	select {
	case <-stub.called:
	case <-time.After(5 * time.Second):
		t.Fatal("sweeper never ran")
	}
	cancel()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("sweeper did not stop after cancel")
	}
}

type stubReclaimer struct {
	calls  int
	err    error
	called chan struct{}
}

func (s *stubReclaimer) ReclaimExpired(context.Context, time.Time) (queue.ReclaimResult, error) {
	s.calls++
	if s.called != nil {
		select {
		case s.called <- struct{}{}:
		default:
		}
	}
	return queue.ReclaimResult{}, s.err
}
