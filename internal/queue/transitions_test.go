package queue_test

import (
	"context"
	"testing"
	"time"

	"scribeq/internal/queue"
	"scribeq/internal/testsupport"
)

func TestRequeueFailsExhaustedJob(t *testing.T) {
	cfg := testsupport.NewConfig(t, testsupport.WithMaxAttempts(1))
	store := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()

	id := testsupport.MustEnqueue(t, store, "https://example.com/a", 1)
	if _, err := store.Claim(ctx, "w1", 1); err != nil {
		t.Fatalf("Claim failed: %v", err)
	}

	status, err := store.Requeue(ctx, id, "w1")
	if err != nil {
		t.Fatalf("Requeue failed: %v", err)
	}
	if status != queue.StatusFailed {
		t.Fatalf("expected failed, got %s", status)
	}
	job, err := store.Get(ctx, id)
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if job.Status != queue.StatusFailed || job.LastError != queue.AttemptsExhaustedReason || job.FinishedAt == nil {
		t.Fatalf("unexpected exhausted job: %#v", job)
	}
}

func TestRequeueRejectsNonProcessingJobs(t *testing.T) {
	store := testsupport.MustOpenStore(t, testsupport.NewConfig(t))
	ctx := context.Background()

	id := testsupport.MustEnqueue(t, store, "https://example.com/a", 1)
	if _, err := store.Requeue(ctx, id, "w1"); queue.KindOf(err) != queue.KindInvalidArgument {
		t.Fatalf("expected invalid_argument for enqueued job, got %v", err)
	}

	if err := store.Finalize(ctx, id, queue.Outcome{Status: queue.StatusFailed, Error: "x"}); err != nil {
		t.Fatalf("Finalize failed: %v", err)
	}
	if _, err := store.Requeue(ctx, id, "w1"); queue.KindOf(err) != queue.KindInvalidArgument {
		t.Fatalf("expected invalid_argument for terminal job, got %v", err)
	}

	if _, err := store.Requeue(ctx, "missing", "w1"); !queue.IsNotFound(err) {
		t.Fatalf("expected not_found, got %v", err)
	}
}

func TestReclaimExpired(t *testing.T) {
	cfg := testsupport.NewConfig(t, testsupport.WithMaxAttempts(2))
	clock := testsupport.NewClock()
	store := testsupport.MustOpenStore(t, cfg, queue.WithClock(clock.Now))
	ctx := context.Background()

	stale := testsupport.MustEnqueue(t, store, "https://example.com/stale", 3)
	exhausted := testsupport.MustEnqueue(t, store, "https://example.com/exhausted", 2)
	execRaw(t, cfg.DatabaseDSN(), "UPDATE transcription_jobs SET attempts = 1 WHERE id = ?", exhausted)
	if jobs, err := store.Claim(ctx, "w1", 2); err != nil || len(jobs) != 2 {
		t.Fatalf("Claim failed: %v (%d jobs)", err, len(jobs))
	}

	clock.Advance(10 * time.Minute)
	fresh := testsupport.MustEnqueue(t, store, "https://example.com/fresh", 1)
	if jobs, err := store.Claim(ctx, "w2", 1); err != nil || len(jobs) != 1 || jobs[0].ID != fresh {
		t.Fatalf("Claim fresh failed: %v", err)
	}

	cutoff := clock.Now().Add(-5 * time.Minute)
	result, err := store.ReclaimExpired(ctx, cutoff)
	if err != nil {
		t.Fatalf("ReclaimExpired failed: %v", err)
	}
	if result.Requeued != 1 || result.Failed != 1 || result.Total() != 2 {
		t.Fatalf("unexpected reclaim result: %+v", result)
	}

	job, err := store.Get(ctx, stale)
	if err != nil {
		t.Fatalf("Get stale failed: %v", err)
	}
	if job.Status != queue.StatusEnqueued || job.Attempts != 1 || job.WorkerID != "w1" {
		t.Fatalf("unexpected requeued job: %#v", job)
	}

	job, err = store.Get(ctx, exhausted)
	if err != nil {
		t.Fatalf("Get exhausted failed: %v", err)
	}
	if job.Status != queue.StatusFailed || job.LastError != queue.LeaseExpiredReason {
		t.Fatalf("unexpected failed job: %#v", job)
	}

	job, err = store.Get(ctx, fresh)
	if err != nil {
		t.Fatalf("Get fresh failed: %v", err)
	}
	if job.Status != queue.StatusProcessing {
		t.Fatalf("expected fresh lease untouched, got %s", job.Status)
	}
}

func TestRequeueRejectsStaleHolder(t *testing.T) {
	cfg := testsupport.NewConfig(t, testsupport.WithMaxAttempts(5))
	clock := testsupport.NewClock()
	store := testsupport.MustOpenStore(t, cfg, queue.WithClock(clock.Now))
	ctx := context.Background()

	id := testsupport.MustEnqueue(t, store, "https://example.com/a", 1)
	if jobs, err := store.Claim(ctx, "w1", 1); err != nil || len(jobs) != 1 {
		t.Fatalf("Claim w1 failed: %v", err)
	}
	clock.Advance(time.Hour)
	if _, err := store.ReclaimExpired(ctx, clock.Now().Add(-time.Minute)); err != nil {
		t.Fatalf("ReclaimExpired failed: %v", err)
	}
	if jobs, err := store.Claim(ctx, "w2", 1); err != nil || len(jobs) != 1 || jobs[0].ID != id {
		t.Fatalf("Claim w2 failed: %v", err)
	}

	if _, err := store.Requeue(ctx, id, "w1"); queue.KindOf(err) != queue.KindInvalidArgument {
		t.Fatalf("expected invalid_argument for stale holder, got %v", err)
	}
	job, err := store.Get(ctx, id)
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if job.Status != queue.StatusProcessing || job.WorkerID != "w2" || job.Attempts != 2 {
		t.Fatalf("stale requeue changed the job: %#v", job)
	}
	jobs, err := store.Claim(ctx, "w3", 1)
	if err != nil {
		t.Fatalf("Claim w3 failed: %v", err)
	}
	if len(jobs) != 0 {
		t.Fatalf("job held by w2 was claimed again: %#v", jobs)
	}

	status, err := store.Requeue(ctx, id, "w2")
	if err != nil || status != queue.StatusEnqueued {
		t.Fatalf("Requeue by holder: status=%s err=%v", status, err)
	}
}

func TestRequeueRequiresWorkerID(t *testing.T) {
	store := testsupport.MustOpenStore(t, testsupport.NewConfig(t))
	ctx := context.Background()

	id := testsupport.MustEnqueue(t, store, "https://example.com/a", 1)
	if _, err := store.Claim(ctx, "w1", 1); err != nil {
		t.Fatalf("Claim failed: %v", err)
	}
	if _, err := store.Requeue(ctx, id, " "); queue.KindOf(err) != queue.KindInvalidArgument {
		t.Fatalf("expected invalid_argument, got %v", err)
	}
}

func TestExhaustedJobsRetryWithoutAttemptLimit(t *testing.T) {
	cfg := testsupport.NewConfig(t, testsupport.WithMaxAttempts(1), testsupport.WithoutAttemptLimit())
	clock := testsupport.NewClock()
	store := testsupport.MustOpenStore(t, cfg, queue.WithClock(clock.Now))
	ctx := context.Background()

	requeued := testsupport.MustEnqueue(t, store, "https://example.com/requeue", 2)
	expired := testsupport.MustEnqueue(t, store, "https://example.com/expired", 1)
	if jobs, err := store.Claim(ctx, "w1", 2); err != nil || len(jobs) != 2 {
		t.Fatalf("Claim failed: %v", err)
	}

	status, err := store.Requeue(ctx, requeued, "w1")
	if err != nil {
		t.Fatalf("Requeue failed: %v", err)
	}
	if status != queue.StatusEnqueued {
		t.Fatalf("expected enqueued without attempt limit, got %s", status)
	}

	clock.Advance(time.Hour)
	result, err := store.ReclaimExpired(ctx, clock.Now().Add(-time.Minute))
	if err != nil {
		t.Fatalf("ReclaimExpired failed: %v", err)
	}
	if result.Requeued != 1 || result.Failed != 0 {
		t.Fatalf("unexpected reclaim result: %+v", result)
	}
	job, err := store.Get(ctx, expired)
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if job.Status != queue.StatusEnqueued {
		t.Fatalf("expected expired lease requeued, got %s", job.Status)
	}
}
