package queue_test

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"scribeq/internal/queue"
	"scribeq/internal/testsupport"
)

func TestClaimOrdersByPriority(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	clock := testsupport.NewClock()
	store := testsupport.MustOpenStore(t, cfg, queue.WithClock(clock.Now))

	for _, priority := range []int{1, 5, 3} {
		testsupport.MustEnqueue(t, store, fmt.Sprintf("https://example.com/p%d", priority), priority)
		clock.Advance(time.Second)
	}

	jobs, err := store.Claim(context.Background(), "w1", 3)
	if err != nil {
		t.Fatalf("Claim failed: %v", err)
	}
	if len(jobs) != 3 {
		t.Fatalf("expected 3 jobs, got %d", len(jobs))
	}
	for i, want := range []int{5, 3, 1} {
		if jobs[i].Priority != want {
			t.Fatalf("position %d: expected priority %d, got %d", i, want, jobs[i].Priority)
		}
	}
}

func TestClaimBreaksTiesByArrival(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	clock := testsupport.NewClock()
	store := testsupport.MustOpenStore(t, cfg, queue.WithClock(clock.Now))

	first := testsupport.MustEnqueue(t, store, "https://example.com/t1", 2)
	clock.Advance(time.Millisecond)
	second := testsupport.MustEnqueue(t, store, "https://example.com/t2", 2)

	ctx := context.Background()
	jobs, err := store.Claim(ctx, "w1", 1)
	if err != nil {
		t.Fatalf("Claim failed: %v", err)
	}
	if len(jobs) != 1 || jobs[0].ID != first {
		t.Fatalf("expected first job %s, got %v", first, jobIDs(jobs))
	}

	jobs, err = store.Claim(ctx, "w1", 1)
	if err != nil {
		t.Fatalf("Claim failed: %v", err)
	}
	if len(jobs) != 1 || jobs[0].ID != second {
		t.Fatalf("expected second job %s, got %v", second, jobIDs(jobs))
	}
}

func TestClaimSameTickFallsBackToSubmissionOrder(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	clock := testsupport.NewClock()
	store := testsupport.MustOpenStore(t, cfg, queue.WithClock(clock.Now))

	var want []string
	for i := 0; i < 4; i++ {
		want = append(want, testsupport.MustEnqueue(t, store, fmt.Sprintf("https://example.com/%d", i), 1))
	}

	jobs, err := store.Claim(context.Background(), "w1", 4)
	if err != nil {
		t.Fatalf("Claim failed: %v", err)
	}
	for i, job := range jobs {
		if job.ID != want[i] {
			t.Fatalf("position %d: expected %s, got %s", i, want[i], job.ID)
		}
	}
}

func TestClaimTransitionsJobs(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	clock := testsupport.NewClock()
	store := testsupport.MustOpenStore(t, cfg, queue.WithClock(clock.Now))

	id := testsupport.MustEnqueue(t, store, "https://example.com/a", 1)
	clock.Advance(time.Minute)

	ctx := context.Background()
	jobs, err := store.Claim(ctx, "worker-7", 5)
	if err != nil {
		t.Fatalf("Claim failed: %v", err)
	}
	if len(jobs) != 1 {
		t.Fatalf("expected 1 job, got %d", len(jobs))
	}
	job := jobs[0]
	if job.ID != id || job.Status != queue.StatusProcessing || job.WorkerID != "worker-7" || job.Attempts != 1 {
		t.Fatalf("unexpected claimed job: %#v", job)
	}
	if job.StartedAt == nil || !job.StartedAt.Equal(clock.Now()) {
		t.Fatalf("expected started_at from clock, got %v", job.StartedAt)
	}
	if !job.UpdatedAt.Equal(clock.Now()) {
		t.Fatalf("expected updated_at from clock, got %v", job.UpdatedAt)
	}

	stored, err := store.Get(ctx, id)
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if stored.Status != queue.StatusProcessing || stored.Attempts != 1 {
		t.Fatalf("claim not persisted: %#v", stored)
	}
}

func TestClaimEmptyQueueReturnsEmptySlice(t *testing.T) {
	store := testsupport.MustOpenStore(t, testsupport.NewConfig(t))

	jobs, err := store.Claim(context.Background(), "w1", 10)
	if err != nil {
		t.Fatalf("Claim on empty queue returned error: %v", err)
	}
	if jobs == nil || len(jobs) != 0 {
		t.Fatalf("expected empty non-nil slice, got %#v", jobs)
	}
}

func TestClaimValidatesArguments(t *testing.T) {
	store := testsupport.MustOpenStore(t, testsupport.NewConfig(t, testsupport.WithMaxClaimBatch(5)))
	ctx := context.Background()

	cases := []struct {
		name   string
		worker string
		limit  int
	}{
		{"empty worker", "", 1},
		{"blank worker", "   ", 1},
		{"zero limit", "w1", 0},
		{"negative limit", "w1", -1},
		{"limit above batch", "w1", 6},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := store.Claim(ctx, tc.worker, tc.limit)
			if queue.KindOf(err) != queue.KindInvalidArgument {
				t.Fatalf("expected invalid_argument, got %v", err)
			}
		})
	}
}

func TestClaimIsMutuallyExclusive(t *testing.T) {
	store := testsupport.MustOpenStore(t, testsupport.NewConfig(t))
	ctx := context.Background()

	const jobCount = 40
	for i := 0; i < jobCount; i++ {
		testsupport.MustEnqueue(t, store, fmt.Sprintf("https://example.com/%d", i), i%4+1)
	}

	const workers = 8
	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		seen = make(map[string]string)
		errs []error
	)
	for w := 0; w < workers; w++ {
		workerID := fmt.Sprintf("w%d", w)
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				jobs, err := store.Claim(ctx, workerID, 3)
				if err != nil {
					mu.Lock()
					errs = append(errs, err)
					mu.Unlock()
					return
				}
				if len(jobs) == 0 {
					return
				}
				mu.Lock()
				for _, job := range jobs {
					if prev, dup := seen[job.ID]; dup {
						errs = append(errs, fmt.Errorf("job %s claimed by %s and %s", job.ID, prev, workerID))
					}
					seen[job.ID] = workerID
				}
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	for _, err := range errs {
		t.Error(err)
	}
	if len(seen) != jobCount {
		t.Fatalf("expected %d distinct claims, got %d", jobCount, len(seen))
	}

	jobs, err := store.List(ctx, queue.ListFilter{})
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	for _, job := range jobs {
		if job.Attempts != 1 {
			t.Fatalf("job %s claimed %d times", job.ID, job.Attempts)
		}
		if job.WorkerID != seen[job.ID] {
			t.Fatalf("job %s stored worker %s, claim returned to %s", job.ID, job.WorkerID, seen[job.ID])
		}
	}
}

func TestClaimCountsAttemptsAcrossRequeue(t *testing.T) {
	store := testsupport.MustOpenStore(t, testsupport.NewConfig(t))
	ctx := context.Background()

	id := testsupport.MustEnqueue(t, store, "https://example.com/a", 1)

	jobs, err := store.Claim(ctx, "w1", 1)
	if err != nil {
		t.Fatalf("first Claim failed: %v", err)
	}
	if len(jobs) != 1 || jobs[0].Attempts != 1 {
		t.Fatalf("expected attempts 1 after first claim, got %v", jobs)
	}

	status, err := store.Requeue(ctx, id, "w1")
	if err != nil {
		t.Fatalf("Requeue failed: %v", err)
	}
	if status != queue.StatusEnqueued {
		t.Fatalf("expected enqueued after requeue, got %s", status)
	}

	jobs, err = store.Claim(ctx, "w2", 1)
	if err != nil {
		t.Fatalf("second Claim failed: %v", err)
	}
	if len(jobs) != 1 || jobs[0].Attempts != 2 || jobs[0].WorkerID != "w2" {
		t.Fatalf("expected attempts 2 for w2 after second claim, got %#v", jobs)
	}
}

func TestClaimSkipsExhaustedJobs(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()

	id := testsupport.MustEnqueue(t, store, "https://example.com/a", 1)
	execRaw(t, cfg.DatabaseDSN(), "UPDATE transcription_jobs SET attempts = max_attempts WHERE id = ?", id)

	jobs, err := store.Claim(ctx, "w1", 1)
	if err != nil {
		t.Fatalf("Claim failed: %v", err)
	}
	if len(jobs) != 0 {
		t.Fatalf("expected exhausted job to be skipped, got %v", jobIDs(jobs))
	}
}

func TestClaimWithoutAttemptLimitReclaimsExhaustedJobs(t *testing.T) {
	cfg := testsupport.NewConfig(t, testsupport.WithoutAttemptLimit())
	store := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()

	id := testsupport.MustEnqueue(t, store, "https://example.com/a", 1)
	execRaw(t, cfg.DatabaseDSN(), "UPDATE transcription_jobs SET attempts = max_attempts WHERE id = ?", id)

	jobs, err := store.Claim(ctx, "w1", 1)
	if err != nil {
		t.Fatalf("Claim failed: %v", err)
	}
	if len(jobs) != 1 || jobs[0].Attempts != 4 {
		t.Fatalf("expected job claimed with attempts 4, got %#v", jobs)
	}
}

func TestEndToEndScenario(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	clock := testsupport.NewClock()
	store := testsupport.MustOpenStore(t, cfg, queue.WithClock(clock.Now))
	ctx := context.Background()

	a := testsupport.MustEnqueue(t, store, "http://a", 1)
	clock.Advance(time.Second)
	b := testsupport.MustEnqueue(t, store, "http://b", 5)
	clock.Advance(time.Second)

	jobs, err := store.Claim(ctx, "w1", 1)
	if err != nil {
		t.Fatalf("Claim failed: %v", err)
	}
	if len(jobs) != 1 || jobs[0].ID != b {
		t.Fatalf("expected [B], got %v", jobIDs(jobs))
	}
	if jobs[0].Status != queue.StatusProcessing || jobs[0].Attempts != 1 {
		t.Fatalf("unexpected claimed B: %#v", jobs[0])
	}

	if err := store.Finalize(ctx, b, queue.Outcome{Status: queue.StatusSucceeded, Transcript: "hello"}); err != nil {
		t.Fatalf("Finalize failed: %v", err)
	}
	got, err := store.Get(ctx, b)
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if got.Status != queue.StatusSucceeded || got.Transcript != "hello" || got.FinishedAt == nil {
		t.Fatalf("unexpected finalized B: %#v", got)
	}

	jobs, err = store.Claim(ctx, "w1", 5)
	if err != nil {
		t.Fatalf("Claim failed: %v", err)
	}
	if len(jobs) != 1 || jobs[0].ID != a {
		t.Fatalf("expected [A], got %v", jobIDs(jobs))
	}
}
