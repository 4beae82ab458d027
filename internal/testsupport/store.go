package testsupport

import (
	"context"
	"sync"
	"testing"
	"time"

	"scribeq/internal/config"
	"scribeq/internal/queue"
)

// MustOpenStore opens a queue.Store for tests and registers cleanup.
func MustOpenStore(t testing.TB, cfg *config.Config, opts ...queue.Option) *queue.Store {
	t.Helper()

	store, err := queue.Open(cfg, opts...)
	if err != nil {
		t.Fatalf("queue.Open: %v", err)
	}
	t.Cleanup(func() {
		store.Close()
	})
	return store
}

// MustEnqueue inserts a job with the given priority and returns its id.
func MustEnqueue(t testing.TB, store *queue.Store, sourceURL string, priority int) string {
	t.Helper()

	id, err := store.Insert(context.Background(), queue.NewJob{
		SubmitterID: "tester",
		SourceURL:   sourceURL,
		Priority:    priority,
	})
	if err != nil {
		t.Fatalf("store.Insert: %v", err)
	}
	return id
}

// Clock is a manually advanced time source for queue.WithClock.
type Clock struct {
	mu  sync.Mutex
	now time.Time
}

// NewClock starts a clock at a fixed instant.
func NewClock() *Clock {
	return &Clock{now: time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)}
}

// Now returns the current fake time.
func (c *Clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

// Advance moves the clock forward.
func (c *Clock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}
