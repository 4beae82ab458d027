package queue

import (
	"database/sql/driver"
	"strings"
	"time"
)

// Status represents the lifecycle of a transcription job.
type Status string

const (
	StatusEnqueued   Status = "enqueued"
	StatusProcessing Status = "processing"
	StatusSucceeded  Status = "succeeded"
	StatusFailed     Status = "failed"
)

// LeaseExpiredReason is the last_error recorded when the sweeper fails a job
// whose lease expired with no attempts left.
const LeaseExpiredReason = "lease expired"

// AttemptsExhaustedReason is the last_error recorded when a requeue finds
// the job already at max_attempts.
const AttemptsExhaustedReason = "attempts exhausted"

var allStatuses = []Status{
	StatusEnqueued,
	StatusProcessing,
	StatusSucceeded,
	StatusFailed,
}

var statusSet = func() map[Status]struct{} {
	set := make(map[Status]struct{}, len(allStatuses))
	for _, status := range allStatuses {
		set[status] = struct{}{}
	}
	return set
}()

// AllStatuses returns the ordered list of known statuses.
func AllStatuses() []Status {
	cp := make([]Status, len(allStatuses))
	copy(cp, allStatuses)
	return cp
}

// ParseStatus converts a string into a known Status.
func ParseStatus(value string) (Status, bool) {
	normalized := Status(strings.ToLower(strings.TrimSpace(value)))
	if normalized == "" {
		return "", false
	}
	_, ok := statusSet[normalized]
	return normalized, ok
}

// Value implements driver.Valuer so every driver binds Status as text.
func (s Status) Value() (driver.Value, error) {
	return string(s), nil
}

// IsTerminal reports whether no transition leaves the status.
func (s Status) IsTerminal() bool {
	return s == StatusSucceeded || s == StatusFailed
}

// Job is one row of the transcription_jobs table.
type Job struct {
	ID               string
	SubmitterID      string
	SourceURL        string
	Status           Status
	Priority         int
	Attempts         int
	MaxAttempts      int
	WorkerID         string
	StartedAt        *time.Time
	FinishedAt       *time.Time
	LastError        string
	Transcript       string
	TranscriptFormat string
	DurationSeconds  *int
	SizeBytes        *int64
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

// AttemptsLeft reports whether another claim is allowed under max_attempts.
func (j Job) AttemptsLeft() bool {
	return j.Attempts < j.MaxAttempts
}

// NewJob describes a row to insert.
type NewJob struct {
	SubmitterID string
	SourceURL   string
	Priority    int
	// MaxAttempts of zero uses the store default.
	MaxAttempts int
}

// Outcome carries the terminal fields written by Finalize. Fields that do
// not apply to Status are ignored.
type Outcome struct {
	Status           Status
	Transcript       string
	TranscriptFormat string
	Error            string
	DurationSeconds  *int
	SizeBytes        *int64
}

// ListFilter narrows List results. Zero Limit returns every match.
type ListFilter struct {
	Statuses []Status
	Limit    int
}

// ReclaimResult counts the jobs touched by one lease sweep.
type ReclaimResult struct {
	Requeued int64
	Failed   int64
}

// Total returns the number of jobs the sweep moved.
func (r ReclaimResult) Total() int64 {
	return r.Requeued + r.Failed
}

// HealthSummary describes aggregated queue counts per status.
type HealthSummary struct {
	Total      int
	Enqueued   int
	Processing int
	Succeeded  int
	Failed     int
}

// DatabaseHealth captures diagnostic information about the job database.
type DatabaseHealth struct {
	Driver         string
	Target         string
	Reachable      bool
	SchemaVersion  int
	TableExists    bool
	IntegrityCheck bool
	TotalJobs      int
	Transient      bool
	Error          string
}
