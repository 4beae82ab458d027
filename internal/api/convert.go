package api

import (
	"time"

	"scribeq/internal/queue"
)

// FromJob converts a queue record to its API representation.
func FromJob(job *queue.Job) Job {
	if job == nil {
		return Job{}
	}
	return Job{
		ID:               job.ID,
		SubmitterID:      job.SubmitterID,
		SourceURL:        job.SourceURL,
		Status:           string(job.Status),
		Priority:         job.Priority,
		Attempts:         job.Attempts,
		MaxAttempts:      job.MaxAttempts,
		WorkerID:         job.WorkerID,
		StartedAt:        formatOptionalTime(job.StartedAt),
		FinishedAt:       formatOptionalTime(job.FinishedAt),
		LastError:        job.LastError,
		Transcript:       job.Transcript,
		TranscriptFormat: job.TranscriptFormat,
		DurationSeconds:  job.DurationSeconds,
		SizeBytes:        job.SizeBytes,
		CreatedAt:        FormatTime(job.CreatedAt),
		UpdatedAt:        FormatTime(job.UpdatedAt),
	}
}

// FromJobs converts a slice of queue records, never returning nil.
func FromJobs(jobs []*queue.Job) []Job {
	out := make([]Job, 0, len(jobs))
	for _, job := range jobs {
		if job == nil {
			continue
		}
		out = append(out, FromJob(job))
	}
	return out
}

// MergeQueueStats produces a string-keyed representation of queue stats with
// a zero entry for every known status.
func MergeQueueStats(stats map[queue.Status]int) map[string]int {
	out := make(map[string]int, len(queue.AllStatuses()))
	for _, status := range queue.AllStatuses() {
		out[string(status)] = 0
	}
	for status, count := range stats {
		out[string(status)] = count
	}
	return out
}

// FromDatabaseHealth converts store diagnostics.
func FromDatabaseHealth(health queue.DatabaseHealth) DatabaseHealth {
	return DatabaseHealth{
		Driver:         health.Driver,
		Target:         health.Target,
		Reachable:      health.Reachable,
		SchemaVersion:  health.SchemaVersion,
		TableExists:    health.TableExists,
		IntegrityCheck: health.IntegrityCheck,
		TotalJobs:      health.TotalJobs,
		Transient:      health.Transient,
		Error:          health.Error,
	}
}

// FormatTime renders t in the API timestamp format. Zero times render empty.
func FormatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(dateTimeFormat)
}

// ParseTime parses an API timestamp, returning the zero time on failure.
func ParseTime(value string) time.Time {
	if value == "" {
		return time.Time{}
	}
	if t, err := time.Parse(time.RFC3339Nano, value); err == nil {
		return t
	}
	return time.Time{}
}

func formatOptionalTime(t *time.Time) string {
	if t == nil {
		return ""
	}
	return FormatTime(*t)
}
