package queue

import (
	"database/sql"
	"fmt"
	"sort"
	"strings"
	"time"
)

const jobColumns = "id, submitter_id, source_url, status, priority, attempts, max_attempts, worker_id, started_at, finished_at, last_error, transcript, transcript_format, duration_seconds, size_bytes, created_at, updated_at"

// timeLayout is fixed width so text comparison orders timestamps
// chronologically on every dialect.
const timeLayout = "2006-01-02T15:04:05.000000000Z"

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func parseTime(value string) (time.Time, error) {
	if value == "" {
		return time.Time{}, fmt.Errorf("empty timestamp")
	}
	if t, err := time.Parse(timeLayout, value); err == nil {
		return t, nil
	}
	return time.Parse(time.RFC3339Nano, value)
}

// scanJob decodes one row. Every failure means the row does not have the
// shape this package writes, so it is reported as corruption.
func scanJob(scanner interface{ Scan(dest ...any) error }) (*Job, error) {
	job, err := decodeJob(scanner)
	if err != nil {
		return nil, corruption("scan job", err)
	}
	return job, nil
}

func decodeJob(scanner interface{ Scan(dest ...any) error }) (*Job, error) {
	var (
		id               string
		submitterID      sql.NullString
		sourceURL        string
		statusStr        string
		priority         int
		attempts         int
		maxAttempts      int
		workerID         sql.NullString
		startedRaw       sql.NullString
		finishedRaw      sql.NullString
		lastError        sql.NullString
		transcript       sql.NullString
		transcriptFormat sql.NullString
		durationSeconds  sql.NullInt64
		sizeBytes        sql.NullInt64
		createdRaw       string
		updatedRaw       string
	)

	if err := scanner.Scan(
		&id,
		&submitterID,
		&sourceURL,
		&statusStr,
		&priority,
		&attempts,
		&maxAttempts,
		&workerID,
		&startedRaw,
		&finishedRaw,
		&lastError,
		&transcript,
		&transcriptFormat,
		&durationSeconds,
		&sizeBytes,
		&createdRaw,
		&updatedRaw,
	); err != nil {
		return nil, err
	}

	status, ok := ParseStatus(statusStr)
	if !ok {
		return nil, fmt.Errorf("job %s: unknown status %q", id, statusStr)
	}

	job := &Job{
		ID:               id,
		SubmitterID:      submitterID.String,
		SourceURL:        sourceURL,
		Status:           status,
		Priority:         priority,
		Attempts:         attempts,
		MaxAttempts:      maxAttempts,
		WorkerID:         workerID.String,
		LastError:        lastError.String,
		Transcript:       transcript.String,
		TranscriptFormat: transcriptFormat.String,
	}
	if durationSeconds.Valid {
		v := int(durationSeconds.Int64)
		job.DurationSeconds = &v
	}
	if sizeBytes.Valid {
		v := sizeBytes.Int64
		job.SizeBytes = &v
	}

	var err error
	if job.CreatedAt, err = parseTime(createdRaw); err != nil {
		return nil, fmt.Errorf("job %s: created_at: %w", id, err)
	}
	if job.UpdatedAt, err = parseTime(updatedRaw); err != nil {
		return nil, fmt.Errorf("job %s: updated_at: %w", id, err)
	}
	if job.StartedAt, err = parseOptionalTime(startedRaw); err != nil {
		return nil, fmt.Errorf("job %s: started_at: %w", id, err)
	}
	if job.FinishedAt, err = parseOptionalTime(finishedRaw); err != nil {
		return nil, fmt.Errorf("job %s: finished_at: %w", id, err)
	}
	return job, nil
}

func scanJobs(rows *sql.Rows) ([]*Job, error) {
	defer rows.Close()
	var jobs []*Job
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, job)
	}
	return jobs, rows.Err()
}

func parseOptionalTime(value sql.NullString) (*time.Time, error) {
	if !value.Valid || value.String == "" {
		return nil, nil
	}
	t, err := parseTime(value.String)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

func nullableString(value string) any {
	if value == "" {
		return nil
	}
	return value
}

func nullableInt(value *int) any {
	if value == nil {
		return nil
	}
	return int64(*value)
}

func nullableInt64(value *int64) any {
	if value == nil {
		return nil
	}
	return *value
}

func makePlaceholders(count int) string {
	if count <= 0 {
		return ""
	}
	return strings.TrimSuffix(strings.Repeat("?,", count), ",")
}

// sortClaimOrder puts jobs in claim order: priority descending, then oldest
// first, then id (UUIDv7, so submission order within one clock tick).
func sortClaimOrder(jobs []*Job) {
	sort.SliceStable(jobs, func(i, j int) bool {
		a, b := jobs[i], jobs[j]
		if a.Priority != b.Priority {
			return a.Priority > b.Priority
		}
		if !a.CreatedAt.Equal(b.CreatedAt) {
			return a.CreatedAt.Before(b.CreatedAt)
		}
		return a.ID < b.ID
	})
}
