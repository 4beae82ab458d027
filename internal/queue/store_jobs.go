package queue

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/google/uuid"
)

// Insert creates a job in the enqueued state with zero attempts and returns
// its id. A non-positive priority or an empty source is KindInvalidArgument.
func (s *Store) Insert(ctx context.Context, job NewJob) (string, error) {
	const op = "insert job"

	if job.Priority < 1 {
		return "", invalidArgument(op, "priority must be at least 1, got %d", job.Priority)
	}
	if strings.TrimSpace(job.SourceURL) == "" {
		return "", invalidArgument(op, "source url is required")
	}
	if job.MaxAttempts < 0 {
		return "", invalidArgument(op, "max attempts must not be negative, got %d", job.MaxAttempts)
	}

	id, err := uuid.NewV7()
	if err != nil {
		return "", classify(op, fmt.Errorf("generate id: %w", err))
	}
	maxAttempts := job.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = s.defaultMaxAttempts
	}
	timestamp := formatTime(s.timestamp())

	err = s.withTx(ctx, func(tx *sql.Tx) error {
		_, err := s.exec(ctx, tx,
			`INSERT INTO transcription_jobs (
                id, submitter_id, source_url, status, priority, attempts, max_attempts,
                created_at, updated_at
            ) VALUES (?, ?, ?, ?, ?, 0, ?, ?, ?)`,
			id.String(),
			nullableString(job.SubmitterID),
			job.SourceURL,
			StatusEnqueued,
			job.Priority,
			maxAttempts,
			timestamp,
			timestamp,
		)
		return err
	})
	if err != nil {
		return "", classify(op, err)
	}
	return id.String(), nil
}

// Get fetches a job by id without taking any lock.
func (s *Store) Get(ctx context.Context, id string) (*Job, error) {
	const op = "get job"

	rows, err := s.db.QueryContext(ctx, s.dialect.rebind(`SELECT `+jobColumns+` FROM transcription_jobs WHERE id = ?`), id)
	if err != nil {
		return nil, classify(op, err)
	}
	jobs, err := scanJobs(rows)
	if err != nil {
		return nil, classify(op, err)
	}
	if len(jobs) == 0 {
		return nil, notFound(op, id)
	}
	return jobs[0], nil
}

// List returns jobs filtered by status set (or all jobs when no status is
// provided) ordered by creation time.
func (s *Store) List(ctx context.Context, filter ListFilter) ([]*Job, error) {
	const op = "list jobs"

	query := `SELECT ` + jobColumns + ` FROM transcription_jobs`
	args := make([]any, 0, len(filter.Statuses)+1)
	if len(filter.Statuses) > 0 {
		query += ` WHERE status IN (` + makePlaceholders(len(filter.Statuses)) + `)`
		for _, status := range filter.Statuses {
			args = append(args, status)
		}
	}
	query += ` ORDER BY created_at, id`
	if filter.Limit > 0 {
		query += ` LIMIT ?`
		args = append(args, filter.Limit)
	}

	rows, err := s.db.QueryContext(ctx, s.dialect.rebind(query), args...)
	if err != nil {
		return nil, classify(op, err)
	}
	jobs, err := scanJobs(rows)
	if err != nil {
		return nil, classify(op, err)
	}
	return jobs, nil
}

// Finalize writes the terminal state of a job. The result fields belonging
// to the other outcome are cleared. Finalize does not check the current
// status; re-issuing it with the same outcome rewrites the same values.
func (s *Store) Finalize(ctx context.Context, id string, outcome Outcome) error {
	const op = "finalize job"

	if !outcome.Status.IsTerminal() {
		return invalidArgument(op, "status %q is not terminal", outcome.Status)
	}

	var transcript, transcriptFormat, lastError any
	switch outcome.Status {
	case StatusSucceeded:
		transcript = nullableString(outcome.Transcript)
		transcriptFormat = nullableString(outcome.TranscriptFormat)
	case StatusFailed:
		lastError = nullableString(outcome.Error)
	}
	timestamp := formatTime(s.timestamp())

	err := s.withTx(ctx, func(tx *sql.Tx) error {
		res, err := s.exec(ctx, tx,
			`UPDATE transcription_jobs
             SET status = ?, transcript = ?, transcript_format = ?, last_error = ?,
                 finished_at = ?, duration_seconds = ?, size_bytes = ?, updated_at = ?
             WHERE id = ?`,
			outcome.Status,
			transcript,
			transcriptFormat,
			lastError,
			timestamp,
			nullableInt(outcome.DurationSeconds),
			nullableInt64(outcome.SizeBytes),
			timestamp,
			id,
		)
		if err != nil {
			return err
		}
		affected, err := res.RowsAffected()
		if err != nil {
			return fmt.Errorf("rows affected: %w", err)
		}
		if affected == 0 {
			return notFound(op, id)
		}
		return nil
	})
	return classify(op, err)
}
