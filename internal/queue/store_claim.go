package queue

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
)

const claimOrder = `ORDER BY priority DESC, created_at ASC, id ASC`

// Claim atomically moves up to limit enqueued jobs to processing on behalf
// of workerID and returns the post-transition rows in claim order (priority
// descending, oldest first). Fewer than limit eligible jobs yields exactly
// those, possibly none; Claim never waits for work to appear.
//
// Mutual exclusion comes from the database: PostgreSQL and MySQL lock the
// candidate rows with FOR UPDATE SKIP LOCKED, SQLite runs the claim inside a
// BEGIN IMMEDIATE transaction that holds the database write lock. No job
// selected by one caller can appear in another caller's result.
func (s *Store) Claim(ctx context.Context, workerID string, limit int) ([]*Job, error) {
	const op = "claim jobs"

	if strings.TrimSpace(workerID) == "" {
		return nil, invalidArgument(op, "worker id is required")
	}
	if limit <= 0 || limit > s.maxClaimBatch {
		return nil, invalidArgument(op, "limit must be between 1 and %d, got %d", s.maxClaimBatch, limit)
	}

	var jobs []*Job
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		var err error
		if s.dialect.returning {
			jobs, err = s.claimReturning(ctx, tx, workerID, limit)
		} else {
			jobs, err = s.claimSelectUpdate(ctx, tx, workerID, limit)
		}
		return err
	})
	if err != nil {
		return nil, classify(op, err)
	}
	sortClaimOrder(jobs)
	if jobs == nil {
		jobs = []*Job{}
	}
	return jobs, nil
}

func (s *Store) eligibility() string {
	where := `status = ?`
	if s.enforceMaxAttempts {
		where += ` AND attempts < max_attempts`
	}
	return where
}

func (s *Store) candidateQuery() string {
	return `SELECT id FROM transcription_jobs
            WHERE ` + s.eligibility() + `
            ` + claimOrder + `
            LIMIT ?` + s.dialect.lockClause
}

const claimAssignments = `status = ?, worker_id = ?, started_at = ?, attempts = attempts + 1, updated_at = ?`

// claimReturning selects and transitions the batch in one statement.
func (s *Store) claimReturning(ctx context.Context, tx *sql.Tx, workerID string, limit int) ([]*Job, error) {
	query, args := s.claimStatement(workerID, limit, formatTime(s.timestamp()))
	rows, err := tx.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("claim update: %w", err)
	}
	return scanJobs(rows)
}

// claimStatement builds the single-statement claim and its arguments in
// placeholder order. The Postgres CTE puts the candidate placeholders first.
func (s *Store) claimStatement(workerID string, limit int, timestamp string) (string, []any) {
	if s.dialect.name == DriverPostgres {
		query := `WITH cte AS (` + s.candidateQuery() + `)
            UPDATE transcription_jobs
            SET ` + claimAssignments + `
            WHERE id IN (SELECT id FROM cte)
            RETURNING ` + jobColumns
		return s.dialect.rebind(query), []any{
			StatusEnqueued, limit,
			StatusProcessing, workerID, timestamp, timestamp,
		}
	}
	query := `UPDATE transcription_jobs
            SET ` + claimAssignments + `
            WHERE id IN (` + s.candidateQuery() + `)
            RETURNING ` + jobColumns
	return s.dialect.rebind(query), []any{
		StatusProcessing, workerID, timestamp, timestamp,
		StatusEnqueued, limit,
	}
}

// claimSelectUpdate locks the candidates, transitions them, and reads them
// back, all inside the caller's transaction.
func (s *Store) claimSelectUpdate(ctx context.Context, tx *sql.Tx, workerID string, limit int) ([]*Job, error) {
	rows, err := tx.QueryContext(ctx, s.dialect.rebind(s.candidateQuery()), StatusEnqueued, limit)
	if err != nil {
		return nil, fmt.Errorf("select claim candidates: %w", err)
	}
	var ids []any
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return nil, corruption("scan claim candidate", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, fmt.Errorf("iterate claim candidates: %w", err)
	}
	rows.Close()
	if len(ids) == 0 {
		return nil, nil
	}

	timestamp := formatTime(s.timestamp())
	placeholders := makePlaceholders(len(ids))
	args := make([]any, 0, len(ids)+4)
	args = append(args, StatusProcessing, workerID, timestamp, timestamp)
	args = append(args, ids...)
	if _, err := s.exec(ctx, tx,
		`UPDATE transcription_jobs SET `+claimAssignments+` WHERE id IN (`+placeholders+`)`,
		args...,
	); err != nil {
		return nil, fmt.Errorf("claim update: %w", err)
	}

	claimed, err := tx.QueryContext(ctx,
		s.dialect.rebind(`SELECT `+jobColumns+` FROM transcription_jobs WHERE id IN (`+placeholders+`)`),
		ids...,
	)
	if err != nil {
		return nil, fmt.Errorf("read claimed jobs: %w", err)
	}
	return scanJobs(claimed)
}
