package queue

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"
)

// Requeue hands a processing job held by workerID back to the queue. When
// attempts are enforced and the job has none left it is failed with
// AttemptsExhaustedReason instead. A job held by another worker is rejected
// with KindInvalidArgument. The resulting status is returned.
func (s *Store) Requeue(ctx context.Context, id, workerID string) (Status, error) {
	const op = "requeue job"

	if strings.TrimSpace(workerID) == "" {
		return "", invalidArgument(op, "worker id is required")
	}

	var result Status
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		var (
			statusStr   string
			holder      sql.NullString
			attempts    int
			maxAttempts int
		)
		row := tx.QueryRowContext(ctx,
			s.dialect.rebind(`SELECT status, worker_id, attempts, max_attempts FROM transcription_jobs WHERE id = ?`+s.dialect.rowLock),
			id,
		)
		if err := row.Scan(&statusStr, &holder, &attempts, &maxAttempts); err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return notFound(op, id)
			}
			return err
		}
		if Status(statusStr) != StatusProcessing {
			return invalidArgument(op, "job %s is %s, only processing jobs can be requeued", id, statusStr)
		}
		if holder.String != workerID {
			return invalidArgument(op, "job %s is held by worker %q, not %q", id, holder.String, workerID)
		}

		timestamp := formatTime(s.timestamp())
		var res sql.Result
		var err error
		if s.enforceMaxAttempts && attempts >= maxAttempts {
			result = StatusFailed
			res, err = s.exec(ctx, tx,
				`UPDATE transcription_jobs
                 SET status = ?, last_error = ?, transcript = NULL, transcript_format = NULL,
                     finished_at = ?, updated_at = ?
                 WHERE id = ? AND status = ? AND worker_id = ?`,
				StatusFailed, AttemptsExhaustedReason, timestamp, timestamp,
				id, StatusProcessing, workerID,
			)
		} else {
			result = StatusEnqueued
			res, err = s.exec(ctx, tx,
				`UPDATE transcription_jobs SET status = ?, updated_at = ?
                 WHERE id = ? AND status = ? AND worker_id = ?`,
				StatusEnqueued, timestamp,
				id, StatusProcessing, workerID,
			)
		}
		if err != nil {
			return err
		}
		n, err := res.RowsAffected()
		if err != nil {
			return fmt.Errorf("rows affected: %w", err)
		}
		if n != 1 {
			return invalidArgument(op, "job %s is no longer held by worker %q", id, workerID)
		}
		return nil
	})
	if err != nil {
		return "", classify(op, err)
	}
	return result, nil
}

// ReclaimExpired ends the lease of processing jobs started before cutoff.
// Jobs with attempts left return to enqueued. When attempts are enforced the
// rest fail with LeaseExpiredReason. worker_id and started_at keep the last
// claim.
func (s *Store) ReclaimExpired(ctx context.Context, cutoff time.Time) (ReclaimResult, error) {
	const op = "reclaim expired jobs"

	var result ReclaimResult
	cutoffText := formatTime(cutoff)
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		timestamp := formatTime(s.timestamp())

		if s.enforceMaxAttempts {
			res, err := s.exec(ctx, tx,
				`UPDATE transcription_jobs
                 SET status = ?, last_error = ?, finished_at = ?, updated_at = ?
                 WHERE status = ? AND started_at < ? AND attempts >= max_attempts`,
				StatusFailed, LeaseExpiredReason, timestamp, timestamp,
				StatusProcessing, cutoffText,
			)
			if err != nil {
				return fmt.Errorf("fail exhausted leases: %w", err)
			}
			if result.Failed, err = res.RowsAffected(); err != nil {
				return fmt.Errorf("rows affected: %w", err)
			}
		}

		res, err := s.exec(ctx, tx,
			`UPDATE transcription_jobs
             SET status = ?, updated_at = ?
             WHERE status = ? AND started_at < ?`,
			StatusEnqueued, timestamp,
			StatusProcessing, cutoffText,
		)
		if err != nil {
			return fmt.Errorf("requeue expired leases: %w", err)
		}
		if result.Requeued, err = res.RowsAffected(); err != nil {
			return fmt.Errorf("rows affected: %w", err)
		}
		return nil
	})
	if err != nil {
		return ReclaimResult{}, classify(op, err)
	}
	return result, nil
}
