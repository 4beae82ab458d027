package queue

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"time"
)

// Stats returns a count of jobs grouped by status.
func (s *Store) Stats(ctx context.Context) (map[Status]int, error) {
	const op = "queue stats"

	rows, err := s.db.QueryContext(ctx, `SELECT status, COUNT(1) FROM transcription_jobs GROUP BY status`)
	if err != nil {
		return nil, classify(op, err)
	}
	defer rows.Close()

	stats := make(map[Status]int)
	for rows.Next() {
		var status string
		var count int
		if err := rows.Scan(&status, &count); err != nil {
			return nil, corruption(op, err)
		}
		parsed, ok := ParseStatus(status)
		if !ok {
			return nil, corruption(op, fmt.Errorf("unknown status %q", status))
		}
		stats[parsed] = count
	}
	if err := rows.Err(); err != nil {
		return nil, classify(op, err)
	}
	return stats, nil
}

// Health aggregates queue state for diagnostic output.
func (s *Store) Health(ctx context.Context) (HealthSummary, error) {
	stats, err := s.Stats(ctx)
	if err != nil {
		return HealthSummary{}, err
	}
	health := HealthSummary{}
	for status, count := range stats {
		health.Total += count
		switch status {
		case StatusEnqueued:
			health.Enqueued += count
		case StatusProcessing:
			health.Processing += count
		case StatusSucceeded:
			health.Succeeded += count
		case StatusFailed:
			health.Failed += count
		}
	}
	return health, nil
}

// CheckHealth returns diagnostic information about the job database.
func (s *Store) CheckHealth(ctx context.Context) (DatabaseHealth, error) {
	health := DatabaseHealth{
		Driver: s.dialect.name,
		Target: redactTarget(s.target),
	}

	connCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()

	fail := func(op string, err error) (DatabaseHealth, error) {
		health.Error = err.Error()
		health.Transient = transient(err)
		return health, classify(op, err)
	}

	if err := s.db.PingContext(connCtx); err != nil {
		return fail("ping job database", err)
	}
	health.Reachable = true

	var tables int
	if err := s.db.QueryRowContext(connCtx, s.dialect.rebind(s.dialect.tableExists), "transcription_jobs").Scan(&tables); err != nil {
		return fail("query table info", err)
	}
	health.TableExists = tables > 0

	version, err := s.readSchemaVersion(connCtx)
	if err != nil {
		return fail("read schema version", err)
	}
	health.SchemaVersion = version

	if health.TableExists {
		if err := s.db.QueryRowContext(connCtx, "SELECT COUNT(*) FROM transcription_jobs").Scan(&health.TotalJobs); err != nil {
			return fail("count jobs", err)
		}
	}

	health.IntegrityCheck = true
	if s.dialect.name == DriverSQLite {
		var integrityResult string
		if err := s.db.QueryRowContext(connCtx, "PRAGMA integrity_check").Scan(&integrityResult); err != nil {
			return fail("integrity check", err)
		}
		health.IntegrityCheck = strings.EqualFold(integrityResult, "ok")
	}
	if version != schemaVersion {
		health.Error = fmt.Sprintf("schema version %d, expected %d", version, schemaVersion)
	}
	return health, nil
}

// redactTarget hides credentials embedded in a connection string.
func redactTarget(target string) string {
	if parsed, err := url.Parse(target); err == nil && parsed.User != nil {
		return parsed.Redacted()
	}
	if at := strings.LastIndex(target, "@"); at >= 0 {
		return "***" + target[at:]
	}
	return target
}
