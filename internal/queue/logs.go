package queue

import (
	"context"
	"fmt"
	"strings"
	"time"
)

// AppendLog appends a log entry for a job and returns its sequence number.
// Sequence assignment happens inside the INSERT, so entries for one job are
// strictly increasing. Only the job's executor writes logs for a running
// job, so the read-increment pair needs no extra locking.
func (s *Store) AppendLog(ctx context.Context, jobID string, level LogLevel, message string) (int64, error) {
	message = strings.TrimSpace(message)
	if message == "" {
		return 0, fmt.Errorf("log message must not be empty")
	}

	var sequence int64
	err := retryOnBusy(ensureContext(ctx), func() error {
		row := s.db.QueryRowContext(
			ctx,
			`INSERT INTO job_logs (job_id, seq, ts, level, message)
             VALUES (
                 ?,
                 (SELECT COALESCE(MAX(seq), 0) + 1 FROM job_logs WHERE job_id = ?),
                 ?, ?, ?
             )
             RETURNING seq`,
			jobID,
			jobID,
			time.Now().UTC().Format(time.RFC3339Nano),
			level,
			message,
		)
		return row.Scan(&sequence)
	})
	if err != nil {
		return 0, fmt.Errorf("append log: %w", err)
	}
	return sequence, nil
}

// LogsSince returns a job's log entries with sequence greater than since,
// in sequence order, bounded by limit.
func (s *Store) LogsSince(ctx context.Context, jobID string, since int64, limit int) ([]LogEntry, error) {
	if limit <= 0 {
		limit = 200
	}
	rows, err := s.db.QueryContext(
		ctx,
		`SELECT job_id, seq, ts, level, message FROM job_logs
         WHERE job_id = ? AND seq > ?
         ORDER BY seq LIMIT ?`,
		jobID, since, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("query logs: %w", err)
	}
	defer rows.Close()

	var entries []LogEntry
	for rows.Next() {
		var (
			entry LogEntry
			tsRaw string
		)
		if err := rows.Scan(&entry.JobID, &entry.Sequence, &tsRaw, &entry.Level, &entry.Message); err != nil {
			return nil, err
		}
		if ts, err := parseTimeString(tsRaw); err == nil {
			entry.Timestamp = ts
		}
		entries = append(entries, entry)
	}
	return entries, rows.Err()
}

// LastLogSequence reports the highest sequence recorded for a job.
func (s *Store) LastLogSequence(ctx context.Context, jobID string) (int64, error) {
	var sequence int64
	err := s.db.QueryRowContext(
		ctx,
		`SELECT COALESCE(MAX(seq), 0) FROM job_logs WHERE job_id = ?`,
		jobID,
	).Scan(&sequence)
	if err != nil {
		return 0, fmt.Errorf("read last sequence: %w", err)
	}
	return sequence, nil
}
