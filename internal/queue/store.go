package queue

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"shuttle/internal/config"
)

// Store manages job persistence backed by SQLite.
type Store struct {
	db   *sql.DB
	path string
}

const (
	sqliteBusyCode          = 5
	busyRetryAttempts       = 5
	busyRetryInitialBackoff = 10 * time.Millisecond
	busyRetryMaxBackoff     = 200 * time.Millisecond
)

// Open initializes or connects to the job database.
func Open(cfg *config.Config) (*Store, error) {
	if err := cfg.EnsureDirectories(); err != nil {
		return nil, fmt.Errorf("ensure directories: %w", err)
	}

	dbPath := filepath.Join(cfg.Paths.LogDir, "jobs.db")
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA foreign_keys = ON",
		"PRAGMA busy_timeout = 5000",
	}
	for _, pragma := range pragmas {
		if _, execErr := db.Exec(pragma); execErr != nil {
			_ = db.Close()
			return nil, fmt.Errorf("apply pragma %q: %w", pragma, execErr)
		}
	}

	store := &Store{db: db, path: dbPath}
	if err := store.initSchema(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return store, nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Path returns the database file location.
func (s *Store) Path() string {
	return s.path
}

// Create inserts a new pending job and returns it.
func (s *Store) Create(ctx context.Context, jobType Type, input []string, targetLanguage string, dest Destination) (*Job, error) {
	if len(input) == 0 {
		return nil, errors.New("job input must not be empty")
	}
	inputJSON, err := json.Marshal(input)
	if err != nil {
		return nil, fmt.Errorf("marshal input: %w", err)
	}
	summaryJSON, err := json.Marshal(Summary{})
	if err != nil {
		return nil, fmt.Errorf("marshal summary: %w", err)
	}

	id := uuid.NewString()
	now := time.Now().UTC()
	_, err = s.execWithRetry(
		ctx,
		`INSERT INTO jobs (
            id, type, status, progress, input_json, target_language,
            dest_target, dest_path, dest_category, summary_json, created_at
        ) VALUES (?, ?, ?, 0, ?, ?, ?, ?, ?, ?, ?)`,
		id,
		jobType,
		StatusPending,
		string(inputJSON),
		nullableString(targetLanguage),
		nullableString(dest.Target),
		nullableString(dest.Path),
		nullableString(dest.Category),
		string(summaryJSON),
		now.Format(time.RFC3339Nano),
	)
	if err != nil {
		return nil, fmt.Errorf("insert job: %w", err)
	}
	return s.Get(ctx, id)
}

// Get fetches a job by identifier. Missing jobs return (nil, nil).
func (s *Store) Get(ctx context.Context, id string) (*Job, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+jobColumns+` FROM jobs WHERE id = ?`, id)
	job, err := scanJob(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get job: %w", err)
	}
	return job, nil
}

// List returns jobs filtered by status set, newest first, bounded by limit.
func (s *Store) List(ctx context.Context, statuses []Status, limit int) ([]*Job, error) {
	if limit <= 0 {
		limit = 50
	}

	baseQuery := `SELECT ` + jobColumns + ` FROM jobs`
	orderClause := ` ORDER BY created_at DESC LIMIT ?`

	var (
		rows *sql.Rows
		err  error
	)
	if len(statuses) == 0 {
		rows, err = s.db.QueryContext(ctx, baseQuery+orderClause, limit)
	} else {
		placeholders := makePlaceholders(len(statuses))
		args := make([]any, 0, len(statuses)+1)
		for _, status := range statuses {
			args = append(args, status)
		}
		args = append(args, limit)
		rows, err = s.db.QueryContext(ctx, baseQuery+` WHERE status IN (`+placeholders+`)`+orderClause, args...)
	}
	if err != nil {
		return nil, fmt.Errorf("list jobs: %w", err)
	}
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

// ClaimNextPending atomically claims the oldest pending job for execution.
// The single UPDATE guarantees no two workers claim the same job. Returns
// (nil, nil) when nothing is pending.
func (s *Store) ClaimNextPending(ctx context.Context) (*Job, error) {
	now := time.Now().UTC().Format(time.RFC3339Nano)
	row := s.db.QueryRowContext(
		ctx,
		`UPDATE jobs SET status = ?, started_at = ?, last_heartbeat = ?
         WHERE id = (
             SELECT id FROM jobs WHERE status = ? ORDER BY created_at LIMIT 1
         )
         RETURNING `+jobColumns,
		StatusRunning,
		now,
		now,
		StatusPending,
	)
	job, err := scanJob(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("claim pending job: %w", err)
	}
	return job, nil
}

// Update persists the executor-held job state. Terminal rows are never
// overwritten; attempting to do so returns ErrAlreadyTerminal.
func (s *Store) Update(ctx context.Context, job *Job) error {
	if job == nil {
		return errors.New("job is nil")
	}
	summaryJSON, err := json.Marshal(job.Summary)
	if err != nil {
		return fmt.Errorf("marshal summary: %w", err)
	}

	res, err := s.execWithRetry(
		ctx,
		`UPDATE jobs
         SET status = ?, phase = ?, progress = ?, output_path = ?, resolved_json = ?,
             summary_json = ?, error_message = ?, started_at = ?, completed_at = ?,
             last_heartbeat = ?
         WHERE id = ? AND status NOT IN (?, ?, ?)`,
		job.Status,
		nullableString(string(job.Phase)),
		job.Progress,
		nullableString(job.Output),
		nullableString(job.ResolvedJSON),
		string(summaryJSON),
		nullableString(job.ErrorMessage),
		nullableTime(job.StartedAt),
		nullableTime(job.CompletedAt),
		nullableTime(job.LastHeartbeat),
		job.ID,
		StatusCompleted,
		StatusFailed,
		StatusCancelled,
	)
	if err != nil {
		return fmt.Errorf("update job: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if affected == 0 {
		return s.classifyMissedUpdate(ctx, job.ID)
	}
	return nil
}

// UpdateProgress records phase and progress for a running job. Progress is
// clamped so it never decreases; terminal rows are untouched.
func (s *Store) UpdateProgress(ctx context.Context, id string, phase Phase, progress float64) error {
	if progress < 0 {
		progress = 0
	}
	if progress > 100 {
		progress = 100
	}
	res, err := s.execWithRetry(
		ctx,
		`UPDATE jobs SET phase = ?, progress = MAX(progress, ?)
         WHERE id = ? AND status = ?`,
		nullableString(string(phase)),
		progress,
		id,
		StatusRunning,
	)
	if err != nil {
		return fmt.Errorf("update progress: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if affected == 0 {
		return s.classifyMissedUpdate(ctx, id)
	}
	return nil
}

// Cancel requests cancellation. Pending jobs become cancelled immediately;
// running jobs get a flag the executor observes at phase boundaries.
// Terminal jobs return ErrAlreadyTerminal.
func (s *Store) Cancel(ctx context.Context, id string) (Status, error) {
	var resulting Status
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		var status Status
		err := tx.QueryRowContext(ctx, `SELECT status FROM jobs WHERE id = ?`, id).Scan(&status)
		if errors.Is(err, sql.ErrNoRows) {
			return ErrNotFound
		}
		if err != nil {
			return fmt.Errorf("read job status: %w", err)
		}

		switch status {
		case StatusPending:
			now := time.Now().UTC().Format(time.RFC3339Nano)
			if _, err := tx.ExecContext(ctx,
				`UPDATE jobs SET status = ?, completed_at = ? WHERE id = ?`,
				StatusCancelled, now, id,
			); err != nil {
				return fmt.Errorf("cancel pending job: %w", err)
			}
			resulting = StatusCancelled
			return nil
		case StatusRunning:
			if _, err := tx.ExecContext(ctx,
				`UPDATE jobs SET cancel_requested = 1 WHERE id = ?`, id,
			); err != nil {
				return fmt.Errorf("flag running job: %w", err)
			}
			resulting = StatusRunning
			return nil
		default:
			resulting = status
			return ErrAlreadyTerminal
		}
	})
	return resulting, err
}

// CancelRequested reports whether a cancellation flag is set for a job.
func (s *Store) CancelRequested(ctx context.Context, id string) (bool, error) {
	var flagged int
	err := s.db.QueryRowContext(ctx, `SELECT cancel_requested FROM jobs WHERE id = ?`, id).Scan(&flagged)
	if errors.Is(err, sql.ErrNoRows) {
		return false, ErrNotFound
	}
	if err != nil {
		return false, fmt.Errorf("read cancel flag: %w", err)
	}
	return flagged != 0, nil
}

// Remove deletes a job and its logs. Only terminal jobs may be removed.
func (s *Store) Remove(ctx context.Context, id string) error {
	res, err := s.execWithRetry(
		ctx,
		`DELETE FROM jobs WHERE id = ? AND status IN (?, ?, ?)`,
		id, StatusCompleted, StatusFailed, StatusCancelled,
	)
	if err != nil {
		return fmt.Errorf("delete job: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if affected == 0 {
		job, err := s.Get(ctx, id)
		if err != nil {
			return err
		}
		if job == nil {
			return ErrNotFound
		}
		return ErrNotTerminal
	}
	return nil
}

// Stats returns a count of jobs grouped by status.
func (s *Store) Stats(ctx context.Context) (map[Status]int, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT status, COUNT(1) FROM jobs GROUP BY status`)
	if err != nil {
		return nil, fmt.Errorf("job stats: %w", err)
	}
	defer rows.Close()

	stats := make(map[Status]int)
	for rows.Next() {
		var status Status
		var count int
		if err := rows.Scan(&status, &count); err != nil {
			return nil, err
		}
		stats[status] = count
	}
	return stats, rows.Err()
}

// classifyMissedUpdate decides why a guarded UPDATE touched no rows.
func (s *Store) classifyMissedUpdate(ctx context.Context, id string) error {
	job, err := s.Get(ctx, id)
	if err != nil {
		return err
	}
	if job == nil {
		return ErrNotFound
	}
	if job.Status.IsTerminal() {
		return ErrAlreadyTerminal
	}
	return nil
}

func (s *Store) withTx(ctx context.Context, fn func(*sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

func ensureContext(ctx context.Context) context.Context {
	if ctx != nil {
		return ctx
	}
	return context.Background()
}

func isSQLiteBusy(err error) bool {
	if err == nil {
		return false
	}
	var coder interface{ Code() int }
	if errors.As(err, &coder) && coder.Code() == sqliteBusyCode {
		return true
	}
	msg := err.Error()
	return strings.Contains(msg, "SQLITE_BUSY") || strings.Contains(msg, "database is locked")
}

func retryOnBusy(ctx context.Context, op func() error) error {
	delay := busyRetryInitialBackoff
	var lastErr error
	for attempt := 0; attempt < busyRetryAttempts; attempt++ {
		lastErr = op()
		if lastErr == nil {
			return nil
		}
		if !isSQLiteBusy(lastErr) || attempt == busyRetryAttempts-1 {
			break
		}
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return ctx.Err()
		}
		if next := delay * 2; next <= busyRetryMaxBackoff {
			delay = next
		}
	}
	return lastErr
}

func (s *Store) execWithRetry(ctx context.Context, query string, args ...any) (sql.Result, error) {
	ctx = ensureContext(ctx)
	var (
		res     sql.Result
		execErr error
	)
	if err := retryOnBusy(ctx, func() error {
		res, execErr = s.db.ExecContext(ctx, query, args...)
		return execErr
	}); err != nil {
		return nil, err
	}
	return res, nil
}
