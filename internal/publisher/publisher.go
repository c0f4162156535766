package publisher

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"shuttle/internal/logging"
	"shuttle/internal/queue"
)

// Store is the subset of the queue store the publisher persists through.
type Store interface {
	AppendLog(ctx context.Context, jobID string, level queue.LogLevel, message string) (int64, error)
	UpdateProgress(ctx context.Context, id string, phase queue.Phase, progress float64) error
}

// Publisher persists progress and log updates for a job and mirrors them
// to the hub so long-poll subscribers wake immediately. Persistence
// failures never abort the job; they are logged and the in-memory event
// still goes out.
type Publisher struct {
	store  Store
	hub    *Hub
	logger *slog.Logger
}

// New wires a publisher over the given store and hub.
func New(store Store, hub *Hub, logger *slog.Logger) *Publisher {
	return &Publisher{
		store:  store,
		hub:    hub,
		logger: logging.NewComponentLogger(logger, "publisher"),
	}
}

// Log appends a job log line and publishes it.
func (p *Publisher) Log(ctx context.Context, jobID string, level queue.LogLevel, format string, args ...any) {
	message := fmt.Sprintf(format, args...)
	entry := queue.LogEntry{
		JobID:     jobID,
		Timestamp: time.Now().UTC(),
		Level:     level,
		Message:   message,
	}
	seq, err := p.store.AppendLog(ctx, jobID, level, message)
	if err != nil {
		p.logger.Warn("log entry not persisted",
			logging.String(logging.FieldJobID, jobID),
			logging.Error(err),
		)
	} else {
		entry.Sequence = seq
	}
	p.hub.Publish(Event{Type: EventLog, JobID: jobID, Log: &entry})

	p.daemonLog(level, jobID, message)
}

// runningCeiling is the highest progress a running snapshot may report;
// 100 is pinned by the completion transition alone.
const runningCeiling = 99.9

// Progress persists a monotonic progress update and publishes a snapshot.
// The job argument is mutated so callers hold the current view.
func (p *Publisher) Progress(ctx context.Context, job *queue.Job, phase queue.Phase, progress float64, message string) {
	if progress < 0 {
		progress = 0
	}
	if progress > runningCeiling {
		progress = runningCeiling
	}
	if progress > job.Progress {
		job.Progress = progress
	}
	job.Phase = phase

	if err := p.store.UpdateProgress(ctx, job.ID, phase, job.Progress); err != nil {
		p.logger.Warn("progress update not persisted",
			logging.String(logging.FieldJobID, job.ID),
			logging.Error(err),
		)
	}

	snapshot := *job
	p.hub.Publish(Event{Type: EventProgress, JobID: job.ID, Job: &snapshot})

	if message != "" {
		p.Log(ctx, job.ID, queue.LevelInfo, "%s", message)
	}
}

// Status publishes a job snapshot without touching progress, used on
// lifecycle transitions (claimed, completed, failed, cancelled).
func (p *Publisher) Status(job *queue.Job) {
	snapshot := *job
	p.hub.Publish(Event{Type: EventStatus, JobID: job.ID, Job: &snapshot})
}

// Hub exposes the underlying hub for subscribers.
func (p *Publisher) Hub() *Hub {
	return p.hub
}

func (p *Publisher) daemonLog(level queue.LogLevel, jobID, message string) {
	attrs := []any{logging.String(logging.FieldJobID, jobID)}
	switch level {
	case queue.LevelError:
		p.logger.Error(message, attrs...)
	case queue.LevelWarning:
		p.logger.Warn(message, attrs...)
	default:
		p.logger.Info(message, attrs...)
	}
}
