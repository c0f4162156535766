package publisher

import (
	"time"

	"shuttle/internal/queue"
)

// EventType discriminates hub event payloads.
type EventType string

const (
	EventLog      EventType = "log"
	EventProgress EventType = "progress"
	EventStatus   EventType = "status"
)

// Event is a single published update for a job. Log events carry the
// persisted log entry; progress and status events carry a job snapshot.
type Event struct {
	Sequence  uint64          `json:"seq"`
	Timestamp time.Time       `json:"ts"`
	Type      EventType       `json:"type"`
	JobID     string          `json:"job_id"`
	Log       *queue.LogEntry `json:"log,omitempty"`
	Job       *queue.Job      `json:"job,omitempty"`
}

// LogSeq returns the per-job log sequence for log events, zero otherwise.
func (e Event) LogSeq() int64 {
	if e.Log == nil {
		return 0
	}
	return e.Log.Sequence
}
