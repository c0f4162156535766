package queue

import (
	"strings"
	"time"
)

// Type is the kind of pipeline a job runs.
type Type string

const (
	TypeDownload    Type = "download"
	TypeOrganize    Type = "organize"
	TypeFilterAudio Type = "filter_audio"
	TypeConvert     Type = "convert"
	TypeComposite   Type = "composite"
)

var allTypes = []Type{TypeDownload, TypeOrganize, TypeFilterAudio, TypeConvert, TypeComposite}

// ParseType converts a string into a known job Type.
func ParseType(value string) (Type, bool) {
	normalized := Type(strings.ToLower(strings.TrimSpace(value)))
	for _, t := range allTypes {
		if t == normalized {
			return t, true
		}
	}
	return "", false
}

// Status represents the lifecycle of a job.
type Status string

const (
	StatusPending   Status = "pending"
	StatusRunning   Status = "running"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
	StatusCancelled Status = "cancelled"
)

var allStatuses = []Status{StatusPending, StatusRunning, StatusCompleted, StatusFailed, StatusCancelled}

// ParseStatus converts a string into a known Status.
func ParseStatus(value string) (Status, bool) {
	normalized := Status(strings.ToLower(strings.TrimSpace(value)))
	for _, status := range allStatuses {
		if status == normalized {
			return status, true
		}
	}
	return "", false
}

// IsTerminal reports whether a status permits no further transitions.
func (s Status) IsTerminal() bool {
	switch s {
	case StatusCompleted, StatusFailed, StatusCancelled:
		return true
	default:
		return false
	}
}

// Phase is one stage of a job's pipeline.
type Phase string

const (
	PhaseDownloading Phase = "downloading"
	PhaseFiltering   Phase = "filtering"
	PhaseOrganizing  Phase = "organizing"
	PhaseUploading   Phase = "uploading"
	PhaseScanning    Phase = "scanning"
)

// PhaseOrder is the fixed execution order; job types skip entries that do
// not apply to them.
var PhaseOrder = []Phase{PhaseDownloading, PhaseFiltering, PhaseOrganizing, PhaseUploading, PhaseScanning}

// LogLevel classifies a job log entry.
type LogLevel string

const (
	LevelInfo    LogLevel = "info"
	LevelSuccess LogLevel = "success"
	LevelWarning LogLevel = "warning"
	LevelError   LogLevel = "error"
)

// Destination is the caller's choice of storage location.
type Destination struct {
	Target   string `json:"target,omitempty"`
	Path     string `json:"path,omitempty"`
	Category string `json:"category,omitempty"`
}

// Summary carries the per-job work counters.
type Summary struct {
	Downloaded  int   `json:"downloaded"`
	Renamed     int   `json:"renamed"`
	Filtered    int   `json:"filtered"`
	Transferred int   `json:"transferred"`
	Failed      int   `json:"failed"`
	TotalSize   int64 `json:"total_size"`
}

// Job is one orchestrated pipeline execution persisted in SQLite.
type Job struct {
	ID              string      `json:"id"`
	Type            Type        `json:"type"`
	Status          Status      `json:"status"`
	Phase           Phase       `json:"phase,omitempty"`
	Progress        float64     `json:"progress"`
	Input           []string    `json:"input"`
	TargetLanguage  string      `json:"target_language,omitempty"`
	Destination     Destination `json:"destination"`
	Output          string      `json:"output,omitempty"`
	ResolvedJSON    string      `json:"-"`
	Summary         Summary     `json:"summary"`
	ErrorMessage    string      `json:"error,omitempty"`
	CancelRequested bool        `json:"cancel_requested,omitempty"`
	CreatedAt       time.Time   `json:"created_at"`
	StartedAt       *time.Time  `json:"started_at,omitempty"`
	CompletedAt     *time.Time  `json:"completed_at,omitempty"`
	LastHeartbeat   *time.Time  `json:"-"`
}

// LogEntry is one append-only log line scoped to a job. Sequence numbers
// are strictly increasing per job.
type LogEntry struct {
	JobID     string    `json:"job_id"`
	Sequence  int64     `json:"sequence"`
	Timestamp time.Time `json:"timestamp"`
	Level     LogLevel  `json:"level"`
	Message   string    `json:"message"`
}

// SetFailed marks the job failed with the given message.
func (j *Job) SetFailed(message string) {
	now := time.Now().UTC()
	j.Status = StatusFailed
	j.ErrorMessage = message
	j.CompletedAt = &now
	j.LastHeartbeat = nil
}

// SetCompleted marks the job completed and pins progress at 100.
func (j *Job) SetCompleted() {
	now := time.Now().UTC()
	j.Status = StatusCompleted
	j.Progress = 100
	j.Phase = ""
	j.CompletedAt = &now
	j.LastHeartbeat = nil
}

// SetCancelled records a cooperative cancellation.
func (j *Job) SetCancelled() {
	now := time.Now().UTC()
	j.Status = StatusCancelled
	j.Phase = ""
	j.CompletedAt = &now
	j.LastHeartbeat = nil
}
