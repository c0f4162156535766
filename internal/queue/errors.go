package queue

import "errors"

var (
	// ErrAlreadyTerminal signals an attempted mutation of a finished job.
	// Callers treat it as a no-op condition, not a crash.
	ErrAlreadyTerminal = errors.New("job already terminal")
	// ErrNotFound signals an unknown job id.
	ErrNotFound = errors.New("job not found")
	// ErrNotTerminal signals removal of a job that is still live.
	ErrNotTerminal = errors.New("job not terminal")
)
