package logging

// Shared structured field names. Handlers and the publisher key off these,
// so components must not invent variant spellings.
const (
	FieldComponent = "component"
	FieldJobID     = "job_id"
	FieldJobType   = "job_type"
	FieldPhase     = "phase"
	FieldEventType = "event_type"
	FieldErrorHint = "error_hint"
	FieldTarget    = "target"
	FieldCategory  = "category"
	FieldAttempt   = "attempt"
	FieldRequestID = "request_id"
)
