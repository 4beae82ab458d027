package api

// dateTimeFormat is used for RFC3339 timestamps in API payloads.
const dateTimeFormat = "2006-01-02T15:04:05.000Z07:00"

// Job describes a queue entry in a transport-friendly format.
type Job struct {
	ID               string `json:"id"`
	SubmitterID      string `json:"submitter_id,omitempty"`
	SourceURL        string `json:"source_url"`
	Status           string `json:"status"`
	Priority         int    `json:"priority"`
	Attempts         int    `json:"attempts"`
	MaxAttempts      int    `json:"max_attempts"`
	WorkerID         string `json:"worker_id,omitempty"`
	StartedAt        string `json:"started_at,omitempty"`
	FinishedAt       string `json:"finished_at,omitempty"`
	LastError        string `json:"last_error,omitempty"`
	Transcript       string `json:"transcript,omitempty"`
	TranscriptFormat string `json:"transcript_format,omitempty"`
	DurationSeconds  *int   `json:"duration_seconds,omitempty"`
	SizeBytes        *int64 `json:"size_bytes,omitempty"`
	CreatedAt        string `json:"created_at"`
	UpdatedAt        string `json:"updated_at"`
}

// EnqueueRequest carries a new job submission.
type EnqueueRequest struct {
	SubmitterID string `json:"submitter_id,omitempty"`
	SourceURL   string `json:"source_url"`
	Priority    int    `json:"priority"`
	// MaxAttempts of zero uses queue.default_max_attempts.
	MaxAttempts int `json:"max_attempts,omitempty"`
}

// EnqueueResponse returns the id of a created job.
type EnqueueResponse struct {
	ID string `json:"id"`
}

// ClaimRequest asks for up to Limit jobs on behalf of WorkerID.
type ClaimRequest struct {
	WorkerID string `json:"worker_id"`
	Limit    int    `json:"limit"`
}

// ClaimResponse wraps the claimed jobs in claim order.
type ClaimResponse struct {
	Jobs []Job `json:"jobs"`
}

// FinalizeRequest carries the terminal outcome of a job.
type FinalizeRequest struct {
	Status           string `json:"status"`
	Transcript       string `json:"transcript,omitempty"`
	TranscriptFormat string `json:"transcript_format,omitempty"`
	Error            string `json:"error,omitempty"`
	DurationSeconds  *int   `json:"duration_seconds,omitempty"`
	SizeBytes        *int64 `json:"size_bytes,omitempty"`
}

// RequeueRequest names the worker handing the job back.
type RequeueRequest struct {
	WorkerID string `json:"worker_id"`
}

// RequeueResponse reports where a requeued job ended up.
type RequeueResponse struct {
	ID     string `json:"id"`
	Status string `json:"status"`
}

// JobListResponse wraps a collection of jobs for API responses.
type JobListResponse struct {
	Jobs []Job `json:"jobs"`
}

// QueueStatsResponse provides a normalized queue stats payload.
type QueueStatsResponse struct {
	Counts map[string]int `json:"counts"`
	Total  int            `json:"total"`
}

// DatabaseHealth mirrors queue.DatabaseHealth for transports.
type DatabaseHealth struct {
	Driver         string `json:"driver"`
	Target         string `json:"target"`
	Reachable      bool   `json:"reachable"`
	SchemaVersion  int    `json:"schema_version"`
	TableExists    bool   `json:"table_exists"`
	IntegrityCheck bool   `json:"integrity_check"`
	TotalJobs      int    `json:"total_jobs"`
	Transient      bool   `json:"transient,omitempty"`
	Error          string `json:"error,omitempty"`
}

// HealthReport aggregates database diagnostics and queue counts.
type HealthReport struct {
	Healthy  bool           `json:"healthy"`
	Database DatabaseHealth `json:"database"`
	Counts   map[string]int `json:"counts,omitempty"`
}

// ErrorResponse is the body returned for failed requests.
type ErrorResponse struct {
	Error string `json:"error"`
	Kind  string `json:"kind"`
}
