package model

import "time"

// JobStatus is the lifecycle state of a video generation job.
// Transitions are monotonic: processing -> success | error, nothing after.
type JobStatus string

const (
	JobStatusProcessing JobStatus = "processing"
	JobStatusSuccess    JobStatus = "success"
	JobStatusError      JobStatus = "error"
)

// Terminal reports whether no further status transition is allowed.
func (s JobStatus) Terminal() bool {
	return s == JobStatusSuccess || s == JobStatusError
}

// Job is one end-to-end request to produce a video asset from a prompt.
// The wire format is snake_case to stay compatible with existing clients.
type Job struct {
	ID        string    `json:"id"`
	Prompt    string    `json:"-"`
	Status    JobStatus `json:"status"`
	Message   string    `json:"message"`
	VideoPath string    `json:"video_path,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}
