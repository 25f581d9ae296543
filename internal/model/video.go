package model

import "time"

// GenerateVideoRequest is the body of POST /generate-video.
type GenerateVideoRequest struct {
	Prompt string `json:"prompt" validate:"required,min=1"`
}

// GenerateVideoResponse acknowledges an accepted job.
type GenerateVideoResponse struct {
	Status  string `json:"status"`
	Message string `json:"message"`
	JobID   string `json:"job_id"`
}

// JobStatusResponse is the polling view of a job record.
type JobStatusResponse struct {
	Status    JobStatus `json:"status"`
	Message   string    `json:"message"`
	VideoPath string    `json:"video_path,omitempty"`
	CreatedAt time.Time `json:"created_at,omitempty"`
}

// SceneAttemptResult records the outcome of one scene's pipeline pass.
type SceneAttemptResult struct {
	SceneIndex   int
	Code         string
	RenderPath   string
	AudioApplied bool
}
