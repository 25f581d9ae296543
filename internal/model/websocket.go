package model

// WebSocket message types pushed to job subscribers.
const (
	WSMessageTypeProgress = "progress"
	WSMessageTypeComplete = "complete"
	WSMessageTypeError    = "error"
	WSMessageTypePing     = "ping"
	WSMessageTypePong     = "pong"
)

// WSMessage is the minimal envelope read from clients.
type WSMessage struct {
	Type string `json:"type"`
}

// WSProgressMessage reports a pipeline stage transition for a job.
type WSProgressMessage struct {
	Type   string    `json:"type"`
	JobID  string    `json:"job_id"`
	Status JobStatus `json:"status"`
	Stage  string    `json:"stage"`
}

// WSCompleteMessage carries the terminal success record.
type WSCompleteMessage struct {
	Type      string `json:"type"`
	JobID     string `json:"job_id"`
	VideoPath string `json:"video_path"`
}

// WSErrorMessage carries the terminal failure record.
type WSErrorMessage struct {
	Type    string `json:"type"`
	JobID   string `json:"job_id"`
	Code    string `json:"code"`
	Message string `json:"message"`
}
