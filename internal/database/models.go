package database

import "time"

// Job statuses. A job is pending until the worker picks it up; a global
// stop reverts processing jobs to pending, abandoning partial output.
const (
	JobPending    = "pending"
	JobProcessing = "processing"
	JobCompleted  = "completed"
	JobFailed     = "failed"
)

// TranscodeJob is one unit of background pre-transcoding work.
type TranscodeJob struct {
	ID           string    `json:"id"`
	SourcePath   string    `json:"sourcePath"`
	Status       string    `json:"status"`
	HighPriority bool      `json:"highPriority"`
	Position     int       `json:"position"`
	Progress     float64   `json:"progress"`
	Speed        float64   `json:"speed"`
	ETASeconds   float64   `json:"etaSeconds"`
	OutputPath   string    `json:"outputPath,omitempty"`
	Error        string    `json:"error,omitempty"`
	EnqueuedAt   time.Time `json:"enqueuedAt"`
	StartedAt    time.Time `json:"startedAt,omitzero"`
	CompletedAt  time.Time `json:"completedAt,omitzero"`
}
