package sessions

import "time"

// Status values reported by discovery.
const (
	StatusRunning     = "running"
	StatusInterrupted = "interrupted"
)

// ProcessMetadata is the data stored on disk to track a live agent process.
type ProcessMetadata struct {
	SessionID        string    `json:"session_id"`
	Family           string    `json:"family"`
	PID              int       `json:"pid"`
	Command          string    `json:"command"`
	Args             []string  `json:"args,omitempty"`
	WorkingDirectory string    `json:"working_directory"`
	User             string    `json:"user"`
	DaemonPID        int       `json:"daemon_pid"`
	StartedAt        time.Time `json:"started_at"`

	// Status is filled in by discovery and never written.
	Status string `json:"-"`
}
