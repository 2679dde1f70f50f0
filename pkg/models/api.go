package models

import "time"

// StartSessionRequest is the body of POST /api/sessions.
type StartSessionRequest struct {
	SessionID string        `json:"session_id"`
	Command   string        `json:"command,omitempty"`
	Config    SessionConfig `json:"config"`
	// Reset requires the session to exist already.
	Reset bool `json:"reset,omitempty"`
}

// SendMessageRequest is the body of POST /api/sessions/{id}/messages.
type SendMessageRequest struct {
	Text string `json:"text"`
}

// HandoverRequest is the body of PUT /api/sessions/{id}/handover.
type HandoverRequest struct {
	Text string `json:"text"`
}

// HandoverResponse is returned when the handover slot is consumed.
type HandoverResponse struct {
	Text string `json:"text"`
}

// AcceptedResponse reports whether a request took effect.
type AcceptedResponse struct {
	Accepted bool `json:"accepted"`
}

// SessionDetail is returned by GET /api/sessions/{id}.
type SessionDetail struct {
	Metadata SessionMetadata `json:"metadata"`
	Config   SessionConfig   `json:"config"`
	Homes    SessionHomes    `json:"homes"`
}

// RunningConfig describes the daemon that answered a request.
type RunningConfig struct {
	PID       int               `json:"pid"`
	Version   string            `json:"version"`
	Socket    string            `json:"socket"`
	StartedAt time.Time         `json:"started_at"`
	Sources   map[string]string `json:"sources,omitempty"`
	Sessions  int               `json:"sessions"`
	Agents    []string          `json:"agents,omitempty"`
}
