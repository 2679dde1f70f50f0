package models

import (
	"encoding/json"
	"time"
)

// EventKind classifies a canonical event.
type EventKind string

const (
	KindText       EventKind = "text"
	KindToolCall   EventKind = "tool_call"
	KindToolResult EventKind = "tool_result"
	KindThinking   EventKind = "thinking"
	KindError      EventKind = "error"
	KindSystem     EventKind = "system"
)

// CanonicalEvent is one normalized unit of agent output.
type CanonicalEvent struct {
	Text            string          `json:"text"`
	Kind            EventKind       `json:"kind"`
	ResumeTokenHint string          `json:"resumeTokenHint,omitempty"`
	Raw             json.RawMessage `json:"raw,omitempty"`
}

// LogEvent is a canonical event attributed to a session.
type LogEvent struct {
	SessionID   string          `json:"sessionId"`
	Data        string          `json:"data"`
	Kind        EventKind       `json:"kind"`
	Raw         json.RawMessage `json:"raw,omitempty"`
	ResumeToken string          `json:"resumeToken,omitempty"`
	Time        time.Time       `json:"time"`
}

// StateChange is published after every observable transition.
type StateChange struct {
	SessionID  string         `json:"sessionId"`
	StateValue SessionState   `json:"stateValue"`
	Context    SessionContext `json:"context"`
	Snapshot   *Snapshot      `json:"persistableSnapshot,omitempty"`
}
