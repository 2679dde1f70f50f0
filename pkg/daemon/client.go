// Package daemon provides clients for the relay daemon (relay serve).
// RemoteClient talks to a running daemon over its unix socket; LocalClient
// drives an in-process registry with the same API.
package daemon

import (
	"context"

	"github.com/grovetools/relay/pkg/events"
	"github.com/grovetools/relay/pkg/models"
)

// Client defines the operations the CLI performs against a relay daemon.
// Both RemoteClient (HTTP) and LocalClient (in-process) implement it.
type Client interface {
	// StartSession creates a session or, with req.Reset, resets one.
	StartSession(ctx context.Context, req models.StartSessionRequest) error

	// SendMessage submits a user turn. A busy session reports the
	// rejection on the event stream, not as an error.
	SendMessage(ctx context.Context, sessionID, text string) error

	// StopSession terminates the running turn.
	StopSession(ctx context.Context, sessionID string) (bool, error)

	// RemoveSession stops and forgets a session.
	RemoveSession(ctx context.Context, sessionID string) (bool, error)

	// ListSessions returns metadata for every session.
	ListSessions(ctx context.Context) ([]models.SessionMetadata, error)

	// GetSession returns the metadata, configuration and homes of a session.
	GetSession(ctx context.Context, sessionID string) (*models.SessionDetail, error)

	// RequestWorktree relocates a session to another worktree.
	RequestWorktree(ctx context.Context, sessionID string, req models.WorktreeRequest) (bool, error)

	// SetHandover stores text in the session's handover slot.
	SetHandover(ctx context.Context, sessionID, text string) error

	// TakeHandover consumes the session's handover slot.
	TakeHandover(ctx context.Context, sessionID string) (string, error)

	// Stream subscribes to events for one session, or all sessions when
	// sessionID is empty. The channel closes when ctx ends or the
	// connection is lost.
	Stream(ctx context.Context, sessionID string) (<-chan events.Event, error)

	// GetConfig describes the daemon serving requests.
	GetConfig(ctx context.Context) (*models.RunningConfig, error)

	// IsRunning returns true if a daemon is available and responding.
	IsRunning() bool

	// Close cleans up any resources used by the client.
	Close() error
}

// Frame types exchanged on the session websocket.
const (
	FrameSend  = "send"
	FrameStop  = "stop"
	FrameEvent = "event"
	FrameError = "error"
)

// Frame is one websocket message. Clients send "send" and "stop" frames;
// the daemon answers with "event" and "error" frames.
type Frame struct {
	Type  string        `json:"type"`
	Text  string        `json:"text,omitempty"`
	Event *events.Event `json:"event,omitempty"`
	Error string        `json:"error,omitempty"`
}
