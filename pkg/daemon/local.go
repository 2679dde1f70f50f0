package daemon

import (
	"context"
	"os"
	"time"

	"github.com/grovetools/relay/errors"
	"github.com/grovetools/relay/pkg/events"
	"github.com/grovetools/relay/pkg/models"
	"github.com/grovetools/relay/pkg/relay"
)

// LocalClient implements Client against an in-process registry. Sessions
// live only as long as the client.
type LocalClient struct {
	registry  *relay.Registry
	startedAt time.Time
}

// NewLocalClient wraps registry. Closing the client closes the registry.
func NewLocalClient(registry *relay.Registry) *LocalClient {
	return &LocalClient{registry: registry, startedAt: time.Now()}
}

// Registry returns the wrapped registry.
func (c *LocalClient) Registry() *relay.Registry {
	return c.registry
}

// StartSession creates or resets a session.
func (c *LocalClient) StartSession(ctx context.Context, req models.StartSessionRequest) error {
	if req.Reset {
		return c.registry.ResetSession(req.SessionID, req.Command, req.Config)
	}
	return c.registry.StartSession(req.SessionID, req.Command, req.Config)
}

// SendMessage submits a user turn.
func (c *LocalClient) SendMessage(ctx context.Context, sessionID, text string) error {
	return c.registry.SendToSession(sessionID, text)
}

// StopSession terminates the running turn.
func (c *LocalClient) StopSession(ctx context.Context, sessionID string) (bool, error) {
	if !c.registry.StopSession(sessionID) {
		return false, errors.SessionNotFound(sessionID)
	}
	return true, nil
}

// RemoveSession stops and forgets a session.
func (c *LocalClient) RemoveSession(ctx context.Context, sessionID string) (bool, error) {
	if !c.registry.RemoveSession(sessionID) {
		return false, errors.SessionNotFound(sessionID)
	}
	return true, nil
}

// ListSessions returns metadata for every session.
func (c *LocalClient) ListSessions(ctx context.Context) ([]models.SessionMetadata, error) {
	ids := c.registry.ListSessions()
	list := make([]models.SessionMetadata, 0, len(ids))
	for _, id := range ids {
		if meta, err := c.registry.SessionMetadata(id); err == nil {
			list = append(list, meta)
		}
	}
	return list, nil
}

// GetSession returns one session's details.
func (c *LocalClient) GetSession(ctx context.Context, sessionID string) (*models.SessionDetail, error) {
	meta, err := c.registry.SessionMetadata(sessionID)
	if err != nil {
		return nil, err
	}
	cfg, _ := c.registry.SessionConfig(sessionID)
	homes, _ := c.registry.SessionHomes(sessionID)
	return &models.SessionDetail{Metadata: meta, Config: cfg, Homes: homes}, nil
}

// RequestWorktree relocates a session.
func (c *LocalClient) RequestWorktree(ctx context.Context, sessionID string, req models.WorktreeRequest) (bool, error) {
	if _, err := c.registry.SessionMetadata(sessionID); err != nil {
		return false, err
	}
	return c.registry.RequestWorktreeResume(sessionID, req), nil
}

// SetHandover stores handover text.
func (c *LocalClient) SetHandover(ctx context.Context, sessionID, text string) error {
	if !c.registry.SetPendingHandover(sessionID, text) {
		return errors.SessionNotFound(sessionID)
	}
	return nil
}

// TakeHandover consumes the handover text.
func (c *LocalClient) TakeHandover(ctx context.Context, sessionID string) (string, error) {
	if _, err := c.registry.SessionMetadata(sessionID); err != nil {
		return "", err
	}
	return c.registry.ConsumePendingHandover(sessionID), nil
}

// Stream forwards registry events until ctx ends.
func (c *LocalClient) Stream(ctx context.Context, sessionID string) (<-chan events.Event, error) {
	sub := c.registry.Subscribe(sessionID, 0)
	ch := make(chan events.Event, events.DefaultBuffer)
	go func() {
		defer close(ch)
		defer sub.Close()
		for {
			select {
			case <-ctx.Done():
				return
			case ev, ok := <-sub.C:
				if !ok {
					return
				}
				select {
				case ch <- ev:
				case <-ctx.Done():
					return
				}
			}
		}
	}()
	return ch, nil
}

// GetConfig describes the in-process registry.
func (c *LocalClient) GetConfig(ctx context.Context) (*models.RunningConfig, error) {
	cfg := c.registry.Config()
	running := &models.RunningConfig{
		PID:       os.Getpid(),
		StartedAt: c.startedAt,
		Sessions:  len(c.registry.ListSessions()),
		Sources:   make(map[string]string),
	}
	for source, file := range cfg.Sources {
		running.Sources[string(source)] = file
	}
	for name := range cfg.Agents {
		running.Agents = append(running.Agents, name)
	}
	return running, nil
}

// IsRunning returns false since this is the in-process fallback client.
func (c *LocalClient) IsRunning() bool {
	return false
}

// Close shuts down every session.
func (c *LocalClient) Close() error {
	c.registry.Close()
	return nil
}

// Ensure LocalClient implements Client interface.
var _ Client = (*LocalClient)(nil)
