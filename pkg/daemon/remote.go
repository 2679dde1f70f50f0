package daemon

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/grovetools/relay/errors"
	"github.com/grovetools/relay/pkg/events"
	"github.com/grovetools/relay/pkg/models"
)

// RemoteClient implements Client by calling the daemon's HTTP API over a Unix socket.
type RemoteClient struct {
	httpClient *http.Client
	socketPath string
}

// NewRemoteClient creates a new RemoteClient connected to the daemon socket.
func NewRemoteClient(socketPath string) (*RemoteClient, error) {
	// Create HTTP client that dials Unix socket
	transport := &http.Transport{
		DialContext: func(ctx context.Context, _, _ string) (net.Conn, error) {
			var d net.Dialer
			return d.DialContext(ctx, "unix", socketPath)
		},
		DisableKeepAlives: false,
		MaxIdleConns:      10,
		IdleConnTimeout:   90 * time.Second,
	}

	client := &http.Client{
		Transport: transport,
		Timeout:   30 * time.Second,
	}

	return &RemoteClient{
		httpClient: client,
		socketPath: socketPath,
	}, nil
}

// baseURL is the dummy host used for Unix socket HTTP requests.
// The actual connection goes through the Unix socket, not this URL.
const baseURL = "http://unix"

func sessionPath(id string, suffix string) string {
	return "/api/sessions/" + url.PathEscape(id) + suffix
}

// do sends a request with an optional JSON body and decodes a JSON reply
// into out. Error replies are decoded back into RelayErrors.
func (c *RemoteClient) do(ctx context.Context, method, path string, body, out interface{}) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to encode request: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return errors.DaemonUnavailable(c.socketPath, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		var relayErr errors.RelayError
		if err := json.NewDecoder(resp.Body).Decode(&relayErr); err == nil && relayErr.Code != "" {
			return &relayErr
		}
		return fmt.Errorf("daemon returned status %d", resp.StatusCode)
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}

// StartSession creates or resets a session on the daemon.
func (c *RemoteClient) StartSession(ctx context.Context, req models.StartSessionRequest) error {
	return c.do(ctx, http.MethodPost, "/api/sessions", req, nil)
}

// SendMessage submits a user turn.
func (c *RemoteClient) SendMessage(ctx context.Context, sessionID, text string) error {
	return c.do(ctx, http.MethodPost, sessionPath(sessionID, "/messages"), models.SendMessageRequest{Text: text}, nil)
}

// StopSession terminates the running turn.
func (c *RemoteClient) StopSession(ctx context.Context, sessionID string) (bool, error) {
	var resp models.AcceptedResponse
	err := c.do(ctx, http.MethodPost, sessionPath(sessionID, "/stop"), nil, &resp)
	return resp.Accepted, err
}

// RemoveSession stops and forgets a session.
func (c *RemoteClient) RemoveSession(ctx context.Context, sessionID string) (bool, error) {
	var resp models.AcceptedResponse
	err := c.do(ctx, http.MethodDelete, sessionPath(sessionID, ""), nil, &resp)
	return resp.Accepted, err
}

// ListSessions returns metadata for every session.
func (c *RemoteClient) ListSessions(ctx context.Context) ([]models.SessionMetadata, error) {
	var list []models.SessionMetadata
	if err := c.do(ctx, http.MethodGet, "/api/sessions", nil, &list); err != nil {
		return nil, err
	}
	return list, nil
}

// GetSession returns one session's details.
func (c *RemoteClient) GetSession(ctx context.Context, sessionID string) (*models.SessionDetail, error) {
	var detail models.SessionDetail
	if err := c.do(ctx, http.MethodGet, sessionPath(sessionID, ""), nil, &detail); err != nil {
		return nil, err
	}
	return &detail, nil
}

// RequestWorktree relocates a session.
func (c *RemoteClient) RequestWorktree(ctx context.Context, sessionID string, req models.WorktreeRequest) (bool, error) {
	var resp models.AcceptedResponse
	err := c.do(ctx, http.MethodPost, sessionPath(sessionID, "/worktree"), req, &resp)
	return resp.Accepted, err
}

// SetHandover stores handover text.
func (c *RemoteClient) SetHandover(ctx context.Context, sessionID, text string) error {
	return c.do(ctx, http.MethodPut, sessionPath(sessionID, "/handover"), models.HandoverRequest{Text: text}, nil)
}

// TakeHandover consumes the handover text.
func (c *RemoteClient) TakeHandover(ctx context.Context, sessionID string) (string, error) {
	var resp models.HandoverResponse
	err := c.do(ctx, http.MethodDelete, sessionPath(sessionID, "/handover"), nil, &resp)
	return resp.Text, err
}

// GetConfig describes the running daemon.
func (c *RemoteClient) GetConfig(ctx context.Context) (*models.RunningConfig, error) {
	var cfg models.RunningConfig
	if err := c.do(ctx, http.MethodGet, "/api/config", nil, &cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// IsRunning returns true if the daemon is available and responding.
func (c *RemoteClient) IsRunning() bool {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, "GET", baseURL+"/health", nil)
	if err != nil {
		return false
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return false
	}
	resp.Body.Close()
	return resp.StatusCode == http.StatusOK
}

// Stream subscribes to events via Server-Sent Events (SSE).
func (c *RemoteClient) Stream(ctx context.Context, sessionID string) (<-chan events.Event, error) {
	path := "/api/stream"
	if sessionID != "" {
		path += "?session=" + url.QueryEscape(sessionID)
	}
	req, err := http.NewRequestWithContext(ctx, "GET", baseURL+path, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create stream request: %w", err)
	}

	// Use a separate client with no timeout for streaming
	streamTransport := &http.Transport{
		DialContext: func(dialCtx context.Context, _, _ string) (net.Conn, error) {
			var d net.Dialer
			return d.DialContext(dialCtx, "unix", c.socketPath)
		},
	}
	streamClient := &http.Client{
		Transport: streamTransport,
		Timeout:   0, // No timeout for streaming
	}

	resp, err := streamClient.Do(req)
	if err != nil {
		return nil, errors.DaemonUnavailable(c.socketPath, err)
	}

	if resp.StatusCode != http.StatusOK {
		resp.Body.Close()
		return nil, fmt.Errorf("stream returned status %d", resp.StatusCode)
	}

	ch := make(chan events.Event, events.DefaultBuffer)

	go func() {
		defer resp.Body.Close()
		defer close(ch)
		defer streamTransport.CloseIdleConnections()

		scanner := bufio.NewScanner(resp.Body)
		scanner.Buffer(make([]byte, 0, 64*1024), 10*1024*1024)
		for scanner.Scan() {
			line := scanner.Text()

			// Skip comments and empty lines
			if strings.HasPrefix(line, ":") || line == "" {
				continue
			}

			if strings.HasPrefix(line, "data: ") {
				var ev events.Event
				if err := json.Unmarshal([]byte(strings.TrimPrefix(line, "data: ")), &ev); err != nil {
					continue // Skip malformed data
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

// Attach opens a websocket channel to one session.
func (c *RemoteClient) Attach(ctx context.Context, sessionID string) (*Channel, error) {
	dialer := websocket.Dialer{
		NetDialContext: func(dialCtx context.Context, _, _ string) (net.Conn, error) {
			var d net.Dialer
			return d.DialContext(dialCtx, "unix", c.socketPath)
		},
		HandshakeTimeout: 10 * time.Second,
	}

	conn, resp, err := dialer.DialContext(ctx, "ws://unix"+sessionPath(sessionID, "/ws"), nil)
	if err != nil {
		if resp != nil && resp.StatusCode == http.StatusNotFound {
			return nil, errors.SessionNotFound(sessionID)
		}
		return nil, errors.DaemonUnavailable(c.socketPath, err)
	}
	return newChannel(conn), nil
}

// Close cleans up any resources used by the client.
func (c *RemoteClient) Close() error {
	c.httpClient.CloseIdleConnections()
	return nil
}

// Ensure RemoteClient implements Client interface.
var _ Client = (*RemoteClient)(nil)

// Channel is an attached websocket connection to one session.
type Channel struct {
	conn   *websocket.Conn
	frames chan Frame
	writeM sync.Mutex
}

func newChannel(conn *websocket.Conn) *Channel {
	ch := &Channel{conn: conn, frames: make(chan Frame, events.DefaultBuffer)}
	go func() {
		defer close(ch.frames)
		for {
			var frame Frame
			if err := conn.ReadJSON(&frame); err != nil {
				return
			}
			ch.frames <- frame
		}
	}()
	return ch
}

// Frames returns the frames sent by the daemon. It closes when the
// connection ends.
func (c *Channel) Frames() <-chan Frame {
	return c.frames
}

// Send submits a user message.
func (c *Channel) Send(text string) error {
	return c.write(Frame{Type: FrameSend, Text: text})
}

// Stop terminates the running turn.
func (c *Channel) Stop() error {
	return c.write(Frame{Type: FrameStop})
}

func (c *Channel) write(frame Frame) error {
	c.writeM.Lock()
	defer c.writeM.Unlock()
	return c.conn.WriteJSON(frame)
}

// Close ends the connection.
func (c *Channel) Close() error {
	c.writeM.Lock()
	_ = c.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
	c.writeM.Unlock()
	return c.conn.Close()
}
