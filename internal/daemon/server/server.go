// Package server provides the HTTP server for the relay daemon.
package server

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"sort"

	"github.com/gorilla/websocket"
	"github.com/grovetools/relay/errors"
	"github.com/grovetools/relay/pkg/daemon"
	"github.com/grovetools/relay/pkg/events"
	"github.com/grovetools/relay/pkg/models"
	"github.com/grovetools/relay/pkg/relay"
	"github.com/sirupsen/logrus"
	"golang.org/x/net/http2"
	"golang.org/x/net/http2/h2c"
)

// Server manages the daemon's HTTP server over a Unix socket.
type Server struct {
	logger        *logrus.Entry
	server        *http.Server
	registry      *relay.Registry
	runningConfig *models.RunningConfig
	upgrader      websocket.Upgrader
}

// New creates a new Server instance.
func New(registry *relay.Registry, logger *logrus.Entry) *Server {
	return &Server{
		logger:   logger,
		registry: registry,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			// Only local clients can reach the socket.
			CheckOrigin: func(r *http.Request) bool { return true },
		},
	}
}

// SetRunningConfig sets what /api/config reports.
func (s *Server) SetRunningConfig(cfg *models.RunningConfig) {
	s.runningConfig = cfg
}

// Handler returns the daemon's routes.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})

	mux.HandleFunc("GET /api/sessions", s.handleListSessions)
	mux.HandleFunc("POST /api/sessions", s.handleStartSession)
	mux.HandleFunc("GET /api/sessions/{id}", s.handleGetSession)
	mux.HandleFunc("DELETE /api/sessions/{id}", s.handleRemoveSession)
	mux.HandleFunc("POST /api/sessions/{id}/messages", s.handleSendMessage)
	mux.HandleFunc("POST /api/sessions/{id}/stop", s.handleStopSession)
	mux.HandleFunc("POST /api/sessions/{id}/worktree", s.handleWorktree)
	mux.HandleFunc("PUT /api/sessions/{id}/handover", s.handleSetHandover)
	mux.HandleFunc("DELETE /api/sessions/{id}/handover", s.handleTakeHandover)
	mux.HandleFunc("GET /api/sessions/{id}/ws", s.handleWebSocket)
	mux.HandleFunc("GET /api/stream", s.handleStream)
	mux.HandleFunc("GET /api/config", s.handleGetConfig)

	return mux
}

// ListenAndServe starts the daemon on the given unix socket path.
// It blocks until the server stops or fails.
func (s *Server) ListenAndServe(socketPath string) error {
	// Cleanup stale socket
	if _, err := os.Stat(socketPath); err == nil {
		if err := os.Remove(socketPath); err != nil {
			return fmt.Errorf("failed to remove stale socket: %w", err)
		}
	}

	if err := os.MkdirAll(filepath.Dir(socketPath), 0700); err != nil {
		return fmt.Errorf("failed to create socket directory: %w", err)
	}

	listener, err := net.Listen("unix", socketPath)
	if err != nil {
		return fmt.Errorf("failed to listen on socket: %w", err)
	}

	// Set restrictive permissions on socket
	if err := os.Chmod(socketPath, 0600); err != nil {
		_ = listener.Close()
		return fmt.Errorf("failed to set socket permissions: %w", err)
	}

	s.server = &http.Server{
		Handler: h2c.NewHandler(s.Handler(), &http2.Server{}),
	}

	s.logger.WithField("socket", socketPath).Info("Daemon listening")
	err = s.server.Serve(listener)
	if err == http.ErrServerClosed {
		return nil
	}
	return err
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("Shutting down server...")
	if s.server != nil {
		return s.server.Shutdown(ctx)
	}
	return nil
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// writeError sends err as a RelayError body with a matching status code.
func writeError(w http.ResponseWriter, err error) {
	relayErr, ok := err.(*errors.RelayError)
	if !ok {
		relayErr = errors.Wrap(err, errors.ErrCodeInternal, err.Error())
	}

	status := http.StatusInternalServerError
	switch relayErr.Code {
	case errors.ErrCodeSessionNotFound:
		status = http.StatusNotFound
	case errors.ErrCodeInvalidInput:
		status = http.StatusBadRequest
	case errors.ErrCodeWorktreeUnavailable, errors.ErrCodeSessionExists:
		status = http.StatusConflict
	}
	writeJSON(w, status, relayErr)
}

func decodeBody(r *http.Request, v interface{}) error {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return errors.InvalidInput(fmt.Sprintf("invalid request body: %v", err))
	}
	return nil
}

func (s *Server) handleListSessions(w http.ResponseWriter, r *http.Request) {
	ids := s.registry.ListSessions()
	list := make([]models.SessionMetadata, 0, len(ids))
	for _, id := range ids {
		// A session removed since ListSessions is skipped.
		if meta, err := s.registry.SessionMetadata(id); err == nil {
			list = append(list, meta)
		}
	}
	writeJSON(w, http.StatusOK, list)
}

func (s *Server) handleStartSession(w http.ResponseWriter, r *http.Request) {
	var req models.StartSessionRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, err)
		return
	}

	var err error
	if req.Reset {
		err = s.registry.ResetSession(req.SessionID, req.Command, req.Config)
	} else {
		err = s.registry.StartSession(req.SessionID, req.Command, req.Config)
	}
	if err != nil {
		writeError(w, err)
		return
	}

	detail, err := s.detail(req.SessionID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, detail)
}

func (s *Server) detail(id string) (*models.SessionDetail, error) {
	meta, err := s.registry.SessionMetadata(id)
	if err != nil {
		return nil, err
	}
	cfg, err := s.registry.SessionConfig(id)
	if err != nil {
		return nil, err
	}
	homes, err := s.registry.SessionHomes(id)
	if err != nil {
		return nil, err
	}
	return &models.SessionDetail{Metadata: meta, Config: cfg, Homes: homes}, nil
}

func (s *Server) handleGetSession(w http.ResponseWriter, r *http.Request) {
	detail, err := s.detail(r.PathValue("id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, detail)
}

func (s *Server) handleRemoveSession(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if !s.registry.RemoveSession(id) {
		writeError(w, errors.SessionNotFound(id))
		return
	}
	writeJSON(w, http.StatusOK, models.AcceptedResponse{Accepted: true})
}

func (s *Server) handleSendMessage(w http.ResponseWriter, r *http.Request) {
	var req models.SendMessageRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, err)
		return
	}
	if err := s.registry.SendToSession(r.PathValue("id"), req.Text); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, models.AcceptedResponse{Accepted: true})
}

func (s *Server) handleStopSession(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if !s.registry.StopSession(id) {
		writeError(w, errors.SessionNotFound(id))
		return
	}
	writeJSON(w, http.StatusOK, models.AcceptedResponse{Accepted: true})
}

func (s *Server) handleWorktree(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	var req models.WorktreeRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, err)
		return
	}
	if _, err := s.registry.SessionMetadata(id); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, models.AcceptedResponse{Accepted: s.registry.RequestWorktreeResume(id, req)})
}

func (s *Server) handleSetHandover(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	var req models.HandoverRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, err)
		return
	}
	if !s.registry.SetPendingHandover(id, req.Text) {
		writeError(w, errors.SessionNotFound(id))
		return
	}
	writeJSON(w, http.StatusOK, models.AcceptedResponse{Accepted: true})
}

func (s *Server) handleTakeHandover(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if _, err := s.registry.SessionMetadata(id); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, models.HandoverResponse{Text: s.registry.ConsumePendingHandover(id)})
}

// handleStream provides Server-Sent Events (SSE) for session events.
// ?session=<id> limits the stream to one session.
func (s *Server) handleStream(w http.ResponseWriter, r *http.Request) {
	// Ensure the connection supports flushing
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming not supported", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	sessionID := r.URL.Query().Get("session")
	sub := s.registry.Subscribe(sessionID, 0)
	defer sub.Close()

	// Send initial ping to confirm connection
	fmt.Fprintf(w, ": connected\n\n")
	flusher.Flush()

	s.logger.WithField("session", sessionID).Debug("SSE client connected")

	for {
		select {
		case <-r.Context().Done():
			s.logger.Debug("SSE client disconnected")
			return
		case ev, ok := <-sub.C:
			if !ok {
				return
			}
			data, err := json.Marshal(ev)
			if err != nil {
				s.logger.WithError(err).Error("Failed to marshal event")
				continue
			}
			// SSE format: "data: {json}\n\n"
			fmt.Fprintf(w, "data: %s\n\n", data)
			flusher.Flush()
		}
	}
}

// handleWebSocket gives a client a bidirectional channel to one session:
// it receives the session's events and may send messages or stop turns.
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if _, err := s.registry.SessionMetadata(id); err != nil {
		writeError(w, err)
		return
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.WithError(err).Debug("WebSocket upgrade failed")
		return
	}
	defer conn.Close()

	sub := s.registry.Subscribe(id, 0)
	defer sub.Close()

	log := s.logger.WithField("session", id)
	log.Debug("WebSocket client connected")

	// Gorilla connections allow one concurrent writer.
	frames := make(chan daemon.Frame, events.DefaultBuffer)
	writerDone := make(chan struct{})
	go func() {
		defer close(writerDone)
		for {
			select {
			case ev, ok := <-sub.C:
				if !ok {
					return
				}
				if err := conn.WriteJSON(daemon.Frame{Type: daemon.FrameEvent, Event: &ev}); err != nil {
					return
				}
			case frame, ok := <-frames:
				if !ok {
					return
				}
				if err := conn.WriteJSON(frame); err != nil {
					return
				}
			}
		}
	}()

	reply := func(frame daemon.Frame) {
		select {
		case frames <- frame:
		case <-writerDone:
		}
	}

	for {
		var frame daemon.Frame
		if err := conn.ReadJSON(&frame); err != nil {
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				log.WithError(err).Debug("WebSocket read ended")
			}
			break
		}

		switch frame.Type {
		case daemon.FrameSend:
			if err := s.registry.SendToSession(id, frame.Text); err != nil {
				reply(daemon.Frame{Type: daemon.FrameError, Error: err.Error()})
			}
		case daemon.FrameStop:
			s.registry.StopSession(id)
		default:
			reply(daemon.Frame{Type: daemon.FrameError, Error: fmt.Sprintf("unknown frame type %q", frame.Type)})
		}
	}

	close(frames)
	sub.Close()
	<-writerDone
	log.Debug("WebSocket client disconnected")
}

// handleGetConfig returns the running configuration as JSON.
func (s *Server) handleGetConfig(w http.ResponseWriter, r *http.Request) {
	if s.runningConfig == nil {
		http.Error(w, "config not initialized", http.StatusServiceUnavailable)
		return
	}

	running := *s.runningConfig
	running.Sessions = len(s.registry.ListSessions())

	cfg := s.registry.Config()
	running.Sources = make(map[string]string, len(cfg.Sources))
	for source, file := range cfg.Sources {
		running.Sources[string(source)] = file
	}
	running.Agents = make([]string, 0, len(cfg.Agents))
	for name := range cfg.Agents {
		running.Agents = append(running.Agents, name)
	}
	sort.Strings(running.Agents)

	writeJSON(w, http.StatusOK, running)
}
