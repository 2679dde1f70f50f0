// Package sessions tracks live agent processes on disk so that tools other
// than the daemon can see what is running.
package sessions

import (
	"encoding/json"
	"fmt"
	"os"
	"os/user"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/grovetools/relay/logging"
	"github.com/grovetools/relay/pkg/models"
	"github.com/grovetools/relay/pkg/process"
	"github.com/grovetools/relay/util/sanitize"
	"github.com/sirupsen/logrus"
)

const (
	pidFileName      = "pid.lock"
	metadataFileName = "metadata.json"
)

// Registry defines the interface for managing live process tracking.
type Registry interface {
	Register(metadata ProcessMetadata) error
	Unregister(sessionID string) error
	IsAlive(sessionID string) (bool, error)
}

// FileSystemRegistry implements Registry with one directory per session
// holding a pid.lock and a metadata.json.
type FileSystemRegistry struct {
	baseDir string
	logger  *logrus.Entry
}

// NewFileSystemRegistry creates the registry directory if needed.
func NewFileSystemRegistry(baseDir string) (*FileSystemRegistry, error) {
	if err := os.MkdirAll(baseDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create sessions directory: %w", err)
	}
	return &FileSystemRegistry{baseDir: baseDir, logger: logging.NewLogger("relay-sessions")}, nil
}

func (r *FileSystemRegistry) sessionDir(sessionID string) string {
	return filepath.Join(r.baseDir, sanitize.ForFilename(sessionID))
}

// Register creates the tracking files for a live process.
func (r *FileSystemRegistry) Register(metadata ProcessMetadata) error {
	sessionDir := r.sessionDir(metadata.SessionID)
	if err := os.MkdirAll(sessionDir, 0755); err != nil {
		return fmt.Errorf("failed to create session directory: %w", err)
	}

	pidFile := filepath.Join(sessionDir, pidFileName)
	if err := os.WriteFile(pidFile, []byte(strconv.Itoa(metadata.PID)), 0644); err != nil {
		return fmt.Errorf("failed to write pid.lock: %w", err)
	}

	metadataJSON, err := json.MarshalIndent(metadata, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal metadata: %w", err)
	}
	if err := os.WriteFile(filepath.Join(sessionDir, metadataFileName), metadataJSON, 0644); err != nil {
		return fmt.Errorf("failed to write metadata.json: %w", err)
	}
	return nil
}

// Unregister removes a session's tracking files.
func (r *FileSystemRegistry) Unregister(sessionID string) error {
	if err := os.RemoveAll(r.sessionDir(sessionID)); err != nil {
		return fmt.Errorf("failed to remove session directory: %w", err)
	}
	return nil
}

// IsAlive checks if the process recorded for a session is still running.
func (r *FileSystemRegistry) IsAlive(sessionID string) (bool, error) {
	pid, err := readPid(filepath.Join(r.sessionDir(sessionID), pidFileName))
	if err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, err
	}
	return process.IsProcessAlive(pid), nil
}

// ProcessStarted records a newly spawned agent process.
func (r *FileSystemRegistry) ProcessStarted(sessionID string, family models.Family, pid int, inv process.Invocation) {
	username := ""
	if u, err := user.Current(); err == nil {
		username = u.Username
	}

	metadata := ProcessMetadata{
		SessionID:        sessionID,
		Family:           string(family),
		PID:              pid,
		Command:          inv.Command,
		Args:             inv.Args,
		WorkingDirectory: inv.Dir,
		User:             username,
		DaemonPID:        os.Getpid(),
		StartedAt:        time.Now(),
	}
	if err := r.Register(metadata); err != nil {
		r.logger.WithError(err).WithField("session", sessionID).Warn("Failed to register live process")
	}
}

// ProcessExited removes the record of an exited process, unless a newer
// process has already replaced it.
func (r *FileSystemRegistry) ProcessExited(sessionID string, pid int) {
	current, err := readPid(filepath.Join(r.sessionDir(sessionID), pidFileName))
	if err != nil || current != pid {
		return
	}
	if err := r.Unregister(sessionID); err != nil {
		r.logger.WithError(err).WithField("session", sessionID).Warn("Failed to unregister live process")
	}
}

func readPid(path string) (int, error) {
	pidBytes, err := os.ReadFile(path)
	if err != nil {
		return 0, err
	}
	pid, err := strconv.Atoi(strings.TrimSpace(string(pidBytes)))
	if err != nil {
		return 0, fmt.Errorf("failed to parse PID: %w", err)
	}
	return pid, nil
}
