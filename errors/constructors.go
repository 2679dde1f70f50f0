package errors

import (
	stderrors "errors"
	"fmt"
	"os/exec"
)

// ConfigNotFound creates a configuration not found error
func ConfigNotFound(path string) *RelayError {
	return New(ErrCodeConfigNotFound, fmt.Sprintf("configuration file not found: %s", path)).
		WithDetail("path", path)
}

// ConfigInvalid creates an invalid configuration error
func ConfigInvalid(reason string) *RelayError {
	return New(ErrCodeConfigInvalid, fmt.Sprintf("invalid configuration: %s", reason))
}

// SessionNotFound creates a session not found error
func SessionNotFound(id string) *RelayError {
	return New(ErrCodeSessionNotFound, fmt.Sprintf("session '%s' not found", id)).
		WithDetail("session", id)
}

// SessionExists is returned when a session id is already registered
func SessionExists(id string) *RelayError {
	return New(ErrCodeSessionExists, fmt.Sprintf("session '%s' already exists", id)).
		WithDetail("session", id)
}

// SpawnFailed creates an agent spawn failure error
func SpawnFailed(command string, err error) *RelayError {
	relayErr := Wrap(err, ErrCodeSpawnFailed, fmt.Sprintf("failed to start agent: %s", command)).
		WithDetail("command", command)

	if exitErr, ok := err.(*exec.ExitError); ok {
		relayErr = relayErr.WithDetail("exitCode", exitErr.ExitCode())
	}
	if stderrors.Is(err, exec.ErrNotFound) {
		relayErr = relayErr.WithDetail("notFound", true)
	}

	return relayErr
}

// WorktreeUnavailable reports a relocation target that cannot be used
func WorktreeUnavailable(path string, reason string) *RelayError {
	return New(ErrCodeWorktreeUnavailable,
		fmt.Sprintf("worktree %s is unavailable: %s", path, reason)).
		WithDetail("path", path)
}

// SnapshotMismatch reports a snapshot recorded for another agent family
func SnapshotMismatch(id, recorded, current string) *RelayError {
	return New(ErrCodeSnapshotMismatch,
		fmt.Sprintf("snapshot for session '%s' was recorded for %s, session is configured for %s", id, recorded, current)).
		WithDetail("session", id).
		WithDetail("recorded", recorded).
		WithDetail("current", current)
}

// DaemonUnavailable wraps a failure to reach the relay daemon
func DaemonUnavailable(socket string, err error) *RelayError {
	return Wrap(err, ErrCodeDaemonUnavailable, "relay daemon is not reachable").
		WithDetail("socket", socket)
}

// InvalidInput creates an invalid input error
func InvalidInput(reason string) *RelayError {
	return New(ErrCodeInvalidInput, reason)
}
