package session

import (
	"strings"

	"github.com/grovetools/relay/pkg/models"
)

// Notices a session publishes about its own lifecycle.
const (
	busyMessage       = "Session is busy; message ignored"
	stoppedMessage    = "Session stopped"
	exitedFormat      = "Process exited with code %d"
	spawnFailedFormat = "Failed to start agent: %v"
	retryGiveUpFormat = "Resume token rejected; not retrying after %d attempts"
	resetFormat       = "Session reset (%s, %s)"
	exitedPrefix      = "Process exited with code"
	spawnFailedPrefix = "Failed to start agent:"
	retryGiveUpPrefix = "Resume token rejected; not retrying"
	resetPrefix       = "Session reset ("
)

// TurnEnded reports whether ev marks the end of the work started by the last
// user message: the process exited, failed to start, was stopped, or was
// abandoned after the final resume retry. Retries and worktree replays do
// not count.
func TurnEnded(ev models.LogEvent) bool {
	switch ev.Kind {
	case models.KindSystem:
		return strings.HasPrefix(ev.Data, exitedPrefix) ||
			ev.Data == stoppedMessage ||
			strings.HasPrefix(ev.Data, resetPrefix)
	case models.KindError:
		return strings.HasPrefix(ev.Data, spawnFailedPrefix) ||
			strings.HasPrefix(ev.Data, retryGiveUpPrefix)
	}
	return false
}
