// Package paths provides XDG-compliant path resolution for relay.
//
// Resolution order:
// 1. RELAY_HOME (portable root) → $RELAY_HOME/{config,data,state}
// 2. XDG env vars → $XDG_*_HOME/relay
// 3. Platform defaults → ~/.config/relay, ~/.local/share/relay, etc.
package paths

import (
	"os"
	"path/filepath"
)

const appName = "relay"

func resolveHome(portable, xdgVar string, fallback ...string) string {
	if relayHome := os.Getenv("RELAY_HOME"); relayHome != "" {
		return filepath.Join(relayHome, portable)
	}
	if dir := os.Getenv(xdgVar); dir != "" {
		return dir
	}
	if homeDir, err := os.UserHomeDir(); err == nil {
		return filepath.Join(append([]string{homeDir}, fallback...)...)
	}
	return ""
}

func appDir(base string) string {
	if base == "" {
		return ""
	}
	return filepath.Join(base, appName)
}

// ConfigDir returns the relay configuration directory.
// Used for the global relay.yml.
func ConfigDir() string {
	return appDir(resolveHome("config", "XDG_CONFIG_HOME", ".config"))
}

// DataDir returns the relay data directory.
// Holds isolated agent homes and transcripts.
func DataDir() string {
	return appDir(resolveHome("data", "XDG_DATA_HOME", ".local", "share"))
}

// StateDir returns the relay state directory.
// Holds snapshots, live-session records, logs and the daemon pid file.
func StateDir() string {
	return appDir(resolveHome("state", "XDG_STATE_HOME", ".local", "state"))
}

// RuntimeDir returns the relay runtime directory for sockets.
// Uses XDG_RUNTIME_DIR when available (Linux), falls back to StateDir (macOS).
func RuntimeDir() string {
	if relayHome := os.Getenv("RELAY_HOME"); relayHome != "" {
		return filepath.Join(relayHome, "run")
	}
	if dir := os.Getenv("XDG_RUNTIME_DIR"); dir != "" {
		return filepath.Join(dir, appName)
	}
	return StateDir()
}

// SocketPath returns the path to the relay daemon unix socket.
func SocketPath() string {
	return filepath.Join(RuntimeDir(), "relayd.sock")
}

// PidFilePath returns the path to the relay daemon PID file.
func PidFilePath() string {
	return filepath.Join(StateDir(), "relayd.pid")
}

// HomesDir is the parent of every isolated agent home directory.
func HomesDir() string {
	return filepath.Join(DataDir(), "homes")
}

// TranscriptDir holds one NDJSON transcript per session.
func TranscriptDir() string {
	return filepath.Join(DataDir(), "transcripts")
}

// SnapshotDir holds one persisted snapshot per session.
func SnapshotDir() string {
	return filepath.Join(StateDir(), "snapshots")
}

// LiveDir holds records of agent processes that are currently running.
func LiveDir() string {
	return filepath.Join(StateDir(), "live")
}

// LogDir holds daemon log files.
func LogDir() string {
	return filepath.Join(StateDir(), "logs")
}

// EnsureDirs creates all relay directories if they don't exist.
func EnsureDirs() error {
	dirs := []string{
		ConfigDir(),
		DataDir(),
		StateDir(),
		RuntimeDir(),
		HomesDir(),
		TranscriptDir(),
		SnapshotDir(),
		LiveDir(),
	}

	for _, dir := range dirs {
		if dir == "" {
			continue
		}
		if err := os.MkdirAll(dir, 0755); err != nil {
			return err
		}
	}
	return nil
}
