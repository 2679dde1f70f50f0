package paths

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRelayHomeOverridesXDG(t *testing.T) {
	root := t.TempDir()
	t.Setenv("RELAY_HOME", root)
	t.Setenv("XDG_CONFIG_HOME", "/should/not/be/used")

	assert.Equal(t, filepath.Join(root, "config", "relay"), ConfigDir())
	assert.Equal(t, filepath.Join(root, "state", "relay", "snapshots"), SnapshotDir())
	assert.Equal(t, filepath.Join(root, "run", "relayd.sock"), SocketPath())
	assert.Equal(t, filepath.Join(root, "data", "relay", "homes"), HomesDir())
}

func TestXDGVariables(t *testing.T) {
	t.Setenv("RELAY_HOME", "")
	t.Setenv("XDG_STATE_HOME", "/tmp/xdg-state")
	t.Setenv("XDG_RUNTIME_DIR", "")

	assert.Equal(t, "/tmp/xdg-state/relay", StateDir())
	assert.Equal(t, "/tmp/xdg-state/relay", RuntimeDir())
	assert.Equal(t, "/tmp/xdg-state/relay/relayd.pid", PidFilePath())
}

func TestEnsureDirs(t *testing.T) {
	root := t.TempDir()
	t.Setenv("RELAY_HOME", root)

	require.NoError(t, EnsureDirs())
	assert.DirExists(t, LiveDir())
	assert.DirExists(t, TranscriptDir())
}
