package sessions

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/grovetools/relay/pkg/models"
	"github.com/grovetools/relay/pkg/process"
	"github.com/grovetools/relay/util/sanitize"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// deadPID returns a pid that is very unlikely to belong to a live process.
const deadPID = 999999

func TestRegisterAndIsAlive(t *testing.T) {
	dir := t.TempDir()
	r, err := NewFileSystemRegistry(dir)
	require.NoError(t, err)

	require.NoError(t, r.Register(ProcessMetadata{
		SessionID: "self",
		Family:    "codex",
		PID:       os.Getpid(),
		StartedAt: time.Now(),
	}))

	alive, err := r.IsAlive("self")
	require.NoError(t, err)
	assert.True(t, alive)

	alive, err = r.IsAlive("missing")
	require.NoError(t, err)
	assert.False(t, alive)

	require.NoError(t, r.Unregister("self"))
	_, err = os.Stat(filepath.Join(dir, "self"))
	assert.True(t, os.IsNotExist(err))
}

func TestSessionIDIsSanitized(t *testing.T) {
	dir := t.TempDir()
	r, err := NewFileSystemRegistry(dir)
	require.NoError(t, err)

	id := "team/alpha:1"
	require.NoError(t, r.Register(ProcessMetadata{SessionID: id, PID: os.Getpid()}))

	_, err = os.Stat(filepath.Join(dir, sanitize.ForFilename(id), pidFileName))
	require.NoError(t, err)

	found, err := Discover(dir)
	require.NoError(t, err)
	require.Len(t, found, 1)
	assert.Equal(t, id, found[0].SessionID)
}

func TestTrackerHooks(t *testing.T) {
	dir := t.TempDir()
	r, err := NewFileSystemRegistry(dir)
	require.NoError(t, err)

	inv := process.Invocation{Command: "codex", Args: []string{"exec", "--json"}, Dir: "/work"}
	r.ProcessStarted("s1", models.FamilyCodex, os.Getpid(), inv)

	found, err := Discover(dir)
	require.NoError(t, err)
	require.Len(t, found, 1)
	assert.Equal(t, "codex", found[0].Family)
	assert.Equal(t, "/work", found[0].WorkingDirectory)
	assert.Equal(t, []string{"exec", "--json"}, found[0].Args)
	assert.Equal(t, os.Getpid(), found[0].DaemonPID)
	assert.Equal(t, StatusRunning, found[0].Status)

	// A stale exit for an older pid leaves the newer record in place.
	r.ProcessExited("s1", deadPID)
	found, err = Discover(dir)
	require.NoError(t, err)
	assert.Len(t, found, 1)

	r.ProcessExited("s1", os.Getpid())
	found, err = Discover(dir)
	require.NoError(t, err)
	assert.Empty(t, found)
}

func TestDiscoverAndPrune(t *testing.T) {
	dir := t.TempDir()
	r, err := NewFileSystemRegistry(dir)
	require.NoError(t, err)

	now := time.Now()
	require.NoError(t, r.Register(ProcessMetadata{SessionID: "dead", PID: deadPID, StartedAt: now.Add(-time.Minute)}))
	require.NoError(t, r.Register(ProcessMetadata{SessionID: "live", PID: os.Getpid(), StartedAt: now}))
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "junk"), 0755))

	found, err := Discover(dir)
	require.NoError(t, err)
	require.Len(t, found, 2)
	assert.Equal(t, "dead", found[0].SessionID)
	assert.Equal(t, StatusInterrupted, found[0].Status)
	assert.Equal(t, StatusRunning, found[1].Status)

	removed, err := Prune(dir)
	require.NoError(t, err)
	assert.Equal(t, 1, removed)

	found, err = Discover(dir)
	require.NoError(t, err)
	require.Len(t, found, 1)
	assert.Equal(t, "live", found[0].SessionID)
}

func TestDiscoverMissingDir(t *testing.T) {
	found, err := Discover(filepath.Join(t.TempDir(), "nope"))
	require.NoError(t, err)
	assert.Empty(t, found)
}
