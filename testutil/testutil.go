package testutil

import (
	"crypto/rand"
	"encoding/hex"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"sync"
	"testing"
	"time"

	"github.com/grovetools/relay/pkg/models"
	"github.com/stretchr/testify/require"
)

// InitGitRepo initializes a git repository in the given directory
func InitGitRepo(t *testing.T, dir string) {
	t.Helper()

	RunGitCommand(t, dir, "init")
	RunGitCommand(t, dir, "config", "user.name", "Test User")
	RunGitCommand(t, dir, "config", "user.email", "test@example.com")

	testFile := filepath.Join(dir, "README.md")
	if err := os.WriteFile(testFile, []byte("# Test Project\n"), 0600); err != nil {
		t.Fatalf("Failed to create README: %v", err)
	}

	RunGitCommand(t, dir, "add", ".")
	RunGitCommand(t, dir, "commit", "-m", "Initial commit")

	// Ensure we have a main branch (rename from master if needed)
	cmd := exec.Command("git", "branch", "-m", "main")
	cmd.Dir = dir
	_ = cmd.Run()
}

// RequireGit skips the test if git is not installed
func RequireGit(t *testing.T) {
	t.Helper()
	if _, err := exec.LookPath("git"); err != nil {
		t.Skip("git not available")
	}
}

// RandomString generates a random string of the specified length
func RandomString(length int) string {
	bytes := make([]byte, length/2+1)
	if _, err := rand.Read(bytes); err != nil {
		panic(err)
	}
	return hex.EncodeToString(bytes)[:length]
}

// RunGitCommand runs a git command in the given directory
func RunGitCommand(t *testing.T, dir string, args ...string) {
	t.Helper()

	cmd := exec.Command("git", args...)
	cmd.Dir = dir
	if out, err := cmd.CombinedOutput(); err != nil {
		t.Fatalf("Failed to run git %v: %v\n%s", args, err, out)
	}
}

// WriteScript writes an executable /bin/sh script and returns its path.
// Tests that spawn scripts are skipped on Windows.
func WriteScript(t *testing.T, dir, name, body string) string {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("shell scripts are not supported on windows")
	}

	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte("#!/bin/sh\n"+body+"\n"), 0755))
	return path
}

// Recorder collects log events and state changes published by a session.
type Recorder struct {
	mu      sync.Mutex
	events  []models.LogEvent
	changes []models.StateChange
}

// Log records a log event.
func (r *Recorder) Log(ev models.LogEvent) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
}

// StateChanged records a state change.
func (r *Recorder) StateChanged(change models.StateChange) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.changes = append(r.changes, change)
}

// Events returns a copy of the recorded log events.
func (r *Recorder) Events() []models.LogEvent {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]models.LogEvent(nil), r.events...)
}

// Changes returns a copy of the recorded state changes.
func (r *Recorder) Changes() []models.StateChange {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]models.StateChange(nil), r.changes...)
}

// Texts returns the data of every recorded event of the given kind.
func (r *Recorder) Texts(kind models.EventKind) []string {
	var out []string
	for _, ev := range r.Events() {
		if ev.Kind == kind {
			out = append(out, ev.Data)
		}
	}
	return out
}

// WaitForEvent blocks until an event with the given kind and text is recorded.
func (r *Recorder) WaitForEvent(t *testing.T, kind models.EventKind, text string, timeout time.Duration) {
	t.Helper()
	require.Eventually(t, func() bool {
		for _, ev := range r.Events() {
			if ev.Kind == kind && ev.Data == text {
				return true
			}
		}
		return false
	}, timeout, 10*time.Millisecond, "no %s event %q in %v", kind, text, r.Events())
}
