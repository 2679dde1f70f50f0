package session

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/grovetools/relay/errors"
	"github.com/grovetools/relay/pkg/models"
	"github.com/grovetools/relay/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidateWorktree(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(dir, "file")
	require.NoError(t, os.WriteFile(file, []byte("x"), 0644))

	tests := []struct {
		name string
		wt   models.WorktreeContext
		ok   bool
	}{
		{"directory", models.WorktreeContext{Cwd: dir}, true},
		{"with branch", models.WorktreeContext{Cwd: dir, Branch: "feature/login"}, true},
		{"empty", models.WorktreeContext{}, false},
		{"missing", models.WorktreeContext{Cwd: filepath.Join(dir, "nope")}, false},
		{"file", models.WorktreeContext{Cwd: file}, false},
		{"bad branch", models.WorktreeContext{Cwd: dir, Branch: "a..b"}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateWorktree(tt.wt)
			if tt.ok {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.True(t, errors.Is(err, errors.ErrCodeWorktreeUnavailable))
		})
	}
}

func TestRequestWorktreeRejectsMissingPath(t *testing.T) {
	dir := t.TempDir()
	deps, rec := newDeps(t, "")
	s := New("wt", "codex", models.SessionConfig{Cwd: dir}, deps, nil)
	defer s.Close()

	missing := filepath.Join(dir, "gone")
	assert.False(t, s.RequestWorktreeResume(models.WorktreeRequest{
		WorktreeContext: models.WorktreeContext{Cwd: missing},
	}))

	ctx := s.Context()
	assert.Nil(t, ctx.PendingWorktreeResume)
	assert.Nil(t, ctx.ActiveWorktree)
	assert.Equal(t, dir, ctx.Config.Cwd)
	assert.Equal(t, []string{"Worktree unavailable: " + missing + " (directory does not exist)"}, rec.Texts(models.KindSystem))
}

func TestRelocationWhileRunningIsLastWriteWins(t *testing.T) {
	dir := t.TempDir()
	first, second := t.TempDir(), t.TempDir()
	script := testutil.WriteScript(t, dir, "agent", "sleep 30")
	deps, rec := newDeps(t, "session:\n  worktree_grace_delay: 50ms\n")

	s := New("reloc", script, models.SessionConfig{Cwd: dir, Streaming: true}, deps, nil)
	defer s.Close()

	s.Send("task")
	require.Eventually(t, s.IsRunning, waitTimeout, 10*time.Millisecond)

	require.True(t, s.RequestWorktreeResume(models.WorktreeRequest{
		WorktreeContext: models.WorktreeContext{Cwd: first},
		ResumeMessage:   "go to first",
	}))
	require.True(t, s.RequestWorktreeResume(models.WorktreeRequest{
		WorktreeContext: models.WorktreeContext{Cwd: second, Branch: "b2"},
		ResumeMessage:   "go to second",
	}))

	rec.WaitForEvent(t, models.KindSystem, "Switched to worktree "+second+" (branch b2)", waitTimeout)
	require.Eventually(t, s.IsRunning, waitTimeout, 10*time.Millisecond)

	// Give a stray second replay time to show up.
	time.Sleep(200 * time.Millisecond)

	for _, text := range rec.Texts(models.KindSystem) {
		assert.False(t, strings.Contains(text, first), "unexpected event %q", text)
		assert.False(t, strings.HasPrefix(text, "Process exited"), "exit reported during relocation: %q", text)
	}

	ctx := s.Context()
	assert.Equal(t, 2, ctx.MessageCount)
	assert.Equal(t, "go to second", ctx.LastUserMessage)
	require.NotNil(t, ctx.ActiveWorktree)
	assert.Equal(t, second, ctx.ActiveWorktree.Cwd)
	assert.Equal(t, second, ctx.Config.Cwd)
	assert.Equal(t, dir, ctx.ProjectRoot)
	assert.Nil(t, ctx.PendingWorktreeResume)
}

func TestRelocationWhileIdleReplaysSynthesizedMessage(t *testing.T) {
	dir := t.TempDir()
	wt := t.TempDir()
	script := testutil.WriteScript(t, dir, "agent", "pwd")
	deps, rec := newDeps(t, "")

	s := New("idle", script, models.SessionConfig{Cwd: dir, Streaming: true}, deps, nil)
	defer s.Close()

	require.True(t, s.RequestWorktreeResume(models.WorktreeRequest{
		WorktreeContext: models.WorktreeContext{Cwd: wt, Branch: "feat"},
	}))
	rec.WaitForEvent(t, models.KindSystem, "Process exited with code 0", waitTimeout)

	ctx := s.Context()
	assert.Equal(t, 1, ctx.MessageCount)
	assert.Contains(t, ctx.LastUserMessage, wt)
	assert.Contains(t, ctx.LastUserMessage, "branch feat")

	resolved, err := filepath.EvalSymlinks(wt)
	require.NoError(t, err)
	texts := rec.Texts(models.KindText)
	require.Len(t, texts, 1)
	actual, err := filepath.EvalSymlinks(texts[0])
	require.NoError(t, err)
	assert.Equal(t, resolved, actual)
}

func TestSendRevalidatesActiveWorktree(t *testing.T) {
	dir := t.TempDir()
	wt := filepath.Join(t.TempDir(), "wt")
	require.NoError(t, os.Mkdir(wt, 0755))
	script := testutil.WriteScript(t, dir, "agent", "true")
	deps, rec := newDeps(t, "")

	s := New("reval", script, models.SessionConfig{Cwd: dir, Streaming: true}, deps, nil)
	defer s.Close()

	require.True(t, s.RequestWorktreeResume(models.WorktreeRequest{
		WorktreeContext: models.WorktreeContext{Cwd: wt},
		ResumeMessage:   "moved",
	}))
	rec.WaitForEvent(t, models.KindSystem, "Process exited with code 0", waitTimeout)
	waitIdle(t, s)
	require.Equal(t, wt, s.Cwd())

	require.NoError(t, os.RemoveAll(wt))
	s.Send("next")
	rec.WaitForEvent(t, models.KindSystem, "Worktree "+wt+" no longer exists; continuing in "+dir, waitTimeout)
	require.Eventually(t, func() bool {
		return countEvents(rec, models.KindSystem, "Process exited with code 0") == 2
	}, waitTimeout, 10*time.Millisecond)

	ctx := s.Context()
	assert.Nil(t, ctx.ActiveWorktree)
	assert.Equal(t, dir, ctx.Config.Cwd)
}

func TestStopKeepsPendingRelocation(t *testing.T) {
	dir := t.TempDir()
	wt := t.TempDir()
	script := testutil.WriteScript(t, dir, "agent", "sleep 30")
	deps, rec := newDeps(t, "session:\n  worktree_grace_delay: 10s\n")

	s := New("stopreloc", script, models.SessionConfig{Cwd: dir, Streaming: true}, deps, nil)
	defer s.Close()

	s.Send("task")
	require.Eventually(t, s.IsRunning, waitTimeout, 10*time.Millisecond)
	require.True(t, s.RequestWorktreeResume(models.WorktreeRequest{
		WorktreeContext: models.WorktreeContext{Cwd: wt},
		ResumeMessage:   "resume here",
	}))

	require.True(t, s.Stop())
	rec.WaitForEvent(t, models.KindSystem, "Switched to worktree "+wt, waitTimeout)
	assert.Equal(t, "resume here", s.Context().LastUserMessage)
}

func TestResumeMessage(t *testing.T) {
	ctx := models.SessionContext{ProjectRoot: "/repo", LastUserMessage: "fix the tests"}
	msg := resumeMessage(models.WorktreeContext{Cwd: "/repo/.wt/fix", Branch: "fix"}, ctx)

	assert.Contains(t, msg, "/repo/.wt/fix")
	assert.Contains(t, msg, "branch fix")
	assert.Contains(t, msg, "/repo.")
	assert.True(t, strings.HasSuffix(msg, "fix the tests"))
}
