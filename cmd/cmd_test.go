package cmd

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/grovetools/relay/errors"
	"github.com/grovetools/relay/pkg/daemon"
	"github.com/grovetools/relay/pkg/models"
	"github.com/grovetools/relay/pkg/paths"
	"github.com/grovetools/relay/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const echoScript = `echo "{\"text\":\"echo\"}"`

func execute(ctx context.Context, args ...string) (string, error) {
	root := NewRootCmd()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetIn(strings.NewReader(""))
	root.SetArgs(args)
	_, err := root.ExecuteContextC(ctx)
	return out.String(), err
}

// isolate points every relay path at a fresh directory short enough for a
// unix socket.
func isolate(t *testing.T) {
	t.Helper()
	home, err := os.MkdirTemp("", "rl")
	require.NoError(t, err)
	t.Cleanup(func() { os.RemoveAll(home) })
	t.Setenv("RELAY_HOME", home)
}

func TestSessionFlagsConfig(t *testing.T) {
	dir := t.TempDir()
	canonical, err := filepath.EvalSymlinks(dir)
	require.NoError(t, err)

	tests := []struct {
		name    string
		flags   sessionFlags
		check   func(t *testing.T, cfg models.SessionConfig)
		invalid bool
	}{
		{
			name:  "defaults",
			flags: sessionFlags{cwd: dir},
			check: func(t *testing.T, cfg models.SessionConfig) {
				assert.Equal(t, canonical, cfg.Cwd)
				assert.True(t, cfg.Streaming)
				assert.Nil(t, cfg.Env)
			},
		},
		{
			name:  "everything",
			flags: sessionFlags{cwd: dir, family: "Codex", model: "o4", mode: "plan", args: []string{"--x"}, env: []string{"A=1", "B=x=y"}, noStream: true},
			check: func(t *testing.T, cfg models.SessionConfig) {
				assert.Equal(t, models.FamilyCodex, cfg.Family)
				assert.Equal(t, models.ModePlan, cfg.Mode)
				assert.Equal(t, map[string]string{"A": "1", "B": "x=y"}, cfg.Env)
				assert.False(t, cfg.Streaming)
			},
		},
		{name: "bad family", flags: sessionFlags{cwd: dir, family: "cursor"}, invalid: true},
		{name: "bad mode", flags: sessionFlags{cwd: dir, mode: "yolo"}, invalid: true},
		{name: "bad env", flags: sessionFlags{cwd: dir, env: []string{"NOVALUE"}}, invalid: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg, err := tt.flags.config("")
			if tt.invalid {
				assert.True(t, errors.Is(err, errors.ErrCodeInvalidInput), "got %v", err)
				return
			}
			require.NoError(t, err)
			tt.check(t, cfg)
		})
	}
}

func TestConfigSchemaCommand(t *testing.T) {
	isolate(t)
	out, err := execute(context.Background(), "config", "schema")
	require.NoError(t, err)

	var schema map[string]interface{}
	require.NoError(t, json.Unmarshal([]byte(out), &schema))
	assert.Equal(t, "Relay Configuration", schema["title"])
}

func TestConfigValidateCommand(t *testing.T) {
	isolate(t)
	dir := t.TempDir()
	good := filepath.Join(dir, "relay.yml")
	require.NoError(t, os.WriteFile(good, []byte("agents:\n  codex:\n    model: o4-mini\n"), 0644))
	bad := filepath.Join(dir, "bad.yml")
	require.NoError(t, os.WriteFile(bad, []byte("session:\n  max_resume_retries: many\n"), 0644))

	out, err := execute(context.Background(), "config", "validate", good)
	require.NoError(t, err)
	assert.Contains(t, out, "codex")

	_, err = execute(context.Background(), "config", "validate", bad)
	assert.Error(t, err)
}

func TestCommandsNeedDaemon(t *testing.T) {
	isolate(t)
	_, err := execute(context.Background(), "ls")
	assert.True(t, errors.Is(err, errors.ErrCodeDaemonUnavailable))
}

func TestRunWithoutDaemon(t *testing.T) {
	isolate(t)
	dir := t.TempDir()
	script := testutil.WriteScript(t, dir, "agent", echoScript)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	out, err := execute(ctx, "run", "--command", script, "--cwd", dir, "hello")
	require.NoError(t, err)
	assert.Contains(t, out, "echo")
	assert.Contains(t, out, "Process exited with code 0")
}

func TestDaemonWorkflow(t *testing.T) {
	isolate(t)
	dir := t.TempDir()
	script := testutil.WriteScript(t, dir, "agent", echoScript)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	served := make(chan error, 1)
	go func() {
		_, err := execute(ctx, "serve", "start")
		served <- err
	}()
	require.Eventually(t, func() bool {
		_, err := daemon.Dial(paths.SocketPath())
		return err == nil
	}, 10*time.Second, 20*time.Millisecond)

	out, err := execute(ctx, "start", "s1", script, "--cwd", dir)
	require.NoError(t, err)
	assert.Contains(t, out, "Session s1 ready")

	out, err = execute(ctx, "send", "--wait", "s1", "hello")
	require.NoError(t, err)
	assert.Contains(t, out, "echo")

	out, err = execute(ctx, "ls", "--json")
	require.NoError(t, err)
	var list []models.SessionMetadata
	require.NoError(t, json.Unmarshal([]byte(out), &list))
	require.Len(t, list, 1)
	assert.Equal(t, "s1", list[0].ID)
	assert.Equal(t, 1, list[0].MessageCount)

	_, err = execute(ctx, "handover", "set", "s1", "read", "the", "notes")
	require.NoError(t, err)
	out, err = execute(ctx, "handover", "take", "s1")
	require.NoError(t, err)
	assert.Equal(t, "read the notes\n", out)

	require.Eventually(t, func() bool {
		out, err := execute(ctx, "logs", "s1")
		return err == nil && strings.Contains(out, "echo")
	}, 5*time.Second, 50*time.Millisecond)

	out, err = execute(ctx, "serve", "status", "--json")
	require.NoError(t, err)
	assert.Contains(t, out, `"sessions": 1`)

	_, err = execute(ctx, "rm", "s1")
	require.NoError(t, err)
	out, err = execute(ctx, "ls")
	require.NoError(t, err)
	assert.Contains(t, out, "No sessions")

	_, err = execute(ctx, "send", "s1", "again")
	assert.True(t, errors.Is(err, errors.ErrCodeSessionNotFound))

	cancel()
	select {
	case err := <-served:
		assert.NoError(t, err)
	case <-time.After(15 * time.Second):
		t.Fatal("daemon did not stop")
	}
}
