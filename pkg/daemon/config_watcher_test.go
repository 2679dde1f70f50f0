package daemon

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/grovetools/relay/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIsConfigFile(t *testing.T) {
	tests := []struct {
		name string
		want bool
	}{
		{"relay.yml", true},
		{"/x/y/.relay.yaml", true},
		{"relay.toml", true},
		{"relay.override.yml", true},
		{"grove.yml", false},
		{"relay.json", false},
		{"relay.yml.swp", false},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, isConfigFile(tt.name), tt.name)
	}
}

func TestConfigWatcherReloads(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "relay.yml")
	require.NoError(t, os.WriteFile(path, []byte("agents:\n  codex:\n    model: a\n"), 0644))

	type reload struct {
		file string
		cfg  *config.Config
	}
	reloads := make(chan reload, 4)

	w, err := NewConfigWatcher([]string{dir, filepath.Join(dir, "missing")}, 50*time.Millisecond,
		func() (*config.Config, error) { return config.Load(path) },
		func(file string, cfg *config.Config) { reloads <- reload{file, cfg} })
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go w.Start(ctx)

	// Unrelated files are ignored.
	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("x"), 0644))
	require.NoError(t, os.WriteFile(path, []byte("agents:\n  codex:\n    model: b\n"), 0644))

	select {
	case got := <-reloads:
		assert.Equal(t, path, got.file)
		agent, ok := got.cfg.Agent("codex")
		require.True(t, ok)
		assert.Equal(t, "b", agent.Model)
	case <-time.After(5 * time.Second):
		t.Fatal("no reload")
	}

	// An invalid file is reported but not applied.
	require.NoError(t, os.WriteFile(path, []byte("agents: [\n"), 0644))
	select {
	case <-reloads:
		t.Fatal("invalid configuration was applied")
	case <-time.After(300 * time.Millisecond):
	}
}
