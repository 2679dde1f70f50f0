package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/grovetools/relay/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func isolateHome(t *testing.T) string {
	t.Helper()
	home := t.TempDir()
	t.Setenv("RELAY_HOME", home)
	return home
}

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
}

func TestLoadFromBytesDefaults(t *testing.T) {
	cfg, err := LoadFromBytes([]byte("agents:\n  codex:\n    command: codex\n"))
	require.NoError(t, err)

	assert.Equal(t, "1.0", cfg.Version)
	assert.Equal(t, "codex", cfg.Agents["codex"].Command)
	assert.Equal(t, DefaultWorktreeGraceDelay, cfg.Session.GraceDelay())
	assert.Equal(t, DefaultMaxResumeRetries, cfg.Session.Retries())
	assert.Equal(t, time.Duration(0), cfg.Session.Timeout())
	assert.True(t, cfg.Session.HomesIsolated())
	assert.True(t, cfg.Daemon.TranscriptsEnabled())
	assert.Equal(t, DefaultSecretEnvPatterns, cfg.Session.SecretEnvPatterns)
}

func TestLoadFromBytesErrors(t *testing.T) {
	tests := []struct {
		name    string
		content string
		code    errors.ErrorCode
	}{
		{"malformed yaml", "agents: [", errors.ErrCodeConfigInvalid},
		{"unknown family", "agents:\n  cursor:\n    command: cursor\n", errors.ErrCodeConfigValidation},
		{"bad duration", "session:\n  turn_timeout: forever\n", errors.ErrCodeConfigValidation},
		{"bad pattern", "agents:\n  claude:\n    stale_patterns: ['(']\n", errors.ErrCodeConfigValidation},
		{"bad home env", "agents:\n  gemini:\n    home_env: 'not valid'\n", errors.ErrCodeConfigValidation},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := LoadFromBytes([]byte(tt.content))
			require.Error(t, err)
			assert.True(t, errors.Is(err, tt.code), "expected %s, got %v", tt.code, err)
		})
	}
}

func TestLoadFromLayers(t *testing.T) {
	home := isolateHome(t)
	writeFile(t, filepath.Join(home, "config", "relay", "relay.yml"), `
agents:
  codex:
    command: codex
    model: global-model
    env:
      SHARED: global
session:
  worktree_grace_delay: 2s
`)

	project := t.TempDir()
	writeFile(t, filepath.Join(project, "relay.yml"), `
agents:
  codex:
    model: project-model
    env:
      PROJECT: "yes"
logging:
  level: debug
`)
	writeFile(t, filepath.Join(project, "relay.override.yml"), `
session:
  max_resume_retries: 0
`)

	nested := filepath.Join(project, "a", "b")
	require.NoError(t, os.MkdirAll(nested, 0755))

	cfg, err := LoadFrom(nested)
	require.NoError(t, err)

	codex := cfg.Agents["codex"]
	assert.Equal(t, "codex", codex.Command)
	assert.Equal(t, "project-model", codex.Model)
	assert.Equal(t, map[string]string{"SHARED": "global", "PROJECT": "yes"}, codex.Env)
	assert.Equal(t, 2*time.Second, cfg.Session.GraceDelay())
	assert.Equal(t, 0, cfg.Session.Retries())
	assert.Equal(t, filepath.Join(project, "relay.yml"), cfg.Sources[SourceProject])
	assert.Contains(t, cfg.Sources, SourceGlobal)
	assert.Contains(t, cfg.Sources, SourceOverride)

	var logCfg struct {
		Level string `yaml:"level"`
	}
	require.NoError(t, cfg.UnmarshalExtension("logging", &logCfg))
	assert.Equal(t, "debug", logCfg.Level)
}

func TestLoadFromWithoutFiles(t *testing.T) {
	isolateHome(t)

	cfg, err := LoadFrom(t.TempDir())
	require.NoError(t, err)
	assert.Equal(t, "1.0", cfg.Version)
	assert.Empty(t, cfg.Sources)
}

func TestLoadTOML(t *testing.T) {
	isolateHome(t)
	dir := t.TempDir()
	path := filepath.Join(dir, "relay.toml")
	writeFile(t, path, `
[agents.gemini]
command = "gemini"
model = "m1"

[session]
retry_backoff = "250ms"

[logging]
level = "warn"
`)

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "m1", cfg.Agents["gemini"].Model)
	assert.Equal(t, 250*time.Millisecond, cfg.Session.Backoff())

	var logCfg struct {
		Level string `yaml:"level"`
	}
	require.NoError(t, cfg.UnmarshalExtension("logging", &logCfg))
	assert.Equal(t, "warn", logCfg.Level)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "relay.yml"))
	assert.True(t, errors.Is(err, errors.ErrCodeConfigNotFound))
}

func TestExpandEnvVars(t *testing.T) {
	t.Setenv("RELAY_TEST_MODEL", "from-env")

	assert.Equal(t, "model: from-env", expandEnvVars("model: ${RELAY_TEST_MODEL}"))
	assert.Equal(t, "model: fallback", expandEnvVars("model: ${RELAY_TEST_UNSET:-fallback}"))
	assert.Equal(t, "model: ", expandEnvVars("model: ${RELAY_TEST_UNSET}"))
}

func TestMergeDoesNotMutateBase(t *testing.T) {
	base := &Config{Agents: map[string]AgentConfig{"claude": {Command: "claude"}}}
	override := &Config{Agents: map[string]AgentConfig{"claude": {Model: "opus"}}}

	merged := mergeConfigs(base, override)
	assert.Equal(t, "claude", merged.Agents["claude"].Command)
	assert.Equal(t, "opus", merged.Agents["claude"].Model)
	assert.Empty(t, base.Agents["claude"].Model)
}

func TestGenerateSchema(t *testing.T) {
	data, err := GenerateSchema()
	require.NoError(t, err)
	assert.Contains(t, string(data), "worktree_grace_delay")
	assert.Contains(t, string(data), "Relay Configuration")
}
