package config

import (
	"fmt"
	"time"

	"github.com/mitchellh/mapstructure"
	"gopkg.in/yaml.v3"
)

//go:generate sh -c "cd .. && go run ./tools/schema-generator/"

const (
	DefaultMaxResumeRetries   = 2
	DefaultRetryBackoff       = time.Second
	DefaultWorktreeGraceDelay = 500 * time.Millisecond
)

// DefaultSecretEnvPatterns are the env override keys never written to snapshots.
var DefaultSecretEnvPatterns = []string{
	"*_KEY",
	"*_TOKEN",
	"*_SECRET",
	"*PASSWORD*",
	"*CREDENTIALS*",
}

// AgentConfig describes how to invoke one agent CLI family.
type AgentConfig struct {
	Command       string            `yaml:"command,omitempty" toml:"command,omitempty" json:"command,omitempty" jsonschema:"description=Executable used for this agent family"`
	Args          []string          `yaml:"args,omitempty" toml:"args,omitempty" json:"args,omitempty" jsonschema:"description=Extra arguments placed before the generated ones"`
	Model         string            `yaml:"model,omitempty" toml:"model,omitempty" json:"model,omitempty" jsonschema:"description=Default model passed to the agent"`
	HomeEnv       string            `yaml:"home_env,omitempty" toml:"home_env,omitempty" json:"home_env,omitempty" jsonschema:"description=Environment variable pointing the agent at an isolated home directory"`
	Env           map[string]string `yaml:"env,omitempty" toml:"env,omitempty" json:"env,omitempty" jsonschema:"description=Environment overrides applied to every invocation"`
	StalePatterns []string          `yaml:"stale_patterns,omitempty" toml:"stale_patterns,omitempty" json:"stale_patterns,omitempty" jsonschema:"description=Extra regular expressions identifying a rejected resume token"`
	QuotaPatterns []string          `yaml:"quota_patterns,omitempty" toml:"quota_patterns,omitempty" json:"quota_patterns,omitempty" jsonschema:"description=Extra regular expressions identifying quota exhaustion"`
}

// SessionSettings tunes session recovery and relocation behaviour.
type SessionSettings struct {
	IsolateHomes       *bool    `yaml:"isolate_homes,omitempty" toml:"isolate_homes,omitempty" json:"isolate_homes,omitempty" jsonschema:"description=Give every session its own agent home directory (default: true)"`
	MaxResumeRetries   *int     `yaml:"max_resume_retries,omitempty" toml:"max_resume_retries,omitempty" json:"max_resume_retries,omitempty" jsonschema:"description=Automatic retries after a rejected resume token (default: 2)"`
	RetryBackoff       string   `yaml:"retry_backoff,omitempty" toml:"retry_backoff,omitempty" json:"retry_backoff,omitempty" jsonschema:"description=Delay before each retry, multiplied by the attempt number (default: 1s)"`
	WorktreeGraceDelay string   `yaml:"worktree_grace_delay,omitempty" toml:"worktree_grace_delay,omitempty" json:"worktree_grace_delay,omitempty" jsonschema:"description=How long a running turn may continue after a worktree relocation is requested (default: 500ms)"`
	TurnTimeout        string   `yaml:"turn_timeout,omitempty" toml:"turn_timeout,omitempty" json:"turn_timeout,omitempty" jsonschema:"description=Stop a turn that runs longer than this; empty disables the limit"`
	SecretEnvPatterns  []string `yaml:"secret_env_patterns,omitempty" toml:"secret_env_patterns,omitempty" json:"secret_env_patterns,omitempty" jsonschema:"description=Environment keys excluded from persisted snapshots"`
	PersistSnapshots   *bool    `yaml:"persist_snapshots,omitempty" toml:"persist_snapshots,omitempty" json:"persist_snapshots,omitempty" jsonschema:"description=Write session snapshots to the state directory (default: true)"`
}

// DaemonSettings configures the relay daemon.
type DaemonSettings struct {
	Socket      string `yaml:"socket,omitempty" toml:"socket,omitempty" json:"socket,omitempty" jsonschema:"description=Unix socket path for the daemon API"`
	Transcripts *bool  `yaml:"transcripts,omitempty" toml:"transcripts,omitempty" json:"transcripts,omitempty" jsonschema:"description=Record NDJSON transcripts of every session (default: true)"`
	WatchConfig *bool  `yaml:"watch_config,omitempty" toml:"watch_config,omitempty" json:"watch_config,omitempty" jsonschema:"description=Reload agent definitions when configuration files change (default: true)"`
}

// Config is the root of relay.yml.
type Config struct {
	Version string                 `yaml:"version" toml:"version" json:"version"`
	Agents  map[string]AgentConfig `yaml:"agents,omitempty" toml:"agents,omitempty" json:"agents,omitempty"`
	Session SessionSettings        `yaml:"session,omitempty" toml:"session,omitempty" json:"session"`
	Daemon  DaemonSettings         `yaml:"daemon,omitempty" toml:"daemon,omitempty" json:"daemon"`

	// Extensions captures all other top-level keys, such as "logging".
	Extensions map[string]interface{} `yaml:",inline" toml:"-" json:"-" jsonschema:"-"`

	// Sources records which file supplied each layer.
	Sources map[ConfigSource]string `yaml:"-" toml:"-" json:"-" jsonschema:"-"`
}

// SetDefaults sets default values for configuration
func (c *Config) SetDefaults() {
	if c.Version == "" {
		c.Version = "1.0"
	}
	if c.Agents == nil {
		c.Agents = make(map[string]AgentConfig)
	}
	if c.Session.IsolateHomes == nil {
		trueVal := true
		c.Session.IsolateHomes = &trueVal
	}
	if c.Session.MaxResumeRetries == nil {
		retries := DefaultMaxResumeRetries
		c.Session.MaxResumeRetries = &retries
	}
	if c.Session.PersistSnapshots == nil {
		trueVal := true
		c.Session.PersistSnapshots = &trueVal
	}
	if len(c.Session.SecretEnvPatterns) == 0 {
		c.Session.SecretEnvPatterns = append([]string(nil), DefaultSecretEnvPatterns...)
	}
	if c.Daemon.Transcripts == nil {
		trueVal := true
		c.Daemon.Transcripts = &trueVal
	}
	if c.Daemon.WatchConfig == nil {
		trueVal := true
		c.Daemon.WatchConfig = &trueVal
	}
}

// Agent returns the configuration for an agent family and whether it was set.
func (c *Config) Agent(family string) (AgentConfig, bool) {
	agent, ok := c.Agents[family]
	return agent, ok
}

// GraceDelay returns the worktree relocation grace delay.
func (s SessionSettings) GraceDelay() time.Duration {
	return parseDuration(s.WorktreeGraceDelay, DefaultWorktreeGraceDelay)
}

// Backoff returns the base delay between stale-token retries.
func (s SessionSettings) Backoff() time.Duration {
	return parseDuration(s.RetryBackoff, DefaultRetryBackoff)
}

// Timeout returns the per-turn timeout, zero when disabled.
func (s SessionSettings) Timeout() time.Duration {
	return parseDuration(s.TurnTimeout, 0)
}

// Retries returns the retry limit after a rejected resume token.
func (s SessionSettings) Retries() int {
	if s.MaxResumeRetries == nil {
		return DefaultMaxResumeRetries
	}
	return *s.MaxResumeRetries
}

// HomesIsolated reports whether sessions get their own agent home directory.
func (s SessionSettings) HomesIsolated() bool {
	return s.IsolateHomes == nil || *s.IsolateHomes
}

// SnapshotsEnabled reports whether session snapshots are persisted.
func (s SessionSettings) SnapshotsEnabled() bool {
	return s.PersistSnapshots == nil || *s.PersistSnapshots
}

// TranscriptsEnabled reports whether the daemon records transcripts.
func (d DaemonSettings) TranscriptsEnabled() bool {
	return d.Transcripts == nil || *d.Transcripts
}

// WatchEnabled reports whether the daemon reloads configuration on change.
func (d DaemonSettings) WatchEnabled() bool {
	return d.WatchConfig == nil || *d.WatchConfig
}

func parseDuration(value string, fallback time.Duration) time.Duration {
	if value == "" {
		return fallback
	}
	d, err := time.ParseDuration(value)
	if err != nil || d < 0 {
		return fallback
	}
	return d
}

// UnmarshalExtension decodes a specific extension's configuration from the
// loaded relay.yml into the provided target struct. The target must be a pointer.
//
// Example:
//
//	var logCfg logging.Config
//	err := cfg.UnmarshalExtension("logging", &logCfg)
func (c *Config) UnmarshalExtension(key string, target interface{}) error {
	extensionConfig, ok := c.Extensions[key]
	if !ok {
		// A missing key leaves the target zero-valued.
		return nil
	}

	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:  target,
		TagName: "yaml",
	})
	if err != nil {
		return fmt.Errorf("failed to create mapstructure decoder: %w", err)
	}

	if err := decoder.Decode(extensionConfig); err != nil {
		return fmt.Errorf("failed to decode extension config for '%s': %w", key, err)
	}

	return nil
}

// Marshal renders the configuration as YAML.
func (c *Config) Marshal() ([]byte, error) {
	return yaml.Marshal(c)
}

// ConfigSource identifies the origin of a configuration layer.
type ConfigSource string

const (
	SourceDefault  ConfigSource = "default"
	SourceGlobal   ConfigSource = "global"
	SourceProject  ConfigSource = "project"
	SourceOverride ConfigSource = "override"
)
