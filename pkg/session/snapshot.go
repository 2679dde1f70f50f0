package session

import (
	"time"

	"github.com/grovetools/relay/config"
	"github.com/grovetools/relay/pkg/models"
	"github.com/moby/patternmatcher"
)

// SecretFilter decides which environment keys are too sensitive to persist.
// Patterns use glob syntax; a leading "!" re-includes a key.
type SecretFilter struct {
	pm *patternmatcher.PatternMatcher
}

// NewSecretFilter compiles patterns, falling back to the defaults when empty.
func NewSecretFilter(patterns []string) (*SecretFilter, error) {
	if len(patterns) == 0 {
		patterns = config.DefaultSecretEnvPatterns
	}
	pm, err := patternmatcher.New(patterns)
	if err != nil {
		return nil, err
	}
	return &SecretFilter{pm: pm}, nil
}

// IsSecret reports whether key matches a secret pattern.
func (f *SecretFilter) IsSecret(key string) bool {
	if f == nil || f.pm == nil {
		return false
	}
	matched, err := f.pm.MatchesOrParentMatches(key)
	return err == nil && matched
}

// Strip returns env without secret keys.
func (f *SecretFilter) Strip(env map[string]string) map[string]string {
	if len(env) == 0 {
		return nil
	}
	out := make(map[string]string, len(env))
	for k, v := range env {
		if !f.IsSecret(k) {
			out[k] = v
		}
	}
	if len(out) == 0 {
		return nil
	}
	return out
}

// BuildSnapshot produces the persistable form of a session. The buffer is
// dropped and secret env overrides are removed.
func BuildSnapshot(family models.Family, state models.SessionState, ctx models.SessionContext, secrets *SecretFilter) models.Snapshot {
	persisted := ctx.Clone()
	persisted.Buffer = ""
	persisted.Config.Env = secrets.Strip(persisted.Config.Env)
	return models.Snapshot{
		Version: models.SnapshotVersion,
		Family:  family,
		State:   state,
		Context: persisted,
		SavedAt: time.Now(),
	}
}

// restoreContext rebuilds a context from a snapshot. The requested config
// fills anything the snapshot lacks, and its env restores stripped secrets.
func restoreContext(id string, snap models.Snapshot, requested models.SessionConfig) models.SessionContext {
	ctx := snap.Context.Clone()
	ctx.SessionID = id
	ctx.Buffer = ""

	cfg := ctx.Config
	if cfg.Command == "" {
		cfg.Command = requested.Command
	}
	if cfg.Family == "" {
		cfg.Family = requested.Family
	}
	if cfg.Model == "" {
		cfg.Model = requested.Model
	}
	if cfg.Mode == "" {
		cfg.Mode = requested.Mode
	}
	if len(cfg.Args) == 0 && len(requested.Args) > 0 {
		cfg.Args = append([]string(nil), requested.Args...)
	}
	if len(requested.Env) > 0 {
		if cfg.Env == nil {
			cfg.Env = make(map[string]string, len(requested.Env))
		}
		for k, v := range requested.Env {
			if _, ok := cfg.Env[k]; !ok {
				cfg.Env[k] = v
			}
		}
	}
	if ctx.ProjectRoot == "" {
		ctx.ProjectRoot = requested.Cwd
	}
	cfg.Cwd = ctx.ProjectRoot
	if ctx.ActiveWorktree != nil {
		cfg.Cwd = ctx.ActiveWorktree.Cwd
	}
	ctx.Config = cfg
	return ctx
}
