package config

import (
	"fmt"
	"regexp"
	"time"

	"github.com/grovetools/relay/errors"
	"github.com/moby/patternmatcher"
)

// KnownFamilies lists the agent families relay can drive.
var KnownFamilies = []string{"gemini", "codex", "claude", "generic"}

var envKeyRegex = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	for family, agent := range c.Agents {
		if !isKnownFamily(family) {
			return errors.New(errors.ErrCodeConfigValidation, fmt.Sprintf("unknown agent family '%s'", family)).
				WithDetail("family", family).
				WithDetail("known", KnownFamilies)
		}
		if err := validateAgent(&agent); err != nil {
			return errors.Wrap(err, errors.ErrCodeConfigValidation, fmt.Sprintf("invalid agent configuration for '%s'", family)).
				WithDetail("family", family)
		}
	}

	if err := validateSession(&c.Session); err != nil {
		return errors.Wrap(err, errors.ErrCodeConfigValidation, "invalid session configuration")
	}

	return nil
}

func isKnownFamily(family string) bool {
	for _, known := range KnownFamilies {
		if family == known {
			return true
		}
	}
	return false
}

func validateAgent(agent *AgentConfig) error {
	if agent.HomeEnv != "" && !envKeyRegex.MatchString(agent.HomeEnv) {
		return errors.New(errors.ErrCodeInvalidInput, "home_env must be a valid environment variable name").
			WithDetail("home_env", agent.HomeEnv)
	}
	for key := range agent.Env {
		if !envKeyRegex.MatchString(key) {
			return errors.New(errors.ErrCodeInvalidInput, fmt.Sprintf("invalid environment variable name: %s", key))
		}
	}
	for _, pattern := range append(append([]string{}, agent.StalePatterns...), agent.QuotaPatterns...) {
		if _, err := regexp.Compile(pattern); err != nil {
			return errors.Wrap(err, errors.ErrCodeInvalidInput, fmt.Sprintf("invalid pattern: %s", pattern))
		}
	}
	return nil
}

func validateSession(s *SessionSettings) error {
	durations := map[string]string{
		"retry_backoff":        s.RetryBackoff,
		"worktree_grace_delay": s.WorktreeGraceDelay,
		"turn_timeout":         s.TurnTimeout,
	}
	for name, value := range durations {
		if value == "" {
			continue
		}
		d, err := time.ParseDuration(value)
		if err != nil {
			return errors.Wrap(err, errors.ErrCodeInvalidInput, fmt.Sprintf("%s is not a valid duration: %s", name, value))
		}
		if d < 0 {
			return errors.New(errors.ErrCodeInvalidInput, fmt.Sprintf("%s cannot be negative", name))
		}
	}

	if s.MaxResumeRetries != nil && *s.MaxResumeRetries < 0 {
		return errors.New(errors.ErrCodeInvalidInput, "max_resume_retries cannot be negative")
	}

	if _, err := patternmatcher.New(s.SecretEnvPatterns); err != nil {
		return errors.Wrap(err, errors.ErrCodeInvalidInput, "invalid secret_env_patterns")
	}

	return nil
}
