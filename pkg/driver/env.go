package driver

import (
	"os"
	"sort"
	"strings"
)

// EnvBuilder produces the environment for an agent process.
type EnvBuilder interface {
	Build(agentEnv, sessionEnv map[string]string, homeEnv, home string) []string
}

// DefaultEnv layers the parent environment, agent configuration, session
// overrides and the isolated home variable, later layers winning.
type DefaultEnv struct {
	// Base supplies the starting environment; os.Environ when nil.
	Base func() []string
}

// Build implements EnvBuilder.
func (e *DefaultEnv) Build(agentEnv, sessionEnv map[string]string, homeEnv, home string) []string {
	base := os.Environ
	if e.Base != nil {
		base = e.Base
	}

	merged := make(map[string]string)
	for _, kv := range base() {
		if key, value, ok := strings.Cut(kv, "="); ok {
			merged[key] = value
		}
	}
	for k, v := range agentEnv {
		merged[k] = v
	}
	for k, v := range sessionEnv {
		merged[k] = v
	}
	if homeEnv != "" && home != "" {
		merged[homeEnv] = home
	}

	env := make([]string, 0, len(merged))
	for k, v := range merged {
		env = append(env, k+"="+v)
	}
	sort.Strings(env)
	return env
}
