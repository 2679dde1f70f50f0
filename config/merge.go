package config

// mergeConfigs merges override configuration into base
func mergeConfigs(base, override *Config) *Config {
	result := *base

	if override.Version != "" {
		result.Version = override.Version
	}

	// Merge agents per family
	if len(override.Agents) > 0 {
		agents := make(map[string]AgentConfig, len(base.Agents)+len(override.Agents))
		for family, agent := range base.Agents {
			agents[family] = agent
		}
		for family, agent := range override.Agents {
			agents[family] = mergeAgent(agents[family], agent)
		}
		result.Agents = agents
	}

	result.Session = mergeSession(base.Session, override.Session)
	result.Daemon = mergeDaemon(base.Daemon, override.Daemon)

	// Merge extensions
	if override.Extensions != nil {
		extensions := make(map[string]interface{}, len(base.Extensions)+len(override.Extensions))
		for key, value := range base.Extensions {
			extensions[key] = value
		}
		for key, value := range override.Extensions {
			// If both base and override have the same extension key, merge them
			if baseValue, exists := extensions[key]; exists {
				if baseMap, baseOk := baseValue.(map[string]interface{}); baseOk {
					if overrideMap, overrideOk := value.(map[string]interface{}); overrideOk {
						mergedMap := make(map[string]interface{})
						for k, v := range baseMap {
							mergedMap[k] = v
						}
						for k, v := range overrideMap {
							mergedMap[k] = v
						}
						extensions[key] = mergedMap
						continue
					}
				}
			}
			extensions[key] = value
		}
		result.Extensions = extensions
	}

	return &result
}

func mergeAgent(base, override AgentConfig) AgentConfig {
	result := base

	if override.Command != "" {
		result.Command = override.Command
	}
	if len(override.Args) > 0 {
		result.Args = override.Args
	}
	if override.Model != "" {
		result.Model = override.Model
	}
	if override.HomeEnv != "" {
		result.HomeEnv = override.HomeEnv
	}
	if len(override.Env) > 0 {
		env := make(map[string]string, len(base.Env)+len(override.Env))
		for k, v := range base.Env {
			env[k] = v
		}
		for k, v := range override.Env {
			env[k] = v
		}
		result.Env = env
	}
	if len(override.StalePatterns) > 0 {
		result.StalePatterns = override.StalePatterns
	}
	if len(override.QuotaPatterns) > 0 {
		result.QuotaPatterns = override.QuotaPatterns
	}

	return result
}

func mergeSession(base, override SessionSettings) SessionSettings {
	result := base

	if override.IsolateHomes != nil {
		result.IsolateHomes = override.IsolateHomes
	}
	if override.MaxResumeRetries != nil {
		result.MaxResumeRetries = override.MaxResumeRetries
	}
	if override.RetryBackoff != "" {
		result.RetryBackoff = override.RetryBackoff
	}
	if override.WorktreeGraceDelay != "" {
		result.WorktreeGraceDelay = override.WorktreeGraceDelay
	}
	if override.TurnTimeout != "" {
		result.TurnTimeout = override.TurnTimeout
	}
	if len(override.SecretEnvPatterns) > 0 {
		result.SecretEnvPatterns = override.SecretEnvPatterns
	}
	if override.PersistSnapshots != nil {
		result.PersistSnapshots = override.PersistSnapshots
	}

	return result
}

func mergeDaemon(base, override DaemonSettings) DaemonSettings {
	result := base

	if override.Socket != "" {
		result.Socket = override.Socket
	}
	if override.Transcripts != nil {
		result.Transcripts = override.Transcripts
	}
	if override.WatchConfig != nil {
		result.WatchConfig = override.WatchConfig
	}

	return result
}
