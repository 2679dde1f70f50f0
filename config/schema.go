package config

import (
	"encoding/json"

	"github.com/invopop/jsonschema"
)

// GenerateSchema generates the JSON Schema for relay.yml.
// Extensions stay open: any extra top-level key is accepted.
func GenerateSchema() ([]byte, error) {
	r := &jsonschema.Reflector{
		AllowAdditionalProperties: false,
		ExpandedStruct:            true,
		FieldNameTag:              "yaml",
	}

	type BaseConfig struct {
		Version string                 `yaml:"version,omitempty" jsonschema:"description=Configuration version (e.g. '1.0')"`
		Agents  map[string]AgentConfig `yaml:"agents,omitempty" jsonschema:"description=Agent CLI definitions keyed by family (gemini, codex, claude, generic)"`
		Session *SessionSettings       `yaml:"session,omitempty" jsonschema:"description=Session recovery and relocation settings"`
		Daemon  *DaemonSettings        `yaml:"daemon,omitempty" jsonschema:"description=Relay daemon settings"`
	}

	schema := r.Reflect(&BaseConfig{})
	schema.Title = "Relay Configuration"
	schema.Description = "Schema for relay.yml."
	schema.Version = "http://json-schema.org/draft-07/schema#"
	schema.AdditionalProperties = jsonschema.TrueSchema

	return json.MarshalIndent(schema, "", "  ")
}
