package schema

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidatorAcceptsExtensions(t *testing.T) {
	v, err := NewValidator()
	require.NoError(t, err)

	doc := map[string]interface{}{
		"version": "1.0",
		"agents": map[string]interface{}{
			"codex": map[string]interface{}{
				"command": "codex",
				"args":    []interface{}{"--full-auto"},
			},
		},
		"session": map[string]interface{}{
			"worktree_grace_delay": "750ms",
			"max_resume_retries":   1,
		},
		"logging": map[string]interface{}{"level": "debug"},
	}
	assert.NoError(t, v.Validate(doc))
}

func TestValidatorRejectsInvalidDocuments(t *testing.T) {
	v, err := NewValidator()
	require.NoError(t, err)

	tests := []struct {
		name string
		doc  map[string]interface{}
	}{
		{
			name: "unknown family",
			doc: map[string]interface{}{
				"agents": map[string]interface{}{"cursor": map[string]interface{}{}},
			},
		},
		{
			name: "unknown agent field",
			doc: map[string]interface{}{
				"agents": map[string]interface{}{"claude": map[string]interface{}{"image": "x"}},
			},
		},
		{
			name: "bad duration",
			doc: map[string]interface{}{
				"session": map[string]interface{}{"retry_backoff": "soon"},
			},
		},
		{
			name: "negative retries",
			doc: map[string]interface{}{
				"session": map[string]interface{}{"max_resume_retries": -1},
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := v.Validate(tt.doc)
			assert.Error(t, err)
		})
	}
}
