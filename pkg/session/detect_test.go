package session

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDetectorStale(t *testing.T) {
	d := NewDetector([]string{`(?i)conversation \S+ vanished`}, nil)

	tests := []struct {
		text  string
		stale bool
	}{
		{"Error: No conversation found with session ID: abc", true},
		{"thread not found: t-1", true},
		{"failed to resume session", true},
		{"Invalid session id provided", true},
		{"conversation abc vanished", true},
		{"permission denied", false},
		{"", false},
	}

	for _, tt := range tests {
		t.Run(tt.text, func(t *testing.T) {
			assert.Equal(t, tt.stale, d.IsStaleResume(tt.text))
		})
	}
}

func TestDetectorQuota(t *testing.T) {
	d := NewDetector(nil, []string{`(?i)credit balance is too low`})

	tests := []struct {
		text  string
		quota bool
	}{
		{"You exceeded your current quota, please check your plan", true},
		{"429 Too Many Requests", true},
		{"RESOURCE_EXHAUSTED: daily limit", true},
		{"You've hit your usage limit. Try again at 3:05 PM.", true},
		{"Credit balance is too low", true},
		{"rate limiting middleware loaded", false},
		{"task completed", false},
	}

	for _, tt := range tests {
		t.Run(tt.text, func(t *testing.T) {
			assert.Equal(t, tt.quota, d.IsQuotaExhausted(tt.text))
		})
	}
}

func TestResetHint(t *testing.T) {
	assert.Equal(t, "3:05 PM", ResetHint("You've hit your usage limit. Try again at 3:05 PM."))
	assert.Equal(t, "2h 10m", ResetHint("quota exceeded, resets in 2h 10m"))
	assert.Equal(t, "30s", ResetHint("429 Too Many Requests; retry-after: 30s"))
	assert.Empty(t, ResetHint("quota exceeded"))
}

func TestQuotaMessage(t *testing.T) {
	assert.Equal(t, "Quota exhausted: usage limit hit, resets at 5pm (resets 5pm)", quotaMessage("usage limit hit, resets at 5pm"))
	assert.Equal(t, "Quota exhausted: quota exceeded", quotaMessage(" quota exceeded\n"))
}
