package sanitize

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestForFilename(t *testing.T) {
	tests := []struct {
		input    string
		expected string
	}{
		{"session-1", "session-1"},
		{"build.v2_x", "build.v2_x"},
		{"repo:main", "repo%3Amain"},
		{"a/b", "a%2Fb"},
		{"50%", "50%25"},
		{".hidden", "%2Ehidden"},
		{"", ""},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got := ForFilename(tt.input)
			assert.Equal(t, tt.expected, got)

			back, err := FromFilename(got)
			require.NoError(t, err)
			assert.Equal(t, tt.input, back)
		})
	}
}

func TestForFilenameIsInjective(t *testing.T) {
	assert.NotEqual(t, ForFilename("A"), ForFilename("a"))
	assert.NotEqual(t, ForFilename("a:b"), ForFilename("a%3Ab"))
}

func TestFromFilenameErrors(t *testing.T) {
	_, err := FromFilename("bad%2")
	assert.Error(t, err)
	_, err = FromFilename("bad%ZZ")
	assert.Error(t, err)
}
