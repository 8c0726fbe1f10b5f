package publisher

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGlobFilterEmptyMatchesAll(t *testing.T) {
	f, err := NewGlobFilter(nil)
	require.NoError(t, err)

	assert.True(t, f.Match("file_added"))
	assert.True(t, f.Match(""))
}

func TestGlobFilterPatterns(t *testing.T) {
	f, err := NewGlobFilter([]string{"file_*", "integrity_check_global"})
	require.NoError(t, err)

	tests := []struct {
		name string
		want bool
	}{
		{"file_added", true},
		{"file_modified", true},
		{"file_removed", true},
		{"integrity_check_global", true},
		{"integrity_clear", false},
		{"registry_key_added", false},
	}
	for _, tc := range tests {
		assert.Equal(t, tc.want, f.Match(tc.name), tc.name)
	}
}

func TestGlobFilterAlternatives(t *testing.T) {
	f, err := NewGlobFilter([]string{"{file,registry}_removed"})
	require.NoError(t, err)

	assert.True(t, f.Match("file_removed"))
	assert.True(t, f.Match("registry_removed"))
	assert.False(t, f.Match("file_added"))
}

func TestGlobFilterInvalidPattern(t *testing.T) {
	_, err := NewGlobFilter([]string{"file_["})
	assert.Error(t, err)
}
