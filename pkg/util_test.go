package pkg

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBytesToString(t *testing.T) {
	assert.Equal(t, "serbia", BytesToString([]byte{'s', 'e', 'r', 'b', 'i', 'a'}))
	assert.Equal(t, "", BytesToString(nil))
}

func TestGenerateRandomString(t *testing.T) {
	s1, err := GenerateRandomString(35)
	require.NoError(t, err)
	require.NotEmpty(t, s1)

	s2, err := GenerateRandomString(35)
	require.NoError(t, err)

	assert.NotEqual(t, s1, s2)
}
