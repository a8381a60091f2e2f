package utils

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerateToken(t *testing.T) {
	seen := make(map[string]bool)
	for i := 0; i < 500; i++ {
		tok, err := GenerateToken(8)
		require.NoError(t, err)
		assert.Len(t, tok, 8)
		for _, c := range tok {
			assert.True(t, strings.ContainsRune(TokenAlphabet, c), "unexpected rune %q", c)
		}
		seen[tok] = true
	}
	assert.Greater(t, len(seen), 490, "tokens should practically never repeat")

	_, err := GenerateToken(0)
	assert.Error(t, err)
}

func TestRandomInt(t *testing.T) {
	for i := 0; i < 200; i++ {
		n, err := RandomInt(10, 12)
		require.NoError(t, err)
		assert.GreaterOrEqual(t, n, 10)
		assert.LessOrEqual(t, n, 12)
	}
	_, err := RandomInt(5, 4)
	assert.Error(t, err)
}
