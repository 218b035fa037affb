package otp

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCode(t *testing.T) {
	g := NewGenerator(6)

	seen := make(map[string]bool)
	for i := 0; i < 50; i++ {
		code, err := g.Code()
		require.NoError(t, err)
		require.Len(t, code, 6)
		for _, r := range code {
			assert.True(t, r >= '0' && r <= '9', "code %q has non-digit", code)
		}
		seen[code] = true
	}

	// 50 draws of a 6-digit code should essentially never all collide.
	assert.Greater(t, len(seen), 1)
}

func TestGeneratorDefaultsLength(t *testing.T) {
	g := NewGenerator(0)
	assert.Equal(t, 6, g.Length())

	g = NewGenerator(4)
	assert.Equal(t, 4, g.Length())

	code, err := g.Code()
	require.NoError(t, err)
	assert.Len(t, code, 4)
}
