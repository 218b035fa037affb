package util

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalizePhone(t *testing.T) {
	t.Run("valid numbers", func(t *testing.T) {
		cases := map[string]string{
			"+14155551234":      "+14155551234",
			"+1 415 555 1234":   "+14155551234",
			"+1-415-555-1234":   "+14155551234",
			"+1 (415) 555.1234": "+14155551234",
			"0014155551234":     "+14155551234",
			"  +919876543210  ": "+919876543210",
		}
		for input, expected := range cases {
			normalized, err := NormalizePhone(input)
			require.NoError(t, err, "input %q", input)
			assert.Equal(t, expected, normalized)
		}
	})

	t.Run("invalid numbers", func(t *testing.T) {
		inputs := []string{
			"",
			"notaphone",
			"12345",
			"+0123456789",
			"4155551234",
			"+1415555123456789012",
		}
		for _, input := range inputs {
			_, err := NormalizePhone(input)
			assert.ErrorIs(t, err, ErrInvalidPhone, "input %q", input)
		}
	})
}

func TestKeyHash(t *testing.T) {
	h1 := KeyHash("+14155551234")
	h2 := KeyHash("+14155551234")
	h3 := KeyHash("+14155551235")

	assert.Equal(t, h1, h2)
	assert.NotEqual(t, h1, h3)
	assert.Len(t, h1, 64)
	assert.NotContains(t, h1, "+")
}
