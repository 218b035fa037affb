package hashing

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"lostfound-api/internal/config"
)

func newTestHasher() *Hasher {
	return NewHasher(&config.Config{
		Hashing: config.HashingConfig{
			Argon2MemoryCost:  1024,
			Argon2TimeCost:    1,
			Argon2Parallelism: 1,
		},
	})
}

func TestHashCredential(t *testing.T) {
	h := newTestHasher()

	t.Run("round trip", func(t *testing.T) {
		encoded, err := h.HashCredential("correct horse battery")
		require.NoError(t, err)
		assert.True(t, strings.HasPrefix(encoded, "argon2id$"))
		assert.NotContains(t, encoded, "correct horse battery")

		match, err := h.VerifyCredential("correct horse battery", encoded)
		require.NoError(t, err)
		assert.True(t, match)

		match, err = h.VerifyCredential("wrong credential", encoded)
		require.NoError(t, err)
		assert.False(t, match)
	})

	t.Run("salted", func(t *testing.T) {
		first, err := h.HashCredential("same input")
		require.NoError(t, err)
		second, err := h.HashCredential("same input")
		require.NoError(t, err)
		assert.NotEqual(t, first, second)
	})
}

func TestHashOTP(t *testing.T) {
	h := newTestHasher()

	encoded, err := h.HashOTP("482913")
	require.NoError(t, err)

	match, err := h.VerifyOTP("482913", encoded)
	require.NoError(t, err)
	assert.True(t, match)

	match, err = h.VerifyOTP("482914", encoded)
	require.NoError(t, err)
	assert.False(t, match)
}

// A code hashed as an OTP must not verify as a credential: the context
// string separates the two domains.
func TestContextSeparation(t *testing.T) {
	h := newTestHasher()

	encoded, err := h.HashOTP("123456")
	require.NoError(t, err)

	match, err := h.VerifyCredential("123456", encoded)
	require.NoError(t, err)
	assert.False(t, match)
}

func TestVerifyMalformedHash(t *testing.T) {
	h := newTestHasher()

	for _, encoded := range []string{
		"",
		"argon2id$onlyone",
		"bcrypt$c2FsdA$aGFzaA",
		"argon2id$!!!$aGFzaA",
		"argon2id$c2FsdA$!!!",
	} {
		_, err := h.VerifyCredential("anything", encoded)
		assert.ErrorIs(t, err, ErrInvalidHash, "encoded %q", encoded)
	}
}
