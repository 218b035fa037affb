package hashing

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"

	"golang.org/x/crypto/argon2"

	"lostfound-api/internal/config"
)

var ErrInvalidHash = errors.New("invalid hash format")

const algorithm = "argon2id"

type Argon2Params struct {
	Memory      uint32
	Iterations  uint32
	Parallelism uint8
	SaltLength  uint32
	KeyLength   uint32
}

// Hasher produces salted one-way hashes for credentials and one-time
// codes. Hashes are only ever compared, never reversed.
type Hasher struct {
	params Argon2Params
}

func NewHasher(cfg *config.Config) *Hasher {
	return &Hasher{
		params: Argon2Params{
			Memory:      uint32(cfg.Hashing.Argon2MemoryCost),
			Iterations:  uint32(cfg.Hashing.Argon2TimeCost),
			Parallelism: uint8(cfg.Hashing.Argon2Parallelism),
			SaltLength:  16,
			KeyLength:   32,
		},
	}
}

func (h *Hasher) HashCredential(password string) (string, error) {
	return h.hashWithContext(password, "credential")
}

func (h *Hasher) HashOTP(code string) (string, error) {
	return h.hashWithContext(code, "otp")
}

func (h *Hasher) VerifyCredential(password, encoded string) (bool, error) {
	return h.verifyWithContext(password, encoded, "credential")
}

func (h *Hasher) VerifyOTP(code, encoded string) (bool, error) {
	return h.verifyWithContext(code, encoded, "otp")
}

// hashWithContext hashes data with a fresh random salt. The context
// string prevents hash reuse between credentials and codes.
func (h *Hasher) hashWithContext(data, context string) (string, error) {
	salt := make([]byte, h.params.SaltLength)
	if _, err := rand.Read(salt); err != nil {
		return "", fmt.Errorf("failed to generate salt: %w", err)
	}

	hash := argon2.IDKey(
		[]byte(data+context),
		salt,
		h.params.Iterations,
		h.params.Memory,
		h.params.Parallelism,
		h.params.KeyLength,
	)

	encoded := fmt.Sprintf("%s$%s$%s",
		algorithm,
		base64.RawURLEncoding.EncodeToString(salt),
		base64.RawURLEncoding.EncodeToString(hash),
	)
	return encoded, nil
}

func (h *Hasher) verifyWithContext(data, encoded, context string) (bool, error) {
	parts := strings.Split(encoded, "$")
	if len(parts) != 3 || parts[0] != algorithm {
		return false, ErrInvalidHash
	}

	salt, err := base64.RawURLEncoding.DecodeString(parts[1])
	if err != nil {
		return false, ErrInvalidHash
	}
	expectedHash, err := base64.RawURLEncoding.DecodeString(parts[2])
	if err != nil {
		return false, ErrInvalidHash
	}

	computedHash := argon2.IDKey(
		[]byte(data+context),
		salt,
		h.params.Iterations,
		h.params.Memory,
		h.params.Parallelism,
		uint32(len(expectedHash)),
	)

	// Constant time comparison to prevent timing attacks
	return subtle.ConstantTimeCompare(computedHash, expectedHash) == 1, nil
}
