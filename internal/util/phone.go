package util

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"regexp"
	"strings"
)

var ErrInvalidPhone = errors.New("invalid phone number")

// ITU-T E.164
var e164Regex = regexp.MustCompile(`^\+[1-9]\d{7,14}$`)

// NormalizePhone strips common separators and returns the number in
// canonical E.164 form. A leading "00" international prefix is rewritten
// to "+".
func NormalizePhone(raw string) (string, error) {
	cleaned := strings.TrimSpace(raw)
	for _, sep := range []string{" ", "-", "(", ")", "."} {
		cleaned = strings.ReplaceAll(cleaned, sep, "")
	}
	if strings.HasPrefix(cleaned, "00") {
		cleaned = "+" + cleaned[2:]
	}
	if !e164Regex.MatchString(cleaned) {
		return "", ErrInvalidPhone
	}
	return cleaned, nil
}

// KeyHash returns a SHA-256 hex digest of an identity key. Log lines and
// audit rows carry this digest instead of the raw mobile number or serial.
func KeyHash(key string) string {
	sum := sha256.Sum256([]byte(key))
	return hex.EncodeToString(sum[:])
}
