package otp

import (
	"crypto/rand"
	"fmt"
	"math/big"
)

const digits = "0123456789"

// Generator produces fixed-length numeric one-time codes from a
// cryptographically secure source.
type Generator struct {
	length int
}

func NewGenerator(length int) *Generator {
	if length <= 0 {
		length = 6
	}
	return &Generator{length: length}
}

func (g *Generator) Length() int {
	return g.length
}

// Code returns a fresh numeric code. Each digit is drawn independently
// so leading zeros are as likely as any other digit.
func (g *Generator) Code() (string, error) {
	buf := make([]byte, g.length)
	max := big.NewInt(int64(len(digits)))
	for i := range buf {
		n, err := rand.Int(rand.Reader, max)
		if err != nil {
			return "", fmt.Errorf("failed to generate code: %w", err)
		}
		buf[i] = digits[n.Int64()]
	}
	return string(buf), nil
}
