package delivery

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestFormatTTL(t *testing.T) {
	cases := map[time.Duration]string{
		5 * time.Minute:  "5 minutes",
		time.Minute:      "1 minute",
		90 * time.Second: "90 seconds",
		45 * time.Second: "45 seconds",
		time.Second:      "1 second",
	}
	for ttl, expected := range cases {
		assert.Equal(t, expected, formatTTL(ttl), "ttl %s", ttl)
	}
}

func TestLogSender(t *testing.T) {
	s := NewLogSender()
	assert.NoError(t, s.SendCode(context.Background(), "+14155551234", "482913"))
}
