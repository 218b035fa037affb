package bucketing

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIdentityBucket(t *testing.T) {
	m := NewManager(64)

	t.Run("stable", func(t *testing.T) {
		first := m.IdentityBucket("+14155551234")
		for i := 0; i < 10; i++ {
			assert.Equal(t, first, m.IdentityBucket("+14155551234"))
		}
	})

	t.Run("in range", func(t *testing.T) {
		keys := []string{"+14155551234", "CS-2023-0042", "a", ""}
		for _, key := range keys {
			bucket := m.IdentityBucket(key)
			assert.GreaterOrEqual(t, bucket, 0)
			assert.Less(t, bucket, 64)
		}
	})

	t.Run("concurrent use", func(t *testing.T) {
		expected := m.IdentityBucket("+919876543210")
		var wg sync.WaitGroup
		for i := 0; i < 16; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				for j := 0; j < 100; j++ {
					if m.IdentityBucket("+919876543210") != expected {
						t.Error("bucket changed under concurrency")
						return
					}
				}
			}()
		}
		wg.Wait()
	})
}

func TestManagerDefaultsBuckets(t *testing.T) {
	m := NewManager(0)
	assert.Equal(t, 64, m.Buckets())
}
