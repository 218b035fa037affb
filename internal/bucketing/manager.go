package bucketing

import (
	"hash"
	"sync"

	"github.com/spaolacci/murmur3"
)

// Manager maps identity keys onto a fixed set of partition buckets.
// Bucketing keeps wide rows off any single partition while preserving
// single-partition lookups for a given key.
type Manager struct {
	buckets  int
	hashPool sync.Pool
}

func NewManager(buckets int) *Manager {
	if buckets <= 0 {
		buckets = 64
	}
	return &Manager{
		buckets: buckets,
		hashPool: sync.Pool{
			New: func() interface{} {
				return murmur3.New64()
			},
		},
	}
}

func (m *Manager) Buckets() int {
	return m.buckets
}

// IdentityBucket returns the bucket for an identity key. The mapping is
// stable for the lifetime of the deployment; changing the bucket count
// requires a data migration.
func (m *Manager) IdentityBucket(key string) int {
	hasher := m.hashPool.Get().(hash.Hash64)
	defer func() {
		hasher.Reset()
		m.hashPool.Put(hasher)
	}()

	hasher.Reset()
	_, _ = hasher.Write([]byte(key))
	return int(hasher.Sum64() % uint64(m.buckets))
}
