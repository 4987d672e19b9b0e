package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"time"
)

// VectorStore caches embedding vectors by key. Implementations must be safe
// for concurrent use. A miss is reported with ok=false and a nil error; errors
// are reserved for backend failures.
type VectorStore interface {
	Get(ctx context.Context, key string) (vec []float32, ok bool, err error)
	Set(ctx context.Context, key string, vec []float32) error
}

// VectorKey derives a stable cache key for text embedded by model.
func VectorKey(model, text string) string {
	sum := sha256.Sum256([]byte(model + "\x00" + text))
	return hex.EncodeToString(sum[:])
}

// MemoryStore is an in-process VectorStore backed by LRUCache.
type MemoryStore struct {
	lru *LRUCache[string, []float32]
	ttl time.Duration
}

// NewMemoryStore creates a MemoryStore holding up to capacity vectors.
func NewMemoryStore(capacity int, ttl time.Duration) *MemoryStore {
	return &MemoryStore{lru: NewLRUCache[string, []float32](capacity, ttl), ttl: ttl}
}

func (m *MemoryStore) Get(_ context.Context, key string) ([]float32, bool, error) {
	vec, ok := m.lru.Get(key)
	if !ok {
		return nil, false, nil
	}
	out := make([]float32, len(vec))
	copy(out, vec)
	return out, true, nil
}

func (m *MemoryStore) Set(_ context.Context, key string, vec []float32) error {
	stored := make([]float32, len(vec))
	copy(stored, vec)
	m.lru.Set(key, stored, m.ttl)
	return nil
}

// Len returns the number of cached vectors.
func (m *MemoryStore) Len() int {
	return m.lru.Len()
}
