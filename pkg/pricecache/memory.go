package pricecache

import (
	"context"
	"time"

	"github.com/bluele/gcache"
)

// Memory is an in-process LRU cache
type Memory struct {
	cache gcache.Cache
}

func NewMemory(size int, ttl time.Duration) *Memory {
	return &Memory{
		cache: gcache.New(size).
			LRU().
			Expiration(ttl).
			Build(),
	}
}

func (m *Memory) Get(_ context.Context, key string) (Entry, bool) {
	value, err := m.cache.Get(key)
	if err != nil {
		return Entry{}, false
	}
	entry, ok := value.(Entry)
	return entry, ok
}

func (m *Memory) Set(_ context.Context, key string, entry Entry) {
	_ = m.cache.Set(key, entry)
}

func (m *Memory) Backend() string {
	return "memory"
}
