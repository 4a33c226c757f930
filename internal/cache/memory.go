package cache

import (
	"context"
	"time"

	gocache "github.com/patrickmn/go-cache"

	"github.com/michellemayes/logseq-assistant/internal/notes"
)

// MemoryCache is the in-process fallback used when no Redis URL is set.
// Entries live for the life of the process or until the TTL elapses.
type MemoryCache struct {
	items *gocache.Cache
}

func NewMemoryCache(ttl time.Duration) *MemoryCache {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &MemoryCache{items: gocache.New(ttl, 10*time.Minute)}
}

func (c *MemoryCache) Get(_ context.Context, key string) (notes.Summary, bool, error) {
	v, ok := c.items.Get(key)
	if !ok {
		return notes.Summary{}, false, nil
	}
	s, ok := v.(notes.Summary)
	return s, ok, nil
}

func (c *MemoryCache) Set(_ context.Context, key string, s notes.Summary) error {
	c.items.SetDefault(key, s)
	return nil
}

func (c *MemoryCache) Ping(context.Context) error { return nil }
