package embed

import (
	"context"
	"time"

	"github.com/anamnesis-ai/anamnesis/src/cache"
)

// CachedEmbedder memoizes another provider through the LRU cache. Remote
// embedding calls dominate recall latency, so repeated texts hit memory.
type CachedEmbedder struct {
	inner Embedder
	cache *cache.LRUCache
}

// NewCachedEmbedder wraps inner with an LRU of the given capacity and TTL.
func NewCachedEmbedder(inner Embedder, capacity int, ttl time.Duration) *CachedEmbedder {
	return &CachedEmbedder{
		inner: inner,
		cache: cache.NewLRUCache(capacity, ttl),
	}
}

func (c *CachedEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	key := cache.HashKey(text)
	if v, ok := c.cache.Get(key); ok {
		if vec, ok := v.([]float32); ok {
			return vec, nil
		}
	}
	vec, err := c.inner.Embed(ctx, text)
	if err != nil {
		return nil, err
	}
	c.cache.Set(key, vec)
	return vec, nil
}

func (c *CachedEmbedder) Dim() int { return c.inner.Dim() }
